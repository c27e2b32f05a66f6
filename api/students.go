/*
students.go - Roster, duplicate review and payment health endpoints

ENDPOINTS:
  GET    /api/students                         List students (?batch_id= filters)
  POST   /api/students                         Create roster record
  GET    /api/students/{id}/payment-health     Health label for one student
  GET    /api/batches/{id}/roster              Batch roster (Redis cached)
  GET    /api/duplicates                       Current duplicate groups
  POST   /api/duplicates/resolve               Resolve one group
  POST   /api/duplicates/batch-resolve         Resolve many; failures isolated
  GET    /api/dashboard/payment-health         Counts per health label

CACHING:
  Only batch rosters are cached. The X-Cache header reports HIT or MISS.
  Anything that changes a batch's students invalidates its roster.
*/
package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/enrollment-engine/domain"
	"github.com/warp/enrollment-engine/duplicates"
	"github.com/warp/enrollment-engine/payments"
)

// ListStudents returns every roster record, oldest first.
// GET /api/students
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	var (
		students []domain.Student
		err      error
	)
	if batchID := r.URL.Query().Get("batch_id"); batchID != "" {
		students, err = h.Store.ListStudentsByBatch(r.Context(), batchID)
	} else {
		students, err = h.Store.ListStudents(r.Context())
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTOs(students))
}

// CreateStudent adds a roster record.
// POST /api/students
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx := r.Context()

	if req.BatchID != nil {
		b, err := h.Store.GetBatch(ctx, *req.BatchID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if b == nil {
			h.writeError(w, r, domain.NotFound(domain.EntityBatch, "batch not found", *req.BatchID))
			return
		}
	}

	s := domain.Student{
		ID:                 h.newID(),
		Name:               strings.TrimSpace(req.Name),
		Email:              req.Email,
		Phone:              req.Phone,
		DateOfBirth:        parseDate(req.DateOfBirth),
		EducationLevel:     req.EducationLevel,
		GradeLevel:         req.GradeLevel,
		SchoolName:         req.SchoolName,
		BatchID:            req.BatchID,
		SubscriptionID:     req.SubscriptionID,
		SubscriptionStatus: req.SubscriptionStatus,
		Status:             domain.EnrollmentStatus(req.Status),
		CreatedAt:          h.now(),
	}
	if s.Status == "" {
		s.Status = domain.StatusRegistered
	}
	if req.BillingType != nil {
		bt := domain.BillingType(*req.BillingType)
		s.BillingType = &bt
	}

	if err := h.Store.SaveStudent(ctx, s); err != nil {
		h.writeError(w, r, err)
		return
	}
	if s.BatchID != nil {
		h.invalidate(r, *s.BatchID)
	}
	writeJSON(w, http.StatusCreated, toStudentDTO(s))
}

// GetStudentPaymentHealth returns the health label for one student.
// GET /api/students/{id}/payment-health
func (h *Handler) GetStudentPaymentHealth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.Store.GetStudent(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if s == nil {
		h.writeError(w, r, domain.NotFound(domain.EntityStudent, "student not found", id))
		return
	}
	writeJSON(w, http.StatusOK, PaymentHealthDTO{StudentID: s.ID, Health: payments.ForStudent(*s)})
}

// GetBatchRoster returns the students of a batch, served from cache when
// possible. A cache error falls through to the store.
// GET /api/batches/{id}/roster
func (h *Handler) GetBatchRoster(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID := chi.URLParam(r, "id")

	b, err := h.Store.GetBatch(ctx, batchID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if b == nil {
		h.writeError(w, r, domain.NotFound(domain.EntityBatch, "batch not found", batchID))
		return
	}

	students, hit, err := h.Roster.GetRoster(ctx, batchID)
	if err != nil {
		h.Logger.Warn("roster cache read failed", zap.String("batch_id", batchID), zap.Error(err))
	}
	if hit {
		w.Header().Set("X-Cache", "HIT")
		writeJSON(w, http.StatusOK, toStudentDTOs(students))
		return
	}

	students, err = h.Store.ListStudentsByBatch(ctx, batchID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Roster.SetRoster(ctx, batchID, students); err != nil {
		h.Logger.Warn("roster cache write failed", zap.String("batch_id", batchID), zap.Error(err))
	}
	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, toStudentDTOs(students))
}

// ListDuplicates returns duplicate groups, largest first.
// GET /api/duplicates
func (h *Handler) ListDuplicates(w http.ResponseWriter, r *http.Request) {
	students, err := h.Store.ListStudents(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	groups := duplicates.FindGroups(students)
	duplicates.SortGroups(groups)

	out := make([]DuplicateGroupDTO, len(groups))
	for i, g := range groups {
		out[i] = DuplicateGroupDTO{
			Key:        g.Key,
			MatchType:  string(g.MatchType),
			Keep:       toStudentDTO(g.Keep),
			Duplicates: toStudentDTOs(g.Duplicates),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// ResolveDuplicates applies one reviewer decision.
// POST /api/duplicates/resolve
func (h *Handler) ResolveDuplicates(w http.ResponseWriter, r *http.Request) {
	var req ResolveDuplicatesRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.Resolver.Resolve(r.Context(), duplicates.Resolution{
		KeepID:    req.KeepID,
		DeleteIDs: req.DeleteIDs,
		MergeData: req.MergeData,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	merged := res.MergedFields
	if merged == nil {
		merged = []string{}
	}
	writeJSON(w, http.StatusOK, ResolveDuplicatesResponse{
		KeepID:       res.KeepID,
		DeletedIDs:   res.DeletedIDs,
		MergedFields: merged,
	})
}

// BatchResolveDuplicates resolves several groups. A failing group does not
// stop the rest, so the response is 200 with the failures listed.
// POST /api/duplicates/batch-resolve
func (h *Handler) BatchResolveDuplicates(w http.ResponseWriter, r *http.Request) {
	var req BatchResolveRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	groups := make([]duplicates.Resolution, len(req.Groups))
	for i, g := range req.Groups {
		groups[i] = duplicates.Resolution{KeepID: g.KeepID, DeleteIDs: g.DeleteIDs, MergeData: g.MergeData}
	}

	result := h.Resolver.BatchResolve(r.Context(), groups)
	h.Logger.Info("batch duplicate resolution finished",
		zap.Int("resolved", result.ResolvedCount),
		zap.Int("failed", len(result.FailedGroups)),
	)
	writeJSON(w, http.StatusOK, result)
}

// PaymentHealthDashboard counts students per health label.
// GET /api/dashboard/payment-health
func (h *Handler) PaymentHealthDashboard(w http.ResponseWriter, r *http.Request) {
	students, err := h.Store.ListStudents(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payments.Summarize(students))
}
