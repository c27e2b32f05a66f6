/*
handlers.go - HTTP API handlers for the enrollment engine

PURPOSE:
  Exposes people, programs, relationships and billing over REST. Every
  mutating endpoint decodes and validates the request body, runs the
  matching business rule, and only then persists.

ENDPOINTS:
  People:
    POST   /api/persons                    Create person (email must be unused)
    GET    /api/persons/{id}               Get person with contact points

  Programs:
    POST   /api/profiles                   Create program profile
    POST   /api/batches                    Create batch
    POST   /api/enrollments                Enroll (creates profile if needed)

  Teachers:
    POST   /api/teachers                   Promote a person to teacher
    POST   /api/teacher-assignments        Assign teacher to Dugsi shift

  Relationships:
    POST   /api/guardian-relationships     Link guardian -> dependent
    POST   /api/sibling-relationships      Link two siblings

  Billing:
    POST   /api/subscriptions              Record a subscription
    POST   /api/billing-assignments        Split a subscription onto a profile
                                           (over-allocation is advisory)

  Students, duplicates, dashboard: see students.go
  Scenarios: see scenarios.go

ERROR HANDLING:
  Errors are returned as {"error", "code", "details"}:
  - 400: REQUIRED_PARAMETER, INVALID_PARAMETER, SELF_REFERENCE
  - 404: NOT_FOUND
  - 409: WRONG_PROGRAM, DUPLICATE_SHIFT, ALREADY_EXISTS
  - 500: anything else (logged, message hidden)

SECURITY NOTE:
  No authentication. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - validation/: Business rules
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/enrollment-engine/cache"
	"github.com/warp/enrollment-engine/domain"
	"github.com/warp/enrollment-engine/duplicates"
	"github.com/warp/enrollment-engine/validation"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    domain.Store
	Rules    *validation.Service
	Resolver *duplicates.Resolver
	Roster   cache.Roster
	Logger   *zap.Logger

	validate *validator.Validate
	now      func() time.Time
	newID    func() string

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the rules and resolver around store. A nil roster
// disables caching.
func NewHandler(store domain.Store, roster cache.Roster, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if roster == nil {
		roster = cache.Nop{}
	}
	return &Handler{
		Store:    store,
		Rules:    validation.New(store, logger),
		Resolver: duplicates.NewResolver(store, roster, logger),
		Roster:   roster,
		Logger:   logger,
		validate: newValidator(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// PEOPLE
// =============================================================================

// CreatePerson creates a person with optional email and phone contacts.
// POST /api/persons
func (h *Handler) CreatePerson(w http.ResponseWriter, r *http.Request) {
	var req CreatePersonRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx := r.Context()

	p := domain.Person{
		ID:          h.newID(),
		Name:        strings.TrimSpace(req.Name),
		DateOfBirth: parseDate(req.DateOfBirth),
		CreatedAt:   h.now(),
	}
	if req.Email != nil {
		existing, err := h.Store.FindPersonByEmail(ctx, *req.Email)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if existing != nil {
			h.writeError(w, r, domain.NewError(
				fmt.Sprintf("email already belongs to %s", existing.Name),
				domain.AlreadyExistsDetails{Entity: domain.EntityPerson, ExistingID: existing.ID},
			))
			return
		}
		p.ContactPoints = append(p.ContactPoints, domain.ContactPoint{
			ID: h.newID(), PersonID: p.ID, Type: domain.ContactEmail, Value: *req.Email, IsPrimary: true,
		})
	}
	if req.Phone != nil {
		p.ContactPoints = append(p.ContactPoints, domain.ContactPoint{
			ID: h.newID(), PersonID: p.ID, Type: domain.ContactPhone, Value: *req.Phone, IsPrimary: true,
		})
	}

	if err := h.Store.SavePerson(ctx, p); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPersonDTO(p))
}

// GetPerson returns a person.
// GET /api/persons/{id}
func (h *Handler) GetPerson(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.Store.GetPerson(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if p == nil {
		h.writeError(w, r, domain.NotFound(domain.EntityPerson, "person not found", id))
		return
	}
	writeJSON(w, http.StatusOK, toPersonDTO(*p))
}

// =============================================================================
// PROGRAMS
// =============================================================================

// CreateProfile creates a program profile for an existing person.
// POST /api/profiles
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req CreateProfileRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := nonNegative("monthly_rate", req.MonthlyRate); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx := r.Context()

	if err := h.requirePerson(r, req.PersonID, domain.EntityPerson); err != nil {
		h.writeError(w, r, err)
		return
	}

	p := domain.ProgramProfile{
		ID:             h.newID(),
		PersonID:       req.PersonID,
		Program:        domain.Program(req.Program),
		EducationLevel: req.EducationLevel,
		GradeLevel:     req.GradeLevel,
		SchoolName:     req.SchoolName,
		MonthlyRate:    domain.CentsFromDecimal(req.MonthlyRate),
		CustomRate:     req.CustomRate,
		Status:         domain.ProfileActive,
		CreatedAt:      h.now(),
	}
	if err := h.Store.SaveProgramProfile(ctx, p); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProfileDTO(p))
}

// CreateBatch creates a Mahad cohort.
// POST /api/batches
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	b := domain.Batch{
		ID:        h.newID(),
		Name:      req.Name,
		Capacity:  req.Capacity,
		StartDate: *parseDate(&req.StartDate),
		EndDate:   parseDate(req.EndDate),
		CreatedAt: h.now(),
	}
	if b.EndDate != nil && b.EndDate.Before(b.StartDate) {
		h.writeError(w, r, domain.InvalidParameter("end_date", *req.EndDate, "end_date is before start_date"))
		return
	}
	if err := h.Store.SaveBatch(r.Context(), b); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBatchDTO(b))
}

// CreateEnrollment enrolls a profile. Without program_profile_id, a profile
// for person_id in program is created first.
// POST /api/enrollments
func (h *Handler) CreateEnrollment(w http.ResponseWriter, r *http.Request) {
	var req CreateEnrollmentRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx := r.Context()

	status := domain.EnrollmentStatus(req.Status)
	if status == "" {
		status = domain.StatusRegistered
	}
	in := validation.EnrollmentInput{ProgramProfileID: req.ProgramProfileID, BatchID: req.BatchID, Status: status}
	if req.Program != nil {
		program := domain.Program(*req.Program)
		in.Program = &program
	}
	if err := h.Rules.ValidateEnrollment(ctx, in); err != nil {
		h.writeError(w, r, err)
		return
	}

	now := h.now()
	var profileID string
	if req.ProgramProfileID != nil {
		profileID = *req.ProgramProfileID
	} else {
		if req.PersonID == nil {
			h.writeError(w, r, domain.RequiredParameter("person_id is required to create a program profile", "person_id"))
			return
		}
		if err := h.requirePerson(r, *req.PersonID, domain.EntityPerson); err != nil {
			h.writeError(w, r, err)
			return
		}
		profile := domain.ProgramProfile{
			ID:        h.newID(),
			PersonID:  *req.PersonID,
			Program:   *in.Program,
			Status:    domain.ProfileActive,
			CreatedAt: now,
		}
		if err := h.Store.SaveProgramProfile(ctx, profile); err != nil {
			h.writeError(w, r, err)
			return
		}
		profileID = profile.ID
	}

	start := now
	if d := parseDate(req.StartDate); d != nil {
		start = *d
	}
	e := domain.Enrollment{
		ID:               h.newID(),
		ProgramProfileID: profileID,
		BatchID:          req.BatchID,
		Status:           status,
		StartDate:        start,
	}
	if err := h.Store.SaveEnrollment(ctx, e); err != nil {
		h.writeError(w, r, err)
		return
	}
	if e.BatchID != nil {
		h.invalidate(r, *e.BatchID)
	}

	writeJSON(w, http.StatusCreated, EnrollmentDTO{
		ID:               e.ID,
		ProgramProfileID: e.ProgramProfileID,
		BatchID:          e.BatchID,
		Status:           string(e.Status),
		StartDate:        e.StartDate.Format(dateLayout),
	})
}

// =============================================================================
// TEACHERS
// =============================================================================

// CreateTeacher promotes a person to teacher.
// POST /api/teachers
func (h *Handler) CreateTeacher(w http.ResponseWriter, r *http.Request) {
	var req CreateTeacherRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx := r.Context()

	if err := h.Rules.ValidateTeacherCreation(ctx, validation.TeacherCreationInput{PersonID: req.PersonID}); err != nil {
		h.writeError(w, r, err)
		return
	}

	t := domain.Teacher{ID: h.newID(), PersonID: req.PersonID, IsActive: true, CreatedAt: h.now()}
	if err := h.Store.SaveTeacher(ctx, t); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, TeacherDTO{ID: t.ID, PersonID: t.PersonID, IsActive: t.IsActive})
}

// CreateTeacherAssignment assigns a teacher to a Dugsi profile's shift.
// POST /api/teacher-assignments
func (h *Handler) CreateTeacherAssignment(w http.ResponseWriter, r *http.Request) {
	var req CreateTeacherAssignmentRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx := r.Context()

	in := validation.TeacherAssignmentInput{
		ProgramProfileID: req.ProgramProfileID,
		TeacherID:        req.TeacherID,
		Shift:            domain.Shift(req.Shift),
	}
	if err := h.Rules.ValidateTeacherAssignment(ctx, in); err != nil {
		h.writeError(w, r, err)
		return
	}

	a := domain.TeacherAssignment{
		ID:               h.newID(),
		ProgramProfileID: in.ProgramProfileID,
		TeacherID:        in.TeacherID,
		Shift:            in.Shift,
		IsActive:         true,
		StartDate:        h.now(),
	}
	if err := h.Store.SaveTeacherAssignment(ctx, a); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, TeacherAssignmentDTO{
		ID:               a.ID,
		ProgramProfileID: a.ProgramProfileID,
		TeacherID:        a.TeacherID,
		Shift:            string(a.Shift),
		IsActive:         a.IsActive,
		StartDate:        a.StartDate.Format(dateLayout),
	})
}

// =============================================================================
// RELATIONSHIPS
// =============================================================================

// CreateGuardianRelationship links a guardian to a dependent.
// POST /api/guardian-relationships
func (h *Handler) CreateGuardianRelationship(w http.ResponseWriter, r *http.Request) {
	var req CreateGuardianRelationshipRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx := r.Context()

	in := validation.GuardianRelationshipInput{
		GuardianID:  req.GuardianID,
		DependentID: req.DependentID,
		Role:        domain.GuardianRole(req.Role),
	}
	if err := h.Rules.ValidateGuardianRelationship(ctx, in); err != nil {
		h.writeError(w, r, err)
		return
	}

	rel := domain.GuardianRelationship{
		ID:          h.newID(),
		GuardianID:  in.GuardianID,
		DependentID: in.DependentID,
		Role:        in.Role,
		IsActive:    true,
		CreatedAt:   h.now(),
	}
	if err := h.Store.SaveGuardianRelationship(ctx, rel); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, GuardianRelationshipDTO{
		ID:          rel.ID,
		GuardianID:  rel.GuardianID,
		DependentID: rel.DependentID,
		Role:        string(rel.Role),
		IsActive:    rel.IsActive,
	})
}

// CreateSiblingRelationship links two people as siblings. The pair is
// stored in normalized order.
// POST /api/sibling-relationships
func (h *Handler) CreateSiblingRelationship(w http.ResponseWriter, r *http.Request) {
	var req CreateSiblingRelationshipRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx := r.Context()

	in := validation.SiblingRelationshipInput{Person1ID: req.Person1ID, Person2ID: req.Person2ID}
	if err := h.Rules.ValidateSiblingRelationship(ctx, in); err != nil {
		h.writeError(w, r, err)
		return
	}

	p1, p2 := domain.NormalizePair(in.Person1ID, in.Person2ID)
	rel := domain.SiblingRelationship{ID: h.newID(), Person1ID: p1, Person2ID: p2, IsActive: true, CreatedAt: h.now()}
	if err := h.Store.SaveSiblingRelationship(ctx, rel); err != nil {
		h.writeError(w, r, err)
		return
	}

	// An inactive row for the pair is reactivated and keeps its id.
	if saved, err := h.Store.FindSiblingRelationship(ctx, p1, p2); err == nil && saved != nil {
		rel = *saved
	}
	writeJSON(w, http.StatusCreated, SiblingRelationshipDTO{
		ID:        rel.ID,
		Person1ID: rel.Person1ID,
		Person2ID: rel.Person2ID,
		IsActive:  rel.IsActive,
	})
}

// =============================================================================
// BILLING
// =============================================================================

// CreateSubscription records a payment-provider subscription.
// POST /api/subscriptions
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req CreateSubscriptionRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := nonNegative("amount", req.Amount); err != nil {
		h.writeError(w, r, err)
		return
	}

	sub := domain.Subscription{
		ID:        req.ID,
		Status:    strings.ToLower(req.Status),
		Amount:    domain.CentsFromDecimal(req.Amount),
		CreatedAt: h.now(),
	}
	if sub.ID == "" {
		sub.ID = h.newID()
	}
	if err := h.Store.SaveSubscription(r.Context(), sub); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubscriptionDTO{ID: sub.ID, Status: sub.Status, Amount: sub.Amount.Decimal()})
}

// CreateBillingAssignment assigns part of a subscription to a profile.
// Exceeding the subscription amount is allowed and flagged in the response.
// POST /api/billing-assignments
func (h *Handler) CreateBillingAssignment(w http.ResponseWriter, r *http.Request) {
	var req CreateBillingAssignmentRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := nonNegative("amount", req.Amount); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx := r.Context()

	in := validation.BillingAssignmentInput{
		SubscriptionID:   req.SubscriptionID,
		ProgramProfileID: req.ProgramProfileID,
		Amount:           domain.CentsFromDecimal(req.Amount),
	}
	check, err := h.Rules.CheckBillingAssignment(ctx, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	a := domain.BillingAssignment{
		ID:               h.newID(),
		SubscriptionID:   in.SubscriptionID,
		ProgramProfileID: in.ProgramProfileID,
		Amount:           in.Amount,
		IsActive:         true,
		CreatedAt:        h.now(),
	}
	if err := h.Store.SaveBillingAssignment(ctx, a); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBillingAssignmentDTO(a, check))
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into dst and runs struct validation.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.InvalidParameter("body", "", fmt.Sprintf("invalid request body: %v", err))
	}
	if err := h.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError maps validator failures onto domain errors. Missing
// fields win over malformed ones.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.InvalidParameter("body", "", err.Error())
	}

	var missing []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		}
	}
	if len(missing) > 0 {
		return domain.RequiredParameter("missing required parameters: "+strings.Join(missing, ", "), missing...)
	}

	fe := verrs[0]
	msg := fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	if fe.Param() != "" {
		msg = fmt.Sprintf("%s failed %s=%s validation", fe.Field(), fe.Tag(), fe.Param())
	}
	return domain.InvalidParameter(fe.Field(), fieldValue(fe.Value()), msg)
}

func fieldValue(v any) string {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ""
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return ""
	}
	return fmt.Sprint(rv.Interface())
}

func nonNegative(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return domain.InvalidParameter(field, d.String(), field+" must not be negative")
	}
	return nil
}

func (h *Handler) requirePerson(r *http.Request, id string, kind domain.EntityKind) error {
	p, err := h.Store.GetPerson(r.Context(), id)
	if err != nil {
		return err
	}
	if p == nil {
		return domain.NotFound(kind, "person not found", id)
	}
	return nil
}

// invalidate drops cached rosters for batchIDs. Failures are logged only.
func (h *Handler) invalidate(r *http.Request, batchIDs ...string) {
	if err := h.Roster.InvalidateBatches(r.Context(), batchIDs); err != nil {
		h.Logger.Error("failed to invalidate batch caches",
			zap.Strings("batch_ids", batchIDs),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// statusFor maps an error code to its HTTP status.
func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeRequiredParameter, domain.CodeInvalidParameter, domain.CodeSelfReference:
		return http.StatusBadRequest
	case domain.CodeWrongProgram, domain.CodeDuplicateShift, domain.CodeAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if verr, ok := domain.AsValidationError(err); ok {
		writeJSON(w, statusFor(verr.Code), ErrorResponse{
			Error:   verr.Message,
			Code:    string(verr.Code),
			Details: verr.Details,
		})
		return
	}

	h.Logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
