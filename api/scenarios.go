/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the store with realistic data
  for demos and manual testing of the admin screens.

AVAILABLE SCENARIOS:
  family:          Parent with two Dugsi children, guardian and sibling
                   links, a teacher on the morning shift, one subscription
                   split across both children
  duplicates:      Mahad batch whose roster contains email and phone
                   duplicates for the review screen
  payment-health:  One student per payment health label

HOW SCENARIOS WORK:
  Every record has a fixed id and is upserted, so loading a scenario twice
  leaves the same state. Nothing is deleted: scenarios add to whatever is
  already stored. Rosters of touched batches are invalidated.

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "family"}

ADDING NEW SCENARIOS:
  1. Add to 'scenarios' slice with ID, name, description
  2. Create loader function: loadXxxScenario(ctx)
  3. Add it to the 'loaders' map in scenarioLoader

SEE ALSO:
  - students.go: duplicate and payment health endpoints these feed
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/warp/enrollment-engine/domain"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "family",
		Name:        "Dugsi Family",
		Description: "Parent with two Dugsi children, a teacher assignment and a shared subscription",
	},
	{
		ID:          "duplicates",
		Name:        "Duplicate Roster",
		Description: "Mahad batch with students sharing emails and phone numbers",
	},
	{
		ID:          "payment-health",
		Name:        "Payment Health",
		Description: "One Mahad student for every payment health label",
	},
}

func (h *Handler) scenarioLoader(id string) (func(context.Context) error, bool) {
	loaders := map[string]func(context.Context) error{
		"family":         h.loadFamilyScenario,
		"duplicates":     h.loadDuplicatesScenario,
		"payment-health": h.loadPaymentHealthScenario,
	}
	fn, ok := loaders[id]
	return fn, ok
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the most recently loaded scenario, or null.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	load, ok := h.scenarioLoader(req.ScenarioID)
	if !ok {
		h.writeError(w, r, domain.InvalidParameter("scenario_id", req.ScenarioID, "unknown scenario"))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := load(r.Context()); err != nil {
		h.writeError(w, r, fmt.Errorf("failed to load scenario %s: %w", req.ScenarioID, err))
		return
	}
	h.currentScenario = req.ScenarioID
	h.Logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID))

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadFamilyScenario(ctx context.Context) error {
	now := h.now()
	start := time.Date(now.Year(), time.September, 1, 0, 0, 0, 0, time.UTC)

	people := []domain.Person{
		scenarioPerson("fam-parent", "Amina Warsame", now, "amina.warsame@example.com", "612-555-0101"),
		scenarioPerson("fam-child-1", "Yusuf Warsame", now, "", ""),
		scenarioPerson("fam-child-2", "Hodan Warsame", now, "", ""),
		scenarioPerson("fam-teacher", "Abdirahman Ali", now, "abdirahman.ali@example.com", ""),
	}
	for _, p := range people {
		if err := h.Store.SavePerson(ctx, p); err != nil {
			return err
		}
	}

	for i, child := range []string{"fam-child-1", "fam-child-2"} {
		profile := domain.ProgramProfile{
			ID:          fmt.Sprintf("fam-profile-%d", i+1),
			PersonID:    child,
			Program:     domain.ProgramDugsi,
			MonthlyRate: 8000,
			Status:      domain.ProfileActive,
			CreatedAt:   now,
		}
		if err := h.Store.SaveProgramProfile(ctx, profile); err != nil {
			return err
		}
		if err := h.Store.SaveEnrollment(ctx, domain.Enrollment{
			ID:               fmt.Sprintf("fam-enrollment-%d", i+1),
			ProgramProfileID: profile.ID,
			Status:           domain.StatusEnrolled,
			StartDate:        start,
		}); err != nil {
			return err
		}
		if err := h.Store.SaveGuardianRelationship(ctx, domain.GuardianRelationship{
			ID:          fmt.Sprintf("fam-guardian-%d", i+1),
			GuardianID:  "fam-parent",
			DependentID: child,
			Role:        domain.RoleParent,
			IsActive:    true,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
	}

	if err := h.Store.SaveSiblingRelationship(ctx, domain.SiblingRelationship{
		ID:        "fam-siblings",
		Person1ID: "fam-child-1",
		Person2ID: "fam-child-2",
		IsActive:  true,
		CreatedAt: now,
	}); err != nil {
		return err
	}

	if err := h.Store.SaveTeacher(ctx, domain.Teacher{ID: "fam-teacher-1", PersonID: "fam-teacher", IsActive: true, CreatedAt: now}); err != nil {
		return err
	}
	if err := h.Store.SaveTeacherAssignment(ctx, domain.TeacherAssignment{
		ID:               "fam-assignment-1",
		ProgramProfileID: "fam-profile-1",
		TeacherID:        "fam-teacher-1",
		Shift:            domain.ShiftMorning,
		IsActive:         true,
		StartDate:        start,
	}); err != nil {
		return err
	}

	// 160.00 split evenly across both children.
	if err := h.Store.SaveSubscription(ctx, domain.Subscription{ID: "sub_family_warsame", Status: "active", Amount: 16000, CreatedAt: now}); err != nil {
		return err
	}
	for i := 1; i <= 2; i++ {
		if err := h.Store.SaveBillingAssignment(ctx, domain.BillingAssignment{
			ID:               fmt.Sprintf("fam-billing-%d", i),
			SubscriptionID:   "sub_family_warsame",
			ProgramProfileID: fmt.Sprintf("fam-profile-%d", i),
			Amount:           8000,
			IsActive:         true,
			CreatedAt:        now,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadDuplicatesScenario(ctx context.Context) error {
	now := h.now()
	batch := domain.Batch{
		ID:        "dup-batch",
		Name:      "Mahad Fall Cohort",
		Capacity:  40,
		StartDate: time.Date(now.Year(), time.September, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt: now,
	}
	if err := h.Store.SaveBatch(ctx, batch); err != nil {
		return err
	}

	fullTime := domain.BillingFullTime
	students := []domain.Student{
		// Same email with different casing; the one with a subscription is kept.
		{ID: "dup-1", Name: "Ibrahim Hassan", Email: strPtr("ibrahim.hassan@example.com"), BatchID: &batch.ID,
			Status: domain.StatusEnrolled, BillingType: &fullTime, CreatedAt: now.Add(-72 * time.Hour)},
		{ID: "dup-2", Name: "Ibrahim Hassan", Email: strPtr(" Ibrahim.Hassan@Example.com"), Phone: strPtr("(612) 555-0142"),
			BatchID: &batch.ID, SubscriptionID: strPtr("sub_dup_ibrahim"), SubscriptionStatus: strPtr("active"),
			Status: domain.StatusEnrolled, BillingType: &fullTime, CreatedAt: now.Add(-48 * time.Hour)},
		// Same phone in different formats.
		{ID: "dup-3", Name: "Fadumo Nur", Phone: strPtr("+1 763 555 0199"), BatchID: &batch.ID,
			Status: domain.StatusRegistered, CreatedAt: now.Add(-24 * time.Hour)},
		{ID: "dup-4", Name: "Fadumo Nur", Phone: strPtr("763.555.0199"), SchoolName: strPtr("Roosevelt High"),
			BatchID: &batch.ID, Status: domain.StatusRegistered, CreatedAt: now.Add(-12 * time.Hour)},
		// No duplicate.
		{ID: "dup-5", Name: "Khadar Omar", Email: strPtr("khadar.omar@example.com"), BatchID: &batch.ID,
			Status: domain.StatusEnrolled, CreatedAt: now},
	}
	return h.upsertStudents(ctx, students)
}

func (h *Handler) loadPaymentHealthScenario(ctx context.Context) error {
	now := h.now()
	batch := domain.Batch{
		ID:        "pay-batch",
		Name:      "Mahad Payment Review",
		Capacity:  20,
		StartDate: time.Date(now.Year(), time.January, 15, 0, 0, 0, 0, time.UTC),
		CreatedAt: now,
	}
	if err := h.Store.SaveBatch(ctx, batch); err != nil {
		return err
	}

	var (
		fullTime = domain.BillingFullTime
		exempt   = domain.BillingExempt
	)
	student := func(id, name string, status domain.EnrollmentStatus, billing *domain.BillingType, subStatus string, offset time.Duration) domain.Student {
		s := domain.Student{
			ID:          id,
			Name:        name,
			BatchID:     &batch.ID,
			Status:      status,
			BillingType: billing,
			CreatedAt:   now.Add(offset),
		}
		if subStatus != "" {
			s.SubscriptionID = strPtr("sub_" + id)
			s.SubscriptionStatus = strPtr(subStatus)
		}
		return s
	}

	students := []domain.Student{
		student("pay-pending", "Sahra Mohamed", domain.StatusRegistered, &fullTime, "", -6*time.Hour),
		student("pay-inactive", "Mustafa Abdi", domain.StatusWithdrawn, &fullTime, "canceled", -5*time.Hour),
		student("pay-exempt", "Nasra Farah", domain.StatusEnrolled, &exempt, "", -4*time.Hour),
		student("pay-needs-action", "Bashir Jama", domain.StatusEnrolled, &fullTime, "", -3*time.Hour),
		student("pay-healthy", "Ifrah Yusuf", domain.StatusEnrolled, &fullTime, "active", -2*time.Hour),
		student("pay-at-risk", "Liban Ahmed", domain.StatusEnrolled, &fullTime, "past_due", -1*time.Hour),
	}
	return h.upsertStudents(ctx, students)
}

// =============================================================================
// HELPERS
// =============================================================================

// upsertStudents saves new students and overwrites existing ones, then
// invalidates the rosters they belong to.
func (h *Handler) upsertStudents(ctx context.Context, students []domain.Student) error {
	batches := map[string]bool{}
	for _, s := range students {
		existing, err := h.Store.GetStudent(ctx, s.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			err = h.Store.UpdateStudent(ctx, s)
		} else {
			err = h.Store.SaveStudent(ctx, s)
		}
		if err != nil {
			return err
		}
		if s.BatchID != nil {
			batches[*s.BatchID] = true
		}
	}

	ids := make([]string, 0, len(batches))
	for id := range batches {
		ids = append(ids, id)
	}
	if err := h.Roster.InvalidateBatches(ctx, ids); err != nil {
		h.Logger.Warn("failed to invalidate scenario rosters", zap.Strings("batch_ids", ids), zap.Error(err))
	}
	return nil
}

func scenarioPerson(id, name string, createdAt time.Time, email, phone string) domain.Person {
	p := domain.Person{ID: id, Name: name, CreatedAt: createdAt}
	if email != "" {
		p.ContactPoints = append(p.ContactPoints, domain.ContactPoint{
			ID: id + "-email", PersonID: id, Type: domain.ContactEmail, Value: email, IsPrimary: true,
		})
	}
	if phone != "" {
		p.ContactPoints = append(p.ContactPoints, domain.ContactPoint{
			ID: id + "-phone", PersonID: id, Type: domain.ContactPhone, Value: phone, IsPrimary: true,
		})
	}
	return p
}

func strPtr(s string) *string { return &s }
