/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario sets up the expected state and that loading a
	scenario twice leaves the same state behind.
*/
package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/enrollment-engine/domain"
	"github.com/warp/enrollment-engine/payments"
)

func TestScenario_Family(t *testing.T) {
	// GIVEN: Family scenario
	// WHEN: Loading the scenario
	// THEN: Guardian, sibling, teacher and billing records exist
	h, _, mem := newTestServer(t, nil)
	ctx := context.Background()

	require.NoError(t, h.loadFamilyScenario(ctx))

	for _, child := range []string{"fam-child-1", "fam-child-2"} {
		rel, err := mem.FindActiveGuardianRelationship(ctx, "fam-parent", child, domain.RoleParent)
		require.NoError(t, err)
		assert.NotNil(t, rel, child)
	}

	sib, err := mem.FindSiblingRelationship(ctx, "fam-child-1", "fam-child-2")
	require.NoError(t, err)
	require.NotNil(t, sib)
	assert.True(t, sib.IsActive)

	a, err := mem.FindActiveTeacherAssignment(ctx, "fam-profile-1", domain.ShiftMorning)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "fam-teacher-1", a.TeacherID)

	assignments, err := mem.ListBillingAssignments(ctx, "sub_family_warsame")
	require.NoError(t, err)
	var total domain.Cents
	for _, b := range assignments {
		total += b.Amount
	}
	assert.Len(t, assignments, 2)
	assert.Equal(t, domain.Cents(16000), total)

	// The parent's email is indexed for lookups.
	parent, err := mem.FindPersonByEmail(ctx, "AMINA.WARSAME@example.com")
	require.NoError(t, err)
	require.NotNil(t, parent)
	assert.Equal(t, "fam-parent", parent.ID)
}

func TestScenario_FamilyRulesStillApply(t *testing.T) {
	// GIVEN: The family scenario
	h, srv, _ := newTestServer(t, nil)
	require.NoError(t, h.loadFamilyScenario(context.Background()))

	// WHEN: Assigning another teacher to the already covered morning shift
	rec := doJSON(t, srv, http.MethodPost, "/api/teacher-assignments", map[string]any{
		"program_profile_id": "fam-profile-1", "teacher_id": "fam-teacher-1", "shift": "MORNING",
	})

	// THEN: DUPLICATE_SHIFT
	requireError(t, rec, http.StatusConflict, domain.CodeDuplicateShift)
}

func TestScenario_PaymentHealth(t *testing.T) {
	h, _, mem := newTestServer(t, nil)
	ctx := context.Background()

	require.NoError(t, h.loadPaymentHealthScenario(ctx))

	expected := map[string]payments.Health{
		"pay-pending":      payments.HealthPending,
		"pay-inactive":     payments.HealthInactive,
		"pay-exempt":       payments.HealthExempt,
		"pay-needs-action": payments.HealthNeedsAction,
		"pay-healthy":      payments.HealthHealthy,
		"pay-at-risk":      payments.HealthAtRisk,
	}
	for id, want := range expected {
		s, err := mem.GetStudent(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, s, id)
		assert.Equal(t, want, payments.ForStudent(*s), id)
	}
}

func TestScenario_LoadIsIdempotent(t *testing.T) {
	// GIVEN: Every scenario
	// WHEN: Loading each twice through the API
	// THEN: Both loads succeed and the roster does not grow
	_, srv, mem := newTestServer(t, nil)
	ctx := context.Background()

	for _, s := range scenarios {
		rec := doJSON(t, srv, http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": s.ID})
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", s.ID, rec.Body.String())
	}
	first, err := mem.ListStudents(ctx)
	require.NoError(t, err)

	for _, s := range scenarios {
		rec := doJSON(t, srv, http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": s.ID})
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", s.ID, rec.Body.String())
	}
	second, err := mem.ListStudents(ctx)
	require.NoError(t, err)

	assert.Len(t, second, len(first))
	assert.Len(t, first, 11)
}

func TestScenarioEndpoints(t *testing.T) {
	_, srv, _ := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]ScenarioDTO](t, rec), len(scenarios))

	rec = doJSON(t, srv, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))

	rec = doJSON(t, srv, http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": "nope"})
	body := requireError(t, rec, http.StatusBadRequest, domain.CodeInvalidParameter)
	assert.Equal(t, "scenario_id", body.Details["parameter"])

	rec = doJSON(t, srv, http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": "duplicates"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "duplicates", decodeBody[ScenarioDTO](t, rec).ID)
}
