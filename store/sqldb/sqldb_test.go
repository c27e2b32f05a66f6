package sqldb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/enrollment-engine/domain"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

var t0 = time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

// =============================================================================
// PEOPLE & PROFILES
// =============================================================================

func TestStore_PersonRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dob := time.Date(2006, 5, 17, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SavePerson(ctx, domain.Person{
		ID: "p-1", Name: "Amina Yusuf", DateOfBirth: &dob, CreatedAt: t0,
		ContactPoints: []domain.ContactPoint{
			{Type: domain.ContactEmail, Value: "Amina@Example.com", IsPrimary: true},
			{Type: domain.ContactPhone, Value: "612-555-0100"},
		},
	}))

	got, err := s.GetPerson(ctx, "p-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Amina Yusuf", got.Name)
	assert.True(t, dob.Equal(*got.DateOfBirth))
	assert.True(t, t0.Equal(got.CreatedAt))
	require.Len(t, got.ContactPoints, 2)
	assert.Equal(t, domain.ContactEmail, got.ContactPoints[0].Type)
	assert.NotEmpty(t, got.ContactPoints[0].ID)
	assert.True(t, got.ContactPoints[0].IsPrimary)

	byEmail, err := s.FindPersonByEmail(ctx, "amina@example.COM")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, "p-1", byEmail.ID)

	missing, err := s.GetPerson(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_SavePersonReplacesContacts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := domain.Person{ID: "p-1", Name: "A", CreatedAt: t0, ContactPoints: []domain.ContactPoint{
		{Type: domain.ContactEmail, Value: "old@x.com"},
	}}
	require.NoError(t, s.SavePerson(ctx, p))

	p.ContactPoints = []domain.ContactPoint{{Type: domain.ContactEmail, Value: "new@x.com"}}
	require.NoError(t, s.SavePerson(ctx, p))

	old, err := s.FindPersonByEmail(ctx, "old@x.com")
	require.NoError(t, err)
	assert.Nil(t, old)

	got, err := s.GetPerson(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, got.ContactPoints, 1)
	assert.Equal(t, "new@x.com", got.ContactPoints[0].Value)
}

func TestStore_ProfileAndBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveProgramProfile(ctx, domain.ProgramProfile{
		ID: "pp-1", PersonID: "p-1", Program: domain.ProgramMahad,
		GradeLevel: ptr("11"), MonthlyRate: 15050, Status: domain.ProfileActive, CreatedAt: t0,
	}))
	require.NoError(t, s.SaveBatch(ctx, domain.Batch{ID: "b-1", Name: "Fall", Capacity: 30, StartDate: t0, CreatedAt: t0}))

	pp, err := s.GetProgramProfile(ctx, "pp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ProgramMahad, pp.Program)
	assert.Equal(t, domain.Cents(15050), pp.MonthlyRate)
	assert.Equal(t, "11", *pp.GradeLevel)
	assert.Nil(t, pp.SchoolName)

	b, err := s.GetBatch(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, 30, b.Capacity)
	assert.Nil(t, b.EndDate)

	require.NoError(t, s.SaveEnrollment(ctx, domain.Enrollment{
		ID: "e-1", ProgramProfileID: "pp-1", BatchID: ptr("b-1"), Status: domain.StatusEnrolled, StartDate: t0,
	}))
}

// =============================================================================
// UNIQUENESS BACKSTOPS
// =============================================================================

func TestStore_ActiveShiftIsUnique(t *testing.T) {
	// GIVEN: An active MORNING assignment for pp-1
	// WHEN: Another active MORNING assignment is written directly
	// THEN: The partial unique index rejects it with DUPLICATE_SHIFT
	s := newTestStore(t)
	ctx := context.Background()
	a := domain.TeacherAssignment{ID: "ta-1", ProgramProfileID: "pp-1", TeacherID: "t-1",
		Shift: domain.ShiftMorning, IsActive: true, StartDate: t0}
	require.NoError(t, s.SaveTeacherAssignment(ctx, a))

	found, err := s.FindActiveTeacherAssignment(ctx, "pp-1", domain.ShiftMorning)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "ta-1", found.ID)

	dup := a
	dup.ID, dup.TeacherID = "ta-2", "t-2"
	err = s.SaveTeacherAssignment(ctx, dup)
	assert.True(t, errors.Is(err, domain.ErrDuplicateShift))

	// Deactivating the first frees the slot.
	a.IsActive = false
	require.NoError(t, s.SaveTeacherAssignment(ctx, a))
	require.NoError(t, s.SaveTeacherAssignment(ctx, dup))

	none, err := s.FindActiveTeacherAssignment(ctx, "pp-1", domain.ShiftEvening)
	assert.NoError(t, err)
	assert.Nil(t, none)
}

func TestStore_TeacherPerPersonIsUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveTeacher(ctx, domain.Teacher{ID: "t-1", PersonID: "p-1", IsActive: true, CreatedAt: t0}))

	got, err := s.GetTeacherByPerson(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "t-1", got.ID)

	err = s.SaveTeacher(ctx, domain.Teacher{ID: "t-2", PersonID: "p-1", IsActive: true, CreatedAt: t0})
	assert.Equal(t, domain.CodeAlreadyExists, domain.CodeOf(err))
}

func TestStore_GuardianActiveIsUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := domain.GuardianRelationship{ID: "g-1", GuardianID: "p-1", DependentID: "p-2",
		Role: domain.RoleParent, IsActive: true, CreatedAt: t0}
	require.NoError(t, s.SaveGuardianRelationship(ctx, r))

	found, err := s.FindActiveGuardianRelationship(ctx, "p-1", "p-2", domain.RoleParent)
	require.NoError(t, err)
	require.NotNil(t, found)

	other, err := s.FindActiveGuardianRelationship(ctx, "p-1", "p-2", domain.RoleSponsor)
	require.NoError(t, err)
	assert.Nil(t, other, "role is part of the key")

	r.ID = "g-2"
	err = s.SaveGuardianRelationship(ctx, r)
	assert.Equal(t, domain.CodeAlreadyExists, domain.CodeOf(err))
}

func TestStore_SiblingPairNormalizedAndReactivated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSiblingRelationship(ctx, domain.SiblingRelationship{
		ID: "s-1", Person1ID: "p-9", Person2ID: "p-2", IsActive: false, CreatedAt: t0,
	}))
	got, err := s.FindSiblingRelationship(ctx, "p-2", "p-9")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.IsActive)

	require.NoError(t, s.SaveSiblingRelationship(ctx, domain.SiblingRelationship{
		ID: "s-2", Person1ID: "p-2", Person2ID: "p-9", IsActive: true, CreatedAt: t0,
	}))
	got, err = s.FindSiblingRelationship(ctx, "p-2", "p-9")
	require.NoError(t, err)
	assert.Equal(t, "s-1", got.ID, "existing row reactivated")
	assert.True(t, got.IsActive)
}

// =============================================================================
// BILLING
// =============================================================================

func TestStore_BillingUpsertByProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveSubscription(ctx, domain.Subscription{ID: "sub-1", Status: "active", Amount: 30000, CreatedAt: t0}))
	require.NoError(t, s.SaveBillingAssignment(ctx, domain.BillingAssignment{
		ID: "ba-1", SubscriptionID: "sub-1", ProgramProfileID: "pp-1", Amount: 20000, IsActive: true, CreatedAt: t0,
	}))
	require.NoError(t, s.SaveBillingAssignment(ctx, domain.BillingAssignment{
		ID: "ba-2", SubscriptionID: "sub-1", ProgramProfileID: "pp-1", Amount: 12500, IsActive: true, CreatedAt: t0,
	}))

	sub, err := s.GetSubscription(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Cents(30000), sub.Amount)

	list, err := s.ListBillingAssignments(ctx, "sub-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ba-1", list[0].ID)
	assert.Equal(t, domain.Cents(12500), list[0].Amount)
}

// =============================================================================
// STUDENTS
// =============================================================================

func TestStore_StudentsOrderedAndFiltered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	exempt := domain.BillingExempt

	// Sub-second differences must still order correctly.
	require.NoError(t, s.SaveStudent(ctx, domain.Student{ID: "c", Name: "C", Status: domain.StatusEnrolled, CreatedAt: t0.Add(time.Second)}))
	require.NoError(t, s.SaveStudent(ctx, domain.Student{ID: "b", Name: "B", Status: domain.StatusEnrolled, CreatedAt: t0.Add(500 * time.Millisecond), BatchID: ptr("b-1")}))
	require.NoError(t, s.SaveStudent(ctx, domain.Student{ID: "a", Name: "A", Status: domain.StatusRegistered, CreatedAt: t0,
		BatchID: ptr("b-1"), Email: ptr("a@x.com"), BillingType: &exempt}))

	all, err := s.ListStudents(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, domain.BillingExempt, *all[0].BillingType)
	assert.Equal(t, "a@x.com", *all[0].Email)

	inBatch, err := s.ListStudentsByBatch(ctx, "b-1")
	require.NoError(t, err)
	assert.Len(t, inBatch, 2)

	err = s.SaveStudent(ctx, domain.Student{ID: "a", Name: "again", Status: domain.StatusEnrolled, CreatedAt: t0})
	assert.Equal(t, domain.CodeAlreadyExists, domain.CodeOf(err))
}

func TestStore_UpdateAndDeleteStudents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	st := domain.Student{ID: "a", Name: "A", Status: domain.StatusEnrolled, CreatedAt: t0}
	require.NoError(t, s.SaveStudent(ctx, st))
	require.NoError(t, s.SaveStudent(ctx, domain.Student{ID: "b", Name: "B", Status: domain.StatusEnrolled, CreatedAt: t0}))

	st.Phone = ptr("6125550100")
	require.NoError(t, s.UpdateStudent(ctx, st))
	got, err := s.GetStudent(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "6125550100", *got.Phone)

	err = s.UpdateStudent(ctx, domain.Student{ID: "ghost", Name: "G", CreatedAt: t0})
	assert.True(t, domain.IsNotFound(err))

	require.NoError(t, s.DeleteStudents(ctx, []string{"a", "b", "unknown"}))
	all, err := s.ListStudents(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_WithTxRollsBack(t *testing.T) {
	// GIVEN: Two students
	// WHEN: A transaction deletes one and then fails
	// THEN: Both students are still present
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveStudent(ctx, domain.Student{ID: "a", Name: "A", Status: domain.StatusEnrolled, CreatedAt: t0}))
	require.NoError(t, s.SaveStudent(ctx, domain.Student{ID: "b", Name: "B", Status: domain.StatusEnrolled, CreatedAt: t0}))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx domain.StudentStore) error {
		if err := tx.DeleteStudents(ctx, []string{"a"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	all, err := s.ListStudents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.WithTx(ctx, func(tx domain.StudentStore) error {
		return tx.DeleteStudents(ctx, []string{"a"})
	}))
	all, err = s.ListStudents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// =============================================================================
// PLUMBING
// =============================================================================

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("SQLite")
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d)

	d, err = ParseDialect("postgresql")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)

	_, err = ParseDialect("mysql")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: DialectPostgres}
	lite := &Store{dialect: DialectSQLite}
	q := "SELECT 1 FROM t WHERE a = ? AND b IN (?, ?)"

	assert.Equal(t, "SELECT 1 FROM t WHERE a = $1 AND b IN ($2, $3)", pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}

func TestFormatTimeSortsLexically(t *testing.T) {
	a := formatTime(t0)
	b := formatTime(t0.Add(time.Millisecond))
	assert.Less(t, a, b)

	back, err := parseTime(b)
	require.NoError(t, err)
	assert.True(t, t0.Add(time.Millisecond).Equal(back))
}
