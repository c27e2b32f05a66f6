package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/enrollment-engine/domain"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Store) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewWithDB(db, DialectPostgres, zap.NewNop())
}

var studentRowColumns = []string{
	"id", "name", "email", "phone", "date_of_birth", "education_level", "grade_level",
	"school_name", "batch_id", "subscription_id", "subscription_status", "status",
	"billing_type", "created_at",
}

func TestPostgres_GetStudent(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows(studentRowColumns).AddRow(
		"s-1", "Hodan", "hodan@x.com", nil, nil, nil, nil,
		nil, "b-1", "sub_1", "past_due", "ENROLLED",
		"FULL_TIME", "2024-09-01T08:00:00.000000000Z",
	)
	mock.ExpectQuery(`SELECT .* FROM students WHERE id = \$1`).
		WithArgs("s-1").
		WillReturnRows(rows)

	st, err := s.GetStudent(context.Background(), "s-1")

	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "hodan@x.com", *st.Email)
	assert.Nil(t, st.Phone)
	assert.Equal(t, "past_due", *st.SubscriptionStatus)
	assert.Equal(t, domain.StatusEnrolled, st.Status)
	assert.Equal(t, domain.BillingFullTime, *st.BillingType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetStudent_NotFound(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM students WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	st, err := s.GetStudent(context.Background(), "ghost")

	assert.NoError(t, err)
	assert.Nil(t, st)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_QueryErrorIsWrapped(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM batches WHERE id = \$1`).
		WithArgs("b-1").
		WillReturnError(errors.New("connection reset"))

	_, err := s.GetBatch(context.Background(), "b-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get batch b-1")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UniqueViolationMapsToDuplicateShift(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO teacher_assignments`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "idx_assignments_active_shift"})

	err := s.SaveTeacherAssignment(context.Background(), domain.TeacherAssignment{
		ID: "ta-2", ProgramProfileID: "pp-1", TeacherID: "t-2", Shift: domain.ShiftEvening, IsActive: true,
	})

	assert.Equal(t, domain.CodeDuplicateShift, domain.CodeOf(err))
	details := domain.DetailsOf(err).(domain.DuplicateShiftDetails)
	assert.Equal(t, domain.ShiftEvening, details.Shift)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteStudentsInTx(t *testing.T) {
	// GIVEN: A transaction deleting two students
	// WHEN: It succeeds
	// THEN: Placeholders are rebound and the transaction commits
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM students WHERE id IN \(\$1, \$2\)`).
		WithArgs("d-1", "d-2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(tx domain.StudentStore) error {
		return tx.DeleteStudents(context.Background(), []string{"d-1", "d-2"})
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_WithTxRollsBackOnError(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE students SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(tx domain.StudentStore) error {
		return tx.UpdateStudent(context.Background(), domain.Student{ID: "ghost", Name: "G"})
	})

	assert.True(t, domain.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListBillingAssignments(t *testing.T) {
	db, mock, s := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "subscription_id", "program_profile_id", "amount", "is_active", "created_at"}).
		AddRow("ba-1", "sub-1", "pp-1", "150.00", true, "2024-09-01T08:00:00.000000000Z").
		AddRow("ba-2", "sub-1", "pp-2", "99.99", false, "2024-09-02T08:00:00.000000000Z")
	mock.ExpectQuery(`FROM billing_assignments\s+WHERE subscription_id = \$1`).
		WithArgs("sub-1").
		WillReturnRows(rows)

	list, err := s.ListBillingAssignments(context.Background(), "sub-1")

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.Cents(15000), list[0].Amount)
	assert.Equal(t, domain.Cents(9999), list[1].Amount)
	assert.False(t, list[1].IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}
