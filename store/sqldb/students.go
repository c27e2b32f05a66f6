package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/enrollment-engine/domain"
)

// =============================================================================
// STUDENT STORE
// =============================================================================

const studentColumns = `
	id, name, email, phone, date_of_birth, education_level, grade_level,
	school_name, batch_id, subscription_id, subscription_status, status,
	billing_type, created_at`

func scanStudent(row rowScanner) (domain.Student, error) {
	var (
		st                              domain.Student
		email, phone, dob, edu, grade   sql.NullString
		school, batch, subID, subStatus sql.NullString
		billing                         sql.NullString
		created                         string
	)
	err := row.Scan(&st.ID, &st.Name, &email, &phone, &dob, &edu, &grade,
		&school, &batch, &subID, &subStatus, &st.Status, &billing, &created)
	if err != nil {
		return st, err
	}

	st.Email, st.Phone = stringPtr(email), stringPtr(phone)
	st.EducationLevel, st.GradeLevel, st.SchoolName = stringPtr(edu), stringPtr(grade), stringPtr(school)
	st.BatchID, st.SubscriptionID, st.SubscriptionStatus = stringPtr(batch), stringPtr(subID), stringPtr(subStatus)
	if billing.Valid {
		bt := domain.BillingType(billing.String)
		st.BillingType = &bt
	}
	if st.DateOfBirth, err = timePtr(dob); err != nil {
		return st, err
	}
	if st.CreatedAt, err = parseTime(created); err != nil {
		return st, err
	}
	return st, nil
}

func studentArgs(st domain.Student) []any {
	var billing sql.NullString
	if st.BillingType != nil {
		billing = sql.NullString{String: string(*st.BillingType), Valid: true}
	}
	return []any{
		st.ID, st.Name, nullString(st.Email), nullString(st.Phone), nullTime(st.DateOfBirth),
		nullString(st.EducationLevel), nullString(st.GradeLevel), nullString(st.SchoolName),
		nullString(st.BatchID), nullString(st.SubscriptionID), nullString(st.SubscriptionStatus),
		st.Status, billing, formatTime(st.CreatedAt),
	}
}

func (s *Store) listStudents(ctx context.Context, where string, args ...any) ([]domain.Student, error) {
	rows, err := s.query(ctx, `SELECT `+studentColumns+` FROM students `+where+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()

	var out []domain.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ListStudents returns every student ordered by creation time, then id.
func (s *Store) ListStudents(ctx context.Context) ([]domain.Student, error) {
	return s.listStudents(ctx, "")
}

func (s *Store) ListStudentsByBatch(ctx context.Context, batchID string) ([]domain.Student, error) {
	return s.listStudents(ctx, "WHERE batch_id = ?", batchID)
}

func (s *Store) GetStudent(ctx context.Context, id string) (*domain.Student, error) {
	st, err := scanStudent(s.queryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student %s: %w", id, err)
	}
	return &st, nil
}

func (s *Store) SaveStudent(ctx context.Context, st domain.Student) error {
	err := s.exec(ctx, `
		INSERT INTO students (`+studentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, studentArgs(st)...)
	if isUniqueConstraintError(err) {
		return domain.NewError("student already exists", domain.AlreadyExistsDetails{
			Entity:     domain.EntityStudent,
			ExistingID: st.ID,
		})
	}
	if err != nil {
		return fmt.Errorf("failed to save student: %w", err)
	}
	return nil
}

// UpdateStudent overwrites every column of an existing student.
func (s *Store) UpdateStudent(ctx context.Context, st domain.Student) error {
	args := studentArgs(st)
	res, err := s.q().ExecContext(ctx, s.rebind(`
		UPDATE students SET
			name = ?, email = ?, phone = ?, date_of_birth = ?, education_level = ?,
			grade_level = ?, school_name = ?, batch_id = ?, subscription_id = ?,
			subscription_status = ?, status = ?, billing_type = ?, created_at = ?
		WHERE id = ?
	`), append(args[1:], st.ID)...)
	if err != nil {
		return fmt.Errorf("failed to update student %s: %w", st.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update student %s: %w", st.ID, err)
	}
	if n == 0 {
		return domain.NotFound(domain.EntityStudent, "student not found", st.ID)
	}
	return nil
}

func (s *Store) DeleteStudents(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if err := s.exec(ctx, `DELETE FROM students WHERE id IN (`+placeholders(len(ids))+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete students: %w", err)
	}
	s.logger.Debug("deleted students", zap.Strings("ids", ids))
	return nil
}
