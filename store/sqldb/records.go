package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/enrollment-engine/domain"
)

// =============================================================================
// PERSONS
// =============================================================================

func (s *Store) GetPerson(ctx context.Context, id string) (*domain.Person, error) {
	var (
		p         domain.Person
		dob       sql.NullString
		createdAt string
	)
	err := s.queryRow(ctx,
		`SELECT id, name, date_of_birth, created_at FROM persons WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &dob, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person %s: %w", id, err)
	}

	if p.DateOfBirth, err = timePtr(dob); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.ContactPoints, err = s.contactPoints(ctx, p.ID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) contactPoints(ctx context.Context, personID string) ([]domain.ContactPoint, error) {
	rows, err := s.query(ctx, `
		SELECT id, person_id, type, value, is_primary
		FROM contact_points
		WHERE person_id = ?
		ORDER BY position ASC
	`, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contact points: %w", err)
	}
	defer rows.Close()

	var out []domain.ContactPoint
	for rows.Next() {
		var cp domain.ContactPoint
		if err := rows.Scan(&cp.ID, &cp.PersonID, &cp.Type, &cp.Value, &cp.IsPrimary); err != nil {
			return nil, fmt.Errorf("failed to scan contact point: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *Store) FindPersonByEmail(ctx context.Context, email string) (*domain.Person, error) {
	var personID string
	err := s.queryRow(ctx, `
		SELECT person_id FROM contact_points
		WHERE type = 'EMAIL' AND LOWER(value) = LOWER(?)
		ORDER BY person_id ASC
		LIMIT 1
	`, email).Scan(&personID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find person by email: %w", err)
	}
	return s.GetPerson(ctx, personID)
}

// SavePerson upserts the person and replaces their contact points.
func (s *Store) SavePerson(ctx context.Context, p domain.Person) error {
	return s.inTx(ctx, func(tx *Store) error {
		err := tx.exec(ctx, `
			INSERT INTO persons (id, name, date_of_birth, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name,
				date_of_birth = excluded.date_of_birth
		`, p.ID, p.Name, nullTime(p.DateOfBirth), formatTime(p.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to save person: %w", err)
		}

		if err := tx.exec(ctx, `DELETE FROM contact_points WHERE person_id = ?`, p.ID); err != nil {
			return fmt.Errorf("failed to clear contact points: %w", err)
		}
		for i, cp := range p.ContactPoints {
			if cp.ID == "" {
				cp.ID = uuid.NewString()
			}
			err := tx.exec(ctx, `
				INSERT INTO contact_points (id, person_id, position, type, value, is_primary)
				VALUES (?, ?, ?, ?, ?, ?)
			`, cp.ID, p.ID, i, cp.Type, cp.Value, cp.IsPrimary)
			if err != nil {
				return fmt.Errorf("failed to save contact point: %w", err)
			}
		}
		return nil
	})
}

// =============================================================================
// PROGRAM PROFILES
// =============================================================================

func (s *Store) GetProgramProfile(ctx context.Context, id string) (*domain.ProgramProfile, error) {
	var (
		p                      domain.ProgramProfile
		edu, grade, school     sql.NullString
		monthlyRate, createdAt string
	)
	err := s.queryRow(ctx, `
		SELECT id, person_id, program, education_level, grade_level, school_name,
		       monthly_rate, custom_rate, status, created_at
		FROM program_profiles WHERE id = ?
	`, id).Scan(&p.ID, &p.PersonID, &p.Program, &edu, &grade, &school,
		&monthlyRate, &p.CustomRate, &p.Status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get program profile %s: %w", id, err)
	}

	p.EducationLevel, p.GradeLevel, p.SchoolName = stringPtr(edu), stringPtr(grade), stringPtr(school)
	if p.MonthlyRate, err = parseCents(monthlyRate); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) SaveProgramProfile(ctx context.Context, p domain.ProgramProfile) error {
	err := s.exec(ctx, `
		INSERT INTO program_profiles
		(id, person_id, program, education_level, grade_level, school_name,
		 monthly_rate, custom_rate, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			education_level = excluded.education_level,
			grade_level = excluded.grade_level,
			school_name = excluded.school_name,
			monthly_rate = excluded.monthly_rate,
			custom_rate = excluded.custom_rate,
			status = excluded.status
	`, p.ID, p.PersonID, p.Program, nullString(p.EducationLevel), nullString(p.GradeLevel),
		nullString(p.SchoolName), p.MonthlyRate.String(), p.CustomRate, p.Status, formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save program profile: %w", err)
	}
	return nil
}

// =============================================================================
// BATCHES & ENROLLMENTS
// =============================================================================

func (s *Store) GetBatch(ctx context.Context, id string) (*domain.Batch, error) {
	var (
		b              domain.Batch
		start, created string
		end            sql.NullString
	)
	err := s.queryRow(ctx, `
		SELECT id, name, capacity, start_date, end_date, created_at
		FROM batches WHERE id = ?
	`, id).Scan(&b.ID, &b.Name, &b.Capacity, &start, &end, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch %s: %w", id, err)
	}

	if b.StartDate, err = parseTime(start); err != nil {
		return nil, err
	}
	if b.EndDate, err = timePtr(end); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) SaveBatch(ctx context.Context, b domain.Batch) error {
	err := s.exec(ctx, `
		INSERT INTO batches (id, name, capacity, start_date, end_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			capacity = excluded.capacity,
			start_date = excluded.start_date,
			end_date = excluded.end_date
	`, b.ID, b.Name, b.Capacity, formatTime(b.StartDate), nullTime(b.EndDate), formatTime(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

func (s *Store) SaveEnrollment(ctx context.Context, e domain.Enrollment) error {
	err := s.exec(ctx, `
		INSERT INTO enrollments (id, program_profile_id, batch_id, status, start_date, end_date)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			batch_id = excluded.batch_id,
			status = excluded.status,
			end_date = excluded.end_date
	`, e.ID, e.ProgramProfileID, nullString(e.BatchID), e.Status, formatTime(e.StartDate), nullTime(e.EndDate))
	if err != nil {
		return fmt.Errorf("failed to save enrollment: %w", err)
	}
	return nil
}

// =============================================================================
// TEACHERS
// =============================================================================

const teacherColumns = `id, person_id, is_active, created_at`

func scanTeacher(row rowScanner) (*domain.Teacher, error) {
	var (
		t       domain.Teacher
		created string
	)
	if err := row.Scan(&t.ID, &t.PersonID, &t.IsActive, &created); err != nil {
		return nil, err
	}
	var err error
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) GetTeacher(ctx context.Context, id string) (*domain.Teacher, error) {
	t, err := scanTeacher(s.queryRow(ctx, `SELECT `+teacherColumns+` FROM teachers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get teacher %s: %w", id, err)
	}
	return t, nil
}

func (s *Store) GetTeacherByPerson(ctx context.Context, personID string) (*domain.Teacher, error) {
	t, err := scanTeacher(s.queryRow(ctx, `SELECT `+teacherColumns+` FROM teachers WHERE person_id = ?`, personID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get teacher for person %s: %w", personID, err)
	}
	return t, nil
}

func (s *Store) SaveTeacher(ctx context.Context, t domain.Teacher) error {
	err := s.exec(ctx, `
		INSERT INTO teachers (id, person_id, is_active, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET is_active = excluded.is_active
	`, t.ID, t.PersonID, t.IsActive, formatTime(t.CreatedAt))
	if isUniqueConstraintError(err) {
		return domain.NewError("person is already a teacher", domain.AlreadyExistsDetails{
			Entity: domain.EntityTeacher,
		})
	}
	if err != nil {
		return fmt.Errorf("failed to save teacher: %w", err)
	}
	return nil
}

func (s *Store) FindActiveTeacherAssignment(ctx context.Context, profileID string, shift domain.Shift) (*domain.TeacherAssignment, error) {
	var (
		a     domain.TeacherAssignment
		start string
		end   sql.NullString
	)
	err := s.queryRow(ctx, `
		SELECT id, program_profile_id, teacher_id, shift, is_active, start_date, end_date
		FROM teacher_assignments
		WHERE program_profile_id = ? AND shift = ? AND is_active = TRUE
		ORDER BY id ASC
		LIMIT 1
	`, profileID, shift).Scan(&a.ID, &a.ProgramProfileID, &a.TeacherID, &a.Shift, &a.IsActive, &start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find teacher assignment: %w", err)
	}

	if a.StartDate, err = parseTime(start); err != nil {
		return nil, err
	}
	if a.EndDate, err = timePtr(end); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) SaveTeacherAssignment(ctx context.Context, a domain.TeacherAssignment) error {
	err := s.exec(ctx, `
		INSERT INTO teacher_assignments
		(id, program_profile_id, teacher_id, shift, is_active, start_date, end_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			is_active = excluded.is_active,
			end_date = excluded.end_date
	`, a.ID, a.ProgramProfileID, a.TeacherID, a.Shift, a.IsActive, formatTime(a.StartDate), nullTime(a.EndDate))
	if isUniqueConstraintError(err) {
		return domain.NewError("an active teacher is already assigned to this shift", domain.DuplicateShiftDetails{
			ProfileID: a.ProgramProfileID,
			Shift:     a.Shift,
		})
	}
	if err != nil {
		return fmt.Errorf("failed to save teacher assignment: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func parseCents(v string) (domain.Cents, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", v, err)
	}
	return domain.CentsFromDecimal(d), nil
}
