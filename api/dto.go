/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the domain
  records (which carry no JSON tags) from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags. Failures are mapped to
  REQUIRED_PARAMETER ("required" tags) or INVALID_PARAMETER (everything
  else) before any business rule runs. Field names in errors are the JSON
  names.

MONEY:
  Amounts cross the wire as decimal major units ("150.00") and are stored
  as domain.Cents.

SEE ALSO:
  - handlers.go, students.go: Use these types
  - domain/types.go: Domain records
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/enrollment-engine/domain"
	"github.com/warp/enrollment-engine/payments"
	"github.com/warp/enrollment-engine/validation"
)

// =============================================================================
// PEOPLE
// =============================================================================

type CreatePersonRequest struct {
	Name        string  `json:"name" validate:"required"`
	DateOfBirth *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Phone       *string `json:"phone" validate:"omitempty,min=7"`
}

type ContactPointDTO struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Value     string `json:"value"`
	IsPrimary bool   `json:"is_primary"`
}

type PersonDTO struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	DateOfBirth   *string           `json:"date_of_birth,omitempty"`
	ContactPoints []ContactPointDTO `json:"contact_points"`
	CreatedAt     time.Time         `json:"created_at"`
}

func toPersonDTO(p domain.Person) PersonDTO {
	dto := PersonDTO{
		ID:            p.ID,
		Name:          p.Name,
		DateOfBirth:   formatDate(p.DateOfBirth),
		ContactPoints: make([]ContactPointDTO, len(p.ContactPoints)),
		CreatedAt:     p.CreatedAt,
	}
	for i, cp := range p.ContactPoints {
		dto.ContactPoints[i] = ContactPointDTO{ID: cp.ID, Type: string(cp.Type), Value: cp.Value, IsPrimary: cp.IsPrimary}
	}
	return dto
}

// =============================================================================
// PROGRAMS
// =============================================================================

type CreateProfileRequest struct {
	PersonID       string          `json:"person_id" validate:"required"`
	Program        string          `json:"program" validate:"required,oneof=MAHAD_PROGRAM DUGSI_PROGRAM"`
	EducationLevel *string         `json:"education_level"`
	GradeLevel     *string         `json:"grade_level"`
	SchoolName     *string         `json:"school_name"`
	MonthlyRate    decimal.Decimal `json:"monthly_rate"`
	CustomRate     bool            `json:"custom_rate"`
}

type ProfileDTO struct {
	ID             string          `json:"id"`
	PersonID       string          `json:"person_id"`
	Program        string          `json:"program"`
	EducationLevel *string         `json:"education_level,omitempty"`
	GradeLevel     *string         `json:"grade_level,omitempty"`
	SchoolName     *string         `json:"school_name,omitempty"`
	MonthlyRate    decimal.Decimal `json:"monthly_rate"`
	CustomRate     bool            `json:"custom_rate"`
	Status         string          `json:"status"`
}

func toProfileDTO(p domain.ProgramProfile) ProfileDTO {
	return ProfileDTO{
		ID:             p.ID,
		PersonID:       p.PersonID,
		Program:        string(p.Program),
		EducationLevel: p.EducationLevel,
		GradeLevel:     p.GradeLevel,
		SchoolName:     p.SchoolName,
		MonthlyRate:    p.MonthlyRate.Decimal(),
		CustomRate:     p.CustomRate,
		Status:         string(p.Status),
	}
}

type CreateBatchRequest struct {
	Name      string  `json:"name" validate:"required"`
	Capacity  int     `json:"capacity" validate:"gte=0"`
	StartDate string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

type BatchDTO struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Capacity  int     `json:"capacity"`
	StartDate string  `json:"start_date"`
	EndDate   *string `json:"end_date,omitempty"`
}

func toBatchDTO(b domain.Batch) BatchDTO {
	return BatchDTO{
		ID:        b.ID,
		Name:      b.Name,
		Capacity:  b.Capacity,
		StartDate: b.StartDate.Format(dateLayout),
		EndDate:   formatDate(b.EndDate),
	}
}

// CreateEnrollmentRequest enrolls an existing profile, or creates the
// profile first when only person_id and program are given.
type CreateEnrollmentRequest struct {
	ProgramProfileID *string `json:"program_profile_id"`
	PersonID         *string `json:"person_id"`
	Program          *string `json:"program" validate:"omitempty,oneof=MAHAD_PROGRAM DUGSI_PROGRAM"`
	BatchID          *string `json:"batch_id"`
	Status           string  `json:"status" validate:"omitempty,oneof=REGISTERED ENROLLED ON_LEAVE WITHDRAWN COMPLETED"`
	StartDate        *string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
}

type EnrollmentDTO struct {
	ID               string  `json:"id"`
	ProgramProfileID string  `json:"program_profile_id"`
	BatchID          *string `json:"batch_id,omitempty"`
	Status           string  `json:"status"`
	StartDate        string  `json:"start_date"`
}

// =============================================================================
// TEACHERS
// =============================================================================

type CreateTeacherRequest struct {
	PersonID string `json:"person_id" validate:"required"`
}

type TeacherDTO struct {
	ID       string `json:"id"`
	PersonID string `json:"person_id"`
	IsActive bool   `json:"is_active"`
}

type CreateTeacherAssignmentRequest struct {
	ProgramProfileID string `json:"program_profile_id" validate:"required"`
	TeacherID        string `json:"teacher_id" validate:"required"`
	Shift            string `json:"shift" validate:"required,oneof=MORNING AFTERNOON EVENING"`
}

type TeacherAssignmentDTO struct {
	ID               string `json:"id"`
	ProgramProfileID string `json:"program_profile_id"`
	TeacherID        string `json:"teacher_id"`
	Shift            string `json:"shift"`
	IsActive         bool   `json:"is_active"`
	StartDate        string `json:"start_date"`
}

// =============================================================================
// RELATIONSHIPS
// =============================================================================

type CreateGuardianRelationshipRequest struct {
	GuardianID  string `json:"guardian_id" validate:"required"`
	DependentID string `json:"dependent_id" validate:"required"`
	Role        string `json:"role" validate:"required,oneof=PARENT LEGAL_GUARDIAN SPONSOR"`
}

type GuardianRelationshipDTO struct {
	ID          string `json:"id"`
	GuardianID  string `json:"guardian_id"`
	DependentID string `json:"dependent_id"`
	Role        string `json:"role"`
	IsActive    bool   `json:"is_active"`
}

type CreateSiblingRelationshipRequest struct {
	Person1ID string `json:"person1_id" validate:"required"`
	Person2ID string `json:"person2_id" validate:"required"`
}

type SiblingRelationshipDTO struct {
	ID        string `json:"id"`
	Person1ID string `json:"person1_id"`
	Person2ID string `json:"person2_id"`
	IsActive  bool   `json:"is_active"`
}

// =============================================================================
// BILLING
// =============================================================================

type CreateSubscriptionRequest struct {
	ID     string          `json:"id"` // provider id; generated when empty
	Status string          `json:"status" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

type SubscriptionDTO struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
}

type CreateBillingAssignmentRequest struct {
	SubscriptionID   string          `json:"subscription_id" validate:"required"`
	ProgramProfileID string          `json:"program_profile_id" validate:"required"`
	Amount           decimal.Decimal `json:"amount"`
}

// BillingAssignmentDTO carries the advisory over-allocation result next to
// the saved assignment.
type BillingAssignmentDTO struct {
	ID                 string          `json:"id"`
	SubscriptionID     string          `json:"subscription_id"`
	ProgramProfileID   string          `json:"program_profile_id"`
	Amount             decimal.Decimal `json:"amount"`
	IsActive           bool            `json:"is_active"`
	TotalAllocated     decimal.Decimal `json:"total_allocated"`
	SubscriptionAmount decimal.Decimal `json:"subscription_amount"`
	OverAllocated      bool            `json:"over_allocated"`
}

func toBillingAssignmentDTO(a domain.BillingAssignment, check validation.BillingCheck) BillingAssignmentDTO {
	return BillingAssignmentDTO{
		ID:                 a.ID,
		SubscriptionID:     a.SubscriptionID,
		ProgramProfileID:   a.ProgramProfileID,
		Amount:             a.Amount.Decimal(),
		IsActive:           a.IsActive,
		TotalAllocated:     check.Total.Decimal(),
		SubscriptionAmount: check.Limit.Decimal(),
		OverAllocated:      check.OverAllocated,
	}
}

// =============================================================================
// STUDENTS
// =============================================================================

type CreateStudentRequest struct {
	Name               string  `json:"name" validate:"required"`
	Email              *string `json:"email" validate:"omitempty,email"`
	Phone              *string `json:"phone"`
	DateOfBirth        *string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	EducationLevel     *string `json:"education_level"`
	GradeLevel         *string `json:"grade_level"`
	SchoolName         *string `json:"school_name"`
	BatchID            *string `json:"batch_id"`
	SubscriptionID     *string `json:"subscription_id"`
	SubscriptionStatus *string `json:"subscription_status"`
	Status             string  `json:"status" validate:"omitempty,oneof=REGISTERED ENROLLED ON_LEAVE WITHDRAWN COMPLETED"`
	BillingType        *string `json:"billing_type" validate:"omitempty,oneof=FULL_TIME FULL_TIME_SCHOLARSHIP PART_TIME EXEMPT"`
}

type StudentDTO struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Email              *string         `json:"email,omitempty"`
	Phone              *string         `json:"phone,omitempty"`
	DateOfBirth        *string         `json:"date_of_birth,omitempty"`
	EducationLevel     *string         `json:"education_level,omitempty"`
	GradeLevel         *string         `json:"grade_level,omitempty"`
	SchoolName         *string         `json:"school_name,omitempty"`
	BatchID            *string         `json:"batch_id,omitempty"`
	SubscriptionID     *string         `json:"subscription_id,omitempty"`
	SubscriptionStatus *string         `json:"subscription_status,omitempty"`
	Status             string          `json:"status"`
	BillingType        *string         `json:"billing_type,omitempty"`
	PaymentHealth      payments.Health `json:"payment_health"`
	CreatedAt          time.Time       `json:"created_at"`
}

func toStudentDTO(s domain.Student) StudentDTO {
	dto := StudentDTO{
		ID:                 s.ID,
		Name:               s.Name,
		Email:              s.Email,
		Phone:              s.Phone,
		DateOfBirth:        formatDate(s.DateOfBirth),
		EducationLevel:     s.EducationLevel,
		GradeLevel:         s.GradeLevel,
		SchoolName:         s.SchoolName,
		BatchID:            s.BatchID,
		SubscriptionID:     s.SubscriptionID,
		SubscriptionStatus: s.SubscriptionStatus,
		Status:             string(s.Status),
		PaymentHealth:      payments.ForStudent(s),
		CreatedAt:          s.CreatedAt,
	}
	if s.BillingType != nil {
		bt := string(*s.BillingType)
		dto.BillingType = &bt
	}
	return dto
}

func toStudentDTOs(students []domain.Student) []StudentDTO {
	out := make([]StudentDTO, len(students))
	for i, s := range students {
		out[i] = toStudentDTO(s)
	}
	return out
}

type PaymentHealthDTO struct {
	StudentID string          `json:"student_id"`
	Health    payments.Health `json:"health"`
}

// =============================================================================
// DUPLICATES
// =============================================================================

type DuplicateGroupDTO struct {
	Key        string       `json:"key"`
	MatchType  string       `json:"match_type"`
	Keep       StudentDTO   `json:"keep"`
	Duplicates []StudentDTO `json:"duplicates"`
}

type ResolveDuplicatesRequest struct {
	KeepID    string   `json:"keep_id" validate:"required"`
	DeleteIDs []string `json:"delete_ids"`
	MergeData bool     `json:"merge_data"`
}

type BatchResolveRequest struct {
	Groups []ResolveDuplicatesRequest `json:"groups" validate:"required,dive"`
}

type ResolveDuplicatesResponse struct {
	KeepID       string   `json:"keep_id"`
	DeletedIDs   []string `json:"deleted_ids"`
	MergedFields []string `json:"merged_fields"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// HELPERS
// =============================================================================

const dateLayout = "2006-01-02"

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

// parseDate parses an optional YYYY-MM-DD value already checked by the
// validator.
func parseDate(v *string) *time.Time {
	if v == nil {
		return nil
	}
	t, err := time.Parse(dateLayout, *v)
	if err != nil {
		return nil
	}
	return &t
}
