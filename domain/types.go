/*
Package domain provides the core records and rules vocabulary of the enrollment engine.

PURPOSE:
  This package contains the types every other package speaks: people and
  their contact points, program profiles for the two tracks (Mahad and
  Dugsi), batches, teachers and their shift assignments, guardian and
  sibling relationships, subscriptions and billing assignments, and the
  flattened Student roster record used by duplicate detection and payment
  health.

KEY CONCEPTS IN THIS FILE (types.go):
  - Program: MAHAD_PROGRAM or DUGSI_PROGRAM, fixed for a profile's lifetime
  - Cents: money in integer minor units, rendered through decimal.Decimal
  - Relationships: guardian edges are directed, sibling edges are unordered
    and always stored as a normalized pair (see NormalizePair)

DESIGN PRINCIPLES:
  1. The domain owns no storage. Persistence lives behind store.go interfaces.
  2. Optional columns are pointers, so "unset" and "empty" never collide.
  3. Money never touches float64.

SEE ALSO:
  - errors.go: ValidationError and its per-code details
  - store.go: Reader / Writer interfaces
  - student.go: Student roster record and derived DuplicateGroup
*/
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PROGRAMS
// =============================================================================

type Program string

const (
	ProgramMahad Program = "MAHAD_PROGRAM"
	ProgramDugsi Program = "DUGSI_PROGRAM"
)

func (p Program) Valid() bool {
	return p == ProgramMahad || p == ProgramDugsi
}

// =============================================================================
// MONEY
// =============================================================================

// Cents is an amount in minor currency units.
type Cents int64

// Decimal returns the amount in major units (12345 -> 123.45).
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

func (c Cents) String() string { return c.Decimal().StringFixed(2) }

// CentsFromDecimal rounds a major-unit amount to the nearest cent.
func CentsFromDecimal(d decimal.Decimal) Cents {
	return Cents(d.Shift(2).Round(0).IntPart())
}

// =============================================================================
// PEOPLE
// =============================================================================

type ContactType string

const (
	ContactEmail ContactType = "EMAIL"
	ContactPhone ContactType = "PHONE"
)

type ContactPoint struct {
	ID        string
	PersonID  string
	Type      ContactType
	Value     string
	IsPrimary bool
}

type Person struct {
	ID            string
	Name          string
	DateOfBirth   *time.Time
	ContactPoints []ContactPoint
	CreatedAt     time.Time
}

// PrimaryContact returns the primary contact of the given type, falling back
// to the first contact of that type.
func (p Person) PrimaryContact(t ContactType) (ContactPoint, bool) {
	var (
		first ContactPoint
		found bool
	)
	for _, cp := range p.ContactPoints {
		if cp.Type != t {
			continue
		}
		if cp.IsPrimary {
			return cp, true
		}
		if !found {
			first, found = cp, true
		}
	}
	return first, found
}

// =============================================================================
// PROGRAM PROFILES, BATCHES, ENROLLMENTS
// =============================================================================

type ProfileStatus string

const (
	ProfileActive   ProfileStatus = "ACTIVE"
	ProfileInactive ProfileStatus = "INACTIVE"
)

// ProgramProfile is a person's enrollment record in exactly one program.
type ProgramProfile struct {
	ID             string
	PersonID       string
	Program        Program
	EducationLevel *string
	GradeLevel     *string
	SchoolName     *string
	MonthlyRate    Cents
	CustomRate     bool
	Status         ProfileStatus
	CreatedAt      time.Time
}

// Batch is a Mahad cohort. Dugsi has no batch concept.
type Batch struct {
	ID        string
	Name      string
	Capacity  int
	StartDate time.Time
	EndDate   *time.Time
	CreatedAt time.Time
}

// IsActive reports whether the batch window contains at.
func (b Batch) IsActive(at time.Time) bool {
	if at.Before(b.StartDate) {
		return false
	}
	return b.EndDate == nil || !at.After(*b.EndDate)
}

type EnrollmentStatus string

const (
	StatusRegistered EnrollmentStatus = "REGISTERED"
	StatusEnrolled   EnrollmentStatus = "ENROLLED"
	StatusOnLeave    EnrollmentStatus = "ON_LEAVE"
	StatusWithdrawn  EnrollmentStatus = "WITHDRAWN"
	StatusCompleted  EnrollmentStatus = "COMPLETED"
)

type Enrollment struct {
	ID               string
	ProgramProfileID string
	BatchID          *string
	Status           EnrollmentStatus
	StartDate        time.Time
	EndDate          *time.Time
}

// =============================================================================
// TEACHERS
// =============================================================================

type Shift string

const (
	ShiftMorning   Shift = "MORNING"
	ShiftAfternoon Shift = "AFTERNOON"
	ShiftEvening   Shift = "EVENING"
)

type Teacher struct {
	ID        string
	PersonID  string
	IsActive  bool
	CreatedAt time.Time
}

// TeacherAssignment links a Dugsi profile to a teacher for one shift.
// At most one active assignment may exist per (profile, shift).
type TeacherAssignment struct {
	ID               string
	ProgramProfileID string
	TeacherID        string
	Shift            Shift
	IsActive         bool
	StartDate        time.Time
	EndDate          *time.Time
}

// =============================================================================
// RELATIONSHIPS
// =============================================================================

type GuardianRole string

const (
	RoleParent        GuardianRole = "PARENT"
	RoleLegalGuardian GuardianRole = "LEGAL_GUARDIAN"
	RoleSponsor       GuardianRole = "SPONSOR"
)

// GuardianRelationship is a directed edge guardian -> dependent.
type GuardianRelationship struct {
	ID          string
	GuardianID  string
	DependentID string
	Role        GuardianRole
	IsActive    bool
	CreatedAt   time.Time
}

// SiblingRelationship is an undirected edge. Person1ID < Person2ID always.
type SiblingRelationship struct {
	ID        string
	Person1ID string
	Person2ID string
	IsActive  bool
	CreatedAt time.Time
}

// NormalizePair orders two person ids so an unordered pair has one key.
func NormalizePair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// =============================================================================
// BILLING
// =============================================================================

type Subscription struct {
	ID        string
	Status    string // provider status: active, trialing, past_due, canceled...
	Amount    Cents
	CreatedAt time.Time
}

// BillingAssignment allocates part of a subscription's amount to one profile.
type BillingAssignment struct {
	ID               string
	SubscriptionID   string
	ProgramProfileID string
	Amount           Cents
	IsActive         bool
	CreatedAt        time.Time
}
