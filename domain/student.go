package domain

import "time"

// =============================================================================
// STUDENT - Flattened roster record
// =============================================================================

type BillingType string

const (
	BillingFullTime            BillingType = "FULL_TIME"
	BillingFullTimeScholarship BillingType = "FULL_TIME_SCHOLARSHIP"
	BillingPartTime            BillingType = "PART_TIME"
	BillingExempt              BillingType = "EXEMPT"
)

// Student is the roster view of a Mahad student. Duplicate detection and
// payment health both work on snapshots of these records.
type Student struct {
	ID                 string
	Name               string
	Email              *string
	Phone              *string
	DateOfBirth        *time.Time
	EducationLevel     *string
	GradeLevel         *string
	SchoolName         *string
	BatchID            *string
	SubscriptionID     *string
	SubscriptionStatus *string
	Status             EnrollmentStatus
	BillingType        *BillingType
	CreatedAt          time.Time
}

func (s Student) HasSubscription() bool { return s.SubscriptionID != nil }
func (s Student) HasBatch() bool        { return s.BatchID != nil }

// =============================================================================
// DUPLICATE GROUP - Derived, never persisted
// =============================================================================

type MatchType string

const (
	MatchEmail MatchType = "email"
	MatchPhone MatchType = "phone"
)

// DuplicateGroup is a set of students suspected to be the same person.
type DuplicateGroup struct {
	Key        string // "email:<normalized>" or "phone:<last 10 digits>"
	MatchType  MatchType
	Keep       Student
	Duplicates []Student
}

// Members returns the kept record followed by the duplicates.
func (g DuplicateGroup) Members() []Student {
	out := make([]Student, 0, len(g.Duplicates)+1)
	out = append(out, g.Keep)
	return append(out, g.Duplicates...)
}

// DuplicateIDs returns the ids of the records a resolution would delete.
func (g DuplicateGroup) DuplicateIDs() []string {
	ids := make([]string, len(g.Duplicates))
	for i, d := range g.Duplicates {
		ids[i] = d.ID
	}
	return ids
}
