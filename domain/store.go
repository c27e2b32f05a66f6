/*
store.go - Persistence interfaces consumed by the rules and duplicate layers

PURPOSE:
  Defines the boundary between domain logic and the database. The
  validation layer only reads; writes happen after validation passes,
  through Writer. Duplicate resolution needs transactional deletes, so
  StudentStore has a TxStudentStore companion.

LOOKUP CONTRACT:
  Get* / Find* methods return (nil, nil) when no row matches. An error means
  the lookup itself failed (connection, scan, context cancelled).

UNIQUENESS:
  The rules check "no active duplicate" before a write, but two requests
  can race past the check. Implementations back the invariants with their
  own constraints (store/sqldb uses partial unique indexes):
  - one active teacher assignment per (profile, shift)
  - one active guardian relationship per (guardian, dependent, role)
  - one active sibling relationship per normalized pair

IMPLEMENTATIONS:
  - store/sqldb: SQLite and PostgreSQL via database/sql
  - domain/store: in-memory, for tests and demos

SEE ALSO:
  - validation/service.go: Reader consumer
  - duplicates/resolve.go: TxStudentStore consumer
*/
package domain

import "context"

// =============================================================================
// READERS - Everything the validation layer looks up
// =============================================================================

type PersonReader interface {
	GetPerson(ctx context.Context, id string) (*Person, error)

	// FindPersonByEmail matches any EMAIL contact point, case-insensitively.
	FindPersonByEmail(ctx context.Context, email string) (*Person, error)
}

type ProfileReader interface {
	GetProgramProfile(ctx context.Context, id string) (*ProgramProfile, error)
}

type BatchReader interface {
	GetBatch(ctx context.Context, id string) (*Batch, error)
}

type TeacherReader interface {
	GetTeacher(ctx context.Context, id string) (*Teacher, error)
	GetTeacherByPerson(ctx context.Context, personID string) (*Teacher, error)
}

type TeacherAssignmentReader interface {
	FindActiveTeacherAssignment(ctx context.Context, profileID string, shift Shift) (*TeacherAssignment, error)
}

type RelationshipReader interface {
	FindActiveGuardianRelationship(ctx context.Context, guardianID, dependentID string, role GuardianRole) (*GuardianRelationship, error)

	// FindSiblingRelationship returns the relationship for the pair, active or
	// not. Callers pass the pair through NormalizePair first.
	FindSiblingRelationship(ctx context.Context, person1ID, person2ID string) (*SiblingRelationship, error)
}

type BillingReader interface {
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	ListBillingAssignments(ctx context.Context, subscriptionID string) ([]BillingAssignment, error)
}

// Reader is the full read surface of the validation layer.
type Reader interface {
	PersonReader
	ProfileReader
	BatchReader
	TeacherReader
	TeacherAssignmentReader
	RelationshipReader
	BillingReader
}

// =============================================================================
// WRITER - Persists records after validation
// =============================================================================

type Writer interface {
	SavePerson(ctx context.Context, p Person) error
	SaveProgramProfile(ctx context.Context, p ProgramProfile) error
	SaveBatch(ctx context.Context, b Batch) error
	SaveEnrollment(ctx context.Context, e Enrollment) error
	SaveTeacher(ctx context.Context, t Teacher) error
	SaveTeacherAssignment(ctx context.Context, a TeacherAssignment) error
	SaveGuardianRelationship(ctx context.Context, r GuardianRelationship) error

	// SaveSiblingRelationship normalizes the pair before writing. Saving a pair
	// that has an inactive row reactivates it.
	SaveSiblingRelationship(ctx context.Context, r SiblingRelationship) error
	SaveSubscription(ctx context.Context, s Subscription) error

	// SaveBillingAssignment upserts by (subscription, profile).
	SaveBillingAssignment(ctx context.Context, a BillingAssignment) error
}

// =============================================================================
// STUDENT STORE - Roster records for duplicates and payment health
// =============================================================================

type StudentStore interface {
	ListStudents(ctx context.Context) ([]Student, error)
	ListStudentsByBatch(ctx context.Context, batchID string) ([]Student, error)
	GetStudent(ctx context.Context, id string) (*Student, error)
	SaveStudent(ctx context.Context, s Student) error
	UpdateStudent(ctx context.Context, s Student) error
	DeleteStudents(ctx context.Context, ids []string) error
}

// TxStudentStore runs fn atomically. If fn returns an error nothing it wrote
// is kept.
type TxStudentStore interface {
	StudentStore
	WithTx(ctx context.Context, fn func(StudentStore) error) error
}

// Store is everything the HTTP layer needs.
type Store interface {
	Reader
	Writer
	TxStudentStore
}
