/*
Package validation enforces program-specific business rules before a mutation
is persisted.

PURPOSE:
  Each Validate* method fetches the minimal current state it needs through a
  domain.Reader, checks one mutation's preconditions and returns nil (the
  mutation may proceed) or a *domain.ValidationError naming the rule that
  failed. The service never writes.

ORDERING:
  Every rule follows the same discipline:
  1. Parameter-shape and self-reference checks. No I/O.
  2. Existence checks (404-class), in a fixed order.
  3. Business-rule checks against current state (409-class).

ADVISORY RULES:
  Two conditions are logged at warn level instead of rejected:
  - Mahad enrollment without a batch (students may be unbatched transiently)
  - Billing assignments whose total exceeds the subscription amount
    (amounts are renegotiated often; billing edits are never hard-blocked)

CONCURRENCY:
  Stateless and request-scoped. Two requests can both pass a "no active
  duplicate" check; the store's unique constraints are the backstop.

SEE ALSO:
  - domain/errors.go: error codes and details
  - domain/store.go: Reader
  - api/handlers.go: calls these before each write
*/
package validation

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/enrollment-engine/domain"
)

// Service runs the business rules against a Reader.
type Service struct {
	Reader domain.Reader
	Logger *zap.Logger
}

// New returns a Service. A nil logger is replaced by a no-op logger.
func New(reader domain.Reader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Reader: reader, Logger: logger}
}

// =============================================================================
// INPUTS
// =============================================================================

type TeacherAssignmentInput struct {
	ProgramProfileID string
	TeacherID        string
	Shift            domain.Shift
}

// EnrollmentInput identifies the profile either by ProgramProfileID or, for
// a profile that does not exist yet, by Program.
type EnrollmentInput struct {
	ProgramProfileID *string
	Program          *domain.Program
	BatchID          *string
	Status           domain.EnrollmentStatus
}

type GuardianRelationshipInput struct {
	GuardianID  string
	DependentID string
	Role        domain.GuardianRole
}

type SiblingRelationshipInput struct {
	Person1ID string
	Person2ID string
}

type BillingAssignmentInput struct {
	SubscriptionID   string
	ProgramProfileID string
	Amount           domain.Cents
}

type TeacherCreationInput struct {
	PersonID string
}

func lookupFailed(what string, err error) error {
	return fmt.Errorf("failed to look up %s: %w", what, err)
}
