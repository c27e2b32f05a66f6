package validation

import (
	"context"

	"go.uber.org/zap"

	"github.com/warp/enrollment-engine/domain"
)

// BillingCheck is the reconciliation of a proposed billing assignment
// against its subscription.
type BillingCheck struct {
	Allocated     domain.Cents // other active assignments, excluding this profile
	Proposed      domain.Cents
	Total         domain.Cents
	Limit         domain.Cents // subscription amount
	OverAllocated bool
}

// ValidateBillingAssignment checks that the subscription and profile exist.
// Over-allocation is advisory: it is logged and never returned as an error.
func (s *Service) ValidateBillingAssignment(ctx context.Context, in BillingAssignmentInput) error {
	_, err := s.CheckBillingAssignment(ctx, in)
	return err
}

// CheckBillingAssignment runs the same rule as ValidateBillingAssignment and
// also returns the totals, so callers can surface the advisory.
func (s *Service) CheckBillingAssignment(ctx context.Context, in BillingAssignmentInput) (BillingCheck, error) {
	sub, err := s.Reader.GetSubscription(ctx, in.SubscriptionID)
	if err != nil {
		return BillingCheck{}, lookupFailed("subscription", err)
	}
	if sub == nil {
		return BillingCheck{}, domain.NotFound(domain.EntitySubscription, "subscription not found", in.SubscriptionID)
	}

	profile, err := s.Reader.GetProgramProfile(ctx, in.ProgramProfileID)
	if err != nil {
		return BillingCheck{}, lookupFailed("program profile", err)
	}
	if profile == nil {
		return BillingCheck{}, domain.NotFound(domain.EntityProfile, "program profile not found", in.ProgramProfileID)
	}

	assignments, err := s.Reader.ListBillingAssignments(ctx, in.SubscriptionID)
	if err != nil {
		return BillingCheck{}, lookupFailed("billing assignments", err)
	}

	check := BillingCheck{Proposed: in.Amount, Limit: sub.Amount}
	for _, a := range assignments {
		// The profile's own prior amount is being replaced, not added to.
		if !a.IsActive || a.ProgramProfileID == in.ProgramProfileID {
			continue
		}
		check.Allocated += a.Amount
	}
	check.Total = check.Allocated + check.Proposed
	check.OverAllocated = check.Total > check.Limit

	if check.OverAllocated {
		s.Logger.Warn("billing assignments exceed subscription amount",
			zap.String("subscription_id", sub.ID),
			zap.String("program_profile_id", in.ProgramProfileID),
			zap.String("total", check.Total.String()),
			zap.String("subscription_amount", check.Limit.String()),
			zap.String("over_by", (check.Total-check.Limit).String()),
		)
	}

	return check, nil
}
