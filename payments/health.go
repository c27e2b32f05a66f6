/*
Package payments derives the payment-health label shown on dashboards.

PRECEDENCE (first match wins):
  1. status REGISTERED             -> pending
  2. status not ENROLLED           -> inactive
  3. billing type EXEMPT           -> exempt
  4. no subscription               -> needs_action
  5. subscription active/trialing  -> healthy
  6. subscription past_due         -> at_risk
  7. anything else                 -> needs_action

  Billing type is checked before subscription presence, so an exempt
  student without a subscription is "exempt", not "needs_action".
*/
package payments

import (
	"strings"

	"github.com/warp/enrollment-engine/domain"
)

type Health string

const (
	HealthPending     Health = "pending"
	HealthInactive    Health = "inactive"
	HealthExempt      Health = "exempt"
	HealthNeedsAction Health = "needs_action"
	HealthHealthy     Health = "healthy"
	HealthAtRisk      Health = "at_risk"
)

// All lists every label in display order.
var All = []Health{HealthHealthy, HealthAtRisk, HealthNeedsAction, HealthPending, HealthExempt, HealthInactive}

// SubscriptionState is the part of a subscription health depends on.
type SubscriptionState struct {
	Status string
}

type HealthInput struct {
	Status       domain.EnrollmentStatus
	BillingType  *domain.BillingType
	Subscription *SubscriptionState
}

// CalculatePaymentHealth applies the precedence chain above.
func CalculatePaymentHealth(in HealthInput) Health {
	if in.Status == domain.StatusRegistered {
		return HealthPending
	}
	if in.Status != domain.StatusEnrolled {
		return HealthInactive
	}
	if in.BillingType != nil && *in.BillingType == domain.BillingExempt {
		return HealthExempt
	}
	if in.Subscription == nil {
		return HealthNeedsAction
	}

	switch strings.ToLower(in.Subscription.Status) {
	case "active", "trialing":
		return HealthHealthy
	case "past_due":
		return HealthAtRisk
	default:
		return HealthNeedsAction
	}
}

// ForStudent derives health from a roster record. A student has a
// subscription when SubscriptionID is set.
func ForStudent(s domain.Student) Health {
	in := HealthInput{Status: s.Status, BillingType: s.BillingType}
	if s.SubscriptionID != nil {
		st := SubscriptionState{}
		if s.SubscriptionStatus != nil {
			st.Status = *s.SubscriptionStatus
		}
		in.Subscription = &st
	}
	return CalculatePaymentHealth(in)
}

// Summary counts students per label.
type Summary struct {
	Total  int            `json:"total"`
	Counts map[Health]int `json:"counts"`
}

// Summarize counts every label, including zeros.
func Summarize(students []domain.Student) Summary {
	s := Summary{Counts: make(map[Health]int, len(All))}
	for _, h := range All {
		s.Counts[h] = 0
	}
	for _, st := range students {
		s.Counts[ForStudent(st)]++
		s.Total++
	}
	return s
}
