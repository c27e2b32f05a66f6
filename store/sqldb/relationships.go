package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/warp/enrollment-engine/domain"
)

// =============================================================================
// GUARDIANS
// =============================================================================

func (s *Store) FindActiveGuardianRelationship(ctx context.Context, guardianID, dependentID string, role domain.GuardianRole) (*domain.GuardianRelationship, error) {
	var (
		r       domain.GuardianRelationship
		created string
	)
	err := s.queryRow(ctx, `
		SELECT id, guardian_id, dependent_id, role, is_active, created_at
		FROM guardian_relationships
		WHERE guardian_id = ? AND dependent_id = ? AND role = ? AND is_active = TRUE
		LIMIT 1
	`, guardianID, dependentID, role).Scan(&r.ID, &r.GuardianID, &r.DependentID, &r.Role, &r.IsActive, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find guardian relationship: %w", err)
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) SaveGuardianRelationship(ctx context.Context, r domain.GuardianRelationship) error {
	err := s.exec(ctx, `
		INSERT INTO guardian_relationships (id, guardian_id, dependent_id, role, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET is_active = excluded.is_active
	`, r.ID, r.GuardianID, r.DependentID, r.Role, r.IsActive, formatTime(r.CreatedAt))
	if isUniqueConstraintError(err) {
		return domain.NewError("guardian relationship already exists", domain.AlreadyExistsDetails{
			Entity: domain.EntityGuardianLink,
			Role:   r.Role,
		})
	}
	if err != nil {
		return fmt.Errorf("failed to save guardian relationship: %w", err)
	}
	return nil
}

// =============================================================================
// SIBLINGS
// =============================================================================

func (s *Store) FindSiblingRelationship(ctx context.Context, person1ID, person2ID string) (*domain.SiblingRelationship, error) {
	var (
		r       domain.SiblingRelationship
		created string
	)
	err := s.queryRow(ctx, `
		SELECT id, person1_id, person2_id, is_active, created_at
		FROM sibling_relationships
		WHERE person1_id = ? AND person2_id = ?
	`, person1ID, person2ID).Scan(&r.ID, &r.Person1ID, &r.Person2ID, &r.IsActive, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find sibling relationship: %w", err)
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveSiblingRelationship writes the normalized pair. An existing row for the
// pair keeps its id and takes the new active flag.
func (s *Store) SaveSiblingRelationship(ctx context.Context, r domain.SiblingRelationship) error {
	r.Person1ID, r.Person2ID = domain.NormalizePair(r.Person1ID, r.Person2ID)
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	err := s.exec(ctx, `
		INSERT INTO sibling_relationships (id, person1_id, person2_id, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (person1_id, person2_id) DO UPDATE SET is_active = excluded.is_active
	`, r.ID, r.Person1ID, r.Person2ID, r.IsActive, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save sibling relationship: %w", err)
	}
	return nil
}

// =============================================================================
// BILLING
// =============================================================================

func (s *Store) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	var (
		sub             domain.Subscription
		amount, created string
	)
	err := s.queryRow(ctx,
		`SELECT id, status, amount, created_at FROM subscriptions WHERE id = ?`, id,
	).Scan(&sub.ID, &sub.Status, &amount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription %s: %w", id, err)
	}
	if sub.Amount, err = parseCents(amount); err != nil {
		return nil, err
	}
	if sub.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Store) SaveSubscription(ctx context.Context, sub domain.Subscription) error {
	err := s.exec(ctx, `
		INSERT INTO subscriptions (id, status, amount, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			amount = excluded.amount
	`, sub.ID, sub.Status, sub.Amount.String(), formatTime(sub.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (s *Store) ListBillingAssignments(ctx context.Context, subscriptionID string) ([]domain.BillingAssignment, error) {
	rows, err := s.query(ctx, `
		SELECT id, subscription_id, program_profile_id, amount, is_active, created_at
		FROM billing_assignments
		WHERE subscription_id = ?
		ORDER BY id ASC
	`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query billing assignments: %w", err)
	}
	defer rows.Close()

	var out []domain.BillingAssignment
	for rows.Next() {
		var (
			a               domain.BillingAssignment
			amount, created string
		)
		if err := rows.Scan(&a.ID, &a.SubscriptionID, &a.ProgramProfileID, &amount, &a.IsActive, &created); err != nil {
			return nil, fmt.Errorf("failed to scan billing assignment: %w", err)
		}
		if a.Amount, err = parseCents(amount); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveBillingAssignment upserts by (subscription, profile). The existing
// row keeps its id.
func (s *Store) SaveBillingAssignment(ctx context.Context, a domain.BillingAssignment) error {
	err := s.exec(ctx, `
		INSERT INTO billing_assignments
		(id, subscription_id, program_profile_id, amount, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (subscription_id, program_profile_id) DO UPDATE SET
			amount = excluded.amount,
			is_active = excluded.is_active
	`, a.ID, a.SubscriptionID, a.ProgramProfileID, a.Amount.String(), a.IsActive, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save billing assignment: %w", err)
	}
	return nil
}
