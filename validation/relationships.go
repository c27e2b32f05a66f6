package validation

import (
	"context"
	"fmt"

	"github.com/warp/enrollment-engine/domain"
)

// ValidateGuardianRelationship checks a directed guardian -> dependent edge.
// Guardian and dependent are looked up separately so the error says which
// side is missing.
func (s *Service) ValidateGuardianRelationship(ctx context.Context, in GuardianRelationshipInput) error {
	if in.GuardianID == in.DependentID {
		return domain.NewError(
			"a person cannot be their own guardian",
			domain.SelfReferenceDetails{Relationship: domain.EntityGuardianLink, PersonID: in.GuardianID},
		)
	}

	guardian, err := s.Reader.GetPerson(ctx, in.GuardianID)
	if err != nil {
		return lookupFailed("guardian", err)
	}
	if guardian == nil {
		return domain.NotFound(domain.EntityGuardian, "guardian not found", in.GuardianID)
	}

	dependent, err := s.Reader.GetPerson(ctx, in.DependentID)
	if err != nil {
		return lookupFailed("dependent", err)
	}
	if dependent == nil {
		return domain.NotFound(domain.EntityDependent, "dependent not found", in.DependentID)
	}

	existing, err := s.Reader.FindActiveGuardianRelationship(ctx, in.GuardianID, in.DependentID, in.Role)
	if err != nil {
		return lookupFailed("guardian relationship", err)
	}
	if existing != nil {
		return domain.NewError(
			fmt.Sprintf("an active %s relationship already exists between this guardian and dependent", in.Role),
			domain.AlreadyExistsDetails{
				Entity:     domain.EntityGuardianLink,
				ExistingID: existing.ID,
				Role:       in.Role,
			},
		)
	}

	return nil
}

// ValidateSiblingRelationship checks an unordered sibling pair. (a, b) and
// (b, a) behave identically. A missing person is reported without saying
// which one; an inactive prior relationship does not block re-creation.
func (s *Service) ValidateSiblingRelationship(ctx context.Context, in SiblingRelationshipInput) error {
	if in.Person1ID == in.Person2ID {
		return domain.NewError(
			"a person cannot be their own sibling",
			domain.SelfReferenceDetails{Relationship: domain.EntitySiblingLink, PersonID: in.Person1ID},
		)
	}

	p1, p2 := domain.NormalizePair(in.Person1ID, in.Person2ID)

	first, err := s.Reader.GetPerson(ctx, p1)
	if err != nil {
		return lookupFailed("person", err)
	}
	second, err := s.Reader.GetPerson(ctx, p2)
	if err != nil {
		return lookupFailed("person", err)
	}
	if first == nil || second == nil {
		return domain.NotFound(domain.EntityPerson, "one or both persons not found", p1, p2)
	}

	existing, err := s.Reader.FindSiblingRelationship(ctx, p1, p2)
	if err != nil {
		return lookupFailed("sibling relationship", err)
	}
	if existing != nil && existing.IsActive {
		return domain.NewError(
			"sibling relationship already exists",
			domain.AlreadyExistsDetails{Entity: domain.EntitySiblingLink, ExistingID: existing.ID},
		)
	}

	return nil
}
