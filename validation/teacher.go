package validation

import (
	"context"
	"fmt"

	"github.com/warp/enrollment-engine/domain"
)

// ValidateTeacherAssignment checks that a Dugsi profile can be given a
// teacher for a shift.
func (s *Service) ValidateTeacherAssignment(ctx context.Context, in TeacherAssignmentInput) error {
	profile, err := s.Reader.GetProgramProfile(ctx, in.ProgramProfileID)
	if err != nil {
		return lookupFailed("program profile", err)
	}
	if profile == nil {
		return domain.NotFound(domain.EntityProfile, "program profile not found", in.ProgramProfileID)
	}

	if profile.Program != domain.ProgramDugsi {
		return domain.NewError(
			fmt.Sprintf("teacher assignments are only valid for Dugsi program profiles, got %s", profile.Program),
			domain.WrongProgramDetails{
				ProfileID: profile.ID,
				Program:   profile.Program,
				Expected:  domain.ProgramDugsi,
			},
		)
	}

	teacher, err := s.Reader.GetTeacher(ctx, in.TeacherID)
	if err != nil {
		return lookupFailed("teacher", err)
	}
	if teacher == nil {
		return domain.NotFound(domain.EntityTeacher, "teacher not found", in.TeacherID)
	}

	existing, err := s.Reader.FindActiveTeacherAssignment(ctx, in.ProgramProfileID, in.Shift)
	if err != nil {
		return lookupFailed("teacher assignment", err)
	}
	if existing != nil {
		return domain.NewError(
			fmt.Sprintf("student already has an active teacher assignment for the %s shift", in.Shift),
			domain.DuplicateShiftDetails{
				ProfileID:            in.ProgramProfileID,
				Shift:                in.Shift,
				ExistingAssignmentID: existing.ID,
			},
		)
	}

	return nil
}

// ValidateTeacherCreation checks that a person exists and is not already a
// teacher.
func (s *Service) ValidateTeacherCreation(ctx context.Context, in TeacherCreationInput) error {
	person, err := s.Reader.GetPerson(ctx, in.PersonID)
	if err != nil {
		return lookupFailed("person", err)
	}
	if person == nil {
		return domain.NotFound(domain.EntityPerson, "person not found", in.PersonID)
	}

	teacher, err := s.Reader.GetTeacherByPerson(ctx, in.PersonID)
	if err != nil {
		return lookupFailed("teacher", err)
	}
	if teacher != nil {
		return domain.NewError(
			fmt.Sprintf("%s is already a teacher", person.Name),
			domain.AlreadyExistsDetails{Entity: domain.EntityTeacher, ExistingID: teacher.ID},
		)
	}

	return nil
}
