package validation

import (
	"context"

	"go.uber.org/zap"

	"github.com/warp/enrollment-engine/domain"
)

// ValidateEnrollment checks program/batch compatibility for an enrollment.
//
// Dugsi enrollments never carry a batch. A Mahad enrollment without one is
// allowed but logged.
func (s *Service) ValidateEnrollment(ctx context.Context, in EnrollmentInput) error {
	if in.ProgramProfileID == nil && in.Program == nil {
		return domain.RequiredParameter(
			"either program profile id or program is required",
			"programProfileId", "program",
		)
	}

	var (
		program   domain.Program
		profileID string
	)
	if in.ProgramProfileID != nil {
		profileID = *in.ProgramProfileID
		profile, err := s.Reader.GetProgramProfile(ctx, profileID)
		if err != nil {
			return lookupFailed("program profile", err)
		}
		if profile == nil {
			return domain.NotFound(domain.EntityProfile, "program profile not found", profileID)
		}
		program = profile.Program
	} else {
		program = *in.Program
	}

	if program == domain.ProgramDugsi && in.BatchID != nil {
		return domain.NewError(
			"Dugsi enrollments cannot be assigned to a batch",
			domain.WrongProgramDetails{
				ProfileID: profileID,
				Program:   program,
				Expected:  domain.ProgramMahad,
				BatchID:   *in.BatchID,
			},
		)
	}

	if program == domain.ProgramMahad && in.BatchID == nil {
		s.Logger.Warn("mahad enrollment without batch",
			zap.String("program_profile_id", profileID),
			zap.String("status", string(in.Status)),
		)
	}

	if in.BatchID != nil {
		batch, err := s.Reader.GetBatch(ctx, *in.BatchID)
		if err != nil {
			return lookupFailed("batch", err)
		}
		if batch == nil {
			return domain.NotFound(domain.EntityBatch, "batch not found", *in.BatchID)
		}
	}

	return nil
}
