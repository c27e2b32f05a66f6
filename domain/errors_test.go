package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/enrollment-engine/domain"
)

func TestValidationError_CodeComesFromDetails(t *testing.T) {
	cases := []struct {
		details domain.Details
		code    domain.Code
		is      error
	}{
		{domain.NotFoundDetails{Entity: domain.EntityBatch, IDs: []string{"b"}}, domain.CodeNotFound, domain.ErrNotFound},
		{domain.WrongProgramDetails{Program: domain.ProgramMahad}, domain.CodeWrongProgram, domain.ErrWrongProgram},
		{domain.DuplicateShiftDetails{Shift: domain.ShiftMorning}, domain.CodeDuplicateShift, domain.ErrDuplicateShift},
		{domain.SelfReferenceDetails{PersonID: "p"}, domain.CodeSelfReference, domain.ErrSelfReference},
		{domain.AlreadyExistsDetails{ExistingID: "x"}, domain.CodeAlreadyExists, domain.ErrAlreadyExists},
		{domain.RequiredParameterDetails{Parameters: []string{"a"}}, domain.CodeRequiredParameter, domain.ErrRequiredParameter},
		{domain.InvalidParameterDetails{Parameter: "keepId"}, domain.CodeInvalidParameter, domain.ErrInvalidParameter},
	}

	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			err := domain.NewError("boom", tc.details)

			assert.Equal(t, tc.code, err.Code)
			assert.ErrorIs(t, err, tc.is)
			assert.Equal(t, fmt.Sprintf("%s: boom", tc.code), err.Error())
		})
	}
}

func TestErrorHelpers_SeeThroughWrapping(t *testing.T) {
	base := domain.NotFound(domain.EntityPerson, "person not found", "p-1")
	wrapped := fmt.Errorf("create teacher: %w", base)

	ve, ok := domain.AsValidationError(wrapped)
	require.True(t, ok)
	assert.Same(t, base, ve)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(wrapped))
	assert.True(t, domain.IsNotFound(wrapped))
	assert.False(t, domain.IsConflict(wrapped))
	assert.Equal(t, `person "p-1"`, domain.DetailsOf(wrapped).(domain.NotFoundDetails).String())
}

func TestErrorHelpers_Classification(t *testing.T) {
	conflict := domain.NewError("dup", domain.DuplicateShiftDetails{})
	client := domain.RequiredParameter("missing", "program")
	plain := errors.New("db down")

	assert.True(t, domain.IsConflict(conflict))
	assert.False(t, domain.IsClientError(conflict))
	assert.True(t, domain.IsClientError(client))
	assert.False(t, domain.IsNotFound(plain))
	assert.Equal(t, domain.Code(""), domain.CodeOf(plain))
	assert.Nil(t, domain.DetailsOf(plain))
}
