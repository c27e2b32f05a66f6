/*
errors.go - Centralized error types for business-rule validation

PURPOSE:
  Every rule failure surfaces as one structured type, *ValidationError,
  carrying a machine-checkable Code, a human message and a Details payload.
  Details is a closed set: one struct per code, each holding only the fields
  relevant to that failure, so callers can switch exhaustively instead of
  poking at an untyped bag.

ERROR CATEGORIES:
  1. NOT_FOUND          - referenced entity does not exist (404-class)
  2. WRONG_PROGRAM      - operation valid for the other program only
  3. DUPLICATE_SHIFT    - active teacher assignment for (profile, shift) exists
  4. SELF_REFERENCE     - relationship whose two sides are the same person
  5. ALREADY_EXISTS     - active duplicate of a unique relationship/record
  6. REQUIRED_PARAMETER - not enough input to resolve the subject
  7. INVALID_PARAMETER  - input present but contradictory

USAGE:
  if err := svc.ValidateGuardianRelationship(ctx, in); err != nil {
      switch d := domain.DetailsOf(err).(type) {
      case domain.SelfReferenceDetails:
          ...
      case domain.NotFoundDetails:
          ...
      }
  }

  errors.Is(err, domain.ErrNotFound) also works.

SEE ALSO:
  - validation/: raises these errors
  - api/handlers.go: maps codes to HTTP status
*/
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// CODES
// =============================================================================

type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodeWrongProgram      Code = "WRONG_PROGRAM"
	CodeDuplicateShift    Code = "DUPLICATE_SHIFT"
	CodeSelfReference     Code = "SELF_REFERENCE"
	CodeAlreadyExists     Code = "ALREADY_EXISTS"
	CodeRequiredParameter Code = "REQUIRED_PARAMETER"
	CodeInvalidParameter  Code = "INVALID_PARAMETER"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound          = errors.New("not found")
	ErrWrongProgram      = errors.New("wrong program")
	ErrDuplicateShift    = errors.New("duplicate shift")
	ErrSelfReference     = errors.New("self reference")
	ErrAlreadyExists     = errors.New("already exists")
	ErrRequiredParameter = errors.New("required parameter missing")
	ErrInvalidParameter  = errors.New("invalid parameter")
)

var sentinels = map[Code]error{
	CodeNotFound:          ErrNotFound,
	CodeWrongProgram:      ErrWrongProgram,
	CodeDuplicateShift:    ErrDuplicateShift,
	CodeSelfReference:     ErrSelfReference,
	CodeAlreadyExists:     ErrAlreadyExists,
	CodeRequiredParameter: ErrRequiredParameter,
	CodeInvalidParameter:  ErrInvalidParameter,
}

// =============================================================================
// DETAILS - One variant per code
// =============================================================================

// Details is implemented only by the variants below.
type Details interface {
	code() Code
}

type EntityKind string

const (
	EntityPerson       EntityKind = "person"
	EntityProfile      EntityKind = "program_profile"
	EntityBatch        EntityKind = "batch"
	EntityTeacher      EntityKind = "teacher"
	EntitySubscription EntityKind = "subscription"
	EntityStudent      EntityKind = "student"
	EntityGuardian     EntityKind = "guardian"
	EntityDependent    EntityKind = "dependent"
	EntityGuardianLink EntityKind = "guardian_relationship"
	EntitySiblingLink  EntityKind = "sibling_relationship"
)

// NotFoundDetails names the missing entity. IDs holds more than one id only
// when the rule deliberately does not say which side is missing.
type NotFoundDetails struct {
	Entity EntityKind `json:"entity"`
	IDs    []string   `json:"ids"`
}

type WrongProgramDetails struct {
	ProfileID string  `json:"profile_id,omitempty"`
	Program   Program `json:"program"`
	Expected  Program `json:"expected,omitempty"`
	BatchID   string  `json:"batch_id,omitempty"`
}

type DuplicateShiftDetails struct {
	ProfileID            string `json:"profile_id"`
	Shift                Shift  `json:"shift"`
	ExistingAssignmentID string `json:"existing_assignment_id"`
}

type SelfReferenceDetails struct {
	Relationship EntityKind `json:"relationship"`
	PersonID     string     `json:"person_id"`
}

type AlreadyExistsDetails struct {
	Entity     EntityKind   `json:"entity"`
	ExistingID string       `json:"existing_id"`
	Role       GuardianRole `json:"role,omitempty"`
}

type RequiredParameterDetails struct {
	Parameters []string `json:"parameters"`
}

type InvalidParameterDetails struct {
	Parameter string `json:"parameter"`
	Value     string `json:"value"`
}

func (NotFoundDetails) code() Code          { return CodeNotFound }
func (WrongProgramDetails) code() Code      { return CodeWrongProgram }
func (DuplicateShiftDetails) code() Code    { return CodeDuplicateShift }
func (SelfReferenceDetails) code() Code     { return CodeSelfReference }
func (AlreadyExistsDetails) code() Code     { return CodeAlreadyExists }
func (RequiredParameterDetails) code() Code { return CodeRequiredParameter }
func (InvalidParameterDetails) code() Code  { return CodeInvalidParameter }

// =============================================================================
// VALIDATION ERROR
// =============================================================================

// ValidationError is the single error type raised by business rules.
type ValidationError struct {
	Code    Code
	Message string
	Details Details
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return sentinels[e.Code]
}

// NewError builds a ValidationError whose code is taken from the details.
func NewError(message string, d Details) *ValidationError {
	return &ValidationError{Code: d.code(), Message: message, Details: d}
}

func NotFound(entity EntityKind, message string, ids ...string) *ValidationError {
	return NewError(message, NotFoundDetails{Entity: entity, IDs: ids})
}

func RequiredParameter(message string, params ...string) *ValidationError {
	return NewError(message, RequiredParameterDetails{Parameters: params})
}

func InvalidParameter(param, value, message string) *ValidationError {
	return NewError(message, InvalidParameterDetails{Parameter: param, Value: value})
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// AsValidationError extracts a *ValidationError from err's chain.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// CodeOf returns the validation code of err, or "" for other errors.
func CodeOf(err error) Code {
	if ve, ok := AsValidationError(err); ok {
		return ve.Code
	}
	return ""
}

// DetailsOf returns the typed details of err, or nil.
func DetailsOf(err error) Details {
	if ve, ok := AsValidationError(err); ok {
		return ve.Details
	}
	return nil
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true for business-rule violations against current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrWrongProgram) ||
		errors.Is(err, ErrDuplicateShift) ||
		errors.Is(err, ErrAlreadyExists)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrSelfReference) ||
		errors.Is(err, ErrRequiredParameter) ||
		errors.Is(err, ErrInvalidParameter)
}

// quoteIDs renders ids for messages: "a", "b".
func quoteIDs(ids []string) string {
	q := make([]string, len(ids))
	for i, id := range ids {
		q[i] = fmt.Sprintf("%q", id)
	}
	return strings.Join(q, ", ")
}

// String renders the details for log lines.
func (d NotFoundDetails) String() string {
	return fmt.Sprintf("%s %s", d.Entity, quoteIDs(d.IDs))
}
