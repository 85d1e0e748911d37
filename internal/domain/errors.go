package domain

import (
	"errors"
	"fmt"
)

// ErrNotFoundOrForbidden is returned when a receipt does not exist or is not
// owned by the requester. The two cases are deliberately indistinguishable.
var ErrNotFoundOrForbidden = errors.New("receipt not found or not authorized")

// ErrNoData is returned when an operation needs stored expenses and there are none.
var ErrNoData = errors.New("no expenses found for this user")

// InputValidationError reports caller input that cannot be used.
type InputValidationError struct {
	Field  string
	Reason string
}

func (e *InputValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// NewInputValidationError builds an InputValidationError.
func NewInputValidationError(field, reason string) *InputValidationError {
	return &InputValidationError{Field: field, Reason: reason}
}

// FailureKind classifies why enrichment produced nothing trustworthy.
type FailureKind string

const (
	FailureNoResponse      FailureKind = "no_response"
	FailureInvalidResponse FailureKind = "invalid_response"
)

// EnrichmentFailure is returned when the classification oracle gave no
// content or content that does not fit the receipt shape.
type EnrichmentFailure struct {
	Kind FailureKind
	Err  error
}

func (e *EnrichmentFailure) Error() string {
	if e.Err == nil {
		return "enrichment failed: " + string(e.Kind)
	}
	return fmt.Sprintf("enrichment failed: %s: %v", e.Kind, e.Err)
}

func (e *EnrichmentFailure) Unwrap() error { return e.Err }

// PartialWriteFailure is returned when an atomic multi-record commit did not
// complete. Nothing from the batch is visible; callers retry from scratch.
type PartialWriteFailure struct {
	Op        string
	ReceiptID string
	Err       error
}

func (e *PartialWriteFailure) Error() string {
	return fmt.Sprintf("%s receipt %s: commit failed: %v", e.Op, e.ReceiptID, e.Err)
}

func (e *PartialWriteFailure) Unwrap() error { return e.Err }

// IsInputValidation reports whether err carries an InputValidationError.
func IsInputValidation(err error) bool {
	var target *InputValidationError
	return errors.As(err, &target)
}

// IsEnrichmentFailure reports whether err carries an EnrichmentFailure and returns its kind.
func IsEnrichmentFailure(err error) (FailureKind, bool) {
	var target *EnrichmentFailure
	if errors.As(err, &target) {
		return target.Kind, true
	}
	return "", false
}

// IsPartialWrite reports whether err carries a PartialWriteFailure.
func IsPartialWrite(err error) bool {
	var target *PartialWriteFailure
	return errors.As(err, &target)
}
