package session

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound means no live session exists for the given identifier.
	ErrNotFound = errors.New("verification session not found")

	// ErrCaptureUnavailable means the required image was not provided or
	// was empty; the session stays in its current phase.
	ErrCaptureUnavailable = errors.New("capture unavailable")

	// ErrFaceMismatch is the hard gate: the comparison ran but did not
	// confirm a match. The selfie is discarded and a fresh capture cycle
	// is forced; the decision cannot be overridden.
	ErrFaceMismatch = errors.New("face comparison did not confirm a match")

	// ErrInvalidPhase means the requested operation is not valid for the
	// session's current phase.
	ErrInvalidPhase = errors.New("operation not valid in current phase")

	// ErrContractViolation means required upstream data was absent at
	// submission. This indicates a caller bug, not a user-fixable
	// condition; the whole flow must be restarted.
	ErrContractViolation = errors.New("submission contract violation")
)

// MissingFieldsError reports which required identity fields are still
// absent. It blocks leaving the reviewing phase until resolved by edit.
type MissingFieldsError struct {
	Labels []string
}

func (e *MissingFieldsError) Error() string {
	return "required fields missing: " + strings.Join(e.Labels, ", ")
}
