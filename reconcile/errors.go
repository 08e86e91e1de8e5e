/*
errors.go - Centralized error types for the reconciliation core.

All error types live in one place for consistency and discoverability.
Calling packages should wrap these with errors.Is/errors.As rather than
matching on error strings, and the HTTP layer maps them to status codes
via IsValidation/IsNotFound/IsForbidden below.
*/
package reconcile

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - use with errors.Is()
// =============================================================================

var (
	// ErrNoActiveRuleset is returned when a run is requested but no ruleset
	// has ever been activated.
	ErrNoActiveRuleset = errors.New("no active ruleset")

	// ErrNoTransactions is returned when neither side has any rows for the
	// requested business date.
	ErrNoTransactions = errors.New("no transactions")

	// ErrOneSidedCohort is returned when only one side has rows for the date.
	ErrOneSidedCohort = errors.New("both sources are required")

	// ErrDuplicateIngestFile is returned by the store's InsertIngestFile when
	// an ingest payload's (side, date, checksum) triple has already been
	// recorded.
	ErrDuplicateIngestFile = errors.New("duplicate ingest file")

	// ErrNotFound is returned by keyed lookups that miss.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller's role set lacks a permission.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidTransition names a disallowed case transition. No exception
	// workflow action returns it: status transitions are unrestricted.
	ErrInvalidTransition = errors.New("invalid case transition")
)

// =============================================================================
// STRUCTURED ERRORS - carry additional context
// =============================================================================

// ValidationError wraps a precondition violation on input or state.
// Field is empty for whole-payload errors.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// BulkValidationError aggregates multiple field errors from validating a
// whole ingest payload; the ingest coordinator aborts the file entirely
// rather than persisting a partial record set.
type BulkValidationError struct {
	Message string
	Errors  []ValidationError
}

func (e *BulkValidationError) Error() string {
	return fmt.Sprintf("%s (%d errors)", e.Message, len(e.Errors))
}

// NotFoundError names the kind and id of a missing lookup.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ForbiddenError names the actor and permission that was missing.
type ForbiddenError struct {
	Actor      string
	Permission string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("actor %q lacks permission %q", e.Actor, e.Permission)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsValidation(err error) bool {
	var ve *ValidationError
	var bve *BulkValidationError
	return errors.As(err, &ve) || errors.As(err, &bve) ||
		errors.Is(err, ErrNoActiveRuleset) || errors.Is(err, ErrNoTransactions) ||
		errors.Is(err, ErrOneSidedCohort) || errors.Is(err, ErrInvalidTransition)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
