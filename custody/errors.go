/*
errors.go - Centralized error types for the custody engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Collaborators (tracker, store, API) wrap these with additional context.

ERROR CATEGORIES:
  1. Input errors     - InvalidWindow, InvalidRule (caller must fix input)
  2. Data defects     - MalformedEntry (one vacation row, skipped not fatal)
  3. Conflicts        - AmbiguousAllocation (two allocations claim one range)
  4. Engine defects   - Overlap (resolver invariant broken, never expected)
  5. Lookup errors    - ChildNotFound, OverrideNotFound, ExceptionNotFound

USAGE:
  res, err := custody.Resolve(snap, entries, overrides, window)
  if errors.Is(err, custody.ErrInvalidWindow) {
      // 400 to the caller
  }

SEE ALSO:
  - resolver.go: Returns InvalidWindow and Overlap
  - snapshot.go: Returns InvalidRule
  - vacation.go: Returns MalformedEntry and AmbiguousAllocation
*/
package custody

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidWindow is returned when a window has From >= To.
	ErrInvalidWindow = errors.New("invalid window: from must be before to")

	// ErrInvalidRule is returned when a rhythm or vacation rule is missing a
	// field its type requires. Raised at snapshot construction only.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrAmbiguousAllocation is returned when two allocations for the same
	// vacation entry overlap.
	ErrAmbiguousAllocation = errors.New("ambiguous vacation allocation")

	// ErrMalformedEntry is returned for a vacation entry whose start is after its end.
	ErrMalformedEntry = errors.New("malformed vacation entry")

	// ErrOverlap is returned when resolved periods overlap.
	ErrOverlap = errors.New("resolved periods overlap")

	// ErrChildNotFound is returned when a referenced child doesn't exist.
	ErrChildNotFound = errors.New("child not found")

	// ErrOverrideNotFound is returned when a referenced override doesn't exist.
	ErrOverrideNotFound = errors.New("override not found")

	// ErrExceptionNotFound is returned when a referenced recurring exception doesn't exist.
	ErrExceptionNotFound = errors.New("exception not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidWindowError carries the rejected bounds.
type InvalidWindowError struct {
	From time.Time
	To   time.Time
}

func (e *InvalidWindowError) Error() string {
	return fmt.Sprintf("invalid window [%s, %s): from must be before to",
		e.From.Format(time.RFC3339), e.To.Format(time.RFC3339))
}

func (e *InvalidWindowError) Unwrap() error { return ErrInvalidWindow }

// InvalidRuleError names the offending field.
type InvalidRuleError struct {
	Rule   string // "rhythm", "vacation" or "handover"
	Field  string
	Reason string
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("invalid %s rule: %s: %s", e.Rule, e.Field, e.Reason)
}

func (e *InvalidRuleError) Unwrap() error { return ErrInvalidRule }

// MalformedEntryError identifies the skipped vacation entry.
type MalformedEntryError struct {
	Entry  VacationCalendarEntry
	Reason string
}

func (e *MalformedEntryError) Error() string {
	return fmt.Sprintf("malformed vacation entry %q (%s -> %s): %s",
		e.Entry.Name, e.Entry.Start, e.Entry.End, e.Reason)
}

func (e *MalformedEntryError) Unwrap() error { return ErrMalformedEntry }

// AmbiguousAllocationError reports two allocations claiming the same range.
type AmbiguousAllocationError struct {
	Entry  string
	First  Period
	Second Period
}

func (e *AmbiguousAllocationError) Error() string {
	return fmt.Sprintf("ambiguous allocation for %q: %s overlaps %s", e.Entry, e.First, e.Second)
}

func (e *AmbiguousAllocationError) Unwrap() error { return ErrAmbiguousAllocation }

// OverlapError reports the first pair of overlapping resolved periods.
type OverlapError struct {
	First  Period
	Second Period
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("resolved periods overlap: %s and %s", e.First, e.Second)
}

func (e *OverlapError) Unwrap() error { return ErrOverlap }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidWindow) ||
		errors.Is(err, ErrInvalidRule) ||
		errors.Is(err, ErrAmbiguousAllocation)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrChildNotFound) ||
		errors.Is(err, ErrOverrideNotFound) ||
		errors.Is(err, ErrExceptionNotFound)
}
