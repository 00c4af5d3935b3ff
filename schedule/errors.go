/*
errors.go - Centralized error types for the schedule engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch on error class, never on message text.

ERROR CATEGORIES:
  1. Validation errors - Rule violations caught before any persistence
  2. Conflict errors   - Commit-time reference-code collisions
  3. Confirmation      - Destructive regeneration awaiting operator consent
  4. Not-found errors  - Missing sales/references/installments

USAGE:
  if errors.Is(err, schedule.ErrShareBelowMinimum) { ... }

  var warn *schedule.RegenerationWarning
  if errors.As(err, &warn) { // ask the operator, retry with Confirm=true }

SEE ALSO:
  - split.go: Raises share-minimum violations
  - builder.go: Raises code and start-date violations
  - regen.go: Raises RegenerationWarning
*/
package schedule

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidTerm is returned for a non-positive term in months.
	ErrInvalidTerm = errors.New("term must be at least one month")

	// ErrInvalidAmount is returned when the financed amount is not positive.
	ErrInvalidAmount = errors.New("financed amount must be positive")

	// ErrInvalidReferenceCount is returned for a reference count outside 0..5.
	ErrInvalidReferenceCount = errors.New("reference count must be between 0 and 5")

	// ErrShareBelowMinimum is returned when a per-reference share falls below
	// the configured minimum. The caller must choose fewer references or a
	// larger amount.
	ErrShareBelowMinimum = errors.New("share below minimum amount")

	// ErrStartInPast is returned when the first computed due date is strictly
	// before the as-of date. A schedule must never start in the past.
	ErrStartInPast = errors.New("schedule would start in the past")

	// ErrDuplicateCodeInBatch is returned when two slots of the same
	// not-yet-committed batch carry the same code.
	ErrDuplicateCodeInBatch = errors.New("duplicate reference code in batch")

	// ErrCodeAlreadyUsed is returned when a candidate code matches a
	// previously persisted reference code.
	ErrCodeAlreadyUsed = errors.New("reference code already used")

	// ErrCodeCollision is returned when the commit-time recheck detects that
	// a code validated earlier was issued concurrently. The whole batch is
	// rejected; retry with fresh allocation.
	ErrCodeCollision = errors.New("reference code collision at commit")

	// ErrConfirmationRequired is returned when a destructive regeneration
	// needs explicit operator consent.
	ErrConfirmationRequired = errors.New("regeneration requires explicit confirmation")

	// ErrScheduleNotStale is returned when regeneration is requested but the
	// recomputed monthly obligation matches the persisted one.
	ErrScheduleNotStale = errors.New("schedule matches current terms")

	// ErrPolicyUndetermined is returned when regeneration must infer the
	// withdrawal policy but no schedule rows exist to infer from.
	ErrPolicyUndetermined = errors.New("withdrawal policy cannot be determined")

	// ErrSaleNotFound is returned when a referenced sale doesn't exist.
	ErrSaleNotFound = errors.New("sale not found")

	// ErrCustomerNotFound is returned when a referenced customer doesn't exist.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrReferenceNotFound is returned when a code resolves to no reference.
	ErrReferenceNotFound = errors.New("payment reference not found")

	// ErrNoPendingInstallment is returned when a postal outcome arrives for a
	// reference whose installments are all settled already.
	ErrNoPendingInstallment = errors.New("no pending installment for reference")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ShareBelowMinimumError reports which slot of the split violated the
// minimum, so the operator can correct the reference count and retry.
type ShareBelowMinimumError struct {
	Slot    int
	Share   Money
	Minimum Money
}

func (e *ShareBelowMinimumError) Error() string {
	return fmt.Sprintf("share %v at slot %d below minimum %v", e.Share, e.Slot, e.Minimum)
}

func (e *ShareBelowMinimumError) Unwrap() error { return ErrShareBelowMinimum }

// CodeError reports a rejected reference code and the slot it occupied.
type CodeError struct {
	Slot   int
	Code   string
	Status CodeStatus
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("code %q at slot %d: %s", e.Code, e.Slot, e.Status)
}

func (e *CodeError) Unwrap() error {
	switch e.Status {
	case CodeDuplicateInBatch:
		return ErrDuplicateCodeInBatch
	case CodeAlreadyUsed:
		return ErrCodeAlreadyUsed
	default:
		return nil
	}
}

// StartInPastError reports the offending first due date.
type StartInPastError struct {
	First Date
	AsOf  Date
}

func (e *StartInPastError) Error() string {
	return fmt.Sprintf("first due date %s is before %s", e.First, e.AsOf)
}

func (e *StartInPastError) Unwrap() error { return ErrStartInPast }

// RegenerationWarning signals that rebuilding will discard history. It is an
// error so it cannot be ignored, but it is a gate, not a failure: retry the
// same call with Confirm set once the operator has consented.
type RegenerationWarning struct {
	SaleID    SaleID
	PaidRows  int
	PaidTotal Money
}

func (e *RegenerationWarning) Error() string {
	return fmt.Sprintf("rebuilding sale %s discards %d paid rows totalling %v; confirmation required",
		e.SaleID, e.PaidRows, e.PaidTotal)
}

func (e *RegenerationWarning) Unwrap() error { return ErrConfirmationRequired }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true if the error is a pre-persistence rule violation
// the caller can correct and retry.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidTerm) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidReferenceCount) ||
		errors.Is(err, ErrShareBelowMinimum) ||
		errors.Is(err, ErrStartInPast) ||
		errors.Is(err, ErrDuplicateCodeInBatch) ||
		errors.Is(err, ErrCodeAlreadyUsed) ||
		errors.Is(err, ErrPolicyUndetermined)
}

// IsConflict returns true for commit-time collisions; retry with fresh
// allocation may succeed.
func IsConflict(err error) bool {
	return errors.Is(err, ErrCodeCollision)
}

// IsConfirmationRequired returns true when the operation is gated on
// explicit operator consent.
func IsConfirmationRequired(err error) bool {
	return errors.Is(err, ErrConfirmationRequired)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSaleNotFound) ||
		errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrReferenceNotFound) ||
		errors.Is(err, ErrNoPendingInstallment)
}
