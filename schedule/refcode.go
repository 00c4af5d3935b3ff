/*
refcode.go - Reference code allocation and uniqueness checking

PURPOSE:
  Allocates the next N sequential collection codes for a branch prefix and
  classifies candidate codes (allocated or operator-entered) against the
  in-progress batch and against history.

PURITY:
  The allocator is a pure function of (prefix, lastNumber, count, overrides).
  The last-issued number is supplied by the store, never read from ambient
  state, so two builds racing on the same prefix can only collide at the
  store's unique index - which the commit path surfaces as ErrCodeCollision.

STALENESS:
  The history check runs against a store whose answer can go stale between
  check and commit. Codes are therefore re-validated whenever the batch
  composition changes, and once more by the store at commit time.

SEE ALSO:
  - store.go: CodeStore collaborator contract
  - builder.go: Commit precondition and collision mapping
*/
package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// ALLOCATOR - Pure sequential allocation with manual overrides
// =============================================================================

// AllocateCodes returns count codes {prefix}{lastNumber+1}..{prefix}{lastNumber+count}.
// A manual override at slot i replaces the allocated code for that slot and
// bypasses sequential numbering entirely.
func AllocateCodes(prefix string, lastNumber int64, count int, manual map[int]string) []string {
	codes := make([]string, count)
	next := lastNumber
	for i := 0; i < count; i++ {
		if m, ok := manual[i]; ok && m != "" {
			codes[i] = m
			continue
		}
		next++
		codes[i] = fmt.Sprintf("%s%d", prefix, next)
	}
	return codes
}

// ParseSuffix extracts the numeric suffix of a code sharing the prefix.
// Returns false for foreign prefixes and non-numeric suffixes (manual codes).
func ParseSuffix(prefix, code string) (int64, bool) {
	if !strings.HasPrefix(code, prefix) {
		return 0, false
	}
	n, err := strconv.ParseInt(code[len(prefix):], 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// =============================================================================
// UNIQUENESS CHECKER
// =============================================================================

type CodeStatus string

const (
	CodeAvailable        CodeStatus = "available"
	CodeDuplicateInBatch CodeStatus = "duplicate_in_batch"
	CodeAlreadyUsed      CodeStatus = "already_used"
)

// Checker validates candidate codes against the in-progress batch and
// against persisted history.
type Checker struct {
	Codes CodeStore
}

// Check classifies one code. batch is the full in-progress batch including
// the code itself; a second occurrence flags DuplicateInBatch.
func (c Checker) Check(ctx context.Context, code string, batch []string) (CodeStatus, error) {
	occurrences := 0
	for _, b := range batch {
		if b == code {
			occurrences++
		}
	}
	if occurrences > 1 {
		return CodeDuplicateInBatch, nil
	}

	used, err := c.Codes.CodeExists(ctx, code)
	if err != nil {
		return "", fmt.Errorf("uniqueness check for %q: %w", code, err)
	}
	if used {
		return CodeAlreadyUsed, nil
	}
	return CodeAvailable, nil
}

// CheckBatch validates every slot. The first non-available slot is returned
// as a CodeError; duplicate pairs flag both slots on successive calls.
func (c Checker) CheckBatch(ctx context.Context, batch []string) error {
	for i, code := range batch {
		status, err := c.Check(ctx, code, batch)
		if err != nil {
			return err
		}
		if status != CodeAvailable {
			return &CodeError{Slot: i, Code: code, Status: status}
		}
	}
	return nil
}

// Statuses classifies every slot without short-circuiting, for interactive
// validation before commit.
func (c Checker) Statuses(ctx context.Context, batch []string) ([]CodeStatus, error) {
	out := make([]CodeStatus, len(batch))
	for i, code := range batch {
		status, err := c.Check(ctx, code, batch)
		if err != nil {
			return nil, err
		}
		out[i] = status
	}
	return out, nil
}
