/*
import.go - Decoding the returned postal status batch

FORMAT:
  One record per line: REFERENCE_CODE STATUS, separated by any run of
  space, tab, comma or semicolon. Status 0 = cleared, 1 = waiting,
  2 = blocked.

APPLICATION:
  Each line resolves its reference by code and applies the outcome to the
  single oldest installment still Pending:
    0 -> Paid, postal cleared
    1 -> stays Pending, postal waiting
    2 -> stays Pending, postal blocked

FAILURE MODEL:
  Lines are independent. Unparseable lines and unresolvable codes are
  counted as unresolved with a per-line reason; only a store failure stops
  the batch, and the summary then reports what was already applied.
*/
package postal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/castra/credit-engine/schedule"
)

// =============================================================================
// STATUS CODES
// =============================================================================

const (
	StatusCleared = 0
	StatusWaiting = 1
	StatusBlocked = 2
)

// =============================================================================
// IMPORT RESULT
// =============================================================================

// LineError records one line that could not be applied.
type LineError struct {
	Line   int // 1-based line number
	Raw    string
	Reason string
}

func (e LineError) String() string {
	return fmt.Sprintf("line %d (%q): %s", e.Line, e.Raw, e.Reason)
}

// ImportSummary reports the outcome counts of one batch.
type ImportSummary struct {
	Cleared    int
	Waiting    int
	Blocked    int
	Unresolved int
	Errors     []LineError
}

// =============================================================================
// IMPORTER
// =============================================================================

// Applier is what the importer mutates. schedule.Store satisfies it.
type Applier interface {
	ReferenceByCode(ctx context.Context, code string) (schedule.PaymentReference, error)
	OldestPendingByReference(ctx context.Context, refID schedule.ReferenceID) (schedule.Installment, error)
	UpdateInstallmentStatus(ctx context.Context, id schedule.InstallmentID, status schedule.InstallmentStatus, postal schedule.PostalStatus) error
}

type Importer struct {
	Store Applier
}

// Import parses and applies a status batch. A store failure aborts the
// remaining lines and is returned alongside the partial summary; already
// applied updates are reported, not rolled back.
func (im Importer) Import(ctx context.Context, batch string) (*ImportSummary, error) {
	summary := &ImportSummary{}
	scanner := bufio.NewScanner(strings.NewReader(batch))

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		code, status, ok := parseLine(raw)
		if !ok {
			summary.unresolved(lineNo, raw, "unparseable line")
			continue
		}

		if err := im.applyLine(ctx, code, status, summary); err != nil {
			var le *LineError
			if errors.As(err, &le) {
				le.Line = lineNo
				le.Raw = raw
				summary.Unresolved++
				summary.Errors = append(summary.Errors, *le)
				continue
			}
			// Store unreachable: stop, report what was applied.
			return summary, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (im Importer) applyLine(ctx context.Context, code string, status int, summary *ImportSummary) error {
	ref, err := im.Store.ReferenceByCode(ctx, code)
	if err != nil {
		if errors.Is(err, schedule.ErrReferenceNotFound) {
			return &LineError{Reason: "reference not found"}
		}
		return err
	}

	row, err := im.Store.OldestPendingByReference(ctx, ref.ID)
	if err != nil {
		if errors.Is(err, schedule.ErrNoPendingInstallment) {
			return &LineError{Reason: "no pending installment"}
		}
		return err
	}

	switch status {
	case StatusCleared:
		if err := im.Store.UpdateInstallmentStatus(ctx, row.ID, schedule.InstallmentPaid, schedule.PostalCleared); err != nil {
			return err
		}
		summary.Cleared++
	case StatusWaiting:
		if err := im.Store.UpdateInstallmentStatus(ctx, row.ID, schedule.InstallmentPending, schedule.PostalWaiting); err != nil {
			return err
		}
		summary.Waiting++
	case StatusBlocked:
		if err := im.Store.UpdateInstallmentStatus(ctx, row.ID, schedule.InstallmentPending, schedule.PostalBlocked); err != nil {
			return err
		}
		summary.Blocked++
	}
	return nil
}

func (s *ImportSummary) unresolved(line int, raw, reason string) {
	s.Unresolved++
	s.Errors = append(s.Errors, LineError{Line: line, Raw: raw, Reason: reason})
}

// Error implements error so applyLine can bubble a LineError distinctly from
// store failures.
func (e *LineError) Error() string { return e.Reason }

// parseLine splits on any run of space/tab/comma/semicolon and validates the
// status code. Returns ok=false for anything that isn't CODE STATUS with a
// status in 0..2.
func parseLine(raw string) (code string, status int, ok bool) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ',' || r == ';'
	})
	if len(fields) < 2 {
		return "", 0, false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < StatusCleared || n > StatusBlocked {
		return "", 0, false
	}
	return fields[0], n, true
}
