/*
builder.go - Schedule orchestration: policy -> dates -> split -> codes -> rows

PURPOSE:
  Builds the full installment schedule for a sale: resolves the withdrawal
  policy, computes the monthly obligation, splits it across reference slots,
  allocates and validates reference codes, and emits one installment row per
  (reference, due month) pair - or one row per month on the cash path.

COMMIT PRECONDITION:
  Build fails before any persistence if a split share is below the minimum,
  a code is duplicated in the batch or already used, or the schedule would
  start in the past. Commit re-validates uniqueness at the store and rejects
  the whole batch on collision - never partially applied, never silently
  renumbered.

INVARIANTS EMITTED:
  - R references x M months => exactly R*M rows, each reference's amount
    constant across its rows
  - sum of per-reference shares per month == floor((total-down)/term)
  - coverage window [start+1, start+term] on every reference

SEE ALSO:
  - regen.go: Rebuild path for amended sales
  - store.go: SaveSchedule atomicity contract
*/
package schedule

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// =============================================================================
// BUILD INPUT / RESULT
// =============================================================================

// BuildInput carries everything one schedule build needs. AsOf is the
// operator's current date; the engine never reads the clock itself.
type BuildInput struct {
	TotalAmount    Money
	DownPayment    Money
	TermMonths     int
	StartMonth     Month
	Policy         ContractPolicy
	BranchPrefix   string
	ReferenceCount int            // 0 = cash path, 1..5 = collection references
	ManualCodes    map[int]string // operator overrides, keyed by slot
	AsOf           Date
}

// BuildResult is the persistable outcome of one build.
type BuildResult struct {
	Monthly      Money
	References   []PaymentReference
	Installments []Installment
}

// =============================================================================
// BUILDER
// =============================================================================

type Builder struct {
	Codes     CodeStore
	Schedules ScheduleStore
	Split     Splitter
}

func NewBuilder(store Store) *Builder {
	return &Builder{Codes: store, Schedules: store, Split: NewSplitter()}
}

// Build computes and validates a schedule without persisting anything.
func (b *Builder) Build(ctx context.Context, saleID SaleID, in BuildInput) (*BuildResult, error) {
	if in.ReferenceCount < 0 || in.ReferenceCount > MaxReferenceCount {
		return nil, ErrInvalidReferenceCount
	}

	monthly, err := MonthlyObligation(in.TotalAmount, in.DownPayment, in.TermMonths)
	if err != nil {
		return nil, err
	}

	dates, err := DueDates(in.StartMonth, in.Policy.Rule, in.TermMonths)
	if err != nil {
		return nil, err
	}
	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = Today()
	}
	if err := ValidateStart(dates, asOf); err != nil {
		return nil, err
	}

	result := &BuildResult{Monthly: monthly}

	if in.ReferenceCount == 0 {
		// Cash path: one row per due date at the full monthly amount, no
		// references.
		for _, due := range dates {
			result.Installments = append(result.Installments, Installment{
				ID:           newInstallmentID(),
				SaleID:       saleID,
				DueDate:      due,
				Amount:       monthly,
				Status:       InstallmentPending,
				PostalStatus: PostalNone,
			})
		}
		return result, nil
	}

	shares, err := b.Split.Split(monthly, in.ReferenceCount)
	if err != nil {
		return nil, err
	}

	lastNumber, err := b.Codes.LastNumber(ctx, in.BranchPrefix)
	if err != nil {
		return nil, fmt.Errorf("last reference number for %q: %w", in.BranchPrefix, err)
	}
	codes := AllocateCodes(in.BranchPrefix, lastNumber, len(shares), in.ManualCodes)

	checker := Checker{Codes: b.Codes}
	if err := checker.CheckBatch(ctx, codes); err != nil {
		return nil, err
	}

	coverageStart := in.StartMonth.AddMonths(1)
	coverageEnd := in.StartMonth.AddMonths(in.TermMonths)

	for i, share := range shares {
		ref := PaymentReference{
			ID:            ReferenceID("ref-" + codes[i]),
			SaleID:        saleID,
			Code:          codes[i],
			Amount:        share,
			CoverageStart: coverageStart,
			CoverageEnd:   coverageEnd,
		}
		result.References = append(result.References, ref)
		for _, due := range dates {
			result.Installments = append(result.Installments, Installment{
				ID:           newInstallmentID(),
				SaleID:       saleID,
				ReferenceID:  ref.ID,
				DueDate:      due,
				Amount:       share,
				Status:       InstallmentPending,
				PostalStatus: PostalNone,
			})
		}
	}
	return result, nil
}

// Commit persists a build atomically. A commit-time code collision rejects
// the whole batch; retry Build for fresh allocation.
func (b *Builder) Commit(ctx context.Context, result *BuildResult) error {
	return b.Schedules.SaveSchedule(ctx, result.References, result.Installments)
}

// BuildAndCommit runs Build then Commit.
func (b *Builder) BuildAndCommit(ctx context.Context, saleID SaleID, in BuildInput) (*BuildResult, error) {
	result, err := b.Build(ctx, saleID, in)
	if err != nil {
		return nil, err
	}
	if err := b.Commit(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Row IDs are unique per build, so a rebuild over overlapping months can
// never collide with rows a previous schedule preserved.
func newInstallmentID() InstallmentID {
	return InstallmentID("inst-" + uuid.NewString())
}
