/*
regen.go - Schedule regeneration after commercial terms change

PURPOSE:
  When a sale's total amount or term is amended, the persisted schedule no
  longer matches the sale. The regenerator detects the mismatch, marks the
  sale stale, and - only under explicit operator confirmation - deletes all
  non-paid rows and rebuilds with the amended terms, netting previously
  collected amounts out of the remaining balance.

DESTRUCTIVE BY CONTRACT:
  Rebuild is a full replacement. Rows already marked Paid are removed from
  the live schedule (their collected total is netted out, but the rows are
  not preserved). The RegenerationWarning gate exists precisely so this
  never happens silently.

SEE ALSO:
  - builder.go: The rebuild reuses the ordinary build path
  - errors.go: RegenerationWarning, ErrScheduleNotStale
*/
package schedule

import (
	"context"
	"fmt"
)

// RegenerateInput carries the amended terms plus the operator's consent.
type RegenerateInput struct {
	NewTotal      Money
	NewDown       Money
	NewTermMonths int
	NewStartMonth Month

	// Policy may be left zero when the sale's policy link was lost; the
	// rule is then inferred from the stored due day.
	Policy ContractPolicy

	ReferenceCount int
	ManualCodes    map[int]string
	AsOf           Date

	// Confirm acknowledges that the rebuild discards the existing schedule,
	// paid history included.
	Confirm bool
}

type Regenerator struct {
	Builder   *Builder
	Schedules ScheduleStore
	Sales     SaleStore
}

func NewRegenerator(store Store) *Regenerator {
	return &Regenerator{Builder: NewBuilder(store), Schedules: store, Sales: store}
}

// IsStale reports whether the amended terms produce a different monthly
// obligation than the persisted schedule carries.
func (r *Regenerator) IsStale(ctx context.Context, saleID SaleID, newTotal, newDown Money, newTerm int) (bool, error) {
	newMonthly, err := MonthlyObligation(newTotal, newDown, newTerm)
	if err != nil {
		return false, err
	}
	persisted, err := r.persistedMonthly(ctx, saleID)
	if err != nil {
		return false, err
	}
	return !newMonthly.Equal(persisted), nil
}

// Regenerate rebuilds the schedule for an amended sale.
//
// Without Confirm, it marks the sale stale and returns a RegenerationWarning
// describing what a rebuild would discard. With Confirm, it deletes all
// non-paid rows and reruns the build with the collected total netted out.
func (r *Regenerator) Regenerate(ctx context.Context, saleID SaleID, in RegenerateInput) (*BuildResult, error) {
	sale, err := r.Sales.Sale(ctx, saleID)
	if err != nil {
		return nil, err
	}

	stale, err := r.IsStale(ctx, saleID, in.NewTotal, in.NewDown, in.NewTermMonths)
	if err != nil {
		return nil, err
	}
	if !stale {
		return nil, ErrScheduleNotStale
	}

	rows, err := r.Schedules.InstallmentsBySale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	summary := Summarize(rows)

	if !in.Confirm {
		if err := r.Sales.UpdateSaleStatus(ctx, saleID, SaleStale); err != nil {
			return nil, err
		}
		return nil, &RegenerationWarning{
			SaleID:    saleID,
			PaidRows:  summary.PaidRows,
			PaidTotal: summary.PaidAmount,
		}
	}

	policy := in.Policy
	if policy.Rule.Kind == "" {
		// Sale under edit lost its policy link: reconstruct the rule from
		// the stored due day. Never used when the caller names a policy.
		rule, ok := inferRuleFromRows(rows)
		if !ok {
			return nil, fmt.Errorf("sale %s: %w", saleID, ErrPolicyUndetermined)
		}
		policy = ContractPolicy{ID: sale.PolicyID, Rule: rule}
	}

	// Validate the full rebuild before touching the stored schedule, so a
	// rejected build leaves the old rows in place.
	result, err := r.Builder.Build(ctx, saleID, BuildInput{
		TotalAmount:    in.NewTotal.Sub(summary.PaidAmount),
		DownPayment:    in.NewDown,
		TermMonths:     in.NewTermMonths,
		StartMonth:     in.NewStartMonth,
		Policy:         policy,
		BranchPrefix:   sale.BranchPrefix,
		ReferenceCount: in.ReferenceCount,
		ManualCodes:    in.ManualCodes,
		AsOf:           in.AsOf,
	})
	if err != nil {
		return nil, err
	}

	// Delete and insert are one store transaction: a commit-time code
	// collision leaves the old schedule fully in place.
	if err := r.Schedules.ReplaceSchedule(ctx, saleID, result.References, result.Installments); err != nil {
		return nil, fmt.Errorf("replacing schedule for %s: %w", saleID, err)
	}

	sale.TotalAmount = in.NewTotal
	sale.DownPayment = in.NewDown
	sale.TermMonths = in.NewTermMonths
	sale.StartMonth = in.NewStartMonth
	sale.PolicyID = policy.ID
	sale.Status = SaleActive
	if err := r.Sales.SaveSale(ctx, sale); err != nil {
		return nil, err
	}
	return result, nil
}

// inferRuleFromRows reconstructs the day rule from the oldest stored due
// day. Fallback for sales whose policy link was lost during an edit.
func inferRuleFromRows(rows []Installment) (DayRule, bool) {
	if len(rows) == 0 {
		return DayRule{}, false
	}
	oldest := rows[0]
	for _, row := range rows[1:] {
		if row.DueDate.Before(oldest.DueDate) {
			oldest = row
		}
	}
	return InferRuleFromDay(oldest.DueDate.Day()), true
}

// persistedMonthly sums the per-reference amounts of the earliest due month
// still on record. That sum is the schedule's monthly obligation.
func (r *Regenerator) persistedMonthly(ctx context.Context, saleID SaleID) (Money, error) {
	rows, err := r.Schedules.InstallmentsBySale(ctx, saleID)
	if err != nil {
		return Money{}, err
	}
	if len(rows) == 0 {
		return NewMoney(0), nil
	}
	earliest := rows[0].DueDate.MonthOf()
	for _, row := range rows[1:] {
		if m := row.DueDate.MonthOf(); m.Before(earliest) {
			earliest = m
		}
	}
	total := NewMoney(0)
	for _, row := range rows {
		if row.DueDate.MonthOf().Equal(earliest) {
			total = total.Add(row.Amount)
		}
	}
	return total, nil
}
