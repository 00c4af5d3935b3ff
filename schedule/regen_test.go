package schedule_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castra/credit-engine/schedule"
	memstore "github.com/castra/credit-engine/schedule/store"
)

// seedSaleWithSchedule creates an active sale (13000 total, 1000 down, 6
// months from 2025-01, monthly 2000) and commits its 2-reference schedule.
func seedSaleWithSchedule(t *testing.T, mem *memstore.Memory) *schedule.BuildResult {
	t.Helper()
	ctx := context.Background()

	in := buildInput(2)
	require.NoError(t, mem.SaveSale(ctx, schedule.Sale{
		ID:           "sale-1",
		CustomerID:   "cust-1",
		BranchPrefix: in.BranchPrefix,
		TotalAmount:  in.TotalAmount,
		DownPayment:  in.DownPayment,
		TermMonths:   in.TermMonths,
		StartMonth:   in.StartMonth,
		PolicyID:     in.Policy.ID,
		Status:       schedule.SaleActive,
	}))

	result, err := schedule.NewBuilder(mem).BuildAndCommit(ctx, "sale-1", in)
	require.NoError(t, err)
	return result
}

func regenInput(confirm bool) schedule.RegenerateInput {
	return schedule.RegenerateInput{
		NewTotal:       schedule.NewMoney(15000),
		NewDown:        schedule.NewMoney(1000),
		NewTermMonths:  6,
		NewStartMonth:  schedule.NewMonth(2025, time.March),
		Policy:         monthEndPolicy(),
		ReferenceCount: 2,
		AsOf:           schedule.NewDate(2025, time.March, 5),
		Confirm:        confirm,
	}
}

func TestRegenerate_NotStaleRejected(t *testing.T) {
	// Amended terms that reproduce the persisted monthly obligation are a
	// no-op amendment; regeneration refuses to run.
	ctx := context.Background()
	mem := memstore.NewMemory()
	seedSaleWithSchedule(t, mem)

	in := regenInput(true)
	in.NewTotal = schedule.NewMoney(13000) // same monthly 2000 as persisted
	_, err := schedule.NewRegenerator(mem).Regenerate(ctx, "sale-1", in)
	assert.ErrorIs(t, err, schedule.ErrScheduleNotStale)
}

func TestRegenerate_WithoutConfirmWarnsAndMarksStale(t *testing.T) {
	// GIVEN: a schedule with one paid row
	// WHEN: regenerating without confirmation
	// THEN: the sale is flagged stale and the warning reports what a rebuild
	//       would discard; the stored schedule is untouched
	ctx := context.Background()
	mem := memstore.NewMemory()
	result := seedSaleWithSchedule(t, mem)

	paid := result.Installments[0]
	require.NoError(t, mem.UpdateInstallmentStatus(ctx, paid.ID, schedule.InstallmentPaid, schedule.PostalCleared))

	_, err := schedule.NewRegenerator(mem).Regenerate(ctx, "sale-1", regenInput(false))
	require.Error(t, err)
	assert.True(t, schedule.IsConfirmationRequired(err))

	var warning *schedule.RegenerationWarning
	require.ErrorAs(t, err, &warning)
	assert.Equal(t, schedule.SaleID("sale-1"), warning.SaleID)
	assert.Equal(t, 1, warning.PaidRows)
	assert.True(t, warning.PaidTotal.Equal(paid.Amount))

	sale, err := mem.Sale(ctx, "sale-1")
	require.NoError(t, err)
	assert.Equal(t, schedule.SaleStale, sale.Status)

	rows, err := mem.InstallmentsBySale(ctx, "sale-1")
	require.NoError(t, err)
	assert.Len(t, rows, len(result.Installments), "warning path must not delete rows")
}

func TestRegenerate_ConfirmedRebuildNetsPaidAmount(t *testing.T) {
	// GIVEN: 2000 already collected on the old schedule
	// WHEN: regenerating to a 15000 total with confirmation
	// THEN: the rebuild finances 15000 - 2000 - 1000 = 12000 => monthly 2000,
	//       unpaid rows are replaced and the sale carries the amended terms
	ctx := context.Background()
	mem := memstore.NewMemory()
	old := seedSaleWithSchedule(t, mem)

	for _, row := range old.Installments {
		if row.DueDate.MonthOf().Equal(schedule.NewMonth(2025, time.February)) {
			require.NoError(t, mem.UpdateInstallmentStatus(ctx, row.ID, schedule.InstallmentPaid, schedule.PostalCleared))
		}
	}

	result, err := schedule.NewRegenerator(mem).Regenerate(ctx, "sale-1", regenInput(true))
	require.NoError(t, err)
	assert.True(t, result.Monthly.Equal(schedule.NewMoney(2000)))

	// New references continue the branch sequence past the old ones.
	require.Len(t, result.References, 2)
	assert.Equal(t, "BR1-3", result.References[0].Code)
	assert.Equal(t, "BR1-4", result.References[1].Code)

	rows, err := mem.InstallmentsBySale(ctx, "sale-1")
	require.NoError(t, err)
	paid := 0
	for _, row := range rows {
		if row.Status == schedule.InstallmentPaid {
			paid++
		}
	}
	assert.Equal(t, 2, paid, "paid rows survive the rebuild")
	assert.Len(t, rows, 2+len(result.Installments))

	sale, err := mem.Sale(ctx, "sale-1")
	require.NoError(t, err)
	assert.Equal(t, schedule.SaleActive, sale.Status)
	assert.True(t, sale.TotalAmount.Equal(schedule.NewMoney(15000)))
	assert.Equal(t, schedule.NewMonth(2025, time.March), sale.StartMonth)
}

// racingStore loses the numbering race at the last moment: a rival build
// persists the first allocated code just before the swap.
type racingStore struct {
	*memstore.Memory
}

func (s *racingStore) ReplaceSchedule(ctx context.Context, saleID schedule.SaleID, refs []schedule.PaymentReference, rows []schedule.Installment) error {
	rival := []schedule.PaymentReference{{
		ID:     "ref-rival",
		SaleID: "rival-sale",
		Code:   refs[0].Code,
		Amount: schedule.NewMoney(1000),
	}}
	if err := s.Memory.SaveSchedule(ctx, rival, nil); err != nil {
		return err
	}
	return s.Memory.ReplaceSchedule(ctx, saleID, refs, rows)
}

func TestRegenerate_CommitCollisionLeavesScheduleIntact(t *testing.T) {
	// GIVEN: a confirmed rebuild that loses the code race at commit time
	// THEN: the whole swap is rejected and the old schedule survives
	ctx := context.Background()
	mem := memstore.NewMemory()
	old := seedSaleWithSchedule(t, mem)

	_, err := schedule.NewRegenerator(&racingStore{Memory: mem}).Regenerate(ctx, "sale-1", regenInput(true))
	require.ErrorIs(t, err, schedule.ErrCodeCollision)

	rows, err := mem.InstallmentsBySale(ctx, "sale-1")
	require.NoError(t, err)
	assert.Len(t, rows, len(old.Installments), "failed swap must leave the old rows in place")

	refs, err := mem.ReferencesBySale(ctx, "sale-1")
	require.NoError(t, err)
	assert.Len(t, refs, len(old.References))
}

func TestRegenerate_CashPathPreservesPaidRows(t *testing.T) {
	// GIVEN: a cash schedule with February paid early
	// WHEN: a confirmed rebuild covers the same months
	// THEN: the paid row survives untouched alongside the new rows
	ctx := context.Background()
	mem := memstore.NewMemory()

	in := buildInput(0)
	require.NoError(t, mem.SaveSale(ctx, schedule.Sale{
		ID:           "sale-1",
		CustomerID:   "cust-1",
		BranchPrefix: in.BranchPrefix,
		TotalAmount:  in.TotalAmount,
		DownPayment:  in.DownPayment,
		TermMonths:   in.TermMonths,
		StartMonth:   in.StartMonth,
		PolicyID:     in.Policy.ID,
		Status:       schedule.SaleActive,
	}))
	old, err := schedule.NewBuilder(mem).BuildAndCommit(ctx, "sale-1", in)
	require.NoError(t, err)

	paid := old.Installments[0] // 2025-02-28
	require.NoError(t, mem.UpdateInstallmentStatus(ctx, paid.ID, schedule.InstallmentPaid, schedule.PostalCleared))

	regenIn := regenInput(true)
	regenIn.ReferenceCount = 0
	regenIn.NewStartMonth = in.StartMonth
	regenIn.AsOf = schedule.NewDate(2025, time.January, 20)
	result, err := schedule.NewRegenerator(mem).Regenerate(ctx, "sale-1", regenIn)
	require.NoError(t, err)

	rows, err := mem.InstallmentsBySale(ctx, "sale-1")
	require.NoError(t, err)
	assert.Len(t, rows, 1+len(result.Installments))

	stillPaid := 0
	for _, row := range rows {
		if row.Status == schedule.InstallmentPaid {
			stillPaid++
			assert.Equal(t, paid.ID, row.ID)
			assert.True(t, row.Amount.Equal(paid.Amount))
		}
	}
	assert.Equal(t, 1, stillPaid, "early-paid row must survive the rebuild")
}

func TestRegenerate_InfersPolicyFromStoredDueDay(t *testing.T) {
	// A sale under edit with no policy named: the stored due day (month-end,
	// >= 15) reconstructs the rule and the sale keeps its policy link.
	ctx := context.Background()
	mem := memstore.NewMemory()
	seedSaleWithSchedule(t, mem)

	in := regenInput(true)
	in.Policy = schedule.ContractPolicy{}
	result, err := schedule.NewRegenerator(mem).Regenerate(ctx, "sale-1", in)
	require.NoError(t, err)

	require.NotEmpty(t, result.Installments)
	assert.Equal(t, "2025-04-30", result.Installments[0].DueDate.String())

	sale, err := mem.Sale(ctx, "sale-1")
	require.NoError(t, err)
	assert.Equal(t, schedule.PolicyID("end-of-month"), sale.PolicyID)
}

func TestRegenerate_RejectedRebuildLeavesScheduleIntact(t *testing.T) {
	// A rebuild that fails validation must not have deleted anything.
	ctx := context.Background()
	mem := memstore.NewMemory()
	old := seedSaleWithSchedule(t, mem)

	in := regenInput(true)
	in.ReferenceCount = 5
	in.NewTotal = schedule.NewMoney(7000) // financed 6000, monthly 1000, share 200 < 500

	_, err := schedule.NewRegenerator(mem).Regenerate(ctx, "sale-1", in)
	require.ErrorIs(t, err, schedule.ErrShareBelowMinimum)

	rows, err := mem.InstallmentsBySale(ctx, "sale-1")
	require.NoError(t, err)
	assert.Len(t, rows, len(old.Installments))
}
