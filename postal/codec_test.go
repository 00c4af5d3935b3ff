package postal_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castra/credit-engine/postal"
	"github.com/castra/credit-engine/schedule"
	memstore "github.com/castra/credit-engine/schedule/store"
)

// seedCreditSale persists one customer and a committed 2-reference schedule:
// 13000 total, 1000 down, 6 months from 2025-01, month-end policy, monthly
// 2000 split 1000+1000, codes BR1-1 and BR1-2.
func seedCreditSale(t *testing.T, mem *memstore.Memory, payerAccount string) *schedule.BuildResult {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, mem.SaveCustomer(ctx, schedule.Customer{
		ID:           "cust-1",
		FirstName:    "Ada",
		LastName:     "Moreno",
		PayerAccount: payerAccount,
		PayerKey:     "7",
	}))
	require.NoError(t, mem.SaveSale(ctx, schedule.Sale{
		ID:           "sale-1",
		CustomerID:   "cust-1",
		BranchPrefix: "BR1-",
		TotalAmount:  schedule.NewMoney(13000),
		DownPayment:  schedule.NewMoney(1000),
		TermMonths:   6,
		StartMonth:   schedule.NewMonth(2025, time.January),
		PolicyID:     "end-of-month",
		Status:       schedule.SaleActive,
	}))

	result, err := schedule.NewBuilder(mem).BuildAndCommit(ctx, "sale-1", schedule.BuildInput{
		TotalAmount:    schedule.NewMoney(13000),
		DownPayment:    schedule.NewMoney(1000),
		TermMonths:     6,
		StartMonth:     schedule.NewMonth(2025, time.January),
		Policy:         schedule.ContractPolicy{ID: "end-of-month", Rule: schedule.DayRule{Kind: schedule.LastOfMonth}},
		BranchPrefix:   "BR1-",
		ReferenceCount: 2,
		AsOf:           schedule.NewDate(2025, time.January, 10),
	})
	require.NoError(t, err)
	return result
}

// =============================================================================
// EXPORT
// =============================================================================

func TestExport_RecordFields(t *testing.T) {
	// GIVEN: a committed schedule due from February 2025
	// WHEN: exporting the February withdrawal batch
	// THEN: one record per reference with the full fixed-column field set
	ctx := context.Background()
	mem := memstore.NewMemory()
	seedCreditSale(t, mem, "PA-001122")

	exporter := postal.Exporter{Source: mem, PayeeAccount: "STORE-9", PayeeKey: "3"}
	result, err := exporter.Export(ctx, schedule.NewMonth(2025, time.February), schedule.NewDate(2025, time.January, 15))
	require.NoError(t, err)

	require.Len(t, result.Records, 2)
	assert.Zero(t, result.MissingPayer)

	codes := make(map[string]bool)
	for _, rec := range result.Records {
		codes[rec.ReferenceCode] = true
		assert.Equal(t, "PA-001122", rec.PayerAccount)
		assert.Equal(t, "7", rec.PayerKey)
		assert.Equal(t, "Moreno", rec.LastName)
		assert.Equal(t, "Ada", rec.FirstName)
		assert.True(t, rec.Amount.Equal(schedule.NewMoney(1000)))
		assert.Equal(t, "STORE-9", rec.PayeeAccount)
		assert.Equal(t, "3", rec.PayeeKey)
		assert.Equal(t, "01/02/2025", rec.CoverageStart)
		assert.Equal(t, "31/07/2025", rec.CoverageEnd)
		assert.Equal(t, "15/01/2025", rec.CreationDate)
		assert.Equal(t, "2025-02", rec.TargetMonth)
		assert.Equal(t, 1, rec.InstallmentIndex)
		assert.Equal(t, 28, rec.WithdrawalDay) // Feb clamps the 30th
		assert.False(t, rec.MissingPayer)
	}
	assert.True(t, codes["BR1-1"])
	assert.True(t, codes["BR1-2"])
}

func TestExport_InstallmentIndexAdvancesWithMonth(t *testing.T) {
	ctx := context.Background()
	mem := memstore.NewMemory()
	seedCreditSale(t, mem, "PA-001122")

	exporter := postal.Exporter{Source: mem, PayeeAccount: "STORE-9", PayeeKey: "3"}
	result, err := exporter.Export(ctx, schedule.NewMonth(2025, time.April), schedule.NewDate(2025, time.March, 20))
	require.NoError(t, err)

	require.Len(t, result.Records, 2)
	for _, rec := range result.Records {
		assert.Equal(t, 3, rec.InstallmentIndex)
		assert.Equal(t, 30, rec.WithdrawalDay)
	}
}

func TestExport_MissingPayerAccountMarkedNotDropped(t *testing.T) {
	ctx := context.Background()
	mem := memstore.NewMemory()
	seedCreditSale(t, mem, "")

	exporter := postal.Exporter{Source: mem, PayeeAccount: "STORE-9", PayeeKey: "3"}
	result, err := exporter.Export(ctx, schedule.NewMonth(2025, time.February), schedule.NewDate(2025, time.January, 15))
	require.NoError(t, err)

	require.Len(t, result.Records, 2)
	assert.Equal(t, 2, result.MissingPayer)
	for _, rec := range result.Records {
		assert.Equal(t, postal.MissingPayerAccount, rec.PayerAccount)
		assert.True(t, rec.MissingPayer)
	}
}

func TestExport_SkipsPaidAndCashRows(t *testing.T) {
	ctx := context.Background()
	mem := memstore.NewMemory()
	result := seedCreditSale(t, mem, "PA-001122")

	// Settle one of the two February rows.
	for _, row := range result.Installments {
		if row.DueDate.MonthOf().Equal(schedule.NewMonth(2025, time.February)) {
			require.NoError(t, mem.UpdateInstallmentStatus(ctx, row.ID, schedule.InstallmentPaid, schedule.PostalCleared))
			break
		}
	}

	exporter := postal.Exporter{Source: mem, PayeeAccount: "STORE-9", PayeeKey: "3"}
	export, err := exporter.Export(ctx, schedule.NewMonth(2025, time.February), schedule.NewDate(2025, time.February, 1))
	require.NoError(t, err)
	assert.Len(t, export.Records, 1, "paid rows must not be requested again")
}

// =============================================================================
// IMPORT
// =============================================================================

func TestImport_AppliesStatusesToOldestPending(t *testing.T) {
	// Separator variants are all accepted; each outcome lands on the oldest
	// pending installment of its reference.
	ctx := context.Background()
	mem := memstore.NewMemory()
	seedCreditSale(t, mem, "PA-001122")

	batch := "BR1-1 0\nBR1-2,1\nBR1-2;2\n"
	summary, err := postal.Importer{Store: mem}.Import(ctx, batch)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Cleared)
	assert.Equal(t, 1, summary.Waiting)
	assert.Equal(t, 1, summary.Blocked)
	assert.Zero(t, summary.Unresolved)

	rows, err := mem.InstallmentsBySale(ctx, "sale-1")
	require.NoError(t, err)

	paid, blocked := 0, 0
	for _, row := range rows {
		if row.Status == schedule.InstallmentPaid {
			paid++
			assert.Equal(t, schedule.PostalCleared, row.PostalStatus)
			assert.Equal(t, schedule.NewMonth(2025, time.February), row.DueDate.MonthOf(), "cleared outcome lands on the oldest row")
		}
		if row.PostalStatus == schedule.PostalBlocked {
			blocked++
			assert.Equal(t, schedule.InstallmentPending, row.Status, "blocked rows stay pending")
		}
	}
	assert.Equal(t, 1, paid)
	assert.Equal(t, 1, blocked)
}

func TestImport_BadLinesReportedNotFatal(t *testing.T) {
	ctx := context.Background()
	mem := memstore.NewMemory()
	seedCreditSale(t, mem, "PA-001122")

	batch := "BR1-1 0\n\nUNKNOWN-99 0\nRFX9 9\njustonecolumn\n"
	summary, err := postal.Importer{Store: mem}.Import(ctx, batch)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Cleared)
	assert.Equal(t, 3, summary.Unresolved)
	require.Len(t, summary.Errors, 3)
	assert.Equal(t, 3, summary.Errors[0].Line)
	assert.Equal(t, "reference not found", summary.Errors[0].Reason)
	assert.Equal(t, "unparseable line", summary.Errors[1].Reason)
	assert.Equal(t, "unparseable line", summary.Errors[2].Reason)
}

func TestImport_ExhaustedReferenceUnresolved(t *testing.T) {
	ctx := context.Background()
	mem := memstore.NewMemory()
	result := seedCreditSale(t, mem, "PA-001122")

	// Settle every row of BR1-1.
	refID := result.References[0].ID
	for _, row := range result.Installments {
		if row.ReferenceID == refID {
			require.NoError(t, mem.UpdateInstallmentStatus(ctx, row.ID, schedule.InstallmentPaid, schedule.PostalCleared))
		}
	}

	summary, err := postal.Importer{Store: mem}.Import(ctx, result.References[0].Code+" 0\n")
	require.NoError(t, err)
	assert.Zero(t, summary.Cleared)
	assert.Equal(t, 1, summary.Unresolved)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "no pending installment", summary.Errors[0].Reason)
}

// =============================================================================
// ROUND TRIP
// =============================================================================

func TestExportImport_RoundTripSettlesMonth(t *testing.T) {
	// GIVEN: a month's withdrawal batch
	// WHEN: every record comes back cleared
	// THEN: the month's rows are Paid and a re-export is empty
	ctx := context.Background()
	mem := memstore.NewMemory()
	seedCreditSale(t, mem, "PA-001122")

	exporter := postal.Exporter{Source: mem, PayeeAccount: "STORE-9", PayeeKey: "3"}
	target := schedule.NewMonth(2025, time.February)

	export, err := exporter.Export(ctx, target, schedule.NewDate(2025, time.January, 20))
	require.NoError(t, err)
	require.Len(t, export.Records, 2)

	batch := ""
	for _, rec := range export.Records {
		batch += rec.ReferenceCode + " 0\n"
	}
	summary, err := postal.Importer{Store: mem}.Import(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, len(export.Records), summary.Cleared)

	rows, err := mem.InstallmentsDueIn(ctx, target)
	require.NoError(t, err)
	for _, row := range rows {
		assert.Equal(t, schedule.InstallmentPaid, row.Status)
		assert.Equal(t, schedule.PostalCleared, row.PostalStatus)
	}

	again, err := exporter.Export(ctx, target, schedule.NewDate(2025, time.February, 1))
	require.NoError(t, err)
	assert.Empty(t, again.Records)
}
