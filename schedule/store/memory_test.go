package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castra/credit-engine/schedule"
	"github.com/castra/credit-engine/schedule/store"
)

func saveRows(t *testing.T, mem *store.Memory, code string, months ...schedule.Month) schedule.ReferenceID {
	t.Helper()
	refID := schedule.ReferenceID("ref-" + code)
	ref := schedule.PaymentReference{
		ID:     refID,
		SaleID: "sale-1",
		Code:   code,
		Amount: schedule.NewMoney(1000),
	}
	var rows []schedule.Installment
	for _, m := range months {
		due := m.Date(30)
		rows = append(rows, schedule.Installment{
			ID:          schedule.InstallmentID("inst-" + code + "-" + due.String()),
			SaleID:      "sale-1",
			ReferenceID: refID,
			DueDate:     due,
			Amount:      schedule.NewMoney(1000),
			Status:      schedule.InstallmentPending,
		})
	}
	require.NoError(t, mem.SaveSchedule(context.Background(), []schedule.PaymentReference{ref}, rows))
	return refID
}

func TestMemory_OldestPendingOrdering(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	refID := saveRows(t, mem, "BR1-1",
		schedule.NewMonth(2025, time.April),
		schedule.NewMonth(2025, time.February),
		schedule.NewMonth(2025, time.March),
	)

	row, err := mem.OldestPendingByReference(ctx, refID)
	require.NoError(t, err)
	assert.Equal(t, "2025-02-28", row.DueDate.String())

	// Settling the oldest advances the cursor.
	require.NoError(t, mem.UpdateInstallmentStatus(ctx, row.ID, schedule.InstallmentPaid, schedule.PostalCleared))
	row, err = mem.OldestPendingByReference(ctx, refID)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-30", row.DueDate.String())
}

func TestMemory_ReplaceSchedulePrunesOrphanReferences(t *testing.T) {
	// GIVEN: one reference fully pending, one with a paid row
	// WHEN: replacing the sale's schedule with a fresh build
	// THEN: the fully-pending reference is dropped, the paid one kept, and
	//       retired codes stay reserved for future uniqueness checks
	ctx := context.Background()
	mem := store.NewMemory()
	orphan := saveRows(t, mem, "BR1-1", schedule.NewMonth(2025, time.February))
	kept := saveRows(t, mem, "BR1-2", schedule.NewMonth(2025, time.February))

	rows, err := mem.InstallmentsBySale(ctx, "sale-1")
	require.NoError(t, err)
	for _, row := range rows {
		if row.ReferenceID == kept {
			require.NoError(t, mem.UpdateInstallmentStatus(ctx, row.ID, schedule.InstallmentPaid, schedule.PostalCleared))
		}
	}

	next := schedule.PaymentReference{
		ID:     "ref-BR1-3",
		SaleID: "sale-1",
		Code:   "BR1-3",
		Amount: schedule.NewMoney(1000),
	}
	nextRow := schedule.Installment{
		ID:          "inst-replacement",
		SaleID:      "sale-1",
		ReferenceID: next.ID,
		DueDate:     schedule.NewDate(2025, time.March, 30),
		Amount:      schedule.NewMoney(1000),
		Status:      schedule.InstallmentPending,
	}
	require.NoError(t, mem.ReplaceSchedule(ctx, "sale-1",
		[]schedule.PaymentReference{next}, []schedule.Installment{nextRow}))

	refs, err := mem.ReferencesBySale(ctx, "sale-1")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, kept, refs[0].ID)
	assert.Equal(t, next.ID, refs[1].ID)
	assert.NotEqual(t, orphan, refs[0].ID)

	_, err = mem.ReferenceByCode(ctx, "BR1-1")
	assert.ErrorIs(t, err, schedule.ErrReferenceNotFound)

	exists, err := mem.CodeExists(ctx, "BR1-1")
	require.NoError(t, err)
	assert.True(t, exists, "deleted reference numbers are never reissued")
}

func TestMemory_ReplaceScheduleCollisionChangesNothing(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	saveRows(t, mem, "BR1-1", schedule.NewMonth(2025, time.February))

	clash := schedule.PaymentReference{
		ID:     "ref-clash",
		SaleID: "sale-1",
		Code:   "BR1-1", // already issued
		Amount: schedule.NewMoney(1000),
	}
	err := mem.ReplaceSchedule(ctx, "sale-1", []schedule.PaymentReference{clash}, nil)
	require.ErrorIs(t, err, schedule.ErrCodeCollision)

	rows, err := mem.InstallmentsBySale(ctx, "sale-1")
	require.NoError(t, err)
	assert.Len(t, rows, 1, "rejected swap must not delete anything")
}

func TestMemory_SaveScheduleRejectsDuplicateRowIDs(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()

	row := schedule.Installment{
		ID:      "inst-dup",
		SaleID:  "sale-1",
		DueDate: schedule.NewDate(2025, time.February, 28),
		Amount:  schedule.NewMoney(1000),
		Status:  schedule.InstallmentPending,
	}
	require.NoError(t, mem.SaveSchedule(ctx, nil, []schedule.Installment{row}))

	err := mem.SaveSchedule(ctx, nil, []schedule.Installment{row})
	require.Error(t, err)

	rows, err := mem.InstallmentsBySale(ctx, "sale-1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestMemory_LastNumberIgnoresForeignPrefixes(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	saveRows(t, mem, "BR1-9", schedule.NewMonth(2025, time.February))
	saveRows(t, mem, "BR2-40", schedule.NewMonth(2025, time.February))
	saveRows(t, mem, "CUSTOM-99", schedule.NewMonth(2025, time.February))

	last, err := mem.LastNumber(ctx, "BR1-")
	require.NoError(t, err)
	assert.Equal(t, int64(9), last)

	last, err = mem.LastNumber(ctx, "ZZ-")
	require.NoError(t, err)
	assert.Zero(t, last)
}
