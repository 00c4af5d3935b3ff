/*
Package postal implements the monthly export/import cycle with the external
postal collection system.

PURPOSE:
  Export: join a month's pending installments with their reference and the
  sale's customer, and emit one fixed-column record per installment for the
  withdrawal request file.
  Import: decode the returned status batch (reference code + status 0/1/2)
  into installment status transitions.

TOLERANCE:
  Both directions favor reporting over failing. Export records with a
  missing payer account are marked, never dropped. Import lines that don't
  parse or don't resolve are counted and reported, never abort the batch.

SEE ALSO:
  - import.go: Status batch decoding and application
  - schedule/store.go: The store queries both directions use
*/
package postal

import (
	"context"
	"fmt"

	"github.com/castra/credit-engine/schedule"
)

// MissingPayerAccount is the literal placeholder written when a customer has
// no payer account on record. Never a blank cell.
const MissingPayerAccount = "NO-ACCOUNT"

// =============================================================================
// EXPORT - Withdrawal request records for one target month
// =============================================================================

// Source is what the exporter reads. schedule.Store satisfies it.
type Source interface {
	InstallmentsDueIn(ctx context.Context, m schedule.Month) ([]schedule.Installment, error)
	ReferencesBySale(ctx context.Context, saleID schedule.SaleID) ([]schedule.PaymentReference, error)
	Sale(ctx context.Context, id schedule.SaleID) (schedule.Sale, error)
	Customer(ctx context.Context, id schedule.CustomerID) (schedule.Customer, error)
}

// Record is one fixed-column export row.
type Record struct {
	PayerAccount     string
	PayerKey         string
	LastName         string
	FirstName        string
	Amount           schedule.Money
	PayeeAccount     string
	PayeeKey         string
	CoverageStart    string // DD/MM/YYYY
	CoverageEnd      string // DD/MM/YYYY
	CreationDate     string // DD/MM/YYYY
	TargetMonth      string // YYYY-MM
	InstallmentIndex int    // 1-based position within the reference's term
	WithdrawalDay    int
	ReferenceCode    string

	// MissingPayer marks records whose customer had no payer account.
	MissingPayer bool
}

// ExportResult is the record set plus its anomaly counts.
type ExportResult struct {
	TargetMonth  schedule.Month
	Records      []Record
	MissingPayer int
}

type Exporter struct {
	Source       Source
	PayeeAccount string
	PayeeKey     string
}

// Export emits one record per pending installment due in the target month
// that carries a reference. Cash-path rows have no collection slip and are
// not exported.
func (e Exporter) Export(ctx context.Context, target schedule.Month, asOf schedule.Date) (*ExportResult, error) {
	rows, err := e.Source.InstallmentsDueIn(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("installments for %s: %w", target, err)
	}

	result := &ExportResult{TargetMonth: target}
	refCache := make(map[schedule.SaleID]map[schedule.ReferenceID]schedule.PaymentReference)

	for _, row := range rows {
		if !row.HasReference() || row.Status != schedule.InstallmentPending {
			continue
		}

		refs, ok := refCache[row.SaleID]
		if !ok {
			list, err := e.Source.ReferencesBySale(ctx, row.SaleID)
			if err != nil {
				return nil, fmt.Errorf("references for sale %s: %w", row.SaleID, err)
			}
			refs = make(map[schedule.ReferenceID]schedule.PaymentReference, len(list))
			for _, r := range list {
				refs[r.ID] = r
			}
			refCache[row.SaleID] = refs
		}
		ref, ok := refs[row.ReferenceID]
		if !ok {
			return nil, fmt.Errorf("installment %s: %w", row.ID, schedule.ErrReferenceNotFound)
		}

		sale, err := e.Source.Sale(ctx, row.SaleID)
		if err != nil {
			return nil, fmt.Errorf("sale %s: %w", row.SaleID, err)
		}
		customer, err := e.Source.Customer(ctx, sale.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("customer %s: %w", sale.CustomerID, err)
		}

		rec := Record{
			PayerAccount:     customer.PayerAccount,
			PayerKey:         customer.PayerKey,
			LastName:         customer.LastName,
			FirstName:        customer.FirstName,
			Amount:           row.Amount,
			PayeeAccount:     e.PayeeAccount,
			PayeeKey:         e.PayeeKey,
			CoverageStart:    ref.CoverageStart.First().FormatDMY(),
			CoverageEnd:      ref.CoverageEnd.Last().FormatDMY(),
			CreationDate:     asOf.FormatDMY(),
			TargetMonth:      target.String(),
			InstallmentIndex: installmentIndex(ref.CoverageStart, target),
			WithdrawalDay:    row.DueDate.Day(),
			ReferenceCode:    ref.Code,
		}
		if rec.PayerAccount == "" {
			rec.PayerAccount = MissingPayerAccount
			rec.MissingPayer = true
			result.MissingPayer++
		}
		result.Records = append(result.Records, rec)
	}
	return result, nil
}

// installmentIndex is the 1-based position of the target month within the
// reference's coverage window.
func installmentIndex(coverageStart, target schedule.Month) int {
	idx := 1
	m := coverageStart
	for m.Before(target) {
		m = m.AddMonths(1)
		idx++
	}
	return idx
}
