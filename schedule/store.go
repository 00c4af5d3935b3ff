/*
store.go - Persistence interfaces for the schedule engine

PURPOSE:
  Defines the collaborator contract between the engine and the external
  store. The engine consumes exactly three things from the store at build
  time: the highest issued reference number per branch prefix, a uniqueness
  check for candidate codes, and atomic persistence of the computed rows.

ATOMICITY CONTRACT:
  SaveSchedule persists all references and installments of one build as a
  single unit. A partial failure must not leave orphan references without
  installments or installments without valid references. A code uniqueness
  violation detected inside SaveSchedule is reported as ErrCodeCollision and
  nothing is written.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - schedule/store/memory.go: In-memory for testing/dev

SEE ALSO:
  - builder.go: Drives SaveSchedule
  - postal package: Reads via ScheduleStore for export/import
*/
package schedule

import "context"

// =============================================================================
// CODE STORE - Reference-number lookup and uniqueness
// =============================================================================

// CodeStore answers the two reference-code questions the engine asks.
type CodeStore interface {
	// LastNumber returns the highest numeric suffix among persisted codes
	// sharing the prefix (ordered descending, limit 1). Zero when none exist.
	LastNumber(ctx context.Context, prefix string) (int64, error)

	// CodeExists checks a candidate code against all persisted codes.
	CodeExists(ctx context.Context, code string) (bool, error)
}

// =============================================================================
// SCHEDULE STORE - Installment and reference persistence
// =============================================================================

type ScheduleStore interface {
	// SaveSchedule persists one build atomically. Returns ErrCodeCollision
	// (wrapped) if any reference code collides with history at commit time;
	// nothing is written in that case.
	SaveSchedule(ctx context.Context, refs []PaymentReference, rows []Installment) error

	ReferencesBySale(ctx context.Context, saleID SaleID) ([]PaymentReference, error)
	InstallmentsBySale(ctx context.Context, saleID SaleID) ([]Installment, error)

	// ReferenceByCode resolves a postal outcome line. ErrReferenceNotFound
	// when the code is unknown.
	ReferenceByCode(ctx context.Context, code string) (PaymentReference, error)

	// OldestPendingByReference selects the single oldest installment of the
	// reference still Pending. ErrNoPendingInstallment when all settled.
	OldestPendingByReference(ctx context.Context, refID ReferenceID) (Installment, error)

	// InstallmentsDueIn returns installments whose due date falls in the month.
	InstallmentsDueIn(ctx context.Context, m Month) ([]Installment, error)

	// UpdateInstallmentStatus is the only post-creation mutation collaborators
	// may apply to an installment.
	UpdateInstallmentStatus(ctx context.Context, id InstallmentID, status InstallmentStatus, postal PostalStatus) error

	// ReplaceSchedule swaps the sale's schedule in one atomic unit: removes
	// all non-paid installments and every reference left without rows, then
	// persists the new build. The collision contract matches SaveSchedule -
	// on ErrCodeCollision nothing changes, paid history included.
	ReplaceSchedule(ctx context.Context, saleID SaleID, refs []PaymentReference, rows []Installment) error
}

// =============================================================================
// SALE / CUSTOMER STORES - Thin commercial records
// =============================================================================

type SaleStore interface {
	SaveSale(ctx context.Context, s Sale) error
	Sale(ctx context.Context, id SaleID) (Sale, error)
	UpdateSaleStatus(ctx context.Context, id SaleID, status SaleStatus) error
}

type CustomerStore interface {
	SaveCustomer(ctx context.Context, c Customer) error
	Customer(ctx context.Context, id CustomerID) (Customer, error)
}

// Store aggregates every persistence capability the application wires.
type Store interface {
	CodeStore
	ScheduleStore
	SaleStore
	CustomerStore
}
