/*
Package schedule provides the installment schedule and payment-reference engine.

PURPOSE:
  This package contains the rule logic for credit-sale schedules: computing
  monthly due dates with calendar clamping, splitting the monthly obligation
  across payment-collection references, allocating sequential reference
  codes, and rebuilding schedules after commercial terms change.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A whole-currency-unit amount backed by decimal.Decimal
  - PaymentReference: One recurring slice of the monthly obligation
  - Installment: One due-date row, optionally tied to a reference
  - Sale/Customer: The minimal commercial records the engine operates on

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, floored at the two division
     points the rules define (monthly obligation, per-reference share)
  2. Type Safety: Strong typing for IDs prevents mixing sale/reference IDs
  3. Purity: The engine computes from explicit inputs; the clock and the
     last-issued reference number are parameters, never ambient state

SEE ALSO:
  - policy.go: Withdrawal-day policies and day resolution
  - split.go: Monthly amount splitting across references
  - builder.go: Schedule orchestration and atomic commit
*/
package schedule

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Whole currency units
// =============================================================================

// Money is an amount in whole currency units. The engine never deals in
// fractional units: every division is floored and the remainder reassigned
// explicitly.
type Money struct {
	Value decimal.Decimal
}

func NewMoney(units int64) Money {
	return Money{Value: decimal.NewFromInt(units)}
}

func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero}
	}
	return Money{Value: d}
}

func (m Money) Add(o Money) Money          { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money          { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Mul(n int64) Money          { return Money{Value: m.Value.Mul(decimal.NewFromInt(n))} }
func (m Money) DivFloor(n int64) Money     { return Money{Value: m.Value.Div(decimal.NewFromInt(n)).Floor()} }
func (m Money) IsZero() bool               { return m.Value.IsZero() }
func (m Money) IsNegative() bool           { return m.Value.IsNegative() }
func (m Money) IsPositive() bool           { return m.Value.IsPositive() }
func (m Money) LessThan(o Money) bool      { return m.Value.LessThan(o.Value) }
func (m Money) GreaterThan(o Money) bool   { return m.Value.GreaterThan(o.Value) }
func (m Money) Equal(o Money) bool         { return m.Value.Equal(o.Value) }
func (m Money) String() string             { return m.Value.String() }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SaleID string
type CustomerID string
type PolicyID string
type ReferenceID string
type InstallmentID string

// =============================================================================
// COMMERCIAL RECORDS
// =============================================================================

// Sale is a credit transaction. TotalAmount, TermMonths and PolicyID may be
// amended after creation, which invalidates any previously built schedule
// (see regen.go).
type Sale struct {
	ID           SaleID
	CustomerID   CustomerID
	BranchPrefix string
	TotalAmount  Money
	DownPayment  Money
	TermMonths   int
	StartMonth   Month
	PolicyID     PolicyID
	Status       SaleStatus
}

type SaleStatus string

const (
	SaleActive SaleStatus = "active"
	SaleStale  SaleStatus = "stale" // schedule no longer matches the sale's terms
	SaleClosed SaleStatus = "closed"
)

// Customer carries the identifying codes the postal collection system needs.
// PayerAccount may legitimately be empty; the export marks those records
// instead of dropping them.
type Customer struct {
	ID           CustomerID
	FirstName    string
	LastName     string
	PayerAccount string
	PayerKey     string
}

// =============================================================================
// PAYMENT REFERENCE - One recurring slice of the monthly obligation
// =============================================================================

// PaymentReference is a collection slip identifier valid for the sale's full
// term. Its amount is constant across every installment it covers.
// Immutable once any of its installments leaves Pending; edits require full
// regeneration.
type PaymentReference struct {
	ID            ReferenceID
	SaleID        SaleID
	Code          string // globally unique across all sales, branches and time
	Amount        Money
	CoverageStart Month
	CoverageEnd   Month
}

// =============================================================================
// INSTALLMENT - One due-date row
// =============================================================================

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPaid    InstallmentStatus = "paid"
)

type PostalStatus string

const (
	PostalNone    PostalStatus = "none"
	PostalWaiting PostalStatus = "waiting"
	PostalBlocked PostalStatus = "blocked"
	PostalCleared PostalStatus = "cleared"
)

// Installment is one row per (reference, due month) pair, or a single row
// per month on the zero-reference cash path. DueDate is immutable after
// creation except through full regeneration; Status and PostalStatus are the
// only fields collaborators update post-creation.
type Installment struct {
	ID           InstallmentID
	SaleID       SaleID
	ReferenceID  ReferenceID // empty on the cash path
	DueDate      Date
	Amount       Money
	Status       InstallmentStatus
	PostalStatus PostalStatus
}

// HasReference reports whether the row is tied to a payment reference.
func (i Installment) HasReference() bool { return i.ReferenceID != "" }

// =============================================================================
// SCHEDULE SUMMARY - Counts and sums by status
// =============================================================================

// Summary aggregates a schedule by status.
type Summary struct {
	TotalRows     int
	PendingRows   int
	PaidRows      int
	WaitingRows   int
	BlockedRows   int
	PendingAmount Money
	PaidAmount    Money
}

// Summarize computes status counts and totals over a set of installments.
func Summarize(rows []Installment) Summary {
	s := Summary{
		TotalRows:     len(rows),
		PendingAmount: NewMoney(0),
		PaidAmount:    NewMoney(0),
	}
	for _, row := range rows {
		switch row.Status {
		case InstallmentPaid:
			s.PaidRows++
			s.PaidAmount = s.PaidAmount.Add(row.Amount)
		default:
			s.PendingRows++
			s.PendingAmount = s.PendingAmount.Add(row.Amount)
		}
		switch row.PostalStatus {
		case PostalWaiting:
			s.WaitingRows++
		case PostalBlocked:
			s.BlockedRows++
		}
	}
	return s
}
