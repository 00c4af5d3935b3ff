/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements schedule.Store (codes, schedules, sales, customers) using
  SQLite. In production, the same patterns apply to PostgreSQL - only minor
  SQL dialect differences.

UNIQUENESS ENFORCEMENT:
  The reference-code uniqueness invariant lives in the database: the
  append-only reference_codes registry holds every code ever issued, with
  code as PRIMARY KEY. Two concurrent builds racing on the same branch
  prefix can both pass the pre-commit check; the loser fails the whole
  batch here and surfaces schedule.ErrCodeCollision, never a partial
  commit. Regeneration deletes references but never registry rows, so a
  retired code's number is never reissued.

KEY TABLES:
  sales:              Commercial records
  customers:          Payer identification for the postal export
  reference_codes:    Every code ever issued (append-only)
  payment_references: Collection slips (code UNIQUE)
  installments:       One row per (reference, due month)

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

SEE ALSO:
  - schedule/store.go: Interface definitions
  - schedule/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/castra/credit-engine/schedule"
)

// Store implements schedule.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ schedule.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schemaSQL := `
	-- Sales
	CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		branch_prefix TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		down_payment TEXT NOT NULL,
		term_months INTEGER NOT NULL,
		start_month TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sales_customer
		ON sales(customer_id);

	-- Customers (payer identification for the postal export)
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		payer_account TEXT,
		payer_key TEXT,
		created_at TEXT NOT NULL
	);

	-- Every code ever issued. Append-only: regeneration deletes references
	-- but never registry rows, so numbers are never reissued.
	-- CRITICAL: the PRIMARY KEY is the commit-time safety net for the
	-- sequential numbering race. A collision fails the whole batch.
	CREATE TABLE IF NOT EXISTS reference_codes (
		code TEXT PRIMARY KEY,
		issued_at TEXT NOT NULL
	);

	-- Payment references (collection slips)
	CREATE TABLE IF NOT EXISTS payment_references (
		id TEXT PRIMARY KEY,
		sale_id TEXT NOT NULL,
		code TEXT NOT NULL UNIQUE,
		amount TEXT NOT NULL,
		coverage_start TEXT NOT NULL,
		coverage_end TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_references_sale
		ON payment_references(sale_id);

	-- Installments
	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		sale_id TEXT NOT NULL,
		reference_id TEXT,
		due_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		postal_status TEXT NOT NULL DEFAULT 'none',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_installments_sale
		ON installments(sale_id);
	CREATE INDEX IF NOT EXISTS idx_installments_reference
		ON installments(reference_id) WHERE reference_id IS NOT NULL;

	-- Due-month export query (hot path for the postal cycle)
	CREATE INDEX IF NOT EXISTS idx_installments_due_date
		ON installments(due_date);
	CREATE INDEX IF NOT EXISTS idx_installments_reference_status
		ON installments(reference_id, status, due_date);
	`

	_, err := s.db.Exec(schemaSQL)
	return err
}

// =============================================================================
// CODE STORE (schedule.CodeStore interface)
// =============================================================================

// LastNumber returns the highest numeric suffix among codes sharing the
// prefix. Candidate rows come back ordered descending; manual codes with
// non-numeric suffixes are skipped.
func (s *Store) LastNumber(ctx context.Context, prefix string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT code FROM reference_codes
		 WHERE code LIKE ? ORDER BY LENGTH(code) DESC, code DESC`,
		prefix+"%",
	)
	if err != nil {
		return 0, fmt.Errorf("failed to query codes for %q: %w", prefix, err)
	}
	defer rows.Close()

	var last int64
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return 0, err
		}
		if n, ok := schedule.ParseSuffix(prefix, code); ok && n > last {
			last = n
		}
	}
	return last, rows.Err()
}

func (s *Store) CodeExists(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reference_codes WHERE code = ?", code,
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// SCHEDULE STORE (schedule.ScheduleStore interface)
// =============================================================================

// SaveSchedule persists one build atomically. The UNIQUE index on code
// rejects commit-time collisions; nothing is written in that case.
func (s *Store) SaveSchedule(ctx context.Context, refs []schedule.PaymentReference, rows []schedule.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := insertScheduleTx(ctx, sqlTx, refs, rows); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// ReplaceSchedule swaps the sale's schedule in one transaction: non-paid
// rows and orphaned references go, the new build comes in. A rollback -
// code collision included - leaves the old schedule fully in place.
func (s *Store) ReplaceSchedule(ctx context.Context, saleID schedule.SaleID, refs []schedule.PaymentReference, rows []schedule.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := deleteUnpaidTx(ctx, sqlTx, saleID); err != nil {
		return err
	}
	if err := insertScheduleTx(ctx, sqlTx, refs, rows); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func insertScheduleTx(ctx context.Context, sqlTx *sql.Tx, refs []schedule.PaymentReference, rows []schedule.Installment) error {
	now := time.Now().UTC().Format(time.RFC3339)

	for _, ref := range refs {
		// The registry insert is the collision gate: a code issued at any
		// point in the past fails the whole batch here.
		_, err := sqlTx.ExecContext(ctx,
			"INSERT INTO reference_codes (code, issued_at) VALUES (?, ?)",
			ref.Code, now,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("code %q: %w", ref.Code, schedule.ErrCodeCollision)
			}
			return fmt.Errorf("failed to register code %s: %w", ref.Code, err)
		}

		_, err = sqlTx.ExecContext(ctx,
			`INSERT INTO payment_references
			 (id, sale_id, code, amount, coverage_start, coverage_end, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ref.ID, ref.SaleID, ref.Code, ref.Amount.String(),
			ref.CoverageStart.String(), ref.CoverageEnd.String(), now,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("code %q: %w", ref.Code, schedule.ErrCodeCollision)
			}
			return fmt.Errorf("failed to insert reference %s: %w", ref.Code, err)
		}
	}

	for _, row := range rows {
		_, err := sqlTx.ExecContext(ctx,
			`INSERT INTO installments
			 (id, sale_id, reference_id, due_date, amount, status, postal_status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			row.ID, row.SaleID, nullString(string(row.ReferenceID)),
			row.DueDate.String(), row.Amount.String(), row.Status, row.PostalStatus, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert installment %s: %w", row.ID, err)
		}
	}
	return nil
}

func (s *Store) ReferencesBySale(ctx context.Context, saleID schedule.SaleID) ([]schedule.PaymentReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryReferences(ctx,
		`SELECT id, sale_id, code, amount, coverage_start, coverage_end
		 FROM payment_references WHERE sale_id = ? ORDER BY code ASC`,
		saleID)
}

func (s *Store) InstallmentsBySale(ctx context.Context, saleID schedule.SaleID) ([]schedule.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryInstallments(ctx,
		`SELECT id, sale_id, reference_id, due_date, amount, status, postal_status
		 FROM installments WHERE sale_id = ? ORDER BY due_date ASC, id ASC`,
		saleID)
}

func (s *Store) ReferenceByCode(ctx context.Context, code string) (schedule.PaymentReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs, err := s.queryReferences(ctx,
		`SELECT id, sale_id, code, amount, coverage_start, coverage_end
		 FROM payment_references WHERE code = ?`,
		code)
	if err != nil {
		return schedule.PaymentReference{}, err
	}
	if len(refs) == 0 {
		return schedule.PaymentReference{}, schedule.ErrReferenceNotFound
	}
	return refs[0], nil
}

func (s *Store) OldestPendingByReference(ctx context.Context, refID schedule.ReferenceID) (schedule.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.queryInstallments(ctx,
		`SELECT id, sale_id, reference_id, due_date, amount, status, postal_status
		 FROM installments
		 WHERE reference_id = ? AND status = ?
		 ORDER BY due_date ASC LIMIT 1`,
		refID, schedule.InstallmentPending)
	if err != nil {
		return schedule.Installment{}, err
	}
	if len(rows) == 0 {
		return schedule.Installment{}, schedule.ErrNoPendingInstallment
	}
	return rows[0], nil
}

func (s *Store) InstallmentsDueIn(ctx context.Context, m schedule.Month) ([]schedule.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryInstallments(ctx,
		`SELECT id, sale_id, reference_id, due_date, amount, status, postal_status
		 FROM installments
		 WHERE due_date >= ? AND due_date <= ?
		 ORDER BY due_date ASC, id ASC`,
		m.First().String(), m.Last().String())
}

func (s *Store) UpdateInstallmentStatus(ctx context.Context, id schedule.InstallmentID, status schedule.InstallmentStatus, postal schedule.PostalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE installments SET status = ?, postal_status = ? WHERE id = ?",
		status, postal, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update installment %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return schedule.ErrNoPendingInstallment
	}
	return nil
}

func deleteUnpaidTx(ctx context.Context, sqlTx *sql.Tx, saleID schedule.SaleID) error {
	_, err := sqlTx.ExecContext(ctx,
		"DELETE FROM installments WHERE sale_id = ? AND status != ?",
		saleID, schedule.InstallmentPaid,
	)
	if err != nil {
		return fmt.Errorf("failed to delete installments: %w", err)
	}

	_, err = sqlTx.ExecContext(ctx,
		`DELETE FROM payment_references
		 WHERE sale_id = ?
		   AND id NOT IN (SELECT reference_id FROM installments WHERE reference_id IS NOT NULL)`,
		saleID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete references: %w", err)
	}
	return nil
}

// =============================================================================
// SALE / CUSTOMER STORES
// =============================================================================

func (s *Store) SaveSale(ctx context.Context, sale schedule.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sales
		 (id, customer_id, branch_prefix, total_amount, down_payment, term_months,
		  start_month, policy_id, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   total_amount = excluded.total_amount,
		   down_payment = excluded.down_payment,
		   term_months = excluded.term_months,
		   start_month = excluded.start_month,
		   policy_id = excluded.policy_id,
		   status = excluded.status`,
		sale.ID, sale.CustomerID, sale.BranchPrefix,
		sale.TotalAmount.String(), sale.DownPayment.String(), sale.TermMonths,
		sale.StartMonth.String(), sale.PolicyID, sale.Status,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save sale %s: %w", sale.ID, err)
	}
	return nil
}

func (s *Store) Sale(ctx context.Context, id schedule.SaleID) (schedule.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		sale       schedule.Sale
		total      string
		down       string
		startMonth string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, customer_id, branch_prefix, total_amount, down_payment,
		        term_months, start_month, policy_id, status
		 FROM sales WHERE id = ?`, id,
	).Scan(&sale.ID, &sale.CustomerID, &sale.BranchPrefix, &total, &down,
		&sale.TermMonths, &startMonth, &sale.PolicyID, &sale.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Sale{}, schedule.ErrSaleNotFound
	}
	if err != nil {
		return schedule.Sale{}, fmt.Errorf("failed to load sale %s: %w", id, err)
	}

	sale.TotalAmount = schedule.MustParseMoney(total)
	sale.DownPayment = schedule.MustParseMoney(down)
	sale.StartMonth, err = schedule.ParseMonth(startMonth)
	if err != nil {
		return schedule.Sale{}, err
	}
	return sale, nil
}

func (s *Store) UpdateSaleStatus(ctx context.Context, id schedule.SaleID, status schedule.SaleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE sales SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("failed to update sale %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return schedule.ErrSaleNotFound
	}
	return nil
}

func (s *Store) SaveCustomer(ctx context.Context, c schedule.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (id, first_name, last_name, payer_account, payer_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   first_name = excluded.first_name,
		   last_name = excluded.last_name,
		   payer_account = excluded.payer_account,
		   payer_key = excluded.payer_key`,
		c.ID, c.FirstName, c.LastName, c.PayerAccount, c.PayerKey,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save customer %s: %w", c.ID, err)
	}
	return nil
}

func (s *Store) Customer(ctx context.Context, id schedule.CustomerID) (schedule.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		c       schedule.Customer
		account sql.NullString
		key     sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, first_name, last_name, payer_account, payer_key FROM customers WHERE id = ?", id,
	).Scan(&c.ID, &c.FirstName, &c.LastName, &account, &key)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Customer{}, schedule.ErrCustomerNotFound
	}
	if err != nil {
		return schedule.Customer{}, fmt.Errorf("failed to load customer %s: %w", id, err)
	}
	c.PayerAccount = account.String
	c.PayerKey = key.String
	return c, nil
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

func (s *Store) queryReferences(ctx context.Context, query string, args ...any) ([]schedule.PaymentReference, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query references: %w", err)
	}
	defer rows.Close()

	var refs []schedule.PaymentReference
	for rows.Next() {
		var (
			ref    schedule.PaymentReference
			amount string
			start  string
			end    string
		)
		if err := rows.Scan(&ref.ID, &ref.SaleID, &ref.Code, &amount, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan reference: %w", err)
		}
		ref.Amount = schedule.MustParseMoney(amount)
		if ref.CoverageStart, err = schedule.ParseMonth(start); err != nil {
			return nil, err
		}
		if ref.CoverageEnd, err = schedule.ParseMonth(end); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (s *Store) queryInstallments(ctx context.Context, query string, args ...any) ([]schedule.Installment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query installments: %w", err)
	}
	defer rows.Close()

	var out []schedule.Installment
	for rows.Next() {
		var (
			row    schedule.Installment
			refID  sql.NullString
			due    string
			amount string
		)
		if err := rows.Scan(&row.ID, &row.SaleID, &refID, &due, &amount, &row.Status, &row.PostalStatus); err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}
		row.ReferenceID = schedule.ReferenceID(refID.String)
		if row.DueDate, err = schedule.ParseDate(due); err != nil {
			return nil, err
		}
		row.Amount = schedule.MustParseMoney(amount)
		out = append(out, row)
	}
	return out, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
