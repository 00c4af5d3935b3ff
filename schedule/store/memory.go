// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/castra/credit-engine/schedule"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	sales        map[schedule.SaleID]schedule.Sale
	customers    map[schedule.CustomerID]schedule.Customer
	references   map[schedule.ReferenceID]schedule.PaymentReference
	installments map[schedule.InstallmentID]schedule.Installment
	codes        map[string]schedule.ReferenceID
}

func NewMemory() *Memory {
	return &Memory{
		sales:        make(map[schedule.SaleID]schedule.Sale),
		customers:    make(map[schedule.CustomerID]schedule.Customer),
		references:   make(map[schedule.ReferenceID]schedule.PaymentReference),
		installments: make(map[schedule.InstallmentID]schedule.Installment),
		codes:        make(map[string]schedule.ReferenceID),
	}
}

var _ schedule.Store = (*Memory)(nil)

// =============================================================================
// CODE STORE
// =============================================================================

func (m *Memory) LastNumber(_ context.Context, prefix string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var last int64
	for code := range m.codes {
		if n, ok := schedule.ParseSuffix(prefix, code); ok && n > last {
			last = n
		}
	}
	return last, nil
}

func (m *Memory) CodeExists(_ context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.codes[code]
	return ok, nil
}

// =============================================================================
// SCHEDULE STORE
// =============================================================================

// SaveSchedule persists one build atomically: the code check and every
// write happen under a single lock, so a collision writes nothing.
func (m *Memory) SaveSchedule(_ context.Context, refs []schedule.PaymentReference, rows []schedule.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ref := range refs {
		if _, taken := m.codes[ref.Code]; taken {
			return schedule.ErrCodeCollision
		}
	}
	for _, row := range rows {
		if _, exists := m.installments[row.ID]; exists {
			return fmt.Errorf("installment %s already exists", row.ID)
		}
	}
	m.insertLocked(refs, rows)
	return nil
}

// ReplaceSchedule swaps the sale's schedule under one lock. All checks run
// before any mutation, so a rejected batch changes nothing.
func (m *Memory) ReplaceSchedule(_ context.Context, saleID schedule.SaleID, refs []schedule.PaymentReference, rows []schedule.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ref := range refs {
		if _, taken := m.codes[ref.Code]; taken {
			return schedule.ErrCodeCollision
		}
	}
	for _, row := range rows {
		existing, ok := m.installments[row.ID]
		if ok && (existing.SaleID != saleID || existing.Status == schedule.InstallmentPaid) {
			return fmt.Errorf("installment %s already exists", row.ID)
		}
	}

	m.deleteUnpaidLocked(saleID)
	m.insertLocked(refs, rows)
	return nil
}

func (m *Memory) insertLocked(refs []schedule.PaymentReference, rows []schedule.Installment) {
	for _, ref := range refs {
		m.references[ref.ID] = ref
		m.codes[ref.Code] = ref.ID
	}
	for _, row := range rows {
		m.installments[row.ID] = row
	}
}

func (m *Memory) ReferencesBySale(_ context.Context, saleID schedule.SaleID) ([]schedule.PaymentReference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []schedule.PaymentReference
	for _, ref := range m.references {
		if ref.SaleID == saleID {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) InstallmentsBySale(_ context.Context, saleID schedule.SaleID) ([]schedule.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []schedule.Installment
	for _, row := range m.installments {
		if row.SaleID == saleID {
			out = append(out, row)
		}
	}
	sortByDueDate(out)
	return out, nil
}

func (m *Memory) ReferenceByCode(_ context.Context, code string) (schedule.PaymentReference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.codes[code]
	if !ok {
		return schedule.PaymentReference{}, schedule.ErrReferenceNotFound
	}
	// A code can outlive its reference (ReplaceSchedule keeps retired
	// numbers reserved). Such codes resolve to nothing.
	ref, ok := m.references[id]
	if !ok {
		return schedule.PaymentReference{}, schedule.ErrReferenceNotFound
	}
	return ref, nil
}

func (m *Memory) OldestPendingByReference(_ context.Context, refID schedule.ReferenceID) (schedule.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending []schedule.Installment
	for _, row := range m.installments {
		if row.ReferenceID == refID && row.Status == schedule.InstallmentPending {
			pending = append(pending, row)
		}
	}
	if len(pending) == 0 {
		return schedule.Installment{}, schedule.ErrNoPendingInstallment
	}
	sortByDueDate(pending)
	return pending[0], nil
}

func (m *Memory) InstallmentsDueIn(_ context.Context, month schedule.Month) ([]schedule.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []schedule.Installment
	for _, row := range m.installments {
		if row.DueDate.MonthOf().Equal(month) {
			out = append(out, row)
		}
	}
	sortByDueDate(out)
	return out, nil
}

func (m *Memory) UpdateInstallmentStatus(_ context.Context, id schedule.InstallmentID, status schedule.InstallmentStatus, postal schedule.PostalStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.installments[id]
	if !ok {
		return schedule.ErrNoPendingInstallment
	}
	row.Status = status
	row.PostalStatus = postal
	m.installments[id] = row
	return nil
}

func (m *Memory) deleteUnpaidLocked(saleID schedule.SaleID) {
	for id, row := range m.installments {
		if row.SaleID == saleID && row.Status != schedule.InstallmentPaid {
			delete(m.installments, id)
		}
	}

	// Drop references left without rows. Their codes stay reserved: codes
	// are globally unique across time, a deleted reference's number is
	// never reissued.
	for refID, ref := range m.references {
		if ref.SaleID != saleID {
			continue
		}
		inUse := false
		for _, row := range m.installments {
			if row.ReferenceID == refID {
				inUse = true
				break
			}
		}
		if !inUse {
			delete(m.references, refID)
		}
	}
}

// =============================================================================
// SALE / CUSTOMER STORES
// =============================================================================

func (m *Memory) SaveSale(_ context.Context, s schedule.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sales[s.ID] = s
	return nil
}

func (m *Memory) Sale(_ context.Context, id schedule.SaleID) (schedule.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sales[id]
	if !ok {
		return schedule.Sale{}, schedule.ErrSaleNotFound
	}
	return s, nil
}

func (m *Memory) UpdateSaleStatus(_ context.Context, id schedule.SaleID, status schedule.SaleStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sales[id]
	if !ok {
		return schedule.ErrSaleNotFound
	}
	s.Status = status
	m.sales[id] = s
	return nil
}

func (m *Memory) SaveCustomer(_ context.Context, c schedule.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.ID] = c
	return nil
}

func (m *Memory) Customer(_ context.Context, id schedule.CustomerID) (schedule.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.customers[id]
	if !ok {
		return schedule.Customer{}, schedule.ErrCustomerNotFound
	}
	return c, nil
}

func sortByDueDate(rows []schedule.Installment) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DueDate.Equal(rows[j].DueDate) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].DueDate.Before(rows[j].DueDate)
	})
}
