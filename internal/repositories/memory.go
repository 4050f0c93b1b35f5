package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"rental-backend/internal/models"
)

// MemoryStore keeps everything in maps behind one mutex. It follows the same
// conditional-write rules as the Postgres repositories and backs the service
// and handler tests.
type MemoryStore struct {
	mu sync.Mutex

	rooms     map[int64]*models.Room
	tenants   map[int64]*models.Tenant
	readings  map[int64]*models.MeterReading
	invoices  map[int64]*models.Invoice
	payments  map[int64]*models.Payment
	anomalies []*models.ReconciliationAnomaly
	prices    models.UtilityPrices

	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    map[int64]*models.Room{},
		tenants:  map[int64]*models.Tenant{},
		readings: map[int64]*models.MeterReading{},
		invoices: map[int64]*models.Invoice{},
		payments: map[int64]*models.Payment{},
	}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

// PutRoom seeds a room; ID 0 gets a fresh id.
func (s *MemoryStore) PutRoom(r models.Room) *models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.id()
	}
	s.rooms[r.ID] = &r
	return &r
}

// PutTenant seeds a tenant; ID 0 gets a fresh id.
func (s *MemoryStore) PutTenant(t models.Tenant) *models.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.id()
	}
	s.tenants[t.ID] = &t
	return &t
}

// PutInvoice seeds an invoice as-is, bypassing the uniqueness check.
func (s *MemoryStore) PutInvoice(inv models.Invoice) *models.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.ID == 0 {
		inv.ID = s.id()
	}
	if inv.Status == "" {
		inv.Status = models.InvoiceStatusUnpaid
	}
	s.invoices[inv.ID] = &inv
	cp := inv
	return &cp
}

// Payments returns copies of every payment, ordered by id.
func (s *MemoryStore) Payments() []models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Invoices returns copies of every invoice, ordered by id.
func (s *MemoryStore) Invoices() []models.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		out = append(out, *inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, fmt.Errorf("room %d: %w", id, models.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) GetTenant(ctx context.Context, id int64) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, fmt.Errorf("tenant %d: %w", id, models.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListTenants(ctx context.Context, afterID int64, limit int) ([]*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Tenant
	for _, t := range s.tenants {
		if t.ID > afterID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateTenantPII(ctx context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.ID]; !ok {
		return fmt.Errorf("tenant %d: %w", t.ID, models.ErrNotFound)
	}
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

func (s *MemoryStore) UtilityPrices(ctx context.Context) (models.UtilityPrices, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prices, nil
}

func (s *MemoryStore) SetUtilityPrices(ctx context.Context, p models.UtilityPrices) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices = p
	return nil
}

func (s *MemoryStore) GetReading(ctx context.Context, id int64) (*models.MeterReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.readings[id]
	if !ok {
		return nil, fmt.Errorf("meter reading %d: %w", id, models.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) CreateReading(ctx context.Context, r *models.MeterReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.readings {
		if existing.RoomID == r.RoomID && existing.Period == r.Period {
			return fmt.Errorf("meter reading for room %d period %s: %w", r.RoomID, r.Period, models.ErrDuplicate)
		}
	}
	r.ID = s.id()
	r.CreatedAt = time.Now()
	cp := *r
	s.readings[r.ID] = &cp
	return nil
}

func (s *MemoryStore) LockReading(ctx context.Context, id int64, at time.Time, inv *models.Invoice) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.readings[id]
	if !ok || r.Locked {
		return false, false, nil
	}
	r.Locked = true
	r.LockedAt = &at
	if inv == nil {
		return true, false, nil
	}
	return true, s.insertInvoiceLocked(inv), nil
}

func (s *MemoryStore) LatestReadingBefore(ctx context.Context, roomID int64, period string) (*models.MeterReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.MeterReading
	for _, r := range s.readings {
		if r.RoomID != roomID || r.Period >= period {
			continue
		}
		if best == nil || r.Period > best.Period {
			best = r
		}
	}
	if best == nil {
		return nil, fmt.Errorf("previous meter reading: %w", models.ErrNotFound)
	}
	cp := *best
	return &cp, nil
}

func (s *MemoryStore) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %d: %w", id, models.ErrNotFound)
	}
	cp := *inv
	return &cp, nil
}

func (s *MemoryStore) insertInvoiceLocked(inv *models.Invoice) bool {
	for _, existing := range s.invoices {
		if existing.RoomID == inv.RoomID && existing.Period == inv.Period {
			return false
		}
	}
	inv.ID = s.id()
	inv.Status = models.InvoiceStatusUnpaid
	inv.CreatedAt = time.Now()
	cp := *inv
	s.invoices[inv.ID] = &cp
	return true
}

func (s *MemoryStore) MarkInvoiceRequested(ctx context.Context, id int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok || inv.Status != models.InvoiceStatusUnpaid {
		return false, nil
	}
	inv.Status = models.InvoiceStatusPending
	inv.RequestedAt = &at
	return true, nil
}

func (s *MemoryStore) MarkInvoicePaid(ctx context.Context, id int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markPaidLocked(id, at), nil
}

func (s *MemoryStore) markPaidLocked(id int64, at time.Time) bool {
	inv, ok := s.invoices[id]
	if !ok || inv.Status == models.InvoiceStatusPaid {
		return false
	}
	inv.Status = models.InvoiceStatusPaid
	inv.PaidAt = &at
	return true
}

func (s *MemoryStore) ListInvoices(ctx context.Context, f models.InvoiceFilter) ([]*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Invoice
	for _, inv := range s.invoices {
		if f.TenantID != nil && inv.TenantID != *f.TenantID {
			continue
		}
		if f.RoomID != nil && inv.RoomID != *f.RoomID {
			continue
		}
		if f.Period != "" && inv.Period != f.Period {
			continue
		}
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		cp := *inv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period > out[j].Period
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// WithInvoiceLock holds the store mutex for the whole callback, which is a
// stricter version of the row lock.
func (s *MemoryStore) WithInvoiceLock(ctx context.Context, id int64, fn func(ctx context.Context, tx InvoiceTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return fmt.Errorf("invoice %d: %w", id, models.ErrNotFound)
	}
	snapshot := *inv
	tx := &memInvoiceTx{s: s, inv: &snapshot}

	// writes are staged and applied only if fn succeeds
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, apply := range tx.staged {
		apply()
	}
	return nil
}

type memInvoiceTx struct {
	s      *MemoryStore
	inv    *models.Invoice
	staged []func()
	// pending holds payments written in this tx, keyed by gateway/txn.
	pending map[string]*models.Payment
}

func (t *memInvoiceTx) Invoice() *models.Invoice { return t.inv }

func (t *memInvoiceTx) findPayment(gateway, txnID string) *models.Payment {
	if p, ok := t.pending[gateway+"/"+txnID]; ok {
		return p
	}
	for _, p := range t.s.payments {
		if p.Gateway == gateway && p.TransactionID == txnID {
			return p
		}
	}
	return nil
}

func (t *memInvoiceTx) UpsertPayment(ctx context.Context, p *models.Payment) (models.UpsertResult, error) {
	if t.pending == nil {
		t.pending = map[string]*models.Payment{}
	}
	now := time.Now()
	existing := t.s.findOrNil(t.findPayment(p.Gateway, p.TransactionID))

	if existing == nil {
		row := *p
		row.ID = t.s.id()
		row.CreatedAt = now
		row.UpdatedAt = now
		t.pending[p.Gateway+"/"+p.TransactionID] = &row
		t.staged = append(t.staged, func() { t.s.payments[row.ID] = &row })
		*p = row
		return models.UpsertInserted, nil
	}

	if existing.Status == models.PaymentStatusSuccess {
		*p = *existing
		return models.UpsertUnchanged, nil
	}

	row := *existing
	row.Status = p.Status
	row.ResponseCode = p.ResponseCode
	row.Amount = p.Amount
	if p.GatewayRef != "" {
		row.GatewayRef = p.GatewayRef
	}
	if row.PaidAt == nil {
		row.PaidAt = p.PaidAt
	}
	row.UpdatedAt = now
	t.pending[p.Gateway+"/"+p.TransactionID] = &row
	t.staged = append(t.staged, func() { t.s.payments[row.ID] = &row })
	*p = row
	return models.UpsertUpdated, nil
}

func (s *MemoryStore) findOrNil(p *models.Payment) *models.Payment {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

func (t *memInvoiceTx) MarkPaid(ctx context.Context, at time.Time) (bool, error) {
	if t.inv.Status == models.InvoiceStatusPaid {
		return false, nil
	}
	t.inv.Status = models.InvoiceStatusPaid
	t.inv.PaidAt = &at
	id := t.inv.ID
	t.staged = append(t.staged, func() { t.s.markPaidLocked(id, at) })
	return true, nil
}

func (t *memInvoiceTx) RecordAnomaly(ctx context.Context, a *models.ReconciliationAnomaly) error {
	a.ID = t.s.id()
	a.CreatedAt = time.Now()
	cp := *a
	t.staged = append(t.staged, func() { t.s.anomalies = append(t.s.anomalies, &cp) })
	return nil
}

func (s *MemoryStore) CreatePendingPayment(ctx context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.payments {
		if existing.Gateway == p.Gateway && existing.TransactionID == p.TransactionID {
			return nil
		}
	}
	now := time.Now()
	p.ID = s.id()
	p.Status = models.PaymentStatusPending
	p.CreatedAt = now
	p.UpdatedAt = now
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s *MemoryStore) LatestPayment(ctx context.Context, invoiceID int64, gateway string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.Payment
	for _, p := range s.payments {
		if p.InvoiceID != invoiceID || p.Gateway != gateway {
			continue
		}
		if best == nil || paymentRanksAbove(p, best) {
			best = p
		}
	}
	if best == nil {
		return nil, fmt.Errorf("payment for invoice %d: %w", invoiceID, models.ErrNotFound)
	}
	cp := *best
	return &cp, nil
}

// paymentRanksAbove mirrors ORDER BY (status = 'SUCCESS') DESC, updated_at DESC, id DESC.
func paymentRanksAbove(a, b *models.Payment) bool {
	aSuccess := a.Status == models.PaymentStatusSuccess
	bSuccess := b.Status == models.PaymentStatusSuccess
	if aSuccess != bSuccess {
		return aSuccess
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID > b.ID
}

func (s *MemoryStore) ListPayments(ctx context.Context, invoiceID int64) ([]*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Payment
	for _, p := range s.payments {
		if p.InvoiceID == invoiceID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListAnomalies(ctx context.Context, limit int) ([]*models.ReconciliationAnomaly, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ReconciliationAnomaly
	for i := len(s.anomalies) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		cp := *s.anomalies[i]
		out = append(out, &cp)
	}
	return out, nil
}
