package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"rental-backend/internal/models"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type RoomStore interface {
	GetRoom(ctx context.Context, id int64) (*models.Room, error)
}

type TenantStore interface {
	GetTenant(ctx context.Context, id int64) (*models.Tenant, error)
	// ListTenants pages by id: rows with id > afterID, at most limit.
	ListTenants(ctx context.Context, afterID int64, limit int) ([]*models.Tenant, error)
	UpdateTenantPII(ctx context.Context, t *models.Tenant) error
}

type SettingStore interface {
	UtilityPrices(ctx context.Context) (models.UtilityPrices, error)
	SetUtilityPrices(ctx context.Context, p models.UtilityPrices) error
}

type ReadingStore interface {
	GetReading(ctx context.Context, id int64) (*models.MeterReading, error)
	// CreateReading returns ErrDuplicate when (room, period) already has a reading.
	CreateReading(ctx context.Context, r *models.MeterReading) error
	// LockReading flips locked false -> true and, in the same transaction,
	// inserts inv unless it is nil. locked is false when the reading was
	// already locked, and then nothing is written. created is false when
	// (room, period) already had an invoice.
	LockReading(ctx context.Context, id int64, at time.Time, inv *models.Invoice) (locked, created bool, err error)
	// LatestReadingBefore is the newest reading of any period earlier than period.
	LatestReadingBefore(ctx context.Context, roomID int64, period string) (*models.MeterReading, error)
}

// InvoiceTx is the view of one invoice held under its row lock.
type InvoiceTx interface {
	Invoice() *models.Invoice
	// UpsertPayment inserts by (gateway, transaction id) or updates a row that
	// is not SUCCESS yet. p is refreshed with the stored row.
	UpsertPayment(ctx context.Context, p *models.Payment) (models.UpsertResult, error)
	// MarkPaid is UPDATE ... WHERE status <> 'PAID'; false means it already was.
	MarkPaid(ctx context.Context, at time.Time) (bool, error)
	RecordAnomaly(ctx context.Context, a *models.ReconciliationAnomaly) error
}

type InvoiceStore interface {
	GetInvoice(ctx context.Context, id int64) (*models.Invoice, error)
	// MarkInvoiceRequested is UNPAID -> PENDING as one conditional write.
	MarkInvoiceRequested(ctx context.Context, id int64, at time.Time) (bool, error)
	// MarkInvoicePaid is UPDATE ... WHERE status <> 'PAID'.
	MarkInvoicePaid(ctx context.Context, id int64, at time.Time) (bool, error)
	ListInvoices(ctx context.Context, f models.InvoiceFilter) ([]*models.Invoice, error)
	// WithInvoiceLock runs fn in one transaction holding the invoice row lock.
	WithInvoiceLock(ctx context.Context, id int64, fn func(ctx context.Context, tx InvoiceTx) error) error
}

type PaymentStore interface {
	// CreatePendingPayment records a freshly issued transaction id.
	CreatePendingPayment(ctx context.Context, p *models.Payment) error
	LatestPayment(ctx context.Context, invoiceID int64, gateway string) (*models.Payment, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]*models.Payment, error)
}

type AnomalyStore interface {
	ListAnomalies(ctx context.Context, limit int) ([]*models.ReconciliationAnomaly, error)
}

var (
	_ RoomStore    = (*RoomRepository)(nil)
	_ TenantStore  = (*TenantRepository)(nil)
	_ SettingStore = (*SystemSettingRepository)(nil)
	_ ReadingStore = (*MeterReadingRepository)(nil)
	_ InvoiceStore = (*InvoiceRepository)(nil)
	_ PaymentStore = (*PaymentRepository)(nil)
	_ AnomalyStore = (*AnomalyRepository)(nil)

	_ RoomStore    = (*MemoryStore)(nil)
	_ TenantStore  = (*MemoryStore)(nil)
	_ SettingStore = (*MemoryStore)(nil)
	_ ReadingStore = (*MemoryStore)(nil)
	_ InvoiceStore = (*MemoryStore)(nil)
	_ PaymentStore = (*MemoryStore)(nil)
	_ AnomalyStore = (*MemoryStore)(nil)
)
