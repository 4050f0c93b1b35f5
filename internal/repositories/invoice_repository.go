package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rental-backend/internal/models"
)

type InvoiceRepository struct {
	DB *pgxpool.Pool
}

func NewInvoiceRepository(db *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{DB: db}
}

const invoiceColumns = `
	id, room_id, tenant_id, reading_id, period,
	rent, electricity_used, electricity_price, water_used, water_price, surcharge, total,
	status, created_at, requested_at, paid_at`

func scanInvoice(row pgx.Row) (*models.Invoice, error) {
	inv := &models.Invoice{}
	err := row.Scan(
		&inv.ID, &inv.RoomID, &inv.TenantID, &inv.ReadingID, &inv.Period,
		&inv.Rent, &inv.ElectricityUsed, &inv.ElectricityPrice, &inv.WaterUsed, &inv.WaterPrice, &inv.Surcharge, &inv.Total,
		&inv.Status, &inv.CreatedAt, &inv.RequestedAt, &inv.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *InvoiceRepository) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	inv, err := scanInvoice(r.DB.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice %d: %w", id, notFound(err))
	}
	return inv, nil
}

// insertInvoiceIfAbsent relies on the (room_id, period) unique constraint
// and reports false when the pair already has an invoice.
func insertInvoiceIfAbsent(ctx context.Context, q Querier, inv *models.Invoice) (bool, error) {
	query := `
		INSERT INTO invoices (
			room_id, tenant_id, reading_id, period,
			rent, electricity_used, electricity_price, water_used, water_price, surcharge, total, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (room_id, period) DO NOTHING
		RETURNING id, created_at
	`

	err := q.QueryRow(ctx, query,
		inv.RoomID, inv.TenantID, inv.ReadingID, inv.Period,
		inv.Rent, inv.ElectricityUsed, inv.ElectricityPrice, inv.WaterUsed, inv.WaterPrice, inv.Surcharge, inv.Total,
		models.InvoiceStatusUnpaid,
	).Scan(&inv.ID, &inv.CreatedAt)

	switch {
	case err == nil:
		inv.Status = models.InvoiceStatusUnpaid
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("failed to insert invoice: %w", err)
	}
}

func (r *InvoiceRepository) MarkInvoiceRequested(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := r.DB.Exec(ctx, `
		UPDATE invoices
		SET status = 'PENDING', requested_at = $2
		WHERE id = $1 AND status = 'UNPAID'
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark invoice %d requested: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *InvoiceRepository) MarkInvoicePaid(ctx context.Context, id int64, at time.Time) (bool, error) {
	return markInvoicePaid(ctx, r.DB, id, at)
}

func markInvoicePaid(ctx context.Context, q Querier, id int64, at time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE invoices
		SET status = 'PAID', paid_at = $2
		WHERE id = $1 AND status <> 'PAID'
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark invoice %d paid: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *InvoiceRepository) ListInvoices(ctx context.Context, f models.InvoiceFilter) ([]*models.Invoice, error) {
	var conds []string
	var args []interface{}
	argNum := 1

	if f.TenantID != nil {
		conds = append(conds, fmt.Sprintf("tenant_id = $%d", argNum))
		args = append(args, *f.TenantID)
		argNum++
	}
	if f.RoomID != nil {
		conds = append(conds, fmt.Sprintf("room_id = $%d", argNum))
		args = append(args, *f.RoomID)
		argNum++
	}
	if f.Period != "" {
		conds = append(conds, fmt.Sprintf("period = $%d", argNum))
		args = append(args, f.Period)
		argNum++
	}
	if f.Status != "" {
		conds = append(conds, fmt.Sprintf("status = $%d", argNum))
		args = append(args, f.Status)
		argNum++
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY period DESC, id DESC LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, limit, f.Offset)

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// WithInvoiceLock runs fn inside a transaction that holds SELECT ... FOR UPDATE
// on the invoice. fn's writes commit together or not at all.
func (r *InvoiceRepository) WithInvoiceLock(ctx context.Context, id int64, fn func(ctx context.Context, tx InvoiceTx) error) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := scanInvoice(tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return fmt.Errorf("failed to lock invoice %d: %w", id, notFound(err))
	}

	if err := fn(ctx, &pgInvoiceTx{tx: tx, inv: inv}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit invoice %d: %w", id, err)
	}
	return nil
}

type pgInvoiceTx struct {
	tx  pgx.Tx
	inv *models.Invoice
}

func (t *pgInvoiceTx) Invoice() *models.Invoice { return t.inv }

func (t *pgInvoiceTx) UpsertPayment(ctx context.Context, p *models.Payment) (models.UpsertResult, error) {
	return upsertPayment(ctx, t.tx, p)
}

func (t *pgInvoiceTx) MarkPaid(ctx context.Context, at time.Time) (bool, error) {
	ok, err := markInvoicePaid(ctx, t.tx, t.inv.ID, at)
	if err == nil && ok {
		t.inv.Status = models.InvoiceStatusPaid
		t.inv.PaidAt = &at
	}
	return ok, err
}

func (t *pgInvoiceTx) RecordAnomaly(ctx context.Context, a *models.ReconciliationAnomaly) error {
	return insertAnomaly(ctx, t.tx, a)
}
