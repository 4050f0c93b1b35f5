package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rental-backend/internal/models"
)

type PaymentRepository struct {
	DB *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{DB: db}
}

const paymentColumns = `
	id, invoice_id, tenant_id, gateway, transaction_id, gateway_ref,
	amount, status, response_code, created_at, updated_at, paid_at`

func scanPayment(row pgx.Row) (*models.Payment, error) {
	p := &models.Payment{}
	err := row.Scan(
		&p.ID, &p.InvoiceID, &p.TenantID, &p.Gateway, &p.TransactionID, &p.GatewayRef,
		&p.Amount, &p.Status, &p.ResponseCode, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CreatePendingPayment stores the transaction id handed out by a create call.
// A row already carrying that id is left alone.
func (r *PaymentRepository) CreatePendingPayment(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (invoice_id, tenant_id, gateway, transaction_id, amount, status)
		VALUES ($1, $2, $3, $4, $5, 'PENDING')
		ON CONFLICT (gateway, transaction_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`
	err := r.DB.QueryRow(ctx, query, p.InvoiceID, p.TenantID, p.Gateway, p.TransactionID, p.Amount).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to create pending payment: %w", err)
	}
	p.Status = models.PaymentStatusPending
	return nil
}

func (r *PaymentRepository) LatestPayment(ctx context.Context, invoiceID int64, gateway string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE invoice_id = $1 AND gateway = $2
		ORDER BY (status = 'SUCCESS') DESC, updated_at DESC, id DESC
		LIMIT 1`
	p, err := scanPayment(r.DB.QueryRow(ctx, query, invoiceID, gateway))
	if err != nil {
		return nil, fmt.Errorf("failed to get latest payment: %w", notFound(err))
	}
	return p, nil
}

func (r *PaymentRepository) ListPayments(ctx context.Context, invoiceID int64) ([]*models.Payment, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// upsertPayment is the idempotent write behind reconciliation. The DO UPDATE
// is guarded by status <> 'SUCCESS' so a SUCCESS row never changes; when the
// guard blocks the update no row comes back and the stored row is re-read.
func upsertPayment(ctx context.Context, q Querier, p *models.Payment) (models.UpsertResult, error) {
	query := `
		INSERT INTO payments (
			invoice_id, tenant_id, gateway, transaction_id, gateway_ref,
			amount, status, response_code, paid_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (gateway, transaction_id) DO UPDATE
		SET status = EXCLUDED.status,
		    response_code = EXCLUDED.response_code,
		    amount = EXCLUDED.amount,
		    gateway_ref = CASE WHEN EXCLUDED.gateway_ref <> '' THEN EXCLUDED.gateway_ref ELSE payments.gateway_ref END,
		    paid_at = COALESCE(payments.paid_at, EXCLUDED.paid_at),
		    updated_at = NOW()
		WHERE payments.status <> 'SUCCESS'
		RETURNING ` + paymentColumns + `, (xmax = 0) AS inserted
	`

	stored := &models.Payment{}
	var inserted bool
	err := q.QueryRow(ctx, query,
		p.InvoiceID, p.TenantID, p.Gateway, p.TransactionID, p.GatewayRef,
		p.Amount, p.Status, p.ResponseCode, p.PaidAt,
	).Scan(
		&stored.ID, &stored.InvoiceID, &stored.TenantID, &stored.Gateway, &stored.TransactionID, &stored.GatewayRef,
		&stored.Amount, &stored.Status, &stored.ResponseCode, &stored.CreatedAt, &stored.UpdatedAt, &stored.PaidAt,
		&inserted,
	)

	switch {
	case err == nil:
		*p = *stored
		if inserted {
			return models.UpsertInserted, nil
		}
		return models.UpsertUpdated, nil
	case errors.Is(err, pgx.ErrNoRows):
		existing, err := scanPayment(q.QueryRow(ctx,
			`SELECT `+paymentColumns+` FROM payments WHERE gateway = $1 AND transaction_id = $2`,
			p.Gateway, p.TransactionID))
		if err != nil {
			return "", fmt.Errorf("failed to reload payment: %w", notFound(err))
		}
		*p = *existing
		return models.UpsertUnchanged, nil
	default:
		return "", fmt.Errorf("failed to upsert payment: %w", err)
	}
}
