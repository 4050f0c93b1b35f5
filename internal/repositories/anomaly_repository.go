package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"rental-backend/internal/models"
)

type AnomalyRepository struct {
	DB *pgxpool.Pool
}

func NewAnomalyRepository(db *pgxpool.Pool) *AnomalyRepository {
	return &AnomalyRepository{DB: db}
}

func insertAnomaly(ctx context.Context, q Querier, a *models.ReconciliationAnomaly) error {
	err := q.QueryRow(ctx, `
		INSERT INTO reconciliation_anomalies (invoice_id, gateway, transaction_id, kind, expected_amount, reported_amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, a.InvoiceID, a.Gateway, a.TransactionID, a.Kind, a.ExpectedAmount, a.ReportedAmount).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record reconciliation anomaly: %w", err)
	}
	return nil
}

func (r *AnomalyRepository) ListAnomalies(ctx context.Context, limit int) ([]*models.ReconciliationAnomaly, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, invoice_id, gateway, transaction_id, kind, expected_amount, reported_amount, created_at
		FROM reconciliation_anomalies
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list anomalies: %w", err)
	}
	defer rows.Close()

	var anomalies []*models.ReconciliationAnomaly
	for rows.Next() {
		a := &models.ReconciliationAnomaly{}
		if err := rows.Scan(&a.ID, &a.InvoiceID, &a.Gateway, &a.TransactionID, &a.Kind,
			&a.ExpectedAmount, &a.ReportedAmount, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}
