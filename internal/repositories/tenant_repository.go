package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rental-backend/internal/models"
)

// TenantRepository moves sealed PII in and out unchanged; decryption is the
// caller's decision. Sealed values are passed as plain strings because their
// Stringer is redacted.
type TenantRepository struct {
	DB *pgxpool.Pool
}

func NewTenantRepository(db *pgxpool.Pool) *TenantRepository {
	return &TenantRepository{DB: db}
}

const tenantColumns = `
	id, user_id, full_name, phone, national_id, email, address, birthdate, created_at, updated_at`

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	t := &models.Tenant{}
	err := row.Scan(
		&t.ID, &t.UserID, &t.FullName, &t.Phone, &t.NationalID, &t.Email, &t.Address, &t.Birthdate,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TenantRepository) GetTenant(ctx context.Context, id int64) (*models.Tenant, error) {
	t, err := scanTenant(r.DB.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant %d: %w", id, notFound(err))
	}
	return t, nil
}

func (r *TenantRepository) ListTenants(ctx context.Context, afterID int64, limit int) ([]*models.Tenant, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id > $1 ORDER BY id LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (r *TenantRepository) UpdateTenantPII(ctx context.Context, t *models.Tenant) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE tenants
		SET full_name = $2, phone = $3, national_id = $4, email = $5, address = $6, birthdate = $7,
		    updated_at = NOW()
		WHERE id = $1
	`, t.ID, string(t.FullName), string(t.Phone), string(t.NationalID),
		string(t.Email), string(t.Address), string(t.Birthdate))
	if err != nil {
		return fmt.Errorf("failed to update tenant %d: %w", t.ID, err)
	}
	return nil
}
