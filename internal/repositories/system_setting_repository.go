package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"rental-backend/internal/models"
)

type SystemSettingRepository struct {
	DB *pgxpool.Pool
}

func NewSystemSettingRepository(db *pgxpool.Pool) *SystemSettingRepository {
	return &SystemSettingRepository{DB: db}
}

func (r *SystemSettingRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.DB.QueryRow(ctx, `SELECT setting_value FROM system_settings WHERE setting_key = $1`, key).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, notFound(err))
	}
	return value, nil
}

func (r *SystemSettingRepository) Upsert(ctx context.Context, key, value string) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO system_settings (setting_key, setting_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (setting_key) DO UPDATE
		SET setting_value = EXCLUDED.setting_value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to update setting %s: %w", key, err)
	}
	return nil
}

// UtilityPrices reads the current unit prices.
func (r *SystemSettingRepository) UtilityPrices(ctx context.Context) (models.UtilityPrices, error) {
	var prices models.UtilityPrices
	for key, dst := range map[string]*decimal.Decimal{
		models.SettingElectricityPrice: &prices.Electricity,
		models.SettingWaterPrice:       &prices.Water,
	} {
		raw, err := r.Get(ctx, key)
		if err != nil {
			return prices, err
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return prices, fmt.Errorf("setting %s is not a number: %w", key, err)
		}
		*dst = d
	}
	return prices, nil
}

func (r *SystemSettingRepository) SetUtilityPrices(ctx context.Context, p models.UtilityPrices) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for key, value := range map[string]decimal.Decimal{
		models.SettingElectricityPrice: p.Electricity,
		models.SettingWaterPrice:       p.Water,
	} {
		if _, err := tx.Exec(ctx, `
			INSERT INTO system_settings (setting_key, setting_value, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (setting_key) DO UPDATE
			SET setting_value = EXCLUDED.setting_value, updated_at = NOW()
		`, key, value.String()); err != nil {
			return fmt.Errorf("failed to update setting %s: %w", key, err)
		}
	}
	return tx.Commit(ctx)
}
