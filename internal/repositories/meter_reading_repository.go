package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rental-backend/internal/models"
)

type MeterReadingRepository struct {
	DB *pgxpool.Pool
}

func NewMeterReadingRepository(db *pgxpool.Pool) *MeterReadingRepository {
	return &MeterReadingRepository{DB: db}
}

const readingColumns = `
	id, room_id, period, electricity_old, electricity_new, water_old, water_new,
	locked, locked_at, created_at`

func scanReading(row pgx.Row) (*models.MeterReading, error) {
	m := &models.MeterReading{}
	err := row.Scan(
		&m.ID, &m.RoomID, &m.Period, &m.ElectricityOld, &m.ElectricityNew, &m.WaterOld, &m.WaterNew,
		&m.Locked, &m.LockedAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MeterReadingRepository) GetReading(ctx context.Context, id int64) (*models.MeterReading, error) {
	m, err := scanReading(r.DB.QueryRow(ctx, `SELECT `+readingColumns+` FROM meter_readings WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get meter reading %d: %w", id, notFound(err))
	}
	return m, nil
}

func (r *MeterReadingRepository) CreateReading(ctx context.Context, m *models.MeterReading) error {
	query := `
		INSERT INTO meter_readings (room_id, period, electricity_old, electricity_new, water_old, water_new)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.DB.QueryRow(ctx, query,
		m.RoomID, m.Period, m.ElectricityOld, m.ElectricityNew, m.WaterOld, m.WaterNew,
	).Scan(&m.ID, &m.CreatedAt)
	if IsUniqueViolation(err) {
		return fmt.Errorf("meter reading for room %d period %s: %w", m.RoomID, m.Period, models.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create meter reading: %w", err)
	}
	return nil
}

// LockReading commits the lock flip and the invoice together, so a crash
// never leaves a locked reading without its invoice.
func (r *MeterReadingRepository) LockReading(ctx context.Context, id int64, at time.Time, inv *models.Invoice) (bool, bool, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return false, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE meter_readings
		SET locked = TRUE, locked_at = $2
		WHERE id = $1 AND locked = FALSE
	`, id, at)
	if err != nil {
		return false, false, fmt.Errorf("failed to lock meter reading %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return false, false, nil
	}

	created := false
	if inv != nil {
		if created, err = insertInvoiceIfAbsent(ctx, tx, inv); err != nil {
			return false, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, false, fmt.Errorf("failed to commit meter reading %d lock: %w", id, err)
	}
	return true, created, nil
}

func (r *MeterReadingRepository) LatestReadingBefore(ctx context.Context, roomID int64, period string) (*models.MeterReading, error) {
	query := `SELECT ` + readingColumns + ` FROM meter_readings
		WHERE room_id = $1 AND period < $2
		ORDER BY period DESC
		LIMIT 1`
	m, err := scanReading(r.DB.QueryRow(ctx, query, roomID, period))
	if err != nil {
		return nil, fmt.Errorf("failed to get previous meter reading: %w", notFound(err))
	}
	return m, nil
}
