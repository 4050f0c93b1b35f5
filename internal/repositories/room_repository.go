package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"rental-backend/internal/models"
)

type RoomRepository struct {
	DB *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{DB: db}
}

func (r *RoomRepository) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	room := &models.Room{}
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, rent, status, current_tenant_id
		FROM rooms
		WHERE id = $1
	`, id).Scan(&room.ID, &room.Name, &room.Rent, &room.Status, &room.CurrentTenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get room %d: %w", id, notFound(err))
	}
	return room, nil
}
