package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizroom-service/internal/domain"
)

// RoomArchive stores finished rooms as JSONB in Postgres.
type RoomArchive struct {
	pool *pgxpool.Pool
}

func NewRoomArchive(pool *pgxpool.Pool) *RoomArchive {
	return &RoomArchive{pool: pool}
}

func (a *RoomArchive) SaveRoom(ctx context.Context, record domain.RoomRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	_, err = a.pool.Exec(ctx, `
		INSERT INTO rooms (id, invite_code, finished_at, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET invite_code = EXCLUDED.invite_code, finished_at = EXCLUDED.finished_at, data = EXCLUDED.data`,
		record.ID, record.InviteCode, record.FinishedAt, raw)
	if err != nil {
		return fmt.Errorf("save room: %w", err)
	}
	return nil
}

func (a *RoomArchive) LoadRoom(ctx context.Context, roomID string) (domain.RoomRecord, error) {
	var raw []byte
	err := a.pool.QueryRow(ctx, `SELECT data FROM rooms WHERE id=$1`, roomID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RoomRecord{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.RoomRecord{}, fmt.Errorf("load room: %w", err)
	}
	var record domain.RoomRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.RoomRecord{}, fmt.Errorf("unmarshal room: %w", err)
	}
	return record, nil
}
