package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akave-ai/logserver/internal/model"
)

// JournalRepository persists and reads journal events.
type JournalRepository struct {
	pool *pgxpool.Pool
}

// NewJournalRepository returns a JournalRepository using the given pool.
func NewJournalRepository(pool *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{pool: pool}
}

// Record inserts one event. A zero ID is replaced with a fresh one.
func (r *JournalRepository) Record(ctx context.Context, event model.JournalEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO journal_events (id, user_name, kind, bytes, conn_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID,
		event.User,
		event.Kind,
		event.Bytes,
		event.ConnID,
		event.CreatedAt,
	)
	return err
}

// ListByUser returns the newest events for user, at most limit of them.
func (r *JournalRepository) ListByUser(ctx context.Context, user string, limit int) ([]model.JournalEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_name, kind, bytes, conn_id, created_at
		FROM journal_events
		WHERE user_name = $1
		ORDER BY created_at DESC
		LIMIT $2`, user, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[model.JournalEvent])
}
