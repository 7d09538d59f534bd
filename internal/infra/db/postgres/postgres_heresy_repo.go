package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/ports/repository"
)

var _ repository.HeresyRepository = (*heresyRepo)(nil)

type heresyRepo struct {
	pool *pgxpool.Pool
}

func NewHeresyRepo(pool *pgxpool.Pool) *heresyRepo {
	return &heresyRepo{pool: pool}
}

func (r *heresyRepo) Latest(ctx context.Context, chatID, userID int64) (*model.HeresyEntry, error) {
	const q = `
SELECT id, chat_id, user_id, created_at, response
  FROM heresy_cache
 WHERE chat_id = $1 AND user_id = $2
 ORDER BY created_at DESC, id DESC
 LIMIT 1;`
	var e model.HeresyEntry
	var createdAt int64
	if err := r.pool.QueryRow(ctx, q, chatID, userID).Scan(&e.ID, &e.ChatID, &e.UserID, &createdAt, &e.Response); err != nil {
		return nil, notFound(err)
	}
	e.CreatedAt = time.Unix(createdAt, 0)
	return &e, nil
}

func (r *heresyRepo) Save(ctx context.Context, e *model.HeresyEntry) error {
	const q = `INSERT INTO heresy_cache (chat_id, user_id, created_at, response) VALUES ($1, $2, $3, $4) RETURNING id;`
	if err := r.pool.QueryRow(ctx, q, e.ChatID, e.UserID, e.CreatedAt.Unix(), e.Response).Scan(&e.ID); err != nil {
		return fmt.Errorf("insert heresy entry: %w", err)
	}
	return nil
}
