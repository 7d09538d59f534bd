package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/ports/repository"
)

var _ repository.HeresyRepository = (*heresyRepo)(nil)

type heresyRow struct {
	ID        int64  `db:"id"`
	ChatID    int64  `db:"chat_id"`
	UserID    int64  `db:"user_id"`
	CreatedAt int64  `db:"created_at"`
	Response  string `db:"response"`
}

type heresyRepo struct {
	db *sqlx.DB
}

func NewHeresyRepo(db *sqlx.DB) *heresyRepo {
	return &heresyRepo{db: db}
}

func (r *heresyRepo) Latest(ctx context.Context, chatID, userID int64) (*model.HeresyEntry, error) {
	q, args, err := dialect.From("heresy_cache").
		Select("id", "chat_id", "user_id", "created_at", "response").
		Where(goqu.C("chat_id").Eq(chatID), goqu.C("user_id").Eq(userID)).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc()).Limit(1).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	var row heresyRow
	if err := sqlx.GetContext(ctx, r.db, &row, q, args...); err != nil {
		return nil, notFound(err)
	}
	return &model.HeresyEntry{
		ID:        row.ID,
		ChatID:    row.ChatID,
		UserID:    row.UserID,
		CreatedAt: time.Unix(row.CreatedAt, 0),
		Response:  row.Response,
	}, nil
}

func (r *heresyRepo) Save(ctx context.Context, e *model.HeresyEntry) error {
	q, args, err := dialect.Insert("heresy_cache").Rows(goqu.Record{
		"chat_id":    e.ChatID,
		"user_id":    e.UserID,
		"created_at": e.CreatedAt.Unix(),
		"response":   e.Response,
	}).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("insert heresy entry: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}
