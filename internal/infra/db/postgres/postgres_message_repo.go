package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/ports/repository"
)

var _ repository.MessageRepository = (*messageRepo)(nil)

const messageColumns = `id, message_id, chat_id, chat_type, chat_title, chat_username, from_id, from_is_bot,
       from_first_name, from_last_name, from_username, text, date, raw`

type messageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *messageRepo {
	return &messageRepo{pool: pool}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanMessage(row pgx.Row) (*model.MessageRecord, error) {
	var (
		m                                            model.MessageRecord
		title, username, first, last, fromUser, text *string
		fromID                                       *int64
		isBot                                        *bool
		date                                         int64
		raw                                          []byte
	)
	if err := row.Scan(&m.ID, &m.MessageID, &m.ChatID, &m.ChatType, &title, &username, &fromID, &isBot,
		&first, &last, &fromUser, &text, &date, &raw); err != nil {
		return nil, err
	}
	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	m.ChatTitle, m.ChatUsername = deref(title), deref(username)
	m.FromFirstName, m.FromLastName, m.FromUsername = deref(first), deref(last), deref(fromUser)
	m.Text = deref(text)
	if fromID != nil {
		m.FromID = *fromID
	}
	if isBot != nil {
		m.FromIsBot = *isBot
	}
	m.Date = time.Unix(date, 0)
	if len(raw) > 0 {
		m.Raw = raw
	}
	return &m, nil
}

func (r *messageRepo) queryMessages(ctx context.Context, q string, args ...interface{}) ([]*model.MessageRecord, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.MessageRecord
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *messageRepo) Record(ctx context.Context, rec *model.MessageRecord) error {
	const q = `
INSERT INTO messages (message_id, chat_id, chat_type, chat_title, chat_username, from_id, from_is_bot,
                      from_first_name, from_last_name, from_username, text, date, raw)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb)
RETURNING id;`
	var fromID *int64
	if rec.FromID != 0 {
		fromID = &rec.FromID
	}
	var raw *string
	if len(rec.Raw) > 0 {
		s := string(rec.Raw)
		raw = &s
	}
	err := r.pool.QueryRow(ctx, q, rec.MessageID, rec.ChatID, rec.ChatType, nullString(rec.ChatTitle),
		nullString(rec.ChatUsername), fromID, rec.FromIsBot, nullString(rec.FromFirstName),
		nullString(rec.FromLastName), nullString(rec.FromUsername), nullString(rec.Text), rec.Date.Unix(), raw,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *messageRepo) QueryRecentBotMessages(ctx context.Context, chatID int64, limit, offset int) ([]*model.MessageRecord, error) {
	q := `SELECT ` + messageColumns + `
  FROM messages
 WHERE chat_id = $1 AND from_is_bot = TRUE
 ORDER BY date DESC, id DESC
 LIMIT $2 OFFSET $3`
	out, err := r.queryMessages(ctx, q, chatID, max(limit, 1), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("query bot messages: %w", err)
	}
	return out, nil
}

func (r *messageRepo) FindByMessageID(ctx context.Context, chatID int64, messageID int) (*model.MessageRecord, error) {
	q := `SELECT ` + messageColumns + ` FROM messages WHERE chat_id = $1 AND message_id = $2 ORDER BY id DESC LIMIT 1`
	m, err := scanMessage(r.pool.QueryRow(ctx, q, chatID, messageID))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

func (r *messageRepo) RecentChatMessages(ctx context.Context, chatID int64, limit int) ([]*model.MessageRecord, error) {
	q := `SELECT * FROM (
  SELECT ` + messageColumns + `
    FROM messages
   WHERE chat_id = $1 AND COALESCE(BTRIM(text), '') <> ''
   ORDER BY date DESC, id DESC
   LIMIT $2) recent
 ORDER BY date ASC, id ASC`
	out, err := r.queryMessages(ctx, q, chatID, max(limit, 1))
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	return out, nil
}

func (r *messageRepo) UserMessagesSince(ctx context.Context, chatID, userID int64, since time.Time, minLength, limit int) ([]*model.MessageRecord, error) {
	q := `SELECT * FROM (
  SELECT ` + messageColumns + `
    FROM messages
   WHERE chat_id = $1 AND from_id = $2 AND date >= $3
     AND text IS NOT NULL AND LENGTH(text) > $4
     AND (from_is_bot IS NULL OR from_is_bot = FALSE)
   ORDER BY LENGTH(text) DESC
   LIMIT $5) longest
 ORDER BY date ASC, id ASC`
	out, err := r.queryMessages(ctx, q, chatID, userID, since.Unix(), minLength, max(limit, 1))
	if err != nil {
		return nil, fmt.Errorf("query user messages: %w", err)
	}
	return out, nil
}
