package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/ports/repository"
)

var _ repository.MessageRepository = (*messageRepo)(nil)

const messagesTable = "messages"

var messageColumns = []interface{}{
	"id", "message_id", "chat_id", "chat_type", "chat_title", "chat_username",
	"from_id", "from_is_bot", "from_first_name", "from_last_name", "from_username",
	"text", "date", "raw",
}

type messageRow struct {
	ID            int64          `db:"id"`
	MessageID     int            `db:"message_id"`
	ChatID        int64          `db:"chat_id"`
	ChatType      string         `db:"chat_type"`
	ChatTitle     sql.NullString `db:"chat_title"`
	ChatUsername  sql.NullString `db:"chat_username"`
	FromID        sql.NullInt64  `db:"from_id"`
	FromIsBot     sql.NullBool   `db:"from_is_bot"`
	FromFirstName sql.NullString `db:"from_first_name"`
	FromLastName  sql.NullString `db:"from_last_name"`
	FromUsername  sql.NullString `db:"from_username"`
	Text          sql.NullString `db:"text"`
	Date          int64          `db:"date"`
	Raw           sql.NullString `db:"raw"`
}

func (r messageRow) toModel() *model.MessageRecord {
	m := &model.MessageRecord{
		ID:            r.ID,
		MessageID:     r.MessageID,
		ChatID:        r.ChatID,
		ChatType:      r.ChatType,
		ChatTitle:     r.ChatTitle.String,
		ChatUsername:  r.ChatUsername.String,
		FromID:        r.FromID.Int64,
		FromIsBot:     r.FromIsBot.Bool,
		FromFirstName: r.FromFirstName.String,
		FromLastName:  r.FromLastName.String,
		FromUsername:  r.FromUsername.String,
		Text:          r.Text.String,
		Date:          time.Unix(r.Date, 0),
	}
	if r.Raw.Valid && r.Raw.String != "" {
		m.Raw = []byte(r.Raw.String)
	}
	return m
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

type messageRepo struct {
	db *sqlx.DB
}

func NewMessageRepo(db *sqlx.DB) *messageRepo {
	return &messageRepo{db: db}
}

func (r *messageRepo) Record(ctx context.Context, rec *model.MessageRecord) error {
	var raw interface{}
	if len(rec.Raw) > 0 {
		raw = string(rec.Raw)
	}
	var fromID interface{}
	if rec.FromID != 0 {
		fromID = rec.FromID
	}
	q, args, err := dialect.Insert(messagesTable).Rows(goqu.Record{
		"message_id":      rec.MessageID,
		"chat_id":         rec.ChatID,
		"chat_type":       rec.ChatType,
		"chat_title":      nullable(rec.ChatTitle),
		"chat_username":   nullable(rec.ChatUsername),
		"from_id":         fromID,
		"from_is_bot":     rec.FromIsBot,
		"from_first_name": nullable(rec.FromFirstName),
		"from_last_name":  nullable(rec.FromLastName),
		"from_username":   nullable(rec.FromUsername),
		"text":            nullable(rec.Text),
		"date":            rec.Date.Unix(),
		"raw":             raw,
	}).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

func (r *messageRepo) selectMessages(ctx context.Context, ds *goqu.SelectDataset) ([]*model.MessageRecord, error) {
	q, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	var rows []messageRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, q, args...); err != nil {
		return nil, err
	}
	out := make([]*model.MessageRecord, len(rows))
	for i, row := range rows {
		out[i] = row.toModel()
	}
	return out, nil
}

func (r *messageRepo) QueryRecentBotMessages(ctx context.Context, chatID int64, limit, offset int) ([]*model.MessageRecord, error) {
	ds := dialect.From(messagesTable).Select(messageColumns...).
		Where(goqu.C("chat_id").Eq(chatID), goqu.C("from_is_bot").Eq(true)).
		Order(goqu.C("date").Desc(), goqu.C("id").Desc()).
		Limit(uint(max(limit, 1))).Offset(uint(max(offset, 0)))
	out, err := r.selectMessages(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("query bot messages: %w", err)
	}
	return out, nil
}

func (r *messageRepo) FindByMessageID(ctx context.Context, chatID int64, messageID int) (*model.MessageRecord, error) {
	q, args, err := dialect.From(messagesTable).Select(messageColumns...).
		Where(goqu.C("chat_id").Eq(chatID), goqu.C("message_id").Eq(messageID)).
		Order(goqu.C("id").Desc()).Limit(1).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	var row messageRow
	if err := sqlx.GetContext(ctx, r.db, &row, q, args...); err != nil {
		return nil, notFound(err)
	}
	return row.toModel(), nil
}

func (r *messageRepo) RecentChatMessages(ctx context.Context, chatID int64, limit int) ([]*model.MessageRecord, error) {
	ds := dialect.From(messagesTable).Select(messageColumns...).
		Where(goqu.C("chat_id").Eq(chatID), goqu.L("TRIM(COALESCE(text, '')) <> ''")).
		Order(goqu.C("date").Desc(), goqu.C("id").Desc()).
		Limit(uint(max(limit, 1)))
	out, err := r.selectMessages(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *messageRepo) UserMessagesSince(ctx context.Context, chatID, userID int64, since time.Time, minLength, limit int) ([]*model.MessageRecord, error) {
	ds := dialect.From(messagesTable).Select(messageColumns...).
		Where(
			goqu.C("chat_id").Eq(chatID),
			goqu.C("from_id").Eq(userID),
			goqu.C("date").Gte(since.Unix()),
			goqu.C("text").IsNotNull(),
			goqu.L("LENGTH(text) > ?", minLength),
			goqu.Or(goqu.C("from_is_bot").IsNull(), goqu.C("from_is_bot").Eq(false)),
		).
		Order(goqu.L("LENGTH(text)").Desc()).
		Limit(uint(max(limit, 1)))
	out, err := r.selectMessages(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("query user messages: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
