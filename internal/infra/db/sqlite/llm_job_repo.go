package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"veritheo-bot/internal/domain"
	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/ports/repository"
)

var _ repository.LLMJobRepository = (*llmJobRepo)(nil)

const jobsTable = "llm_jobs"

var jobColumns = []interface{}{
	"id", "kind", "status", "chat_id", "request_message_id", "payload",
	"created_at", "available_at", "attempts", "last_error",
}

type jobRow struct {
	ID               int64          `db:"id"`
	Kind             string         `db:"kind"`
	Status           string         `db:"status"`
	ChatID           int64          `db:"chat_id"`
	RequestMessageID int            `db:"request_message_id"`
	Payload          string         `db:"payload"`
	CreatedAt        int64          `db:"created_at"`
	AvailableAt      int64          `db:"available_at"`
	Attempts         int            `db:"attempts"`
	LastError        sql.NullString `db:"last_error"`
}

func (r jobRow) toModel() (*model.LLMJob, error) {
	var p model.LLMJobPayload
	if r.Payload != "" {
		if err := json.Unmarshal([]byte(r.Payload), &p); err != nil {
			return nil, fmt.Errorf("decode payload of job %d: %w", r.ID, err)
		}
	}
	return &model.LLMJob{
		ID:               r.ID,
		Kind:             model.LLMJobKind(r.Kind),
		Status:           model.LLMJobStatus(r.Status),
		ChatID:           r.ChatID,
		RequestMessageID: r.RequestMessageID,
		Payload:          p,
		CreatedAt:        time.Unix(r.CreatedAt, 0),
		AvailableAt:      time.Unix(r.AvailableAt, 0),
		Attempts:         r.Attempts,
		LastError:        r.LastError.String,
	}, nil
}

type llmJobRepo struct {
	db   *sqlx.DB
	tm   *TxManager
	opts options
}

func NewLLMJobRepo(db *sqlx.DB, tm *TxManager, opts ...Option) *llmJobRepo {
	return &llmJobRepo{db: db, tm: tm, opts: newOptions(opts)}
}

func (r *llmJobRepo) now() int64 { return r.opts.now().Unix() }

func (r *llmJobRepo) Enqueue(ctx context.Context, kind model.LLMJobKind, chatID int64, requestMessageID int, payload model.LLMJobPayload) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode payload: %w", err)
	}
	now := r.now()
	q, args, err := dialect.Insert(jobsTable).Rows(goqu.Record{
		"kind":               string(kind),
		"status":             string(model.LLMJobStatusPending),
		"chat_id":            chatID,
		"request_message_id": requestMessageID,
		"payload":            string(body),
		"created_at":         now,
		"available_at":       now,
		"attempts":           0,
	}).Prepared(true).ToSQL()
	if err != nil {
		return 0, err
	}

	var id int64
	err = r.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ex, err := getExecutor(r.db, tx)
		if err != nil {
			return err
		}
		res, err := ex.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert llm job: %w", err)
	}
	return id, nil
}

func (r *llmJobRepo) ClaimNext(ctx context.Context, excludedChatIDs []int64) (*model.LLMJob, error) {
	now := r.now()
	where := []goqu.Expression{
		goqu.C("status").Eq(string(model.LLMJobStatusPending)),
		goqu.C("available_at").Lte(now),
		goqu.L("NOT EXISTS (SELECT 1 FROM llm_jobs AS p WHERE p.chat_id = llm_jobs.chat_id AND p.status = ?)",
			string(model.LLMJobStatusProcessing)),
	}
	if len(excludedChatIDs) > 0 {
		where = append(where, goqu.C("chat_id").NotIn(excludedChatIDs))
	}
	sel, selArgs, err := dialect.From(jobsTable).Select(jobColumns...).Where(where...).
		Order(goqu.C("created_at").Asc(), goqu.C("id").Asc()).Limit(1).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}

	var job *model.LLMJob
	err = r.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		job = nil
		ex, err := getExecutor(r.db, tx)
		if err != nil {
			return err
		}
		var row jobRow
		if err := sqlx.GetContext(ctx, ex, &row, sel, selArgs...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}

		upd, updArgs, err := dialect.Update(jobsTable).Set(goqu.Record{
			"status":     string(model.LLMJobStatusProcessing),
			"attempts":   goqu.L("attempts + 1"),
			"last_error": nil,
		}).Where(goqu.C("id").Eq(row.ID), goqu.C("status").Eq(string(model.LLMJobStatusPending))).
			Prepared(true).ToSQL()
		if err != nil {
			return err
		}
		res, err := ex.ExecContext(ctx, upd, updArgs...)
		if err != nil {
			if isUniqueViolation(err) {
				return nil
			}
			return err
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return nil
		}

		row.Status = string(model.LLMJobStatusProcessing)
		row.Attempts++
		row.LastError = sql.NullString{}
		job, err = row.toModel()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("claim llm job: %w", err)
	}
	return job, nil
}

func (r *llmJobRepo) MarkDone(ctx context.Context, id int64) error {
	q, args, err := dialect.Update(jobsTable).
		Set(goqu.Record{"status": string(model.LLMJobStatusDone), "last_error": nil}).
		Where(goqu.C("id").Eq(id)).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("mark job %d done: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *llmJobRepo) MarkFailed(ctx context.Context, id int64, errMsg string, maxAttempts int) (model.LLMJobStatus, error) {
	var status model.LLMJobStatus
	err := r.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ex, err := getExecutor(r.db, tx)
		if err != nil {
			return err
		}
		q, args, err := dialect.From(jobsTable).Select("attempts").Where(goqu.C("id").Eq(id)).Prepared(true).ToSQL()
		if err != nil {
			return err
		}
		var attempts int
		if err := sqlx.GetContext(ctx, ex, &attempts, q, args...); err != nil {
			return notFound(err)
		}

		rec := goqu.Record{"last_error": errMsg}
		if attempts < maxAttempts {
			status = model.LLMJobStatusPending
			rec["available_at"] = r.opts.now().Add(model.RetryDelay(attempts)).Unix()
		} else {
			status = model.LLMJobStatusFailed
		}
		rec["status"] = string(status)

		q, args, err = dialect.Update(jobsTable).Set(rec).Where(goqu.C("id").Eq(id)).Prepared(true).ToSQL()
		if err != nil {
			return err
		}
		_, err = ex.ExecContext(ctx, q, args...)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("mark job %d failed: %w", id, err)
	}
	return status, nil
}

func (r *llmJobRepo) RequeueOrphaned(ctx context.Context) (int, error) {
	q, args, err := dialect.Update(jobsTable).
		Set(goqu.Record{"status": string(model.LLMJobStatusPending), "available_at": r.now()}).
		Where(goqu.C("status").Eq(string(model.LLMJobStatusProcessing))).Prepared(true).ToSQL()
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue orphaned jobs: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *llmJobRepo) CountPending(ctx context.Context, chatID int64) (int, error) {
	q, args, err := dialect.From(jobsTable).Select(goqu.COUNT("*")).Where(
		goqu.C("chat_id").Eq(chatID),
		goqu.C("status").In(string(model.LLMJobStatusPending), string(model.LLMJobStatusProcessing)),
	).Prepared(true).ToSQL()
	if err != nil {
		return 0, err
	}
	var n int
	if err := sqlx.GetContext(ctx, r.db, &n, q, args...); err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return n, nil
}

func (r *llmJobRepo) FindByID(ctx context.Context, id int64) (*model.LLMJob, error) {
	q, args, err := dialect.From(jobsTable).Select(jobColumns...).Where(goqu.C("id").Eq(id)).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	var row jobRow
	if err := sqlx.GetContext(ctx, r.db, &row, q, args...); err != nil {
		return nil, notFound(err)
	}
	return row.toModel()
}

func (r *llmJobRepo) CountByStatus(ctx context.Context) (map[model.LLMJobStatus]int, error) {
	q, args, err := dialect.From(jobsTable).Select(goqu.C("status"), goqu.COUNT("*").As("n")).
		GroupBy(goqu.C("status")).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := sqlx.SelectContext(ctx, r.db, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	out := map[model.LLMJobStatus]int{
		model.LLMJobStatusPending:    0,
		model.LLMJobStatusProcessing: 0,
		model.LLMJobStatusDone:       0,
		model.LLMJobStatusFailed:     0,
	}
	for _, r := range rows {
		out[model.LLMJobStatus(r.Status)] = r.N
	}
	return out, nil
}

func (r *llmJobRepo) Retry(ctx context.Context, id int64) error {
	return r.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ex, err := getExecutor(r.db, tx)
		if err != nil {
			return err
		}
		q, args, err := dialect.From(jobsTable).Select("status").Where(goqu.C("id").Eq(id)).Prepared(true).ToSQL()
		if err != nil {
			return err
		}
		var status string
		if err := sqlx.GetContext(ctx, ex, &status, q, args...); err != nil {
			return notFound(err)
		}
		if model.LLMJobStatus(status) != model.LLMJobStatusFailed {
			return fmt.Errorf("job %d is %s: %w", id, status, domain.ErrInvalidState)
		}
		q, args, err = dialect.Update(jobsTable).Set(goqu.Record{
			"status":       string(model.LLMJobStatusPending),
			"attempts":     0,
			"available_at": r.now(),
		}).Where(goqu.C("id").Eq(id)).Prepared(true).ToSQL()
		if err != nil {
			return err
		}
		_, err = ex.ExecContext(ctx, q, args...)
		return err
	})
}
