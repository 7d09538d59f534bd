package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"veritheo-bot/internal/domain"
	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/ports/repository"
)

var _ repository.LLMJobRepository = (*llmJobRepo)(nil)

// errNothingClaimed ends the claim transaction without a job.
var errNothingClaimed = errors.New("no claimable job")

const jobColumns = `id, kind, status, chat_id, request_message_id, payload, created_at, available_at, attempts, last_error`

type llmJobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
	opts options
}

func NewLLMJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager, opts ...Option) *llmJobRepo {
	return &llmJobRepo{pool: pool, tm: tm, opts: newOptions(opts)}
}

func (r *llmJobRepo) now() int64 { return r.opts.now().Unix() }

func scanJob(row pgx.Row) (*model.LLMJob, error) {
	var (
		j                      model.LLMJob
		kind, status           string
		payload                []byte
		createdAt, availableAt int64
		lastError              *string
	)
	if err := row.Scan(&j.ID, &kind, &status, &j.ChatID, &j.RequestMessageID, &payload,
		&createdAt, &availableAt, &j.Attempts, &lastError); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &j.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of job %d: %w", j.ID, err)
		}
	}
	j.Kind = model.LLMJobKind(kind)
	j.Status = model.LLMJobStatus(status)
	j.CreatedAt = time.Unix(createdAt, 0)
	j.AvailableAt = time.Unix(availableAt, 0)
	if lastError != nil {
		j.LastError = *lastError
	}
	return &j, nil
}

func (r *llmJobRepo) Enqueue(ctx context.Context, kind model.LLMJobKind, chatID int64, requestMessageID int, payload model.LLMJobPayload) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode payload: %w", err)
	}
	const q = `
INSERT INTO llm_jobs (kind, status, chat_id, request_message_id, payload, created_at, available_at, attempts)
VALUES ($1, 'pending', $2, $3, $4::jsonb, $5, $5, 0)
RETURNING id;`

	var id int64
	if err := r.pool.QueryRow(ctx, q, string(kind), chatID, requestMessageID, string(body), r.now()).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert llm job: %w", err)
	}
	return id, nil
}

// ClaimNext locks the oldest eligible row with SKIP LOCKED and flips it to
// processing. Two workers racing on different rows of the same chat are
// stopped by the partial unique index; the loser sees "nothing to claim".
func (r *llmJobRepo) ClaimNext(ctx context.Context, excludedChatIDs []int64) (*model.LLMJob, error) {
	if excludedChatIDs == nil {
		excludedChatIDs = []int64{}
	}
	const selectQ = `
SELECT ` + jobColumns + `
  FROM llm_jobs j
 WHERE j.status = 'pending'
   AND j.available_at <= $1
   AND NOT (j.chat_id = ANY($2::bigint[]))
   AND NOT EXISTS (
       SELECT 1 FROM llm_jobs p
        WHERE p.chat_id = j.chat_id AND p.status = 'processing')
 ORDER BY j.created_at, j.id
 LIMIT 1
 FOR UPDATE SKIP LOCKED;`
	const updateQ = `
UPDATE llm_jobs
   SET status = 'processing', attempts = attempts + 1, last_error = NULL
 WHERE id = $1 AND status = 'pending'
RETURNING attempts;`

	var job *model.LLMJob
	err := r.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ex, err := getExecutor(r.pool, tx)
		if err != nil {
			return err
		}
		j, err := scanJob(ex.QueryRow(ctx, selectQ, r.now(), excludedChatIDs))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errNothingClaimed
			}
			return err
		}
		if err := ex.QueryRow(ctx, updateQ, j.ID).Scan(&j.Attempts); err != nil {
			if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
				return errNothingClaimed
			}
			return err
		}
		j.Status = model.LLMJobStatusProcessing
		j.LastError = ""
		job = j
		return nil
	})
	if errors.Is(err, errNothingClaimed) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim llm job: %w", err)
	}
	return job, nil
}

func (r *llmJobRepo) MarkDone(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE llm_jobs SET status = 'done', last_error = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark job %d done: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *llmJobRepo) MarkFailed(ctx context.Context, id int64, errMsg string, maxAttempts int) (model.LLMJobStatus, error) {
	var status model.LLMJobStatus
	err := r.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ex, err := getExecutor(r.pool, tx)
		if err != nil {
			return err
		}
		var attempts int
		if err := ex.QueryRow(ctx, `SELECT attempts FROM llm_jobs WHERE id = $1 FOR UPDATE`, id).Scan(&attempts); err != nil {
			return notFound(err)
		}
		if attempts < maxAttempts {
			status = model.LLMJobStatusPending
			next := r.opts.now().Add(model.RetryDelay(attempts)).Unix()
			_, err = ex.Exec(ctx, `UPDATE llm_jobs SET status = 'pending', available_at = $2, last_error = $3 WHERE id = $1`, id, next, errMsg)
			return err
		}
		status = model.LLMJobStatusFailed
		_, err = ex.Exec(ctx, `UPDATE llm_jobs SET status = 'failed', last_error = $2 WHERE id = $1`, id, errMsg)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("mark job %d failed: %w", id, err)
	}
	return status, nil
}

func (r *llmJobRepo) RequeueOrphaned(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE llm_jobs SET status = 'pending', available_at = $1 WHERE status = 'processing'`, r.now())
	if err != nil {
		return 0, fmt.Errorf("requeue orphaned jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *llmJobRepo) CountPending(ctx context.Context, chatID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM llm_jobs WHERE chat_id = $1 AND status IN ('pending', 'processing')`, chatID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return n, nil
}

func (r *llmJobRepo) FindByID(ctx context.Context, id int64) (*model.LLMJob, error) {
	j, err := scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM llm_jobs WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return j, nil
}

func (r *llmJobRepo) CountByStatus(ctx context.Context) (map[model.LLMJobStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM llm_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	defer rows.Close()

	out := map[model.LLMJobStatus]int{
		model.LLMJobStatusPending:    0,
		model.LLMJobStatusProcessing: 0,
		model.LLMJobStatusDone:       0,
		model.LLMJobStatusFailed:     0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[model.LLMJobStatus(status)] = n
	}
	return out, rows.Err()
}

func (r *llmJobRepo) Retry(ctx context.Context, id int64) error {
	return r.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ex, err := getExecutor(r.pool, tx)
		if err != nil {
			return err
		}
		var status string
		if err := ex.QueryRow(ctx, `SELECT status FROM llm_jobs WHERE id = $1 FOR UPDATE`, id).Scan(&status); err != nil {
			return notFound(err)
		}
		if model.LLMJobStatus(status) != model.LLMJobStatusFailed {
			return fmt.Errorf("job %d is %s: %w", id, status, domain.ErrInvalidState)
		}
		_, err = ex.Exec(ctx, `UPDATE llm_jobs SET status = 'pending', attempts = 0, available_at = $2 WHERE id = $1`, id, r.now())
		return err
	})
}
