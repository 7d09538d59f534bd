package model

import (
	"fmt"
	"strings"
	"time"

	"veritheo-bot/internal/domain"
)

type LLMJobStatus string

const (
	LLMJobStatusPending    LLMJobStatus = "pending"
	LLMJobStatusProcessing LLMJobStatus = "processing"
	LLMJobStatusDone       LLMJobStatus = "done"
	LLMJobStatusFailed     LLMJobStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s LLMJobStatus) Terminal() bool {
	return s == LLMJobStatusDone || s == LLMJobStatusFailed
}

type LLMJobKind string

const (
	LLMJobKindAsk      LLMJobKind = "ask"
	LLMJobKindAskGroup LLMJobKind = "ask_group"
	LLMJobKindVerify   LLMJobKind = "verify"
	LLMJobKindFallacy  LLMJobKind = "fallacy_detector"
	LLMJobKindRoast    LLMJobKind = "roast"
	LLMJobKindHeresy   LLMJobKind = "heresy"
)

var knownKinds = map[LLMJobKind]struct{}{
	LLMJobKindAsk:      {},
	LLMJobKindAskGroup: {},
	LLMJobKindVerify:   {},
	LLMJobKindFallacy:  {},
	LLMJobKindRoast:    {},
	LLMJobKindHeresy:   {},
}

// LLMJobKinds lists every kind in a stable order.
func LLMJobKinds() []LLMJobKind {
	return []LLMJobKind{LLMJobKindAsk, LLMJobKindAskGroup, LLMJobKindVerify, LLMJobKindFallacy, LLMJobKindRoast, LLMJobKindHeresy}
}

func ParseLLMJobKind(s string) (LLMJobKind, error) {
	k := LLMJobKind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownKinds[k]; !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownJobKind, s)
	}
	return k, nil
}

// LLMJobPayload is the handler input stored as JSON next to the job.
type LLMJobPayload struct {
	Question   string   `json:"question"`
	Context    []string `json:"context,omitempty"`
	AuthorName string   `json:"author_name,omitempty"`
	ChatTitle  string   `json:"chat_title,omitempty"`
	UserID     int64    `json:"user_id,omitempty"`
}

// LLMJob is one deferred unit of LLM work. ChatID is the mutual-exclusion key:
// at most one job per chat is ever processing.
type LLMJob struct {
	ID               int64
	Kind             LLMJobKind
	Status           LLMJobStatus
	ChatID           int64
	RequestMessageID int
	Payload          LLMJobPayload
	CreatedAt        time.Time
	AvailableAt      time.Time
	Attempts         int
	LastError        string
}

// NewLLMJob validates producer input and returns a pending job stamped with now.
func NewLLMJob(kind LLMJobKind, chatID int64, requestMessageID int, payload LLMJobPayload, now time.Time) (*LLMJob, error) {
	if _, ok := knownKinds[kind]; !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownJobKind, kind)
	}
	if chatID == 0 {
		return nil, fmt.Errorf("chat id is required: %w", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(payload.Question) == "" && len(payload.Context) == 0 {
		return nil, fmt.Errorf("job payload is empty: %w", domain.ErrInvalidArgument)
	}
	now = now.Truncate(time.Second)
	return &LLMJob{
		Kind:             kind,
		Status:           LLMJobStatusPending,
		ChatID:           chatID,
		RequestMessageID: requestMessageID,
		Payload:          payload,
		CreatedAt:        now,
		AvailableAt:      now,
	}, nil
}

const maxRetryDelaySeconds = 60

// RetryDelay is the backoff applied after the given number of attempts:
// min(60, 2^attempts) seconds.
func RetryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= 6 {
		return maxRetryDelaySeconds * time.Second
	}
	d := 1 << attempts
	if d > maxRetryDelaySeconds {
		d = maxRetryDelaySeconds
	}
	return time.Duration(d) * time.Second
}
