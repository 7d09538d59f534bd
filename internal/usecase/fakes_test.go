//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"veritheo-bot/internal/domain"
	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/ports/adapter"
	"veritheo-bot/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// ---- message archive ----

type pageCall struct{ limit, offset int }

type memMessages struct {
	mu    sync.Mutex
	rows  []*model.MessageRecord
	pages []pageCall

	RecordErr error
	QueryErr  error
}

var _ repository.MessageRepository = (*memMessages)(nil)

func (m *memMessages) Record(_ context.Context, rec *model.MessageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecordErr != nil {
		return m.RecordErr
	}
	cp := *rec
	cp.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memMessages) addBot(chatID int64, messageID int, text string, at time.Time) {
	m.rows = append(m.rows, &model.MessageRecord{
		ID: int64(len(m.rows) + 1), MessageID: messageID, ChatID: chatID, FromIsBot: true, Text: text, Date: at,
	})
}

func (m *memMessages) QueryRecentBotMessages(_ context.Context, chatID int64, limit, offset int) ([]*model.MessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = append(m.pages, pageCall{limit, offset})
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	var bot []*model.MessageRecord
	for _, r := range m.rows {
		if r.ChatID == chatID && r.FromIsBot {
			bot = append(bot, r)
		}
	}
	sort.SliceStable(bot, func(i, j int) bool { return bot[i].Date.After(bot[j].Date) })
	if offset >= len(bot) {
		return nil, nil
	}
	end := min(len(bot), offset+limit)
	return bot[offset:end], nil
}

func (m *memMessages) FindByMessageID(_ context.Context, chatID int64, messageID int) (*model.MessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ChatID == chatID && r.MessageID == messageID {
			return r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memMessages) RecentChatMessages(_ context.Context, chatID int64, limit int) ([]*model.MessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.MessageRecord
	for _, r := range m.rows {
		if r.ChatID == chatID && r.HasText() {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memMessages) UserMessagesSince(_ context.Context, chatID, userID int64, since time.Time, minLength, limit int) ([]*model.MessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.MessageRecord
	for _, r := range m.rows {
		if r.ChatID == chatID && r.FromID == userID && !r.FromIsBot && !r.Date.Before(since) && len(r.Text) > minLength {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].Text) > len(out[j].Text) })
	if len(out) > limit {
		out = out[:limit]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// ---- heresy cache ----

type memHeresy struct {
	mu      sync.Mutex
	entries []*model.HeresyEntry
}

var _ repository.HeresyRepository = (*memHeresy)(nil)

func (h *memHeresy) Latest(_ context.Context, chatID, userID int64) (*model.HeresyEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var best *model.HeresyEntry
	for _, e := range h.entries {
		if e.ChatID == chatID && e.UserID == userID && (best == nil || e.CreatedAt.After(best.CreatedAt)) {
			best = e
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return best, nil
}

func (h *memHeresy) Save(_ context.Context, e *model.HeresyEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := *e
	cp.ID = int64(len(h.entries) + 1)
	h.entries = append(h.entries, &cp)
	return nil
}

// ---- job store ----

type MockJobRepo struct {
	EnqueueFunc      func(ctx context.Context, kind model.LLMJobKind, chatID int64, reqID int, p model.LLMJobPayload) (int64, error)
	CountPendingFunc func(ctx context.Context, chatID int64) (int, error)
}

var _ repository.LLMJobRepository = (*MockJobRepo)(nil)

func (m *MockJobRepo) Enqueue(ctx context.Context, kind model.LLMJobKind, chatID int64, reqID int, p model.LLMJobPayload) (int64, error) {
	return m.EnqueueFunc(ctx, kind, chatID, reqID, p)
}
func (m *MockJobRepo) ClaimNext(context.Context, []int64) (*model.LLMJob, error) { return nil, nil }
func (m *MockJobRepo) MarkDone(context.Context, int64) error                     { return nil }
func (m *MockJobRepo) MarkFailed(context.Context, int64, string, int) (model.LLMJobStatus, error) {
	return model.LLMJobStatusFailed, nil
}
func (m *MockJobRepo) RequeueOrphaned(context.Context) (int, error) { return 0, nil }
func (m *MockJobRepo) CountPending(ctx context.Context, chatID int64) (int, error) {
	return m.CountPendingFunc(ctx, chatID)
}
func (m *MockJobRepo) FindByID(context.Context, int64) (*model.LLMJob, error) {
	return nil, domain.ErrNotFound
}
func (m *MockJobRepo) CountByStatus(context.Context) (map[model.LLMJobStatus]int, error) {
	return map[model.LLMJobStatus]int{}, nil
}
func (m *MockJobRepo) Retry(context.Context, int64) error { return nil }

type countingWaker struct{ n int }

func (w *countingWaker) Notify() { w.n++ }

// ---- chat client ----

type MockChat struct {
	mu   sync.Mutex
	Sent []adapter.OutgoingMessage

	SendMessageFunc func(ctx context.Context, msg adapter.OutgoingMessage) (*model.MessageRecord, error)
}

var _ adapter.ChatClient = (*MockChat)(nil)

func (m *MockChat) SendMessage(ctx context.Context, msg adapter.OutgoingMessage) (*model.MessageRecord, error) {
	m.mu.Lock()
	m.Sent = append(m.Sent, msg)
	n := len(m.Sent)
	m.mu.Unlock()
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, msg)
	}
	return &model.MessageRecord{MessageID: 1000 + n, ChatID: msg.ChatID, FromIsBot: true, Text: msg.Text, Date: time.Now()}, nil
}

func (m *MockChat) SendTyping(context.Context, int64) error { return nil }

// ---- ai ----

type MockAI struct {
	Requests     []adapter.CompletionRequest
	CompleteFunc func(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error)
}

var _ adapter.AIServiceAdapter = (*MockAI)(nil)

func (m *MockAI) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	m.Requests = append(m.Requests, req)
	return m.CompleteFunc(ctx, req)
}

func (m *MockAI) CountTokens(_ context.Context, _ string, msgs []adapter.Message) (int, error) {
	n := 0
	for _, msg := range msgs {
		n += len(msg.Content)
	}
	return n, nil
}

type stubSummarizer struct {
	out string
	err error
}

func (s stubSummarizer) Summarize(context.Context, string, int) (string, error) { return s.out, s.err }
