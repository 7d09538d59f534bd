//go:build !integration

package worker

import (
	"context"
	"errors"
	"io"
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

// ---- job store ----

// memJobs mimics the claim rules of the real stores. Retries are available
// immediately so tests do not sleep through the backoff.
type memJobs struct {
	mu   sync.Mutex
	jobs []*model.LLMJob

	RequeueErr error
	ClaimErr   error
	requeued   int
}

var _ repository.LLMJobRepository = (*memJobs)(nil)

func (m *memJobs) add(kind model.LLMJobKind, chatID int64, payload model.LLMJobPayload) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := int64(len(m.jobs) + 1)
	now := time.Now()
	m.jobs = append(m.jobs, &model.LLMJob{
		ID: id, Kind: kind, Status: model.LLMJobStatusPending, ChatID: chatID,
		RequestMessageID: int(100 + id), Payload: payload, CreatedAt: now, AvailableAt: now,
	})
	return id
}

func (m *memJobs) get(id int64) model.LLMJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id-1]
}

func (m *memJobs) Enqueue(_ context.Context, kind model.LLMJobKind, chatID int64, _ int, payload model.LLMJobPayload) (int64, error) {
	return m.add(kind, chatID, payload), nil
}

func (m *memJobs) ClaimNext(_ context.Context, excluded []int64) (*model.LLMJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClaimErr != nil {
		return nil, m.ClaimErr
	}
	skip := make(map[int64]bool)
	for _, id := range excluded {
		skip[id] = true
	}
	for _, j := range m.jobs {
		if j.Status == model.LLMJobStatusProcessing {
			skip[j.ChatID] = true
		}
	}
	for _, j := range m.jobs {
		if j.Status != model.LLMJobStatusPending || skip[j.ChatID] || j.AvailableAt.After(time.Now()) {
			continue
		}
		j.Status = model.LLMJobStatusProcessing
		j.Attempts++
		cp := *j
		return &cp, nil
	}
	return nil, nil
}

func (m *memJobs) MarkDone(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id-1]
	if j.Status != model.LLMJobStatusProcessing {
		return domain.ErrInvalidState
	}
	j.Status = model.LLMJobStatusDone
	return nil
}

func (m *memJobs) MarkFailed(_ context.Context, id int64, errMsg string, maxAttempts int) (model.LLMJobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id-1]
	if j.Status != model.LLMJobStatusProcessing {
		return "", domain.ErrInvalidState
	}
	j.LastError = errMsg
	if j.Attempts < maxAttempts {
		j.Status = model.LLMJobStatusPending
	} else {
		j.Status = model.LLMJobStatusFailed
	}
	return j.Status, nil
}

func (m *memJobs) RequeueOrphaned(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RequeueErr != nil {
		return 0, m.RequeueErr
	}
	n := 0
	for _, j := range m.jobs {
		if j.Status == model.LLMJobStatusProcessing {
			j.Status = model.LLMJobStatusPending
			n++
		}
	}
	m.requeued += n
	return n, nil
}

func (m *memJobs) CountPending(_ context.Context, chatID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.jobs {
		if j.ChatID == chatID && !j.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

func (m *memJobs) FindByID(_ context.Context, id int64) (*model.LLMJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 1 || int(id) > len(m.jobs) {
		return nil, domain.ErrNotFound
	}
	cp := *m.jobs[id-1]
	return &cp, nil
}

func (m *memJobs) CountByStatus(context.Context) (map[model.LLMJobStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.LLMJobStatus]int)
	for _, j := range m.jobs {
		out[j.Status]++
	}
	return out, nil
}

func (m *memJobs) Retry(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id-1]
	if j.Status != model.LLMJobStatusFailed {
		return domain.ErrInvalidState
	}
	j.Status, j.Attempts = model.LLMJobStatusPending, 0
	return nil
}

// ---- chat client ----

type fakeChat struct {
	mu     sync.Mutex
	sent   []adapter.OutgoingMessage
	typing int

	SendErr error
}

var _ adapter.ChatClient = (*fakeChat)(nil)

func (f *fakeChat) SendMessage(_ context.Context, msg adapter.OutgoingMessage) (*model.MessageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	f.sent = append(f.sent, msg)
	return &model.MessageRecord{MessageID: len(f.sent), ChatID: msg.ChatID, FromIsBot: true, Text: msg.Text}, nil
}

func (f *fakeChat) SendTyping(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
	return nil
}

func (f *fakeChat) messages() []adapter.OutgoingMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]adapter.OutgoingMessage(nil), f.sent...)
}

func (f *fakeChat) typingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.typing
}

// ---- notifier ----

type notice struct {
	summary string
	err     error
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (f *fakeNotifier) Notify(_ context.Context, summary string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, notice{summary, err})
}

func (f *fakeNotifier) all() []notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notice(nil), f.notices...)
}

// ---- AI ----

type fakeAI struct {
	mu   sync.Mutex
	reqs []adapter.CompletionRequest

	CompleteFunc func(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error)
}

func (f *fakeAI) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.CompleteFunc != nil {
		return f.CompleteFunc(ctx, req)
	}
	return adapter.Completion{Text: "respuesta", Provider: "fake", Model: req.Model}, nil
}

func (f *fakeAI) CountTokens(context.Context, string, []adapter.Message) (int, error) {
	return 0, errors.New("not used")
}

func (f *fakeAI) last() adapter.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

// ---- reply and heresy use cases ----

type delivery struct {
	chatID  int64
	replyTo int
	text    string
}

type fakeReply struct {
	mu        sync.Mutex
	delivered []delivery
	sources   [][]adapter.Source

	DeliverErr error
}

func (f *fakeReply) Deliver(_ context.Context, chatID int64, replyTo int, text string) (*model.MessageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeliverErr != nil {
		return nil, f.DeliverErr
	}
	f.delivered = append(f.delivered, delivery{chatID, replyTo, text})
	return &model.MessageRecord{ChatID: chatID, Text: text}, nil
}

func (f *fakeReply) DeliverSources(_ context.Context, _ int64, _ int, sources []adapter.Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, sources)
	return nil
}

type savedVerdict struct {
	chatID, userID int64
	response       string
}

type fakeHeresy struct {
	saved []savedVerdict
}

func (f *fakeHeresy) Cached(context.Context, int64, int64) (*model.HeresyEntry, error) {
	return nil, nil
}

func (f *fakeHeresy) Material(context.Context, int64, int64) ([]string, error) {
	return nil, nil
}

func (f *fakeHeresy) Save(_ context.Context, chatID, userID int64, response string) error {
	f.saved = append(f.saved, savedVerdict{chatID, userID, response})
	return nil
}

// wordCounter counts one token per message plus one per word.
type wordCounter struct{}

func (wordCounter) CountMessages(_ string, msgs []adapter.Message) int {
	n := 0
	for _, m := range msgs {
		n++
		for _, f := range []rune(m.Content) {
			if f == ' ' {
				n++
			}
		}
		if m.Content != "" {
			n++
		}
	}
	return n
}
