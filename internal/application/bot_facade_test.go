//go:build !integration

package application_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"veritheo-bot/internal/application"
	"veritheo-bot/internal/domain"
	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/similarity"
	"veritheo-bot/internal/infra/i18n"
	"veritheo-bot/internal/usecase"
)

// ---- mocks ----

type submitted struct {
	kind    model.LLMJobKind
	chatID  int64
	msgID   int
	payload model.LLMJobPayload
}

type mockQueue struct {
	calls   []submitted
	pending int
	err     error
}

func (m *mockQueue) Submit(_ context.Context, kind model.LLMJobKind, chatID int64, msgID int, p model.LLMJobPayload) (int64, int, error) {
	if m.err != nil {
		return 0, 0, m.err
	}
	m.calls = append(m.calls, submitted{kind, chatID, msgID, p})
	pending := m.pending
	if pending == 0 {
		pending = 1
	}
	return int64(len(m.calls)), pending, nil
}

type mockGuard struct {
	checked   []string
	CheckFunc func(text string) (similarity.Result, error)
}

func (m *mockGuard) Check(_ context.Context, _ int64, text string) (similarity.Result, error) {
	m.checked = append(m.checked, text)
	if m.CheckFunc != nil {
		return m.CheckFunc(text)
	}
	return similarity.Result{Reason: similarity.ReasonNone}, nil
}

type mockHeresy struct {
	cached   *model.HeresyEntry
	material []string
	err      error
}

func (m *mockHeresy) Cached(context.Context, int64, int64) (*model.HeresyEntry, error) {
	return m.cached, nil
}

func (m *mockHeresy) Material(context.Context, int64, int64) ([]string, error) {
	return m.material, m.err
}

func (m *mockHeresy) Save(context.Context, int64, int64, string) error { return nil }

type mockStats struct {
	counts map[model.LLMJobStatus]int
}

func (m *mockStats) CountByStatus(context.Context) (map[model.LLMJobStatus]int, error) {
	return m.counts, nil
}

type mockMessages struct {
	recent []*model.MessageRecord
	byID   map[int]*model.MessageRecord
}

func (m *mockMessages) Record(context.Context, *model.MessageRecord) error { return nil }

func (m *mockMessages) QueryRecentBotMessages(context.Context, int64, int, int) ([]*model.MessageRecord, error) {
	return nil, nil
}

func (m *mockMessages) FindByMessageID(_ context.Context, _ int64, id int) (*model.MessageRecord, error) {
	if r, ok := m.byID[id]; ok {
		return r, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockMessages) RecentChatMessages(_ context.Context, _ int64, limit int) ([]*model.MessageRecord, error) {
	if len(m.recent) > limit {
		return m.recent[len(m.recent)-limit:], nil
	}
	return m.recent, nil
}

func (m *mockMessages) UserMessagesSince(context.Context, int64, int64, time.Time, int, int) ([]*model.MessageRecord, error) {
	return nil, nil
}

// ---- helpers ----

const (
	groupID     = int64(-100555)
	untouchable = int64(999)
)

type fixture struct {
	facade   *application.BotFacade
	tr       *i18n.Translator
	queue    *mockQueue
	guard    *mockGuard
	heresy   *mockHeresy
	messages *mockMessages
	stats    *mockStats
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "es")
	if err != nil {
		t.Fatalf("load translator: %v", err)
	}
	f := &fixture{
		tr:       tr,
		queue:    &mockQueue{},
		guard:    &mockGuard{},
		heresy:   &mockHeresy{},
		messages: &mockMessages{byID: map[int]*model.MessageRecord{}},
		stats:    &mockStats{counts: map[model.LLMJobStatus]int{}},
	}
	l := zerolog.New(io.Discard)
	f.facade = application.NewBotFacade(f.queue, f.guard, f.heresy, f.messages, f.stats, tr,
		application.FacadeOptions{UntouchableIDs: []int64{untouchable}, GroupContextMessages: 2}, &l)
	return f
}

func groupMsg(id int, fromID int64, text string) *model.MessageRecord {
	return &model.MessageRecord{
		MessageID: id, ChatID: groupID, ChatType: "supergroup", ChatTitle: "Teología",
		FromID: fromID, FromFirstName: "User", Text: text,
	}
}

func analysisHandler(b *application.BotFacade, cmd string) func(context.Context, application.Request) (string, error) {
	switch cmd {
	case "verify":
		return b.HandleVerify
	case "fallacy":
		return b.HandleFallacy
	default:
		return b.HandleRoast
	}
}

// ---- tests ----

func TestBotFacade_StaticCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := application.Request{Message: groupMsg(1, 1, "/ping")}

	for name, fn := range map[string]func(context.Context, application.Request) (string, error){
		"start":   f.facade.HandleStart,
		"help":    f.facade.HandleHelp,
		"persona": f.facade.HandlePersona,
		"ping":    f.facade.HandlePing,
	} {
		got, err := fn(ctx, req)
		if err != nil {
			t.Fatalf("%s returned error: %v", name, err)
		}
		if got != f.tr.T(name) {
			t.Fatalf("%s: unexpected text %q", name, got)
		}
	}
}

func TestBotFacade_QueueStats(t *testing.T) {
	f := newFixture(t)
	f.stats.counts[model.LLMJobStatusPending] = 4
	f.stats.counts[model.LLMJobStatusFailed] = 1
	got, err := f.facade.HandleQueueStats(context.Background(), application.Request{Message: groupMsg(1, 1, "/queue_stats")})
	if err != nil {
		t.Fatalf("HandleQueueStats returned error: %v", err)
	}
	want := "📊 Estado de la cola\nPendientes: 4\nEn proceso: 0\nCompletadas: 0\nFallidas: 1"
	if got != want {
		t.Fatalf("unexpected stats %q", got)
	}
}

func TestBotFacade_Ask(t *testing.T) {
	ctx := context.Background()

	t.Run("should ask for a question", func(t *testing.T) {
		f := newFixture(t)
		got, _ := f.facade.HandleAsk(ctx, application.Request{Message: groupMsg(1, 1, "/ask"), Args: "  "})
		if got != f.tr.T("ask_missing_question") || len(f.queue.calls) != 0 {
			t.Fatalf("unexpected reply %q", got)
		}
	})

	t.Run("should queue and acknowledge", func(t *testing.T) {
		f := newFixture(t)
		got, err := f.facade.HandleAsk(ctx, application.Request{Message: groupMsg(10, 1, "/ask ¿Qué es la fe?"), Args: "¿Qué es la fe?"})
		if err != nil {
			t.Fatalf("HandleAsk returned error: %v", err)
		}
		if got != "✅ Recibido. Estoy procesando tu solicitud." {
			t.Fatalf("unexpected acknowledgement %q", got)
		}
		c := f.queue.calls[0]
		if c.kind != model.LLMJobKindAsk || c.chatID != groupID || c.msgID != 10 || c.payload.Question != "¿Qué es la fe?" {
			t.Fatalf("unexpected job %+v", c)
		}
	})

	t.Run("should report the queue position", func(t *testing.T) {
		f := newFixture(t)
		f.queue.pending = 3
		got, _ := f.facade.HandleAsk(ctx, application.Request{Message: groupMsg(10, 1, ""), Args: "q"})
		if got != "✅ Recibido. Hay 2 solicitud(es) antes de la tuya en la cola." {
			t.Fatalf("unexpected acknowledgement %q", got)
		}
	})

	t.Run("should propagate queue errors", func(t *testing.T) {
		f := newFixture(t)
		f.queue.err = errors.New("db down")
		if _, err := f.facade.HandleAsk(ctx, application.Request{Message: groupMsg(10, 1, ""), Args: "q"}); err == nil {
			t.Fatalf("expected an error")
		}
	})
}

func TestBotFacade_AskGroup(t *testing.T) {
	f := newFixture(t)
	f.messages.recent = []*model.MessageRecord{
		groupMsg(1, 2, "primero"),
		groupMsg(2, 3, "segundo"),
		groupMsg(3, 4, "tercero"),
		groupMsg(4, 1, "/ask_group ¿quién tiene razón?"),
	}
	_, err := f.facade.HandleAskGroup(context.Background(), application.Request{
		Message: groupMsg(4, 1, "/ask_group ¿quién tiene razón?"), Args: "¿quién tiene razón?",
	})
	if err != nil {
		t.Fatalf("HandleAskGroup returned error: %v", err)
	}
	p := f.queue.calls[0].payload
	if len(p.Context) != 2 || p.Context[0] != "User: segundo" || p.Context[1] != "User: tercero" {
		t.Fatalf("expected the two newest messages without the command, got %q", p.Context)
	}
}

func TestBotFacade_Analysis(t *testing.T) {
	ctx := context.Background()
	target := groupMsg(20, 7, "Lutero escribió la Suma Teológica")

	tests := []struct {
		name    string
		cmd     string
		req     application.Request
		prepare func(*fixture)
		want    string // message key, empty when a job is expected
		kind    model.LLMJobKind
	}{
		{
			name: "verify should require a reply",
			cmd:  "verify",
			req:  application.Request{Message: groupMsg(21, 1, "/verify"), Args: "texto suelto"},
			want: "verify_reply_required",
		},
		{
			name: "verify should protect untouchable users",
			cmd:  "verify",
			req:  application.Request{Message: groupMsg(21, 1, "/verify"), ReplyTo: groupMsg(20, untouchable, "x")},
			want: "verify_untouchable",
		},
		{
			name: "verify should refuse bot messages",
			cmd:  "verify",
			req:  application.Request{Message: groupMsg(21, 1, "/verify"), ReplyTo: &model.MessageRecord{MessageID: 20, ChatID: groupID, FromID: 5, FromIsBot: true, Text: "x"}},
			want: "verify_bot_message_blocked",
		},
		{
			name: "verify should fall back to the archive for the text",
			cmd:  "verify",
			req:  application.Request{Message: groupMsg(21, 1, "/verify"), ReplyTo: groupMsg(20, 7, "")},
			prepare: func(f *fixture) {
				f.messages.byID[20] = groupMsg(20, 7, "texto archivado")
			},
			kind: model.LLMJobKindVerify,
		},
		{
			name: "verify should report a missing original",
			cmd:  "verify",
			req:  application.Request{Message: groupMsg(21, 1, "/verify"), ReplyTo: groupMsg(20, 7, "")},
			want: "verify_original_missing",
		},
		{
			name: "fallacy should be blocked by the guard",
			cmd:  "fallacy",
			req:  application.Request{Message: groupMsg(21, 1, "/fallacy_detector"), ReplyTo: target},
			prepare: func(f *fixture) {
				f.guard.CheckFunc = func(string) (similarity.Result, error) {
					return similarity.Result{Blocked: true, Similarity: 1, Reason: similarity.ReasonSubstring}, nil
				}
			},
			want: "fallacy_bot_message_blocked",
		},
		{
			name: "fallacy should let the request through when the guard fails",
			cmd:  "fallacy",
			req:  application.Request{Message: groupMsg(21, 1, "/fallacy_detector"), ReplyTo: target},
			prepare: func(f *fixture) {
				f.guard.CheckFunc = func(string) (similarity.Result, error) { return similarity.Result{}, errors.New("db down") }
			},
			kind: model.LLMJobKindFallacy,
		},
		{
			name: "roast should accept free text",
			cmd:  "roast",
			req:  application.Request{Message: groupMsg(21, 1, "/roast la fe sola salva"), Args: "la fe sola salva"},
			kind: model.LLMJobKindRoast,
		},
		{
			name: "roast should require an argument",
			cmd:  "roast",
			req:  application.Request{Message: groupMsg(21, 1, "/roast")},
			want: "roast_missing_argument",
		},
		{
			name: "roast should protect untouchable users",
			cmd:  "roast",
			req:  application.Request{Message: groupMsg(21, 1, "/roast"), ReplyTo: groupMsg(20, untouchable, "x")},
			want: "roast_untouchable",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.prepare != nil {
				tc.prepare(f)
			}
			got, err := analysisHandler(f.facade, tc.cmd)(ctx, tc.req)
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tc.want != "" {
				if got != f.tr.T(tc.want) {
					t.Fatalf("expected %s, got %q", tc.want, got)
				}
				if len(f.queue.calls) != 0 {
					t.Fatalf("no job expected, got %+v", f.queue.calls)
				}
				return
			}
			if len(f.queue.calls) != 1 || f.queue.calls[0].kind != tc.kind {
				t.Fatalf("expected one %s job, got %+v (reply %q)", tc.kind, f.queue.calls, got)
			}
			if len(f.guard.checked) != 1 {
				t.Fatalf("the guard should run once, got %d", len(f.guard.checked))
			}
		})
	}

	t.Run("verify payload should describe the target", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.facade.HandleVerify(ctx, application.Request{Message: groupMsg(21, 1, "/verify"), ReplyTo: target}); err != nil {
			t.Fatalf("HandleVerify returned error: %v", err)
		}
		p := f.queue.calls[0].payload
		if p.Question != target.Text || p.UserID != 7 || p.AuthorName != "User" || p.ChatTitle != "Teología" {
			t.Fatalf("unexpected payload %+v", p)
		}
		if f.queue.calls[0].msgID != 21 {
			t.Fatalf("the job must reply to the command message")
		}
	})
}

func TestBotFacade_MyHeresy(t *testing.T) {
	ctx := context.Background()
	reply := groupMsg(30, 7, "hola")

	t.Run("should only work in groups", func(t *testing.T) {
		f := newFixture(t)
		private := &model.MessageRecord{MessageID: 1, ChatID: 7, ChatType: "private", FromID: 7}
		got, _ := f.facade.HandleMyHeresy(ctx, application.Request{Message: private, ReplyTo: reply})
		if got != f.tr.T("heresy_group_only") {
			t.Fatalf("unexpected reply %q", got)
		}
	})

	t.Run("should require a reply", func(t *testing.T) {
		f := newFixture(t)
		got, _ := f.facade.HandleMyHeresy(ctx, application.Request{Message: groupMsg(31, 1, "/my_heresy")})
		if got != f.tr.T("heresy_reply_required") {
			t.Fatalf("unexpected reply %q", got)
		}
	})

	t.Run("should answer from the cache", func(t *testing.T) {
		f := newFixture(t)
		f.heresy.cached = &model.HeresyEntry{Response: "Eres marcionita."}
		got, _ := f.facade.HandleMyHeresy(ctx, application.Request{Message: groupMsg(31, 1, "/my_heresy"), ReplyTo: reply})
		if got != "Eres marcionita." || len(f.queue.calls) != 0 {
			t.Fatalf("expected the cached verdict, got %q", got)
		}
	})

	t.Run("should report insufficient material", func(t *testing.T) {
		f := newFixture(t)
		f.heresy.err = usecase.ErrInsufficientMaterial
		got, _ := f.facade.HandleMyHeresy(ctx, application.Request{Message: groupMsg(31, 1, "/my_heresy"), ReplyTo: reply})
		if got != f.tr.T("heresy_insufficient_material") {
			t.Fatalf("unexpected reply %q", got)
		}
	})

	t.Run("should queue the material", func(t *testing.T) {
		f := newFixture(t)
		f.heresy.material = []string{"uno", "dos", "tres"}
		if _, err := f.facade.HandleMyHeresy(ctx, application.Request{Message: groupMsg(31, 1, "/my_heresy"), ReplyTo: reply}); err != nil {
			t.Fatalf("HandleMyHeresy returned error: %v", err)
		}
		c := f.queue.calls[0]
		if c.kind != model.LLMJobKindHeresy || c.payload.UserID != 7 || len(c.payload.Context) != 3 {
			t.Fatalf("unexpected job %+v", c)
		}
	})

	t.Run("should protect untouchable users", func(t *testing.T) {
		f := newFixture(t)
		got, _ := f.facade.HandleMyHeresy(ctx, application.Request{Message: groupMsg(31, 1, "/my_heresy"), ReplyTo: groupMsg(30, untouchable, "x")})
		if got != f.tr.T("heresy_untouchable") {
			t.Fatalf("unexpected reply %q", got)
		}
	})
}
