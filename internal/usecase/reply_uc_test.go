//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"veritheo-bot/internal/domain"
	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/domain/ports/adapter"
	"veritheo-bot/internal/usecase"
)

func TestReplyUseCase_Deliver(t *testing.T) {
	ctx := context.Background()

	t.Run("markdown send is archived", func(t *testing.T) {
		chat := &MockChat{}
		msgs := &memMessages{}
		uc := usecase.NewReplyUseCase(chat, msgs, nil, newTestLogger())

		sent, err := uc.Deliver(ctx, 5, 42, "*hola*")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(chat.Sent) != 1 || chat.Sent[0].ParseMode != adapter.ParseModeMarkdown || chat.Sent[0].ReplyToMessageID != 42 {
			t.Fatalf("unexpected sends: %+v", chat.Sent)
		}
		if len(msgs.rows) != 1 || msgs.rows[0].MessageID != sent.MessageID {
			t.Fatalf("sent message not archived: %+v", msgs.rows)
		}
	})

	t.Run("falls back to plain text", func(t *testing.T) {
		chat := &MockChat{}
		chat.SendMessageFunc = func(_ context.Context, m adapter.OutgoingMessage) (*model.MessageRecord, error) {
			if m.ParseMode == adapter.ParseModeMarkdown {
				return nil, errors.New("can't parse entities")
			}
			return &model.MessageRecord{MessageID: 9, ChatID: m.ChatID, FromIsBot: true, Text: m.Text}, nil
		}
		uc := usecase.NewReplyUseCase(chat, &memMessages{}, nil, newTestLogger())

		if _, err := uc.Deliver(ctx, 5, 1, "a_b"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(chat.Sent) != 2 || chat.Sent[1].ParseMode != adapter.ParseModeNone {
			t.Fatalf("expected markdown then plain, got %+v", chat.Sent)
		}
	})

	t.Run("both sends failing is a delivery error", func(t *testing.T) {
		chat := &MockChat{SendMessageFunc: func(context.Context, adapter.OutgoingMessage) (*model.MessageRecord, error) {
			return nil, errors.New("forbidden")
		}}
		uc := usecase.NewReplyUseCase(chat, &memMessages{}, nil, newTestLogger())

		_, err := uc.Deliver(ctx, 5, 1, "x")
		if !errors.Is(err, domain.ErrDelivery) {
			t.Fatalf("expected ErrDelivery, got %v", err)
		}
	})

	t.Run("archive failures are not fatal", func(t *testing.T) {
		uc := usecase.NewReplyUseCase(&MockChat{}, &memMessages{RecordErr: errors.New("disk full")}, nil, newTestLogger())
		if _, err := uc.Deliver(ctx, 5, 1, "x"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("long text is summarized", func(t *testing.T) {
		chat := &MockChat{}
		uc := usecase.NewReplyUseCase(chat, &memMessages{}, stubSummarizer{out: "resumen"}, newTestLogger())

		if _, err := uc.Deliver(ctx, 5, 1, strings.Repeat("a", 5000)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if chat.Sent[0].Text != "resumen" {
			t.Fatalf("expected summary, got %q", chat.Sent[0].Text[:20])
		}
	})

	t.Run("failed summary truncates", func(t *testing.T) {
		chat := &MockChat{}
		uc := usecase.NewReplyUseCase(chat, &memMessages{}, stubSummarizer{err: errors.New("quota")}, newTestLogger())

		if _, err := uc.Deliver(ctx, 5, 1, strings.Repeat("é", 5000)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := chat.Sent[0].Text
		if utf8.RuneCountInString(got) != usecase.TelegramMessageLimit || !strings.HasSuffix(got, "…") {
			t.Fatalf("expected %d runes ending with ellipsis, got %d", usecase.TelegramMessageLimit, utf8.RuneCountInString(got))
		}
	})
}

func TestBuildSourcesMessage(t *testing.T) {
	t.Run("no url sources", func(t *testing.T) {
		if _, ok := usecase.BuildSourcesMessage([]adapter.Source{{Type: "document", URL: "x"}, {Type: "url", URL: "  "}}); ok {
			t.Fatal("expected no message")
		}
	})

	t.Run("dedup, host fallback and escaping", func(t *testing.T) {
		got, ok := usecase.BuildSourcesMessage([]adapter.Source{
			{Type: "url", URL: " https://vatican.va/a ", Title: "Catecismo [1992]"},
			{Type: "url", URL: "https://vatican.va/a", Title: "dup"},
			{Type: "url", URL: "https://www.biblegateway.com/passage?x=1"},
			{Type: "url", URL: "not a url", Title: ""},
		})
		if !ok {
			t.Fatal("expected a message")
		}
		want := "🙏 Gracias por tu pregunta. Aquí encuentras las fuentes consultadas:\n\n" +
			"- [Catecismo \\[1992\\]](https://vatican.va/a)\n" +
			"- [www.biblegateway.com](https://www.biblegateway.com/passage?x=1)\n" +
			"- [not a url](not a url)"
		if got != want {
			t.Fatalf("want\n%s\ngot\n%s", want, got)
		}
	})
}

func TestTruncate(t *testing.T) {
	if got := usecase.Truncate("abc", 5); got != "abc" {
		t.Fatalf("short text changed: %q", got)
	}
	if got := usecase.Truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("got %q", got)
	}
	if got := usecase.Truncate("ab   cdef", 5); got != "ab…" {
		t.Fatalf("trailing space not trimmed: %q", got)
	}
}
