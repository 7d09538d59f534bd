//go:build integration

package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"veritheo-bot/internal/domain"
	"veritheo-bot/internal/domain/model"
)

func TestMessageRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewMessageRepo(testPool)
	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	record := func(t *testing.T, m *model.MessageRecord) {
		t.Helper()
		if err := repo.Record(ctx, m); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	t.Run("should page bot messages newest first", func(t *testing.T) {
		cleanup(t)
		for i := 0; i < 5; i++ {
			record(t, &model.MessageRecord{MessageID: i + 1, ChatID: 1, ChatType: "group", FromIsBot: true,
				Text: "respuesta", Date: base.Add(time.Duration(i) * time.Minute)})
		}
		record(t, &model.MessageRecord{MessageID: 99, ChatID: 1, ChatType: "group", FromID: 7, Text: "humano", Date: base})

		page, err := repo.QueryRecentBotMessages(ctx, 1, 2, 0)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(page) != 2 || page[0].MessageID != 5 || page[1].MessageID != 4 {
			t.Fatalf("unexpected first page: %+v", page)
		}
		page, _ = repo.QueryRecentBotMessages(ctx, 1, 2, 4)
		if len(page) != 1 || page[0].MessageID != 1 {
			t.Fatalf("unexpected last page: %+v", page)
		}
	})

	t.Run("should find a message by telegram id", func(t *testing.T) {
		cleanup(t)
		record(t, &model.MessageRecord{MessageID: 3, ChatID: 2, ChatType: "private", FromID: 8, FromFirstName: "Ana",
			Text: "hola", Date: base, Raw: []byte(`{"message_id":3}`)})
		got, err := repo.FindByMessageID(ctx, 2, 3)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.FromFirstName != "Ana" || got.Text != "hola" || !got.Date.Equal(base) {
			t.Errorf("unexpected record: %+v", got)
		}
		if _, err := repo.FindByMessageID(ctx, 2, 4); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should return recent chat messages chronologically", func(t *testing.T) {
		cleanup(t)
		for i := 0; i < 4; i++ {
			record(t, &model.MessageRecord{MessageID: i + 1, ChatID: 3, ChatType: "group", FromID: 1,
				Text: "m", Date: base.Add(time.Duration(i) * time.Second)})
		}
		got, err := repo.RecentChatMessages(ctx, 3, 2)
		if err != nil {
			t.Fatalf("recent: %v", err)
		}
		if len(got) != 2 || got[0].MessageID != 3 || got[1].MessageID != 4 {
			t.Fatalf("unexpected order: %+v", got)
		}
	})

	t.Run("should pick the longest user messages since a date", func(t *testing.T) {
		cleanup(t)
		long := strings.Repeat("x", 120)
		record(t, &model.MessageRecord{MessageID: 1, ChatID: 4, FromID: 5, Text: long + "a", Date: base.Add(-400 * 24 * time.Hour)})
		record(t, &model.MessageRecord{MessageID: 2, ChatID: 4, FromID: 5, Text: long + "bb", Date: base.Add(2 * time.Hour)})
		record(t, &model.MessageRecord{MessageID: 3, ChatID: 4, FromID: 5, Text: "corto", Date: base.Add(3 * time.Hour)})
		record(t, &model.MessageRecord{MessageID: 4, ChatID: 4, FromID: 5, Text: long + "cccc", Date: base.Add(time.Hour)})
		record(t, &model.MessageRecord{MessageID: 5, ChatID: 4, FromID: 5, Text: long + "ddd", Date: base.Add(4 * time.Hour)})

		got, err := repo.UserMessagesSince(ctx, 4, 5, base.Add(-365*24*time.Hour), 100, 2)
		if err != nil {
			t.Fatalf("since: %v", err)
		}
		if len(got) != 2 || got[0].MessageID != 4 || got[1].MessageID != 5 {
			t.Fatalf("unexpected selection: %+v", got)
		}
	})
}

func TestHeresyRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewHeresyRepo(testPool)
	cleanup(t)

	if _, err := repo.Latest(ctx, 1, 2); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	old := &model.HeresyEntry{ChatID: 1, UserID: 2, CreatedAt: time.Unix(1000, 0), Response: "arrianismo"}
	fresh := &model.HeresyEntry{ChatID: 1, UserID: 2, CreatedAt: time.Unix(2000, 0), Response: "pelagianismo"}
	for _, e := range []*model.HeresyEntry{old, fresh} {
		if err := repo.Save(ctx, e); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	got, err := repo.Latest(ctx, 1, 2)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.Response != "pelagianismo" || got.ID != fresh.ID {
		t.Errorf("expected newest entry, got %+v", got)
	}
}
