//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"veritheo-bot/internal/domain/model"
	"veritheo-bot/internal/usecase"
)

func TestHeresyUseCase(t *testing.T) {
	ctx := context.Background()
	const chatID, userID = int64(-1001), int64(55)
	long := func(s string) string { return s + " " + strings.Repeat("x", 120) }

	t.Run("fresh cache entry is reused, stale one ignored", func(t *testing.T) {
		cache := &memHeresy{}
		uc := usecase.NewHeresyUseCase(&memMessages{}, cache, usecase.HeresyConfig{}, newTestLogger())

		e, err := uc.Cached(ctx, chatID, userID)
		if err != nil || e != nil {
			t.Fatalf("expected miss, got %+v, %v", e, err)
		}

		cache.entries = append(cache.entries, &model.HeresyEntry{ChatID: chatID, UserID: userID, CreatedAt: time.Now().Add(-40 * 24 * time.Hour), Response: "old"})
		if e, _ := uc.Cached(ctx, chatID, userID); e != nil {
			t.Fatalf("stale entry returned: %+v", e)
		}

		if err := uc.Save(ctx, chatID, userID, "Eres pelagiano"); err != nil {
			t.Fatalf("save: %v", err)
		}
		e, err = uc.Cached(ctx, chatID, userID)
		if err != nil || e == nil || e.Response != "Eres pelagiano" {
			t.Fatalf("expected fresh entry, got %+v, %v", e, err)
		}
	})

	t.Run("material requires enough long human messages", func(t *testing.T) {
		msgs := &memMessages{}
		now := time.Now()
		msgs.rows = []*model.MessageRecord{
			{ChatID: chatID, FromID: userID, Text: long("uno"), Date: now.Add(-3 * time.Hour)},
			{ChatID: chatID, FromID: userID, Text: "corto", Date: now.Add(-2 * time.Hour)},
			{ChatID: chatID, FromID: userID, Text: long("viejo"), Date: now.Add(-400 * 24 * time.Hour)},
			{ChatID: chatID, FromID: userID, Text: long("dos"), Date: now.Add(-1 * time.Hour)},
		}
		uc := usecase.NewHeresyUseCase(msgs, &memHeresy{}, usecase.HeresyConfig{}, newTestLogger())

		if _, err := uc.Material(ctx, chatID, userID); !errors.Is(err, usecase.ErrInsufficientMaterial) {
			t.Fatalf("expected ErrInsufficientMaterial, got %v", err)
		}

		msgs.rows = append(msgs.rows, &model.MessageRecord{ChatID: chatID, FromID: userID, Text: long("tres"), Date: now})
		got, err := uc.Material(ctx, chatID, userID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 3 || !strings.HasPrefix(got[0], "uno") || !strings.HasPrefix(got[2], "tres") {
			t.Fatalf("expected chronological uno,dos,tres, got %d items", len(got))
		}
	})
}
