package repository

import (
	"context"

	"veritheo-bot/internal/domain/model"
)

type HeresyRepository interface {
	// Latest returns the newest verdict for the user or domain.ErrNotFound.
	Latest(ctx context.Context, chatID, userID int64) (*model.HeresyEntry, error)
	Save(ctx context.Context, entry *model.HeresyEntry) error
}
