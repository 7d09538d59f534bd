package model

import "time"

// HeresyEntry caches the /my_heresy verdict for a user within a chat.
type HeresyEntry struct {
	ID        int64
	ChatID    int64
	UserID    int64
	CreatedAt time.Time
	Response  string
}

// Fresh reports whether the entry is younger than ttl at now.
func (h *HeresyEntry) Fresh(now time.Time, ttl time.Duration) bool {
	if h == nil || h.Response == "" {
		return false
	}
	return now.Sub(h.CreatedAt) < ttl
}
