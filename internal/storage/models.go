package storage

import (
	"time"

	"github.com/georgeshao/discord-relay/pkg/types"
)

const DefaultListLimit = 100

type DispatchRecord struct {
	ID              string
	Kind            types.DestinationKind
	DestinationID   string
	Status          types.DispatchStatus
	TextLength      int
	AttachmentCount int
	AttachmentBytes int64
	Error           *string
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

type DispatchFilter struct {
	Kind   *types.DestinationKind
	Status *types.DispatchStatus
	Limit  int
	Cursor *time.Time // created_at cursor for pagination (get items before this time)
}

// Matches reports whether rec passes the kind/status part of the filter.
func (f DispatchFilter) Matches(rec *DispatchRecord) bool {
	if f.Kind != nil && rec.Kind != *f.Kind {
		return false
	}
	if f.Status != nil && rec.Status != *f.Status {
		return false
	}
	return true
}

func (f DispatchFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// AddToStats counts rec's status into stats.
func AddToStats(stats *types.DispatchStats, status types.DispatchStatus, n int) {
	switch status {
	case types.StatusSent:
		stats.Sent += n
	case types.StatusNotFound:
		stats.NotFound += n
	case types.StatusFailed:
		stats.Failed += n
	}
	stats.Total += n
}
