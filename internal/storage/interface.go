package storage

import (
	"context"

	"github.com/georgeshao/discord-relay/pkg/types"
)

// Store records dispatch outcomes. Records are written once, after the
// send attempt finishes, and never updated.
type Store interface {
	CreateDispatch(ctx context.Context, rec *DispatchRecord) error
	GetDispatch(ctx context.Context, id string) (*DispatchRecord, error)
	ListDispatches(ctx context.Context, filter DispatchFilter) ([]*DispatchRecord, int, error)
	GetDispatchStats(ctx context.Context) (*types.DispatchStats, error)

	Close() error
}
