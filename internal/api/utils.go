package api

import (
	"time"

	"github.com/georgeshao/discord-relay/internal/storage"
	"github.com/georgeshao/discord-relay/pkg/types"
)

func recordToDispatch(record *storage.DispatchRecord) types.Dispatch {
	d := types.Dispatch{
		ID:              record.ID,
		Kind:            record.Kind,
		DestinationID:   record.DestinationID,
		Status:          record.Status,
		TextLength:      record.TextLength,
		AttachmentCount: record.AttachmentCount,
		AttachmentBytes: record.AttachmentBytes,
		Error:           record.Error,
		CreatedAt:       record.CreatedAt.Format(time.RFC3339Nano),
	}

	if record.CompletedAt != nil {
		completedAt := record.CompletedAt.Format(time.RFC3339Nano)
		d.CompletedAt = &completedAt
	}

	return d
}
