package types

type DestinationKind string

const (
	KindChannel DestinationKind = "channel"
	KindUser    DestinationKind = "user"
)

type DispatchStatus string

const (
	StatusSent     DispatchStatus = "sent"
	StatusNotFound DispatchStatus = "not_found"
	StatusFailed   DispatchStatus = "failed"
)

// Dispatch is the public view of a recorded dispatch. Message text and
// attachment contents are never part of it.
type Dispatch struct {
	ID              string          `json:"id"`
	Kind            DestinationKind `json:"kind"`
	DestinationID   string          `json:"destination_id"`
	Status          DispatchStatus  `json:"status"`
	TextLength      int             `json:"text_length"`
	AttachmentCount int             `json:"attachment_count"`
	AttachmentBytes int64           `json:"attachment_bytes"`
	Error           *string         `json:"error,omitempty"`
	CreatedAt       string          `json:"created_at"`
	CompletedAt     *string         `json:"completed_at,omitempty"`
}

type DispatchStats struct {
	Total    int `json:"total"`
	Sent     int `json:"sent"`
	NotFound int `json:"not_found"`
	Failed   int `json:"failed"`
}

type ListDispatchesResponse struct {
	Dispatches []Dispatch `json:"dispatches"`
	Total      int        `json:"total"`
	Limit      int        `json:"limit"`
	NextCursor *string    `json:"next_cursor,omitempty"`
}
