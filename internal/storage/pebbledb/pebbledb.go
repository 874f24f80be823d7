package pebbledb

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/georgeshao/discord-relay/internal/storage"
	"github.com/georgeshao/discord-relay/pkg/types"
)

// Key prefixes
const (
	prefixDisp  = "disp:"  // disp:{id} → dispatch JSON
	prefixTs    = "ts:"    // ts:{ts}:{id} → empty, created_at index
	prefixCount = "count:" // count:{status} → int64
)

var allStatuses = []types.DispatchStatus{types.StatusSent, types.StatusNotFound, types.StatusFailed}

type PebbleStore struct {
	db *pebble.DB
}

type dispatchData struct {
	ID              string  `json:"id"`
	Kind            string  `json:"kind"`
	DestinationID   string  `json:"destination_id"`
	Status          string  `json:"status"`
	TextLength      int     `json:"text_length"`
	AttachmentCount int     `json:"attachment_count"`
	AttachmentBytes int64   `json:"attachment_bytes"`
	Error           *string `json:"error,omitempty"`
	CreatedAt       int64   `json:"created_at"` // Unix nano
	CompletedAt     *int64  `json:"completed_at,omitempty"`
}

func New(dbPath string) (*PebbleStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	opts := &pebble.Options{
		Merger: &pebble.Merger{
			Name: "int64_add",
			Merge: func(key, value []byte) (pebble.ValueMerger, error) {
				return &int64Merger{sum: decodeInt64(value)}, nil
			},
		},
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database: %w", err)
	}

	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func dispKey(id string) []byte {
	return []byte(prefixDisp + id)
}

func tsKey(ts int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixTs, ts, id))
}

func countKey(status string) []byte {
	return []byte(prefixCount + status)
}

func encodeInt64(n int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(n))
	return b
}

func decodeInt64(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

type int64Merger struct {
	sum int64
}

func (m *int64Merger) MergeNewer(value []byte) error {
	m.sum += decodeInt64(value)
	return nil
}

func (m *int64Merger) MergeOlder(value []byte) error {
	m.sum += decodeInt64(value)
	return nil
}

func (m *int64Merger) Finish(includesBase bool) ([]byte, io.Closer, error) {
	return encodeInt64(m.sum), nil, nil
}

func upperBound(prefix []byte) []byte {
	ub := make([]byte, len(prefix))
	copy(ub, prefix)
	for i := len(ub) - 1; i >= 0; i-- {
		if ub[i] < 0xff {
			ub[i]++
			return ub
		}
		ub[i] = 0
	}
	return append(ub, 0)
}

func (s *PebbleStore) CreateDispatch(ctx context.Context, rec *storage.DispatchRecord) error {
	existing, err := s.getDispatchData(rec.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("dispatch already exists: %s", rec.ID)
	}

	data := dispatchData{
		ID:              rec.ID,
		Kind:            string(rec.Kind),
		DestinationID:   rec.DestinationID,
		Status:          string(rec.Status),
		TextLength:      rec.TextLength,
		AttachmentCount: rec.AttachmentCount,
		AttachmentBytes: rec.AttachmentBytes,
		Error:           rec.Error,
		CreatedAt:       rec.CreatedAt.UnixNano(),
	}
	if rec.CompletedAt != nil {
		completed := rec.CompletedAt.UnixNano()
		data.CompletedAt = &completed
	}

	value, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	batch.Set(dispKey(rec.ID), value, nil)
	batch.Set(tsKey(data.CreatedAt, rec.ID), nil, nil)
	batch.Merge(countKey(data.Status), encodeInt64(1), nil)
	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) GetDispatch(ctx context.Context, id string) (*storage.DispatchRecord, error) {
	data, err := s.getDispatchData(id)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return toDispatchRecord(data), nil
}

func (s *PebbleStore) getDispatchData(id string) (*dispatchData, error) {
	value, closer, err := s.db.Get(dispKey(id))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatch: %w", err)
	}
	defer closer.Close()

	var data dispatchData
	if err := json.Unmarshal(value, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dispatch: %w", err)
	}
	return &data, nil
}

// ListDispatches walks the created_at index newest first. Kind and status
// filters are applied to the decoded records.
func (s *PebbleStore) ListDispatches(ctx context.Context, filter storage.DispatchFilter) ([]*storage.DispatchRecord, int, error) {
	limit := filter.EffectiveLimit()

	prefix := []byte(prefixTs)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var cursorKey []byte
	if filter.Cursor != nil {
		cursorKey = tsKey(filter.Cursor.UnixNano(), "")
	}

	var records []*storage.DispatchRecord
	total := 0

	for iter.Last(); iter.Valid(); iter.Prev() {
		id := extractIDFromTsKey(iter.Key())
		if id == "" {
			continue
		}
		data, err := s.getDispatchData(id)
		if err != nil {
			return nil, 0, err
		}
		if data == nil {
			continue
		}
		rec := toDispatchRecord(data)
		if !filter.Matches(rec) {
			continue
		}
		total++

		// Skip entries at or after cursor
		if cursorKey != nil && bytes.Compare(iter.Key(), cursorKey) >= 0 {
			continue
		}
		if len(records) < limit {
			records = append(records, rec)
		}
	}

	return records, total, nil
}

func (s *PebbleStore) GetDispatchStats(ctx context.Context) (*types.DispatchStats, error) {
	stats := &types.DispatchStats{}
	for _, status := range allStatuses {
		storage.AddToStats(stats, status, int(s.getCount(string(status))))
	}
	return stats, nil
}

func (s *PebbleStore) getCount(status string) int64 {
	value, closer, err := s.db.Get(countKey(status))
	if err != nil {
		return 0
	}
	defer closer.Close()
	return decodeInt64(value)
}

func toDispatchRecord(data *dispatchData) *storage.DispatchRecord {
	rec := &storage.DispatchRecord{
		ID:              data.ID,
		Kind:            types.DestinationKind(data.Kind),
		DestinationID:   data.DestinationID,
		Status:          types.DispatchStatus(data.Status),
		TextLength:      data.TextLength,
		AttachmentCount: data.AttachmentCount,
		AttachmentBytes: data.AttachmentBytes,
		Error:           data.Error,
		CreatedAt:       time.Unix(0, data.CreatedAt),
	}
	if data.CompletedAt != nil {
		t := time.Unix(0, *data.CompletedAt)
		rec.CompletedAt = &t
	}
	return rec
}

// extractIDFromTsKey extracts the dispatch ID from an index key
// Key format: ts:{ts}:{id}
func extractIDFromTsKey(key []byte) string {
	parts := bytes.SplitN(key, []byte(":"), 3)
	if len(parts) == 3 {
		return string(parts[2])
	}
	return ""
}
