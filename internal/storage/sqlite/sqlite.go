package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/georgeshao/discord-relay/internal/storage"
	"github.com/georgeshao/discord-relay/pkg/types"
)

//go:embed schema.sql
var schemaSQL string

const dispatchColumns = `id, kind, destination_id, status, text_length, attachment_count,
	attachment_bytes, error, created_at, completed_at`

type SQLiteStore struct {
	db *sql.DB
}

func New(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(schemaSQL)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateDispatch(ctx context.Context, rec *storage.DispatchRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dispatches (`+dispatchColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		string(rec.Kind),
		rec.DestinationID,
		string(rec.Status),
		rec.TextLength,
		rec.AttachmentCount,
		rec.AttachmentBytes,
		toNullString(rec.Error),
		rec.CreatedAt.UnixNano(),
		toNullTime(rec.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert dispatch: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetDispatch(ctx context.Context, id string) (*storage.DispatchRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dispatchColumns+` FROM dispatches WHERE id = ?`, id)
	rec, err := scanDispatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatch: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListDispatches(ctx context.Context, filter storage.DispatchFilter) ([]*storage.DispatchRecord, int, error) {
	var where []string
	var args []any

	if filter.Kind != nil {
		where = append(where, "kind = ?")
		args = append(args, string(*filter.Kind))
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dispatches`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count dispatches: %w", err)
	}

	if filter.Cursor != nil {
		where = append(where, "created_at < ?")
		args = append(args, filter.Cursor.UnixNano())
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+dispatchColumns+` FROM dispatches`+clause+` ORDER BY created_at DESC, id DESC LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list dispatches: %w", err)
	}
	defer rows.Close()

	var records []*storage.DispatchRecord
	for rows.Next() {
		rec, err := scanDispatch(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan dispatch: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list dispatches: %w", err)
	}

	return records, total, nil
}

func (s *SQLiteStore) GetDispatchStats(ctx context.Context) (*types.DispatchStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM dispatches GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to get dispatch stats: %w", err)
	}
	defer rows.Close()

	stats := &types.DispatchStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch stats: %w", err)
		}
		storage.AddToStats(stats, types.DispatchStatus(status), count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get dispatch stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDispatch(row rowScanner) (*storage.DispatchRecord, error) {
	var (
		rec         storage.DispatchRecord
		kind        string
		status      string
		errMsg      sql.NullString
		createdAt   int64
		completedAt sql.NullInt64
	)
	if err := row.Scan(
		&rec.ID,
		&kind,
		&rec.DestinationID,
		&status,
		&rec.TextLength,
		&rec.AttachmentCount,
		&rec.AttachmentBytes,
		&errMsg,
		&createdAt,
		&completedAt,
	); err != nil {
		return nil, err
	}

	rec.Kind = types.DestinationKind(kind)
	rec.Status = types.DispatchStatus(status)
	rec.Error = fromNullString(errMsg)
	rec.CreatedAt = time.Unix(0, createdAt)
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64)
		rec.CompletedAt = &t
	}
	return &rec, nil
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func toNullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
