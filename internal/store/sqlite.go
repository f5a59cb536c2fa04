package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/finwiselabs/finsync/internal/types"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the SQLite-backed local database holding every synchronized
// collection plus the pending-action log, settings, and sync bookkeeping.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Put upserts a record by id. LastModified is stamped with the current time
// but never moves backwards, so the per-record timestamp stays monotonically
// non-decreasing even across clock adjustments.
func (s *SQLiteStore) Put(ctx context.Context, collection types.Collection, rec types.Record, synced bool) error {
	if !collection.Valid() {
		return fmt.Errorf("put %q: %w", collection, ErrUnknownCollection)
	}
	payload := rec.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	// A caller-supplied timestamp (a pull carrying the remote updatedAt)
	// wins over the local clock so last-writer-wins comparisons stay
	// consistent with what the remote side saw.
	lastModified := rec.LastModified
	if lastModified == 0 {
		lastModified = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (collection, id, owner_id, payload, synced, last_modified)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			owner_id      = excluded.owner_id,
			payload       = excluded.payload,
			synced        = excluded.synced,
			last_modified = MAX(records.last_modified, excluded.last_modified)
	`, string(collection), rec.ID, rec.OwnerID, string(payload), boolToInt(synced), lastModified)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

// GetAll returns every record in a collection owned by ownerID. An empty
// ownerID returns the whole collection.
func (s *SQLiteStore) GetAll(ctx context.Context, collection types.Collection, ownerID string) ([]types.Record, error) {
	query := `
		SELECT id, owner_id, payload, synced, last_modified
		FROM records
		WHERE collection = ?`
	args := []any{string(collection)}
	if ownerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetOne returns a single record by id, or ErrNotFound.
func (s *SQLiteStore) GetOne(ctx context.Context, collection types.Collection, id string) (*types.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, payload, synced, last_modified
		FROM records
		WHERE collection = ? AND id = ?
	`, string(collection), id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}
	return rec, nil
}

// GetUnsynced returns the dirty set for a collection, oldest write first.
func (s *SQLiteStore) GetUnsynced(ctx context.Context, collection types.Collection) ([]types.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, payload, synced, last_modified
		FROM records
		WHERE collection = ? AND synced = 0
		ORDER BY last_modified ASC
	`, string(collection))
	if err != nil {
		return nil, fmt.Errorf("query unsynced records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// MarkSynced flips a record's synced flag to true without touching the
// payload or LastModified. The flip is conditional on last_modified not
// having advanced past the timestamp the confirmation was issued for, so a
// domain write landed mid-push stays dirty. Returns ErrNotFound when no row
// qualifies, either because the record was deleted since the sync pass
// started or because a fresher edit superseded the confirmed version.
func (s *SQLiteStore) MarkSynced(ctx context.Context, collection types.Collection, id string, lastModified int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE records SET synced = 1
		WHERE collection = ? AND id = ? AND last_modified <= ?
	`, string(collection), id, lastModified)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Remove hard-deletes a record. Removing a non-existent id is not an error.
func (s *SQLiteStore) Remove(ctx context.Context, collection types.Collection, id string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM records WHERE collection = ? AND id = ?
	`, string(collection), id)
	if err != nil {
		return fmt.Errorf("remove record: %w", err)
	}
	return nil
}

// Clear hard-deletes all records in a collection. Used only by full
// pull-sync, which repopulates from the server afterwards.
func (s *SQLiteStore) Clear(ctx context.Context, collection types.Collection) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM records WHERE collection = ?
	`, string(collection))
	if err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}
	return nil
}

// ClearAll wipes every local table. Used on logout.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM records`,
		`DELETE FROM pending_actions`,
		`DELETE FROM settings`,
		`DELETE FROM sync_meta`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear all: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func scanRecord(scanner interface{ Scan(...any) error }) (*types.Record, error) {
	var rec types.Record
	var payload string
	var synced int

	if err := scanner.Scan(&rec.ID, &rec.OwnerID, &payload, &synced, &rec.LastModified); err != nil {
		return nil, err
	}

	rec.Payload = json.RawMessage(payload)
	rec.Synced = synced != 0
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]types.Record, error) {
	records := make([]types.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
