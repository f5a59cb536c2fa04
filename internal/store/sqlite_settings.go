package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finwiselabs/finsync/internal/types"
)

// PutSetting upserts a device-local preference. Settings are never queued
// for sync and never marked dirty.
func (s *SQLiteStore) PutSetting(ctx context.Context, key string, value json.RawMessage) error {
	if len(value) == 0 {
		value = json.RawMessage("null")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
	`, key, string(value), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put setting: %w", err)
	}
	return nil
}

// GetSetting retrieves a setting by key, or ErrNotFound.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (*types.Setting, error) {
	var value, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT value, updated_at FROM settings WHERE key = ?
	`, key).Scan(&value, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get setting: %w", err)
	}

	setting := types.Setting{Key: key, Value: json.RawMessage(value)}
	var parseErr error
	if setting.UpdatedAt, parseErr = time.Parse(time.RFC3339Nano, updatedAt); parseErr != nil {
		slog.Warn("settings: failed to parse updated_at", "value", updatedAt, "error", parseErr)
	}
	return &setting, nil
}

// SetSyncMeta sets a sync bookkeeping value (last-sync stamps).
func (s *SQLiteStore) SetSyncMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_meta (key, value) VALUES (?, ?)
	`, key, value)
	if err != nil {
		return fmt.Errorf("set sync meta: %w", err)
	}
	return nil
}

// GetSyncMeta retrieves a sync bookkeeping value by key.
func (s *SQLiteStore) GetSyncMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM sync_meta WHERE key = ?
	`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("sync meta key %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get sync meta: %w", err)
	}
	return value, nil
}
