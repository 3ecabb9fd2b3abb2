// Package store provides storage backends for NoaBot user memory and scene state.
//
// Every backend keeps one record per chat id and guards writes with an optimistic
// version check, so concurrent requests for the same user cannot silently overwrite
// each other. A JSON file backend keeps the single-document memory.json layout.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/BTreeMap/NoaBot/internal/models"
)

// MaxUpdateAttempts bounds the read-modify-write loop in UpdateUser.
const MaxUpdateAttempts = 3

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("record version conflict")
)

// Store is the persistence contract shared by all backends.
type Store interface {
	// GetUser returns a copy of the record for chatID, or ErrNotFound.
	GetUser(ctx context.Context, chatID string) (*models.UserRecord, error)
	// PutUser writes rec when rec.Version matches the stored version (0 creates).
	// On success rec.Version is incremented; otherwise ErrVersionConflict is returned.
	PutUser(ctx context.Context, rec *models.UserRecord) error
	// GetScene returns the shared scene state, or ErrNotFound.
	GetScene(ctx context.Context) (*models.SceneState, error)
	// PutScene replaces the shared scene state.
	PutScene(ctx context.Context, s models.SceneState) error
	// Close releases backend resources.
	Close() error
}

// Opts holds configuration for store constructors.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store constructors.
type Option func(*Opts)

// WithDSN sets the backend DSN (file path, SQLite path, Postgres DSN or Redis URL).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database path.
func WithSQLiteDSN(dsn string) Option { return WithDSN(dsn) }

// WithPostgresDSN sets the Postgres connection string.
func WithPostgresDSN(dsn string) Option { return WithDSN(dsn) }

// WithRedisURL sets the Redis connection URL.
func WithRedisURL(url string) Option { return WithDSN(url) }

// WithFilePath sets the JSON memory file path.
func WithFilePath(path string) Option { return WithDSN(path) }

// DSN types returned by DetectDSNType.
const (
	DSNTypePostgres = "postgres"
	DSNTypeRedis    = "redis"
	DSNTypeSQLite   = "sqlite"
	DSNTypeMemory   = "memory"
	DSNTypeFile     = "file"
)

// DetectDSNType classifies a DSN into one of the supported backends.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	switch {
	case d == "memory" || d == ":memory:":
		return DSNTypeMemory
	case strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") || strings.Contains(d, "host="):
		return DSNTypePostgres
	case strings.HasPrefix(d, "redis://") || strings.HasPrefix(d, "rediss://"):
		return DSNTypeRedis
	}
	switch strings.ToLower(filepath.Ext(d)) {
	case ".db", ".sqlite", ".sqlite3":
		return DSNTypeSQLite
	}
	return DSNTypeFile
}

// Open builds the backend matching dsn.
func Open(ctx context.Context, dsn string) (Store, error) {
	kind := DetectDSNType(dsn)
	slog.Debug("Store.Open: selecting backend", "type", kind)
	switch kind {
	case DSNTypeMemory:
		return NewInMemoryStore(), nil
	case DSNTypePostgres:
		return NewPostgresStore(ctx, WithPostgresDSN(dsn))
	case DSNTypeRedis:
		return NewRedisStore(ctx, WithRedisURL(dsn))
	case DSNTypeSQLite:
		return NewSQLiteStore(ctx, WithSQLiteDSN(dsn))
	default:
		return NewJSONFileStore(WithFilePath(dsn))
	}
}

// UpdateUser loads the record for chatID (creating it dated today when absent),
// applies fn and writes it back, retrying on version conflicts.
func UpdateUser(ctx context.Context, s Store, chatID, today string, fn func(*models.UserRecord) error) (*models.UserRecord, error) {
	for attempt := 1; attempt <= MaxUpdateAttempts; attempt++ {
		rec, err := s.GetUser(ctx, chatID)
		if errors.Is(err, ErrNotFound) {
			rec = models.NewUserRecord(chatID, today)
		} else if err != nil {
			return nil, fmt.Errorf("failed to load user %s: %w", chatID, err)
		}

		if err := fn(rec); err != nil {
			return nil, err
		}

		err = s.PutUser(ctx, rec)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, fmt.Errorf("failed to save user %s: %w", chatID, err)
		}
		slog.Warn("Store.UpdateUser: version conflict, retrying", "chat_id", chatID, "attempt", attempt)
	}
	return nil, fmt.Errorf("user %s: %w after %d attempts", chatID, ErrVersionConflict, MaxUpdateAttempts)
}
