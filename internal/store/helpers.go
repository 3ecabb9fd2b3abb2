package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/NoaBot/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// sqlStore holds the queries shared by the SQLite and Postgres backends.
// Queries are written with '?' placeholders and rebound for Postgres.
type sqlStore struct {
	db       *sql.DB
	name     string
	postgres bool
}

// rebind converts '?' placeholders into '$n' for Postgres.
func (s *sqlStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) GetUser(ctx context.Context, chatID string) (*models.UserRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT chat_id, day, count, name, prefs, history, summary, version, updated_at FROM users WHERE chat_id = ?`), chatID)
	rec, err := scanUserRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get user %s: %w", s.name, chatID, err)
	}
	return rec, nil
}

func (s *sqlStore) PutUser(ctx context.Context, rec *models.UserRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	prefs, history, err := encodeCollections(rec)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	var res sql.Result
	if rec.Version == 0 {
		res, err = s.db.ExecContext(ctx, s.rebind(
			`INSERT INTO users (chat_id, day, count, name, prefs, history, summary, version, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)
			 ON CONFLICT (chat_id) DO NOTHING`),
			rec.ChatID, rec.Day, rec.Count, nilIfEmpty(rec.Name), prefs, history, rec.Summary, now)
	} else {
		res, err = s.db.ExecContext(ctx, s.rebind(
			`UPDATE users SET day = ?, count = ?, name = ?, prefs = ?, history = ?, summary = ?,
			 version = version + 1, updated_at = ?
			 WHERE chat_id = ? AND version = ?`),
			rec.Day, rec.Count, nilIfEmpty(rec.Name), prefs, history, rec.Summary, now, rec.ChatID, rec.Version)
	}
	if err != nil {
		return fmt.Errorf("%s: failed to save user %s: %w", s.name, rec.ChatID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to read rows affected: %w", s.name, err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	rec.Version++
	rec.UpdatedAt = now
	return nil
}

func (s *sqlStore) GetScene(ctx context.Context) (*models.SceneState, error) {
	var sc models.SceneState
	err := s.db.QueryRowContext(ctx, `SELECT period, scene, ts FROM scene_state WHERE id = 1`).
		Scan(&sc.Period, &sc.Scene, &sc.TS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get scene: %w", s.name, err)
	}
	return &sc, nil
}

func (s *sqlStore) PutScene(ctx context.Context, sc models.SceneState) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO scene_state (id, period, scene, ts) VALUES (1, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET period = excluded.period, scene = excluded.scene, ts = excluded.ts`),
		sc.Period, sc.Scene, sc.TS)
	if err != nil {
		return fmt.Errorf("%s: failed to save scene: %w", s.name, err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// encodeCollections serializes the JSON columns of a record.
func encodeCollections(rec *models.UserRecord) (string, string, error) {
	prefs := rec.Prefs
	if prefs == nil {
		prefs = map[string]string{}
	}
	history := rec.History
	if history == nil {
		history = []models.HistoryEntry{}
	}
	p, err := json.Marshal(prefs)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode prefs: %w", err)
	}
	h, err := json.Marshal(history)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode history: %w", err)
	}
	return string(p), string(h), nil
}

// scanUserRow scans a UserRecord from a single sql.Row.
func scanUserRow(row *sql.Row) (*models.UserRecord, error) {
	var rec models.UserRecord
	var name sql.NullString
	var prefs, history []byte
	err := row.Scan(&rec.ChatID, &rec.Day, &rec.Count, &name, &prefs, &history, &rec.Summary, &rec.Version, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Name = name.String
	if err := json.Unmarshal(prefs, &rec.Prefs); err != nil {
		return nil, fmt.Errorf("failed to decode prefs: %w", err)
	}
	if err := json.Unmarshal(history, &rec.History); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	if rec.Prefs == nil {
		rec.Prefs = map[string]string{}
	}
	if rec.History == nil {
		rec.History = []models.HistoryEntry{}
	}
	return &rec, nil
}
