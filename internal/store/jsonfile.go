package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BTreeMap/NoaBot/internal/models"
)

// DefaultMemoryFile is used when no path is configured.
const DefaultMemoryFile = "memory.json"

// JSONFileStore persists the whole MemoryDocument as a single JSON file.
//
// Every operation reads the file afresh and every write replaces it wholesale.
// A missing or malformed file reads as an empty document. The mutex and version
// check only protect writers inside this process.
type JSONFileStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONFileStore creates a file-backed store. The parent directory is created if needed.
func NewJSONFileStore(opts ...Option) (*JSONFileStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	path := cfg.DSN
	if path == "" {
		path = DefaultMemoryFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			return nil, fmt.Errorf("failed to create memory directory: %w", err)
		}
	}
	slog.Debug("NewJSONFileStore: using memory file", "path", path)
	return &JSONFileStore{path: path}, nil
}

// Path returns the backing file path.
func (s *JSONFileStore) Path() string { return s.path }

// Load reads the memory document. It never fails: absence or corruption yields an empty document.
func (s *JSONFileStore) Load() *models.MemoryDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save replaces the memory document on disk.
func (s *JSONFileStore) Save(doc *models.MemoryDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(doc)
}

func (s *JSONFileStore) load() *models.MemoryDocument {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("JSONFileStore.load: failed to read memory file, starting empty", "path", s.path, "error", err)
		}
		return models.NewMemoryDocument()
	}
	doc := models.NewMemoryDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		slog.Warn("JSONFileStore.load: malformed memory file, starting empty", "path", s.path, "error", err)
		return models.NewMemoryDocument()
	}
	if doc.Users == nil {
		doc.Users = map[string]*models.UserRecord{}
	}
	for id, rec := range doc.Users {
		if rec == nil {
			delete(doc.Users, id)
			continue
		}
		if rec.ChatID == "" {
			rec.ChatID = id
		}
	}
	return doc
}

// save writes to a temp file in the same directory and renames it over the target.
func (s *JSONFileStore) save(doc *models.MemoryDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode memory document: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".memory-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp memory file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write memory file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close memory file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace memory file: %w", err)
	}
	return nil
}

func (s *JSONFileStore) GetUser(ctx context.Context, chatID string) (*models.UserRecord, error) {
	doc := s.Load()
	rec, ok := doc.Users[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *JSONFileStore) PutUser(ctx context.Context, rec *models.UserRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	var current int64
	if existing, ok := doc.Users[rec.ChatID]; ok {
		current = existing.Version
	}
	if rec.Version != current {
		return ErrVersionConflict
	}

	next := rec.Clone()
	next.Version++
	next.UpdatedAt = time.Now().UTC()
	doc.Users[rec.ChatID] = next
	if err := s.save(doc); err != nil {
		slog.Error("JSONFileStore.PutUser: save failed", "chat_id", rec.ChatID, "error", err)
		return err
	}
	rec.Version = next.Version
	rec.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *JSONFileStore) GetScene(ctx context.Context) (*models.SceneState, error) {
	doc := s.Load()
	if doc.NoaState == nil || doc.NoaState.IsZero() {
		return nil, ErrNotFound
	}
	sc := *doc.NoaState
	return &sc, nil
}

func (s *JSONFileStore) PutScene(ctx context.Context, sc models.SceneState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	doc.NoaState = &sc
	if err := s.save(doc); err != nil {
		slog.Error("JSONFileStore.PutScene: save failed", "error", err)
		return err
	}
	return nil
}

func (s *JSONFileStore) Close() error { return nil }
