package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/BTreeMap/NoaBot/internal/models"
)

// runStoreSuite exercises the Store contract against a backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("missing user", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.GetUser(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("create and read back", func(t *testing.T) {
		s := newStore(t)
		rec := models.NewUserRecord("100", "2025-01-02")
		rec.Count = 3
		rec.Name = "Sam"
		rec.Prefs["color"] = "red"
		rec.AppendHistory(models.HistoryEntry{Role: models.RoleUser, Text: "hi", TS: 1})
		if err := s.PutUser(ctx, rec); err != nil {
			t.Fatalf("PutUser failed: %v", err)
		}
		if rec.Version != 1 {
			t.Errorf("expected version 1 after create, got %d", rec.Version)
		}

		got, err := s.GetUser(ctx, "100")
		if err != nil {
			t.Fatalf("GetUser failed: %v", err)
		}
		if got.Count != 3 || got.Name != "Sam" || got.Prefs["color"] != "red" || len(got.History) != 1 || got.Version != 1 {
			t.Errorf("unexpected record: %+v", got)
		}
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		s := newStore(t)
		rec := models.NewUserRecord("200", "d")
		if err := s.PutUser(ctx, rec); err != nil {
			t.Fatalf("PutUser failed: %v", err)
		}
		first, _ := s.GetUser(ctx, "200")
		second, _ := s.GetUser(ctx, "200")

		first.Count = 1
		if err := s.PutUser(ctx, first); err != nil {
			t.Fatalf("first writer failed: %v", err)
		}
		second.Count = 99
		if err := s.PutUser(ctx, second); !errors.Is(err, ErrVersionConflict) {
			t.Errorf("expected ErrVersionConflict for stale writer, got %v", err)
		}

		got, _ := s.GetUser(ctx, "200")
		if got.Count != 1 {
			t.Errorf("stale write leaked: count = %d", got.Count)
		}
	})

	t.Run("duplicate create conflicts", func(t *testing.T) {
		s := newStore(t)
		if err := s.PutUser(ctx, models.NewUserRecord("300", "d")); err != nil {
			t.Fatalf("PutUser failed: %v", err)
		}
		if err := s.PutUser(ctx, models.NewUserRecord("300", "d")); !errors.Is(err, ErrVersionConflict) {
			t.Errorf("expected ErrVersionConflict, got %v", err)
		}
	})

	t.Run("scene roundtrip", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.GetScene(ctx); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		want := models.SceneState{Period: "night", Scene: "curled up", TS: 42}
		if err := s.PutScene(ctx, want); err != nil {
			t.Fatalf("PutScene failed: %v", err)
		}
		want.Scene = "moved on"
		if err := s.PutScene(ctx, want); err != nil {
			t.Fatalf("PutScene overwrite failed: %v", err)
		}
		got, err := s.GetScene(ctx)
		if err != nil || *got != want {
			t.Errorf("GetScene() = %+v, %v; want %+v", got, err, want)
		}
	})

	t.Run("update user creates then mutates", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 3; i++ {
			rec, err := UpdateUser(ctx, s, "400", "2025-01-02", func(r *models.UserRecord) error {
				r.Touch("2025-01-02")
				return nil
			})
			if err != nil {
				t.Fatalf("UpdateUser failed: %v", err)
			}
			if rec.Count != i+1 {
				t.Errorf("iteration %d: count = %d", i, rec.Count)
			}
		}
	})

	t.Run("update user propagates callback error", func(t *testing.T) {
		s := newStore(t)
		boom := errors.New("boom")
		_, err := UpdateUser(ctx, s, "500", "d", func(r *models.UserRecord) error { return boom })
		if !errors.Is(err, boom) {
			t.Errorf("expected callback error, got %v", err)
		}
		if _, err := s.GetUser(ctx, "500"); !errors.Is(err, ErrNotFound) {
			t.Errorf("record should not exist after failed update, got %v", err)
		}
	})
}

func TestInMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return NewInMemoryStore() })
}

func TestJSONFileStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewJSONFileStore(WithFilePath(filepath.Join(t.TempDir(), "memory.json")))
		if err != nil {
			t.Fatalf("NewJSONFileStore failed: %v", err)
		}
		return s
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewSQLiteStore(context.Background(), WithSQLiteDSN(filepath.Join(t.TempDir(), "noabot.db")))
		if err != nil {
			t.Fatalf("NewSQLiteStore failed: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestPostgresStore(t *testing.T) {
	// This test requires a running PostgreSQL instance.
	// Set the DATABASE_URL environment variable for connection string.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewPostgresStore(context.Background(), WithPostgresDSN(connStr))
		if err != nil {
			t.Skipf("Postgres not available: %v", err)
		}
		s.db.Exec("DELETE FROM users")
		s.db.Exec("DELETE FROM scene_state")
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestRedisStore(t *testing.T) {
	url := getenvOrSkip(t, "REDIS_URL")
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewRedisStore(context.Background(), WithRedisURL(url))
		if err != nil {
			t.Skipf("Redis not available: %v", err)
		}
		s.client.FlushDB(context.Background())
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestJSONFileStoreMalformedFileReadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := NewJSONFileStore(WithFilePath(path))
	if err != nil {
		t.Fatalf("NewJSONFileStore failed: %v", err)
	}
	doc := s.Load()
	if doc == nil || len(doc.Users) != 0 || doc.NoaState != nil {
		t.Errorf("expected empty document, got %+v", doc)
	}

	// The next write replaces the corrupt file.
	if err := s.PutUser(context.Background(), models.NewUserRecord("1", "d")); err != nil {
		t.Fatalf("PutUser failed: %v", err)
	}
	if len(s.Load().Users) != 1 {
		t.Error("expected one user after write")
	}
}

func TestJSONFileStoreReadsDocumentLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	legacy := `{"users":{"42":{"day":"2025-01-01","count":4,"name":"Ana","prefs":{},"history":[{"role":"user","text":"hey","timestamp":1}],"summary":"likes tea"}},
"noa_state":{"period":"morning","scene":"sipping coffee","timestamp":1700000000}}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	s, _ := NewJSONFileStore(WithFilePath(path))

	rec, err := s.GetUser(context.Background(), "42")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if rec.ChatID != "42" || rec.Count != 4 || rec.Summary != "likes tea" || len(rec.History) != 1 || rec.History[0].TS != 1 {
		t.Errorf("unexpected record: %+v", rec)
	}
	sc, err := s.GetScene(context.Background())
	if err != nil || sc.Scene != "sipping coffee" || sc.TS != 1700000000 {
		t.Errorf("unexpected scene: %+v, %v", sc, err)
	}
}

func TestJSONFileStoreWritesTimestampKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	s, _ := NewJSONFileStore(WithFilePath(path))
	rec := models.NewUserRecord("7", "2025-01-01")
	rec.AppendHistory(models.HistoryEntry{Role: models.RoleUser, Text: "hey", TS: 42})
	if err := s.PutUser(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if err := s.PutScene(context.Background(), models.SceneState{Period: "night", Scene: "stars", TS: 43}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"timestamp": 42`, `"timestamp": 43`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("memory file missing %s: %s", want, data)
		}
	}
}

func TestDetectDSNType(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"postgres://u:p@localhost/db", DSNTypePostgres},
		{"host=localhost user=x", DSNTypePostgres},
		{"redis://localhost:6379/0", DSNTypeRedis},
		{"/var/lib/noabot/noabot.db", DSNTypeSQLite},
		{"state.sqlite3", DSNTypeSQLite},
		{"memory", DSNTypeMemory},
		{"memory.json", DSNTypeFile},
		{"", DSNTypeFile},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			if got := DetectDSNType(tt.dsn); got != tt.want {
				t.Errorf("DetectDSNType(%q) = %q, want %q", tt.dsn, got, tt.want)
			}
		})
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	tests := []struct {
		dsn  string
		want string
	}{
		{"memory", "*store.InMemoryStore"},
		{filepath.Join(dir, "m.json"), "*store.JSONFileStore"},
		{filepath.Join(dir, "m.db"), "*store.SQLiteStore"},
	}
	for _, tt := range tests {
		s, err := Open(ctx, tt.dsn)
		if err != nil {
			t.Fatalf("Open(%q) failed: %v", tt.dsn, err)
		}
		if got := fmt.Sprintf("%T", s); got != tt.want {
			t.Errorf("Open(%q) = %s, want %s", tt.dsn, got, tt.want)
		}
		s.Close()
	}
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}
