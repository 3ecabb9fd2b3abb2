package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BTreeMap/NoaBot/internal/models"
)

const (
	redisUserPrefix = "noabot:user:"
	redisSceneKey   = "noabot:scene"
)

// RedisStore keeps each user record as a JSON value and uses WATCH/MULTI for version checks.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis using a redis:// URL.
func NewRedisStore(ctx context.Context, opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("redis URL not set")
	}
	ropts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(ropts)
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("RedisStore ping failed", "error", err)
		client.Close()
		return nil, err
	}
	slog.Debug("NewRedisStore: connected", "addr", ropts.Addr, "db", ropts.DB)
	return &RedisStore{client: client}, nil
}

func userKey(chatID string) string {
	return redisUserPrefix + chatID
}

func (s *RedisStore) GetUser(ctx context.Context, chatID string) (*models.UserRecord, error) {
	data, err := s.client.Get(ctx, userKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("RedisStore: failed to get user %s: %w", chatID, err)
	}
	var rec models.UserRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("RedisStore: failed to decode user %s: %w", chatID, err)
	}
	return &rec, nil
}

func (s *RedisStore) PutUser(ctx context.Context, rec *models.UserRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	key := userKey(rec.ChatID)

	next := rec.Clone()
	next.Version = rec.Version + 1
	next.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("RedisStore: failed to encode user %s: %w", rec.ChatID, err)
	}

	txf := func(tx *redis.Tx) error {
		var current int64
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var stored models.UserRecord
			if err := json.Unmarshal(data, &stored); err != nil {
				return err
			}
			current = stored.Version
		}
		if current != rec.Version {
			return ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) || errors.Is(err, ErrVersionConflict) {
		return ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("RedisStore: failed to save user %s: %w", rec.ChatID, err)
	}
	rec.Version = next.Version
	rec.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *RedisStore) GetScene(ctx context.Context) (*models.SceneState, error) {
	data, err := s.client.Get(ctx, redisSceneKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("RedisStore: failed to get scene: %w", err)
	}
	var sc models.SceneState
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("RedisStore: failed to decode scene: %w", err)
	}
	return &sc, nil
}

func (s *RedisStore) PutScene(ctx context.Context, sc models.SceneState) error {
	payload, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("RedisStore: failed to encode scene: %w", err)
	}
	if err := s.client.Set(ctx, redisSceneKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("RedisStore: failed to save scene: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
