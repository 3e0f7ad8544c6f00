package storage

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	logx "isthisai/pkg/logx"
)

// redisStore keeps the cursor in a string key and the ledger in a set,
// both under a configurable prefix so several bots can share an instance.
type redisStore struct {
	client *redis.Client
	prefix string
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("storage.redis.addr is required for redis driver")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Fail fast on a dead instance instead of at the first poll cycle.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}

	prefix := strings.TrimSpace(cfg.Redis.Prefix)
	if prefix == "" {
		prefix = "isthisai:"
	}
	return &redisStore{client: client, prefix: prefix, log: log}, nil
}

func (s *redisStore) cursorKey() string { return s.prefix + "cursor" }
func (s *redisStore) ledgerKey() string { return s.prefix + "replied" }

func (s *redisStore) Cursor(ctx context.Context) (string, error) {
	v, err := s.client.Get(ctx, s.cursorKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "get cursor")
	}
	return v, nil
}

func (s *redisStore) SetCursor(ctx context.Context, fullname string) error {
	return errors.Wrap(s.client.Set(ctx, s.cursorKey(), fullname, 0).Err(), "set cursor")
}

func (s *redisStore) HasProcessed(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, nil
	}
	ok, err := s.client.SIsMember(ctx, s.ledgerKey(), id).Result()
	if err != nil {
		return false, errors.Wrap(err, "query ledger")
	}
	return ok, nil
}

func (s *redisStore) MarkProcessed(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	return errors.Wrap(s.client.SAdd(ctx, s.ledgerKey(), id).Err(), "mark ledger")
}

func (s *redisStore) Close() error { return s.client.Close() }
