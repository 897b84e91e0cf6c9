package channels

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "channels:"

// RedisStore keeps each channel as a string key.
type RedisStore struct {
	rdb *goredis.Client
}

func NewRedisStore(ctx context.Context, opts *goredis.Options) (*RedisStore, error) {
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "failed to ping redis at %s", opts.Addr)
	}

	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	names := []string{}
	iter := s.rdb.Scan(ctx, 0, redisKeyPrefix+escapeGlob(prefix)+"*", 200).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), redisKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to scan channels under %s", prefix)
	}
	sort.Strings(names)
	return names, nil
}

func (s *RedisStore) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, redisKeyPrefix+name).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrChannelNotFound
		}
		return nil, errors.Wrapf(err, "failed to read channel %s", name)
	}
	return data, nil
}

func (s *RedisStore) Write(ctx context.Context, name string, data []byte) error {
	created, err := s.rdb.SetNX(ctx, redisKeyPrefix+name, data, 0).Result()
	if err != nil {
		return errors.Wrapf(err, "failed to write channel %s", name)
	}
	if !created {
		return errors.Wrapf(ErrChannelExists, "channel %s", name)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) Type() string {
	return "redis"
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
