package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/config"
	"github.com/YelzhanWeb/orderflow/internal/interfaces"
	goredis "github.com/redis/go-redis/v9"
)

const generationKey = "orderflow:snapshots:generation"

// SnapshotCache keeps serialized order snapshots for a short TTL. Keys embed
// the generation counter, so bumping it orphans every earlier entry.
type SnapshotCache struct {
	Client *goredis.Client
	TTL    time.Duration
	Prefix string
}

var _ interfaces.SnapshotCache = (*SnapshotCache)(nil)

func NewSnapshotCache(client *goredis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{Client: client, TTL: ttl, Prefix: "orderflow:"}
}

// Connect opens a client for cfg and verifies it answers PING.
func Connect(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func (c *SnapshotCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.Client.Get(ctx, c.Prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (c *SnapshotCache) Set(ctx context.Context, key string, value []byte) error {
	return c.Client.Set(ctx, c.Prefix+key, value, c.TTL).Err()
}

func (c *SnapshotCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.Client.Get(ctx, generationKey).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *SnapshotCache) Invalidate(ctx context.Context) error {
	return c.Client.Incr(ctx, generationKey).Err()
}
