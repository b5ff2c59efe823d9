package transfer

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DedupSet remembers which transfer ids were finalized, so a repeated end for
// the same id is an idempotent no-op. The in-memory implementation covers one
// process lifetime; the redis one survives restarts.
type DedupSet interface {
	Contains(ctx context.Context, id string) (bool, error)
	Add(ctx context.Context, id string) error
}

type memoryDedup struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewMemoryDedup returns a process-local saved-id set.
func NewMemoryDedup() DedupSet {
	return &memoryDedup{ids: make(map[string]struct{})}
}

func (d *memoryDedup) Contains(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.ids[id]
	return ok, nil
}

func (d *memoryDedup) Add(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids[id] = struct{}{}
	return nil
}

const redisDedupKey = "dealwatch:saved_ids"

type redisDedup struct {
	client *redis.Client
}

// NewRedisDedup returns a saved-id set backed by a redis SET, shared across
// restarts and instances.
func NewRedisDedup(addr, password string, db int) DedupSet {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &redisDedup{client: rdb}
}

func (d *redisDedup) Contains(ctx context.Context, id string) (bool, error) {
	return d.client.SIsMember(ctx, redisDedupKey, id).Result()
}

func (d *redisDedup) Add(ctx context.Context, id string) error {
	return d.client.SAdd(ctx, redisDedupKey, id).Err()
}
