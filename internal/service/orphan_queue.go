package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// OrphanQueue registra rutas de adjuntos que ya no referencia ningún post.
type OrphanQueue interface {
	Push(ctx context.Context, path string) error
	Pop(ctx context.Context, max int) ([]string, error)
}

type memoryOrphanQueue struct {
	mu    sync.Mutex
	order []string
	seen  map[string]struct{}
}

func NewMemoryOrphanQueue() OrphanQueue {
	return &memoryOrphanQueue{seen: make(map[string]struct{})}
}

func (q *memoryOrphanQueue) Push(_ context.Context, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.seen[path]; ok {
		return nil
	}
	q.seen[path] = struct{}{}
	q.order = append(q.order, path)
	return nil
}

func (q *memoryOrphanQueue) Pop(_ context.Context, max int) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if max <= 0 || max > len(q.order) {
		max = len(q.order)
	}
	out := append([]string(nil), q.order[:max]...)
	q.order = q.order[max:]
	for _, p := range out {
		delete(q.seen, p)
	}
	return out, nil
}

type redisSetClient interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SPopN(ctx context.Context, key string, count int64) *redis.StringSliceCmd
}

type redisOrphanQueue struct {
	client redisSetClient
	key    string
}

// NewRedisOrphanQueue guarda los huérfanos en un set de Redis para que
// sobrevivan a reinicios del proceso.
func NewRedisOrphanQueue(client *redis.Client) OrphanQueue {
	if client == nil {
		return nil
	}
	return &redisOrphanQueue{
		client: client,
		key:    "attachments:orphans",
	}
}

func (q *redisOrphanQueue) Push(ctx context.Context, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return q.client.SAdd(ctx, q.key, path).Err()
}

func (q *redisOrphanQueue) Pop(ctx context.Context, max int) ([]string, error) {
	if max <= 0 {
		max = 100
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	paths, err := q.client.SPopN(ctx, q.key, int64(max)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	return paths, err
}
