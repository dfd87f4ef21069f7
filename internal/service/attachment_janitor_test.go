package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"posts-api/internal/repository"
)

func TestAttachmentJanitor_RemovesOnlyUnreferenced(t *testing.T) {
	attachments, dir := newTestAttachmentService(t)
	repo := repository.NewMemoryPostRepository()
	queue := NewMemoryOrphanQueue()
	posts := NewPostService(zap.NewNop(), repo, attachments, queue)
	ctx := context.Background()

	kept, _ := posts.Create(ctx, alice, PostInput{Title: "k", Content: "k", Image: &Upload{MimeType: "image/png", Name: "keep.png", Data: pngBytes}})
	gone, _ := posts.Create(ctx, alice, PostInput{Title: "g", Content: "g", Image: &Upload{MimeType: "image/png", Name: "gone.png", Data: pngBytes}})
	if err := posts.Delete(ctx, alice, gone.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// Una ruta todavía referenciada no debe borrarse aunque esté encolada.
	_ = queue.Push(ctx, kept.ImagePath)

	janitor := NewAttachmentJanitor(zap.NewNop(), queue, repo, attachments, 10)
	if err := janitor.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, filepath.Base(gone.ImagePath))); !os.IsNotExist(err) {
		t.Fatalf("expected orphan removed, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, filepath.Base(kept.ImagePath))); err != nil {
		t.Fatalf("expected referenced image kept: %v", err)
	}
	if left, _ := queue.Pop(ctx, 10); len(left) != 0 {
		t.Fatalf("expected queue drained, got %v", left)
	}
}

func TestMemoryOrphanQueue_Dedup(t *testing.T) {
	q := NewMemoryOrphanQueue()
	ctx := context.Background()
	_ = q.Push(ctx, "a")
	_ = q.Push(ctx, "a")
	_ = q.Push(ctx, " ")
	_ = q.Push(ctx, "b")

	first, _ := q.Pop(ctx, 1)
	rest, _ := q.Pop(ctx, 0)
	if len(first) != 1 || first[0] != "a" || len(rest) != 1 || rest[0] != "b" {
		t.Fatalf("unexpected pops %v %v", first, rest)
	}
}

type mockRedisSetClient struct {
	added   []interface{}
	lastKey string
	popped  []string
	popErr  error
}

func (m *mockRedisSetClient) SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	m.lastKey = key
	m.added = append(m.added, members...)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(members)))
	return cmd
}

func (m *mockRedisSetClient) SPopN(ctx context.Context, key string, count int64) *redis.StringSliceCmd {
	m.lastKey = key
	cmd := redis.NewStringSliceCmd(ctx)
	if m.popErr != nil {
		cmd.SetErr(m.popErr)
		return cmd
	}
	n := min(int(count), len(m.popped))
	cmd.SetVal(m.popped[:n])
	m.popped = m.popped[n:]
	return cmd
}

func TestRedisOrphanQueue(t *testing.T) {
	mock := &mockRedisSetClient{popped: []string{"x", "y"}}
	q := &redisOrphanQueue{client: mock, key: "attachments:orphans"}
	ctx := context.Background()

	if err := q.Push(ctx, "  "); err != nil || len(mock.added) != 0 {
		t.Fatalf("expected blank path ignored, got %v %v", mock.added, err)
	}
	if err := q.Push(ctx, " http://host/images/a.png "); err != nil {
		t.Fatalf("push: %v", err)
	}
	if mock.lastKey != "attachments:orphans" || len(mock.added) != 1 || mock.added[0] != "http://host/images/a.png" {
		t.Fatalf("unexpected sadd %q %v", mock.lastKey, mock.added)
	}

	got, err := q.Pop(ctx, 5)
	if err != nil || len(got) != 2 {
		t.Fatalf("pop: %v %v", got, err)
	}

	mock.popErr = redis.Nil
	if got, err := q.Pop(ctx, 5); err != nil || got != nil {
		t.Fatalf("expected empty set to be nil,nil; got %v,%v", got, err)
	}

	mock.popErr = errors.New("redis down")
	if _, err := q.Pop(ctx, 5); err == nil {
		t.Fatalf("expected redis error")
	}
}

type fixedQueue struct {
	OrphanQueue
	pushed []string
}

func (f *fixedQueue) Pop(context.Context, int) ([]string, error) {
	return []string{"http://localhost:3000/images/missing-dir/x.png"}, nil
}

func (f *fixedQueue) Push(_ context.Context, path string) error {
	f.pushed = append(f.pushed, path)
	return nil
}

func TestAttachmentJanitor_IgnoresForeignPaths(t *testing.T) {
	attachments, _ := newTestAttachmentService(t)
	q := &fixedQueue{}
	janitor := NewAttachmentJanitor(zap.NewNop(), q, repository.NewMemoryPostRepository(), attachments, 10)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := janitor.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(q.pushed) != 0 {
		t.Fatalf("paths outside the store are dropped, got requeued %v", q.pushed)
	}
}
