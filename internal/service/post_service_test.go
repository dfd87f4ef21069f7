package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"posts-api/internal/domain"
	"posts-api/internal/repository"
)

type postFixture struct {
	svc     *PostService
	repo    *repository.MemoryPostRepository
	orphans OrphanQueue
}

func newPostFixture(t *testing.T) postFixture {
	t.Helper()
	attachments, _ := newTestAttachmentService(t)
	repo := repository.NewMemoryPostRepository()
	orphans := NewMemoryOrphanQueue()
	return postFixture{
		svc:     NewPostService(zap.NewNop(), repo, attachments, orphans),
		repo:    repo,
		orphans: orphans,
	}
}

var (
	alice = domain.Identity{UserID: uuid.NewString(), Email: "alice@example.com"}
	bob   = domain.Identity{UserID: uuid.NewString(), Email: "bob@example.com"}
)

func TestPostService_CreateSetsCreatorFromIdentity(t *testing.T) {
	f := newPostFixture(t)
	post, err := f.svc.Create(context.Background(), alice, PostInput{
		Title:   " Hello ",
		Content: "World",
		Image:   &Upload{MimeType: "image/png", Name: "a.png", Data: pngBytes},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if post.Creator != alice.UserID || post.Title != "Hello" || post.ImagePath == "" {
		t.Fatalf("unexpected post %+v", post)
	}

	got, err := f.svc.Get(context.Background(), post.ID)
	if err != nil || got.ID != post.ID {
		t.Fatalf("get: %+v %v", got, err)
	}
}

func TestPostService_CreateValidation(t *testing.T) {
	f := newPostFixture(t)
	if _, err := f.svc.Create(context.Background(), alice, PostInput{Title: "", Content: "x"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty title, got %v", err)
	}
	if _, err := f.svc.Create(context.Background(), alice, PostInput{Title: "x", Content: "  "}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty content, got %v", err)
	}
	_, err := f.svc.Create(context.Background(), alice, PostInput{
		Title: "x", Content: "y",
		Image: &Upload{MimeType: "text/plain", Name: "a.txt", Data: []byte("hi")},
	})
	if !errors.Is(err, ErrUnsupportedMediaType) {
		t.Fatalf("expected ErrUnsupportedMediaType, got %v", err)
	}
	if _, err := f.svc.Create(context.Background(), domain.Identity{}, PostInput{Title: "x", Content: "y"}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized without identity, got %v", err)
	}
	if n, _ := f.repo.Count(context.Background()); n != 0 {
		t.Fatalf("expected nothing stored, got %d", n)
	}
}

func TestPostService_GetNotFound(t *testing.T) {
	f := newPostFixture(t)
	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		if _, err := f.svc.Get(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for %q, got %v", id, err)
		}
	}
}

func TestPostService_ListPagination(t *testing.T) {
	f := newPostFixture(t)
	var ids []string
	for i := 0; i < 5; i++ {
		post, err := f.svc.Create(context.Background(), alice, PostInput{Title: fmt.Sprintf("t%d", i), Content: "c"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, post.ID)
	}

	items, total, err := f.svc.List(context.Background(), 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(items) != 2 || items[0].ID != ids[2] || items[1].ID != ids[3] {
		t.Fatalf("unexpected page: total=%d items=%+v", total, items)
	}

	items, total, _ = f.svc.List(context.Background(), 0, 0)
	if total != 5 || len(items) != 5 {
		t.Fatalf("expected full collection, got total=%d len=%d", total, len(items))
	}

	_, total, _ = f.svc.List(context.Background(), 3, 7)
	if total != 5 {
		t.Fatalf("expected total independent of page, got %d", total)
	}
}

func TestPostService_OwnershipEnforced(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	alicePost, _ := f.svc.Create(ctx, alice, PostInput{Title: "A", Content: "a"})
	bobPost, _ := f.svc.Create(ctx, bob, PostInput{Title: "B", Content: "b"})

	if err := f.svc.Update(ctx, alice, bobPost.ID, PostInput{Title: "hijack", Content: "x"}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized on foreign update, got %v", err)
	}
	if err := f.svc.Delete(ctx, alice, bobPost.ID); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized on foreign delete, got %v", err)
	}

	unchanged, err := f.svc.Get(ctx, bobPost.ID)
	if err != nil || unchanged.Title != "B" || unchanged.Content != "b" {
		t.Fatalf("expected bob's post unchanged, got %+v %v", unchanged, err)
	}

	// Un id inexistente da el mismo error que un post ajeno.
	if err := f.svc.Update(ctx, alice, uuid.NewString(), PostInput{Title: "x", Content: "y"}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for missing id, got %v", err)
	}
	if err := f.svc.Delete(ctx, alice, "garbage"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for malformed id, got %v", err)
	}

	if err := f.svc.Update(ctx, alice, alicePost.ID, PostInput{Title: "A2", Content: "a2"}); err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if err := f.svc.Delete(ctx, alice, alicePost.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, alicePost.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted post to be gone, got %v", err)
	}
}

func TestPostService_UpdateImageRetainOrReplace(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	post, err := f.svc.Create(ctx, alice, PostInput{
		Title: "A", Content: "a",
		Image: &Upload{MimeType: "image/png", Name: "first.png", Data: pngBytes},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.svc.Update(ctx, alice, post.ID, PostInput{Title: "A", Content: "edited"}); err != nil {
		t.Fatalf("update without image: %v", err)
	}
	got, _ := f.svc.Get(ctx, post.ID)
	if got.ImagePath != post.ImagePath {
		t.Fatalf("expected image retained, got %q", got.ImagePath)
	}

	err = f.svc.Update(ctx, alice, post.ID, PostInput{
		Title: "A", Content: "edited",
		Image: &Upload{MimeType: "image/jpeg", Name: "second.jpg", Data: jpegBytes},
	})
	if err != nil {
		t.Fatalf("update with image: %v", err)
	}
	got, _ = f.svc.Get(ctx, post.ID)
	if got.ImagePath == post.ImagePath {
		t.Fatalf("expected image replaced")
	}

	orphans, _ := f.orphans.Pop(ctx, 10)
	if len(orphans) != 1 || orphans[0] != post.ImagePath {
		t.Fatalf("expected replaced image queued as orphan, got %v", orphans)
	}
}

func TestPostService_DeleteQueuesAttachment(t *testing.T) {
	f := newPostFixture(t)
	ctx := context.Background()
	post, _ := f.svc.Create(ctx, alice, PostInput{
		Title: "A", Content: "a",
		Image: &Upload{MimeType: "image/png", Name: "a.png", Data: pngBytes},
	})
	if err := f.svc.Delete(ctx, alice, post.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	orphans, _ := f.orphans.Pop(ctx, 10)
	if len(orphans) != 1 || orphans[0] != post.ImagePath {
		t.Fatalf("expected deleted post image queued, got %v", orphans)
	}
}
