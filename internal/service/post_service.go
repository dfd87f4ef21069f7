package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"posts-api/internal/domain"
	"posts-api/internal/repository"
)

// Upload es un binario recibido junto a un post.
type Upload struct {
	MimeType string
	Name     string
	Data     []byte
}

// PostInput son los campos editables de un post; Image es opcional.
type PostInput struct {
	Title   string
	Content string
	Image   *Upload
}

// PostService implementa el CRUD de posts con control de propiedad.
type PostService struct {
	logger      *zap.Logger
	posts       repository.PostRepository
	attachments *AttachmentService
	orphans     OrphanQueue
}

func NewPostService(logger *zap.Logger, posts repository.PostRepository, attachments *AttachmentService, orphans OrphanQueue) *PostService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if orphans == nil {
		orphans = NewMemoryOrphanQueue()
	}
	return &PostService{
		logger:      logger,
		posts:       posts,
		attachments: attachments,
		orphans:     orphans,
	}
}

// List devuelve la ventana pedida y el total de la colección completa.
func (s *PostService) List(ctx context.Context, pageSize, page int) ([]domain.Post, int, error) {
	posts, err := s.posts.List(ctx, repository.PageFor(pageSize, page))
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	total, err := s.posts.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}
	return posts, total, nil
}

func (s *PostService) Get(ctx context.Context, id string) (domain.Post, error) {
	if !isValidID(id) {
		return domain.Post{}, ErrNotFound
	}
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Post{}, ErrNotFound
		}
		return domain.Post{}, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

// Create guarda un post cuyo creador es siempre la identidad autenticada.
func (s *PostService) Create(ctx context.Context, identity domain.Identity, input PostInput) (domain.Post, error) {
	if identity.UserID == "" {
		return domain.Post{}, ErrNotAuthorized
	}
	title, content, err := validatePostInput(input)
	if err != nil {
		return domain.Post{}, err
	}

	imagePath, err := s.acceptImage(ctx, input.Image)
	if err != nil {
		return domain.Post{}, err
	}

	now := time.Now().UTC()
	post := domain.Post{
		ID:        uuid.NewString(),
		Creator:   identity.UserID,
		Title:     title,
		Content:   content,
		ImagePath: imagePath,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		s.discardImage(ctx, imagePath)
		return domain.Post{}, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

// Update aplica los cambios solo si el post existe y pertenece a identity, en
// una única operación del repositorio. Sin imagen nueva se conserva la anterior.
func (s *PostService) Update(ctx context.Context, identity domain.Identity, id string, input PostInput) error {
	if identity.UserID == "" || !isValidID(id) {
		return ErrNotAuthorized
	}
	title, content, err := validatePostInput(input)
	if err != nil {
		return err
	}

	imagePath, err := s.acceptImage(ctx, input.Image)
	if err != nil {
		return err
	}

	previous, err := s.posts.UpdateOwned(ctx, domain.Post{
		ID:        id,
		Creator:   identity.UserID,
		Title:     title,
		Content:   content,
		ImagePath: imagePath,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.discardImage(ctx, imagePath)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotAuthorized
		}
		return fmt.Errorf("update post: %w", err)
	}
	if imagePath != "" && previous != "" && previous != imagePath {
		s.markOrphan(ctx, previous)
	}
	return nil
}

// Delete borra el post si pertenece a identity. El binario adjunto queda
// encolado como huérfano; lo elimina AttachmentJanitor.
func (s *PostService) Delete(ctx context.Context, identity domain.Identity, id string) error {
	if identity.UserID == "" || !isValidID(id) {
		return ErrNotAuthorized
	}
	imagePath, err := s.posts.DeleteOwned(ctx, id, identity.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotAuthorized
		}
		return fmt.Errorf("delete post: %w", err)
	}
	s.markOrphan(ctx, imagePath)
	return nil
}

func (s *PostService) acceptImage(ctx context.Context, upload *Upload) (string, error) {
	if upload == nil {
		return "", nil
	}
	if s.attachments == nil {
		return "", errors.New("attachments not configured")
	}
	return s.attachments.Accept(ctx, upload.MimeType, upload.Name, upload.Data)
}

func (s *PostService) discardImage(ctx context.Context, path string) {
	if path == "" || s.attachments == nil {
		return
	}
	if err := s.attachments.Remove(ctx, path); err != nil {
		s.logger.Warn("discard attachment failed", zap.String("path", path), zap.Error(err))
		s.markOrphan(ctx, path)
	}
}

func (s *PostService) markOrphan(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := s.orphans.Push(ctx, path); err != nil {
		s.logger.Warn("enqueue orphan attachment failed", zap.String("path", path), zap.Error(err))
	}
}

func validatePostInput(input PostInput) (string, string, error) {
	title := strings.TrimSpace(input.Title)
	content := strings.TrimSpace(input.Content)
	if title == "" || content == "" {
		return "", "", fmt.Errorf("%w: title and content are required", ErrValidation)
	}
	return title, content, nil
}

func isValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
