package service

import (
	"context"

	"go.uber.org/zap"

	"posts-api/internal/repository"
)

// AttachmentJanitor borra binarios huérfanos encolados al eliminar o reemplazar imágenes.
type AttachmentJanitor struct {
	logger      *zap.Logger
	queue       OrphanQueue
	posts       repository.PostRepository
	attachments *AttachmentService
	batch       int
}

func NewAttachmentJanitor(logger *zap.Logger, queue OrphanQueue, posts repository.PostRepository, attachments *AttachmentService, batch int) *AttachmentJanitor {
	if batch <= 0 {
		batch = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttachmentJanitor{
		logger:      logger,
		queue:       queue,
		posts:       posts,
		attachments: attachments,
		batch:       batch,
	}
}

func (j *AttachmentJanitor) Name() string {
	return "attachment_gc"
}

// Run procesa un lote. Las rutas todavía referenciadas se descartan; las que
// fallan al borrarse vuelven a la cola.
func (j *AttachmentJanitor) Run(ctx context.Context) error {
	if j.queue == nil || j.attachments == nil {
		return nil
	}
	paths, err := j.queue.Pop(ctx, j.batch)
	if err != nil {
		return err
	}
	removed := 0
	for _, path := range paths {
		inUse, err := j.posts.ImageInUse(ctx, path)
		if err != nil {
			j.requeue(ctx, path, err)
			continue
		}
		if inUse {
			continue
		}
		if err := j.attachments.Remove(ctx, path); err != nil {
			j.requeue(ctx, path, err)
			continue
		}
		removed++
	}
	if len(paths) > 0 {
		j.logger.Info("orphan attachments processed", zap.Int("popped", len(paths)), zap.Int("removed", removed))
	}
	return nil
}

func (j *AttachmentJanitor) requeue(ctx context.Context, path string, cause error) {
	j.logger.Warn("orphan attachment cleanup failed", zap.String("path", path), zap.Error(cause))
	if err := j.queue.Push(ctx, path); err != nil {
		j.logger.Error("orphan attachment requeue failed", zap.String("path", path), zap.Error(err))
	}
}
