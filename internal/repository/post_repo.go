package repository

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"posts-api/internal/domain"
)

// Page describe una ventana sobre la colección. Limit 0 significa "todo".
type Page struct {
	Limit  int
	Offset int
}

// PageFor traduce los parámetros de paginación del cliente a una ventana.
// Solo pagina cuando ambos son positivos; en otro caso devuelve la colección completa.
// Un offset que no cabe en int se satura: la ventana queda más allá del final.
func PageFor(pageSize, page int) Page {
	if pageSize <= 0 || page <= 0 {
		return Page{}
	}
	if page-1 > math.MaxInt/pageSize {
		return Page{Limit: pageSize, Offset: math.MaxInt}
	}
	return Page{Limit: pageSize, Offset: pageSize * (page - 1)}
}

// PostRepository define el contrato de persistencia para posts.
//
// UpdateOwned y DeleteOwned combinan la comprobación de id y creador con la
// escritura en una sola operación; devuelven pgx.ErrNoRows si no hay coincidencia.
type PostRepository interface {
	Create(ctx context.Context, post domain.Post) error
	GetByID(ctx context.Context, id string) (domain.Post, error)
	List(ctx context.Context, page Page) ([]domain.Post, error)
	Count(ctx context.Context) (int, error)
	UpdateOwned(ctx context.Context, post domain.Post) (previousImage string, err error)
	DeleteOwned(ctx context.Context, id, creatorID string) (imagePath string, err error)
	ImageInUse(ctx context.Context, imagePath string) (bool, error)
}

type PgPostRepository struct {
	pool *pgxpool.Pool
}

func NewPgPostRepository(pool *pgxpool.Pool) *PgPostRepository {
	return &PgPostRepository{pool: pool}
}

func (r *PgPostRepository) Create(ctx context.Context, post domain.Post) error {
	const query = `
		INSERT INTO posts (id, creator_id, title, content, image_path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		post.ID,
		post.Creator,
		post.Title,
		post.Content,
		post.ImagePath,
		post.CreatedAt,
		post.UpdatedAt,
	)
	return err
}

func (r *PgPostRepository) GetByID(ctx context.Context, id string) (domain.Post, error) {
	const query = `
		SELECT id, creator_id, title, content, image_path, created_at, updated_at
		FROM posts
		WHERE id = $1
	`
	var p domain.Post
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Creator,
		&p.Title,
		&p.Content,
		&p.ImagePath,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return domain.Post{}, err
	}
	return p, nil
}

func (r *PgPostRepository) List(ctx context.Context, page Page) ([]domain.Post, error) {
	query := `
		SELECT id, creator_id, title, content, image_path, created_at, updated_at
		FROM posts
		ORDER BY seq
	`
	args := []any{}
	if page.Limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, page.Limit, page.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := make([]domain.Post, 0)
	for rows.Next() {
		var p domain.Post
		if err := rows.Scan(
			&p.ID,
			&p.Creator,
			&p.Title,
			&p.Content,
			&p.ImagePath,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return posts, nil
}

func (r *PgPostRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM posts`).Scan(&n)
	return n, err
}

func (r *PgPostRepository) UpdateOwned(ctx context.Context, post domain.Post) (string, error) {
	// El subselect bloquea la fila y conserva la ruta anterior de la imagen.
	const query = `
		UPDATE posts p
		SET title = $3,
			content = $4,
			image_path = COALESCE(NULLIF($5, ''), old.image_path),
			updated_at = $6
		FROM (
			SELECT id, image_path FROM posts
			WHERE id = $1 AND creator_id = $2
			FOR UPDATE
		) old
		WHERE p.id = old.id
		RETURNING old.image_path
	`
	var previous string
	err := r.pool.QueryRow(ctx, query,
		post.ID,
		post.Creator,
		post.Title,
		post.Content,
		post.ImagePath,
		post.UpdatedAt,
	).Scan(&previous)
	if err != nil {
		return "", err
	}
	return previous, nil
}

func (r *PgPostRepository) DeleteOwned(ctx context.Context, id, creatorID string) (string, error) {
	const query = `
		DELETE FROM posts
		WHERE id = $1 AND creator_id = $2
		RETURNING image_path
	`
	var imagePath string
	if err := r.pool.QueryRow(ctx, query, id, creatorID).Scan(&imagePath); err != nil {
		return "", err
	}
	return imagePath, nil
}

func (r *PgPostRepository) ImageInUse(ctx context.Context, imagePath string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM posts WHERE image_path = $1)`, imagePath).Scan(&exists)
	return exists, err
}

// MemoryPostRepository conserva el orden de inserción y serializa escrituras con un RWMutex.
type MemoryPostRepository struct {
	mu    sync.RWMutex
	order []string
	items map[string]domain.Post
}

func NewMemoryPostRepository() *MemoryPostRepository {
	return &MemoryPostRepository{items: make(map[string]domain.Post)}
}

func (r *MemoryPostRepository) Create(_ context.Context, post domain.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[post.ID] = post
	r.order = append(r.order, post.ID)
	return nil
}

func (r *MemoryPostRepository) GetByID(_ context.Context, id string) (domain.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	post, ok := r.items[id]
	if !ok {
		return domain.Post{}, pgx.ErrNoRows
	}
	return post, nil
}

func (r *MemoryPostRepository) List(_ context.Context, page Page) ([]domain.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	start, end := 0, len(r.order)
	if page.Limit > 0 {
		start = min(page.Offset, end)
		end = start + min(page.Limit, end-start)
	}
	posts := make([]domain.Post, 0, end-start)
	for _, id := range r.order[start:end] {
		posts = append(posts, r.items[id])
	}
	return posts, nil
}

func (r *MemoryPostRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order), nil
}

func (r *MemoryPostRepository) UpdateOwned(_ context.Context, post domain.Post) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.items[post.ID]
	if !ok || current.Creator != post.Creator {
		return "", pgx.ErrNoRows
	}
	previous := current.ImagePath
	current.Title = post.Title
	current.Content = post.Content
	if post.ImagePath != "" {
		current.ImagePath = post.ImagePath
	}
	current.UpdatedAt = post.UpdatedAt
	if current.UpdatedAt.IsZero() {
		current.UpdatedAt = time.Now().UTC()
	}
	r.items[post.ID] = current
	return previous, nil
}

func (r *MemoryPostRepository) DeleteOwned(_ context.Context, id, creatorID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.items[id]
	if !ok || current.Creator != creatorID {
		return "", pgx.ErrNoRows
	}
	delete(r.items, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return current.ImagePath, nil
}

func (r *MemoryPostRepository) ImageInUse(_ context.Context, imagePath string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, post := range r.items {
		if post.ImagePath == imagePath {
			return true, nil
		}
	}
	return false, nil
}
