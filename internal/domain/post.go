package domain

import "time"

// Post es el recurso de contenido; Creator referencia a User.ID sin duplicarlo.
type Post struct {
	ID        string    `json:"id"`
	Creator   string    `json:"creator"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ImagePath string    `json:"imagePath"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
