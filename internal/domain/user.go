package domain

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity es la identidad resuelta a partir de credenciales o de un token.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

func (u User) Identity() Identity {
	return Identity{UserID: u.ID, Email: u.Email}
}
