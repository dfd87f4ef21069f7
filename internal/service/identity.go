package service

import (
	"context"

	"posts-api/internal/domain"
)

type identityKey struct{}

// WithIdentity adjunta la identidad autenticada al contexto de la petición.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom recupera la identidad adjuntada por WithIdentity.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domain.Identity)
	return id, ok && id.UserID != ""
}
