package service

import "errors"

// Errores de dominio. La capa HTTP los traduce a códigos y mensajes genéricos.
var (
	ErrValidation           = errors.New("validation error")
	ErrDuplicateIdentity    = errors.New("identity already registered")
	ErrAuthFailed           = errors.New("auth failed")
	ErrTokenInvalid         = errors.New("token invalid")
	ErrTokenExpired         = errors.New("token expired")
	ErrNotAuthorized        = errors.New("not authorized")
	ErrNotFound             = errors.New("not found")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
)
