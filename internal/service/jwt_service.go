package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"posts-api/internal/domain"
)

// JWTService emite y valida tokens JWT firmados con HS256.
type JWTService struct {
	secret     []byte
	defaultTTL time.Duration
	issuer     string
	now        func() time.Time
}

// IssuedToken es el resultado de Issue.
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	ExpiresIn int64     `json:"expiresIn"`
}

type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

const tokenIssuer = "posts-api"

func NewJWTService(secret string, defaultTTL time.Duration) *JWTService {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &JWTService{
		secret:     []byte(secret),
		defaultTTL: defaultTTL,
		issuer:     tokenIssuer,
		now:        time.Now,
	}
}

// Issue firma un token para la identidad con expiración now+ttl.
// ttl <= 0 usa el TTL por defecto.
func (s *JWTService) Issue(identity domain.Identity, ttl time.Duration) (IssuedToken, error) {
	if len(s.secret) == 0 || strings.TrimSpace(identity.UserID) == "" {
		return IssuedToken{}, ErrTokenInvalid
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	// NumericDate trabaja en segundos; truncar mantiene exp == now+ttl.
	now := s.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(ttl)
	claims := Claims{
		UserID: identity.UserID,
		Email:  identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{
		Token:     signed,
		ExpiresAt: expiresAt,
		ExpiresIn: int64(ttl / time.Second),
	}, nil
}

// Validate verifica firma y expiración y devuelve la identidad embebida.
func (s *JWTService) Validate(tokenString string) (domain.Identity, error) {
	if len(s.secret) == 0 {
		return domain.Identity{}, ErrTokenInvalid
	}
	if strings.TrimSpace(tokenString) == "" {
		return domain.Identity{}, ErrTokenInvalid
	}
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return domain.Identity{}, err
	}
	if !s.isValidClaims(claims) {
		return domain.Identity{}, ErrTokenInvalid
	}
	return domain.Identity{UserID: claims.UserID, Email: claims.Email}, nil
}

func (s *JWTService) parseToken(tokenString string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}

func (s *JWTService) isValidClaims(claims Claims) bool {
	if strings.TrimSpace(claims.UserID) == "" {
		return false
	}
	if claims.Subject != claims.UserID {
		return false
	}
	return strings.TrimSpace(claims.Issuer) == s.issuer
}
