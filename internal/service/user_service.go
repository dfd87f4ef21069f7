package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"posts-api/internal/domain"
	"posts-api/internal/repository"
)

// UserService guarda credenciales y verifica intentos de login.
type UserService struct {
	logger    *zap.Logger
	users     repository.UserRepository
	cost      int
	dummyHash []byte
}

const maxPasswordBytes = 72

func NewUserService(logger *zap.Logger, users repository.UserRepository, cost int) *UserService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// Hash fijo para comparar cuando el email no existe y así igualar tiempos.
	dummy, _ := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cost)
	return &UserService{
		logger:    logger,
		users:     users,
		cost:      cost,
		dummyHash: dummy,
	}
}

// CreateUser registra un usuario nuevo. El password solo se persiste como hash bcrypt.
func (s *UserService) CreateUser(ctx context.Context, email, password string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("user service not configured")
	}

	email = normalizeEmail(email)
	if !isValidEmail(email) {
		return domain.User{}, fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if password == "" || len(password) > maxPasswordBytes {
		return domain.User{}, fmt.Errorf("%w: invalid password", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return domain.User{}, ErrDuplicateIdentity
		}
		return domain.User{}, err
	}

	s.logger.Info("user created", zap.String("user_id", user.ID))
	return user, nil
}

// VerifyCredentials devuelve ErrAuthFailed tanto si el email no existe como si
// el password no coincide.
func (s *UserService) VerifyCredentials(ctx context.Context, email, password string) (domain.Identity, error) {
	if s.users == nil {
		return domain.Identity{}, errors.New("user service not configured")
	}

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.Identity{}, ErrAuthFailed
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return domain.Identity{}, ErrAuthFailed
		}
		return domain.Identity{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.Identity{}, ErrAuthFailed
	}
	return user.Identity(), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isValidEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
