package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	keyToken     = "token"
	keyExpiresAt = "expiration"
	keyUserID    = "userId"
)

var (
	// ErrNoSession indica que no hay sesión guardada, o que está incompleta.
	ErrNoSession = errors.New("no stored session")
	// ErrCorruptSession indica que la expiración guardada no se puede interpretar.
	ErrCorruptSession = errors.New("corrupt stored session")
)

// StoredSession es la sesión tal como se guarda en el almacenamiento del cliente.
type StoredSession struct {
	Token     string
	ExpiresAt time.Time
	UserID    string
}

// Storage guarda las tres entradas de la sesión juntas: o están todas o ninguna.
type Storage interface {
	Load(ctx context.Context) (StoredSession, error)
	Save(ctx context.Context, s StoredSession) error
	Clear(ctx context.Context) error
}

func encodeSession(s StoredSession) map[string]string {
	return map[string]string{
		keyToken:     s.Token,
		keyExpiresAt: s.ExpiresAt.UTC().Format(time.RFC3339),
		keyUserID:    s.UserID,
	}
}

func decodeSession(values map[string]string) (StoredSession, error) {
	token, userID, exp := values[keyToken], values[keyUserID], values[keyExpiresAt]
	if token == "" || userID == "" || exp == "" {
		return StoredSession{}, ErrNoSession
	}
	expiresAt, err := time.Parse(time.RFC3339, exp)
	if err != nil {
		return StoredSession{}, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	return StoredSession{Token: token, ExpiresAt: expiresAt, UserID: userID}, nil
}

func validSession(s StoredSession) error {
	if strings.TrimSpace(s.Token) == "" || strings.TrimSpace(s.UserID) == "" || s.ExpiresAt.IsZero() {
		return errors.New("session requires token, expiration and user id")
	}
	return nil
}

// MemoryStorage mantiene la sesión en memoria; útil para tests y procesos efímeros.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Load(_ context.Context) (StoredSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return decodeSession(m.values)
}

func (m *MemoryStorage) Save(_ context.Context, s StoredSession) error {
	if err := validSession(s); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = encodeSession(s)
	return nil
}

func (m *MemoryStorage) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]string)
	return nil
}

// SQLiteStorage guarda la sesión en una tabla clave/valor de SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// OpenSQLiteStorage abre (o crea) el archivo de sesión en path.
func OpenSQLiteStorage(ctx context.Context, path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	s := NewSQLiteStorage(db)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func NewSQLiteStorage(db *sql.DB) *SQLiteStorage {
	return &SQLiteStorage{db: db}
}

func (s *SQLiteStorage) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create metadata table: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) Load(ctx context.Context) (StoredSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM metadata WHERE key IN (?, ?, ?)`,
		keyToken, keyExpiresAt, keyUserID)
	if err != nil {
		return StoredSession{}, fmt.Errorf("failed to load session: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string, 3)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return StoredSession{}, fmt.Errorf("failed to scan session row: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return StoredSession{}, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return decodeSession(values)
}

func (s *SQLiteStorage) Save(ctx context.Context, sess StoredSession) error {
	if err := validSession(sess); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin session tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for key, value := range encodeSession(sess) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO metadata (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value)
		if err != nil {
			return fmt.Errorf("failed to set session[%s]: %w", key, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStorage) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM metadata WHERE key IN (?, ?, ?)`,
		keyToken, keyExpiresAt, keyUserID)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
