package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/genstudio/backend/internal/apperr"
)

var ErrUserNotFound = fmt.Errorf("%w: user", apperr.ErrNotFound)

type UserStore interface {
	Create(ctx context.Context, u *User, passwordHash string) error
	// GetByEmail returns the user and password hash, or ErrUserNotFound.
	GetByEmail(ctx context.Context, email string) (*User, string, error)
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, u *User, passwordHash string) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, name, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, u.ID, u.Email, u.Name, passwordHash).Scan(&u.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("%w: insert user: %w", apperr.ErrPersistence, err)
	}
	return nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, string, error) {
	var u User
	var hash string
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, created_at FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.Name, &hash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", ErrUserNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: get user: %w", apperr.ErrPersistence, err)
	}
	return &u, hash, nil
}

type memUser struct {
	user User
	hash string
}

type MemoryStore struct {
	mu      sync.RWMutex
	byEmail map[string]memUser
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byEmail: make(map[string]memUser)}
}

func (s *MemoryStore) Create(_ context.Context, u *User, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return ErrDuplicateEmail
	}
	u.CreatedAt = time.Now()
	s.byEmail[u.Email] = memUser{user: *u, hash: passwordHash}
	return nil
}

func (s *MemoryStore) GetByEmail(_ context.Context, email string) (*User, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byEmail[email]
	if !ok {
		return nil, "", ErrUserNotFound
	}
	u := m.user
	return &u, m.hash, nil
}

var (
	_ UserStore = (*Repository)(nil)
	_ UserStore = (*MemoryStore)(nil)
)
