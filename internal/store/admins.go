package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/killerkiss/internal/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrAdminNotFound = errors.New("admin not found")
	ErrEmailTaken    = errors.New("email already registered")
)

// Admin is an operator allowed to run mutating routes.
type Admin struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	CreatedAt    time.Time
}

type AdminStore struct {
	db *pgxpool.Pool
}

func NewAdminStore(db *pgxpool.Pool) *AdminStore {
	return &AdminStore{db: db}
}

func (s *AdminStore) Create(ctx context.Context, a Admin) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO admin_users (id, email, password_hash, display_name)
		 VALUES ($1, $2, $3, $4)`,
		a.ID, a.Email, a.PasswordHash, a.DisplayName,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	return nil
}

func (s *AdminStore) GetByEmail(ctx context.Context, email string) (Admin, error) {
	return s.get(ctx, `WHERE email = $1`, email)
}

func (s *AdminStore) GetByID(ctx context.Context, id string) (Admin, error) {
	return s.get(ctx, `WHERE id = $1`, id)
}

func (s *AdminStore) get(ctx context.Context, where string, arg string) (Admin, error) {
	var a Admin
	err := s.db.QueryRow(ctx,
		`SELECT id, email, password_hash, display_name, created_at
		 FROM admin_users `+where,
		arg,
	).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Admin{}, ErrAdminNotFound
	}
	if err != nil {
		return Admin{}, fmt.Errorf("get admin: %w", err)
	}
	return a, nil
}

// AdminByEmail adapts the store to auth.AdminLookup.
func (s *AdminStore) AdminByEmail(ctx context.Context, email string) (auth.Admin, bool, error) {
	a, err := s.GetByEmail(ctx, email)
	if errors.Is(err, ErrAdminNotFound) {
		return auth.Admin{}, false, nil
	}
	if err != nil {
		return auth.Admin{}, false, err
	}
	return auth.Admin{ID: a.ID, Email: a.Email, Name: a.DisplayName, PasswordHash: a.PasswordHash}, true, nil
}
