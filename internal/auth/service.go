// Package auth gates the mutating admin routes: bcrypt password check on
// login, HS256 bearer tokens afterwards.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// Admin is what the service needs to know about an operator account.
type Admin struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
}

// AdminLookup finds an admin by email. ok is false when none exists.
type AdminLookup interface {
	AdminByEmail(ctx context.Context, email string) (a Admin, ok bool, err error)
}

type Service struct {
	secret []byte
	ttl    time.Duration
	admins AdminLookup
}

func NewService(secret []byte, ttl time.Duration, admins AdminLookup) *Service {
	return &Service{secret: secret, ttl: ttl, admins: admins}
}

// Login checks the password and returns a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (string, Admin, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", Admin{}, ErrInvalidCredentials
	}
	a, ok, err := s.admins.AdminByEmail(ctx, email)
	if err != nil {
		return "", Admin{}, fmt.Errorf("lookup admin: %w", err)
	}
	if !ok {
		return "", Admin{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return "", Admin{}, ErrInvalidCredentials
	}
	token, err := Sign(s.secret, a.ID, a.Name, s.ttl)
	if err != nil {
		return "", Admin{}, fmt.Errorf("sign token: %w", err)
	}
	return token, a, nil
}

func (s *Service) Verify(token string) (*Claims, error) {
	return Verify(s.secret, token)
}

// HashPassword is used when seeding admins.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// MemoryAdmins is an AdminLookup for runs without Postgres.
type MemoryAdmins map[string]Admin

func (m MemoryAdmins) AdminByEmail(_ context.Context, email string) (Admin, bool, error) {
	a, ok := m[strings.ToLower(email)]
	return a, ok, nil
}
