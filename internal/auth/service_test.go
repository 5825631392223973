package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type admins map[string]Admin

func (m admins) AdminByEmail(_ context.Context, email string) (Admin, bool, error) {
	a, ok := m[email]
	return a, ok, nil
}

func TestService_Login(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	svc := NewService([]byte("k"), time.Hour, admins{
		"root@example.com": {ID: "a1", Email: "root@example.com", Name: "Root", PasswordHash: hash},
	})
	ctx := context.Background()

	token, a, err := svc.Login(ctx, " Root@Example.com ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "a1", a.ID)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "a1", claims.AdminID)
	assert.Equal(t, "Root", claims.Name)

	cases := []struct{ name, email, password string }{
		{"wrong password", "root@example.com", "nope"},
		{"unknown email", "who@example.com", "s3cret"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Login(ctx, tc.email, tc.password)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestVerify_Rejects(t *testing.T) {
	expired, err := Sign([]byte("k"), "a1", "", -time.Minute)
	require.NoError(t, err)
	_, err = Verify([]byte("k"), expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	other, err := Sign([]byte("other"), "a1", "", time.Hour)
	require.NoError(t, err)
	_, err = Verify([]byte("k"), other)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}
