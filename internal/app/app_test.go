package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"example.com/killerkiss/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() config.Config {
	var c config.Config
	c.Env = "dev"
	c.Log.Format = "text"
	c.HTTP.Addr = ":0"
	c.HTTP.ShutdownTimeout = time.Second
	c.Storage.Backend = "memory"
	c.Quota.Backend = "memory"
	c.Quota.DailyLimit = 10
	c.Quota.Timezone = "UTC"
	c.Auth.Secret = "test"
	c.Auth.TokenTTL = time.Hour
	c.Auth.AdminEmail = "Root@Example.com"
	c.Auth.AdminPassword = "pw"
	c.Mail.From = "game@example.com"
	c.Mail.SendTimeout = time.Second
	c.Mail.Providers = []string{"sendgrid", "smtp", "ses"}
	c.Mail.LogOnly = true
	return c
}

func call(t *testing.T, srv *httptest.Server, method, path, token string, body any, out any) int {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(method, srv.URL+path, bytes.NewReader(b))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestNew_InMemoryStackDispatchesThroughLogProvider(t *testing.T) {
	cfg := memoryConfig()
	require.NoError(t, cfg.Validate())

	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer a.Close(context.Background())

	srv := httptest.NewServer(a.srv.Handler)
	defer srv.Close()

	var login struct {
		AccessToken string `json:"accessToken"`
	}
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/api/auth/login", "",
		map[string]string{"email": "root@example.com", "password": "pw"}, &login))
	tok := login.AccessToken

	var ids []string
	for _, n := range []string{"Ana", "Bea"} {
		var p struct {
			ID string `json:"id"`
		}
		require.Equal(t, http.StatusCreated, call(t, srv, http.MethodPost, "/api/participants", tok,
			map[string]string{"name": n, "email": n + "@example.com"}, &p))
		ids = append(ids, p.ID)
	}

	var m struct {
		ID string `json:"id"`
	}
	require.Equal(t, http.StatusCreated, call(t, srv, http.MethodPost, "/api/matches", tok,
		map[string]any{"name": "Boda", "participantIds": ids}, &m))

	var rep struct {
		Successes int `json:"successes"`
	}
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/api/matches/"+m.ID+"/dispatch?lang=en", tok, nil, &rep))
	assert.Equal(t, 2, rep.Successes)

	var u struct {
		Sent      int `json:"sent"`
		Remaining int `json:"remaining"`
	}
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/api/quota", "", nil, &u))
	assert.Equal(t, 2, u.Sent)
	assert.Equal(t, 8, u.Remaining)
}

func TestNewGateway_OrderAndSkips(t *testing.T) {
	cfg := memoryConfig().Mail
	cfg.LogOnly = false
	g, err := newGateway(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.False(t, g.Configured(), "no credentials anywhere")

	cfg.SendGridAPIKey = "sg"
	g, err = newGateway(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.True(t, g.Configured())

	cfg.Providers = []string{"carrier-pigeon"}
	_, err = newGateway(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
