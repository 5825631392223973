package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"example.com/killerkiss/db"
	"example.com/killerkiss/internal/auth"
	"example.com/killerkiss/internal/config"
	"example.com/killerkiss/internal/dispatch"
	"example.com/killerkiss/internal/events"
	"example.com/killerkiss/internal/game"
	"example.com/killerkiss/internal/httpapi"
	"example.com/killerkiss/internal/migrate"
	"example.com/killerkiss/internal/quota"
	"example.com/killerkiss/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	db  *pgxpool.Pool
	rdb *redis.Client
	hub *events.Hub

	srv *http.Server
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{cfg: cfg, log: log}

	// Quick connectivity checks (fail fast).
	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// --- Storage ---
	var (
		people  game.ParticipantStore
		matches game.MatchStore
		admins  auth.AdminLookup
	)
	switch cfg.Storage.Backend {
	case "postgres":
		if cfg.Postgres.RunMigrations {
			var fsys fs.FS = db.Migrations
			dir := "migrations"
			if cfg.Postgres.MigrationsDir != "" {
				fsys, dir = nil, cfg.Postgres.MigrationsDir
			}
			if err := migrate.Up(cfg.Postgres.URL, fsys, dir, log); err != nil {
				return nil, err
			}
		}
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("pgxpool: %w", err)
		}
		a.db = pool
		if err := pool.Ping(pingCtx); err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
		pg := store.NewPostgres(pool)
		people, matches = pg, pg

		adminStore := store.NewAdminStore(pool)
		if err := seedAdmin(ctx, adminStore, cfg.Auth, log); err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
		admins = adminStore
	default:
		mem := game.NewMemoryStore()
		people, matches = mem, mem
		memAdmins := auth.MemoryAdmins{}
		if cfg.Auth.AdminEmail != "" {
			hash, err := auth.HashPassword(cfg.Auth.AdminPassword)
			if err != nil {
				return nil, fmt.Errorf("hash admin password: %w", err)
			}
			email := strings.ToLower(cfg.Auth.AdminEmail)
			memAdmins[email] = auth.Admin{ID: uuid.NewString(), Email: email, Name: "admin", PasswordHash: hash}
		}
		admins = memAdmins
		log.Warn("using in-memory storage; data is lost on restart")
	}

	// --- Quota ---
	loc, err := cfg.Location()
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	var counter quota.Counter
	switch cfg.Quota.Backend {
	case "redis":
		a.rdb = redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
		})
		if err := a.rdb.Ping(pingCtx).Err(); err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("redis ping (%s db=%d): %w", cfg.Redis.Addr, cfg.Redis.DB, err)
		}
		counter = quota.NewRedis(a.rdb, cfg.Quota.KeyPrefix, cfg.Quota.DailyLimit, loc)
	default:
		counter = quota.NewMemory(cfg.Quota.DailyLimit, quota.WithLocation(loc))
	}

	// --- Mail ---
	gateway, err := newGateway(ctx, cfg.Mail, log)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	// --- Game ---
	locks := game.NewMatchLocks()
	registry := game.NewRegistry(people, matches, locks)
	engine := game.NewEngine(matches, registry, locks)
	dispatcher := dispatch.New(matches, engine, counter, gateway, locks, log)

	// --- HTTP ---
	authSvc := auth.NewService([]byte(cfg.Auth.Secret), cfg.Auth.TokenTTL, admins)
	a.hub = events.NewHub(log, nil)

	handler := httpapi.NewRouter(httpapi.RouterConfig{
		Game: &httpapi.GameHandler{
			Registry:   registry,
			Engine:     engine,
			Dispatcher: dispatcher,
			Quota:      counter,
			Events:     a.hub,
			Log:        log,
		},
		Auth:        &httpapi.AuthHandler{Auth: authSvc, Log: log},
		AuthService: authSvc,
		Live:        a.hub,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Log:         log,
	})

	a.srv = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
	return a, nil
}

// seedAdmin creates the configured admin unless the email already exists.
func seedAdmin(ctx context.Context, admins *store.AdminStore, cfg config.Auth, log *slog.Logger) error {
	if cfg.AdminEmail == "" {
		return nil
	}
	email := strings.ToLower(cfg.AdminEmail)
	_, err := admins.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrAdminNotFound) {
		return fmt.Errorf("seed admin: %w", err)
	}
	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("seed admin: hash: %w", err)
	}
	err = admins.Create(ctx, store.Admin{ID: uuid.NewString(), Email: email, PasswordHash: hash, DisplayName: "admin"})
	if err != nil && !errors.Is(err, store.ErrEmailTaken) {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.Info("admin account seeded", "email", email)
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr)

	g.Go(func() error {
		err := a.srv.ListenAndServe()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		a.log.Info("http server shutting down")
		a.hub.Close()
		_ = a.srv.Shutdown(shutdownCtx)
		return nil
	})

	err := g.Wait()
	_ = a.Close(context.Background())
	return err
}

func (a *App) Close(ctx context.Context) error {
	// best-effort
	if a.db != nil {
		a.db.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	return nil
}

// NewLogger returns the slog logger selected by LOG_FORMAT.
func NewLogger(format string) *slog.Logger {
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
