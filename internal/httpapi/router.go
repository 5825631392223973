// Package httpapi is the JSON surface over the game engine and dispatcher.
package httpapi

import (
	"log/slog"
	"net/http"

	"example.com/killerkiss/internal/auth"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

type RouterConfig struct {
	Game        *GameHandler
	Auth        *AuthHandler
	AuthService *auth.Service
	Live        http.Handler // websocket feed; optional
	CORSOrigins []string
	Log         *slog.Logger
}

// NewRouter mounts every route. Reads are public but hide emails from
// anonymous callers; anything that changes state needs an admin token.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	g := cfg.Game
	protect := AuthMiddleware(cfg.AuthService)
	admin := func(h http.HandlerFunc) http.Handler { return protect(h) }
	// public reads show contact details only to a logged-in admin
	viewer := OptionalAuth(cfg.AuthService)
	public := func(h http.HandlerFunc) http.Handler { return viewer(h) }

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	if cfg.Live != nil {
		r.Handle("/ws/events", cfg.Live).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(logRequests(log))

	api.HandleFunc("/auth/login", cfg.Auth.Login).Methods(http.MethodPost)
	api.Handle("/me", admin(cfg.Auth.Me)).Methods(http.MethodGet)

	// fixed paths go before {id} so they are not captured as ids
	api.Handle("/participants", public(g.ListParticipants)).Methods(http.MethodGet)
	api.Handle("/participants/ranking", public(g.Ranking)).Methods(http.MethodGet)
	api.Handle("/participants/{id}", public(g.GetParticipant)).Methods(http.MethodGet)
	api.Handle("/participants", admin(g.CreateParticipant)).Methods(http.MethodPost)
	api.Handle("/participants/{id}", admin(g.UpdateParticipant)).Methods(http.MethodPut)
	api.Handle("/participants/{id}", admin(g.DeleteParticipant)).Methods(http.MethodDelete)

	api.Handle("/matches", public(g.ListMatches)).Methods(http.MethodGet)
	api.HandleFunc("/matches/stats", g.Stats).Methods(http.MethodGet)
	api.Handle("/matches/{id}", public(g.GetMatch)).Methods(http.MethodGet)
	api.Handle("/matches", admin(g.CreateMatch)).Methods(http.MethodPost)
	api.Handle("/matches/{id}/start", admin(g.StartMatch)).Methods(http.MethodPost)
	api.Handle("/matches/{id}/finalize", admin(g.FinalizeMatch)).Methods(http.MethodPut)
	api.Handle("/matches/{id}", admin(g.DeleteMatch)).Methods(http.MethodDelete)
	api.Handle("/matches/{id}/dispatch", admin(g.Dispatch)).Methods(http.MethodPost)
	api.Handle("/matches/{id}/resend", admin(g.Resend)).Methods(http.MethodPost)

	api.HandleFunc("/quota", g.QuotaUsage).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(r)
}
