package game

import (
	"context"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry owns participant records. It is the single source of truth for a
// participant's name, email and win count.
type Registry struct {
	// mu serializes writes so the email uniqueness check and the save are
	// one step within this process. Postgres backs it with a unique index.
	// It is always taken before a match lock, never while holding one.
	mu      sync.Mutex
	people  ParticipantStore
	matches MatchStore
	locks   *MatchLocks
	now     func() time.Time
}

// NewRegistry takes the match locks shared with the engine and dispatcher;
// email changes rewrite pending assignments under them.
func NewRegistry(people ParticipantStore, matches MatchStore, locks *MatchLocks) *Registry {
	return &Registry{people: people, matches: matches, locks: locks, now: time.Now}
}

// ValidEmail reports whether s is a bare, syntactically valid address.
func ValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (r *Registry) validate(name, email string) (string, string, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return "", "", validationf("participant name is required")
	}
	if email != "" && !ValidEmail(email) {
		return "", "", validationf("email %q is not a valid address", email)
	}
	return name, email, nil
}

func (r *Registry) emailTaken(ctx context.Context, email, exceptID string) error {
	if email == "" {
		return nil
	}
	other, ok, err := r.people.FindParticipantByEmail(ctx, email)
	if err != nil {
		return Unavailable("find participant by email", err)
	}
	if ok && other.ID != exceptID {
		return validationf("email %q is already registered", email)
	}
	return nil
}

// Create registers a participant with zero wins.
func (r *Registry) Create(ctx context.Context, name, email string) (Participant, error) {
	name, email, err := r.validate(name, email)
	if err != nil {
		return Participant{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.emailTaken(ctx, email, ""); err != nil {
		return Participant{}, err
	}
	p := Participant{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		CreatedAt: r.now().UTC(),
	}
	saved, err := r.people.SaveParticipant(ctx, p)
	if err != nil {
		return Participant{}, Unavailable("save participant", err)
	}
	return saved, nil
}

// Update edits name and email. Wins are never touched here. A changed email
// carries any undelivered assignment of an unfinished match along with it.
func (r *Registry) Update(ctx context.Context, id, name, email string) (Participant, error) {
	name, email, err := r.validate(name, email)
	if err != nil {
		return Participant{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.Get(ctx, id)
	if err != nil {
		return Participant{}, err
	}
	if err := r.emailTaken(ctx, email, id); err != nil {
		return Participant{}, err
	}
	old := p.Email
	p.Name = name
	p.Email = email
	saved, err := r.people.SaveParticipant(ctx, p)
	if err != nil {
		return Participant{}, Unavailable("save participant", err)
	}
	if old != "" && old != email {
		if err := r.movePending(ctx, id, old, email); err != nil {
			return Participant{}, err
		}
	}
	return saved, nil
}

func (r *Registry) Get(ctx context.Context, id string) (Participant, error) {
	p, ok, err := r.people.FindParticipant(ctx, id)
	if err != nil {
		return Participant{}, Unavailable("find participant", err)
	}
	if !ok {
		return Participant{}, notFoundf("participant %s not found", id)
	}
	return p, nil
}

func (r *Registry) List(ctx context.Context) ([]Participant, error) {
	out, err := r.people.ListParticipants(ctx)
	return out, Unavailable("list participants", err)
}

func (r *Registry) Ranking(ctx context.Context) ([]Participant, error) {
	out, err := r.people.Ranking(ctx)
	return out, Unavailable("participant ranking", err)
}

// Delete removes a participant. It is rejected while the participant plays in
// a pending or active match; finished matches lose the reference instead.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	live, err := r.matches.ListMatchesByStatus(ctx, StatusPending, StatusActive)
	if err != nil {
		return Unavailable("list unfinished matches", err)
	}
	for _, m := range live {
		if m.HasParticipant(id) {
			return statef("participant plays in unfinished match %q; finish or delete it first", m.Name)
		}
	}
	return Unavailable("delete participant", r.people.DetachParticipant(ctx, id))
}

// lockWrites holds the registry write lock for callers outside it.
func (r *Registry) lockWrites() func() {
	r.mu.Lock()
	return r.mu.Unlock
}

// movePending follows an email change into every unfinished match of id, so
// undelivered assignments stay keyed by a current participant address.
func (r *Registry) movePending(ctx context.Context, id, old, email string) error {
	live, err := r.matches.ListMatchesByStatus(ctx, StatusPending, StatusActive)
	if err != nil {
		return Unavailable("list unfinished matches", err)
	}
	for _, m := range live {
		if !m.HasParticipant(id) {
			continue
		}
		if err := r.rekey(ctx, m.ID, old, email); err != nil {
			return err
		}
	}
	return nil
}

// rekey reloads the match under its lock; a dispatch in flight may have
// written to Pending since the listing.
func (r *Registry) rekey(ctx context.Context, matchID, old, email string) error {
	unlock := r.locks.Lock(matchID)
	defer unlock()

	m, ok, err := r.matches.FindMatch(ctx, matchID)
	if err != nil {
		return Unavailable("find match", err)
	}
	if !ok || !m.MovePending(old, email) {
		return nil
	}
	return Unavailable("save match", r.matches.SaveMatch(ctx, m))
}
