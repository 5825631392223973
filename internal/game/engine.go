package game

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Filter selects which matches List returns.
type Filter string

const (
	FilterAll      Filter = ""
	FilterActive   Filter = "active"
	FilterFinished Filter = "finished"
)

// Stats is the dashboard summary.
type Stats struct {
	TotalMatches      int `json:"totalMatches"`
	ActiveMatches     int `json:"activeMatches"`
	FinishedMatches   int `json:"finishedMatches"`
	TotalParticipants int `json:"totalParticipants"`
}

// Engine owns the match lifecycle: create, shuffle, activate, finalize.
// It performs no notification I/O; dispatch happens separately once a match
// is active.
type Engine struct {
	matches  MatchStore
	registry *Registry
	locks    *MatchLocks

	shuffle Shuffler
	now     func() time.Time
}

type EngineOption func(*Engine)

// WithShuffler replaces the default uniform shuffle (tests use a seeded one).
func WithShuffler(s Shuffler) EngineOption {
	return func(e *Engine) { e.shuffle = s }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(matches MatchStore, registry *Registry, locks *MatchLocks, opts ...EngineOption) *Engine {
	e := &Engine{
		matches:  matches,
		registry: registry,
		locks:    locks,
		shuffle:  rand.Shuffle,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateMatch validates the request and stores a pending, unshuffled match.
func (e *Engine) CreateMatch(ctx context.Context, name string, participantIDs []string) (*Match, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationf("match name is required")
	}
	seen := make(map[string]struct{}, len(participantIDs))
	for _, id := range participantIDs {
		if _, dup := seen[id]; dup {
			return nil, validationf("participant %s is listed twice", id)
		}
		seen[id] = struct{}{}
	}
	if len(seen) < MinParticipants {
		return nil, validationf("a match needs at least %d participants", MinParticipants)
	}

	taken, err := e.matches.UnfinishedNameTaken(ctx, name)
	if err != nil {
		return nil, Unavailable("check match name", err)
	}
	if taken {
		return nil, validationf("an active match named %q already exists", name)
	}

	// Registry.Delete checks unfinished matches under the same lock, so no
	// participant can disappear between the lookup and the save.
	unlock := e.registry.lockWrites()
	defer unlock()

	ids := make([]string, 0, len(participantIDs))
	for _, id := range participantIDs {
		p, err := e.registry.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, p.ID)
	}

	m := &Match{
		ID:             uuid.NewString(),
		Name:           name,
		ParticipantIDs: ids,
		Status:         StatusPending,
		CreatedAt:      e.now().UTC(),
	}
	if err := e.matches.SaveMatch(ctx, m); err != nil {
		return nil, Unavailable("save match", err)
	}
	return m, nil
}

// ShuffleAndAssign permutes m in place with the engine's shuffler.
func (e *Engine) ShuffleAndAssign(m *Match) error {
	return ShuffleAndAssign(m, e.shuffle)
}

// Activate moves m from pending to active.
func (e *Engine) Activate(m *Match) error {
	return Activate(m)
}

// Start shuffles and activates a stored pending match, then saves it.
// Starting an already active match returns it unchanged.
func (e *Engine) Start(ctx context.Context, id string) (*Match, error) {
	unlock := e.locks.Lock(id)
	defer unlock()

	m, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Active() {
		return m, nil
	}
	if err := e.ShuffleAndAssign(m); err != nil {
		return nil, err
	}
	if err := e.Activate(m); err != nil {
		return nil, err
	}
	if err := e.matches.SaveMatch(ctx, m); err != nil {
		return nil, Unavailable("save match", err)
	}
	return m, nil
}

// Finalize records the winner and closes the match. It is the only path that
// changes a participant's win count.
func (e *Engine) Finalize(ctx context.Context, matchID, winnerID string) (*Match, error) {
	unlock := e.locks.Lock(matchID)
	defer unlock()

	m, err := e.load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	winner, err := e.registry.Get(ctx, winnerID)
	if err != nil {
		return nil, err
	}
	switch m.Status {
	case StatusFinished:
		return nil, statef("match %q is already finished", m.Name)
	case StatusPending:
		return nil, statef("match %q has not started yet", m.Name)
	}
	if !m.HasParticipant(winner.ID) {
		return nil, validationf("%s does not play in match %q", winner.Name, m.Name)
	}

	m.WinnerID = winner.ID
	m.Status = StatusFinished
	m.FinishedAt = e.now().UTC()
	if err := e.matches.FinalizeMatch(ctx, m); err != nil {
		return nil, Unavailable("finalize match", err)
	}
	return m, nil
}

func (e *Engine) Get(ctx context.Context, id string) (*Match, error) {
	return e.load(ctx, id)
}

func (e *Engine) List(ctx context.Context, f Filter) ([]*Match, error) {
	var (
		out []*Match
		err error
	)
	switch f {
	case FilterActive:
		out, err = e.matches.ListMatchesByStatus(ctx, StatusActive)
	case FilterFinished:
		out, err = e.matches.ListMatchesByStatus(ctx, StatusFinished)
	case FilterAll:
		out, err = e.matches.ListMatches(ctx)
	default:
		return nil, validationf("unknown match filter %q", f)
	}
	return out, Unavailable("list matches", err)
}

func (e *Engine) Delete(ctx context.Context, id string) error {
	unlock := e.locks.Lock(id)
	defer unlock()

	ok, err := e.matches.DeleteMatch(ctx, id)
	if err != nil {
		return Unavailable("delete match", err)
	}
	if !ok {
		return notFoundf("match %s not found", id)
	}
	return nil
}

func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	all, err := e.matches.ListMatches(ctx)
	if err != nil {
		return Stats{}, Unavailable("list matches", err)
	}
	people, err := e.registry.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{TotalMatches: len(all), TotalParticipants: len(people)}
	for _, m := range all {
		switch m.Status {
		case StatusActive:
			st.ActiveMatches++
		case StatusFinished:
			st.FinishedMatches++
		}
	}
	return st, nil
}

// Resolve returns the participants of m in match order.
func (e *Engine) Resolve(ctx context.Context, m *Match) ([]Participant, error) {
	out := make([]Participant, 0, len(m.ParticipantIDs))
	for _, id := range m.ParticipantIDs {
		p, err := e.registry.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (e *Engine) load(ctx context.Context, id string) (*Match, error) {
	m, ok, err := e.matches.FindMatch(ctx, id)
	if err != nil {
		return nil, Unavailable("find match", err)
	}
	if !ok {
		return nil, notFoundf("match %s not found", id)
	}
	return m, nil
}
