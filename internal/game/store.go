package game

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ParticipantStore is the persistence contract for participants.
type ParticipantStore interface {
	// SaveParticipant inserts p or updates name and email of an existing row.
	// The stored win count is kept; only MatchStore.FinalizeMatch changes it.
	SaveParticipant(ctx context.Context, p Participant) (Participant, error)
	FindParticipant(ctx context.Context, id string) (Participant, bool, error)
	FindParticipantByEmail(ctx context.Context, email string) (Participant, bool, error)
	ListParticipants(ctx context.Context) ([]Participant, error)
	// Ranking returns every participant ordered by wins, highest first.
	Ranking(ctx context.Context) ([]Participant, error)
	// DetachParticipant removes id from every match participant list and
	// clears it as winner, then deletes the participant.
	DetachParticipant(ctx context.Context, id string) error
}

// MatchStore is the persistence contract for matches.
type MatchStore interface {
	SaveMatch(ctx context.Context, m *Match) error
	// FinalizeMatch saves m and adds one win to m.WinnerID as a single unit.
	// Neither write is visible if either fails.
	FinalizeMatch(ctx context.Context, m *Match) error
	FindMatch(ctx context.Context, id string) (*Match, bool, error)
	ListMatches(ctx context.Context) ([]*Match, error)
	ListMatchesByStatus(ctx context.Context, statuses ...Status) ([]*Match, error)
	// UnfinishedNameTaken reports whether a pending or active match uses name.
	UnfinishedNameTaken(ctx context.Context, name string) (bool, error)
	DeleteMatch(ctx context.Context, id string) (bool, error)
}

// MemoryStore keeps participants and matches in process. It backs tests and
// local runs without Postgres.
type MemoryStore struct {
	mu           sync.Mutex
	participants map[string]Participant
	matches      map[string]*Match
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		participants: make(map[string]Participant),
		matches:      make(map[string]*Match),
	}
}

func (s *MemoryStore) SaveParticipant(_ context.Context, p Participant) (Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.participants[p.ID]; ok {
		p.Wins = cur.Wins
	}
	s.participants[p.ID] = p
	return p, nil
}

func (s *MemoryStore) FindParticipant(_ context.Context, id string) (Participant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	return p, ok, nil
}

func (s *MemoryStore) FindParticipantByEmail(_ context.Context, email string) (Participant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if strings.EqualFold(p.Email, email) {
			return p, true, nil
		}
	}
	return Participant{}, false, nil
}

func (s *MemoryStore) ListParticipants(_ context.Context) ([]Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Participant) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (s *MemoryStore) Ranking(ctx context.Context) ([]Participant, error) {
	out, _ := s.ListParticipants(ctx)
	slices.SortStableFunc(out, func(a, b Participant) int {
		return cmp.Compare(b.Wins, a.Wins)
	})
	return out, nil
}

func (s *MemoryStore) DetachParticipant(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.matches {
		m.ParticipantIDs = slices.DeleteFunc(m.ParticipantIDs, func(pid string) bool { return pid == id })
		if m.WinnerID == id {
			m.WinnerID = ""
		}
	}
	delete(s.participants, id)
	return nil
}

func (s *MemoryStore) SaveMatch(_ context.Context, m *Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.ID] = m.Clone()
	return nil
}

func (s *MemoryStore) FinalizeMatch(_ context.Context, m *Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[m.WinnerID]
	if !ok {
		return fmt.Errorf("winner %s not found", m.WinnerID)
	}
	p.Wins++
	s.participants[p.ID] = p
	s.matches[m.ID] = m.Clone()
	return nil
}

func (s *MemoryStore) FindMatch(_ context.Context, id string) (*Match, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, false, nil
	}
	return m.Clone(), true, nil
}

func (s *MemoryStore) ListMatches(ctx context.Context) ([]*Match, error) {
	return s.ListMatchesByStatus(ctx)
}

// ListMatchesByStatus returns matches in any of statuses, newest first. No
// statuses means all matches.
func (s *MemoryStore) ListMatchesByStatus(_ context.Context, statuses ...Status) ([]*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Match, 0, len(s.matches))
	for _, m := range s.matches {
		if len(statuses) > 0 && !slices.Contains(statuses, m.Status) {
			continue
		}
		out = append(out, m.Clone())
	}
	slices.SortFunc(out, func(a, b *Match) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (s *MemoryStore) UnfinishedNameTaken(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.matches {
		if m.Status != StatusFinished && m.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) DeleteMatch(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[id]; !ok {
		return false, nil
	}
	delete(s.matches, id)
	return true, nil
}
