package game

import (
	"slices"
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// MinParticipants is the smallest match that can form a target cycle.
const MinParticipants = 2

// Participant is one registered player. The registry owns it; matches only
// hold its ID.
type Participant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Wins      int       `json:"wins"`
	CreatedAt time.Time `json:"createdAt"`
}

// Match is one round of the game.
//
// ParticipantIDs is ordered: after ShuffleAndAssign the participant at i
// targets the one at (i+1) mod n. Pending maps a participant email to the
// target name that still has to reach them.
type Match struct {
	ID             string
	Name           string
	ParticipantIDs []string
	Status         Status
	WinnerID       string
	CreatedAt      time.Time
	FinishedAt     time.Time
	Pending        map[string]string
}

func (m *Match) Active() bool   { return m.Status == StatusActive }
func (m *Match) Finished() bool { return m.Status == StatusFinished }

func (m *Match) HasParticipant(id string) bool {
	return slices.Contains(m.ParticipantIDs, id)
}

// Targets returns hunter ID -> target ID for the current order. It is empty
// for matches below MinParticipants.
func (m *Match) Targets() map[string]string {
	n := len(m.ParticipantIDs)
	out := make(map[string]string, n)
	if n < MinParticipants {
		return out
	}
	for i, id := range m.ParticipantIDs {
		out[id] = m.ParticipantIDs[(i+1)%n]
	}
	return out
}

// TargetAt returns the index of the participant targeted by position i.
func (m *Match) TargetAt(i int) int {
	return (i + 1) % len(m.ParticipantIDs)
}

// SetPending records that email still has to learn its target.
func (m *Match) SetPending(email, targetName string) {
	if m.Pending == nil {
		m.Pending = make(map[string]string)
	}
	m.Pending[email] = targetName
}

// ClearPending drops the entry for email. It reports whether one existed.
func (m *Match) ClearPending(email string) bool {
	if _, ok := m.Pending[email]; !ok {
		return false
	}
	delete(m.Pending, email)
	return true
}

// MovePending rekeys the entry for old to email. An empty email drops the
// entry. It reports whether m changed.
func (m *Match) MovePending(old, email string) bool {
	target, ok := m.Pending[old]
	if !ok || old == email {
		return false
	}
	delete(m.Pending, old)
	if email != "" {
		m.Pending[email] = target
	}
	return true
}

// Clone returns a deep copy so stores never share slices or maps with callers.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	c.ParticipantIDs = slices.Clone(m.ParticipantIDs)
	if m.Pending != nil {
		c.Pending = make(map[string]string, len(m.Pending))
		for k, v := range m.Pending {
			c.Pending[k] = v
		}
	}
	return &c
}

// Shuffler permutes n elements through swap. rand.Shuffle from math/rand/v2
// satisfies it.
type Shuffler func(n int, swap func(i, j int))

// ShuffleAndAssign permutes the participant order. The target cycle follows
// from the new order; nothing else is randomized. Only pending matches can be
// reshuffled, since an active match may already have revealed its targets.
func ShuffleAndAssign(m *Match, shuffle Shuffler) error {
	if m.Status != StatusPending {
		return statef("match %q is %s; only pending matches can be shuffled", m.Name, m.Status)
	}
	ids := m.ParticipantIDs
	shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return nil
}

// Activate moves a pending match to active. Activating an active match is a
// no-op.
func Activate(m *Match) error {
	switch m.Status {
	case StatusActive:
		return nil
	case StatusFinished:
		return statef("match %q is finished and cannot be re-activated", m.Name)
	}
	if len(m.ParticipantIDs) < MinParticipants {
		return validationf("match needs at least %d participants to start", MinParticipants)
	}
	m.Status = StatusActive
	return nil
}
