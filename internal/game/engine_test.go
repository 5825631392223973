package game

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *MemoryStore
	registry *Registry
	engine   *Engine
}

func newFixture(t *testing.T, opts ...EngineOption) *fixture {
	t.Helper()
	store := NewMemoryStore()
	locks := NewMatchLocks()
	reg := NewRegistry(store, store, locks)
	eng := NewEngine(store, reg, locks, opts...)
	return &fixture{store: store, registry: reg, engine: eng}
}

func (f *fixture) people(t *testing.T, names ...string) []Participant {
	t.Helper()
	out := make([]Participant, 0, len(names))
	for _, n := range names {
		p, err := f.registry.Create(context.Background(), n, strings.ToLower(n)+"@example.com")
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

// win plays and finalizes a match named name that winner wins.
func (f *fixture) win(t *testing.T, name string, winner Participant, players []Participant) {
	t.Helper()
	ctx := context.Background()
	m, err := f.engine.CreateMatch(ctx, name, ids(players))
	require.NoError(t, err)
	_, err = f.engine.Start(ctx, m.ID)
	require.NoError(t, err)
	_, err = f.engine.Finalize(ctx, m.ID, winner.ID)
	require.NoError(t, err)
}

func ids(ps []Participant) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

// rotate moves [A,B,C] to [B,C,A].
func rotate(_ int, swap func(i, j int)) {
	swap(0, 1)
	swap(1, 2)
}

func TestCreateMatch_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ps := f.people(t, "Alice", "Bob")

	_, err := f.engine.CreateMatch(ctx, "taken", ids(ps))
	require.NoError(t, err)

	cases := []struct {
		name string
		in   string
		ids  []string
		kind Kind
	}{
		{name: "blank name", in: "   ", ids: ids(ps), kind: KindValidation},
		{name: "one participant", in: "solo", ids: ids(ps)[:1], kind: KindValidation},
		{name: "duplicate ids", in: "dup", ids: []string{ps[0].ID, ps[0].ID}, kind: KindValidation},
		{name: "unknown id", in: "ghost", ids: []string{ps[0].ID, "nope"}, kind: KindNotFound},
		{name: "active name reused", in: "taken", ids: ids(ps), kind: KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.CreateMatch(ctx, tc.in, tc.ids)
			require.Error(t, err)
			assert.Equal(t, tc.kind, KindOf(err))
		})
	}
}

func TestCreateMatch_PendingAndUnshuffled(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return now }))
	ps := f.people(t, "A", "B", "C")

	m, err := f.engine.CreateMatch(ctx, "friday", ids(ps))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, m.Status)
	assert.Equal(t, ids(ps), m.ParticipantIDs)
	assert.Equal(t, now, m.CreatedAt)
	assert.True(t, m.FinishedAt.IsZero())

	stored, err := f.engine.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ParticipantIDs, stored.ParticipantIDs)
}

func TestFinishedNameCanBeReused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ps := f.people(t, "A", "B")

	m, err := f.engine.CreateMatch(ctx, "weekly", ids(ps))
	require.NoError(t, err)
	_, err = f.engine.Start(ctx, m.ID)
	require.NoError(t, err)
	_, err = f.engine.Finalize(ctx, m.ID, ps[0].ID)
	require.NoError(t, err)

	_, err = f.engine.CreateMatch(ctx, "weekly", ids(ps))
	require.NoError(t, err)
}

func TestTargetCycle_SingleCycle(t *testing.T) {
	for n := 2; n <= 8; n++ {
		m := &Match{Status: StatusPending}
		for i := range n {
			m.ParticipantIDs = append(m.ParticipantIDs, string(rune('a'+i)))
		}
		require.NoError(t, ShuffleAndAssign(m, rand.Shuffle))

		targets := m.Targets()
		require.Len(t, targets, n)

		start := m.ParticipantIDs[0]
		seen := map[string]bool{}
		cur := start
		for range n {
			require.False(t, seen[cur], "n=%d revisits %s", n, cur)
			seen[cur] = true
			next := targets[cur]
			require.NotEqual(t, cur, next, "n=%d self target", n)
			cur = next
		}
		assert.Equal(t, start, cur, "n=%d cycle does not close", n)
		assert.Len(t, seen, n)
	}
}

func TestTargetCycle_TwoPlayersTargetEachOther(t *testing.T) {
	m := &Match{ParticipantIDs: []string{"a", "b"}}
	assert.Equal(t, map[string]string{"a": "b", "b": "a"}, m.Targets())
}

func TestShuffle_Uniform(t *testing.T) {
	const (
		n      = 4
		trials = 10000
	)
	r := rand.New(rand.NewPCG(42, 1337))

	var position [n][n]int
	perms := map[string]int{}
	for range trials {
		m := &Match{Status: StatusPending, ParticipantIDs: []string{"a", "b", "c", "d"}}
		require.NoError(t, ShuffleAndAssign(m, r.Shuffle))
		for pos, id := range m.ParticipantIDs {
			position[id[0]-'a'][pos]++
		}
		perms[strings.Join(m.ParticipantIDs, "")]++
	}

	// expected 2500 per cell, sd ~43
	for id := range n {
		for pos := range n {
			assert.InDelta(t, trials/n, position[id][pos], 250, "participant %d at %d", id, pos)
		}
	}
	// 24 permutations, expected ~417 each, sd ~20
	require.Len(t, perms, 24)
	for p, c := range perms {
		assert.InDelta(t, trials/24, c, 120, "permutation %s", p)
	}
}

func TestShuffle_OnlyWhilePending(t *testing.T) {
	m := &Match{Status: StatusActive, ParticipantIDs: []string{"a", "b"}}
	err := ShuffleAndAssign(m, rand.Shuffle)
	assert.ErrorIs(t, err, ErrState)
}

func TestActivate(t *testing.T) {
	cases := []struct {
		name   string
		match  Match
		kind   Kind
		status Status
	}{
		{name: "pending to active", match: Match{Status: StatusPending, ParticipantIDs: []string{"a", "b"}}, status: StatusActive},
		{name: "active is a no-op", match: Match{Status: StatusActive, ParticipantIDs: []string{"a", "b"}}, status: StatusActive},
		{name: "finished is terminal", match: Match{Status: StatusFinished, ParticipantIDs: []string{"a", "b"}}, kind: KindState, status: StatusFinished},
		{name: "too few participants", match: Match{Status: StatusPending, ParticipantIDs: []string{"a"}}, kind: KindValidation, status: StatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := tc.match
			err := Activate(&m)
			if tc.kind == "" {
				require.NoError(t, err)
			} else {
				assert.Equal(t, tc.kind, KindOf(err))
			}
			assert.Equal(t, tc.status, m.Status)
		})
	}
}

func TestRoundTrip_RotateAndFinalize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithShuffler(rotate))
	ps := f.people(t, "A", "B", "C")
	a, b, c := ps[0], ps[1], ps[2]

	m, err := f.engine.CreateMatch(ctx, "round", ids(ps))
	require.NoError(t, err)

	m, err = f.engine.Start(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, []string{b.ID, c.ID, a.ID}, m.ParticipantIDs)
	assert.Equal(t, map[string]string{b.ID: c.ID, c.ID: a.ID, a.ID: b.ID}, m.Targets())
	assert.True(t, m.Active())

	m, err = f.engine.Finalize(ctx, m.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, m.Active())
	assert.Equal(t, b.ID, m.WinnerID)
	assert.False(t, m.FinishedAt.IsZero())

	got, err := f.registry.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Wins)
}

func TestFinalize_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ps := f.people(t, "A", "B", "Outsider")

	pending, err := f.engine.CreateMatch(ctx, "pending", ids(ps[:2]))
	require.NoError(t, err)
	active, err := f.engine.CreateMatch(ctx, "active", ids(ps[:2]))
	require.NoError(t, err)
	_, err = f.engine.Start(ctx, active.ID)
	require.NoError(t, err)

	cases := []struct {
		name    string
		matchID string
		winner  string
		want    error
	}{
		{name: "unknown match", matchID: "missing", winner: ps[0].ID, want: ErrNotFound},
		{name: "unknown winner", matchID: active.ID, winner: "missing", want: ErrNotFound},
		{name: "not started", matchID: pending.ID, winner: ps[0].ID, want: ErrState},
		{name: "winner not playing", matchID: active.ID, winner: ps[2].ID, want: ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Finalize(ctx, tc.matchID, tc.winner)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFinalize_TwiceCountsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ps := f.people(t, "A", "B")

	m, err := f.engine.CreateMatch(ctx, "once", ids(ps))
	require.NoError(t, err)
	_, err = f.engine.Start(ctx, m.ID)
	require.NoError(t, err)

	_, err = f.engine.Finalize(ctx, m.ID, ps[0].ID)
	require.NoError(t, err)
	_, err = f.engine.Finalize(ctx, m.ID, ps[0].ID)
	require.ErrorIs(t, err, ErrState)

	got, err := f.registry.Get(ctx, ps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Wins)
}

// failingFinalize rejects the next n finalize writes.
type failingFinalize struct {
	*MemoryStore
	n int
}

func (s *failingFinalize) FinalizeMatch(ctx context.Context, m *Match) error {
	if s.n > 0 {
		s.n--
		return errors.New("db down")
	}
	return s.MemoryStore.FinalizeMatch(ctx, m)
}

func TestFinalize_StoreFailureLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	matches := &failingFinalize{MemoryStore: store, n: 1}
	locks := NewMatchLocks()
	reg := NewRegistry(store, matches, locks)
	eng := NewEngine(matches, reg, locks)

	a, err := reg.Create(ctx, "A", "a@example.com")
	require.NoError(t, err)
	b, err := reg.Create(ctx, "B", "b@example.com")
	require.NoError(t, err)
	m, err := eng.CreateMatch(ctx, "flaky", []string{a.ID, b.ID})
	require.NoError(t, err)
	_, err = eng.Start(ctx, m.ID)
	require.NoError(t, err)

	_, err = eng.Finalize(ctx, m.ID, a.ID)
	require.ErrorIs(t, err, ErrUnavailable)

	got, err := reg.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Wins)
	stored, err := eng.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, stored.Active())
	assert.Empty(t, stored.WinnerID)

	_, err = eng.Finalize(ctx, m.ID, a.ID)
	require.NoError(t, err)
	got, err = reg.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Wins)
}

func TestFinalize_ConcurrentCallsSerialized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ps := f.people(t, "A", "B")

	m, err := f.engine.CreateMatch(ctx, "race", ids(ps))
	require.NoError(t, err)
	_, err = f.engine.Start(ctx, m.ID)
	require.NoError(t, err)

	const callers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		okCount  int
		stateErr int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Finalize(ctx, m.ID, ps[1].ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				okCount++
			case errors.Is(err, ErrState):
				stateErr++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, okCount)
	assert.Equal(t, callers-1, stateErr)
	got, err := f.registry.Get(ctx, ps[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Wins)
}

func TestListAndStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ps := f.people(t, "A", "B", "C")

	m1, err := f.engine.CreateMatch(ctx, "one", ids(ps))
	require.NoError(t, err)
	_, err = f.engine.Start(ctx, m1.ID)
	require.NoError(t, err)
	m2, err := f.engine.CreateMatch(ctx, "two", ids(ps[:2]))
	require.NoError(t, err)
	_, err = f.engine.Start(ctx, m2.ID)
	require.NoError(t, err)
	_, err = f.engine.Finalize(ctx, m2.ID, ps[0].ID)
	require.NoError(t, err)
	_, err = f.engine.CreateMatch(ctx, "three", ids(ps[1:]))
	require.NoError(t, err)

	active, err := f.engine.List(ctx, FilterActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, m1.ID, active[0].ID)

	finished, err := f.engine.List(ctx, FilterFinished)
	require.NoError(t, err)
	require.Len(t, finished, 1)
	assert.Equal(t, m2.ID, finished[0].ID)

	all, err := f.engine.List(ctx, FilterAll)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = f.engine.List(ctx, Filter("bogus"))
	assert.ErrorIs(t, err, ErrValidation)

	st, err := f.engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalMatches: 3, ActiveMatches: 1, FinishedMatches: 1, TotalParticipants: 3}, st)
}

func TestDeleteMatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ps := f.people(t, "A", "B")

	m, err := f.engine.CreateMatch(ctx, "gone", ids(ps))
	require.NoError(t, err)
	require.NoError(t, f.engine.Delete(ctx, m.ID))
	assert.ErrorIs(t, f.engine.Delete(ctx, m.ID), ErrNotFound)
	_, err = f.engine.Get(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
