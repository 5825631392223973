package game

import "sync"

// MatchLocks serializes work on the same match id. Engine and dispatcher
// share one instance so a finalize cannot interleave with a dispatch pass.
type MatchLocks struct {
	mu    sync.Mutex
	locks map[string]*matchLock
}

type matchLock struct {
	mu   sync.Mutex
	refs int
}

func NewMatchLocks() *MatchLocks {
	return &MatchLocks{locks: make(map[string]*matchLock)}
}

// Lock blocks until id is free and returns the unlock func.
func (l *MatchLocks) Lock(id string) (unlock func()) {
	l.mu.Lock()
	ml, ok := l.locks[id]
	if !ok {
		ml = &matchLock{}
		l.locks[id] = ml
	}
	ml.refs++
	l.mu.Unlock()

	ml.mu.Lock()
	return func() {
		ml.mu.Unlock()
		l.mu.Lock()
		ml.refs--
		if ml.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
