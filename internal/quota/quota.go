// Package quota tracks how many notifications went out today against a fixed
// daily ceiling. A day is a calendar date in the counter's location; the count
// starts at zero the first time a new date is seen.
package quota

import (
	"context"
	"sync"
	"time"
)

// DefaultDailyLimit matches the free tier of the mail API the game started on.
const DefaultDailyLimit = 100

const dateLayout = "2006-01-02"

// Counter is the contract the dispatcher depends on.
type Counter interface {
	// Reserve admits n sends iff today's count plus n stays within the limit.
	// Check and increment are one atomic step.
	Reserve(ctx context.Context, n int) (bool, error)
	Usage(ctx context.Context) (Usage, error)
	Limit() int
}

// Usage is today's state of a counter.
type Usage struct {
	Date      string `json:"date"`
	Sent      int    `json:"sent"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

func newUsage(date string, sent, limit int) Usage {
	return Usage{Date: date, Sent: sent, Limit: limit, Remaining: max(limit-sent, 0)}
}

// Remaining returns how many sends are left today.
func Remaining(ctx context.Context, c Counter) (int, error) {
	u, err := c.Usage(ctx)
	if err != nil {
		return 0, err
	}
	return u.Remaining, nil
}

// Memory is an in-process counter.
type Memory struct {
	mu    sync.Mutex
	limit int
	loc   *time.Location
	now   func() time.Time

	day   string
	count int
}

type Option func(*Memory)

// WithClock injects the source of "today".
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

// WithLocation sets the zone whose calendar day the counter follows.
func WithLocation(loc *time.Location) Option {
	return func(m *Memory) { m.loc = loc }
}

func NewMemory(limit int, opts ...Option) *Memory {
	m := &Memory{limit: limit, loc: time.Local, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Limit() int { return m.limit }

// rollLocked resets the count when the calendar day changed.
func (m *Memory) rollLocked() {
	today := m.now().In(m.loc).Format(dateLayout)
	if today != m.day {
		m.day = today
		m.count = 0
	}
}

func (m *Memory) Reserve(_ context.Context, n int) (bool, error) {
	if n <= 0 {
		return true, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollLocked()
	if m.count+n > m.limit {
		return false, nil
	}
	m.count += n
	return true, nil
}

func (m *Memory) Usage(_ context.Context) (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollLocked()
	return newUsage(m.day, m.count, m.limit), nil
}
