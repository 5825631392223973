// Package dispatch tells every participant of an active match who their
// target is, within the daily quota, and keeps enough bookkeeping to retry
// a single failed delivery later.
package dispatch

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"example.com/killerkiss/internal/game"
	"example.com/killerkiss/internal/quota"
)

type Outcome string

const (
	OutcomeSent          Outcome = "sent"
	OutcomeFailed        Outcome = "failed"
	OutcomeQuotaExceeded Outcome = "quota_exceeded"
	OutcomeSkipped       Outcome = "skipped"
)

const (
	ReasonNoEmail          = "no email"
	ReasonInvalidEmail     = "invalid email"
	ReasonQuotaExceeded    = "quota exceeded"
	ReasonQuotaUnavailable = "quota unavailable"
	ReasonDeliveryFailed   = "delivery failed"
)

// Detail is the result for one participant.
type Detail struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

// Report summarizes one dispatch pass. Failures include the participant that
// hit the quota; Skipped counts the ones never attempted after it.
type Report struct {
	MatchID   string   `json:"matchId"`
	Successes int      `json:"successes"`
	Failures  int      `json:"failures"`
	Skipped   int      `json:"skipped"`
	Details   []Detail `json:"details"`
}

func (r *Report) add(d Detail) {
	switch d.Outcome {
	case OutcomeSent:
		r.Successes++
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Failures++
	}
	r.Details = append(r.Details, d)
}

// Sender delivers one plain-text message; mailer.Gateway implements it.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) bool
}

// Resolver turns a match's participant ids into participants, in order.
type Resolver interface {
	Resolve(ctx context.Context, m *game.Match) ([]game.Participant, error)
}

type Dispatcher struct {
	matches  game.MatchStore
	resolver Resolver
	counter  quota.Counter
	sender   Sender
	locks    *game.MatchLocks
	render   Renderer
	log      *slog.Logger
}

func New(matches game.MatchStore, resolver Resolver, counter quota.Counter, sender Sender, locks *game.MatchLocks, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		matches:  matches,
		resolver: resolver,
		counter:  counter,
		sender:   sender,
		locks:    locks,
		log:      log,
	}
}

// Dispatch notifies every participant of an active match in match order.
// The pass is not cancelled with ctx; only provider attempts are bounded.
func (d *Dispatcher) Dispatch(ctx context.Context, matchID, locale string) (Report, error) {
	ctx = context.WithoutCancel(ctx)
	unlock := d.locks.Lock(matchID)
	defer unlock()

	m, err := d.load(ctx, matchID)
	if err != nil {
		return Report{}, err
	}
	if !m.Active() {
		return Report{}, game.Statef("match %s is %s, only active matches can be dispatched", matchID, m.Status)
	}
	people, err := d.resolver.Resolve(ctx, m)
	if err != nil {
		return Report{}, err
	}

	log := d.log.With("match_id", m.ID)
	rep := Report{MatchID: m.ID}
	n := len(people)
	for i, p := range people {
		target := people[m.TargetAt(i)]
		det, halt, err := d.notify(ctx, m, p.Name, p.Email, target.Name, locale)
		if err != nil {
			return rep, err
		}
		rep.add(det)
		log.Info("assignment", "participant", p.ID, "outcome", det.Outcome, "reason", det.Reason)
		if !halt {
			continue
		}

		for j := i + 1; j < n; j++ {
			rest := people[j]
			email := normalize(rest.Email)
			if email != "" {
				m.SetPending(email, people[m.TargetAt(j)].Name)
			}
			rep.add(Detail{Name: rest.Name, Email: email, Outcome: OutcomeSkipped, Reason: det.Reason})
		}
		if err := d.save(ctx, m); err != nil {
			return rep, err
		}
		log.Warn("dispatch halted", "reason", det.Reason, "skipped", rep.Skipped)
		break
	}
	log.Info("dispatch done", "sent", rep.Successes, "failed", rep.Failures, "skipped", rep.Skipped)
	return rep, nil
}

// Resend retries the stored pending notification for one email. Nothing is
// reshuffled and no other participant is contacted. The email must still
// belong to a participant of the match.
func (d *Dispatcher) Resend(ctx context.Context, matchID, email, locale string) (Detail, error) {
	ctx = context.WithoutCancel(ctx)
	unlock := d.locks.Lock(matchID)
	defer unlock()

	m, err := d.load(ctx, matchID)
	if err != nil {
		return Detail{}, err
	}
	if len(m.Pending) == 0 {
		return Detail{}, game.NotFoundf("match %s has no pending notifications", matchID)
	}
	email = normalize(email)
	target, ok := m.Pending[email]
	if !ok {
		return Detail{}, game.NotFoundf("no pending notification for %s in match %s", email, matchID)
	}

	people, err := d.resolver.Resolve(ctx, m)
	if err != nil {
		return Detail{}, err
	}
	i := slices.IndexFunc(people, func(p game.Participant) bool { return normalize(p.Email) == email })
	if i < 0 {
		return Detail{}, game.NotFoundf("no participant of match %s uses %s", matchID, email)
	}

	det, _, err := d.notify(ctx, m, people[i].Name, email, target, locale)
	if err != nil {
		return Detail{}, err
	}
	d.log.Info("resend", "match_id", m.ID, "outcome", det.Outcome, "reason", det.Reason)
	return det, nil
}

// notify runs the single-participant path and persists any pending-map
// change. halt reports that the quota stopped the pass.
func (d *Dispatcher) notify(ctx context.Context, m *game.Match, name, email, target, locale string) (Detail, bool, error) {
	email = normalize(email)
	det := Detail{Name: name, Email: email}

	if email == "" {
		det.Outcome, det.Reason = OutcomeFailed, ReasonNoEmail
		return det, false, nil
	}
	if !game.ValidEmail(email) {
		det.Outcome, det.Reason = OutcomeFailed, ReasonInvalidEmail
		return det, false, d.markPending(ctx, m, email, target)
	}

	ok, err := d.counter.Reserve(ctx, 1)
	if err != nil || !ok {
		det.Outcome, det.Reason = OutcomeQuotaExceeded, ReasonQuotaExceeded
		if err != nil {
			det.Reason = ReasonQuotaUnavailable
			d.log.Error("quota reserve failed", "match_id", m.ID, "err", err)
		}
		m.SetPending(email, target)
		return det, true, nil
	}

	subject, body := d.render.Render(locale, m.Name, name, target)
	if !d.sender.Send(ctx, email, subject, body) {
		det.Outcome, det.Reason = OutcomeFailed, ReasonDeliveryFailed
		return det, false, d.markPending(ctx, m, email, target)
	}

	det.Outcome = OutcomeSent
	if m.ClearPending(email) {
		return det, false, d.save(ctx, m)
	}
	return det, false, nil
}

func (d *Dispatcher) markPending(ctx context.Context, m *game.Match, email, target string) error {
	if cur, ok := m.Pending[email]; ok && cur == target {
		return nil
	}
	m.SetPending(email, target)
	return d.save(ctx, m)
}

func (d *Dispatcher) load(ctx context.Context, id string) (*game.Match, error) {
	m, ok, err := d.matches.FindMatch(ctx, id)
	if err != nil {
		return nil, game.Unavailable("find match", err)
	}
	if !ok {
		return nil, game.NotFoundf("match %s not found", id)
	}
	return m, nil
}

func (d *Dispatcher) save(ctx context.Context, m *game.Match) error {
	return game.Unavailable("save match", d.matches.SaveMatch(ctx, m))
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
