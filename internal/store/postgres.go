// Package store persists participants, matches and admin users in Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/killerkiss/internal/game"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements game.ParticipantStore and game.MatchStore.
type Postgres struct {
	db *pgxpool.Pool
}

var (
	_ game.ParticipantStore = (*Postgres)(nil)
	_ game.MatchStore       = (*Postgres)(nil)
)

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

const participantCols = `id, name, email, wins, created_at`

func scanParticipant(row pgx.Row) (game.Participant, error) {
	var p game.Participant
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Wins, &p.CreatedAt)
	return p, err
}

func (s *Postgres) SaveParticipant(ctx context.Context, p game.Participant) (game.Participant, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO participants (id, name, email, wins, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email
		RETURNING `+participantCols,
		p.ID, p.Name, p.Email, p.Wins, p.CreatedAt)
	saved, err := scanParticipant(row)
	if err != nil {
		return game.Participant{}, fmt.Errorf("save participant %s: %w", p.ID, err)
	}
	return saved, nil
}

func (s *Postgres) FindParticipant(ctx context.Context, id string) (game.Participant, bool, error) {
	p, err := scanParticipant(s.db.QueryRow(ctx,
		`SELECT `+participantCols+` FROM participants WHERE id = $1`, id))
	return found(p, err)
}

func (s *Postgres) FindParticipantByEmail(ctx context.Context, email string) (game.Participant, bool, error) {
	p, err := scanParticipant(s.db.QueryRow(ctx,
		`SELECT `+participantCols+` FROM participants WHERE email <> '' AND lower(email) = lower($1)`, email))
	return found(p, err)
}

func found[T any](v T, err error) (T, bool, error) {
	var zero T
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (s *Postgres) ListParticipants(ctx context.Context) ([]game.Participant, error) {
	return s.queryParticipants(ctx, `SELECT `+participantCols+` FROM participants ORDER BY created_at, id`)
}

func (s *Postgres) Ranking(ctx context.Context) ([]game.Participant, error) {
	return s.queryParticipants(ctx, `SELECT `+participantCols+` FROM participants ORDER BY wins DESC, created_at, id`)
}

func (s *Postgres) queryParticipants(ctx context.Context, sql string, args ...any) ([]game.Participant, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (game.Participant, error) {
		return scanParticipant(r)
	})
	if err != nil {
		return nil, fmt.Errorf("scan participants: %w", err)
	}
	return out, nil
}

// DetachParticipant relies on the schema: match_participants cascades and
// matches.winner_id is set to NULL when the participant row goes away.
func (s *Postgres) DetachParticipant(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM participants WHERE id = $1`, id)
	return err
}

func (s *Postgres) SaveMatch(ctx context.Context, m *game.Match) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return saveMatch(ctx, tx, m)
	})
}

// FinalizeMatch bumps the winner and writes the finished match in one
// transaction.
func (s *Postgres) FinalizeMatch(ctx context.Context, m *game.Match) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE participants SET wins = wins + 1 WHERE id = $1`, m.WinnerID)
		if err != nil {
			return fmt.Errorf("add win to %s: %w", m.WinnerID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("winner %s not found", m.WinnerID)
		}
		return saveMatch(ctx, tx, m)
	})
}

func saveMatch(ctx context.Context, tx pgx.Tx, m *game.Match) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO matches (id, name, status, winner_id, created_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    status = EXCLUDED.status,
		    winner_id = EXCLUDED.winner_id,
		    finished_at = EXCLUDED.finished_at`,
		m.ID, m.Name, string(m.Status), nullString(m.WinnerID), m.CreatedAt, nullTime(m.FinishedAt))
	if err != nil {
		return fmt.Errorf("upsert match %s: %w", m.ID, err)
	}

	b := &pgx.Batch{}
	b.Queue(`DELETE FROM match_participants WHERE match_id = $1`, m.ID)
	for i, pid := range m.ParticipantIDs {
		b.Queue(`INSERT INTO match_participants (match_id, participant_id, position) VALUES ($1, $2, $3)`, m.ID, pid, i)
	}
	b.Queue(`DELETE FROM pending_assignments WHERE match_id = $1`, m.ID)
	for email, target := range m.Pending {
		b.Queue(`INSERT INTO pending_assignments (match_id, email, target_name) VALUES ($1, $2, $3)`, m.ID, email, target)
	}
	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("save match %s children: %w", m.ID, err)
	}
	return nil
}

const matchCols = `id, name, status, COALESCE(winner_id, ''), created_at, finished_at`

func (s *Postgres) FindMatch(ctx context.Context, id string) (*game.Match, bool, error) {
	ms, err := s.queryMatches(ctx, `SELECT `+matchCols+` FROM matches WHERE id = $1`, id)
	if err != nil {
		return nil, false, err
	}
	if len(ms) == 0 {
		return nil, false, nil
	}
	return ms[0], true, nil
}

func (s *Postgres) ListMatches(ctx context.Context) ([]*game.Match, error) {
	return s.queryMatches(ctx, `SELECT `+matchCols+` FROM matches ORDER BY created_at DESC, id`)
}

func (s *Postgres) ListMatchesByStatus(ctx context.Context, statuses ...game.Status) ([]*game.Match, error) {
	if len(statuses) == 0 {
		return s.ListMatches(ctx)
	}
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	return s.queryMatches(ctx,
		`SELECT `+matchCols+` FROM matches WHERE status = ANY($1) ORDER BY created_at DESC, id`, names)
}

func (s *Postgres) UnfinishedNameTaken(ctx context.Context, name string) (bool, error) {
	var taken bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM matches WHERE name = $1 AND status <> 'finished')`, name).Scan(&taken)
	return taken, err
}

func (s *Postgres) DeleteMatch(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM matches WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// queryMatches loads match rows, then their ordered participants and pending
// entries in two follow-up queries.
func (s *Postgres) queryMatches(ctx context.Context, sql string, args ...any) ([]*game.Match, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	ms, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (*game.Match, error) {
		var (
			m        game.Match
			status   string
			finished *time.Time
		)
		if err := r.Scan(&m.ID, &m.Name, &status, &m.WinnerID, &m.CreatedAt, &finished); err != nil {
			return nil, err
		}
		m.Status = game.Status(status)
		if finished != nil {
			m.FinishedAt = *finished
		}
		return &m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan matches: %w", err)
	}
	if len(ms) == 0 {
		return ms, nil
	}

	byID := make(map[string]*game.Match, len(ms))
	ids := make([]string, len(ms))
	for i, m := range ms {
		byID[m.ID] = m
		ids[i] = m.ID
	}

	rows, err = s.db.Query(ctx, `
		SELECT match_id, participant_id FROM match_participants
		WHERE match_id = ANY($1) ORDER BY match_id, position`, ids)
	if err != nil {
		return nil, err
	}
	var matchID, pid string
	_, err = pgx.ForEachRow(rows, []any{&matchID, &pid}, func() error {
		m := byID[matchID]
		m.ParticipantIDs = append(m.ParticipantIDs, pid)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan match participants: %w", err)
	}

	rows, err = s.db.Query(ctx, `
		SELECT match_id, email, target_name FROM pending_assignments
		WHERE match_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	var email, target string
	_, err = pgx.ForEachRow(rows, []any{&matchID, &email, &target}, func() error {
		byID[matchID].SetPending(email, target)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan pending assignments: %w", err)
	}
	return ms, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
