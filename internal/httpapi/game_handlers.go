package httpapi

import (
	"cmp"
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"example.com/killerkiss/internal/dispatch"
	"example.com/killerkiss/internal/events"
	"example.com/killerkiss/internal/game"
	"example.com/killerkiss/internal/quota"
	"github.com/gorilla/mux"
)

// Publisher receives lifecycle events; events.Hub implements it.
type Publisher interface {
	Publish(e events.Event)
}

type GameHandler struct {
	Registry   *game.Registry
	Engine     *game.Engine
	Dispatcher *dispatch.Dispatcher
	Quota      quota.Counter
	Events     Publisher
	Log        *slog.Logger
}

func (h *GameHandler) publish(typ, matchID string, data any) {
	if h.Events != nil {
		h.Events.Publish(events.Event{Type: typ, MatchID: matchID, Data: data})
	}
}

// --- participants ---

type participantRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// anonymous reports whether the caller is not a logged-in admin; their
// responses carry no email addresses.
func anonymous(ctx context.Context) bool {
	_, ok := AdminFromContext(ctx)
	return !ok
}

func hideEmails(ctx context.Context, ps []game.Participant) []game.Participant {
	if anonymous(ctx) {
		for i := range ps {
			ps[i].Email = ""
		}
	}
	return ps
}

func (h *GameHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Registry.List(r.Context())
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, hideEmails(r.Context(), ps))
}

func (h *GameHandler) Ranking(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Registry.Ranking(r.Context())
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, hideEmails(r.Context(), ps))
}

func (h *GameHandler) GetParticipant(w http.ResponseWriter, r *http.Request) {
	p, err := h.Registry.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, hideEmails(r.Context(), []game.Participant{p})[0])
}

func (h *GameHandler) CreateParticipant(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	p, err := h.Registry.Create(r.Context(), req.Name, req.Email)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	h.publish(events.ParticipantCreated, "", map[string]string{"id": p.ID, "name": p.Name})
	writeJSON(w, http.StatusCreated, p)
}

func (h *GameHandler) UpdateParticipant(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	p, err := h.Registry.Update(r.Context(), mux.Vars(r)["id"], req.Name, req.Email)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	h.publish(events.ParticipantUpdated, "", map[string]string{"id": p.ID, "name": p.Name})
	writeJSON(w, http.StatusOK, p)
}

func (h *GameHandler) DeleteParticipant(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.Registry.Delete(r.Context(), id); err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	h.publish(events.ParticipantDeleted, "", map[string]string{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

// --- matches ---

type participantRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Wins  int    `json:"wins"`
}

// matchView is the public shape of a match. Participants are sorted by name
// so the stored order, which encodes the target cycle, is never exposed.
// Emails and PendingEmails are left out for anonymous callers.
type matchView struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Status        game.Status      `json:"status"`
	Active        bool             `json:"active"`
	Participants  []participantRef `json:"participants"`
	WinnerID      string           `json:"winnerId,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	FinishedAt    *time.Time       `json:"finishedAt,omitempty"`
	PendingEmails []string         `json:"pendingEmails,omitempty"`
}

func (h *GameHandler) view(ctx context.Context, m *game.Match) (matchView, error) {
	people, err := h.Engine.Resolve(ctx, m)
	if err != nil {
		return matchView{}, err
	}
	v := matchView{
		ID:            m.ID,
		Name:          m.Name,
		Status:        m.Status,
		Active:        m.Active(),
		Participants:  make([]participantRef, 0, len(people)),
		WinnerID:      m.WinnerID,
		CreatedAt:     m.CreatedAt,
	}
	if !m.FinishedAt.IsZero() {
		at := m.FinishedAt
		v.FinishedAt = &at
	}
	for _, p := range hideEmails(ctx, people) {
		v.Participants = append(v.Participants, participantRef{ID: p.ID, Name: p.Name, Email: p.Email, Wins: p.Wins})
	}
	slices.SortFunc(v.Participants, func(a, b participantRef) int {
		return cmp.Or(strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)), strings.Compare(a.ID, b.ID))
	})
	if !anonymous(ctx) {
		for email := range m.Pending {
			v.PendingEmails = append(v.PendingEmails, email)
		}
		slices.Sort(v.PendingEmails)
	}
	return v, nil
}

func (h *GameHandler) writeMatch(w http.ResponseWriter, r *http.Request, code int, m *game.Match) {
	v, err := h.view(r.Context(), m)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, code, v)
}

func (h *GameHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	ms, err := h.Engine.List(r.Context(), game.Filter(r.URL.Query().Get("status")))
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	out := make([]matchView, 0, len(ms))
	for _, m := range ms {
		v, err := h.view(r.Context(), m)
		if err != nil {
			writeDomainError(w, h.Log, err)
			return
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *GameHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Engine.Stats(r.Context())
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *GameHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	m, err := h.Engine.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	h.writeMatch(w, r, http.StatusOK, m)
}

type createMatchRequest struct {
	Name           string   `json:"name"`
	ParticipantIDs []string `json:"participantIds"`
	// Start shuffles and activates right away; defaults to true.
	Start *bool `json:"start,omitempty"`
}

func (h *GameHandler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	m, err := h.Engine.CreateMatch(r.Context(), req.Name, req.ParticipantIDs)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	h.publish(events.MatchCreated, m.ID, map[string]any{"name": m.Name, "participants": len(m.ParticipantIDs)})

	if req.Start == nil || *req.Start {
		if m, err = h.Engine.Start(r.Context(), m.ID); err != nil {
			writeDomainError(w, h.Log, err)
			return
		}
		h.publish(events.MatchStarted, m.ID, map[string]any{"name": m.Name})
	}
	h.writeMatch(w, r, http.StatusCreated, m)
}

func (h *GameHandler) StartMatch(w http.ResponseWriter, r *http.Request) {
	m, err := h.Engine.Start(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	h.publish(events.MatchStarted, m.ID, map[string]any{"name": m.Name})
	h.writeMatch(w, r, http.StatusOK, m)
}

type finalizeRequest struct {
	WinnerID string `json:"winnerId"`
}

func (h *GameHandler) FinalizeMatch(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	m, err := h.Engine.Finalize(r.Context(), mux.Vars(r)["id"], req.WinnerID)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	h.publish(events.MatchFinalized, m.ID, map[string]any{"name": m.Name, "winnerId": m.WinnerID})
	h.writeMatch(w, r, http.StatusOK, m)
}

func (h *GameHandler) DeleteMatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.Engine.Delete(r.Context(), id); err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	h.publish(events.MatchDeleted, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *GameHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rep, err := h.Dispatcher.Dispatch(r.Context(), id, r.URL.Query().Get("lang"))
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	h.publish(events.DispatchCompleted, id, map[string]int{
		"successes": rep.Successes,
		"failures":  rep.Failures,
		"skipped":   rep.Skipped,
	})
	writeJSON(w, http.StatusOK, rep)
}

type resendRequest struct {
	Email string `json:"email"`
	Lang  string `json:"lang"`
}

func (h *GameHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "email is required")
		return
	}
	id := mux.Vars(r)["id"]
	det, err := h.Dispatcher.Resend(r.Context(), id, req.Email, req.Lang)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	h.publish(events.ResendCompleted, id, map[string]string{"outcome": string(det.Outcome)})
	writeJSON(w, http.StatusOK, det)
}

func (h *GameHandler) QuotaUsage(w http.ResponseWriter, r *http.Request) {
	u, err := h.Quota.Usage(r.Context())
	if err != nil {
		h.Log.Error("quota usage", "err", err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "quota store temporarily unavailable")
		return
	}
	writeJSON(w, http.StatusOK, u)
}
