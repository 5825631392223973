package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"example.com/killerkiss/internal/game"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, ErrorResponse{Code: errCode, Message: msg})
}

// writeDomainError maps a game error kind onto its HTTP status. Unknown
// errors are logged and reported as internal without leaking details.
func writeDomainError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch game.KindOf(err) {
	case game.KindValidation:
		writeError(w, http.StatusBadRequest, "validation", err.Error())
	case game.KindNotFound:
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case game.KindState:
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case game.KindUnavailable:
		log.Error("collaborator unavailable", "err", err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "storage temporarily unavailable")
	default:
		log.Error("unhandled error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

const maxBody = 1 << 20

// decodeJSON reads one JSON object. An empty body leaves dst untouched when
// optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json")
		return false
	}
	return true
}
