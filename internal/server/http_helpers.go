package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"gorm.io/gorm"

	"lucky-draw/internal/draw"
)

func readJSON(body io.Reader, dest any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeEngineError maps the engine's failure taxonomy onto statuses: bad
// input is 400, state/capacity conflicts are 409 and worth a changed retry,
// lock contention is 503 and safe to retry as-is.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, draw.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, draw.ErrCapacityExhausted),
		errors.Is(err, draw.ErrInsufficientCandidates),
		errors.Is(err, draw.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, draw.ErrBusy):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// actingUser extracts the pre-authorized caller identity used for audit
// fields. Authorization itself happens upstream of this service.
func actingUser(r *http.Request) (string, bool) {
	user := r.Header.Get("X-Acting-User")
	return user, user != ""
}
