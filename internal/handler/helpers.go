package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/plainer/hub/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// writeServiceError maps service error types onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var notFound *model.NotFoundError
	var invalid *model.InvalidReferenceError
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, "not_found", notFound.Error())
	case errors.As(err, &invalid):
		writeError(w, http.StatusUnprocessableEntity, "invalid_reference", invalid.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// userID identifies the caller. Authentication is handled upstream; the
// proxy injects the header, and a fixed id serves single-user deployments.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return "local"
}
