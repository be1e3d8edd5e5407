package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/otcheredev/rehab-portal/internal/adapters"
	"github.com/otcheredev/rehab-portal/internal/services"
	"github.com/otcheredev/rehab-portal/internal/session"
	"github.com/rs/zerolog/log"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return false
	}
	return true
}

// redirectIfExpired sends the browser to the public entry view when err
// carries a 401-driven session expiry
func redirectIfExpired(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, adapters.ErrUnauthorized) {
		return false
	}
	http.Redirect(w, r, session.EntryPath, http.StatusSeeOther)
	return true
}

// writeError maps an error from the portal views onto a response
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if redirectIfExpired(w, r, err) {
		return
	}

	var apiErr *adapters.APIError
	switch {
	case errors.Is(err, services.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, services.ErrUnknownSelection):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		writeJSON(w, apiErr.StatusCode, errorResponse{Error: adapters.UserMessage(err)})
	default:
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: adapters.UserMessage(err)})
	}
}
