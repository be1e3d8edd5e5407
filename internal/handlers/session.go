package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/otcheredev/rehab-portal/internal/models"
	"github.com/otcheredev/rehab-portal/internal/session"
	"github.com/rs/zerolog/log"
)

// SessionService is the session store as seen by the HTTP layer
type SessionService interface {
	Login(ctx context.Context, creds models.Credentials) (models.Session, error)
	Register(ctx context.Context, reg models.Registration) (models.Session, error)
	Logout(ctx context.Context)
	Snapshot() models.Session
	Restored() bool
	IsAuthenticated() bool
	Claims() (*session.TokenClaims, error)
}

type SessionHandler struct {
	sessions SessionService
	home     string
}

// NewSessionHandler creates the public session endpoints. home is where an
// authenticated caregiver is sent from the entry view.
func NewSessionHandler(sessions SessionService, home string) *SessionHandler {
	return &SessionHandler{sessions: sessions, home: home}
}

type sessionResponse struct {
	Authenticated bool                 `json:"authenticated"`
	Restored      bool                 `json:"restored"`
	User          *models.User         `json:"user,omitempty"`
	Claims        *session.TokenClaims `json:"claims,omitempty"`
	Redirect      string               `json:"redirect,omitempty"`
}

func (h *SessionHandler) current() sessionResponse {
	snap := h.sessions.Snapshot()
	resp := sessionResponse{
		Authenticated: h.sessions.IsAuthenticated(),
		Restored:      h.sessions.Restored(),
		User:          snap.User,
	}
	if resp.Authenticated {
		// Display only; opaque tokens simply have no claims
		if claims, err := h.sessions.Claims(); err == nil {
			resp.Claims = claims
		}
	}
	return resp
}

// Entry is the public entry view. It points authenticated caregivers at the
// portal home.
func (h *SessionHandler) Entry(w http.ResponseWriter, r *http.Request) {
	resp := h.current()
	if resp.Restored && resp.Authenticated {
		resp.Redirect = h.home
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns the current session without its token
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.current())
}

// Login authenticates the caregiver
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if !decodeJSON(w, r, &creds) {
		return
	}
	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Email and password are required"})
		return
	}

	if _, err := h.sessions.Login(r.Context(), creds); err != nil {
		log.Warn().Err(err).Str("email", creds.Email).Msg("Login failed")
		writeError(w, r, err)
		return
	}

	resp := h.current()
	resp.Redirect = h.home
	writeJSON(w, http.StatusOK, resp)
}

// Register creates an account and logs in with it
func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var reg models.Registration
	if !decodeJSON(w, r, &reg) {
		return
	}
	reg.Email = strings.TrimSpace(reg.Email)
	reg.Name = strings.TrimSpace(reg.Name)
	if reg.Name == "" || reg.Email == "" || reg.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Name, email and password are required"})
		return
	}

	if _, err := h.sessions.Register(r.Context(), reg); err != nil {
		log.Warn().Err(err).Str("email", reg.Email).Msg("Registration failed")
		writeError(w, r, err)
		return
	}

	resp := h.current()
	resp.Redirect = h.home
	writeJSON(w, http.StatusCreated, resp)
}

// Logout ends the session and sends the browser to the entry view
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(r.Context())
	http.Redirect(w, r, session.EntryPath, http.StatusSeeOther)
}
