package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/otcheredev/rehab-portal/internal/cache"
	"github.com/otcheredev/rehab-portal/internal/metrics"
	"github.com/otcheredev/rehab-portal/internal/models"
	"github.com/rs/zerolog/log"
)

// EntryPath is the public view every session end navigates to
const EntryPath = "/"

// DefaultKey is the cache key the session pair is persisted under
var DefaultKey = cache.Key("portal", "session")

// Authenticator performs the backend calls that create a session
type Authenticator interface {
	Login(ctx context.Context, creds models.Credentials) (*models.LoginResult, error)
	Register(ctx context.Context, reg models.Registration) error
}

// EventKind identifies a session transition
type EventKind string

const (
	EventRestored EventKind = "restored"
	EventLogin    EventKind = "login"
	EventLogout   EventKind = "logout"
	EventExpired  EventKind = "expired"
)

// Event is delivered to subscribers after every session mutation
type Event struct {
	Kind EventKind
	// Redirect is the view to navigate to, empty when no navigation applies
	Redirect string
	Session  models.Session
}

// Store owns the caregiver's session. Every write goes through mutate so
// the token and user are always replaced together.
type Store struct {
	cache cache.Cache
	auth  Authenticator
	key   string

	// writeMu serializes whole mutations (persist + memory update)
	writeMu sync.Mutex

	mu       sync.RWMutex
	current  models.Session
	restored bool

	subMu       sync.RWMutex
	subscribers []func(Event)
}

// NewStore creates a session store persisting into c under key
func NewStore(c cache.Cache, auth Authenticator, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{
		cache: c,
		auth:  auth,
		key:   key,
	}
}

// Restore loads any persisted session. It never fails: missing or
// unreadable data yields an empty session. Protected views stay closed
// until it has completed.
func (s *Store) Restore(ctx context.Context) {
	var restored models.Session

	data, err := s.cache.Get(ctx, s.key)
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
		log.Debug().Msg("No persisted session")
	case err != nil:
		log.Warn().Err(err).Msg("Failed to read persisted session")
	default:
		if err := json.Unmarshal(data, &restored); err != nil {
			log.Warn().Err(err).Msg("Discarding unreadable persisted session")
			restored = models.Session{}
			if err := s.cache.Delete(ctx, s.key); err != nil {
				log.Warn().Err(err).Msg("Failed to delete unreadable session")
			}
		}
	}

	if restored.IsZero() {
		restored = models.Session{}
	}

	s.writeMu.Lock()
	s.mu.Lock()
	s.current = restored
	s.restored = true
	s.mu.Unlock()
	s.writeMu.Unlock()

	metrics.SessionEvents.WithLabelValues(string(EventRestored)).Inc()
	log.Info().Bool("authenticated", !restored.IsZero()).Msg("Session restored")
	s.notify(Event{Kind: EventRestored, Session: restored})
}

// Login authenticates with the backend. On failure the previous session is
// left untouched and the backend's error is returned.
func (s *Store) Login(ctx context.Context, creds models.Credentials) (models.Session, error) {
	result, err := s.auth.Login(ctx, creds)
	if err != nil {
		return models.Session{}, err
	}

	next := models.Session{Token: result.Token, User: result.User}
	s.mutate(ctx, next, EventLogin, "")
	return next, nil
}

// Register creates an account and then logs in with the same credentials
func (s *Store) Register(ctx context.Context, reg models.Registration) (models.Session, error) {
	if err := s.auth.Register(ctx, reg); err != nil {
		return models.Session{}, err
	}
	return s.Login(ctx, models.Credentials{Email: reg.Email, Password: reg.Password})
}

// Logout clears the session unconditionally
func (s *Store) Logout(ctx context.Context) {
	s.mutate(ctx, models.Session{}, EventLogout, EntryPath)
}

// Expire clears the session after the backend rejected its token. Only the
// backend adapter calls this.
func (s *Store) Expire(ctx context.Context) {
	s.mutate(ctx, models.Session{}, EventExpired, EntryPath)
}

// mutate is the single write path for the session
func (s *Store) mutate(ctx context.Context, next models.Session, kind EventKind, redirect string) {
	s.writeMu.Lock()

	if next.IsZero() {
		if err := s.cache.Delete(ctx, s.key); err != nil {
			log.Warn().Err(err).Msg("Failed to delete persisted session")
		}
	} else if data, err := json.Marshal(next); err != nil {
		log.Warn().Err(err).Msg("Failed to encode session")
	} else if err := s.cache.Set(ctx, s.key, data, 0); err != nil {
		log.Warn().Err(err).Msg("Failed to persist session")
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	s.writeMu.Unlock()

	metrics.SessionEvents.WithLabelValues(string(kind)).Inc()
	log.Info().Str("event", string(kind)).Msg("Session changed")
	s.notify(Event{Kind: kind, Redirect: redirect, Session: next})
}

// Token returns the bearer token, empty when logged out
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Token
}

// User returns a copy of the cached profile, nil when logged out
func (s *Store) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current.User == nil {
		return nil
	}
	u := *s.current.User
	return &u
}

// Snapshot returns the token and user as one consistent pair
func (s *Store) Snapshot() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := models.Session{Token: s.current.Token}
	if s.current.User != nil {
		u := *s.current.User
		snap.User = &u
	}
	return snap
}

// IsAuthenticated reports whether a token is present
func (s *Store) IsAuthenticated() bool {
	return s.Token() != ""
}

// Restored reports whether Restore has completed
func (s *Store) Restored() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restored
}

// Subscribe registers fn to receive every session event
func (s *Store) Subscribe(fn func(Event)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Store) notify(ev Event) {
	s.subMu.RLock()
	subs := make([]func(Event), len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}
