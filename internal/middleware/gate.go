package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// SessionState is the part of the session store the gate reads
type SessionState interface {
	Restored() bool
	IsAuthenticated() bool
}

// Authenticated is the access predicate: restore has completed and a
// token is present. The token is never re-verified with the backend.
func Authenticated(state SessionState) bool {
	return state.Restored() && state.IsAuthenticated()
}

// RequireSession mounts the wrapped views only for an authenticated
// session and redirects to entryPath otherwise
func RequireSession(state SessionState, entryPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Authenticated(state) {
				log.Debug().
					Str("path", r.URL.Path).
					Bool("restored", state.Restored()).
					Msg("Protected view requested without session")
				http.Redirect(w, r, entryPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
