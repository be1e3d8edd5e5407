package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is what the portal can read out of its bearer token for
// display. The signature is not checked and the values never gate access.
type TokenClaims struct {
	Subject   string     `json:"subject,omitempty"`
	Role      string     `json:"role,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ErrOpaqueToken is returned when the token is not a JWT
var ErrOpaqueToken = errors.New("token is not a JWT")

// Claims decodes the current token without verifying it
func (s *Store) Claims() (*TokenClaims, error) {
	token := s.Token()
	if token == "" {
		return nil, errors.New("no session")
	}
	return decodeClaims(token)
}

func decodeClaims(token string) (*TokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpaqueToken, err)
	}

	out := &TokenClaims{}
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if out.Subject == "" {
		// Backends commonly put the id under a custom claim instead of sub
		for _, key := range []string{"user_id", "userId", "uid"} {
			if v, ok := claims[key]; ok {
				out.Subject = fmt.Sprint(v)
				break
			}
		}
	}
	if role, ok := claims["role"].(string); ok {
		out.Role = role
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		out.ExpiresAt = &t
	}
	return out, nil
}
