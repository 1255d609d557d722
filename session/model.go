package session

import "time"

// User is the authenticated principal as reported by the identity backend.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// Session is the authenticated principal plus its credentials. Once stored it
// is replaced as a whole, never edited field by field.
type Session struct {
	User         User      `json:"user"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether s is a complete session. A nil session is not valid.
func (s *Session) Valid() bool {
	return s != nil && s.User.ID != "" && s.AccessToken != ""
}

// ExpiresWithin reports whether s expires within d of now. Sessions without an
// expiry never expire.
func (s *Session) ExpiresWithin(d time.Duration, now time.Time) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(s.ExpiresAt)
}

// Clone returns an independent copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

// Equal reports whether a and b describe the same session.
func Equal(a, b *Session) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.User == b.User &&
		a.AccessToken == b.AccessToken &&
		a.RefreshToken == b.RefreshToken &&
		a.ExpiresAt.Equal(b.ExpiresAt)
}
