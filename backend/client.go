package backend

import (
	"context"

	"github.com/MrEthical07/authctl/session"
)

// Client is the identity backend surface required by the controller. Every
// method may block on the network and may fail independently.
type Client interface {
	// GetSession returns the backend's current session, or nil when there is none.
	GetSession(ctx context.Context) (*session.Session, error)
	// SubscribeAuthEvents opens the ordered auth-event stream.
	SubscribeAuthEvents(ctx context.Context) (Subscription, error)
	SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error)
	SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error)
	// InitiateOAuth returns the provider authorization URL the user must visit.
	InitiateOAuth(ctx context.Context, req OAuthRequest) (string, error)
	// SetSession establishes a session from a token pair. refreshToken may be empty.
	SetSession(ctx context.Context, accessToken, refreshToken string) (*session.Session, error)
	SignOut(ctx context.Context) error
	RequestPasswordReset(ctx context.Context, email, redirectURI string) error
}

// SessionURLResolver is implemented by clients that can turn a redirect URI into
// a session on their own.
type SessionURLResolver interface {
	SessionFromURL(ctx context.Context, uri string) (*session.Session, error)
}

// SignUpRequest carries new-account details.
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
	// RedirectURI is where the confirmation email sends the user.
	RedirectURI string
}

// SignUpResponse is the backend outcome of a sign-up. Session is nil when the
// account must be confirmed before a session exists.
type SignUpResponse struct {
	User    session.User
	Session *session.Session
}

// OAuthRequest describes an external authorization start.
type OAuthRequest struct {
	Provider    string
	RedirectURI string
	// QueryParams are forwarded to the provider's authorization endpoint.
	QueryParams map[string]string
}
