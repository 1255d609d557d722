// Package backendtest provides an in-memory identity backend for tests and local
// demos. Every method can be overridden with a hook to force failures, panics,
// or specific interleavings.
package backendtest

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/MrEthical07/authctl/backend"
	"github.com/MrEthical07/authctl/session"
)

// Method names used by Calls.
const (
	MethodGetSession     = "GetSession"
	MethodSubscribe      = "SubscribeAuthEvents"
	MethodSignUp         = "SignUp"
	MethodSignIn         = "SignInWithPassword"
	MethodInitiateOAuth  = "InitiateOAuth"
	MethodSetSession     = "SetSession"
	MethodSignOut        = "SignOut"
	MethodPasswordReset  = "RequestPasswordReset"
	MethodSessionFromURL = "SessionFromURL"
)

type account struct {
	password string
	user     session.User
}

// Fake is an in-memory backend.Client. It does not implement
// backend.SessionURLResolver; wrap it with WithURLResolver for that.
type Fake struct {
	// Hooks override the default behavior when set.
	GetSessionFunc    func(ctx context.Context) (*session.Session, error)
	SubscribeFunc     func(ctx context.Context) (backend.Subscription, error)
	SignUpFunc        func(ctx context.Context, req backend.SignUpRequest) (*backend.SignUpResponse, error)
	SignInFunc        func(ctx context.Context, email, password string) (*session.Session, error)
	InitiateOAuthFunc func(ctx context.Context, req backend.OAuthRequest) (string, error)
	SetSessionFunc    func(ctx context.Context, accessToken, refreshToken string) (*session.Session, error)
	SignOutFunc       func(ctx context.Context) error
	PasswordResetFunc func(ctx context.Context, email, redirectURI string) error

	// RequireConfirmation makes SignUp return no session.
	RequireConfirmation bool
	// SilentEvents stops the default implementations from publishing events.
	SilentEvents bool
	// TTL is the lifetime of issued sessions. Zero means one hour.
	TTL time.Duration

	hub *backend.Hub

	mu       sync.Mutex
	current  *session.Session
	accounts map[string]account
	tokens   map[string]session.User
	calls    map[string]int
	resets   []string
	seq      int
}

// NewFake returns an empty fake with an event hub.
func NewFake() *Fake {
	return &Fake{
		hub:      backend.NewHub(64),
		accounts: make(map[string]account),
		tokens:   make(map[string]session.User),
		calls:    make(map[string]int),
	}
}

// AddUser registers an account that can sign in with password.
func (f *Fake) AddUser(email, password string, user session.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.Email == "" {
		user.Email = email
	}
	f.accounts[email] = account{password: password, user: user}
}

// RegisterToken makes SetSession accept accessToken as belonging to user.
func (f *Fake) RegisterToken(accessToken string, user session.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[accessToken] = user
}

// SetCurrent replaces the backend's current session without emitting events.
func (f *Fake) SetCurrent(s *session.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = s.Clone()
}

// Current returns the backend's current session.
func (f *Fake) Current() *session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current.Clone()
}

// Emit publishes an event on the fake's stream.
func (f *Fake) Emit(kind backend.EventKind, s *session.Session) {
	f.hub.Publish(backend.AuthEvent{Kind: kind, Session: s})
}

// CloseStream ends every open event subscription.
func (f *Fake) CloseStream() {
	f.hub.Close()
}

// Subscribers returns the number of open event subscriptions.
func (f *Fake) Subscribers() int {
	return f.hub.Subscribers()
}

// Calls returns how many times method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Resets returns the emails a password reset was requested for.
func (f *Fake) Resets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.resets))
	copy(out, f.resets)
	return out
}

func (f *Fake) record(method string) {
	f.mu.Lock()
	f.calls[method]++
	f.mu.Unlock()
}

func (f *Fake) issue(user session.User) *session.Session {
	ttl := f.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	f.seq++
	n := strconv.Itoa(f.seq)
	return &session.Session{
		User:         user,
		AccessToken:  "access-" + user.ID + "-" + n,
		RefreshToken: "refresh-" + user.ID + "-" + n,
		ExpiresAt:    time.Now().Add(ttl).Truncate(time.Second),
	}
}

func (f *Fake) publish(kind backend.EventKind, s *session.Session) {
	if f.SilentEvents {
		return
	}
	f.Emit(kind, s)
}

func (f *Fake) GetSession(ctx context.Context) (*session.Session, error) {
	f.record(MethodGetSession)
	if f.GetSessionFunc != nil {
		return f.GetSessionFunc(ctx)
	}
	return f.Current(), nil
}

func (f *Fake) SubscribeAuthEvents(ctx context.Context) (backend.Subscription, error) {
	f.record(MethodSubscribe)
	if f.SubscribeFunc != nil {
		return f.SubscribeFunc(ctx)
	}
	return f.hub.Subscribe()
}

func (f *Fake) SignUp(ctx context.Context, req backend.SignUpRequest) (*backend.SignUpResponse, error) {
	f.record(MethodSignUp)
	if f.SignUpFunc != nil {
		return f.SignUpFunc(ctx, req)
	}

	f.mu.Lock()
	if _, exists := f.accounts[req.Email]; exists {
		f.mu.Unlock()
		return nil, &backend.Error{Status: 422, Code: "user_already_exists", Message: "User already registered"}
	}
	f.seq++
	user := session.User{ID: "user-" + strconv.Itoa(f.seq), Email: req.Email, DisplayName: req.DisplayName}
	f.accounts[req.Email] = account{password: req.Password, user: user}
	if f.RequireConfirmation {
		f.mu.Unlock()
		return &backend.SignUpResponse{User: user}, nil
	}
	s := f.issue(user)
	f.current = s.Clone()
	f.mu.Unlock()

	f.publish(backend.EventSignedIn, s)
	return &backend.SignUpResponse{User: user, Session: s}, nil
}

func (f *Fake) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	f.record(MethodSignIn)
	if f.SignInFunc != nil {
		return f.SignInFunc(ctx, email, password)
	}

	f.mu.Lock()
	acct, ok := f.accounts[email]
	if !ok || acct.password != password {
		f.mu.Unlock()
		return nil, &backend.Error{Status: 400, Code: "invalid_credentials", Message: "Invalid login credentials"}
	}
	s := f.issue(acct.user)
	f.current = s.Clone()
	f.mu.Unlock()

	f.publish(backend.EventSignedIn, s)
	return s, nil
}

func (f *Fake) InitiateOAuth(ctx context.Context, req backend.OAuthRequest) (string, error) {
	f.record(MethodInitiateOAuth)
	if f.InitiateOAuthFunc != nil {
		return f.InitiateOAuthFunc(ctx, req)
	}
	return "https://auth.example.test/authorize?provider=" + req.Provider + "&redirect_to=" + req.RedirectURI, nil
}

func (f *Fake) SetSession(ctx context.Context, accessToken, refreshToken string) (*session.Session, error) {
	f.record(MethodSetSession)
	if f.SetSessionFunc != nil {
		return f.SetSessionFunc(ctx, accessToken, refreshToken)
	}

	f.mu.Lock()
	user, ok := f.tokens[accessToken]
	if !ok {
		f.mu.Unlock()
		return nil, &backend.Error{Status: 401, Code: "bad_jwt", Message: "invalid JWT"}
	}
	ttl := f.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	s := &session.Session{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(ttl).Truncate(time.Second),
	}
	f.current = s.Clone()
	f.mu.Unlock()

	f.publish(backend.EventSignedIn, s)
	return s, nil
}

func (f *Fake) SignOut(ctx context.Context) error {
	f.record(MethodSignOut)
	if f.SignOutFunc != nil {
		return f.SignOutFunc(ctx)
	}
	f.mu.Lock()
	f.current = nil
	f.mu.Unlock()

	f.publish(backend.EventSignedOut, nil)
	return nil
}

func (f *Fake) RequestPasswordReset(ctx context.Context, email, redirectURI string) error {
	f.record(MethodPasswordReset)
	if f.PasswordResetFunc != nil {
		return f.PasswordResetFunc(ctx, email, redirectURI)
	}
	f.mu.Lock()
	f.resets = append(f.resets, email)
	f.mu.Unlock()
	return nil
}

var _ backend.Client = (*Fake)(nil)

// ResolvingFake is a Fake that also implements backend.SessionURLResolver.
type ResolvingFake struct {
	*Fake
	resolve func(ctx context.Context, uri string) (*session.Session, error)
}

// WithURLResolver adds the direct redirect-resolution capability to f.
func WithURLResolver(f *Fake, resolve func(ctx context.Context, uri string) (*session.Session, error)) *ResolvingFake {
	return &ResolvingFake{Fake: f, resolve: resolve}
}

func (r *ResolvingFake) SessionFromURL(ctx context.Context, uri string) (*session.Session, error) {
	r.record(MethodSessionFromURL)
	s, err := r.resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	if s != nil {
		r.mu.Lock()
		r.current = s.Clone()
		r.mu.Unlock()
		r.publish(backend.EventSignedIn, s)
	}
	return s, nil
}

var _ backend.SessionURLResolver = (*ResolvingFake)(nil)
