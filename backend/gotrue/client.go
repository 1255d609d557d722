package gotrue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/MrEthical07/authctl/backend"
	"github.com/MrEthical07/authctl/jwt"
	"github.com/MrEthical07/authctl/session"
	"github.com/MrEthical07/authctl/storage"
)

// Client is the implicit-flow GoTrue client.
type Client struct {
	baseURL    string
	apiKey     string
	http       *http.Client
	limiter    *rate.Limiter
	store      storage.Storage
	storageKey string
	inspector  *jwt.Inspector
	hub        *backend.Hub
	logger     *slog.Logger

	refreshMargin   time.Duration
	refreshInterval time.Duration
	now             func() time.Time

	refreshGroup singleflight.Group

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New returns an implicit-flow client.
func New(cfg Config) (*Client, error) {
	if err := cfg.withDefaults(); err != nil {
		return nil, err
	}
	return &Client{
		baseURL:         cfg.URL,
		apiKey:          cfg.APIKey,
		http:            cfg.HTTPClient,
		limiter:         rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		store:           cfg.Storage,
		storageKey:      cfg.StorageKey,
		inspector:       cfg.Inspector,
		hub:             backend.NewHub(0),
		logger:          cfg.Logger.With("component", "gotrue"),
		refreshMargin:   cfg.RefreshMargin,
		refreshInterval: cfg.AutoRefreshInterval,
		now:             time.Now,
		done:            make(chan struct{}),
	}, nil
}

// Close stops auto refresh and ends every event subscription.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
		c.hub.Close()
	})
	return nil
}

// GetSession returns the persisted session, refreshing it first when it is
// close to expiry. A session the service refuses to refresh is removed.
func (c *Client) GetSession(ctx context.Context) (*session.Session, error) {
	s, err := c.loadSession(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	if !s.ExpiresWithin(c.refreshMargin, c.now()) {
		return s, nil
	}
	if s.RefreshToken == "" {
		if s.ExpiresWithin(0, c.now()) {
			c.logger.Info("persisted session expired without refresh token")
			c.signedOut(ctx)
			return nil, nil
		}
		return s, nil
	}

	refreshed, err := c.refresh(ctx, s.RefreshToken)
	if err != nil {
		if rejected(err) {
			c.logger.Info("persisted session refresh rejected", "error", err)
			c.signedOut(ctx)
			return nil, nil
		}
		return nil, err
	}
	return refreshed, nil
}

// SubscribeAuthEvents opens an event subscription.
func (c *Client) SubscribeAuthEvents(context.Context) (backend.Subscription, error) {
	return c.hub.Subscribe()
}

func (c *Client) SignUp(ctx context.Context, req backend.SignUpRequest) (*backend.SignUpResponse, error) {
	var query url.Values
	if req.RedirectURI != "" {
		query = url.Values{"redirect_to": {req.RedirectURI}}
	}
	body := map[string]any{
		"email":    req.Email,
		"password": req.Password,
	}
	if req.DisplayName != "" {
		body["data"] = map[string]string{"display_name": req.DisplayName}
	}

	var resp signUpResponse
	if err := c.do(ctx, http.MethodPost, "/signup", query, body, "", &resp); err != nil {
		return nil, err
	}

	if s := resp.tokenResponse.session(c.now()); s != nil {
		if err := c.saveSession(ctx, s); err != nil {
			return nil, err
		}
		c.hub.Publish(backend.AuthEvent{Kind: backend.EventSignedIn, Session: s})
		return &backend.SignUpResponse{User: s.User, Session: s}, nil
	}

	user := resp.userResponse.user()
	if user.ID == "" && resp.tokenResponse.User != nil {
		user = resp.tokenResponse.User.user()
	}
	return &backend.SignUpResponse{User: user}, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"password"}},
		map[string]string{"email": email, "password": password}, "", &resp)
	if err != nil {
		return nil, err
	}
	return c.signedIn(ctx, resp, backend.EventSignedIn)
}

// InitiateOAuth returns the provider authorization URL. The session arrives
// later, in the redirect fragment.
func (c *Client) InitiateOAuth(_ context.Context, req backend.OAuthRequest) (string, error) {
	return c.authorizeURL(req)
}

func (c *Client) authorizeURL(req backend.OAuthRequest, extra ...oauth2.AuthCodeOption) (string, error) {
	if req.Provider == "" {
		return "", errors.New("gotrue: oauth provider is required")
	}
	cfg := oauth2.Config{
		Endpoint: oauth2.Endpoint{AuthURL: c.baseURL + "/authorize"},
	}
	opts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("provider", req.Provider)}
	if req.RedirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_to", req.RedirectURI))
	}
	for k, v := range req.QueryParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	opts = append(opts, extra...)
	return cfg.AuthCodeURL("", opts...), nil
}

// SetSession establishes a session from a token pair. An expired access token
// is refreshed first; otherwise the service confirms the token and returns the
// user.
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*session.Session, error) {
	s, kind, err := c.establish(ctx, accessToken, refreshToken)
	if err != nil {
		return nil, err
	}
	c.hub.Publish(backend.AuthEvent{Kind: kind, Session: s})
	return s, nil
}

func (c *Client) establish(ctx context.Context, accessToken, refreshToken string) (*session.Session, backend.EventKind, error) {
	var expiresAt time.Time
	if claims, err := c.inspector.Parse(accessToken); err == nil {
		expiresAt = claims.Expiry()
	} else if c.inspector.Verifies() {
		return nil, "", &backend.Error{Status: http.StatusUnauthorized, Code: "bad_jwt", Message: err.Error()}
	}

	if !expiresAt.IsZero() && !c.now().Before(expiresAt) {
		if refreshToken == "" {
			return nil, "", &backend.Error{Status: http.StatusUnauthorized, Code: "session_expired", Message: "Session expired"}
		}
		resp, err := c.refreshToken(ctx, refreshToken)
		if err != nil {
			return nil, "", err
		}
		s := resp.session(c.now())
		if s == nil {
			return nil, "", errors.New("gotrue: incomplete session in refresh response")
		}
		if err := c.saveSession(ctx, s); err != nil {
			return nil, "", err
		}
		return s, backend.EventTokenRefreshed, nil
	}

	var user userResponse
	if err := c.do(ctx, http.MethodGet, "/user", nil, nil, accessToken, &user); err != nil {
		return nil, "", err
	}
	s := &session.Session{
		User:         user.user(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}
	if !s.Valid() {
		return nil, "", errors.New("gotrue: user response has no id")
	}
	if err := c.saveSession(ctx, s); err != nil {
		return nil, "", err
	}
	return s, backend.EventSignedIn, nil
}

// SignOut revokes the session remotely and removes it locally. A session the
// service no longer knows is still removed.
func (c *Client) SignOut(ctx context.Context) error {
	s, err := c.loadSession(ctx)
	if err != nil {
		return err
	}
	if s != nil {
		err := c.do(ctx, http.MethodPost, "/logout", nil, nil, s.AccessToken, nil)
		if err != nil && !sessionGone(err) {
			return err
		}
	}
	c.signedOut(ctx)
	return nil
}

func (c *Client) RequestPasswordReset(ctx context.Context, email, redirectURI string) error {
	var query url.Values
	if redirectURI != "" {
		query = url.Values{"redirect_to": {redirectURI}}
	}
	return c.do(ctx, http.MethodPost, "/recover", query, map[string]string{"email": email}, "", nil)
}

func (c *Client) signedIn(ctx context.Context, resp tokenResponse, kind backend.EventKind) (*session.Session, error) {
	s := resp.session(c.now())
	if s == nil {
		return nil, errors.New("gotrue: incomplete session in token response")
	}
	if err := c.saveSession(ctx, s); err != nil {
		return nil, err
	}
	c.hub.Publish(backend.AuthEvent{Kind: kind, Session: s})
	return s, nil
}

func (c *Client) signedOut(ctx context.Context) {
	if err := c.store.Delete(ctx, c.storageKey); err != nil {
		c.logger.Warn("removing persisted session failed", "error", err)
	}
	c.hub.Publish(backend.AuthEvent{Kind: backend.EventSignedOut})
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*session.Session, error) {
	v, err, _ := c.refreshGroup.Do(refreshToken, func() (any, error) {
		resp, err := c.refreshToken(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		return c.signedIn(ctx, resp, backend.EventTokenRefreshed)
	})
	if err != nil {
		return nil, err
	}
	return v.(*session.Session), nil
}

func (c *Client) refreshToken(ctx context.Context, refreshToken string) (tokenResponse, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"refresh_token"}},
		map[string]string{"refresh_token": refreshToken}, "", &resp)
	return resp, err
}

func (c *Client) loadSession(ctx context.Context) (*session.Session, error) {
	data, err := c.store.Get(ctx, c.storageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil && !errors.Is(err, storage.ErrCorrupt) {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	var s session.Session
	if err == nil {
		err = json.Unmarshal(data, &s)
	}
	if err != nil || !s.Valid() {
		c.logger.Warn("discarding unreadable persisted session", "error", err)
		_ = c.store.Delete(ctx, c.storageKey)
		return nil, nil
	}
	return &s, nil
}

func (c *Client) saveSession(ctx context.Context, s *session.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := c.store.Set(ctx, c.storageKey, data); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}
	return nil
}

// rejected reports whether the service refused the request, as opposed to the
// request not reaching it.
func rejected(err error) bool {
	var be *backend.Error
	return errors.As(err, &be) && be.Status >= 400 && be.Status < 500
}

func sessionGone(err error) bool {
	var be *backend.Error
	if !errors.As(err, &be) {
		return false
	}
	switch be.Status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

var _ backend.Client = (*Client)(nil)
