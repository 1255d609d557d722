package gotrue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/MrEthical07/authctl/backend"
	"github.com/MrEthical07/authctl/redirect"
	"github.com/MrEthical07/authctl/session"
	"github.com/MrEthical07/authctl/storage"
)

const verifierSuffix = "-code-verifier"

// PKCEClient is the authorization-code flow client. It resolves redirect URLs
// itself, so the controller hands it the whole URL.
type PKCEClient struct {
	*Client
}

// NewPKCE returns a PKCE-flow client.
func NewPKCE(cfg Config) (*PKCEClient, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return &PKCEClient{Client: c}, nil
}

func (c *PKCEClient) verifierKey() string {
	return c.storageKey + verifierSuffix
}

// InitiateOAuth creates and stores a code verifier and returns the
// authorization URL carrying its S256 challenge.
func (c *PKCEClient) InitiateOAuth(ctx context.Context, req backend.OAuthRequest) (string, error) {
	verifier := oauth2.GenerateVerifier()
	if err := c.store.Set(ctx, c.verifierKey(), []byte(verifier)); err != nil {
		return "", fmt.Errorf("persisting code verifier: %w", err)
	}
	return c.authorizeURL(req, oauth2.S256ChallengeOption(verifier))
}

// SessionFromURL exchanges the code in uri for a session. A URL with tokens in
// its fragment is established directly. A URL carrying neither yields no
// session and no error.
func (c *PKCEClient) SessionFromURL(ctx context.Context, uri string) (*session.Session, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redirect uri: %w", err)
	}
	query := u.Query()
	if be := queryError(query); be != nil {
		return nil, be
	}

	code := query.Get("code")
	if code == "" {
		return c.sessionFromFragment(ctx, uri)
	}

	verifier, err := c.store.Get(ctx, c.verifierKey())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &backend.Error{Status: http.StatusBadRequest, Code: "flow_state_not_found", Message: "PKCE code verifier not found in storage"}
	}
	if err != nil {
		return nil, fmt.Errorf("loading code verifier: %w", err)
	}

	var resp tokenResponse
	err = c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"pkce"}},
		map[string]string{"auth_code": code, "code_verifier": string(verifier)}, "", &resp)
	if err != nil {
		return nil, err
	}
	if derr := c.store.Delete(ctx, c.verifierKey()); derr != nil {
		c.logger.Warn("removing code verifier failed", "error", derr)
	}
	return c.signedIn(ctx, resp, eventFor(query.Get("type")))
}

func (c *PKCEClient) sessionFromFragment(ctx context.Context, uri string) (*session.Session, error) {
	tokens, err := redirect.ParseFragment(uri)
	if err != nil {
		return nil, err
	}
	if tokens.ErrorCode != "" || tokens.ErrorDescription != "" {
		status := tokens.ErrorStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		msg := tokens.ErrorDescription
		if msg == "" {
			msg = tokens.ErrorCode
		}
		return nil, &backend.Error{Status: status, Code: tokens.ErrorCode, Message: msg}
	}
	if tokens.AccessToken == "" {
		return nil, nil
	}

	s, kind, err := c.establish(ctx, tokens.AccessToken, tokens.RefreshToken)
	if err != nil {
		return nil, err
	}
	if kind == backend.EventSignedIn {
		kind = eventFor(tokens.Type)
	}
	c.hub.Publish(backend.AuthEvent{Kind: kind, Session: s})
	return s, nil
}

func eventFor(callbackType string) backend.EventKind {
	if callbackType == "recovery" {
		return backend.EventPasswordRecovery
	}
	return backend.EventSignedIn
}

var (
	_ backend.Client             = (*PKCEClient)(nil)
	_ backend.SessionURLResolver = (*PKCEClient)(nil)
)
