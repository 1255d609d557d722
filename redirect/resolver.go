package redirect

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/authctl/backend"
	"github.com/MrEthical07/authctl/result"
	"github.com/MrEthical07/authctl/session"
)

const (
	// MessageNoSession is the failure message when a URI carries no session.
	MessageNoSession = "No session found in URL"
	// MessageCallbackFailed is the failure message for malformed URIs and
	// unexpected resolution errors.
	MessageCallbackFailed = "Failed to handle auth callback"
)

// Strategy names how a resolver obtains the session.
type Strategy string

const (
	StrategyDirect   Strategy = "direct"
	StrategyFragment Strategy = "fragment"
)

// Resolver resolves a redirect URI into a session outcome.
type Resolver interface {
	Resolve(ctx context.Context, uri string) result.Result[*session.Session]
	Strategy() Strategy
}

// New selects the resolver strategy for client.
func New(client backend.Client, logger *slog.Logger) Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "redirect")

	if direct, ok := client.(backend.SessionURLResolver); ok {
		return &directResolver{backend: direct, logger: logger}
	}
	return &fragmentResolver{backend: client, logger: logger}
}

func noSession() result.Result[*session.Session] {
	return result.Fail[*session.Session](result.NewFailure(result.KindNoSessionInURL, MessageNoSession))
}

type directResolver struct {
	backend backend.SessionURLResolver
	logger  *slog.Logger
}

func (r *directResolver) Strategy() Strategy {
	return StrategyDirect
}

func (r *directResolver) Resolve(ctx context.Context, uri string) (res result.Result[*session.Session]) {
	defer func() {
		if rec := recover(); rec != nil {
			f := result.FromPanic(rec, MessageCallbackFailed)
			r.logger.Error("redirect resolution panicked", "error", f.Cause())
			res = result.Fail[*session.Session](f)
		}
	}()

	s, err := r.backend.SessionFromURL(ctx, uri)
	if err != nil {
		r.logger.Warn("backend could not resolve redirect", "error", err)
		msg := err.Error()
		if msg == "" {
			msg = MessageCallbackFailed
		}
		return result.Fail[*session.Session](result.NewFailure(result.KindUnexpected, msg).WithCause(err))
	}
	if s == nil {
		r.logger.Debug("redirect carried no session")
		return noSession()
	}
	return result.Ok(s)
}

type fragmentResolver struct {
	backend backend.Client
	logger  *slog.Logger
}

func (r *fragmentResolver) Strategy() Strategy {
	return StrategyFragment
}

func (r *fragmentResolver) Resolve(ctx context.Context, uri string) (res result.Result[*session.Session]) {
	defer func() {
		if rec := recover(); rec != nil {
			f := result.FromPanic(rec, MessageCallbackFailed)
			r.logger.Error("redirect resolution panicked", "error", f.Cause())
			res = result.Fail[*session.Session](f)
		}
	}()

	tokens, err := ParseFragment(uri)
	if err != nil {
		r.logger.Warn("malformed redirect uri", "error", err)
		return result.Fail[*session.Session](result.NewFailure(result.KindUnexpected, MessageCallbackFailed).WithCause(err))
	}
	if tokens.AccessToken == "" {
		if provider := tokens.providerError(); provider != nil {
			// A provider denial carries no token, so it is still a no-session outcome.
			r.logger.Debug("redirect carried a provider error", "code", provider.Code, "status", provider.Status)
			return result.Fail[*session.Session](result.NewFailure(result.KindNoSessionInURL, MessageNoSession).WithCause(provider))
		}
		r.logger.Debug("redirect carried no session")
		return noSession()
	}

	s, err := r.backend.SetSession(ctx, tokens.AccessToken, tokens.RefreshToken)
	if err != nil {
		f := result.FromError(err, MessageCallbackFailed)
		r.logger.Warn("token-pair session establishment failed", "kind", f.Kind, "status", f.Status)
		return result.Fail[*session.Session](f)
	}
	if s == nil {
		return noSession()
	}
	return result.Ok(s)
}
