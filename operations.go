package authctl

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/MrEthical07/authctl/backend"
	"github.com/MrEthical07/authctl/result"
	"github.com/MrEthical07/authctl/session"
)

// outcome is what a gated backend call produced: the value returned to the
// caller, the state update applied on success, and audit context.
type outcome[T any] struct {
	value    T
	update   session.Update
	userID   string
	metadata map[string]string
}

// runExclusive executes call under the in-flight gate. pending is set before
// call and cleared in the same Apply that records the outcome, on every exit
// path including a panic inside call. The gate opens before listeners see
// pending=false. The backend call is detached from ctx cancellation so its
// outcome is always applied.
func runExclusive[T any](ctx context.Context, c *Controller, op operation, call func(ctx context.Context) (outcome[T], *result.Failure)) result.Result[T] {
	requestID := uuid.NewString()
	start := time.Now()

	if c.closed.Load() {
		f := result.NewFailure(result.KindUnexpected, msgClosed).WithCause(ErrControllerClosed)
		c.finish(ctx, op, requestID, start, "", nil, f)
		return result.Fail[T](f)
	}
	if !c.busy.CompareAndSwap(false, true) {
		c.metrics.Inc(MetricBusyRejected)
		f := result.NewFailure(result.KindBusy, msgBusy)
		c.finish(ctx, op, requestID, start, "", nil, f)
		return result.Fail[T](f)
	}
	// Released when pending=false is committed, or on the way out of a panic.
	release := sync.OnceFunc(func() { c.busy.Store(false) })
	defer release()

	c.store.Apply(session.Update{Pending: session.Set(true)})

	var (
		out     outcome[T]
		failure *result.Failure
	)
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				failure = result.FromPanic(rec, op.unexpected)
				c.metrics.Inc(MetricPanicRecovered)
				c.logger.Error("backend call panicked", "operation", op.audit, "error", failure.Cause())
			}
		}()
		out, failure = call(context.WithoutCancel(ctx))
	}()
	c.metrics.Observe(MetricBackendLatency, time.Since(start))

	final := session.Update{Pending: session.Set(false)}
	if failure != nil {
		final.LastError = session.Set(failure.Kind)
	} else {
		final = out.update.Merge(final)
		final.LastError = session.Set(result.KindNone)
	}
	c.store.ApplyThen(final, release)

	c.finish(ctx, op, requestID, start, out.userID, out.metadata, failure)
	if failure != nil {
		return result.Fail[T](failure)
	}
	return result.Ok(out.value)
}

func (c *Controller) finish(ctx context.Context, op operation, requestID string, start time.Time, userID string, metadata map[string]string, failure *result.Failure) {
	event := AuditEvent{
		Timestamp:  time.Now(),
		EventType:  op.audit,
		RequestID:  requestID,
		UserID:     userID,
		Success:    failure == nil,
		DurationMS: time.Since(start).Milliseconds(),
		Metadata:   metadata,
	}
	if failure != nil {
		event.Kind = string(failure.Kind)
		event.Error = failure.Message
		if failure.Kind != result.KindBusy {
			c.metrics.Inc(op.failure)
		}
		if cause := failure.Cause(); cause != nil {
			c.logger.Warn("operation failed", "operation", op.audit, "kind", failure.Kind, "status", failure.Status, "error", cause)
		} else {
			c.logger.Debug("operation rejected", "operation", op.audit, "kind", failure.Kind)
		}
	} else {
		c.metrics.Inc(op.success)
	}
	c.emitAudit(ctx, event)
}

// SignUp registers a new account. The password is checked against the
// client-side policy before any backend call; a policy failure leaves state
// untouched. On success the session is applied when the backend returned one;
// otherwise NeedsConfirmation is true and the session is left alone.
func (c *Controller) SignUp(ctx context.Context, email, password, displayName string) result.Result[SignUpResult] {
	if utf8.RuneCountInString(password) < c.config.Password.MinLength {
		c.metrics.Inc(MetricWeakPasswordRejected)
		f := weakPassword(c.config.Password.MinLength)
		c.finish(ctx, opSignUp, uuid.NewString(), time.Now(), "", nil, f)
		return result.Fail[SignUpResult](f)
	}

	req := backend.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: strings.TrimSpace(displayName),
		RedirectURI: c.config.Redirect.CallbackURL(),
	}
	return runExclusive(ctx, c, opSignUp, func(ctx context.Context) (outcome[SignUpResult], *result.Failure) {
		resp, err := c.client.SignUp(ctx, req)
		if err != nil {
			return outcome[SignUpResult]{}, signUpFailure(err)
		}
		if resp == nil {
			return outcome[SignUpResult]{}, result.NewFailure(result.KindUnexpected, msgSignUpUnexpected)
		}

		out := outcome[SignUpResult]{
			value: SignUpResult{
				User:              resp.User,
				Session:           resp.Session.Clone(),
				NeedsConfirmation: resp.Session == nil,
			},
			userID: resp.User.ID,
		}
		if resp.Session != nil {
			out.update.Session = session.Set(resp.Session)
			c.logger.Info("signed up", "user_id", resp.User.ID)
		} else {
			c.metrics.Inc(MetricSignUpConfirmationRequired)
			out.metadata = map[string]string{"needs_confirmation": "true"}
			c.logger.Info("sign up requires confirmation", "user_id", resp.User.ID)
		}
		return out, nil
	})
}

// SignIn authenticates with email and password and applies the new session.
// A credential rejection fails with KindInvalidCredentials; session is left
// unchanged on any failure.
func (c *Controller) SignIn(ctx context.Context, email, password string) result.Result[*Session] {
	return runExclusive(ctx, c, opSignIn, func(ctx context.Context) (outcome[*Session], *result.Failure) {
		s, err := c.client.SignInWithPassword(ctx, email, password)
		if err != nil {
			f := signInFailure(err)
			if f.Kind == result.KindInvalidCredentials {
				c.metrics.Inc(MetricSignInInvalidCredentials)
			}
			return outcome[*Session]{}, f
		}
		if s == nil {
			return outcome[*Session]{}, result.NewFailure(result.KindUnexpected, msgSignInUnexpected)
		}
		c.logger.Info("signed in", "user_id", s.User.ID)
		return outcome[*Session]{
			value:  s.Clone(),
			update: session.Update{Session: session.Set(s)},
			userID: s.User.ID,
		}, nil
	})
}

// SignInWithOAuth starts an external authorization flow and returns the URL
// the user must visit. It never establishes a session; the session arrives
// later through ResolveRedirect or the auth-event stream. An empty provider
// uses the configured default.
func (c *Controller) SignInWithOAuth(ctx context.Context, provider string) result.Result[string] {
	if provider == "" {
		provider = c.config.OAuth.DefaultProvider
	}
	req := backend.OAuthRequest{
		Provider:    provider,
		RedirectURI: c.config.oauthRedirectURI(),
		QueryParams: maps.Clone(c.config.OAuth.QueryParams),
	}
	return runExclusive(ctx, c, opOAuth, func(ctx context.Context) (outcome[string], *result.Failure) {
		authURL, err := c.client.InitiateOAuth(ctx, req)
		if err != nil {
			return outcome[string]{}, result.FromError(err, msgOAuthUnexpected)
		}
		if authURL == "" {
			return outcome[string]{}, result.NewFailure(result.KindUnexpected, msgOAuthUnexpected)
		}
		return outcome[string]{
			value:    authURL,
			metadata: map[string]string{"provider": provider},
		}, nil
	})
}

// SignOut ends the session. Success clears session and lastError; failure
// leaves the session in place.
func (c *Controller) SignOut(ctx context.Context) result.Result[struct{}] {
	var userID string
	if s := c.store.Get().Session; s != nil {
		userID = s.User.ID
	}
	return runExclusive(ctx, c, opSignOut, func(ctx context.Context) (outcome[struct{}], *result.Failure) {
		if err := c.client.SignOut(ctx); err != nil {
			return outcome[struct{}]{}, result.FromError(err, msgSignOutUnexpected)
		}
		c.logger.Info("signed out", "user_id", userID)
		return outcome[struct{}]{
			update: session.Update{Session: session.Set[*session.Session](nil)},
			userID: userID,
		}, nil
	})
}

// ResetPassword asks the backend to send a password-reset message. It never
// establishes or clears a session.
func (c *Controller) ResetPassword(ctx context.Context, email string) result.Result[struct{}] {
	redirectURI := c.config.Redirect.ResetURL()
	return runExclusive(ctx, c, opPasswordReset, func(ctx context.Context) (outcome[struct{}], *result.Failure) {
		if err := c.client.RequestPasswordReset(ctx, email, redirectURI); err != nil {
			return outcome[struct{}]{}, result.FromError(err, msgPasswordResetUnexpected)
		}
		return outcome[struct{}]{}, nil
	})
}
