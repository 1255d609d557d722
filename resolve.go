package authctl

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authctl/backend"
	"github.com/MrEthical07/authctl/redirect"
	"github.com/MrEthical07/authctl/result"
	"github.com/MrEthical07/authctl/session"
)

// ResolveRedirect turns an OS-delivered redirect URI into a session.
//
// It is not gated by the in-flight flag, so a callback is never rejected as
// busy. Success applies the session and clears lastError. A URI that carries no
// session returns KindNoSessionInURL and leaves state untouched. Any other
// failure records lastError. Resolving a URI that was already handled returns
// the remembered outcome without applying state again.
func (c *Controller) ResolveRedirect(ctx context.Context, uri string) (res result.Result[*Session]) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			f := result.FromPanic(rec, redirect.MessageCallbackFailed)
			c.metrics.Inc(MetricPanicRecovered)
			c.logger.Error("redirect handling panicked", "error", f.Cause())
			res = result.Fail[*Session](f)
		}
	}()

	if c.closed.Load() {
		f := result.NewFailure(result.KindUnexpected, msgClosed).WithCause(ErrControllerClosed)
		c.auditRedirect(ctx, start, nil, f, false)
		return result.Fail[*Session](f)
	}

	res, duplicate := c.redirects.ResolveOnce(context.WithoutCancel(ctx), uri)
	c.metrics.Observe(MetricBackendLatency, time.Since(start))
	if duplicate {
		c.metrics.Inc(MetricRedirectDuplicate)
		c.logger.Debug("redirect already handled")
		var s *Session
		if res.OK() {
			s = res.Value()
		}
		c.auditRedirect(ctx, start, s, res.Failure(), true)
		return res
	}

	switch {
	case res.OK():
		c.metrics.Inc(MetricRedirectResolved)
		s := res.Value()
		c.store.Apply(session.Update{
			Session:   session.Set(s),
			LastError: session.Set(result.KindNone),
		})
		c.logger.Info("signed in from redirect", "user_id", s.User.ID, "strategy", c.redirects.Strategy())
		c.auditRedirect(ctx, start, s, nil, false)
	case res.Kind() == result.KindNoSessionInURL:
		c.metrics.Inc(MetricRedirectNoSession)
		c.auditRedirect(ctx, start, nil, res.Failure(), false)
	default:
		c.metrics.Inc(MetricRedirectFailure)
		c.store.Apply(session.Update{LastError: session.Set(res.Kind())})
		c.logger.Warn("redirect resolution failed", "kind", res.Kind(), "status", res.Failure().Status)
		c.auditRedirect(ctx, start, nil, res.Failure(), false)
	}
	return res
}

func (c *Controller) auditRedirect(ctx context.Context, start time.Time, s *Session, f *result.Failure, duplicate bool) {
	event := AuditEvent{
		Timestamp:  time.Now(),
		EventType:  AuditRedirect,
		RequestID:  uuid.NewString(),
		Success:    f == nil,
		DurationMS: time.Since(start).Milliseconds(),
		Metadata:   map[string]string{"strategy": string(c.redirects.Strategy())},
	}
	if s != nil {
		event.UserID = s.User.ID
	}
	if f != nil {
		event.Kind = string(f.Kind)
		event.Error = f.Message
		var provider *backend.Error
		if f.Kind == result.KindNoSessionInURL && errors.As(f.Cause(), &provider) {
			event.Metadata["provider_error"] = provider.Message
		}
	}
	if duplicate {
		event.Metadata["duplicate"] = "true"
	}
	c.emitAudit(ctx, event)
}
