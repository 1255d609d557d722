package authctl

import (
	"io"

	internalaudit "github.com/MrEthical07/authctl/internal/audit"
	internalmetrics "github.com/MrEthical07/authctl/internal/metrics"
	"github.com/MrEthical07/authctl/session"
)

// Session is the authenticated principal plus its credentials.
type Session = session.Session

// User is the identity of an authenticated principal.
type User = session.User

// State is a snapshot of the controller state.
type State = session.State

// Listener observes state transitions. See [Controller.Subscribe].
type Listener = session.Listener

// SignUpResult is the value of a successful [Controller.SignUp].
type SignUpResult struct {
	User User
	// Session is nil when the account must be confirmed first.
	Session *Session
	// NeedsConfirmation is true iff the backend returned no session.
	NeedsConfirmation bool
}

// AuditEvent is a structured audit record emitted by the controller.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the controller's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// Audit event types.
const (
	AuditSignUp        = "auth.sign_up"
	AuditSignIn        = "auth.sign_in"
	AuditOAuthInitiate = "auth.oauth_initiate"
	AuditSignOut       = "auth.sign_out"
	AuditPasswordReset = "auth.password_reset"
	AuditRedirect      = "auth.redirect"
	AuditListenerPanic = "auth.listener_panic"
)

// AuditStats reports audit delivery, per-type drops, and sink panics.
type AuditStats = internalaudit.Stats

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricSignUpSuccess              = internalmetrics.MetricSignUpSuccess
	MetricSignUpConfirmationRequired = internalmetrics.MetricSignUpConfirmationRequired
	MetricSignUpFailure              = internalmetrics.MetricSignUpFailure
	MetricSignInSuccess              = internalmetrics.MetricSignInSuccess
	MetricSignInFailure              = internalmetrics.MetricSignInFailure
	MetricSignInInvalidCredentials   = internalmetrics.MetricSignInInvalidCredentials
	MetricOAuthInitiated             = internalmetrics.MetricOAuthInitiated
	MetricOAuthFailure               = internalmetrics.MetricOAuthFailure
	MetricSignOutSuccess             = internalmetrics.MetricSignOutSuccess
	MetricSignOutFailure             = internalmetrics.MetricSignOutFailure
	MetricPasswordResetRequest       = internalmetrics.MetricPasswordResetRequest
	MetricPasswordResetFailure       = internalmetrics.MetricPasswordResetFailure
	MetricRedirectResolved           = internalmetrics.MetricRedirectResolved
	MetricRedirectNoSession          = internalmetrics.MetricRedirectNoSession
	MetricRedirectFailure            = internalmetrics.MetricRedirectFailure
	MetricRedirectDuplicate          = internalmetrics.MetricRedirectDuplicate
	MetricBusyRejected               = internalmetrics.MetricBusyRejected
	MetricWeakPasswordRejected       = internalmetrics.MetricWeakPasswordRejected
	MetricPanicRecovered             = internalmetrics.MetricPanicRecovered
	MetricAuthEvent                  = internalmetrics.MetricAuthEvent
	MetricBootstrapSuccess           = internalmetrics.MetricBootstrapSuccess
	MetricBootstrapFailure           = internalmetrics.MetricBootstrapFailure
	MetricEventStreamEnded           = internalmetrics.MetricEventStreamEnded
	MetricListenerPanic              = internalmetrics.MetricListenerPanic
	MetricBackendLatency             = internalmetrics.MetricBackendLatency
)

// Metrics holds lock-free counters and the backend latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance from cfg. A disabled config yields a
// no-op recorder.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
