package internaldefs

import (
	"slices"
	"time"

	"github.com/MrEthical07/authctl"
	"github.com/MrEthical07/authctl/result"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   authctl.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   authctl.MetricID
	Name string
	Help string
}

// GaugeDef names one gauge read from the controller state at collection time.
type GaugeDef struct {
	Name  string
	Help  string
	Value func(st authctl.State, now time.Time) float64
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: authctl.MetricSignUpSuccess, Name: "authctl_sign_up_success_total", Help: "Successful sign-ups."},
	{ID: authctl.MetricSignUpConfirmationRequired, Name: "authctl_sign_up_confirmation_required_total", Help: "Sign-ups that require confirmation before a session exists."},
	{ID: authctl.MetricSignUpFailure, Name: "authctl_sign_up_failure_total", Help: "Failed sign-ups."},
	{ID: authctl.MetricSignInSuccess, Name: "authctl_sign_in_success_total", Help: "Successful password sign-ins."},
	{ID: authctl.MetricSignInFailure, Name: "authctl_sign_in_failure_total", Help: "Failed password sign-ins."},
	{ID: authctl.MetricSignInInvalidCredentials, Name: "authctl_sign_in_invalid_credentials_total", Help: "Sign-ins rejected for invalid credentials."},
	{ID: authctl.MetricOAuthInitiated, Name: "authctl_oauth_initiated_total", Help: "Started OAuth flows."},
	{ID: authctl.MetricOAuthFailure, Name: "authctl_oauth_failure_total", Help: "OAuth flows that failed to start."},
	{ID: authctl.MetricSignOutSuccess, Name: "authctl_sign_out_success_total", Help: "Successful sign-outs."},
	{ID: authctl.MetricSignOutFailure, Name: "authctl_sign_out_failure_total", Help: "Failed sign-outs."},
	{ID: authctl.MetricPasswordResetRequest, Name: "authctl_password_reset_request_total", Help: "Password reset requests."},
	{ID: authctl.MetricPasswordResetFailure, Name: "authctl_password_reset_failure_total", Help: "Failed password reset requests."},
	{ID: authctl.MetricRedirectResolved, Name: "authctl_redirect_resolved_total", Help: "Redirect URIs resolved into a session."},
	{ID: authctl.MetricRedirectNoSession, Name: "authctl_redirect_no_session_total", Help: "Redirect URIs that carried no session."},
	{ID: authctl.MetricRedirectFailure, Name: "authctl_redirect_failure_total", Help: "Redirect URIs that failed to resolve."},
	{ID: authctl.MetricRedirectDuplicate, Name: "authctl_redirect_duplicate_total", Help: "Redirect URIs delivered more than once."},
	{ID: authctl.MetricBusyRejected, Name: "authctl_busy_rejected_total", Help: "Operations rejected while another was in flight."},
	{ID: authctl.MetricWeakPasswordRejected, Name: "authctl_weak_password_rejected_total", Help: "Sign-ups rejected by the client-side password policy."},
	{ID: authctl.MetricPanicRecovered, Name: "authctl_panic_recovered_total", Help: "Backend panics recovered at the facade boundary."},
	{ID: authctl.MetricAuthEvent, Name: "authctl_auth_event_total", Help: "Auth events applied from the backend stream."},
	{ID: authctl.MetricBootstrapSuccess, Name: "authctl_bootstrap_success_total", Help: "Successful initial session fetches."},
	{ID: authctl.MetricBootstrapFailure, Name: "authctl_bootstrap_failure_total", Help: "Failed initial session fetches."},
	{ID: authctl.MetricEventStreamEnded, Name: "authctl_event_stream_ended_total", Help: "Auth event streams that ended unexpectedly."},
	{ID: authctl.MetricListenerPanic, Name: "authctl_listener_panic_total", Help: "State listeners that panicked during notification."},
}

// HistogramDefs lists every histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: authctl.MetricBackendLatency, Name: "authctl_backend_latency_seconds", Help: "Backend call latency histogram."},
}

// GaugeDefs lists every state gauge in export order.
var GaugeDefs = []GaugeDef{
	{Name: "authctl_authenticated", Help: "1 while a session is held.", Value: func(st authctl.State, _ time.Time) float64 {
		return boolValue(st.Session != nil)
	}},
	{Name: "authctl_initializing", Help: "1 until the initial session fetch or first auth event resolves.", Value: func(st authctl.State, _ time.Time) float64 {
		return boolValue(st.Initializing)
	}},
	{Name: "authctl_pending", Help: "1 while an operation is in flight.", Value: func(st authctl.State, _ time.Time) float64 {
		return boolValue(st.Pending)
	}},
	{Name: "authctl_state_version", Help: "State transitions applied since start.", Value: func(st authctl.State, _ time.Time) float64 {
		return float64(st.Version)
	}},
	{Name: "authctl_session_expires_in_seconds", Help: "Seconds until the held session expires; 0 without one.", Value: SessionExpiresIn},
}

// LastErrorGauge is a gauge labelled by kind; the current lastError kind is 1
// and every other kind is 0.
const (
	LastErrorGauge     = "authctl_last_error"
	LastErrorGaugeHelp = "Kind of the most recent failed operation."
	LastErrorLabel     = "kind"
)

// ErrorKinds lists the lastError kinds in export order.
var ErrorKinds = []result.Kind{
	result.KindInvalidCredentials,
	result.KindWeakPassword,
	result.KindNoSessionInURL,
	result.KindBusy,
	result.KindNetworkOrBackend,
	result.KindUnexpected,
}

// Audit dispatcher metrics. Drops are labelled by event type.
const (
	AuditDeliveredName  = "authctl_audit_delivered_total"
	AuditDeliveredHelp  = "Audit events delivered to the sink."
	AuditDroppedName    = "authctl_audit_dropped_total"
	AuditDroppedHelp    = "Audit events dropped due to dispatcher backpressure."
	AuditDroppedLabel   = "event_type"
	AuditSinkPanicsName = "authctl_audit_sink_panics_total"
	AuditSinkPanicsHelp = "Audit sink panics recovered by the dispatcher."
)

// AuditEventTypes lists the event types that always get a drop series.
var AuditEventTypes = []string{
	authctl.AuditSignUp,
	authctl.AuditSignIn,
	authctl.AuditOAuthInitiate,
	authctl.AuditSignOut,
	authctl.AuditPasswordReset,
	authctl.AuditRedirect,
	authctl.AuditListenerPanic,
}

// DroppedSeries returns drop counts for every known event type, followed by any
// other type present in byType, in sorted order.
func DroppedSeries(byType map[string]uint64) ([]string, []uint64) {
	types := make([]string, 0, len(AuditEventTypes)+len(byType))
	types = append(types, AuditEventTypes...)
	var extra []string
	for t := range byType {
		if !slices.Contains(AuditEventTypes, t) {
			extra = append(extra, t)
		}
	}
	slices.Sort(extra)
	types = append(types, extra...)

	counts := make([]uint64, len(types))
	for i, t := range types {
		counts[i] = byType[t]
	}
	return types, counts
}

// SessionExpiresIn is the session lifetime left at now, in whole seconds.
func SessionExpiresIn(st authctl.State, now time.Time) float64 {
	if st.Session == nil || st.Session.ExpiresAt.IsZero() {
		return 0
	}
	left := st.Session.ExpiresAt.Sub(now)
	if left < 0 {
		return 0
	}
	return float64(left / time.Second)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// HistogramBounds are the upper bounds of the 8 buckets, in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix are HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed 8-bucket array, zero-filling.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
