package authctl

import (
	"fmt"

	"github.com/MrEthical07/authctl/result"
)

const (
	msgSignUpUnexpected        = "An unexpected error occurred during sign up"
	msgSignInUnexpected        = "An unexpected error occurred during sign in"
	msgOAuthUnexpected         = "An unexpected error occurred during OAuth sign in"
	msgSignOutUnexpected       = "An unexpected error occurred during sign out"
	msgPasswordResetUnexpected = "An unexpected error occurred during password reset"

	msgBusy   = "Another authentication operation is in progress"
	msgClosed = "Authentication controller is closed"

	invalidLoginMessage = "Invalid login credentials"
)

// operation names one facade call for audit, metrics, and failure wording.
type operation struct {
	audit      string
	unexpected string
	success    MetricID
	failure    MetricID
}

var (
	opSignUp        = operation{AuditSignUp, msgSignUpUnexpected, MetricSignUpSuccess, MetricSignUpFailure}
	opSignIn        = operation{AuditSignIn, msgSignInUnexpected, MetricSignInSuccess, MetricSignInFailure}
	opOAuth         = operation{AuditOAuthInitiate, msgOAuthUnexpected, MetricOAuthInitiated, MetricOAuthFailure}
	opSignOut       = operation{AuditSignOut, msgSignOutUnexpected, MetricSignOutSuccess, MetricSignOutFailure}
	opPasswordReset = operation{AuditPasswordReset, msgPasswordResetUnexpected, MetricPasswordResetRequest, MetricPasswordResetFailure}
)

func weakPassword(minLength int) *result.Failure {
	return result.NewFailure(result.KindWeakPassword, formatMinLength(minLength))
}

func formatMinLength(n int) string {
	if n == 1 {
		return "Password must be at least 1 character long"
	}
	return fmt.Sprintf("Password must be at least %d characters long", n)
}

// signInFailure refines a sign-in error: a backend rejection of the
// credentials becomes InvalidCredentials with the backend message verbatim.
func signInFailure(err error) *result.Failure {
	f := result.FromError(err, msgSignInUnexpected)
	if f.Kind != result.KindNetworkOrBackend {
		return f
	}
	if result.ErrorCode(err) == "invalid_credentials" || (f.Status == 400 && f.Message == invalidLoginMessage) {
		return rekind(f, result.KindInvalidCredentials)
	}
	return f
}

// signUpFailure maps the backend's password strength rejection to WeakPassword.
func signUpFailure(err error) *result.Failure {
	f := result.FromError(err, msgSignUpUnexpected)
	if f.Kind == result.KindNetworkOrBackend && result.ErrorCode(err) == "weak_password" {
		return rekind(f, result.KindWeakPassword)
	}
	return f
}

func rekind(f *result.Failure, kind result.Kind) *result.Failure {
	out := *f
	out.Kind = kind
	return &out
}
