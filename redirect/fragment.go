package redirect

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/MrEthical07/authctl/backend"
)

// Tokens is what an auth callback fragment can carry.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	// Type is the callback type reported by the backend, e.g. "recovery" or "signup".
	Type      string
	ExpiresIn int64
	ExpiresAt int64

	ErrorCode        string
	ErrorDescription string
	ErrorStatus      int
}

// ParseFragment reads callback parameters from the fragment of uri. A URI
// without a fragment yields empty Tokens and no error.
func ParseFragment(uri string) (Tokens, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Tokens{}, fmt.Errorf("parse redirect uri: %w", err)
	}

	fragment := u.EscapedFragment()
	if fragment == "" {
		return Tokens{}, nil
	}

	values, err := url.ParseQuery(fragment)
	if err != nil {
		return Tokens{}, fmt.Errorf("parse redirect fragment: %w", err)
	}

	tokens := Tokens{
		AccessToken:      values.Get("access_token"),
		RefreshToken:     values.Get("refresh_token"),
		Type:             values.Get("type"),
		ErrorCode:        values.Get("error"),
		ErrorDescription: values.Get("error_description"),
	}
	if v := values.Get("expires_in"); v != "" {
		tokens.ExpiresIn, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := values.Get("expires_at"); v != "" {
		tokens.ExpiresAt, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := values.Get("error_code"); v != "" {
		if status, err := strconv.Atoi(v); err == nil {
			tokens.ErrorStatus = status
		} else if tokens.ErrorCode == "" {
			tokens.ErrorCode = v
		}
	}
	return tokens, nil
}

// providerError returns the error the identity provider reported in the
// fragment, or nil.
func (t Tokens) providerError() *backend.Error {
	if t.ErrorCode == "" && t.ErrorDescription == "" {
		return nil
	}
	msg := t.ErrorDescription
	if msg == "" {
		msg = t.ErrorCode
	}
	return &backend.Error{Status: t.ErrorStatus, Code: t.ErrorCode, Message: msg}
}
