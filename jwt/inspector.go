package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/authctl/session"
)

// SigningMethod selects how tokens are verified.
type SigningMethod string

const (
	// MethodNone decodes tokens without verifying their signature.
	MethodNone SigningMethod = ""
	// MethodHS256 verifies with a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 verifies with Ed25519 public keys.
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrMissingSubject is returned for tokens without a sub claim.
	ErrMissingSubject = errors.New("token has no subject")
	// ErrSigningKeyRequired is returned by Issue when the inspector cannot sign.
	ErrSigningKeyRequired = errors.New("signing key required")
)

// Config configures an Inspector. The zero value decodes without verifying.
type Config struct {
	SigningMethod SigningMethod
	// Secret is the HS256 key. It signs and verifies.
	Secret []byte
	// PublicKey verifies Ed25519 tokens without a kid header.
	PublicKey []byte
	// PrivateKey signs Ed25519 tokens. Optional.
	PrivateKey []byte
	// VerifyKeys maps kid to Ed25519 public key for rotated keys.
	VerifyKeys map[string][]byte
	KeyID      string
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

// Claims are the identity claims carried by a backend access token.
type Claims struct {
	Email        string         `json:"email,omitempty"`
	Role         string         `json:"role,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

// DisplayName returns the first non-empty display name found in user metadata.
func (c *Claims) DisplayName() string {
	for _, key := range []string{"display_name", "full_name", "name"} {
		if v, ok := c.UserMetadata[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// User converts the claims to the session principal.
func (c *Claims) User() session.User {
	return session.User{
		ID:          c.Subject,
		Email:       c.Email,
		DisplayName: c.DisplayName(),
	}
}

// Expiry returns the expiry time, or the zero time if the token has none.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Inspector decodes and optionally verifies access tokens. It is safe for
// concurrent use.
type Inspector struct {
	config Config
}

// New validates cfg and returns an Inspector.
func New(cfg Config) (*Inspector, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodNone:
	case MethodHS256:
		if len(cfg.Secret) == 0 {
			return nil, errors.New("hs256 requires secret")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Inspector{config: cfg}, nil
}

// Verifies reports whether Parse checks signatures.
func (i *Inspector) Verifies() bool {
	return i.config.SigningMethod != MethodNone
}

// Parse decodes token. With a verification key it checks the signature, the
// registered claims and the configured issuer and audience; without one it only
// decodes. A subject is always required.
func (i *Inspector) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	if !i.Verifies() {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, err
		}
		if claims.Subject == "" {
			return nil, ErrMissingSubject
		}
		return claims, nil
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if i.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(i.config.Leeway))
	}
	if i.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.config.Issuer))
	}
	if i.config.Audience != "" {
		options = append(options, jwt.WithAudience(i.config.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, claims, i.keyFunc)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// Session builds a session from an access/refresh token pair using the access
// token's claims.
func (i *Inspector) Session(accessToken, refreshToken string) (*session.Session, error) {
	claims, err := i.Parse(accessToken)
	if err != nil {
		return nil, err
	}
	return &session.Session{
		User:         claims.User(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    claims.Expiry(),
	}, nil
}

// Issue signs claims with a lifetime of ttl. It is used by local backends and
// tests; production tokens come from the identity backend.
func (i *Inspector) Issue(claims Claims, ttl time.Duration) (string, error) {
	signKey, err := i.signKey()
	if err != nil {
		return "", err
	}
	now := time.Now()
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.Issuer == "" {
		claims.Issuer = i.config.Issuer
	}
	if i.config.Audience != "" && len(claims.Audience) == 0 {
		claims.Audience = jwt.ClaimStrings{i.config.Audience}
	}

	token := jwt.NewWithClaims(i.method(), claims)
	if i.config.KeyID != "" {
		token.Header["kid"] = i.config.KeyID
	}
	return token.SignedString(signKey)
}

func (i *Inspector) keyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != i.method().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	if i.config.SigningMethod == MethodHS256 {
		return i.config.Secret, nil
	}

	if len(i.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := i.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return parseEdPublicKey(key)
	}
	return parseEdPublicKey(i.config.PublicKey)
}

func (i *Inspector) method() jwt.SigningMethod {
	if i.config.SigningMethod == MethodEd25519 {
		return jwt.SigningMethodEdDSA
	}
	return jwt.SigningMethodHS256
}

func (i *Inspector) signKey() (any, error) {
	switch i.config.SigningMethod {
	case MethodHS256:
		return i.config.Secret, nil
	case MethodEd25519:
		if len(i.config.PrivateKey) == 0 {
			return nil, ErrSigningKeyRequired
		}
		return parseEdPrivateKey(i.config.PrivateKey)
	default:
		return nil, ErrSigningKeyRequired
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, err
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, err
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key")
	}
	return edKey, nil
}
