package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("super-secret-jwt-token-with-at-least-32-characters")

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func userClaims(sub string) Claims {
	return Claims{
		Email:        sub + "@example.com",
		SessionID:    "sess-" + sub,
		UserMetadata: map[string]any{"display_name": " Ada "},
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject: sub,
		},
	}
}

func TestHS256RoundTrip(t *testing.T) {
	insp, err := New(Config{SigningMethod: MethodHS256, Secret: testSecret, Issuer: "auth"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	token, err := insp.Issue(userClaims("u1"), time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := insp.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	user := claims.User()
	if user.ID != "u1" || user.Email != "u1@example.com" || user.DisplayName != "Ada" {
		t.Fatalf("unexpected user %+v", user)
	}
	if claims.SessionID != "sess-u1" {
		t.Fatalf("unexpected session id %q", claims.SessionID)
	}
	if time.Until(claims.Expiry()) <= 0 {
		t.Fatal("expected future expiry")
	}
}

func TestParseRejectsWrongSecretAndExpired(t *testing.T) {
	insp, _ := New(Config{SigningMethod: MethodHS256, Secret: testSecret})
	other, _ := New(Config{SigningMethod: MethodHS256, Secret: []byte("a-different-secret-of-sufficient-length")})

	token, err := other.Issue(userClaims("u1"), time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := insp.Parse(token); err == nil {
		t.Fatal("expected wrong secret to be rejected")
	}

	expired := userClaims("u1")
	expired.ExpiresAt = gjwt.NewNumericDate(time.Now().Add(-time.Hour))
	token, err = insp.Issue(expired, 0)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := insp.Parse(token); !errors.Is(err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	insp, err := New(Config{SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	hs, _ := New(Config{SigningMethod: MethodHS256, Secret: testSecret})
	token, _ := hs.Issue(userClaims("u1"), time.Minute)
	if _, err := insp.Parse(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestEd25519KeyRotation(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)

	signer, err := New(Config{SigningMethod: MethodEd25519, PrivateKey: priv1, PublicKey: pub1, KeyID: "k1"})
	if err != nil {
		t.Fatalf("New signer failed: %v", err)
	}
	token, err := signer.Issue(userClaims("u1"), time.Minute)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	verifier, _ := New(Config{SigningMethod: MethodEd25519, VerifyKeys: map[string][]byte{"k1": pub1, "k2": pub2}})
	if _, err := verifier.Parse(token); err != nil {
		t.Fatalf("expected rotated key to verify: %v", err)
	}

	stale, _ := New(Config{SigningMethod: MethodEd25519, VerifyKeys: map[string][]byte{"k2": pub2}})
	if _, err := stale.Parse(token); err == nil {
		t.Fatal("expected unknown kid to be rejected")
	}
}

func TestUnverifiedDecode(t *testing.T) {
	hs, _ := New(Config{SigningMethod: MethodHS256, Secret: testSecret})
	token, _ := hs.Issue(userClaims("u1"), time.Hour)

	insp, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if insp.Verifies() {
		t.Fatal("expected zero config to skip verification")
	}
	s, err := insp.Session(token, "r1")
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if !s.Valid() || s.User.ID != "u1" || s.RefreshToken != "r1" {
		t.Fatalf("unexpected session %+v", s)
	}

	if _, err := insp.Parse("not.a.jwt"); err == nil {
		t.Fatal("expected malformed token to be rejected")
	}
	if _, err := insp.Issue(userClaims("u1"), time.Minute); !errors.Is(err, ErrSigningKeyRequired) {
		t.Fatalf("expected ErrSigningKeyRequired, got %v", err)
	}
}

func TestParseRequiresSubject(t *testing.T) {
	insp, _ := New(Config{SigningMethod: MethodHS256, Secret: testSecret})
	c := userClaims("")
	token, _ := insp.Issue(c, time.Minute)
	if _, err := insp.Parse(token); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cases := []Config{
		{SigningMethod: MethodHS256},
		{SigningMethod: MethodEd25519},
		{SigningMethod: "rs256"},
		{Leeway: time.Hour},
		{SigningMethod: MethodEd25519, VerifyKeys: map[string][]byte{" ": make([]byte, ed25519.PublicKeySize)}},
	}
	for i, cfg := range cases {
		if _, err := New(cfg); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}
}

// FuzzInspectorParse checks that arbitrary input never panics the parser.
func FuzzInspectorParse(f *testing.F) {
	insp, err := New(Config{SigningMethod: MethodHS256, Secret: testSecret})
	if err != nil {
		f.Fatal(err)
	}
	valid, err := insp.Issue(userClaims("seed"), time.Minute)
	if err != nil {
		f.Fatal(err)
	}
	f.Add(valid)
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJub25lIn0.eyJzdWIiOiJ0ZXN0In0.")

	unverified, _ := New(Config{})
	f.Fuzz(func(t *testing.T, input string) {
		for _, p := range []*Inspector{insp, unverified} {
			claims, err := p.Parse(input)
			if err == nil && claims == nil {
				t.Fatal("Parse returned nil claims without error")
			}
		}
	})
}
