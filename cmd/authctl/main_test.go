package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrEthical07/authctl"
)

type cliReport struct {
	Command string         `json:"command"`
	OK      bool           `json:"ok"`
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Value   map[string]any `json:"value"`
	State   struct {
		Authenticated bool `json:"authenticated"`
		Initializing  bool `json:"initializing"`
		Pending       bool `json:"pending"`
		User          *struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	} `json:"state"`
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("AUTHCTL_BACKEND_URL", "")
	full := append([]string{"-env-file", filepath.Join(t.TempDir(), "missing.env")}, args...)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func decodeReport(t *testing.T, out string) cliReport {
	t.Helper()
	var r cliReport
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	return r
}

func TestRunUsage(t *testing.T) {
	if code, _, _ := runCLI(t); code != exitUsage {
		t.Fatalf("expected usage exit without command, got %d", code)
	}
	code, _, stderr := runCLI(t, "bogus")
	if code != exitUsage {
		t.Fatalf("expected usage exit for unknown command, got %d", code)
	}
	if !strings.Contains(stderr, `unknown command "bogus"`) {
		t.Fatalf("expected unknown command message, got %q", stderr)
	}
}

func TestRunSignInDemo(t *testing.T) {
	code, out, stderr := runCLI(t, "signin", "-email", demoEmail, "-password", demoPassword)
	if code != exitOK {
		t.Fatalf("expected success, got %d: %s", code, stderr)
	}
	r := decodeReport(t, out)
	if !r.OK || !r.State.Authenticated || r.State.Pending {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.State.User == nil || r.State.User.Email != demoEmail {
		t.Fatalf("expected demo user in state, got %+v", r.State.User)
	}
	if strings.Contains(out, "access-") || strings.Contains(out, "refresh-") {
		t.Fatalf("tokens must not be printed:\n%s", out)
	}
}

func TestRunSignInWrongPassword(t *testing.T) {
	code, out, _ := runCLI(t, "signin", "-email", demoEmail, "-password", "nope")
	if code != exitFailure {
		t.Fatalf("expected failure exit, got %d", code)
	}
	r := decodeReport(t, out)
	if r.OK || r.Kind != "invalid_credentials" || r.State.Authenticated {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestRunSignUpWeakPassword(t *testing.T) {
	code, out, _ := runCLI(t, "signup", "-email", "new@example.com", "-password", "abc")
	if code != exitFailure {
		t.Fatalf("expected failure exit, got %d", code)
	}
	if r := decodeReport(t, out); r.Kind != "weak_password" {
		t.Fatalf("expected weak_password, got %+v", r)
	}
}

func TestRunRedirectDemoToken(t *testing.T) {
	uri := "caloriee://auth/callback#access_token=" + demoToken + "&refresh_token=r1"
	code, out, stderr := runCLI(t, "redirect", uri)
	if code != exitOK {
		t.Fatalf("expected success, got %d: %s", code, stderr)
	}
	if r := decodeReport(t, out); !r.State.Authenticated {
		t.Fatalf("expected authenticated state, got %+v", r)
	}

	code, out, _ = runCLI(t, "redirect", "caloriee://home")
	if code != exitFailure {
		t.Fatalf("expected failure exit, got %d", code)
	}
	if r := decodeReport(t, out); r.Kind != "no_session_in_url" {
		t.Fatalf("expected no_session_in_url, got %+v", r)
	}
}

func TestRunOAuthPrintsURL(t *testing.T) {
	code, out, _ := runCLI(t, "oauth", "-provider", "github")
	if code != exitOK {
		t.Fatalf("expected success, got %d", code)
	}
	r := decodeReport(t, out)
	u, _ := r.Value["authorization_url"].(string)
	if !strings.Contains(u, "provider=github") {
		t.Fatalf("expected provider in url, got %q", u)
	}
}

func TestRunStatusUnauthenticated(t *testing.T) {
	code, out, _ := runCLI(t, "status")
	if code != exitOK {
		t.Fatalf("expected success, got %d", code)
	}
	var st stateView
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if st.Authenticated || st.Initializing {
		t.Fatalf("expected settled unauthenticated state, got %+v", st)
	}
}

func TestOpenStorageDrivers(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cases := []authctl.StorageConfig{
		{Driver: authctl.StorageMemory},
		{Driver: authctl.StorageSQLite, Path: filepath.Join(t.TempDir(), "authctl.db")},
		{Driver: authctl.StorageRedis, Prefix: "test:"},
		{Driver: authctl.StorageMemory, SealKey: "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="},
	}
	for _, sc := range cases {
		cfg := authctl.DefaultConfig()
		cfg.Storage = sc
		a := &app{cfg: cfg, logger: logger}
		store, err := a.openStorage(ctx)
		if err != nil {
			t.Fatalf("%s: open: %v", sc.Driver, err)
		}
		if err := store.Set(ctx, "k", []byte("v")); err != nil {
			t.Fatalf("%s: set: %v", sc.Driver, err)
		}
		got, err := store.Get(ctx, "k")
		if err != nil || string(got) != "v" {
			t.Fatalf("%s: get = %q, %v", sc.Driver, got, err)
		}
		if err := a.Close(); err != nil {
			t.Fatalf("%s: close: %v", sc.Driver, err)
		}
	}
}
