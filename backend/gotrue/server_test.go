package gotrue

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/authctl/jwt"
)

const testAPIKey = "anon-key"

var testSecret = []byte("super-secret-jwt-token-with-at-least-32-characters")

type fakeUser struct {
	id       string
	email    string
	password string
	name     string
}

type fakeCode struct {
	challenge string
	userID    string
}

// fakeService is a minimal GoTrue lookalike.
type fakeService struct {
	t         *testing.T
	server    *httptest.Server
	inspector *jwt.Inspector

	mu          sync.Mutex
	ttl         time.Duration
	confirm     bool
	users       map[string]*fakeUser
	refresh     map[string]string
	codes       map[string]fakeCode
	revoked     map[string]bool
	recovered   []string
	redirects   []string
	hits        map[string]int
	seq         int
	legacyError bool
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	insp, err := jwt.New(jwt.Config{SigningMethod: jwt.MethodHS256, Secret: testSecret})
	if err != nil {
		t.Fatalf("jwt.New failed: %v", err)
	}
	fs := &fakeService{
		t:         t,
		inspector: insp,
		ttl:       time.Hour,
		users:     make(map[string]*fakeUser),
		refresh:   make(map[string]string),
		codes:     make(map[string]fakeCode),
		revoked:   make(map[string]bool),
		hits:      make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/signup", fs.handleSignUp)
	mux.HandleFunc("/token", fs.handleToken)
	mux.HandleFunc("/user", fs.handleUser)
	mux.HandleFunc("/logout", fs.handleLogout)
	mux.HandleFunc("/recover", fs.handleRecover)
	fs.server = httptest.NewServer(fs.checkKey(mux))
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *fakeService) addUser(email, password, name string) *fakeUser {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.seq++
	u := &fakeUser{id: fmt.Sprintf("user-%d", fs.seq), email: email, password: password, name: name}
	fs.users[email] = u
	return u
}

func (fs *fakeService) addCode(code, verifier, userID string) {
	sum := sha256.Sum256([]byte(verifier))
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.codes[code] = fakeCode{challenge: base64.RawURLEncoding.EncodeToString(sum[:]), userID: userID}
}

func (fs *fakeService) set(fn func()) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fn()
}

func (fs *fakeService) redirect(i int) string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if i >= len(fs.redirects) {
		return ""
	}
	return fs.redirects[i]
}

func (fs *fakeService) hit(path string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.hits[path]
}

func (fs *fakeService) checkKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.hits[r.URL.Path]++
		fs.mu.Unlock()
		if r.Header.Get("apikey") != testAPIKey {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "No API key found in request"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (fs *fakeService) fail(w http.ResponseWriter, status int, code, msg string) {
	if fs.legacyError {
		writeJSON(w, status, map[string]any{"error": code, "error_description": msg})
		return
	}
	writeJSON(w, status, map[string]any{"code": status, "error_code": code, "msg": msg})
}

func (u *fakeUser) json() map[string]any {
	return map[string]any{
		"id":            u.id,
		"email":         u.email,
		"user_metadata": map[string]any{"display_name": u.name},
	}
}

// issue must be called with fs.mu held.
func (fs *fakeService) issue(u *fakeUser, ttl time.Duration) map[string]any {
	fs.seq++
	access, err := fs.inspector.Issue(jwt.Claims{
		Email:     u.email,
		SessionID: fmt.Sprintf("sess-%d", fs.seq),
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   u.id,
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}, 0)
	if err != nil {
		fs.t.Errorf("issue token: %v", err)
	}
	refresh := fmt.Sprintf("refresh-%d", fs.seq)
	fs.refresh[refresh] = u.email
	return map[string]any{
		"access_token":  access,
		"token_type":    "bearer",
		"refresh_token": refresh,
		"expires_in":    int64(ttl / time.Second),
		"expires_at":    time.Now().Add(ttl).Unix(),
		"user":          u.json(),
	}
}

func (fs *fakeService) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string            `json:"email"`
		Password string            `json:"password"`
		Data     map[string]string `json:"data"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.redirects = append(fs.redirects, r.URL.Query().Get("redirect_to"))
	if _, exists := fs.users[body.Email]; exists {
		fs.fail(w, http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
		return
	}
	if len(body.Password) < 6 {
		fs.fail(w, http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters.")
		return
	}
	fs.seq++
	u := &fakeUser{id: fmt.Sprintf("user-%d", fs.seq), email: body.Email, password: body.Password, name: body.Data["display_name"]}
	fs.users[body.Email] = u
	if fs.confirm {
		writeJSON(w, http.StatusOK, u.json())
		return
	}
	writeJSON(w, http.StatusOK, fs.issue(u, fs.ttl))
}

func (fs *fakeService) handleToken(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	switch r.URL.Query().Get("grant_type") {
	case "password":
		u, ok := fs.users[body["email"]]
		if !ok || u.password != body["password"] {
			fs.fail(w, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
			return
		}
		writeJSON(w, http.StatusOK, fs.issue(u, fs.ttl))
	case "refresh_token":
		email, ok := fs.refresh[body["refresh_token"]]
		if !ok {
			fs.fail(w, http.StatusBadRequest, "refresh_token_not_found", "Invalid Refresh Token: Refresh Token Not Found")
			return
		}
		delete(fs.refresh, body["refresh_token"])
		writeJSON(w, http.StatusOK, fs.issue(fs.users[email], fs.ttl))
	case "pkce":
		code, ok := fs.codes[body["auth_code"]]
		sum := sha256.Sum256([]byte(body["code_verifier"]))
		if !ok || code.challenge != base64.RawURLEncoding.EncodeToString(sum[:]) {
			fs.fail(w, http.StatusBadRequest, "bad_code_verifier", "code challenge does not match previously saved code verifier")
			return
		}
		delete(fs.codes, body["auth_code"])
		for _, u := range fs.users {
			if u.id == code.userID {
				writeJSON(w, http.StatusOK, fs.issue(u, fs.ttl))
				return
			}
		}
		fs.fail(w, http.StatusNotFound, "user_not_found", "User not found")
	default:
		fs.fail(w, http.StatusBadRequest, "unsupported_grant_type", "unsupported grant type")
	}
}

func (fs *fakeService) handleUser(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	claims, err := fs.inspector.Parse(token)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err != nil || fs.revoked[token] {
		fs.fail(w, http.StatusUnauthorized, "bad_jwt", "invalid JWT")
		return
	}
	for _, u := range fs.users {
		if u.id == claims.Subject {
			writeJSON(w, http.StatusOK, u.json())
			return
		}
	}
	fs.fail(w, http.StatusNotFound, "user_not_found", "User not found")
}

func (fs *fakeService) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.revoked[token] {
		fs.fail(w, http.StatusNotFound, "session_not_found", "Session not found")
		return
	}
	fs.revoked[token] = true
	w.WriteHeader(http.StatusNoContent)
}

func (fs *fakeService) handleRecover(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.recovered = append(fs.recovered, body["email"])
	fs.redirects = append(fs.redirects, r.URL.Query().Get("redirect_to"))
	writeJSON(w, http.StatusOK, map[string]any{})
}
