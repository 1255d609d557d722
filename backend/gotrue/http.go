package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authctl/backend"
	"github.com/MrEthical07/authctl/session"
)

type userResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

func (u userResponse) user() session.User {
	return session.User{ID: u.ID, Email: u.Email, DisplayName: displayName(u.UserMetadata)}
}

func displayName(meta map[string]any) string {
	for _, key := range []string{"display_name", "full_name", "name"} {
		if v, ok := meta[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type,omitempty"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int64         `json:"expires_in,omitempty"`
	ExpiresAt    int64         `json:"expires_at,omitempty"`
	User         *userResponse `json:"user,omitempty"`
}

func (t tokenResponse) session(now time.Time) *session.Session {
	if t.AccessToken == "" || t.User == nil {
		return nil
	}
	s := &session.Session{
		User:         t.User.user(),
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
	}
	switch {
	case t.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0)
	case t.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second).Truncate(time.Second)
	}
	return s
}

// signUpResponse is either a session or, when confirmation is pending, a bare user.
type signUpResponse struct {
	tokenResponse
	userResponse
}

type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func decodeError(status int, body []byte) *backend.Error {
	out := &backend.Error{Status: status}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		out.Message = http.StatusText(status)
		return out
	}

	out.Code = eb.ErrorCode
	if out.Code == "" && len(eb.Code) > 0 {
		var code string
		if json.Unmarshal(eb.Code, &code) == nil {
			out.Code = code
		}
	}
	if out.Code == "" {
		out.Code = eb.Error
	}

	for _, msg := range []string{eb.Msg, eb.Message, eb.ErrorDescription, eb.Error} {
		if msg != "" {
			out.Message = msg
			break
		}
	}
	if out.Message == "" {
		out.Message = http.StatusText(status)
	}
	return out
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, bearer string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("apikey", c.apiKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer drainBody(resp)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	c.logger.Debug("gotrue request", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func drainBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
}

func queryError(params url.Values) *backend.Error {
	code := params.Get("error")
	desc := params.Get("error_description")
	if code == "" && desc == "" {
		return nil
	}
	status := http.StatusBadRequest
	if v, err := strconv.Atoi(params.Get("error_code")); err == nil {
		status = v
	}
	msg := desc
	if msg == "" {
		msg = code
	}
	return &backend.Error{Status: status, Code: code, Message: msg}
}
