package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/MrEthical07/authctl"
	"github.com/MrEthical07/authctl/result"
)

// stateView is the printable form of the controller state. Tokens are never
// printed.
type stateView struct {
	Authenticated bool          `json:"authenticated"`
	Initializing  bool          `json:"initializing"`
	Pending       bool          `json:"pending"`
	LastError     string        `json:"last_error,omitempty"`
	User          *authctl.User `json:"user,omitempty"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty"`
	Version       uint64        `json:"version"`
}

func viewState(st authctl.State) stateView {
	v := stateView{
		Authenticated: st.Session != nil,
		Initializing:  st.Initializing,
		Pending:       st.Pending,
		LastError:     string(st.LastError),
		Version:       st.Version,
	}
	if st.Session != nil {
		user := st.Session.User
		v.User = &user
		if !st.Session.ExpiresAt.IsZero() {
			exp := st.Session.ExpiresAt
			v.ExpiresAt = &exp
		}
	}
	return v
}

type report struct {
	Command string    `json:"command"`
	OK      bool      `json:"ok"`
	Kind    string    `json:"kind,omitempty"`
	Message string    `json:"message,omitempty"`
	Status  int       `json:"status,omitempty"`
	Value   any       `json:"value,omitempty"`
	State   stateView `json:"state"`
}

// newReport converts res into a report. view maps a successful value to its
// printable form; nil omits the value.
func newReport[T any](command string, res result.Result[T], view func(T) any, st authctl.State) report {
	r := report{Command: command, OK: res.OK(), State: viewState(st)}
	if f := res.Failure(); f != nil {
		r.Kind = string(f.Kind)
		r.Message = f.Message
		r.Status = f.Status
		return r
	}
	if view != nil {
		r.Value = view(res.Value())
	}
	return r
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func emit(w io.Writer, r report) int {
	if err := writeJSON(w, r); err != nil {
		return exitFailure
	}
	if !r.OK {
		return exitFailure
	}
	return exitOK
}

func sessionView(s *authctl.Session) any {
	if s == nil {
		return nil
	}
	return map[string]any{"user": s.User, "expires_at": s.ExpiresAt}
}
