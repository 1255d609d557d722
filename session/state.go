package session

import "github.com/MrEthical07/authctl/result"

// State is a snapshot of the controller state.
type State struct {
	// Session is nil iff the user is unauthenticated.
	Session *Session
	// Initializing is true until the bootstrap session fetch or the first auth
	// event resolves.
	Initializing bool
	// Pending is true while a facade operation is in flight.
	Pending bool
	// LastError is the kind of the most recent failed operation, or KindNone.
	LastError result.Kind
	// Version counts applied updates.
	Version uint64
}

// Authenticated reports whether the snapshot holds a session.
func (s State) Authenticated() bool {
	return s.Session != nil
}

func (s State) clone() State {
	s.Session = s.Session.Clone()
	return s
}

// Field is one optional member of an Update.
type Field[T any] struct {
	Value T
	Set   bool
}

// Set marks a field for update with v.
func Set[T any](v T) Field[T] {
	return Field[T]{Value: v, Set: true}
}

// Update is a partial State merged by Store.Apply. Unset fields are left alone.
type Update struct {
	Session      Field[*Session]
	Initializing Field[bool]
	Pending      Field[bool]
	LastError    Field[result.Kind]
}

// Merge returns u with every field set in other overriding u.
func (u Update) Merge(other Update) Update {
	if other.Session.Set {
		u.Session = other.Session
	}
	if other.Initializing.Set {
		u.Initializing = other.Initializing
	}
	if other.Pending.Set {
		u.Pending = other.Pending
	}
	if other.LastError.Set {
		u.LastError = other.LastError
	}
	return u
}

// Empty reports whether u changes nothing.
func (u Update) Empty() bool {
	return !u.Session.Set && !u.Initializing.Set && !u.Pending.Set && !u.LastError.Set
}
