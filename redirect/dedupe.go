package redirect

import (
	"context"
	"crypto/sha256"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/MrEthical07/authctl/result"
	"github.com/MrEthical07/authctl/session"
)

// DefaultDedupeCapacity is the number of handled URIs remembered by a Deduper
// created with a non-positive capacity.
const DefaultDedupeCapacity = 64

// MessageAlreadyHandled is the failure message for a URI that was resolved
// before but whose outcome is no longer remembered.
const MessageAlreadyHandled = "Auth callback already handled"

// Deduper resolves each distinct URI at most once. Concurrent deliveries of the
// same URI share a single in-flight resolution; later deliveries get the
// remembered outcome.
type Deduper struct {
	next     Resolver
	group    singleflight.Group
	mu       sync.Mutex
	handled  map[string]result.Result[*session.Session]
	order    []string
	seen     map[[sha256.Size]byte]struct{}
	capacity int
}

// Deduplicate wraps next. Outcomes are remembered for the capacity most recent
// URIs. An older URI is still recognized by its digest, so it is never resolved
// again; its duplicate delivery reports KindNoSessionInURL with
// MessageAlreadyHandled. Digests are kept for the Deduper's lifetime.
func Deduplicate(next Resolver, capacity int) *Deduper {
	if capacity <= 0 {
		capacity = DefaultDedupeCapacity
	}
	return &Deduper{
		next:     next,
		handled:  make(map[string]result.Result[*session.Session], capacity),
		seen:     make(map[[sha256.Size]byte]struct{}, capacity),
		capacity: capacity,
	}
}

// Strategy reports the wrapped resolver's strategy.
func (d *Deduper) Strategy() Strategy {
	return d.next.Strategy()
}

// Resolve implements Resolver.
func (d *Deduper) Resolve(ctx context.Context, uri string) result.Result[*session.Session] {
	res, _ := d.ResolveOnce(ctx, uri)
	return res
}

// ResolveOnce resolves uri unless it was already handled. duplicate is true when
// this call did not perform the resolution itself.
func (d *Deduper) ResolveOnce(ctx context.Context, uri string) (res result.Result[*session.Session], duplicate bool) {
	if cached, ok := d.lookup(uri); ok {
		return cloneResult(cached), true
	}

	executed := false
	v, _, _ := d.group.Do(uri, func() (any, error) {
		if cached, ok := d.lookup(uri); ok {
			return cached, nil
		}
		executed = true
		out := d.next.Resolve(ctx, uri)
		d.remember(uri, cloneResult(out))
		return out, nil
	})
	res = v.(result.Result[*session.Session])
	if !executed {
		res = cloneResult(res)
	}
	return res, !executed
}

func cloneResult(res result.Result[*session.Session]) result.Result[*session.Session] {
	if !res.OK() {
		return res
	}
	return result.Ok(res.Value().Clone())
}

// Handled reports whether uri has already been resolved.
func (d *Deduper) Handled(uri string) bool {
	_, ok := d.lookup(uri)
	return ok
}

func (d *Deduper) lookup(uri string) (result.Result[*session.Session], bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if res, ok := d.handled[uri]; ok {
		return res, true
	}
	if _, ok := d.seen[sha256.Sum256([]byte(uri))]; ok {
		return result.Fail[*session.Session](result.NewFailure(result.KindNoSessionInURL, MessageAlreadyHandled)), true
	}
	return result.Result[*session.Session]{}, false
}

func (d *Deduper) remember(uri string, res result.Result[*session.Session]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handled[uri]; ok {
		return
	}
	d.handled[uri] = res
	d.seen[sha256.Sum256([]byte(uri))] = struct{}{}
	d.order = append(d.order, uri)
	for len(d.order) > d.capacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.handled, oldest)
	}
}
