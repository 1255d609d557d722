package audit

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Redacted replaces the value of a credential-bearing metadata key.
const Redacted = "[redacted]"

// sensitiveKeys are metadata keys whose values never reach a sink.
var sensitiveKeys = []string{"password", "token", "secret", "code_verifier"}

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events while the buffer is full instead of waiting for
	// room. Drops are counted per event type.
	DropIfFull bool
	Logger     *slog.Logger
}

// Stats is a point-in-time view of dispatcher health.
type Stats struct {
	Delivered     uint64
	Dropped       uint64
	SinkPanics    uint64
	DroppedByType map[string]uint64
}

// Dispatcher relays controller events to a sink on its own goroutine. A
// panicking sink loses only the event it panicked on; the relay keeps running.
type Dispatcher struct {
	sink       Sink
	logger     *slog.Logger
	dropIfFull bool

	queue   chan Event
	stop    chan struct{}
	drained chan struct{}

	closing   atomic.Bool
	closeOnce sync.Once

	delivered  atomic.Uint64
	sinkPanics atomic.Uint64

	dropMu  sync.Mutex
	dropped map[string]uint64
}

// NewDispatcher starts a dispatcher. It returns nil when cfg is disabled; a nil
// *Dispatcher accepts and discards every call.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		sink:       sink,
		logger:     logger.With("component", "audit"),
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, cfg.BufferSize),
		stop:       make(chan struct{}),
		drained:    make(chan struct{}),
		dropped:    make(map[string]uint64),
	}
	go d.relay()
	return d
}

func (d *Dispatcher) relay() {
	defer close(d.drained)
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			d.sinkPanics.Add(1)
			d.logger.Warn("audit sink panicked", "event_type", event.EventType, "panic", fmt.Sprint(rec))
		}
	}()
	d.sink.Emit(context.Background(), event)
	d.delivered.Add(1)
}

// Emit queues event and reports whether it was accepted. The event is stamped
// when it has no timestamp, and its metadata is copied with credential values
// redacted, so the caller may reuse the map. Without DropIfFull, Emit waits for
// room until ctx is done.
func (d *Dispatcher) Emit(ctx context.Context, event Event) bool {
	if d == nil || d.closing.Load() {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	event = normalize(event)

	if d.dropIfFull {
		select {
		case d.queue <- event:
			return true
		case <-d.stop:
			return false
		default:
			d.drop(event.EventType)
			return false
		}
	}

	select {
	case d.queue <- event:
		return true
	case <-ctx.Done():
		d.drop(event.EventType)
		return false
	case <-d.stop:
		return false
	}
}

func normalize(event Event) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if len(event.Metadata) == 0 {
		event.Metadata = nil
		return event
	}
	event.Metadata = maps.Clone(event.Metadata)
	for k := range event.Metadata {
		if isSensitive(k) {
			event.Metadata[k] = Redacted
		}
	}
	return event
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) drop(eventType string) {
	d.dropMu.Lock()
	d.dropped[eventType]++
	d.dropMu.Unlock()
}

// Close stops accepting events and waits until the queued ones reach the sink.
// It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		<-d.drained
	})
}

// Dropped returns the total number of dropped events.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	d.dropMu.Lock()
	defer d.dropMu.Unlock()
	var total uint64
	for _, n := range d.dropped {
		total += n
	}
	return total
}

// Stats returns delivery, drop, and sink panic counts.
func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{DroppedByType: map[string]uint64{}}
	}
	d.dropMu.Lock()
	byType := maps.Clone(d.dropped)
	d.dropMu.Unlock()

	var total uint64
	for _, n := range byType {
		total += n
	}
	return Stats{
		Delivered:     d.delivered.Load(),
		Dropped:       total,
		SinkPanics:    d.sinkPanics.Load(),
		DroppedByType: byType,
	}
}
