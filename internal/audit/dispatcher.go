package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config controls how the dispatcher buffers events on their way to the sink.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking. An event that finds the buffer
	// full is dropped and handed to OnDrop.
	DropIfFull bool
	OnDrop     func(Event)
	// NewID stamps events that arrive without an EventID. Defaults to a
	// random UUID.
	NewID func() string
	Now   func() time.Time
}

// Stats counts events by outcome since the dispatcher started.
type Stats struct {
	Queued    uint64
	Delivered uint64
	Dropped   uint64
}

// Dispatcher relays audit events to a sink on its own goroutine, so a slow
// sink never holds up a login or a rotation.
type Dispatcher struct {
	cfg   Config
	sink  Sink
	queue chan Event
	stop  chan struct{}

	relayWG  sync.WaitGroup
	stopOnce sync.Once
	closing  atomic.Bool

	queued    atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewDispatcher starts the relay goroutine. It returns nil when auditing is
// disabled; a nil Dispatcher accepts and discards events.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:   cfg,
		sink:  sink,
		queue: make(chan Event, cfg.BufferSize),
		stop:  make(chan struct{}),
	}

	d.relayWG.Add(1)
	go d.relay()

	return d
}

func (d *Dispatcher) relay() {
	defer d.relayWG.Done()

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	d.sink.Emit(context.Background(), event)
	d.delivered.Add(1)
}

// Emit stamps event and queues it for delivery. It reports whether the
// event was queued.
//
// With DropIfFull set a full buffer drops the event at once. Otherwise Emit
// waits for room, and an event abandoned because ctx ended is counted as
// dropped as well.
func (d *Dispatcher) Emit(ctx context.Context, event Event) bool {
	if d == nil || d.closing.Load() {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.stamp(&event)

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
			d.queued.Add(1)
			return true
		case <-d.stop:
			return false
		default:
			d.drop(event)
			return false
		}
	}

	select {
	case d.queue <- event:
		d.queued.Add(1)
		return true
	case <-ctx.Done():
		d.drop(event)
		return false
	case <-d.stop:
		return false
	}
}

func (d *Dispatcher) stamp(event *Event) {
	if event.EventID == "" {
		event.EventID = d.cfg.NewID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.cfg.Now().UTC()
	}
}

func (d *Dispatcher) drop(event Event) {
	d.dropped.Add(1)
	if d.cfg.OnDrop != nil {
		d.cfg.OnDrop(event)
	}
}

// Close stops accepting events and drains the buffer into the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		d.relayWG.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Queued:    d.queued.Load(),
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
	}
}
