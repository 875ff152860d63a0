// Package bus delivers settings changes to subscribers with a trailing-edge debounce.
//
// A single user action often mutates several settings in quick succession. Every
// Publish restarts the debounce timer, and only when the window passes without another
// mutation does the bus emit one Event carrying the latest snapshot. A superseded
// timer is stopped, and intermediate snapshots are never delivered.
//
// Events are delivered by one dispatcher goroutine in the order they settled. Each
// subscriber runs with panic recovery, so a failing subscriber does not keep others
// from receiving the event.
package bus

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/mawaqit/internal/logger"
	"github.com/rewired-gh/mawaqit/internal/models"
)

// DefaultWindow is the debounce window used when none is configured.
const DefaultWindow = 300 * time.Millisecond

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("bus closed")

// Event is one settled settings change.
type Event struct {
	ID        string                  `json:"id"`
	Snapshot  models.SettingsSnapshot `json:"snapshot"`
	Mutations int                     `json:"mutations"`
	FirstAt   time.Time               `json:"first_at"`
	SettledAt time.Time               `json:"settled_at"`
}

// Handler receives settled events. Returned errors are logged.
type Handler func(ctx context.Context, ev Event) error

type subscriber struct {
	id      uint64
	name    string
	handler Handler
}

// queued is a settled event waiting for the dispatcher. done closes once every
// subscriber has been called.
type queued struct {
	ev   Event
	done chan struct{}
}

type pending struct {
	snapshot  models.SettingsSnapshot
	mutations int
	firstAt   time.Time
}

// Bus is a debounced settings-change publisher. The zero value is not usable; call New.
type Bus struct {
	window time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending *pending
	subs    map[uint64]subscriber
	nextID  uint64
	queue    []queued
	inflight chan struct{}
	closed   bool

	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	published atomic.Uint64
	emitted   atomic.Uint64
}

// New starts a bus with the given debounce window. A non-positive window uses DefaultWindow.
func New(window time.Duration) *Bus {
	if window <= 0 {
		window = DefaultWindow
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		window: window,
		subs:   make(map[uint64]subscriber),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	go b.dispatch()
	return b
}

// Window returns the debounce window.
func (b *Bus) Window() time.Duration {
	return b.window
}

// Publish records a mutation whose resulting full snapshot is snap and restarts the
// debounce window.
func (b *Bus) Publish(snap models.SettingsSnapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.published.Add(1)

	if b.timer != nil {
		b.timer.Stop()
	}
	if b.pending == nil {
		b.pending = &pending{firstAt: time.Now()}
	}
	b.pending.snapshot = snap
	b.pending.mutations++

	b.gen++
	gen := b.gen
	b.timer = time.AfterFunc(b.window, func() { b.settle(gen) })
	return nil
}

// settle emits the pending event if gen is still the latest timer.
func (b *Bus) settle(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A Stop that lost the race with the timer firing leaves an outdated callback.
	if gen != b.gen || b.pending == nil || b.closed {
		return
	}
	b.emitLocked()
}

// emitLocked turns the pending mutation burst into a queued event.
func (b *Bus) emitLocked() {
	p := b.pending
	b.pending = nil
	b.timer = nil

	ev := Event{
		ID:        uuid.NewString(),
		Snapshot:  p.snapshot,
		Mutations: p.mutations,
		FirstAt:   p.firstAt,
		SettledAt: time.Now(),
	}
	b.queue = append(b.queue, queued{ev: ev, done: make(chan struct{})})
	b.emitted.Add(1)

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Flush emits a pending event immediately instead of waiting for the window, then
// waits until every settled event, the flushed one included, has been delivered to
// all subscribers. It reports whether there was a pending burst to emit.
// Flush must not be called from a subscriber.
func (b *Bus) Flush() bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	flushed := false
	if b.pending != nil {
		if b.timer != nil {
			b.timer.Stop()
		}
		b.gen++
		b.emitLocked()
		flushed = true
	}
	// Delivery is ordered, so the last queued event finishing implies the rest did.
	wait := b.inflight
	if n := len(b.queue); n > 0 {
		wait = b.queue[n-1].done
	}
	b.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-b.exited:
		}
	}
	return flushed
}

// Pending reports whether a mutation burst is waiting for its window to pass.
func (b *Bus) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending != nil
}

// Subscribe registers handler and returns a function that removes it.
func (b *Bus) Subscribe(name string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = subscriber{id: id, name: name, handler: handler}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Stats reports how many mutations were published and how many events were emitted.
func (b *Bus) Stats() (published, emitted uint64) {
	return b.published.Load(), b.emitted.Load()
}

// Close cancels any pending burst, delivers events that already settled, and stops
// the dispatcher.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.pending = nil
	b.gen++
	b.mu.Unlock()

	close(b.done)
	<-b.exited
	b.cancel()
}

func (b *Bus) dispatch() {
	defer close(b.exited)
	for {
		select {
		case <-b.wake:
			b.drain()
		case <-b.done:
			b.drain()
			return
		}
	}
}

func (b *Bus) drain() {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}
		q := b.queue[0]
		b.queue = b.queue[1:]
		b.inflight = q.done
		subs := make([]subscriber, 0, len(b.subs))
		for _, s := range b.subs {
			subs = append(subs, s)
		}
		b.mu.Unlock()

		// Subscription order.
		sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
		for _, s := range subs {
			b.deliver(s, q.ev)
		}

		b.mu.Lock()
		b.inflight = nil
		b.mu.Unlock()
		close(q.done)
	}
}

func (b *Bus) deliver(s subscriber, ev Event) {
	log := logger.With("bus")
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("subscriber", s.name).
				Str("event", ev.ID).
				Interface("panic", r).
				Msg("subscriber panicked")
		}
	}()
	if err := s.handler(b.ctx, ev); err != nil {
		log.Warn().Err(err).
			Str("subscriber", s.name).
			Str("event", ev.ID).
			Msg("subscriber failed")
	}
}
