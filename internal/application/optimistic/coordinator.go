// internal/application/optimistic/coordinator.go
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"storefront/internal/domain/document"
)

var ErrClosed = errors.New("optimistic: coordinator closed")

const defaultWriteTimeout = 10 * time.Second

// Clock provides current time (for testability).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Mutation edits a private copy of the local document.
// Returning an error rejects the mutation; local state is left untouched and nothing is written.
type Mutation[D any] func(doc *D) error

// Option configures a Coordinator.
type Option func(*options)

type options struct {
	clock        Clock
	writeTimeout time.Duration
	name         string
}

func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithName sets the document kind used in log lines ("cart", "favorites").
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Coordinator keeps one document's local state ahead of the store.
//
//   - every mutation is applied to local state at once and tagged with a sequence number
//   - writes go out one at a time in mutation order
//   - a snapshot older than the newest mutation still awaiting confirmation is ignored
//     (as is any snapshot arriving while a mutation is queued but unsent); any other
//     snapshot replaces local state
//   - a failed write rolls local state back to the last confirmed snapshot; later queued
//     mutations (computed on top of it) are rolled back with it
type Coordinator[D document.Doc[D]] struct {
	name         string
	key          string
	store        document.Store[D]
	clock        Clock
	writeTimeout time.Duration
	empty        D

	mu          sync.Mutex
	confirmed   D
	confirmedAt time.Time
	local       D
	seq         uint64
	pending     []*Write[D]
	closed      bool
	started     bool

	wake        chan struct{}
	stop        chan struct{}
	writerDone  chan struct{}
	unsubscribe func()
}

// New creates a coordinator for key. empty is the document state of a key that was never written.
func New[D document.Doc[D]](key string, store document.Store[D], empty D, opts ...Option) *Coordinator[D] {
	o := options{clock: systemClock{}, writeTimeout: defaultWriteTimeout, name: "document"}
	for _, fn := range opts {
		fn(&o)
	}
	return &Coordinator[D]{
		name:         o.name,
		key:          key,
		store:        store,
		clock:        o.clock,
		writeTimeout: o.writeTimeout,
		empty:        empty.Clone(),
		confirmed:    empty.Clone(),
		local:        empty.Clone(),
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		writerDone:   make(chan struct{}),
	}
}

// Start reads the current document, subscribes to it and starts the writer.
// A failed initial read leaves the coordinator usable with empty state; the error is returned
// so the caller can report it.
func (c *Coordinator[D]) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	go c.writeLoop()

	var errs []error
	snap, err := c.store.Get(ctx, c.key)
	if err != nil {
		errs = append(errs, fmt.Errorf("optimistic: initial read %s key=%s: %w", c.name, c.key, err))
	} else {
		c.onSnapshot(snap)
	}

	unsub, err := c.store.Subscribe(c.key, c.onSnapshot)
	if err != nil {
		errs = append(errs, fmt.Errorf("optimistic: subscribe %s key=%s: %w", c.name, c.key, err))
	} else {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			unsub()
		} else {
			c.unsubscribe = unsub
			c.mu.Unlock()
		}
	}

	return errors.Join(errs...)
}

func (c *Coordinator[D]) Key() string { return c.key }

// Local returns a copy of the optimistic local state.
func (c *Coordinator[D]) Local() D {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local.Clone()
}

// Confirmed returns the last state acknowledged by the store and its timestamp.
func (c *Coordinator[D]) Confirmed() (D, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirmed.Clone(), c.confirmedAt
}

// Pending returns the number of mutations awaiting confirmation.
func (c *Coordinator[D]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Apply runs m against local state and queues the resulting document for writing.
// The returned Write settles once the store confirms or rejects it.
func (c *Coordinator[D]) Apply(m Mutation[D]) (*Write[D], error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}

	next := c.local.Clone()
	if err := m(&next); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	c.seq++
	w := &Write[D]{
		Seq:       c.seq,
		AppliedAt: c.clock.Now(),
		doc:       next.Clone(),
		done:      make(chan struct{}),
	}
	c.pending = append(c.pending, w)
	c.local = next
	c.mu.Unlock()

	c.signal()
	return w, nil
}

// Flush waits until every mutation queued so far has settled.
func (c *Coordinator[D]) Flush(ctx context.Context) error {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return nil
	}
	last := c.pending[len(c.pending)-1]
	c.mu.Unlock()

	select {
	case <-last.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the subscription and stops the writer after the in-flight write.
// Mutations not yet sent fail with ErrClosed.
func (c *Coordinator[D]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsub := c.unsubscribe
	c.unsubscribe = nil
	started := c.started

	var kept []*Write[D]
	for _, w := range c.pending {
		if w.dispatched {
			kept = append(kept, w)
			continue
		}
		w.finish(w.doc, ErrClosed)
	}
	c.pending = kept
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	close(c.stop)
	if started {
		<-c.writerDone
	}
}

// ------------------------------------------------------------
// snapshots
// ------------------------------------------------------------

func (c *Coordinator[D]) onSnapshot(s document.Snapshot[D]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	// A queued write that has not been sent cannot be part of any snapshot, so local state
	// stays ahead until it goes out.
	if n := len(c.pending); n > 0 {
		newest := c.pending[n-1]
		if !newest.dispatched || s.UpdatedAt.Before(newest.AppliedAt) {
			log.Printf("[coordinator] ignore stale snapshot doc=%s key=%q snapshotAt=%s pendingSeq=%d appliedAt=%s sent=%t",
				c.name, c.key, s.UpdatedAt.Format(time.RFC3339Nano), newest.Seq, newest.AppliedAt.Format(time.RFC3339Nano), newest.dispatched)
			return
		}
	}
	if s.UpdatedAt.Before(c.confirmedAt) {
		return
	}

	doc := c.empty.Clone()
	if s.Exists {
		doc = s.Doc
	}
	c.confirmed = doc.Stamp(s.UpdatedAt)
	c.confirmedAt = s.UpdatedAt
	c.local = c.confirmed.Clone()
}

// ------------------------------------------------------------
// writer
// ------------------------------------------------------------

func (c *Coordinator[D]) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Coordinator[D]) writeLoop() {
	defer close(c.writerDone)
	for {
		w := c.nextWrite()
		if w == nil {
			select {
			case <-c.wake:
				continue
			case <-c.stop:
				return
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
		at, err := c.store.Put(ctx, c.key, w.doc)
		cancel()

		c.settle(w, at, err)
	}
}

func (c *Coordinator[D]) nextWrite() *Write[D] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 || c.pending[0].dispatched {
		return nil
	}
	if c.closed {
		return nil
	}
	c.pending[0].dispatched = true
	return c.pending[0]
}

func (c *Coordinator[D]) settle(w *Write[D], at time.Time, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 || c.pending[0] != w {
		return
	}

	if err == nil {
		stamped := w.doc.Stamp(at)
		c.pending = c.pending[1:]
		if !at.Before(c.confirmedAt) {
			c.confirmed = stamped
			c.confirmedAt = at
		}
		if len(c.pending) == 0 {
			c.local = c.confirmed.Clone()
		}
		w.finish(stamped, nil)
		return
	}

	err = document.Unavailable("put "+c.name, err)
	failed := c.pending
	c.pending = nil
	c.local = c.confirmed.Clone()

	log.Printf("[coordinator] write failed doc=%s key=%q seq=%d rolledBack=%d err=%v",
		c.name, c.key, w.Seq, len(failed), err)

	for i, p := range failed {
		if i == 0 {
			p.finish(c.local.Clone(), err)
			continue
		}
		p.finish(c.local.Clone(), fmt.Errorf("%w: rolled back after write seq=%d failed", document.ErrUnavailable, w.Seq))
	}
}

// ------------------------------------------------------------
// Write
// ------------------------------------------------------------

// Write is one queued mutation.
type Write[D any] struct {
	Seq       uint64
	AppliedAt time.Time

	doc        D
	dispatched bool

	result D
	err    error
	done   chan struct{}
}

// Doc is the optimistic document this mutation produced.
func (w *Write[D]) Doc() D { return w.doc }

// Done is closed once the write settled.
func (w *Write[D]) Done() <-chan struct{} { return w.done }

// Wait blocks until the write settles. On success it returns the document as confirmed by
// the store; on failure it returns the rolled-back state and the error.
// Cancelling ctx stops waiting, not the write.
func (w *Write[D]) Wait(ctx context.Context) (D, error) {
	select {
	case <-w.done:
		return w.result, w.err
	case <-ctx.Done():
		return w.doc, ctx.Err()
	}
}

func (w *Write[D]) finish(result D, err error) {
	w.result = result
	w.err = err
	close(w.done)
}
