// internal/application/usecase/session_registry.go
package usecase

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"storefront/internal/application/identity"
)

const (
	DefaultSessionIdleTTL = 30 * time.Minute
	DefaultMaxSessions    = 10000

	defaultSessionOpenTimeout = 10 * time.Second
)

// RegistryOption configures a SessionRegistry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	idleTTL     time.Duration
	maxSessions int
	sweepEvery  time.Duration
	clock       Clock
}

// WithIdleTTL evicts sessions that were not accessed for d. d <= 0 disables idle eviction.
func WithIdleTTL(d time.Duration) RegistryOption {
	return func(o *registryOptions) { o.idleTTL = d }
}

// WithMaxSessions caps the number of open sessions; the least recently used one is closed
// to make room. n <= 0 disables the cap.
func WithMaxSessions(n int) RegistryOption {
	return func(o *registryOptions) { o.maxSessions = n }
}

// WithSweepInterval sets how often idle sessions are looked for (default: half the idle TTL).
func WithSweepInterval(d time.Duration) RegistryOption {
	return func(o *registryOptions) { o.sweepEvery = d }
}

func WithRegistryClock(c Clock) RegistryOption {
	return func(o *registryOptions) { o.clock = c }
}

type sessionEntry struct {
	s        *Session
	lastUsed time.Time
}

// SessionRegistry creates one Session per device on first access and tears them down
// explicitly: on Drop, on Close, when idle for longer than the TTL, or when the cap is reached.
//
// Sessions are opened outside the registry lock; concurrent first accesses for one device
// share a single open.
type SessionRegistry struct {
	deps  SessionDeps
	opts  registryOptions
	group singleflight.Group

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	closed   bool

	stop chan struct{}
	done chan struct{}
}

func NewSessionRegistry(deps SessionDeps, opts ...RegistryOption) (*SessionRegistry, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	o := registryOptions{clock: systemClock{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.clock == nil {
		o.clock = systemClock{}
	}

	r := &SessionRegistry{
		deps:     deps,
		opts:     o,
		sessions: map[string]*sessionEntry{},
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if o.idleTTL > 0 {
		every := o.sweepEvery
		if every <= 0 {
			every = o.idleTTL / 2
			if every < time.Second {
				every = time.Second
			}
		}
		go r.janitor(every)
	} else {
		close(r.done)
	}
	return r, nil
}

// Get returns the device's session, creating it on first access.
func (r *SessionRegistry) Get(ctx context.Context, deviceID string) (*Session, error) {
	did := strings.TrimSpace(deviceID)
	if did == "" {
		return nil, identity.ErrInvalidDevice
	}

	if s, ok, err := r.lookup(did); err != nil || ok {
		return s, err
	}

	// the open outlives a caller that gives up, so other waiters for the device still get it
	ch := r.group.DoChan(did, func() (any, error) {
		return r.create(context.WithoutCancel(ctx), did)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Session), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *SessionRegistry) lookup(did string) (*Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false, ErrSessionClosed
	}
	e, ok := r.sessions[did]
	if !ok {
		return nil, false, nil
	}
	e.lastUsed = r.opts.clock.Now()
	return e.s, true, nil
}

func (r *SessionRegistry) create(ctx context.Context, did string) (*Session, error) {
	if s, ok, err := r.lookup(did); err != nil || ok {
		return s, err
	}

	timeout := r.deps.WriteTimeout
	if timeout <= 0 {
		timeout = defaultSessionOpenTimeout
	}
	octx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s, err := NewSession(octx, did, r.deps)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		s.Close()
		return nil, ErrSessionClosed
	}
	now := r.opts.clock.Now()
	if e, ok := r.sessions[did]; ok {
		e.lastUsed = now
		r.mu.Unlock()
		s.Close()
		return e.s, nil
	}
	var victim *Session
	if r.opts.maxSessions > 0 && len(r.sessions) >= r.opts.maxSessions {
		victim = r.removeLRULocked()
	}
	r.sessions[did] = &sessionEntry{s: s, lastUsed: now}
	r.mu.Unlock()

	if victim != nil {
		log.Printf("[session] evicted least recently used device=%q cap=%d", victim.DeviceID(), r.opts.maxSessions)
		victim.Close()
	}
	return s, nil
}

func (r *SessionRegistry) removeLRULocked() *Session {
	var (
		oldID string
		old   *sessionEntry
	)
	for did, e := range r.sessions {
		if old == nil || e.lastUsed.Before(old.lastUsed) {
			oldID, old = did, e
		}
	}
	if old == nil {
		return nil
	}
	delete(r.sessions, oldID)
	return old.s
}

// EvictIdle closes the sessions not accessed within the idle TTL and returns how many it closed.
func (r *SessionRegistry) EvictIdle() int {
	if r.opts.idleTTL <= 0 {
		return 0
	}
	cutoff := r.opts.clock.Now().Add(-r.opts.idleTTL)

	r.mu.Lock()
	var idle []*Session
	for did, e := range r.sessions {
		if e.lastUsed.Before(cutoff) {
			idle = append(idle, e.s)
			delete(r.sessions, did)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		log.Printf("[session] evicted idle sessions n=%d ttl=%s", len(idle), r.opts.idleTTL)
	}
	return len(idle)
}

func (r *SessionRegistry) janitor(every time.Duration) {
	defer close(r.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			r.EvictIdle()
		case <-r.stop:
			return
		}
	}
}

// Drop closes and forgets the device's session.
func (r *SessionRegistry) Drop(deviceID string) {
	did := strings.TrimSpace(deviceID)

	r.mu.Lock()
	e, ok := r.sessions[did]
	delete(r.sessions, did)
	r.mu.Unlock()

	if ok {
		e.s.Close()
	}
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops the janitor and closes every session; Get fails afterwards.
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	all := make([]*Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		all = append(all, e.s)
	}
	r.sessions = map[string]*sessionEntry{}
	r.mu.Unlock()

	close(r.stop)
	<-r.done

	for _, s := range all {
		s.Close()
	}
}
