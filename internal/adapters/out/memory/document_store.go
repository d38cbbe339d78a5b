// internal/adapters/out/memory/document_store.go
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"storefront/internal/domain/document"
)

// Clock provides current time (for testability).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Store is a live, process-local document store.
// It assigns a strictly increasing UpdatedAt per key and delivers snapshots to each
// subscriber in write order. Used for development (DOCSTORE_BACKEND=memory) and tests.
type Store[D document.Doc[D]] struct {
	clock Clock

	mu      sync.Mutex
	records map[string]record[D]
	subs    map[string]map[uint64]*subscriber[D]
	nextID  uint64
	putErr  error
	puts    int
}

type record[D any] struct {
	doc D
	at  time.Time
}

func NewStore[D document.Doc[D]](clock Clock) *Store[D] {
	if clock == nil {
		clock = systemClock{}
	}
	return &Store[D]{
		clock:   clock,
		records: map[string]record[D]{},
		subs:    map[string]map[uint64]*subscriber[D]{},
	}
}

func (s *Store[D]) Mode() document.Mode { return document.ModeLive }

func (s *Store[D]) Get(ctx context.Context, key string) (document.Snapshot[D], error) {
	if err := ctx.Err(); err != nil {
		return document.Snapshot[D]{}, document.Unavailable("memory get", err)
	}
	k := strings.TrimSpace(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(k), nil
}

func (s *Store[D]) Put(ctx context.Context, key string, doc D) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, document.Unavailable("memory put", err)
	}
	k := strings.TrimSpace(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.putErr != nil {
		return time.Time{}, document.Unavailable("memory put", s.putErr)
	}

	at := s.clock.Now()
	if prev, ok := s.records[k]; ok && !at.After(prev.at) {
		at = prev.at.Add(time.Nanosecond)
	}
	s.records[k] = record[D]{doc: doc.Stamp(at), at: at}
	s.puts++

	snap := s.snapshotLocked(k)
	for _, sub := range s.subs[k] {
		sub.enqueue(snap)
	}
	return at, nil
}

func (s *Store[D]) Subscribe(key string, onSnapshot func(document.Snapshot[D])) (func(), error) {
	k := strings.TrimSpace(key)

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	sub := newSubscriber(onSnapshot)
	sub.enqueue(s.snapshotLocked(k))
	if s.subs[k] == nil {
		s.subs[k] = map[uint64]*subscriber[D]{}
	}
	s.subs[k][id] = sub
	s.mu.Unlock()

	go sub.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[k], id)
			s.mu.Unlock()
			sub.close()
		})
	}, nil
}

// FailPuts makes every following Put fail with err (nil restores normal behavior).
func (s *Store[D]) FailPuts(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putErr = err
}

// Puts returns the number of successful writes.
func (s *Store[D]) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func (s *Store[D]) snapshotLocked(k string) document.Snapshot[D] {
	r, ok := s.records[k]
	if !ok {
		return document.Snapshot[D]{Key: k}
	}
	return document.Snapshot[D]{Key: k, Doc: r.doc.Clone(), Exists: true, UpdatedAt: r.at}
}

// ------------------------------------------------------------
// subscriber: ordered, non-blocking delivery
// ------------------------------------------------------------

type subscriber[D any] struct {
	fn func(document.Snapshot[D])

	mu     sync.Mutex
	queue  []document.Snapshot[D]
	closed bool
	wake   chan struct{}
	stop   chan struct{}
}

func newSubscriber[D any](fn func(document.Snapshot[D])) *subscriber[D] {
	return &subscriber[D]{
		fn:   fn,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

func (s *subscriber[D]) enqueue(snap document.Snapshot[D]) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, snap)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber[D]) run() {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, snap := range batch {
			select {
			case <-s.stop:
				return
			default:
			}
			s.fn(snap)
		}

		select {
		case <-s.wake:
		case <-s.stop:
			return
		}
	}
}

func (s *subscriber[D]) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	close(s.stop)
}
