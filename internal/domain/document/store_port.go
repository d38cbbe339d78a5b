// internal/domain/document/store_port.go
package document

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnconfigured means no usable backend credentials were supplied at process start.
	// It is resolved once (the store falls back to mock mode) and never returned per call.
	ErrUnconfigured = errors.New("document: backend unconfigured")

	// ErrUnavailable is a transient transport failure. It is surfaced to the caller and
	// never retried by the core.
	ErrUnavailable = errors.New("document: backend unavailable")
)

// Mode is fixed for the lifetime of the process.
type Mode string

const (
	ModeLive Mode = "live"
	ModeMock Mode = "mock"
)

// Doc is implemented by the value types persisted through a Store.
type Doc[D any] interface {
	// Clone returns a deep copy.
	Clone() D
	// Stamp returns a copy carrying the store-assigned write timestamp.
	Stamp(updatedAt time.Time) D
}

// Snapshot is the authoritative state of one document as seen by the store.
// Exists=false means the document has never been written.
type Snapshot[D any] struct {
	Key       string
	Doc       D
	Exists    bool
	UpdatedAt time.Time
}

// Store is the remote document store contract for one document kind.
//
// Snapshots for a key are delivered in the store's write order. UpdatedAt is assigned by
// the store on every write, never by the client, and is monotonic per key.
type Store[D any] interface {
	Mode() Mode

	// Get returns the current snapshot; an absent document is Exists=false, not an error.
	Get(ctx context.Context, key string) (Snapshot[D], error)

	// Put overwrites the document and returns the store-assigned timestamp.
	Put(ctx context.Context, key string, doc D) (time.Time, error)

	// Subscribe delivers the current state and then every later write for key.
	// The returned func cancels the subscription.
	Subscribe(key string, onSnapshot func(Snapshot[D])) (func(), error)
}

// Unavailable wraps err as ErrUnavailable unless it already is one.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return &unavailableError{op: op, err: err}
}

type unavailableError struct {
	op  string
	err error
}

func (e *unavailableError) Error() string {
	return e.op + ": " + ErrUnavailable.Error() + ": " + e.err.Error()
}

func (e *unavailableError) Is(target error) bool { return target == ErrUnavailable }

func (e *unavailableError) Unwrap() error { return e.err }
