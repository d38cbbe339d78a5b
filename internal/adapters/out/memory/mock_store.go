// internal/adapters/out/memory/mock_store.go
package memory

import (
	"context"
	"strings"
	"time"

	"storefront/internal/domain/document"
)

// MockStore is the degraded store used when no backend is configured.
//   - Get: always absent
//   - Subscribe: delivers one empty snapshot immediately, never fires again
//   - Put: succeeds and discards the write
//
// It is chosen once at startup and never switches to a live backend.
type MockStore[D any] struct {
	clock Clock
}

func NewMockStore[D any](clock Clock) *MockStore[D] {
	if clock == nil {
		clock = systemClock{}
	}
	return &MockStore[D]{clock: clock}
}

func (m *MockStore[D]) Mode() document.Mode { return document.ModeMock }

func (m *MockStore[D]) Get(_ context.Context, key string) (document.Snapshot[D], error) {
	return document.Snapshot[D]{Key: strings.TrimSpace(key)}, nil
}

func (m *MockStore[D]) Put(_ context.Context, _ string, _ D) (time.Time, error) {
	return m.clock.Now(), nil
}

func (m *MockStore[D]) Subscribe(key string, onSnapshot func(document.Snapshot[D])) (func(), error) {
	if onSnapshot != nil {
		onSnapshot(document.Snapshot[D]{Key: strings.TrimSpace(key)})
	}
	return func() {}, nil
}
