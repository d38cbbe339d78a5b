// internal/adapters/out/redis/document_store.go
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront/internal/domain/document"
)

const keyPrefix = "docstore:"

// putScript stamps and stores a document atomically and announces the write.
// ts is microseconds from the server clock, forced strictly above the previous ts of the key.
var putScript = redis.NewScript(`
local prev = tonumber(redis.call('HGET', KEYS[1], 'ts') or '0')
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000000 + tonumber(t[2])
if now <= prev then
	now = prev + 1
end
redis.call('HSET', KEYS[1], 'doc', ARGV[1], 'ts', now)
redis.call('PUBLISH', KEYS[2], now)
return now
`)

// DocumentStore is a live document.Store over Redis.
//   - hash  docstore:<kind>:<key>        {doc: JSON, ts: µs}
//   - channel docstore:<kind>:<key>:events  (payload: ts)
//
// Subscribers re-read the hash on every event and skip anything not newer than what they
// already delivered, so delivery follows write order (bursts may be coalesced).
type DocumentStore[D document.Doc[D]] struct {
	client *redis.Client
	kind   string
}

func NewDocumentStore[D document.Doc[D]](client *redis.Client, kind string) *DocumentStore[D] {
	return &DocumentStore[D]{client: client, kind: strings.TrimSpace(kind)}
}

func (s *DocumentStore[D]) Mode() document.Mode { return document.ModeLive }

func (s *DocumentStore[D]) hashKey(key string) string {
	return keyPrefix + s.kind + ":" + key
}

func (s *DocumentStore[D]) channel(key string) string {
	return s.hashKey(key) + ":events"
}

func (s *DocumentStore[D]) Get(ctx context.Context, key string) (document.Snapshot[D], error) {
	k, err := s.check(key)
	if err != nil {
		return document.Snapshot[D]{}, err
	}

	vals, err := s.client.HMGet(ctx, s.hashKey(k), "doc", "ts").Result()
	if err != nil {
		return document.Snapshot[D]{}, document.Unavailable("redis get "+s.kind, err)
	}
	raw, _ := vals[0].(string)
	if raw == "" {
		return document.Snapshot[D]{Key: k}, nil
	}

	var d D
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return document.Snapshot[D]{}, fmt.Errorf("redis_store: decode %s %s: %w", s.kind, k, err)
	}
	var ts int64
	if t, ok := vals[1].(string); ok {
		_, _ = fmt.Sscanf(t, "%d", &ts)
	}
	at := time.UnixMicro(ts).UTC()
	return document.Snapshot[D]{Key: k, Doc: d.Stamp(at), Exists: true, UpdatedAt: at}, nil
}

func (s *DocumentStore[D]) Put(ctx context.Context, key string, doc D) (time.Time, error) {
	k, err := s.check(key)
	if err != nil {
		return time.Time{}, err
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return time.Time{}, fmt.Errorf("redis_store: encode %s %s: %w", s.kind, k, err)
	}

	ts, err := putScript.Run(ctx, s.client, []string{s.hashKey(k), s.channel(k)}, string(b)).Int64()
	if err != nil {
		return time.Time{}, document.Unavailable("redis put "+s.kind, err)
	}
	return time.UnixMicro(ts).UTC(), nil
}

func (s *DocumentStore[D]) Subscribe(key string, onSnapshot func(document.Snapshot[D])) (func(), error) {
	k, err := s.check(key)
	if err != nil {
		return nil, err
	}
	if onSnapshot == nil {
		return nil, errors.New("redis_store: onSnapshot is nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps := s.client.Subscribe(ctx, s.channel(k))

	// wait for the subscription to be confirmed so no write slips between read and subscribe
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		cancel()
		return nil, document.Unavailable("redis subscribe "+s.kind, err)
	}

	events := ps.Channel()
	done := make(chan struct{})

	go func() {
		defer close(done)

		var (
			last      time.Time
			delivered bool
		)
		deliver := func() {
			snap, err := s.Get(ctx, k)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("[docstore] redis read after event failed kind=%s key=%q err=%v", s.kind, k, err)
				}
				return
			}
			if delivered && !snap.UpdatedAt.After(last) {
				return
			}
			last = snap.UpdatedAt
			delivered = true
			onSnapshot(snap)
		}

		deliver()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				deliver()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = ps.Close()
			<-done
		})
	}, nil
}

func (s *DocumentStore[D]) check(key string) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("redis_store: client is nil")
	}
	k := strings.TrimSpace(key)
	if k == "" {
		return "", errors.New("redis_store: key is empty")
	}
	return k, nil
}
