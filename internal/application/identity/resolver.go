// internal/application/identity/resolver.go
package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"storefront/internal/domain/actor"
)

var (
	ErrInvalidDevice = errors.New("identity: deviceId is empty")
	ErrNotSignedIn   = errors.New("identity: no authenticated key is active")
)

// DeviceKeyStore persists the anonymous key of a local installation (device).
type DeviceKeyStore interface {
	// Load returns ("", false, nil) when the device has no key yet.
	Load(ctx context.Context, deviceID string) (string, bool, error)
	Save(ctx context.Context, deviceID, key string) error
}

// TransitionKind is the direction of an identity change.
type TransitionKind string

const (
	Login  TransitionKind = "login"
	Logout TransitionKind = "logout"
)

// Transition is one identity edge.
type Transition struct {
	Kind TransitionKind
	From actor.Key
	To   actor.Key
}

// Resolver produces the actor key of one device and reports identity transitions.
//
// Observers registered with OnChange run exactly once per transition, synchronously,
// in registration order.
type Resolver struct {
	deviceID string
	keys     DeviceKeyStore
	newAnon  func() actor.Key

	mu        sync.Mutex
	current   actor.Key
	observers map[int]func(Transition)
	nextObs   int
}

// NewResolver loads the device's anonymous key, generating and persisting one on first use.
func NewResolver(ctx context.Context, deviceID string, keys DeviceKeyStore) (*Resolver, error) {
	return newResolver(ctx, deviceID, keys, actor.NewAnonymous)
}

func newResolver(ctx context.Context, deviceID string, keys DeviceKeyStore, newAnon func() actor.Key) (*Resolver, error) {
	did := strings.TrimSpace(deviceID)
	if did == "" {
		return nil, ErrInvalidDevice
	}
	if keys == nil {
		return nil, errors.New("identity: device key store is nil")
	}

	r := &Resolver{
		deviceID:  did,
		keys:      keys,
		newAnon:   newAnon,
		observers: map[int]func(Transition){},
	}

	raw, ok, err := keys.Load(ctx, did)
	if err != nil {
		return nil, fmt.Errorf("identity: load device key (device=%s): %w", did, err)
	}
	if ok {
		k, perr := actor.ParseAnonymous(raw)
		if perr == nil {
			r.current = k
			return r, nil
		}
		log.Printf("[identity] WARN: stored key unusable device=%q err=%v (regenerating)", did, perr)
	}

	k := newAnon()
	if err := keys.Save(ctx, did, k.ID); err != nil {
		return nil, fmt.Errorf("identity: save device key (device=%s): %w", did, err)
	}
	log.Printf("[identity] new anonymous key device=%q actor=%s", did, k)
	r.current = k
	return r, nil
}

func (r *Resolver) DeviceID() string { return r.deviceID }

// Current returns the active actor key.
func (r *Resolver) Current() actor.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// OnChange registers an observer; the returned func removes it.
func (r *Resolver) OnChange(fn func(Transition)) func() {
	if fn == nil {
		return func() {}
	}
	r.mu.Lock()
	id := r.nextObs
	r.nextObs++
	r.observers[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.observers, id)
		r.mu.Unlock()
	}
}

// SignIn moves from the anonymous key to the authenticated uid.
// Signing in as the current user is a no-op (changed=false). Signing in as a different user
// while authenticated passes through a fresh anonymous key first; only the last edge is a login.
func (r *Resolver) SignIn(ctx context.Context, uid string) (Transition, bool, error) {
	to, err := actor.User(uid)
	if err != nil {
		return Transition{}, false, err
	}

	r.mu.Lock()
	cur := r.current
	r.mu.Unlock()

	if cur == to {
		return Transition{}, false, nil
	}
	if !cur.IsAnonymous() {
		if _, _, err := r.SignOut(ctx); err != nil {
			return Transition{}, false, err
		}
	}

	r.mu.Lock()
	t := Transition{Kind: Login, From: r.current, To: to}
	r.current = to
	r.mu.Unlock()

	log.Printf("[identity] login device=%q from=%s to=%s", r.deviceID, t.From, t.To)
	r.notify(t)
	return t, true, nil
}

// SignOut replaces the authenticated key with a freshly generated, persisted anonymous key.
// It is a no-op while anonymous.
func (r *Resolver) SignOut(ctx context.Context) (Transition, bool, error) {
	r.mu.Lock()
	cur := r.current
	r.mu.Unlock()

	if cur.IsAnonymous() {
		return Transition{}, false, nil
	}

	next := r.newAnon()
	if err := r.keys.Save(ctx, r.deviceID, next.ID); err != nil {
		return Transition{}, false, fmt.Errorf("identity: save device key (device=%s): %w", r.deviceID, err)
	}

	r.mu.Lock()
	t := Transition{Kind: Logout, From: r.current, To: next}
	r.current = next
	r.mu.Unlock()

	log.Printf("[identity] logout device=%q from=%s to=%s", r.deviceID, t.From, t.To)
	r.notify(t)
	return t, true, nil
}

// RotateAnonymous persists a fresh anonymous key for the device while an authenticated key
// is active. The current key does not change and no transition is reported. A resolver later
// built for the same device starts from the fresh key, so an anonymous key whose documents
// were already merged never reaches a second login edge.
func (r *Resolver) RotateAnonymous(ctx context.Context) (actor.Key, error) {
	r.mu.Lock()
	cur := r.current
	r.mu.Unlock()

	if cur.IsAnonymous() {
		return actor.Key{}, ErrNotSignedIn
	}

	next := r.newAnon()
	if err := r.keys.Save(ctx, r.deviceID, next.ID); err != nil {
		return actor.Key{}, fmt.Errorf("identity: save device key (device=%s): %w", r.deviceID, err)
	}
	log.Printf("[identity] rotated anonymous key device=%q actor=%s stored=%s", r.deviceID, cur, next)
	return next, nil
}

func (r *Resolver) notify(t Transition) {
	r.mu.Lock()
	ids := make([]int, 0, len(r.observers))
	for id := range r.observers {
		ids = append(ids, id)
	}
	fns := make([]func(Transition), 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, r.observers[id])
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(t)
	}
}
