// internal/application/identity/resolver_test.go
package identity

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/domain/actor"
)

func newTestResolver(t *testing.T, keys DeviceKeyStore) *Resolver {
	t.Helper()
	r, err := NewResolver(context.Background(), "device-1", keys)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func TestNewResolver_PersistsAnonymousKey(t *testing.T) {
	keys := NewMemoryKeyStore()

	r1 := newTestResolver(t, keys)
	k1 := r1.Current()
	if !k1.IsAnonymous() {
		t.Fatalf("first key should be anonymous: %s", k1)
	}

	r2 := newTestResolver(t, keys)
	if r2.Current() != k1 {
		t.Fatalf("key not reused across restarts: %s vs %s", r2.Current(), k1)
	}
}

func TestNewResolver_RegeneratesUnusableKey(t *testing.T) {
	keys := NewMemoryKeyStore()
	_ = keys.Save(context.Background(), "device-1", "garbage")

	r := newTestResolver(t, keys)
	if !r.Current().IsAnonymous() {
		t.Fatalf("key = %s", r.Current())
	}
	stored, _, _ := keys.Load(context.Background(), "device-1")
	if stored != r.Current().ID {
		t.Fatalf("stored key = %q, want %q", stored, r.Current().ID)
	}
}

func TestNewResolver_RejectsEmptyDevice(t *testing.T) {
	if _, err := NewResolver(context.Background(), " ", NewMemoryKeyStore()); !errors.Is(err, ErrInvalidDevice) {
		t.Fatalf("err = %v, want ErrInvalidDevice", err)
	}
}

func TestSignIn_NotifiesOncePerTransition(t *testing.T) {
	r := newTestResolver(t, NewMemoryKeyStore())
	anon := r.Current()

	var seen []Transition
	r.OnChange(func(t Transition) { seen = append(seen, t) })

	tr, changed, err := r.SignIn(context.Background(), "uid-1")
	if err != nil || !changed {
		t.Fatalf("SignIn = %t %v", changed, err)
	}
	if tr.Kind != Login || tr.From != anon || tr.To.ID != "uid-1" {
		t.Fatalf("transition = %+v", tr)
	}

	// same user again: no edge
	if _, changed, err := r.SignIn(context.Background(), "uid-1"); err != nil || changed {
		t.Fatalf("repeat SignIn = %t %v", changed, err)
	}

	if len(seen) != 1 || seen[0] != tr {
		t.Fatalf("observer calls = %+v", seen)
	}
}

func TestSignOut_GivesFreshAnonymousKey(t *testing.T) {
	keys := NewMemoryKeyStore()
	r := newTestResolver(t, keys)
	anon := r.Current()

	if _, changed, err := r.SignOut(context.Background()); err != nil || changed {
		t.Fatalf("SignOut while anonymous = %t %v", changed, err)
	}

	_, _, _ = r.SignIn(context.Background(), "uid-1")
	tr, changed, err := r.SignOut(context.Background())
	if err != nil || !changed {
		t.Fatalf("SignOut = %t %v", changed, err)
	}
	if tr.Kind != Logout || !tr.To.IsAnonymous() || tr.To == anon {
		t.Fatalf("transition = %+v (old anon %s)", tr, anon)
	}

	stored, _, _ := keys.Load(context.Background(), "device-1")
	if stored != tr.To.ID {
		t.Fatalf("new anonymous key not persisted: %q", stored)
	}
}

func TestSignIn_SwitchingUsersPassesThroughLogout(t *testing.T) {
	r := newTestResolver(t, NewMemoryKeyStore())

	var kinds []TransitionKind
	r.OnChange(func(t Transition) { kinds = append(kinds, t.Kind) })

	_, _, _ = r.SignIn(context.Background(), "uid-1")
	tr, changed, err := r.SignIn(context.Background(), "uid-2")
	if err != nil || !changed {
		t.Fatalf("SignIn(uid-2) = %t %v", changed, err)
	}
	if !tr.From.IsAnonymous() || tr.To.ID != "uid-2" {
		t.Fatalf("login edge = %+v", tr)
	}

	want := []TransitionKind{Login, Logout, Login}
	if len(kinds) != len(want) {
		t.Fatalf("transitions = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", kinds, want)
		}
	}
}

func TestSignIn_RejectsInvalidUID(t *testing.T) {
	r := newTestResolver(t, NewMemoryKeyStore())
	if _, _, err := r.SignIn(context.Background(), "anon_x"); !errors.Is(err, actor.ErrInvalidKey) {
		t.Fatalf("err = %v, want ErrInvalidKey", err)
	}
	if !r.Current().IsAnonymous() {
		t.Fatalf("identity changed on invalid uid")
	}
}

func TestOnChange_Unregister(t *testing.T) {
	r := newTestResolver(t, NewMemoryKeyStore())

	calls := 0
	cancel := r.OnChange(func(Transition) { calls++ })
	cancel()

	_, _, _ = r.SignIn(context.Background(), "uid-1")
	if calls != 0 {
		t.Fatalf("observer called after cancel")
	}
}

func TestRotateAnonymous(t *testing.T) {
	keys := NewMemoryKeyStore()
	r := newTestResolver(t, keys)
	anon := r.Current()

	if _, err := r.RotateAnonymous(context.Background()); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("rotate while anonymous err = %v, want ErrNotSignedIn", err)
	}

	var calls int
	r.OnChange(func(Transition) { calls++ })
	_, _, _ = r.SignIn(context.Background(), "uid-1")

	next, err := r.RotateAnonymous(context.Background())
	if err != nil {
		t.Fatalf("RotateAnonymous: %v", err)
	}
	if !next.IsAnonymous() || next == anon {
		t.Fatalf("rotated key = %s (old %s)", next, anon)
	}
	if r.Current().ID != "uid-1" || calls != 1 {
		t.Fatalf("current = %s, observer calls = %d", r.Current(), calls)
	}

	// a resolver rebuilt for the device starts from the rotated key
	again := newTestResolver(t, keys)
	if again.Current() != next {
		t.Fatalf("rebuilt resolver key = %s, want %s", again.Current(), next)
	}
}
