// internal/application/usecase/session_test.go
package usecase_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/adapters/out/memory"
	"storefront/internal/application/identity"
	"storefront/internal/application/usecase"
	cartdom "storefront/internal/domain/cart"
	"storefront/internal/domain/document"
	favdom "storefront/internal/domain/favorite"
	productdom "storefront/internal/domain/product"
)

type testEnv struct {
	carts   *memory.Store[cartdom.Cart]
	favs    *memory.Store[favdom.Favorites]
	catalog *memory.Catalog
	deps    usecase.SessionDeps
}

func newCatalog() *memory.Catalog {
	return memory.NewCatalog(
		productdom.Product{ID: "P1", Name: "Tee", Price: 1000, Stock: 5},
		productdom.Product{ID: "P2", Name: "Hoodie", Price: 3000, DiscountPrice: productdom.Int64Ptr(2500), Stock: 4},
		productdom.Product{ID: "P3", Name: "Cap", Price: 800, Stock: 0},
	)
}

func newLiveEnv() *testEnv {
	env := &testEnv{
		carts:   memory.NewStore[cartdom.Cart](nil),
		favs:    memory.NewStore[favdom.Favorites](nil),
		catalog: newCatalog(),
	}
	env.deps = usecase.SessionDeps{
		Backend: usecase.Backend{
			Mode:      document.ModeLive,
			Carts:     env.carts,
			Favorites: env.favs,
		},
		Products:     env.catalog,
		Keys:         identity.NewMemoryKeyStore(),
		WriteTimeout: 2 * time.Second,
	}
	return env
}

func newMockDeps() usecase.SessionDeps {
	return usecase.SessionDeps{
		Backend: usecase.Backend{
			Mode:      document.ModeMock,
			Carts:     memory.NewMockStore[cartdom.Cart](nil),
			Favorites: memory.NewMockStore[favdom.Favorites](nil),
		},
		Products: newCatalog(),
		Keys:     identity.NewMemoryKeyStore(),
	}
}

func openSession(t *testing.T, deps usecase.SessionDeps) *usecase.Session {
	t.Helper()
	s, err := usecase.NewSession(context.Background(), "device-1", deps)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func lineQty(v cartdom.View, productID string) int {
	for _, l := range v.Items {
		if l.ProductID == productID {
			return l.Quantity
		}
	}
	return 0
}

// ------------------------------------------------------------
// cart
// ------------------------------------------------------------

func TestSession_AddItem(t *testing.T) {
	env := newLiveEnv()
	s := openSession(t, env.deps)
	ctx := testCtx(t)

	res, err := s.AddItem(ctx, "P1", 2, cartdom.Variant{Color: "red"})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if res.Outcome.Quantity != 2 || res.Cart.Subtotal != 2000 {
		t.Fatalf("result = %+v", res)
	}

	// discount price is captured
	res, err = s.AddItem(ctx, "P2", 1, cartdom.Variant{})
	if err != nil {
		t.Fatalf("AddItem(P2): %v", err)
	}
	if res.Cart.Subtotal != 4500 || res.Cart.ItemCount != 3 {
		t.Fatalf("cart = %+v", res.Cart)
	}

	k, _ := s.Actor(ctx)
	snap, err := env.carts.Get(ctx, k.DocID())
	if err != nil || !snap.Exists || len(snap.Doc.Items) != 2 {
		t.Fatalf("stored cart = %+v err=%v", snap, err)
	}
}

func TestSession_AddItemClampsToStock(t *testing.T) {
	env := newLiveEnv()
	s := openSession(t, env.deps)

	res, err := s.AddItem(testCtx(t), "P2", 10, cartdom.Variant{})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if res.Outcome.Quantity != 4 || !res.Outcome.Clamped {
		t.Fatalf("outcome = %+v", res.Outcome)
	}
	if lineQty(res.Cart, "P2") != 4 {
		t.Fatalf("cart = %+v", res.Cart)
	}
}

func TestSession_AddItemErrors(t *testing.T) {
	env := newLiveEnv()
	s := openSession(t, env.deps)
	ctx := testCtx(t)

	if _, err := s.AddItem(ctx, "P3", 1, cartdom.Variant{}); !errors.Is(err, cartdom.ErrOutOfStock) {
		t.Fatalf("out of stock err = %v", err)
	}
	if _, err := s.AddItem(ctx, "PX", 1, cartdom.Variant{}); !errors.Is(err, productdom.ErrNotFound) {
		t.Fatalf("unknown product err = %v", err)
	}
	if _, err := s.AddItem(ctx, "P1", 0, cartdom.Variant{}); !errors.Is(err, cartdom.ErrInvalidQuantity) {
		t.Fatalf("zero qty err = %v", err)
	}
	if env.carts.Puts() != 0 {
		t.Fatalf("rejected mutations were written: %d", env.carts.Puts())
	}
}

func TestSession_SetQuantityAndRemove(t *testing.T) {
	env := newLiveEnv()
	s := openSession(t, env.deps)
	ctx := testCtx(t)

	if _, err := s.SetQuantity(ctx, "P1", cartdom.Variant{}, 1); !errors.Is(err, cartdom.ErrLineNotFound) {
		t.Fatalf("missing line err = %v", err)
	}

	_, _ = s.AddItem(ctx, "P1", 1, cartdom.Variant{})
	res, err := s.SetQuantity(ctx, "P1", cartdom.Variant{}, 9)
	if err != nil {
		t.Fatalf("SetQuantity: %v", err)
	}
	if res.Quantity != 5 || !res.Clamped || lineQty(res.Cart, "P1") != 5 {
		t.Fatalf("result = %+v", res)
	}

	// removing an absent line is a no-op
	v, err := s.RemoveItem(ctx, "P2", cartdom.Variant{})
	if err != nil || len(v.Items) != 1 {
		t.Fatalf("RemoveItem(absent) = %+v %v", v, err)
	}

	res, err = s.SetQuantity(ctx, "P1", cartdom.Variant{}, 0)
	if err != nil || !res.Removed || len(res.Cart.Items) != 0 {
		t.Fatalf("SetQuantity(0) = %+v %v", res, err)
	}
}

func TestSession_Clear(t *testing.T) {
	env := newLiveEnv()
	s := openSession(t, env.deps)
	ctx := testCtx(t)

	_, _ = s.AddItem(ctx, "P1", 1, cartdom.Variant{})
	_, _ = s.AddItem(ctx, "P2", 1, cartdom.Variant{})

	v, err := s.Clear(ctx)
	if err != nil || len(v.Items) != 0 || v.Subtotal != 0 {
		t.Fatalf("Clear = %+v %v", v, err)
	}
	puts := env.carts.Puts()

	if _, err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear(empty): %v", err)
	}
	if env.carts.Puts() != puts {
		t.Fatalf("clearing an empty cart wrote again")
	}
}

func TestSession_FailedWriteRollsBack(t *testing.T) {
	env := newLiveEnv()
	env.carts.FailPuts(errors.New("offline"))
	s := openSession(t, env.deps)
	ctx := testCtx(t)

	if _, err := s.AddItem(ctx, "P1", 1, cartdom.Variant{}); !errors.Is(err, document.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	v, err := s.Cart(ctx)
	if err != nil || len(v.Items) != 0 {
		t.Fatalf("cart after failed write = %+v %v", v, err)
	}

	env.carts.FailPuts(nil)
	if _, err := s.AddItem(ctx, "P1", 1, cartdom.Variant{}); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

// ------------------------------------------------------------
// favorites
// ------------------------------------------------------------

func TestSession_Favorites(t *testing.T) {
	env := newLiveEnv()
	s := openSession(t, env.deps)
	ctx := testCtx(t)

	for _, id := range []string{"P2", "P1", "PX"} {
		on, err := s.ToggleFavorite(ctx, id)
		if err != nil || !on {
			t.Fatalf("ToggleFavorite(%s) = %t %v", id, on, err)
		}
	}

	on, err := s.IsFavorite(ctx, "P1")
	if err != nil || !on {
		t.Fatalf("IsFavorite(P1) = %t %v", on, err)
	}

	// unknown products are left out of the hydrated list
	list, err := s.Favorites(ctx)
	if err != nil {
		t.Fatalf("Favorites: %v", err)
	}
	if len(list) != 2 || list[0].ID != "P1" || list[1].ID != "P2" {
		t.Fatalf("list = %+v", list)
	}

	if err := s.SetFavorite(ctx, "P1", false); err != nil {
		t.Fatalf("SetFavorite(off): %v", err)
	}
	puts := env.favs.Puts()
	if err := s.SetFavorite(ctx, "P1", false); err != nil {
		t.Fatalf("SetFavorite(off) again: %v", err)
	}
	if env.favs.Puts() != puts {
		t.Fatalf("no-op SetFavorite wrote")
	}

	if _, err := s.ToggleFavorite(ctx, " "); !errors.Is(err, favdom.ErrInvalidProductID) {
		t.Fatalf("empty id err = %v", err)
	}
}

// ------------------------------------------------------------
// identity transitions
// ------------------------------------------------------------

func TestSession_LoginMergesAnonymousState(t *testing.T) {
	env := newLiveEnv()
	ctx := testCtx(t)

	// the user's existing documents
	userCart := cartdom.Empty("uid-1")
	_, _ = userCart.Add("P1", cartdom.Variant{}, 1, 1000, 5, time.Now().Add(-time.Hour))
	if _, err := env.carts.Put(ctx, "uid-1", userCart); err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	if _, err := env.favs.Put(ctx, "uid-1", favdom.New("uid-1", []string{"P3"})); err != nil {
		t.Fatalf("seed favorites: %v", err)
	}

	s := openSession(t, env.deps)
	anon, _ := s.Actor(ctx)

	_, _ = s.AddItem(ctx, "P1", 2, cartdom.Variant{})
	_, _ = s.ToggleFavorite(ctx, "P2")

	res, err := s.SignIn(ctx, "uid-1")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if !res.Changed || res.Actor.DocID() != "uid-1" || res.Merge.Noop {
		t.Fatalf("result = %+v", res)
	}

	v, _ := s.Cart(ctx)
	if v.ID != "uid-1" || lineQty(v, "P1") != 3 {
		t.Fatalf("merged cart = %+v", v)
	}
	for _, id := range []string{"P2", "P3"} {
		if on, _ := s.IsFavorite(ctx, id); !on {
			t.Fatalf("merged favorites missing %s", id)
		}
	}

	// the anonymous documents are retained unchanged
	snap, _ := env.carts.Get(ctx, anon.DocID())
	if !snap.Exists || len(snap.Doc.Items) != 1 || snap.Doc.Items[0].Quantity != 2 {
		t.Fatalf("anonymous cart = %+v", snap)
	}

	// signing in again is not another login edge
	res, err = s.SignIn(ctx, "uid-1")
	if err != nil || res.Changed {
		t.Fatalf("repeat SignIn = %+v %v", res, err)
	}
	if v, _ := s.Cart(ctx); lineQty(v, "P1") != 3 {
		t.Fatalf("second sign-in merged again: %+v", v)
	}
}

func TestSession_RebuiltSessionDoesNotMergeAgain(t *testing.T) {
	env := newLiveEnv()
	ctx := testCtx(t)

	first := openSession(t, env.deps)
	anon, _ := first.Actor(ctx)
	if _, err := first.AddItem(ctx, "P1", 2, cartdom.Variant{}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if _, err := first.SignIn(ctx, "uid-1"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if v, _ := first.Cart(ctx); lineQty(v, "P1") != 2 {
		t.Fatalf("merged cart = %+v", v)
	}
	first.Close()

	// process restart: same device, key store and backend
	second := openSession(t, env.deps)
	k, _ := second.Actor(ctx)
	if !k.IsAnonymous() || k == anon {
		t.Fatalf("rebuilt session actor = %s, want a fresh anonymous key (merged key %s)", k, anon)
	}

	if _, err := second.SignIn(ctx, "uid-1"); err != nil {
		t.Fatalf("second SignIn: %v", err)
	}
	if v, _ := second.Cart(ctx); lineQty(v, "P1") != 2 {
		t.Fatalf("cart after second sign-in = %+v, want P1 qty 2", v)
	}
	snap, err := env.carts.Get(ctx, "uid-1")
	if err != nil || !snap.Exists || snap.Doc.Items[0].Quantity != 2 {
		t.Fatalf("stored user cart = %+v %v", snap, err)
	}
}

func TestSession_FailedCartMergeKeepsAnonymousKey(t *testing.T) {
	env := newLiveEnv()
	ctx := testCtx(t)

	first := openSession(t, env.deps)
	anon, _ := first.Actor(ctx)
	if _, err := first.AddItem(ctx, "P1", 2, cartdom.Variant{}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	env.carts.FailPuts(errors.New("boom"))
	if _, err := first.SignIn(ctx, "uid-1"); err == nil {
		t.Fatalf("SignIn: expected merge error")
	}
	first.Close()
	env.carts.FailPuts(nil)

	// the merge never landed, so the rebuilt session retries it from the same key
	second := openSession(t, env.deps)
	if k, _ := second.Actor(ctx); k != anon {
		t.Fatalf("rebuilt actor = %s, want %s", k, anon)
	}
	if _, err := second.SignIn(ctx, "uid-1"); err != nil {
		t.Fatalf("retry SignIn: %v", err)
	}
	if v, _ := second.Cart(ctx); lineQty(v, "P1") != 2 {
		t.Fatalf("cart after retried merge = %+v", v)
	}
}

func TestSession_LogoutStartsFreshAnonymousState(t *testing.T) {
	env := newLiveEnv()
	s := openSession(t, env.deps)
	ctx := testCtx(t)

	anon, _ := s.Actor(ctx)
	if _, err := s.SignIn(ctx, "uid-1"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	_, _ = s.AddItem(ctx, "P1", 1, cartdom.Variant{})

	k, err := s.SignOut(ctx)
	if err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if !k.IsAnonymous() || k == anon {
		t.Fatalf("actor after sign-out = %s (previous anonymous %s)", k, anon)
	}
	v, _ := s.Cart(ctx)
	if len(v.Items) != 0 {
		t.Fatalf("cart after sign-out = %+v", v)
	}

	// the user's cart is untouched
	snap, _ := env.carts.Get(ctx, "uid-1")
	if !snap.Exists || len(snap.Doc.Items) != 1 {
		t.Fatalf("user cart = %+v", snap)
	}
}

// gatedReader blocks the first Get after arm() until release is closed.
type gatedReader struct {
	productdom.Reader
	armed   atomic.Bool
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (r *gatedReader) arm() { r.armed.Store(true) }

func (r *gatedReader) Get(ctx context.Context, id string) (productdom.Product, bool, error) {
	if r.armed.Load() {
		first := false
		r.once.Do(func() { first = true })
		if first {
			close(r.entered)
			<-r.release
		}
	}
	return r.Reader.Get(ctx, id)
}

func TestSession_MutationDuringMergeAppliesAfterIt(t *testing.T) {
	env := newLiveEnv()
	gr := &gatedReader{Reader: env.catalog, entered: make(chan struct{}), release: make(chan struct{})}
	env.deps.Products = gr
	s := openSession(t, env.deps)
	ctx := testCtx(t)

	_, _ = s.AddItem(ctx, "P1", 2, cartdom.Variant{})

	gr.arm()
	signedIn := make(chan error, 1)
	go func() {
		_, err := s.SignIn(ctx, "uid-1")
		signedIn <- err
	}()

	select {
	case <-gr.entered:
	case <-ctx.Done():
		t.Fatalf("merge never looked up stock")
	}

	added := make(chan usecase.AddResult, 1)
	addErr := make(chan error, 1)
	go func() {
		res, err := s.AddItem(ctx, "P2", 1, cartdom.Variant{})
		added <- res
		addErr <- err
	}()

	// the add is queued behind the running merge
	select {
	case <-added:
		t.Fatalf("mutation ran before the merge finished")
	case <-time.After(50 * time.Millisecond):
	}
	close(gr.release)

	if err := <-signedIn; err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	res := <-added
	if err := <-addErr; err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if res.Cart.ID != "uid-1" || lineQty(res.Cart, "P1") != 2 || lineQty(res.Cart, "P2") != 1 {
		t.Fatalf("cart = %+v", res.Cart)
	}
}

// ------------------------------------------------------------
// mock mode
// ------------------------------------------------------------

func TestSession_MockModeKeepsLocalState(t *testing.T) {
	deps := newMockDeps()
	s := openSession(t, deps)
	ctx := testCtx(t)

	if s.Mode() != document.ModeMock {
		t.Fatalf("Mode = %s", s.Mode())
	}

	if _, err := s.AddItem(ctx, "P1", 2, cartdom.Variant{}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	k, _ := s.Actor(ctx)
	snap, _ := deps.Backend.Carts.Get(ctx, k.DocID())
	if snap.Exists {
		t.Fatalf("mock store reported a document")
	}
	v, _ := s.Cart(ctx)
	if lineQty(v, "P1") != 2 {
		t.Fatalf("local cart = %+v", v)
	}

	// the merge reads the local confirmed state when the store has nothing
	if _, err := s.SignIn(ctx, "uid-1"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	v, _ = s.Cart(ctx)
	if v.ID != "uid-1" || lineQty(v, "P1") != 2 {
		t.Fatalf("merged cart = %+v", v)
	}
}

// ------------------------------------------------------------
// lifecycle
// ------------------------------------------------------------

func TestSession_ClosedRejectsCommands(t *testing.T) {
	env := newLiveEnv()
	s, err := usecase.NewSession(context.Background(), "device-1", env.deps)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.Close()

	if _, err := s.Cart(testCtx(t)); !errors.Is(err, usecase.ErrSessionClosed) {
		t.Fatalf("err = %v, want ErrSessionClosed", err)
	}
}

func TestSessionRegistry(t *testing.T) {
	env := newLiveEnv()
	reg, err := usecase.NewSessionRegistry(env.deps)
	if err != nil {
		t.Fatalf("NewSessionRegistry: %v", err)
	}
	ctx := testCtx(t)

	a, err := reg.Get(ctx, "device-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, _ := reg.Get(ctx, " device-1 ")
	if a != b {
		t.Fatalf("same device got two sessions")
	}
	if _, err := reg.Get(ctx, "device-2"); err != nil {
		t.Fatalf("Get(device-2): %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("Len = %d, want 2", reg.Len())
	}
	if _, err := reg.Get(ctx, ""); !errors.Is(err, identity.ErrInvalidDevice) {
		t.Fatalf("empty device err = %v", err)
	}

	reg.Drop("device-2")
	if reg.Len() != 1 {
		t.Fatalf("Len after Drop = %d", reg.Len())
	}

	reg.Close()
	if _, err := reg.Get(ctx, "device-1"); !errors.Is(err, usecase.ErrSessionClosed) {
		t.Fatalf("Get after Close err = %v", err)
	}
	if _, err := a.Cart(ctx); !errors.Is(err, usecase.ErrSessionClosed) {
		t.Fatalf("session not closed with the registry: %v", err)
	}
}

func TestNewSession_ValidatesDeps(t *testing.T) {
	deps := newLiveEnv().deps
	deps.Products = nil
	if _, err := usecase.NewSession(context.Background(), "device-1", deps); err == nil {
		t.Fatalf("expected error for missing product reader")
	}
}
