// internal/application/usecase/session.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"storefront/internal/application/identity"
	"storefront/internal/application/optimistic"
	"storefront/internal/domain/actor"
	cartdom "storefront/internal/domain/cart"
	"storefront/internal/domain/document"
	favdom "storefront/internal/domain/favorite"
	productdom "storefront/internal/domain/product"
)

// SessionDeps are the collaborators shared by every session.
type SessionDeps struct {
	Backend      Backend
	Products     productdom.Reader
	Keys         identity.DeviceKeyStore
	Clock        Clock
	WriteTimeout time.Duration
}

func (d SessionDeps) validate() error {
	if err := d.Backend.validate(); err != nil {
		return err
	}
	if d.Products == nil {
		return errors.New("usecase: product reader is nil")
	}
	if d.Keys == nil {
		return errors.New("usecase: device key store is nil")
	}
	return nil
}

// AddResult is the outcome of AddItem.
type AddResult struct {
	Outcome cartdom.AddOutcome
	Cart    cartdom.View
}

// SetQuantityResult is the outcome of SetQuantity.
type SetQuantityResult struct {
	SetResult
	Cart cartdom.View
}

// SignInResult is the outcome of SignIn.
type SignInResult struct {
	Actor   actor.Key
	Changed bool
	Merge   MergeResult
}

// Session is the state container of one device.
//
// It owns the identity resolver, the active actor's cart and favorites documents and the
// engines operating on them. Every operation (mutations, reads, identity transitions) runs
// through one FIFO command loop, so a mutation issued while a login merge is running is
// applied after the merge, against the merged state.
//
// Mutations run their product lookup and local apply inside the loop; waiting for the store
// write happens outside it, so later commands are not held up by a slow write.
type Session struct {
	deviceID string
	deps     SessionDeps
	resolver *identity.Resolver
	carts    *CartUsecase
	favs     *FavoritesUsecase
	merge    *MergeUsecase

	qmu    sync.Mutex
	queue  []*command
	closed bool
	wake   chan struct{}
	stop   chan struct{}
	done   chan struct{}

	// loop-owned
	actor       actor.Key
	cartDoc     *CartDoc
	favDoc      *FavoritesDoc
	transitions []identity.Transition
	cancelObs   func()
}

type command struct {
	name    string
	fn      func()
	dropped bool
	done    chan struct{}
}

// NewSession resolves the device's actor key and opens its documents.
func NewSession(ctx context.Context, deviceID string, deps SessionDeps) (*Session, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}

	r, err := identity.NewResolver(ctx, deviceID, deps.Keys)
	if err != nil {
		return nil, err
	}

	s := &Session{
		deviceID: r.DeviceID(),
		deps:     deps,
		resolver: r,
		carts:    NewCartUsecaseWithClock(deps.Products, deps.Clock),
		favs:     NewFavoritesUsecase(deps.Products),
		merge:    NewMergeUsecase(deps.Products),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	// observers run synchronously inside resolver calls, which only happen on the loop
	s.cancelObs = r.OnChange(func(t identity.Transition) {
		s.transitions = append(s.transitions, t)
	})

	s.open(ctx, r.Current())
	go s.loop()

	log.Printf("[session] open device=%q actor=%s mode=%s", s.deviceID, s.actor, deps.Backend.Mode)
	return s, nil
}

func (s *Session) DeviceID() string { return s.deviceID }

func (s *Session) Mode() document.Mode { return s.deps.Backend.Mode }

// Close tears the session down: queued commands fail with ErrSessionClosed, subscriptions
// are cancelled and the writers stop after their in-flight write.
func (s *Session) Close() {
	s.qmu.Lock()
	if s.closed {
		s.qmu.Unlock()
		return
	}
	s.closed = true
	dropped := s.queue
	s.queue = nil
	s.qmu.Unlock()

	for _, c := range dropped {
		c.dropped = true
		close(c.done)
	}
	close(s.stop)
	<-s.done

	if s.cancelObs != nil {
		s.cancelObs()
	}
	s.closeDocs()
	log.Printf("[session] closed device=%q actor=%s", s.deviceID, s.actor)
}

// ------------------------------------------------------------
// identity
// ------------------------------------------------------------

// Actor returns the active actor key.
func (s *Session) Actor(ctx context.Context) (actor.Key, error) {
	var k actor.Key
	err := s.do(ctx, "actor", func() { k = s.actor })
	return k, err
}

// SignIn switches to the authenticated uid. From an anonymous key this is the login edge
// and runs the merge before any later command. Signing in as the current user is a no-op.
func (s *Session) SignIn(ctx context.Context, uid string) (SignInResult, error) {
	var (
		res SignInResult
		err error
	)
	if derr := s.do(ctx, "signin", func() { res, err = s.signIn(ctx, uid) }); derr != nil {
		return SignInResult{}, derr
	}
	return res, err
}

// SignOut replaces the authenticated key with a fresh anonymous key. It never merges.
func (s *Session) SignOut(ctx context.Context) (actor.Key, error) {
	var (
		k   actor.Key
		err error
	)
	if derr := s.do(ctx, "signout", func() {
		s.transitions = nil
		if _, _, err = s.resolver.SignOut(ctx); err != nil {
			k = s.actor
			return
		}
		_, err = s.applyTransitions(ctx)
		k = s.actor
	}); derr != nil {
		return actor.Key{}, derr
	}
	return k, err
}

func (s *Session) signIn(ctx context.Context, uid string) (SignInResult, error) {
	s.transitions = nil
	_, changed, err := s.resolver.SignIn(ctx, uid)

	// a failed switch between users may already have passed the logout edge
	mres, terr := s.applyTransitions(ctx)
	res := SignInResult{Actor: s.actor, Changed: changed, Merge: mres}
	if err != nil {
		return res, err
	}
	return res, terr
}

func (s *Session) applyTransitions(ctx context.Context) (MergeResult, error) {
	ts := s.transitions
	s.transitions = nil

	var (
		mres MergeResult
		errs []error
	)
	for _, t := range ts {
		switch t.Kind {
		case identity.Logout:
			s.closeDocs()
			s.open(ctx, t.To)
		case identity.Login:
			r, err := s.login(ctx, t)
			mres = r
			if err != nil {
				errs = append(errs, err)
			}
		}
	}
	return mres, errors.Join(errs...)
}

// login runs the merge protocol for the anonymous→authenticated edge.
func (s *Session) login(ctx context.Context, t identity.Transition) (MergeResult, error) {
	anonCart, anonFavs := s.cartDoc, s.favDoc

	// let the anonymous writes settle so the merge sees them
	if err := anonCart.Flush(ctx); err != nil {
		log.Printf("[session] WARN flush anonymous cart device=%q err=%v", s.deviceID, err)
	}
	if err := anonFavs.Flush(ctx); err != nil {
		log.Printf("[session] WARN flush anonymous favorites device=%q err=%v", s.deviceID, err)
	}

	in := MergeInput{
		From:      t.From,
		To:        t.To,
		Cart:      newestDoc(ctx, s.deps.Backend.Carts, anonCart),
		Favorites: newestDoc(ctx, s.deps.Backend.Favorites, anonFavs),
	}

	s.closeDocs()
	s.open(ctx, t.To)

	res, err := s.merge.Merge(ctx, in, s.cartDoc, s.favDoc)
	if res.CartApplied {
		// the stored key still names the merged documents; a rebuilt session must not merge them again
		if _, rerr := s.resolver.RotateAnonymous(ctx); rerr != nil {
			log.Printf("[session] WARN rotate anonymous key device=%q err=%v", s.deviceID, rerr)
		}
	}
	return res, err
}

// newestDoc returns the newer of the store copy and the coordinator's confirmed state.
// In mock mode the store copy is always absent, so the confirmed state wins.
func newestDoc[D document.Doc[D]](ctx context.Context, store document.Store[D], doc *optimistic.Coordinator[D]) D {
	confirmed, at := doc.Confirmed()
	snap, err := store.Get(ctx, doc.Key())
	if err != nil {
		log.Printf("[session] WARN read before merge key=%q err=%v (using local confirmed state)", doc.Key(), err)
		return confirmed
	}
	if snap.Exists && !snap.UpdatedAt.Before(at) {
		return snap.Doc
	}
	return confirmed
}

func (s *Session) open(ctx context.Context, k actor.Key) {
	opts := []optimistic.Option{optimistic.WithClock(s.deps.Clock)}
	if s.deps.WriteTimeout > 0 {
		opts = append(opts, optimistic.WithWriteTimeout(s.deps.WriteTimeout))
	}

	id := k.DocID()
	s.actor = k
	s.cartDoc = optimistic.New(id, s.deps.Backend.Carts, cartdom.Empty(id), append(opts, optimistic.WithName("cart"))...)
	s.favDoc = optimistic.New(id, s.deps.Backend.Favorites, favdom.Empty(id), append(opts, optimistic.WithName("favorites"))...)

	if err := s.cartDoc.Start(ctx); err != nil {
		log.Printf("[session] WARN cart sync device=%q actor=%s err=%v", s.deviceID, k, err)
	}
	if err := s.favDoc.Start(ctx); err != nil {
		log.Printf("[session] WARN favorites sync device=%q actor=%s err=%v", s.deviceID, k, err)
	}
}

func (s *Session) closeDocs() {
	if s.cartDoc != nil {
		s.cartDoc.Close()
	}
	if s.favDoc != nil {
		s.favDoc.Close()
	}
}

// ------------------------------------------------------------
// cart
// ------------------------------------------------------------

// Cart returns the current cart view (local read).
func (s *Session) Cart(ctx context.Context) (cartdom.View, error) {
	var v cartdom.View
	err := s.do(ctx, "cart", func() { v = s.carts.View(s.cartDoc) })
	return v, err
}

func (s *Session) Subtotal(ctx context.Context) (int64, error) {
	var n int64
	err := s.do(ctx, "subtotal", func() { n = s.carts.Subtotal(s.cartDoc) })
	return n, err
}

func (s *Session) ItemCount(ctx context.Context) (int, error) {
	var n int
	err := s.do(ctx, "itemCount", func() { n = s.carts.ItemCount(s.cartDoc) })
	return n, err
}

func (s *Session) AddItem(ctx context.Context, productID string, qty int, v cartdom.Variant) (AddResult, error) {
	var (
		out cartdom.AddOutcome
		w   *CartWrite
		err error
	)
	if derr := s.do(ctx, "addItem", func() {
		out, w, err = s.carts.AddItem(ctx, s.cartDoc, productID, qty, v)
	}); derr != nil {
		return AddResult{}, derr
	}
	if err != nil {
		return AddResult{}, err
	}
	c, err := w.Wait(ctx)
	return AddResult{Outcome: out, Cart: cartdom.NewView(c)}, err
}

func (s *Session) SetQuantity(ctx context.Context, productID string, v cartdom.Variant, qty int) (SetQuantityResult, error) {
	var (
		res SetResult
		w   *CartWrite
		err error
	)
	if derr := s.do(ctx, "setQuantity", func() {
		res, w, err = s.carts.SetQuantity(ctx, s.cartDoc, productID, v, qty)
	}); derr != nil {
		return SetQuantityResult{}, derr
	}
	if err != nil {
		return SetQuantityResult{}, err
	}
	c, err := w.Wait(ctx)
	return SetQuantityResult{SetResult: res, Cart: cartdom.NewView(c)}, err
}

func (s *Session) RemoveItem(ctx context.Context, productID string, v cartdom.Variant) (cartdom.View, error) {
	return s.cartWrite(ctx, "removeItem", func(doc *CartDoc) (*CartWrite, error) {
		return s.carts.RemoveItem(ctx, doc, productID, v)
	})
}

func (s *Session) Clear(ctx context.Context) (cartdom.View, error) {
	return s.cartWrite(ctx, "clear", func(doc *CartDoc) (*CartWrite, error) {
		return s.carts.Clear(ctx, doc)
	})
}

// cartWrite runs a mutation that may be a no-op (nil write), returning the resulting view.
func (s *Session) cartWrite(ctx context.Context, name string, fn func(*CartDoc) (*CartWrite, error)) (cartdom.View, error) {
	var (
		w    *CartWrite
		view cartdom.View
		err  error
	)
	if derr := s.do(ctx, name, func() {
		w, err = fn(s.cartDoc)
		if w == nil {
			view = s.carts.View(s.cartDoc)
		}
	}); derr != nil {
		return cartdom.View{}, derr
	}
	if err != nil {
		return cartdom.View{}, err
	}
	if w == nil {
		return view, nil
	}
	c, err := w.Wait(ctx)
	return cartdom.NewView(c), err
}

// ------------------------------------------------------------
// favorites
// ------------------------------------------------------------

func (s *Session) IsFavorite(ctx context.Context, productID string) (bool, error) {
	if strings.TrimSpace(productID) == "" {
		return false, favdom.ErrInvalidProductID
	}
	var on bool
	err := s.do(ctx, "isFavorite", func() { on = s.favs.IsFavorite(s.favDoc, productID) })
	return on, err
}

// ToggleFavorite flips membership and returns the confirmed state.
// On a failed write the returned state is the rolled-back one.
func (s *Session) ToggleFavorite(ctx context.Context, productID string) (bool, error) {
	var (
		on  bool
		w   *FavWrite
		err error
	)
	if derr := s.do(ctx, "toggleFavorite", func() {
		on, w, err = s.favs.Toggle(ctx, s.favDoc, productID)
	}); derr != nil {
		return false, derr
	}
	if err != nil {
		return false, err
	}
	f, err := w.Wait(ctx)
	if err != nil {
		return f.Has(productID), err
	}
	return on, nil
}

// SetFavorite sets membership explicitly (no-op success when already in that state).
func (s *Session) SetFavorite(ctx context.Context, productID string, on bool) error {
	var (
		w   *FavWrite
		err error
	)
	if derr := s.do(ctx, "setFavorite", func() {
		w, err = s.favs.SetFavorite(ctx, s.favDoc, productID, on)
	}); derr != nil {
		return derr
	}
	if err != nil || w == nil {
		return err
	}
	_, err = w.Wait(ctx)
	return err
}

// Favorites returns the hydrated favorites list. Hydration runs outside the command loop.
func (s *Session) Favorites(ctx context.Context) ([]productdom.Product, error) {
	var ids []string
	if err := s.do(ctx, "favorites", func() { ids = s.favs.IDs(s.favDoc) }); err != nil {
		return nil, err
	}
	return s.favs.List(ctx, ids)
}

// ------------------------------------------------------------
// command loop
// ------------------------------------------------------------

// do queues fn and waits until it ran. Once queued a command always runs (unless the
// session closes first); a cancelled ctx only stops the wait.
func (s *Session) do(ctx context.Context, name string, fn func()) error {
	cmd := &command{name: name, fn: fn, done: make(chan struct{})}

	s.qmu.Lock()
	if s.closed {
		s.qmu.Unlock()
		return ErrSessionClosed
	}
	s.queue = append(s.queue, cmd)
	s.qmu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}

	select {
	case <-cmd.done:
		if cmd.dropped {
			return ErrSessionClosed
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session %s: %w", name, ctx.Err())
	}
}

func (s *Session) next() *command {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	if s.closed || len(s.queue) == 0 {
		return nil
	}
	c := s.queue[0]
	s.queue = s.queue[1:]
	return c
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		c := s.next()
		if c == nil {
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}
		c.fn()
		close(c.done)
	}
}
