// internal/application/usecase/merge_usecase.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"storefront/internal/domain/actor"
	cartdom "storefront/internal/domain/cart"
	favdom "storefront/internal/domain/favorite"
	productdom "storefront/internal/domain/product"
)

// MergeInput is the anonymous side of a login edge.
type MergeInput struct {
	From      actor.Key
	To        actor.Key
	Cart      cartdom.Cart
	Favorites favdom.Favorites
}

// MergeResult summarizes one login merge.
type MergeResult struct {
	Cart           cartdom.MergeReport
	FavoritesAdded int
	// Noop is true when the anonymous side was empty and nothing was written.
	Noop bool
	// CartApplied is true once the anonymous cart is part of the confirmed authenticated
	// cart (or there was no anonymous line to carry over).
	CartApplied bool
}

// MergeUsecase folds an anonymous cart and favorites set into the authenticated documents.
type MergeUsecase struct {
	products productdom.Reader
}

func NewMergeUsecase(products productdom.Reader) *MergeUsecase {
	return &MergeUsecase{products: products}
}

// Merge applies the merged cart and favorites to the authenticated documents and waits for
// both writes. On failure the coordinators have already rolled back to the pre-merge
// authenticated state. The anonymous documents are never modified.
func (uc *MergeUsecase) Merge(ctx context.Context, in MergeInput, carts *CartDoc, favs *FavoritesDoc) (MergeResult, error) {
	if in.To.IsZero() || in.To.IsAnonymous() {
		return MergeResult{}, fmt.Errorf("%w: merge target must be authenticated", ErrInvalidArgument)
	}

	log.Printf("[merge] start from=%s to=%s anonLines=%d anonFavorites=%d",
		in.From, in.To, len(in.Cart.Items), in.Favorites.Len())

	if in.Cart.IsEmpty() && in.Favorites.Len() == 0 {
		log.Printf("[merge] nothing to merge from=%s to=%s", in.From, in.To)
		return MergeResult{Noop: true, CartApplied: true}, nil
	}

	var (
		res    MergeResult
		cartW  *CartWrite
		favW   *FavWrite
		errs   []error
		target = in.To.DocID()
	)

	if !in.Cart.IsEmpty() {
		stockOf := uc.stockTable(ctx, in.Cart)
		anon := in.Cart.Clone()
		w, err := carts.Apply(func(c *cartdom.Cart) error {
			merged, rep := cartdom.Merge(anon, *c, stockOf)
			merged.ID = target
			*c = merged
			res.Cart = rep
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
		cartW = w
	}

	if in.Favorites.Len() > 0 {
		anon := in.Favorites.Clone()
		w, err := favs.Apply(func(f *favdom.Favorites) error {
			before := f.Len()
			u := favdom.Union(anon, *f)
			u.ID = target
			*f = u
			res.FavoritesAdded = u.Len() - before
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
		favW = w
	}

	if in.Cart.IsEmpty() {
		res.CartApplied = true
	}
	if cartW != nil {
		if _, err := cartW.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("merge cart: %w", err))
		} else {
			res.CartApplied = true
		}
	}
	if favW != nil {
		if _, err := favW.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("merge favorites: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		log.Printf("[merge] failed from=%s to=%s err=%v", in.From, in.To, err)
		return res, err
	}

	log.Printf("[merge] done from=%s to=%s combined=%d copied=%d clamped=%d skipped=%d favoritesAdded=%d",
		in.From, in.To, len(res.Cart.Combined), len(res.Cart.Copied), len(res.Cart.Clamped), len(res.Cart.Skipped), res.FavoritesAdded)
	log.Printf("[merge] anonymous documents retained key=%s", in.From.DocID())
	return res, nil
}

// stockTable prefetches the stock of every product in c. Products that cannot be resolved
// are left out, so the merge does not clamp them.
func (uc *MergeUsecase) stockTable(ctx context.Context, c cartdom.Cart) cartdom.StockLookup {
	seen := map[string]struct{}{}
	ids := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	sort.Strings(ids)

	stock := make(map[string]int, len(ids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			p, ok, err := uc.products.Get(gctx, id)
			if err != nil {
				log.Printf("[merge] stock lookup failed productId=%q err=%v (not clamped)", id, err)
				return nil
			}
			if !ok {
				log.Printf("[merge] product unknown productId=%q (not clamped)", id)
				return nil
			}
			mu.Lock()
			stock[id] = p.Stock
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return func(productID string) (int, bool) {
		n, ok := stock[productID]
		return n, ok
	}
}
