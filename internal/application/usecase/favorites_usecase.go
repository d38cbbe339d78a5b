// internal/application/usecase/favorites_usecase.go
package usecase

import (
	"context"
	"log"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	favdom "storefront/internal/domain/favorite"
	productdom "storefront/internal/domain/product"
)

// hydrateConcurrency bounds parallel product lookups in List.
const hydrateConcurrency = 8

// FavoritesUsecase is the favorites engine.
type FavoritesUsecase struct {
	products productdom.Reader
}

func NewFavoritesUsecase(products productdom.Reader) *FavoritesUsecase {
	return &FavoritesUsecase{products: products}
}

// Toggle flips membership of productID and returns the new state.
func (uc *FavoritesUsecase) Toggle(_ context.Context, doc *FavoritesDoc, productID string) (bool, *FavWrite, error) {
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return false, nil, favdom.ErrInvalidProductID
	}

	var on bool
	w, err := doc.Apply(func(f *favdom.Favorites) error {
		v, err := f.Toggle(pid)
		if err != nil {
			return err
		}
		on = v
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return on, w, nil
}

// SetFavorite sets membership explicitly. Favoriting a present id or un-favoriting an
// absent id is a successful no-op and writes nothing.
func (uc *FavoritesUsecase) SetFavorite(_ context.Context, doc *FavoritesDoc, productID string, on bool) (*FavWrite, error) {
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return nil, favdom.ErrInvalidProductID
	}
	if doc.Local().Has(pid) == on {
		return nil, nil
	}
	return doc.Apply(func(f *favdom.Favorites) error {
		_, err := f.Set(pid, on)
		return err
	})
}

// IsFavorite is a pure local read.
func (uc *FavoritesUsecase) IsFavorite(doc *FavoritesDoc, productID string) bool {
	return doc.Local().Has(productID)
}

// IDs returns the favorited ids in sorted order.
func (uc *FavoritesUsecase) IDs(doc *FavoritesDoc) []string {
	return doc.Local().ProductIDs
}

// List hydrates the favorited ids into products, in id order.
// Ids whose lookup fails or is absent are left out; List itself never fails on them.
func (uc *FavoritesUsecase) List(ctx context.Context, ids []string) ([]productdom.Product, error) {
	if len(ids) == 0 {
		return []productdom.Product{}, nil
	}

	if br, ok := uc.products.(productdom.BatchReader); ok {
		m, err := br.GetMany(ctx, ids)
		if err == nil {
			out := make([]productdom.Product, 0, len(ids))
			for _, id := range ids {
				if p, ok := m[id]; ok {
					out = append(out, p)
				}
			}
			return out, nil
		}
		log.Printf("[favorites] batch hydrate failed, falling back to single reads err=%v", err)
	}

	found := make([]*productdom.Product, len(ids))
	var mu sync.Mutex
	missing := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			p, ok, err := uc.products.Get(gctx, id)
			if err != nil || !ok {
				if err != nil {
					log.Printf("[favorites] hydrate skip productId=%q err=%v", id, err)
				}
				mu.Lock()
				missing++
				mu.Unlock()
				return nil
			}
			found[i] = &p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]productdom.Product, 0, len(ids)-missing)
	for _, p := range found {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}
