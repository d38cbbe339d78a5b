// internal/domain/favorite/entity.go
package favorite

import (
	"errors"
	"sort"
	"strings"
	"time"

	"storefront/internal/domain/document"
)

var ErrInvalidProductID = errors.New("favorite: invalid productId")

// Favorites is the favorited-product set of one actor.
// ProductIDs is kept sorted and unique so documents compare and serialize deterministically.
type Favorites struct {
	ID         string    `json:"id"`
	ProductIDs []string  `json:"productIds"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Store is the remote document store port for favorites (collection: favorites, docId: actor key).
type Store = document.Store[Favorites]

func Empty(id string) Favorites {
	return Favorites{ID: strings.TrimSpace(id), ProductIDs: []string{}}
}

func New(id string, productIDs []string) Favorites {
	f := Empty(id)
	f.ProductIDs = normalize(productIDs)
	return f
}

func (f Favorites) Has(productID string) bool {
	pid := strings.TrimSpace(productID)
	i := sort.SearchStrings(f.ProductIDs, pid)
	return i < len(f.ProductIDs) && f.ProductIDs[i] == pid
}

// Set favorites (on=true) or un-favorites (on=false) a product.
// Favoriting a present id and un-favoriting an absent id are no-op successes.
// changed reports whether membership flipped.
func (f *Favorites) Set(productID string, on bool) (changed bool, err error) {
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return false, ErrInvalidProductID
	}
	if f.Has(pid) == on {
		return false, nil
	}
	if on {
		f.ProductIDs = normalize(append(clone(f.ProductIDs), pid))
		return true, nil
	}
	out := make([]string, 0, len(f.ProductIDs))
	for _, id := range f.ProductIDs {
		if id != pid {
			out = append(out, id)
		}
	}
	f.ProductIDs = out
	return true, nil
}

// Toggle flips membership and returns the new state. Toggle is its own inverse.
func (f *Favorites) Toggle(productID string) (bool, error) {
	on := !f.Has(productID)
	if _, err := f.Set(productID, on); err != nil {
		return false, err
	}
	return on, nil
}

func (f Favorites) Len() int { return len(f.ProductIDs) }

// Union is the login-edge merge: a pure set union, written under authed's id.
func Union(anon, authed Favorites) Favorites {
	ids := make([]string, 0, len(anon.ProductIDs)+len(authed.ProductIDs))
	ids = append(ids, authed.ProductIDs...)
	ids = append(ids, anon.ProductIDs...)
	out := authed.Clone()
	out.ProductIDs = normalize(ids)
	return out
}

func (f Favorites) Clone() Favorites {
	out := f
	out.ProductIDs = clone(f.ProductIDs)
	return out
}

func (f Favorites) Stamp(updatedAt time.Time) Favorites {
	out := f.Clone()
	out.UpdatedAt = updatedAt
	return out
}

func normalize(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func clone(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
