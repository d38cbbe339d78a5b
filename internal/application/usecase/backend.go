// internal/application/usecase/backend.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/application/optimistic"
	cartdom "storefront/internal/domain/cart"
	"storefront/internal/domain/document"
	favdom "storefront/internal/domain/favorite"
	productdom "storefront/internal/domain/product"
)

var (
	ErrInvalidArgument = errors.New("usecase: invalid argument")
	ErrSessionClosed   = errors.New("usecase: session closed")
)

// Clock provides current time (for testability).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Backend is the document store variant chosen once at startup.
// Carts and Favorites are either both live or both mock; Mode says which.
type Backend struct {
	Mode      document.Mode
	Carts     cartdom.Store
	Favorites favdom.Store
}

func (b Backend) validate() error {
	if b.Carts == nil || b.Favorites == nil {
		return errors.New("usecase: backend stores are nil")
	}
	return nil
}

// CartDoc / FavoritesDoc are the optimistic documents of the active actor.
type (
	CartDoc      = optimistic.Coordinator[cartdom.Cart]
	FavoritesDoc = optimistic.Coordinator[favdom.Favorites]
	CartWrite    = optimistic.Write[cartdom.Cart]
	FavWrite     = optimistic.Write[favdom.Favorites]
)

// lookupProduct resolves a product id through the collaborator.
// Unknown ids become productdom.ErrNotFound; transport errors become document.ErrUnavailable.
func lookupProduct(ctx context.Context, products productdom.Reader, productID string) (productdom.Product, error) {
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return productdom.Product{}, fmt.Errorf("%w: productId is empty", ErrInvalidArgument)
	}
	p, ok, err := products.Get(ctx, pid)
	if err != nil {
		return productdom.Product{}, document.Unavailable("product get", err)
	}
	if !ok {
		return productdom.Product{}, fmt.Errorf("%w: id=%s", productdom.ErrNotFound, pid)
	}
	return p, nil
}
