// internal/application/usecase/cart_usecase.go
package usecase

import (
	"context"
	"strings"

	cartdom "storefront/internal/domain/cart"
	productdom "storefront/internal/domain/product"
)

// CartUsecase is the cart engine: it validates against the product collaborator and
// applies mutations to the active actor's optimistic cart document.
//
// Each mutating method returns the queued write (nil when the mutation was a no-op);
// callers wait on it to learn the confirmed or rolled-back state.
type CartUsecase struct {
	products productdom.Reader
	clock    Clock
}

func NewCartUsecase(products productdom.Reader) *CartUsecase {
	return &CartUsecase{
		products: products,
		clock:    systemClock{},
	}
}

// NewCartUsecaseWithClock is useful for tests.
func NewCartUsecaseWithClock(products productdom.Reader, clock Clock) *CartUsecase {
	if clock == nil {
		clock = systemClock{}
	}
	return &CartUsecase{products: products, clock: clock}
}

// SetResult reports the quantity a SetQuantity call left on the line.
type SetResult struct {
	Quantity int
	Clamped  bool
	Removed  bool
}

// AddItem adds qty units of (productID, variant).
// Stock 0 fails with cartdom.ErrOutOfStock; otherwise the line is clamped to stock and the
// price snapshot of a new line is the product's effective price.
func (uc *CartUsecase) AddItem(ctx context.Context, doc *CartDoc, productID string, qty int, v cartdom.Variant) (cartdom.AddOutcome, *CartWrite, error) {
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return cartdom.AddOutcome{}, nil, ErrInvalidArgument
	}
	if qty <= 0 {
		return cartdom.AddOutcome{}, nil, cartdom.ErrInvalidQuantity
	}

	p, err := lookupProduct(ctx, uc.products, pid)
	if err != nil {
		return cartdom.AddOutcome{}, nil, err
	}
	if !p.InStock() {
		return cartdom.AddOutcome{}, nil, cartdom.ErrOutOfStock
	}

	now := uc.clock.Now()
	price := p.EffectivePrice()

	var out cartdom.AddOutcome
	w, err := doc.Apply(func(c *cartdom.Cart) error {
		o, err := c.Add(pid, v, qty, price, p.Stock, now)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return cartdom.AddOutcome{}, nil, err
	}
	return out, w, nil
}

// SetQuantity sets the quantity of an existing line; 0 removes it.
// A missing line fails with cartdom.ErrLineNotFound before any product lookup.
func (uc *CartUsecase) SetQuantity(ctx context.Context, doc *CartDoc, productID string, v cartdom.Variant, qty int) (SetResult, *CartWrite, error) {
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return SetResult{}, nil, ErrInvalidArgument
	}
	if qty < 0 {
		return SetResult{}, nil, cartdom.ErrInvalidQuantity
	}
	if !doc.Local().Has(pid, v) {
		return SetResult{}, nil, cartdom.ErrLineNotFound
	}

	stock := 0
	if qty > 0 {
		p, err := lookupProduct(ctx, uc.products, pid)
		if err != nil {
			return SetResult{}, nil, err
		}
		stock = p.Stock
	}

	var res SetResult
	w, err := doc.Apply(func(c *cartdom.Cart) error {
		n, clamped, err := c.SetQuantity(pid, v, qty, stock)
		if err != nil {
			return err
		}
		res = SetResult{Quantity: n, Clamped: clamped, Removed: qty == 0}
		return nil
	})
	if err != nil {
		return SetResult{}, nil, err
	}
	return res, w, nil
}

// RemoveItem removes a line. Removing an absent line is a successful no-op (no write).
func (uc *CartUsecase) RemoveItem(_ context.Context, doc *CartDoc, productID string, v cartdom.Variant) (*CartWrite, error) {
	pid := strings.TrimSpace(productID)
	if pid == "" {
		return nil, ErrInvalidArgument
	}
	if !doc.Local().Has(pid, v) {
		return nil, nil
	}
	return doc.Apply(func(c *cartdom.Cart) error {
		c.Remove(pid, v)
		return nil
	})
}

// Clear empties the cart. An already empty cart is not rewritten.
func (uc *CartUsecase) Clear(_ context.Context, doc *CartDoc) (*CartWrite, error) {
	if doc.Local().IsEmpty() {
		return nil, nil
	}
	return doc.Apply(func(c *cartdom.Cart) error {
		c.Clear()
		return nil
	})
}

// View, Subtotal and ItemCount are local reads; they never write.
func (uc *CartUsecase) View(doc *CartDoc) cartdom.View {
	return cartdom.NewView(doc.Local())
}

func (uc *CartUsecase) Subtotal(doc *CartDoc) int64 {
	return doc.Local().Subtotal()
}

func (uc *CartUsecase) ItemCount(doc *CartDoc) int {
	return doc.Local().ItemCount()
}
