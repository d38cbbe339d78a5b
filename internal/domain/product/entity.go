package product

import (
	"errors"
	"strings"
)

var (
	ErrNotFound       = errors.New("product: not found")
	ErrInvalidProduct = errors.New("product: invalid")
)

// Attributes are the variant dimensions a product is offered in.
type Attributes struct {
	FabricType string `json:"fabricType,omitempty"`
	Color      string `json:"color,omitempty"`
	Size       string `json:"size,omitempty"`
}

// Product is the read-only projection the cart and favorites engines consume.
// Prices are in the smallest currency unit.
type Product struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	ImageURL      string     `json:"imageUrl,omitempty"`
	Price         int64      `json:"price"`
	DiscountPrice *int64     `json:"discountPrice,omitempty"`
	Stock         int        `json:"stock"`
	Attributes    Attributes `json:"attributes"`
}

// EffectivePrice is the discount price when present (and valid), otherwise the list price.
func (p Product) EffectivePrice() int64 {
	if p.DiscountPrice != nil && *p.DiscountPrice >= 0 && *p.DiscountPrice < p.Price {
		return *p.DiscountPrice
	}
	return p.Price
}

func (p Product) InStock() bool { return p.Stock > 0 }

// Validate checks the fields the engines rely on.
func (p Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrInvalidProduct
	}
	if p.Price < 0 || p.Stock < 0 {
		return ErrInvalidProduct
	}
	if p.DiscountPrice != nil && (*p.DiscountPrice < 0 || *p.DiscountPrice >= p.Price) {
		return ErrInvalidProduct
	}
	return nil
}

// Int64Ptr is a small helper for optional prices.
func Int64Ptr(v int64) *int64 { return &v }
