// internal/domain/cart/entity.go
package cart

import (
	"errors"
	"math"
	"strings"
	"time"
)

var (
	ErrInvalidCart     = errors.New("cart: invalid")
	ErrInvalidQuantity = errors.New("cart: invalid quantity")
	ErrOutOfStock      = errors.New("cart: out of stock")
	ErrLineNotFound    = errors.New("cart: line not found")
)

// Recognized variant keys.
const (
	VariantFabricType = "fabricType"
	VariantColor      = "color"
	VariantSize       = "size"
)

// Variant is the fabric/color/size selection of a line.
// An empty field means "unspecified", not "any": {color:red} and {color:red,size:M}
// are different lines.
type Variant struct {
	FabricType string `json:"fabricType,omitempty"`
	Color      string `json:"color,omitempty"`
	Size       string `json:"size,omitempty"`
}

// VariantFromMap builds a Variant from a loosely typed mapping.
// Unknown keys are ignored.
func VariantFromMap(m map[string]string) Variant {
	if m == nil {
		return Variant{}
	}
	return Variant{
		FabricType: m[VariantFabricType],
		Color:      m[VariantColor],
		Size:       m[VariantSize],
	}.Normalize()
}

// Map returns only the specified keys.
func (v Variant) Map() map[string]string {
	out := map[string]string{}
	v = v.Normalize()
	if v.FabricType != "" {
		out[VariantFabricType] = v.FabricType
	}
	if v.Color != "" {
		out[VariantColor] = v.Color
	}
	if v.Size != "" {
		out[VariantSize] = v.Size
	}
	return out
}

func (v Variant) Normalize() Variant {
	return Variant{
		FabricType: strings.TrimSpace(v.FabricType),
		Color:      strings.TrimSpace(v.Color),
		Size:       strings.TrimSpace(v.Size),
	}
}

// LineKey is the identity of a line item: (productId, variant).
type LineKey struct {
	ProductID string
	Variant   Variant
}

func NewLineKey(productID string, v Variant) LineKey {
	return LineKey{ProductID: strings.TrimSpace(productID), Variant: v.Normalize()}
}

// CartItem is one line of a cart.
// UnitPriceSnapshot is in the smallest currency unit and never changes once set.
type CartItem struct {
	ProductID         string    `json:"productId"`
	Variant           Variant   `json:"variant"`
	Quantity          int       `json:"quantity"`
	UnitPriceSnapshot int64     `json:"unitPriceSnapshot"`
	PriceCapturedAt   time.Time `json:"priceCapturedAt"`
}

func (it CartItem) Key() LineKey {
	return NewLineKey(it.ProductID, it.Variant)
}

// LineTotal = UnitPriceSnapshot * Quantity.
func (it CartItem) LineTotal() int64 {
	return it.UnitPriceSnapshot * int64(it.Quantity)
}

// Cart is the cart document of one actor.
//   - ID is the actor key (document id)
//   - Items keep insertion order
//   - UpdatedAt is assigned by the document store on every write, never by the client
type Cart struct {
	ID        string     `json:"id"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// NewCart creates an empty cart for the actor key.
func NewCart(id string) (Cart, error) {
	c := Cart{ID: strings.TrimSpace(id), Items: []CartItem{}}
	if err := c.Validate(); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// Empty returns an empty cart without validation (used as the zero state of a key).
func Empty(id string) Cart {
	return Cart{ID: strings.TrimSpace(id), Items: []CartItem{}}
}

// AddOutcome reports what an Add actually did.
type AddOutcome struct {
	Requested int
	// Quantity is the resulting line quantity.
	Quantity int
	// Added is the change of the line quantity (negative only when stock shrank below the line).
	Added   int
	Clamped bool
	NewLine bool
}

// Add merges qty into the (productID, variant) line, or appends a new line whose price
// snapshot is unitPrice. The resulting line quantity is min(stock, existing+qty).
// stock == 0 fails with ErrOutOfStock.
func (c *Cart) Add(productID string, v Variant, qty int, unitPrice int64, stock int, now time.Time) (AddOutcome, error) {
	if c == nil {
		return AddOutcome{}, ErrInvalidCart
	}
	k := NewLineKey(productID, v)
	if k.ProductID == "" {
		return AddOutcome{}, ErrInvalidCart
	}
	if qty <= 0 {
		return AddOutcome{}, ErrInvalidQuantity
	}
	if stock <= 0 {
		return AddOutcome{}, ErrOutOfStock
	}
	if unitPrice < 0 {
		return AddOutcome{}, ErrInvalidCart
	}
	if c.Items == nil {
		c.Items = []CartItem{}
	}

	out := AddOutcome{Requested: qty}

	idx := c.indexOf(k)
	if idx >= 0 {
		cur := c.Items[idx].Quantity
		// a line above the current stock (stock dropped since it was added) is pulled down to stock
		next, clamped := clamp(addQty(cur, qty), stock)
		c.Items[idx].Quantity = next
		out.Quantity = next
		out.Added = next - cur
		out.Clamped = clamped
		return out, nil
	}

	next, clamped := clamp(qty, stock)
	c.Items = append(c.Items, CartItem{
		ProductID:         k.ProductID,
		Variant:           k.Variant,
		Quantity:          next,
		UnitPriceSnapshot: unitPrice,
		PriceCapturedAt:   now,
	})
	out.Quantity = next
	out.Added = next
	out.Clamped = clamped
	out.NewLine = true
	return out, nil
}

// SetQuantity sets the quantity of an existing line.
//   - qty == 0 removes the line
//   - qty > stock clamps to stock (stock == 0 fails with ErrOutOfStock)
//   - missing line fails with ErrLineNotFound
//
// It returns the resulting quantity and whether it was clamped.
func (c *Cart) SetQuantity(productID string, v Variant, qty int, stock int) (int, bool, error) {
	if c == nil {
		return 0, false, ErrInvalidCart
	}
	if qty < 0 {
		return 0, false, ErrInvalidQuantity
	}
	k := NewLineKey(productID, v)
	idx := c.indexOf(k)
	if idx < 0 {
		return 0, false, ErrLineNotFound
	}
	if qty == 0 {
		c.Items = removeIndex(c.Items, idx)
		return 0, false, nil
	}
	if stock <= 0 {
		return 0, false, ErrOutOfStock
	}
	next, clamped := clamp(qty, stock)
	c.Items[idx].Quantity = next
	return next, clamped, nil
}

// Remove deletes a line. Removing an absent line is a no-op and reports false.
func (c *Cart) Remove(productID string, v Variant) bool {
	if c == nil {
		return false
	}
	idx := c.indexOf(NewLineKey(productID, v))
	if idx < 0 {
		return false
	}
	c.Items = removeIndex(c.Items, idx)
	return true
}

// Clear empties all lines. The (empty) cart remains a valid document.
func (c *Cart) Clear() {
	if c == nil {
		return
	}
	c.Items = []CartItem{}
}

// Line returns the line for (productID, variant).
func (c Cart) Line(productID string, v Variant) (CartItem, bool) {
	idx := c.indexOf(NewLineKey(productID, v))
	if idx < 0 {
		return CartItem{}, false
	}
	return c.Items[idx], true
}

func (c Cart) Has(productID string, v Variant) bool {
	return c.indexOf(NewLineKey(productID, v)) >= 0
}

// Subtotal is always recomputed from the lines.
func (c Cart) Subtotal() int64 {
	var sum int64
	for _, it := range c.Items {
		sum += it.LineTotal()
	}
	return sum
}

// ItemCount is the total number of units in the cart.
func (c Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

func (c Cart) IsEmpty() bool { return len(c.Items) == 0 }

// Clone returns a deep copy.
func (c Cart) Clone() Cart {
	out := c
	out.Items = cloneItems(c.Items)
	return out
}

// Stamp returns a copy carrying the store-assigned write timestamp.
func (c Cart) Stamp(updatedAt time.Time) Cart {
	out := c.Clone()
	out.UpdatedAt = updatedAt
	return out
}

// Validate checks document invariants and merges duplicate lines (keeping first-seen order).
func (c *Cart) Validate() error {
	if c == nil {
		return ErrInvalidCart
	}
	if strings.TrimSpace(c.ID) == "" {
		return ErrInvalidCart
	}
	c.Items = normalizeAndMerge(c.Items)
	for _, it := range c.Items {
		if strings.TrimSpace(it.ProductID) == "" || it.Quantity <= 0 || it.UnitPriceSnapshot < 0 {
			return ErrInvalidCart
		}
	}
	return nil
}

// ----------------------------
// Helpers
// ----------------------------

// addQty adds two non-negative quantities, saturating at math.MaxInt.
func addQty(a, b int) int {
	if b > math.MaxInt-a {
		return math.MaxInt
	}
	return a + b
}

func clamp(qty, stock int) (int, bool) {
	if qty > stock {
		return stock, true
	}
	return qty, false
}

func (c Cart) indexOf(k LineKey) int {
	for i := range c.Items {
		if c.Items[i].Key() == k {
			return i
		}
	}
	return -1
}

func removeIndex(items []CartItem, idx int) []CartItem {
	if idx < 0 || idx >= len(items) {
		return items
	}
	out := make([]CartItem, 0, len(items)-1)
	out = append(out, items[:idx]...)
	return append(out, items[idx+1:]...)
}

// normalizeAndMerge drops invalid lines and merges duplicates by summing quantity.
// The first occurrence keeps its price snapshot.
func normalizeAndMerge(src []CartItem) []CartItem {
	out := make([]CartItem, 0, len(src))
	pos := map[LineKey]int{}
	for _, it := range src {
		it.ProductID = strings.TrimSpace(it.ProductID)
		it.Variant = it.Variant.Normalize()
		if it.ProductID == "" || it.Quantity <= 0 {
			continue
		}
		k := it.Key()
		if i, ok := pos[k]; ok {
			out[i].Quantity = addQty(out[i].Quantity, it.Quantity)
			continue
		}
		pos[k] = len(out)
		out = append(out, it)
	}
	return out
}

func cloneItems(src []CartItem) []CartItem {
	out := make([]CartItem, len(src))
	copy(out, src)
	return out
}
