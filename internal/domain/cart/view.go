// internal/domain/cart/view.go
package cart

import "time"

// View is the read model handed to the UI: lines plus derived totals.
// Subtotal and ItemCount are recomputed from Items on every call, never stored.
type View struct {
	ID        string     `json:"id"`
	Items     []LineView `json:"items"`
	Subtotal  int64      `json:"subtotal"`
	ItemCount int        `json:"itemCount"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

type LineView struct {
	ProductID         string            `json:"productId"`
	Variant           map[string]string `json:"variant"`
	Quantity          int               `json:"quantity"`
	UnitPriceSnapshot int64             `json:"unitPriceSnapshot"`
	LineTotal         int64             `json:"lineTotal"`
}

func NewView(c Cart) View {
	lines := make([]LineView, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, LineView{
			ProductID:         it.ProductID,
			Variant:           it.Variant.Map(),
			Quantity:          it.Quantity,
			UnitPriceSnapshot: it.UnitPriceSnapshot,
			LineTotal:         it.LineTotal(),
		})
	}
	v := View{
		ID:        c.ID,
		Items:     lines,
		Subtotal:  c.Subtotal(),
		ItemCount: c.ItemCount(),
	}
	if !c.UpdatedAt.IsZero() {
		t := c.UpdatedAt.UTC()
		v.UpdatedAt = &t
	}
	return v
}
