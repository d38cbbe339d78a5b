// internal/domain/cart/entity_test.go
package cart

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func mustCart(t *testing.T, id string) Cart {
	t.Helper()
	c, err := NewCart(id)
	if err != nil {
		t.Fatalf("NewCart(%q): %v", id, err)
	}
	return c
}

func TestNewCart_RejectsEmptyID(t *testing.T) {
	if _, err := NewCart("  "); !errors.Is(err, ErrInvalidCart) {
		t.Fatalf("err = %v, want ErrInvalidCart", err)
	}
}

func TestAdd_NewLineCapturesPrice(t *testing.T) {
	c := mustCart(t, "anon_1")

	out, err := c.Add("P1", Variant{Color: "red"}, 2, 1500, 5, t0)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !out.NewLine || out.Quantity != 2 || out.Added != 2 || out.Clamped {
		t.Fatalf("outcome = %+v", out)
	}
	line, ok := c.Line("P1", Variant{Color: "red"})
	if !ok {
		t.Fatalf("line missing")
	}
	if line.UnitPriceSnapshot != 1500 || !line.PriceCapturedAt.Equal(t0) {
		t.Fatalf("line = %+v", line)
	}
}

func TestAdd_MergesSameLineAndKeepsPriceSnapshot(t *testing.T) {
	c := mustCart(t, "anon_1")

	if _, err := c.Add("P1", Variant{}, 1, 1000, 10, t0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	out, err := c.Add("P1", Variant{}, 2, 800, 10, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if out.NewLine || out.Quantity != 3 || out.Added != 2 {
		t.Fatalf("outcome = %+v", out)
	}
	if len(c.Items) != 1 {
		t.Fatalf("lines = %d, want 1", len(c.Items))
	}
	if got := c.Items[0].UnitPriceSnapshot; got != 1000 {
		t.Fatalf("price snapshot = %d, want 1000 (unchanged)", got)
	}
}

func TestAdd_ClampsToStock(t *testing.T) {
	c := mustCart(t, "anon_1")

	out, err := c.Add("P2", Variant{}, 10, 500, 4, t0)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if out.Quantity != 4 || !out.Clamped || out.Requested != 10 {
		t.Fatalf("outcome = %+v", out)
	}

	out, err = c.Add("P2", Variant{}, 1, 500, 4, t0)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if out.Quantity != 4 || !out.Clamped || out.Added != 0 {
		t.Fatalf("second add outcome = %+v", out)
	}
}

func TestAdd_HugeQuantityOnExistingLineClamps(t *testing.T) {
	c := mustCart(t, "anon_1")

	if _, err := c.Add("P1", Variant{}, 1, 100, 5, t0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	out, err := c.Add("P1", Variant{}, math.MaxInt, 100, 5, t0)
	if err != nil {
		t.Fatalf("Add(MaxInt): %v", err)
	}
	if out.Quantity != 5 || !out.Clamped || out.Added != 4 {
		t.Fatalf("outcome = %+v", out)
	}
	if got := c.Subtotal(); got != 500 {
		t.Fatalf("subtotal = %d, want 500", got)
	}
}

// The final quantity of a line is min(stock, sum of requested), however the adds are split.
func TestAdd_SequenceEndsAtMinOfStockAndSum(t *testing.T) {
	cases := []struct {
		name  string
		stock int
		adds  []int
	}{
		{"under stock", 10, []int{1, 2, 3}},
		{"exactly stock", 6, []int{2, 2, 2}},
		{"crosses stock", 5, []int{3, 3, 3}},
		{"first add over stock", 2, []int{7, 1}},
		{"single unit stock", 1, []int{1, 1, 1, 1}},
		{"huge second add", 9, []int{1, math.MaxInt}},
	}

	check := func(t *testing.T, stock int, adds []int) {
		t.Helper()
		c := mustCart(t, "anon_1")
		sum := 0
		prev := 0
		for i, q := range adds {
			out, err := c.Add("P1", Variant{}, q, 100, stock, t0)
			if err != nil {
				t.Fatalf("add #%d (%d): %v", i, q, err)
			}
			if out.Quantity < prev || out.Quantity > stock {
				t.Fatalf("add #%d: quantity %d (prev %d, stock %d)", i, out.Quantity, prev, stock)
			}
			prev = out.Quantity
			sum = addQty(sum, q)
		}
		want := sum
		if want > stock {
			want = stock
		}
		line, ok := c.Line("P1", Variant{})
		if !ok || line.Quantity != want {
			t.Fatalf("adds %v stock %d: line = %+v, want quantity %d", adds, stock, line, want)
		}
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) { check(t, tc.stock, tc.adds) })
	}

	t.Run("random", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 200; i++ {
			stock := 1 + rng.Intn(20)
			adds := make([]int, 1+rng.Intn(8))
			for j := range adds {
				adds[j] = 1 + rng.Intn(6)
			}
			check(t, stock, adds)
		}
	})
}

func TestAdd_OutOfStockLeavesCartUnchanged(t *testing.T) {
	c := mustCart(t, "anon_1")

	_, err := c.Add("P3", Variant{}, 1, 500, 0, t0)
	if !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("err = %v, want ErrOutOfStock", err)
	}
	if !c.IsEmpty() {
		t.Fatalf("cart should stay empty, got %+v", c.Items)
	}
}

func TestAdd_InvalidQuantity(t *testing.T) {
	c := mustCart(t, "anon_1")
	for _, q := range []int{0, -1} {
		if _, err := c.Add("P1", Variant{}, q, 100, 5, t0); !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("qty=%d err = %v, want ErrInvalidQuantity", q, err)
		}
	}
}

func TestVariantsAreDistinctLines(t *testing.T) {
	c := mustCart(t, "anon_1")

	_, _ = c.Add("P1", Variant{Color: "red"}, 1, 100, 9, t0)
	_, _ = c.Add("P1", Variant{Color: "red", Size: "M"}, 1, 100, 9, t0)
	_, _ = c.Add("P1", Variant{Color: " red "}, 1, 100, 9, t0)

	if len(c.Items) != 2 {
		t.Fatalf("lines = %d, want 2", len(c.Items))
	}
	if line, _ := c.Line("P1", Variant{Color: "red"}); line.Quantity != 2 {
		t.Fatalf("red qty = %d, want 2", line.Quantity)
	}
}

func TestSetQuantity(t *testing.T) {
	c := mustCart(t, "anon_1")
	_, _ = c.Add("P1", Variant{}, 2, 100, 5, t0)

	n, clamped, err := c.SetQuantity("P1", Variant{}, 9, 5)
	if err != nil || n != 5 || !clamped {
		t.Fatalf("SetQuantity(9) = %d %t %v", n, clamped, err)
	}

	n, clamped, err = c.SetQuantity("P1", Variant{}, 3, 5)
	if err != nil || n != 3 || clamped {
		t.Fatalf("SetQuantity(3) = %d %t %v", n, clamped, err)
	}

	if _, _, err := c.SetQuantity("P1", Variant{}, 0, 0); err != nil {
		t.Fatalf("SetQuantity(0): %v", err)
	}
	if !c.IsEmpty() {
		t.Fatalf("line should be removed")
	}
}

func TestSetQuantity_MissingLine(t *testing.T) {
	c := mustCart(t, "anon_1")
	_, _ = c.Add("P1", Variant{}, 2, 100, 5, t0)
	before := c.Clone()

	_, _, err := c.SetQuantity("P9", Variant{}, 1, 5)
	if !errors.Is(err, ErrLineNotFound) {
		t.Fatalf("err = %v, want ErrLineNotFound", err)
	}
	if len(c.Items) != len(before.Items) || c.Items[0] != before.Items[0] {
		t.Fatalf("cart changed: %+v", c.Items)
	}
}

func TestRemoveAndClear(t *testing.T) {
	c := mustCart(t, "anon_1")
	_, _ = c.Add("P1", Variant{}, 1, 100, 5, t0)
	_, _ = c.Add("P2", Variant{}, 1, 200, 5, t0)

	if c.Remove("P9", Variant{}) {
		t.Fatalf("removing an absent line should report false")
	}
	if !c.Remove("P1", Variant{}) {
		t.Fatalf("Remove(P1) = false")
	}
	if len(c.Items) != 1 || c.Items[0].ProductID != "P2" {
		t.Fatalf("items = %+v", c.Items)
	}

	c.Clear()
	if !c.IsEmpty() || c.Items == nil {
		t.Fatalf("cleared cart = %+v", c.Items)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("empty cart should be valid: %v", err)
	}
}

func TestSubtotalAndItemCount(t *testing.T) {
	c := mustCart(t, "anon_1")
	_, _ = c.Add("P1", Variant{}, 2, 1500, 5, t0)
	_, _ = c.Add("P2", Variant{Size: "L"}, 3, 200, 5, t0)

	if got := c.Subtotal(); got != 3600 {
		t.Fatalf("Subtotal = %d, want 3600", got)
	}
	if got := c.ItemCount(); got != 5 {
		t.Fatalf("ItemCount = %d, want 5", got)
	}

	v := NewView(c)
	if v.Subtotal != 3600 || v.ItemCount != 5 || len(v.Items) != 2 {
		t.Fatalf("view = %+v", v)
	}
	if v.Items[1].LineTotal != 600 || v.Items[1].Variant[VariantSize] != "L" {
		t.Fatalf("line view = %+v", v.Items[1])
	}
	if v.UpdatedAt != nil {
		t.Fatalf("unwritten cart should have no updatedAt")
	}
}

func TestCloneIsDeep(t *testing.T) {
	c := mustCart(t, "anon_1")
	_, _ = c.Add("P1", Variant{}, 1, 100, 5, t0)

	cp := c.Clone()
	cp.Items[0].Quantity = 4
	if c.Items[0].Quantity != 1 {
		t.Fatalf("clone shares items")
	}
}

func TestValidate_MergesDuplicateLines(t *testing.T) {
	c := Cart{ID: "u1", Items: []CartItem{
		{ProductID: "P1", Quantity: 1, UnitPriceSnapshot: 100},
		{ProductID: "P2", Quantity: 1, UnitPriceSnapshot: 200},
		{ProductID: "P1", Quantity: 2, UnitPriceSnapshot: 90},
	}}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(c.Items) != 2 || c.Items[0].Quantity != 3 || c.Items[0].UnitPriceSnapshot != 100 {
		t.Fatalf("items = %+v", c.Items)
	}
}

func TestValidate_DuplicateLinesDoNotOverflow(t *testing.T) {
	c := Cart{ID: "u1", Items: []CartItem{
		{ProductID: "P1", Quantity: math.MaxInt, UnitPriceSnapshot: 1},
		{ProductID: "P1", Quantity: math.MaxInt, UnitPriceSnapshot: 1},
	}}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(c.Items) != 1 || c.Items[0].Quantity != math.MaxInt {
		t.Fatalf("items = %+v", c.Items)
	}
}

func TestVariantFromMap(t *testing.T) {
	v := VariantFromMap(map[string]string{"color": " blue ", "size": "S", "unknown": "x"})
	if v != (Variant{Color: "blue", Size: "S"}) {
		t.Fatalf("variant = %+v", v)
	}
	m := v.Map()
	if len(m) != 2 || m[VariantColor] != "blue" {
		t.Fatalf("map = %v", m)
	}
	if VariantFromMap(nil) != (Variant{}) {
		t.Fatalf("nil map should give the empty variant")
	}
}
