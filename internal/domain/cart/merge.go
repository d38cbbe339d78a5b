// internal/domain/cart/merge.go
package cart

// MergeReport lists lines whose quantity was adjusted or that could not be carried over.
type MergeReport struct {
	// Combined are lines present in both carts.
	Combined []LineKey
	// Copied are lines only present in the anonymous cart.
	Copied []LineKey
	// Clamped are lines whose quantity was reduced to stock.
	Clamped []LineKey
	// Skipped are lines dropped from the result because the product is out of stock.
	Skipped []LineKey
}

// Merge folds the anonymous cart into the authenticated cart (login edge).
//
//   - line in both: quantity = min(stock, qtyA + qtyU), price snapshot = the more recently
//     captured one (authenticated wins ties)
//   - line only in anon: copied as-is, clamped to stock
//   - line only in authed: kept as-is
//   - product unknown to the stock lookup: no clamp (nothing to validate against)
//   - product with stock 0: the line is dropped (min(0, qtyA + qtyU) is 0) and reported
//     in Skipped
//
// Merge is a pure function of its inputs; neither argument is modified.
func Merge(anon, authed Cart, stockOf StockLookup) (Cart, MergeReport) {
	out := authed.Clone()
	out.Items = normalizeAndMerge(out.Items)
	var rep MergeReport

	for _, a := range normalizeAndMerge(cloneItems(anon.Items)) {
		k := a.Key()
		stock, known := lookup(stockOf, k.ProductID)

		idx := out.indexOf(k)
		if idx >= 0 {
			rep.Combined = append(rep.Combined, k)
			if known && stock <= 0 {
				out.Items = removeIndex(out.Items, idx)
				rep.Skipped = append(rep.Skipped, k)
				continue
			}
			u := out.Items[idx]
			qty := addQty(a.Quantity, u.Quantity)
			if known {
				var clamped bool
				qty, clamped = clamp(qty, stock)
				if clamped {
					rep.Clamped = append(rep.Clamped, k)
				}
			}
			u.Quantity = qty
			if a.PriceCapturedAt.After(u.PriceCapturedAt) {
				u.UnitPriceSnapshot = a.UnitPriceSnapshot
				u.PriceCapturedAt = a.PriceCapturedAt
			}
			out.Items[idx] = u
			continue
		}

		if known && stock <= 0 {
			rep.Skipped = append(rep.Skipped, k)
			continue
		}
		if known {
			var clamped bool
			a.Quantity, clamped = clamp(a.Quantity, stock)
			if clamped {
				rep.Clamped = append(rep.Clamped, k)
			}
		}
		out.Items = append(out.Items, a)
		rep.Copied = append(rep.Copied, k)
	}

	return out, rep
}

func lookup(stockOf StockLookup, productID string) (int, bool) {
	if stockOf == nil {
		return 0, false
	}
	return stockOf(productID)
}
