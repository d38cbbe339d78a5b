// internal/adapters/out/firestore/cart_repository_fs.go
package firestore

import (
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	cartdom "storefront/internal/domain/cart"
)

// CartStoreFS implements cart.Store using Firestore.
//
// Collection design:
// - collection: carts
// - docId: actor key (docId is the source of truth)
// - fields: items(array), updatedAt(server timestamp)
type CartStoreFS struct {
	*documentStoreFS[cartdom.Cart]
}

func NewCartStoreFS(client *firestore.Client) *CartStoreFS {
	return &CartStoreFS{&documentStoreFS[cartdom.Cart]{
		Client:     client,
		collection: "carts",
		name:       "cart",
		encode:     func(c cartdom.Cart) any { return cartDocFromDomain(c) },
		decode:     cartFromSnapshot,
	}}
}

// -----------------------------------------
// Firestore DTO
// -----------------------------------------

type cartDoc struct {
	Items []cartItemDoc `firestore:"items"`
	// zero value -> Firestore fills in the commit time
	UpdatedAt time.Time `firestore:"updatedAt,serverTimestamp"`
}

type cartItemDoc struct {
	ProductID         string            `firestore:"productId"`
	Variant           map[string]string `firestore:"variant"`
	Quantity          int               `firestore:"quantity"`
	UnitPriceSnapshot int64             `firestore:"unitPriceSnapshot"`
	PriceCapturedAt   time.Time         `firestore:"priceCapturedAt"`
}

func cartDocFromDomain(c cartdom.Cart) cartDoc {
	items := make([]cartItemDoc, 0, len(c.Items))
	for _, it := range c.Items {
		pid := strings.TrimSpace(it.ProductID)
		if pid == "" || it.Quantity <= 0 {
			continue
		}
		items = append(items, cartItemDoc{
			ProductID:         pid,
			Variant:           it.Variant.Map(),
			Quantity:          it.Quantity,
			UnitPriceSnapshot: it.UnitPriceSnapshot,
			PriceCapturedAt:   it.PriceCapturedAt.UTC(),
		})
	}
	return cartDoc{Items: items}
}

// cartFromSnapshot parses document data leniently: malformed lines are dropped and
// duplicate lines are merged by Validate.
func cartFromSnapshot(id string, snap *firestore.DocumentSnapshot) (cartdom.Cart, error) {
	if snap == nil {
		return cartdom.Cart{}, errors.New("cart_store_fs: snapshot is nil")
	}

	out := cartdom.Empty(id)
	raw := snap.Data()
	if raw == nil {
		return out, nil
	}

	for _, v := range asSlice(raw["items"]) {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		pid := strings.TrimSpace(asString(m["productId"]))
		qty := asInt(m["quantity"])
		if pid == "" || qty <= 0 {
			continue
		}
		it := cartdom.CartItem{
			ProductID:         pid,
			Variant:           cartdom.VariantFromMap(asStringMap(m["variant"])),
			Quantity:          qty,
			UnitPriceSnapshot: asInt64(m["unitPriceSnapshot"]),
		}
		if t, ok := asTime(m["priceCapturedAt"]); ok {
			it.PriceCapturedAt = t
		}
		out.Items = append(out.Items, it)
	}

	// docId is the source of truth
	out.ID = id
	if err := out.Validate(); err != nil {
		return cartdom.Cart{}, err
	}
	return out, nil
}
