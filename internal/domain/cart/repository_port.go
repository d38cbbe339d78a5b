// internal/domain/cart/repository_port.go
package cart

import "storefront/internal/domain/document"

// Store is the remote document store port for carts.
//
// Storage layout (Firestore):
// - collection: carts
// - docId: actor key (anonymous device key or authenticated uid)
// - fields: id, items[], updatedAt (written by the store)
//
// Carts are never deleted by the client; an empty cart is a valid persisted state.
type Store = document.Store[Cart]

// StockLookup reports the current stock of a product. ok=false means the product is unknown.
type StockLookup func(productID string) (stock int, ok bool)
