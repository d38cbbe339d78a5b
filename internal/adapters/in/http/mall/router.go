// internal/adapters/in/http/mall/router.go
package mall

import (
	"log"
	"net/http"
)

// Deps is the device-facing (mall) handler set.
type Deps struct {
	Cart      http.Handler
	Favorites http.Handler
	Session   http.Handler
}

// handleSafe registers pattern with h.
// If h is nil, it logs and registers NotFoundHandler instead.
func handleSafe(mux *http.ServeMux, pattern string, h http.Handler, name string) {
	if h == nil {
		log.Printf("[mall.router] WARN: nil handler: %s pattern=%s (registering NotFoundHandler)", name, pattern)
		h = http.NotFoundHandler()
	}
	mux.Handle(pattern, h)
}

// Register registers the mall routes onto mux.
func Register(mux *http.ServeMux, deps Deps) {
	if mux == nil {
		return
	}

	// cart
	handleSafe(mux, "/mall/me/cart", deps.Cart, "Cart")
	handleSafe(mux, "/mall/me/cart/", deps.Cart, "Cart")

	// favorites
	handleSafe(mux, "/mall/me/favorites", deps.Favorites, "Favorites")
	handleSafe(mux, "/mall/me/favorites/", deps.Favorites, "Favorites")

	// identity
	handleSafe(mux, "/mall/me/session", deps.Session, "Session")
	handleSafe(mux, "/mall/me/signout", deps.Session, "Session")
}
