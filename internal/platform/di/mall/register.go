// internal/platform/di/mall/register.go
package mall

import (
	"net/http"

	mallhttp "storefront/internal/adapters/in/http/mall"
	mallhandler "storefront/internal/adapters/in/http/mall/handler"
	"storefront/internal/adapters/in/http/middleware"
)

// withDeviceAuth wraps h as Recover → RequireDevice → UserAuth (optional token) → h.
// CORS is applied outermost by the caller.
func withDeviceAuth(verifier middleware.TokenVerifier, h http.Handler) http.Handler {
	userAuth := &middleware.UserAuthMiddleware{Verifier: verifier}
	return middleware.Recover(middleware.RequireDevice(userAuth.Handler(h)))
}

// Register registers mall routes onto mux.
// Pure DI: construct handlers and pass into mall router.Register.
func Register(mux *http.ServeMux, cont *Container) {
	if mux == nil || cont == nil {
		return
	}

	sessions := cont.Sessions

	mallhttp.Register(mux, mallhttp.Deps{
		Cart:      withDeviceAuth(cont.Verifier, mallhandler.NewCartHandler(sessions)),
		Favorites: withDeviceAuth(cont.Verifier, mallhandler.NewFavoritesHandler(sessions)),
		Session:   withDeviceAuth(cont.Verifier, mallhandler.NewSessionHandler(sessions)),
	})
}
