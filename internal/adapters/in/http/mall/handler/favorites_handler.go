// internal/adapters/in/http/mall/handler/favorites_handler.go
package mallHandler

import (
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	productdom "storefront/internal/domain/product"
)

const favoritesPath = "/mall/me/favorites"

// FavoritesHandler serves the device's favorites.
//   - GET  /mall/me/favorites              hydrated products
//   - GET  /mall/me/favorites/{productId}  {productId, favorite}
//   - POST /mall/me/favorites/toggle       {productId}
//   - PUT  /mall/me/favorites/{productId}  {favorite}
type FavoritesHandler struct {
	sessions SessionProvider
}

func NewFavoritesHandler(sessions SessionProvider) http.Handler {
	return &FavoritesHandler{sessions: sessions}
}

func (h *FavoritesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := cleanPath(r.URL.Path)

	log.Printf("[mall_favorites_handler] enter method=%s path=%q", r.Method, path)

	switch {
	case path == favoritesPath && r.Method == http.MethodGet:
		h.handleList(w, r, start)
		return
	case path == favoritesPath+"/toggle" && r.Method == http.MethodPost:
		h.handleToggle(w, r, start)
		return
	case path == favoritesPath || path == favoritesPath+"/toggle":
		methodNotAllowed(w)
		return
	}

	rest := strings.TrimPrefix(path, favoritesPath+"/")
	if rest == path || rest == "" || strings.Contains(rest, "/") {
		notFound(w)
		return
	}
	pid, err := url.PathUnescape(rest)
	if err != nil || strings.TrimSpace(pid) == "" {
		writeErr(w, http.StatusBadRequest, "invalid productId")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleIsFavorite(w, r, pid, start)
	case http.MethodPut:
		h.handleSet(w, r, pid, start)
	default:
		methodNotAllowed(w)
	}
}

func (h *FavoritesHandler) handleList(w http.ResponseWriter, r *http.Request, start time.Time) {
	s := bindSession(w, r, h.sessions, "mall_favorites_handler", false)
	if s == nil {
		return
	}

	items, err := s.Favorites(r.Context())
	if err != nil {
		log.Printf("[mall_favorites_handler] GET list exit status=%d device=%q err=%v", statusOf(err), s.DeviceID(), err)
		writeUsecaseErr(w, err)
		return
	}
	if items == nil {
		items = []productdom.Product{}
	}

	log.Printf("[mall_favorites_handler] GET list ok device=%q count=%d elapsed=%s", s.DeviceID(), len(items), time.Since(start))
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *FavoritesHandler) handleIsFavorite(w http.ResponseWriter, r *http.Request, pid string, start time.Time) {
	s := bindSession(w, r, h.sessions, "mall_favorites_handler", false)
	if s == nil {
		return
	}

	on, err := s.IsFavorite(r.Context(), pid)
	if err != nil {
		writeUsecaseErr(w, err)
		return
	}

	log.Printf("[mall_favorites_handler] GET one ok device=%q productId=%q favorite=%t elapsed=%s", s.DeviceID(), pid, on, time.Since(start))
	writeJSON(w, http.StatusOK, favoriteResp{ProductID: pid, Favorite: on})
}

func (h *FavoritesHandler) handleToggle(w http.ResponseWriter, r *http.Request, start time.Time) {
	var req favoriteReq
	if err := readJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json body")
		return
	}
	pid := strings.TrimSpace(req.ProductID)
	if pid == "" {
		writeErr(w, http.StatusBadRequest, "productId is required")
		return
	}

	s := bindSession(w, r, h.sessions, "mall_favorites_handler", false)
	if s == nil {
		return
	}

	on, err := s.ToggleFavorite(r.Context(), pid)
	if err != nil {
		log.Printf("[mall_favorites_handler] POST toggle exit status=%d device=%q productId=%q favorite=%t err=%v", statusOf(err), s.DeviceID(), pid, on, err)
		writeUsecaseErr(w, err)
		return
	}

	log.Printf("[mall_favorites_handler] POST toggle ok device=%q productId=%q favorite=%t elapsed=%s", s.DeviceID(), pid, on, time.Since(start))
	writeJSON(w, http.StatusOK, favoriteResp{ProductID: pid, Favorite: on})
}

func (h *FavoritesHandler) handleSet(w http.ResponseWriter, r *http.Request, pid string, start time.Time) {
	var req favoriteReq
	if err := readJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Favorite == nil {
		writeErr(w, http.StatusBadRequest, "favorite is required")
		return
	}

	s := bindSession(w, r, h.sessions, "mall_favorites_handler", false)
	if s == nil {
		return
	}

	if err := s.SetFavorite(r.Context(), pid, *req.Favorite); err != nil {
		log.Printf("[mall_favorites_handler] PUT exit status=%d device=%q productId=%q err=%v", statusOf(err), s.DeviceID(), pid, err)
		writeUsecaseErr(w, err)
		return
	}

	log.Printf("[mall_favorites_handler] PUT ok device=%q productId=%q favorite=%t elapsed=%s", s.DeviceID(), pid, *req.Favorite, time.Since(start))
	writeJSON(w, http.StatusOK, favoriteResp{ProductID: pid, Favorite: *req.Favorite})
}

type favoriteReq struct {
	ProductID string `json:"productId"`
	Favorite  *bool  `json:"favorite"`
}

type favoriteResp struct {
	ProductID string `json:"productId"`
	Favorite  bool   `json:"favorite"`
}
