// internal/adapters/in/http/mall/handler/cart_handler.go
package mallHandler

import (
	"log"
	"net/http"
	"strings"
	"time"

	cartdom "storefront/internal/domain/cart"
)

// CartHandler serves the device's cart.
//   - GET    /mall/me/cart
//   - DELETE /mall/me/cart
//   - POST   /mall/me/cart/items   {productId, quantity, variant}
//   - PUT    /mall/me/cart/items   {productId, variant, quantity}
//   - DELETE /mall/me/cart/items   {productId, variant}
type CartHandler struct {
	sessions SessionProvider
}

func NewCartHandler(sessions SessionProvider) http.Handler {
	return &CartHandler{sessions: sessions}
}

func (h *CartHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := cleanPath(r.URL.Path)

	log.Printf("[mall_cart_handler] enter method=%s path=%q configured=%t", r.Method, path, h.sessions != nil)

	isCart := strings.HasSuffix(path, "/mall/me/cart")
	isItems := strings.HasSuffix(path, "/mall/me/cart/items")

	switch {
	case isCart && r.Method == http.MethodGet:
		h.handleGet(w, r, start)
	case isCart && r.Method == http.MethodDelete:
		h.handleClear(w, r, start)
	case isItems && r.Method == http.MethodPost:
		h.handleAddItem(w, r, start)
	case isItems && r.Method == http.MethodPut:
		h.handleSetQuantity(w, r, start)
	case isItems && r.Method == http.MethodDelete:
		h.handleRemoveItem(w, r, start)
	case isCart || isItems:
		methodNotAllowed(w)
	default:
		log.Printf("[mall_cart_handler] exit status=404 method=%s path=%q elapsed=%s", r.Method, path, time.Since(start))
		notFound(w)
	}
}

// -------------------------
// handlers
// -------------------------

func (h *CartHandler) handleGet(w http.ResponseWriter, r *http.Request, start time.Time) {
	s := bindSession(w, r, h.sessions, "mall_cart_handler", false)
	if s == nil {
		return
	}

	v, err := s.Cart(r.Context())
	if err != nil {
		log.Printf("[mall_cart_handler] GET exit status=%d device=%q err=%v", statusOf(err), s.DeviceID(), err)
		writeUsecaseErr(w, err)
		return
	}

	log.Printf("[mall_cart_handler] GET ok device=%q lines=%d elapsed=%s", s.DeviceID(), len(v.Items), time.Since(start))
	writeJSON(w, http.StatusOK, v)
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request, start time.Time) {
	var req cartItemReq
	if err := readJSON(r, &req); err != nil {
		log.Printf("[mall_cart_handler] POST add-item exit status=400 reason=invalid json err=%v", err)
		writeErr(w, http.StatusBadRequest, "invalid json body")
		return
	}
	pid := strings.TrimSpace(req.ProductID)
	if pid == "" || req.Quantity <= 0 {
		writeErr(w, http.StatusBadRequest, "productId and quantity(>=1) are required")
		return
	}

	s := bindSession(w, r, h.sessions, "mall_cart_handler", false)
	if s == nil {
		return
	}

	res, err := s.AddItem(r.Context(), pid, req.Quantity, cartdom.VariantFromMap(req.Variant))
	if err != nil {
		log.Printf("[mall_cart_handler] POST add-item exit status=%d device=%q productId=%q err=%v", statusOf(err), s.DeviceID(), pid, err)
		writeUsecaseErr(w, err)
		return
	}

	log.Printf("[mall_cart_handler] POST add-item ok device=%q productId=%q qty=%d clamped=%t elapsed=%s",
		s.DeviceID(), pid, res.Outcome.Quantity, res.Outcome.Clamped, time.Since(start))
	writeJSON(w, http.StatusOK, addItemResp{
		Quantity: res.Outcome.Quantity,
		Added:    res.Outcome.Added,
		Clamped:  res.Outcome.Clamped,
		NewLine:  res.Outcome.NewLine,
		Cart:     res.Cart,
	})
}

func (h *CartHandler) handleSetQuantity(w http.ResponseWriter, r *http.Request, start time.Time) {
	var req cartItemReq
	if err := readJSON(r, &req); err != nil {
		log.Printf("[mall_cart_handler] PUT set-qty exit status=400 reason=invalid json err=%v", err)
		writeErr(w, http.StatusBadRequest, "invalid json body")
		return
	}
	pid := strings.TrimSpace(req.ProductID)
	if pid == "" {
		writeErr(w, http.StatusBadRequest, "productId is required")
		return
	}

	s := bindSession(w, r, h.sessions, "mall_cart_handler", false)
	if s == nil {
		return
	}

	res, err := s.SetQuantity(r.Context(), pid, cartdom.VariantFromMap(req.Variant), req.Quantity)
	if err != nil {
		log.Printf("[mall_cart_handler] PUT set-qty exit status=%d device=%q productId=%q err=%v", statusOf(err), s.DeviceID(), pid, err)
		writeUsecaseErr(w, err)
		return
	}

	log.Printf("[mall_cart_handler] PUT set-qty ok device=%q productId=%q qty=%d removed=%t elapsed=%s",
		s.DeviceID(), pid, res.Quantity, res.Removed, time.Since(start))
	writeJSON(w, http.StatusOK, setQuantityResp{
		Quantity: res.Quantity,
		Clamped:  res.Clamped,
		Removed:  res.Removed,
		Cart:     res.Cart,
	})
}

func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request, start time.Time) {
	var req cartItemReq
	if err := readJSON(r, &req); err != nil {
		log.Printf("[mall_cart_handler] DELETE remove-item exit status=400 reason=invalid json err=%v", err)
		writeErr(w, http.StatusBadRequest, "invalid json body")
		return
	}
	pid := strings.TrimSpace(req.ProductID)
	if pid == "" {
		writeErr(w, http.StatusBadRequest, "productId is required")
		return
	}

	s := bindSession(w, r, h.sessions, "mall_cart_handler", false)
	if s == nil {
		return
	}

	v, err := s.RemoveItem(r.Context(), pid, cartdom.VariantFromMap(req.Variant))
	if err != nil {
		log.Printf("[mall_cart_handler] DELETE remove-item exit status=%d device=%q productId=%q err=%v", statusOf(err), s.DeviceID(), pid, err)
		writeUsecaseErr(w, err)
		return
	}

	log.Printf("[mall_cart_handler] DELETE remove-item ok device=%q productId=%q elapsed=%s", s.DeviceID(), pid, time.Since(start))
	writeJSON(w, http.StatusOK, v)
}

func (h *CartHandler) handleClear(w http.ResponseWriter, r *http.Request, start time.Time) {
	s := bindSession(w, r, h.sessions, "mall_cart_handler", false)
	if s == nil {
		return
	}

	v, err := s.Clear(r.Context())
	if err != nil {
		log.Printf("[mall_cart_handler] DELETE clear exit status=%d device=%q err=%v", statusOf(err), s.DeviceID(), err)
		writeUsecaseErr(w, err)
		return
	}

	log.Printf("[mall_cart_handler] DELETE clear ok device=%q elapsed=%s", s.DeviceID(), time.Since(start))
	writeJSON(w, http.StatusOK, v)
}

// -------------------------
// DTO
// -------------------------

type cartItemReq struct {
	ProductID string            `json:"productId"`
	Quantity  int               `json:"quantity"`
	Variant   map[string]string `json:"variant"`
}

type addItemResp struct {
	Quantity int          `json:"quantity"`
	Added    int          `json:"added"`
	Clamped  bool         `json:"clamped"`
	NewLine  bool         `json:"newLine"`
	Cart     cartdom.View `json:"cart"`
}

type setQuantityResp struct {
	Quantity int          `json:"quantity"`
	Clamped  bool         `json:"clamped"`
	Removed  bool         `json:"removed"`
	Cart     cartdom.View `json:"cart"`
}
