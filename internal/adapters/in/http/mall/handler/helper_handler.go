// internal/adapters/in/http/mall/handler/helper_handler.go
package mallHandler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"storefront/internal/adapters/in/http/middleware"
	"storefront/internal/application/identity"
	usecase "storefront/internal/application/usecase"
	"storefront/internal/domain/actor"
	cartdom "storefront/internal/domain/cart"
	"storefront/internal/domain/document"
	favdom "storefront/internal/domain/favorite"
	productdom "storefront/internal/domain/product"
)

// SessionProvider returns the session of a device.
type SessionProvider interface {
	Get(ctx context.Context, deviceID string) (*usecase.Session, error)
}

// ============================================================
// HTTP helpers
// ============================================================

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method_not_allowed"})
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
}

func readJSON(r *http.Request, dst any) error {
	if dst == nil {
		return errors.New("dst is nil")
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)) // 1MB
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func cleanPath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p == "" {
		return "/"
	}
	return p
}

// maskUID keeps user ids out of logs.
func maskUID(uid string) string {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return ""
	}
	if len(uid) <= 6 {
		return "***"
	}
	return "***" + uid[len(uid)-6:]
}

func maskActor(k actor.Key) string {
	if k.IsAnonymous() {
		return k.String()
	}
	return string(k.Kind) + ":" + maskUID(k.ID)
}

// ============================================================
// error mapping
// ============================================================

// statusOf maps usecase/domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, cartdom.ErrOutOfStock):
		return http.StatusConflict
	case errors.Is(err, cartdom.ErrLineNotFound),
		errors.Is(err, productdom.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, document.ErrUnavailable),
		errors.Is(err, usecase.ErrSessionClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, usecase.ErrInvalidArgument),
		errors.Is(err, cartdom.ErrInvalidQuantity),
		errors.Is(err, cartdom.ErrInvalidCart),
		errors.Is(err, favdom.ErrInvalidProductID),
		errors.Is(err, identity.ErrInvalidDevice),
		errors.Is(err, actor.ErrInvalidKey):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeUsecaseErr(w http.ResponseWriter, err error) {
	status := statusOf(err)
	body := map[string]any{"error": err.Error()}
	if status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout {
		body["retryable"] = true
	}
	writeJSON(w, status, body)
}

// ============================================================
// session binding
// ============================================================

// bindSession resolves the device's session and aligns its actor with the request:
//   - verified uid on an anonymous session (or a different user): sign in (login edge)
//   - no uid on an authenticated session: 401
//
// When signingOut, a signed-in session is only released by a token of that same user
// (401 without a token, 403 for another user); an anonymous session needs none.
// It writes the error response itself and returns nil on failure.
func bindSession(w http.ResponseWriter, r *http.Request, sessions SessionProvider, tag string, signingOut bool) *usecase.Session {
	if sessions == nil {
		writeErr(w, http.StatusInternalServerError, "session provider is not configured")
		return nil
	}

	did, ok := middleware.CurrentDeviceID(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "X-Device-Id header is required")
		return nil
	}

	ctx := r.Context()
	s, err := sessions.Get(ctx, did)
	if err != nil {
		log.Printf("[%s] session open failed device=%q err=%v", tag, did, err)
		writeUsecaseErr(w, err)
		return nil
	}

	cur, err := s.Actor(ctx)
	if err != nil {
		writeUsecaseErr(w, err)
		return nil
	}

	uid, authed := middleware.CurrentUserUID(r)
	if signingOut {
		switch {
		case cur.IsAnonymous():
		case !authed:
			writeErr(w, http.StatusUnauthorized, "bearer token required to sign out")
			return nil
		case cur.ID != uid:
			log.Printf("[%s] signout rejected device=%q actor=%s uid=%s", tag, did, maskActor(cur), maskUID(uid))
			writeErr(w, http.StatusForbidden, "bearer token does not match the signed-in user")
			return nil
		}
		return s
	}

	switch {
	case authed && (cur.IsAnonymous() || cur.ID != uid):
		res, err := s.SignIn(ctx, uid)
		if err != nil {
			log.Printf("[%s] signin failed device=%q uid=%s err=%v", tag, did, maskUID(uid), err)
			writeUsecaseErr(w, err)
			return nil
		}
		log.Printf("[%s] signin device=%q actor=%s changed=%t merged=%t",
			tag, did, maskActor(res.Actor), res.Changed, res.Changed && !res.Merge.Noop)

	case !authed && !cur.IsAnonymous():
		writeErr(w, http.StatusUnauthorized, "bearer token required for a signed-in session")
		return nil
	}

	return s
}
