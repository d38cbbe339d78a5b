// internal/adapters/in/http/middleware/user_auth.go
package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"
)

// UserAuthMiddleware verifies an optional bearer ID token and stores uid/email in context.
//   - no Authorization header: the request continues as the device's current actor
//   - header present: the token must verify, otherwise 401
//   - header present but no verifier configured: 503
type UserAuthMiddleware struct {
	Verifier TokenVerifier
}

func (m *UserAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		if m == nil || m.Verifier == nil {
			writeMiddlewareErr(w, http.StatusServiceUnavailable, "user auth is not configured")
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeMiddlewareErr(w, http.StatusUnauthorized, "unauthorized: malformed authorization header")
			return
		}
		idToken := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if idToken == "" {
			writeMiddlewareErr(w, http.StatusUnauthorized, "unauthorized: empty bearer token")
			return
		}

		log.Printf("[user_auth] bearer token received (len=%d)", len(idToken))

		uid, email, err := m.Verifier.VerifyIDToken(r.Context(), idToken)
		if err != nil {
			log.Printf("[user_auth] verify failed err=%v", err)
			writeMiddlewareErr(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if strings.TrimSpace(uid) == "" {
			writeMiddlewareErr(w, http.StatusUnauthorized, "invalid uid in token")
			return
		}

		ctx := WithUID(r.Context(), uid)
		if email != "" {
			ctx = context.WithValue(ctx, ctxKeyEmail, email)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CurrentUserUID returns the verified uid, if the request carried a valid token.
func CurrentUserUID(r *http.Request) (string, bool) {
	return stringFromCtx(r.Context(), ctxKeyUID)
}

// CurrentUserUIDAndEmail returns uid/email (email can be empty).
func CurrentUserUIDAndEmail(r *http.Request) (uid string, email string, ok bool) {
	uid, ok = CurrentUserUID(r)
	if !ok {
		return "", "", false
	}
	email, _ = stringFromCtx(r.Context(), ctxKeyEmail)
	return uid, email, true
}
