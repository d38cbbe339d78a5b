// internal/adapters/in/http/middleware/device.go
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
)

// DeviceHeader identifies the installation a request belongs to.
const DeviceHeader = "X-Device-Id"

const maxDeviceIDLen = 128

// RequireDevice rejects requests without a usable X-Device-Id and stores it in context.
func RequireDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		did := strings.TrimSpace(r.Header.Get(DeviceHeader))
		if did == "" {
			writeMiddlewareErr(w, http.StatusBadRequest, "X-Device-Id header is required")
			return
		}
		if len(did) > maxDeviceIDLen || strings.ContainsAny(did, "/\\ \t\r\n") {
			writeMiddlewareErr(w, http.StatusBadRequest, "X-Device-Id is invalid")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithDeviceID(r.Context(), did)))
	})
}

// CurrentDeviceID returns the device id stored by RequireDevice.
func CurrentDeviceID(r *http.Request) (string, bool) {
	return stringFromCtx(r.Context(), ctxKeyDevice)
}

func writeMiddlewareErr(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
