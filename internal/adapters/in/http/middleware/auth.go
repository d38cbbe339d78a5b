// internal/adapters/in/http/middleware/auth.go
package middleware

import (
	"context"
	"errors"
	"strings"

	fbauth "firebase.google.com/go/v4/auth"
)

// FirebaseAuthClient is an alias of the firebase auth client.
type FirebaseAuthClient = fbauth.Client

// context keys use a private type to avoid collisions (SA1029)
type ctxKey struct{ name string }

var (
	ctxKeyUID    = ctxKey{name: "uid"}
	ctxKeyEmail  = ctxKey{name: "email"}
	ctxKeyDevice = ctxKey{name: "deviceId"}
)

var errVerifierNotConfigured = errors.New("middleware: token verifier not configured")

// TokenVerifier verifies a bearer ID token and returns the user id it was issued for.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (uid string, email string, err error)
}

// FirebaseVerifier verifies Firebase ID tokens.
type FirebaseVerifier struct {
	Client *FirebaseAuthClient
}

func (v FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (string, string, error) {
	if v.Client == nil {
		return "", "", errVerifierNotConfigured
	}
	token, err := v.Client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", "", err
	}

	email := ""
	if raw, ok := token.Claims["email"]; ok {
		if e, ok2 := raw.(string); ok2 {
			email = strings.TrimSpace(e)
		}
	}
	return strings.TrimSpace(token.UID), email, nil
}

// WithUID stores a verified uid in ctx.
func WithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, ctxKeyUID, strings.TrimSpace(uid))
}

// WithDeviceID stores the device id in ctx.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, ctxKeyDevice, strings.TrimSpace(deviceID))
}

func stringFromCtx(ctx context.Context, k ctxKey) (string, bool) {
	v, ok := ctx.Value(k).(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}
