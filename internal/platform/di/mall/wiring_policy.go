// internal/platform/di/mall/wiring_policy.go
package mall

import (
	"errors"
	"log"
	"time"

	"storefront/internal/adapters/in/http/middleware"
	usecase "storefront/internal/application/usecase"
	shared "storefront/internal/platform/di/shared"
)

// wiring_policy.go decides which optional features are enabled from what shared.Infra
// managed to configure. It builds lightweight deps only.

var errWiringNilInfra = errors.New("di.mall: wiring policy infra is nil")

const defaultWriteTimeout = 10 * time.Second

// buildTokenVerifier wires bearer-token verification conditionally.
// Policy:
//   - Firebase Auth client present: tokens are verified by Firebase.
//   - Otherwise nil: requests without a token stay anonymous, requests with one get 503.
func buildTokenVerifier(infra *shared.Infra) middleware.TokenVerifier {
	if infra == nil || infra.FirebaseAuth == nil {
		log.Printf("[di.mall] user auth disabled (no Firebase Auth client); bearer tokens will be rejected")
		return nil
	}
	return middleware.FirebaseVerifier{Client: infra.FirebaseAuth}
}

// buildSessionDeps assembles the per-device session dependencies.
// Policy:
//   - WRITE_TIMEOUT_MS <= 0 falls back to the default.
func buildSessionDeps(infra *shared.Infra) (usecase.SessionDeps, error) {
	if infra == nil {
		return usecase.SessionDeps{}, errWiringNilInfra
	}

	timeout := defaultWriteTimeout
	if infra.Config != nil && infra.Config.WriteTimeout > 0 {
		timeout = infra.Config.WriteTimeout
	}

	return usecase.SessionDeps{
		Backend:      infra.Backend,
		Products:     infra.Products,
		Keys:         infra.DeviceKeys,
		WriteTimeout: timeout,
	}, nil
}

// buildRegistryOptions bounds the number of live device sessions.
// Policy:
//   - SESSION_IDLE_TTL_MS <= 0 falls back to the default TTL.
//   - SESSION_MAX <= 0 falls back to the default cap.
func buildRegistryOptions(infra *shared.Infra) []usecase.RegistryOption {
	ttl := usecase.DefaultSessionIdleTTL
	maxSessions := usecase.DefaultMaxSessions
	if infra != nil && infra.Config != nil {
		if infra.Config.SessionIdleTTL > 0 {
			ttl = infra.Config.SessionIdleTTL
		}
		if infra.Config.MaxSessions > 0 {
			maxSessions = infra.Config.MaxSessions
		}
	}
	return []usecase.RegistryOption{
		usecase.WithIdleTTL(ttl),
		usecase.WithMaxSessions(maxSessions),
	}
}
