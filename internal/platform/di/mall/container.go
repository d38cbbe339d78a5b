// internal/platform/di/mall/container.go
package mall

import (
	"context"
	"errors"
	"fmt"
	"log"

	"storefront/internal/adapters/in/http/middleware"
	usecase "storefront/internal/application/usecase"
	shared "storefront/internal/platform/di/shared"
)

// Container is the Mall DI container.
// Pure DI: build deps only. No routing branching.
type Container struct {
	Infra *shared.Infra

	// one session per device
	Sessions *usecase.SessionRegistry

	// nil when user auth is disabled
	Verifier middleware.TokenVerifier
}

// NewContainer builds the mall container on top of shared infra.
func NewContainer(ctx context.Context, infra *shared.Infra) (*Container, error) {
	_ = ctx
	if infra == nil {
		return nil, errors.New("di.mall: infra is nil")
	}

	deps, err := buildSessionDeps(infra)
	if err != nil {
		return nil, err
	}
	sessions, err := usecase.NewSessionRegistry(deps, buildRegistryOptions(infra)...)
	if err != nil {
		return nil, fmt.Errorf("di.mall: session registry: %w", err)
	}

	c := &Container{
		Infra:    infra,
		Sessions: sessions,
		Verifier: buildTokenVerifier(infra),
	}

	log.Printf("[di.mall] container ready mode=%s writeTimeout=%s userAuth=%t",
		infra.Backend.Mode, deps.WriteTimeout, c.Verifier != nil)
	return c, nil
}

// Close tears down every device session. Infra is closed by its owner.
func (c *Container) Close() error {
	if c == nil || c.Sessions == nil {
		return nil
	}
	c.Sessions.Close()
	return nil
}
