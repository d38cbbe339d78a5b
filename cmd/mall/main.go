// cmd/mall/main.go
package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"storefront/internal/adapters/in/http/middleware"
	appcfg "storefront/internal/infra/config"
	mallDI "storefront/internal/platform/di/mall"
	shared "storefront/internal/platform/di/shared"
)

const (
	initTimeout     = 2 * time.Minute
	shutdownTimeout = 25 * time.Second
)

// swapHandler serves /healthz until the storefront routes are ready, then the full mux.
type swapHandler struct {
	cur atomic.Pointer[http.Handler]
}

func (h *swapHandler) set(next http.Handler) { h.cur.Store(&next) }

func (h *swapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*h.cur.Load()).ServeHTTP(w, r)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// services holds what the background init built.
type services struct {
	mu       sync.Mutex
	stopping bool
	infra    *shared.Infra
	mall     *mallDI.Container
}

// adopt keeps infra and container unless shutdown already began, in which case it closes them.
func (rt *services) adopt(infra *shared.Infra, cont *mallDI.Container) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.stopping {
		_ = cont.Close()
		_ = infra.Close()
		return false
	}
	rt.infra, rt.mall = infra, cont
	return true
}

func (rt *services) close() {
	rt.mu.Lock()
	rt.stopping = true
	cont, infra := rt.mall, rt.infra
	rt.mall, rt.infra = nil, nil
	rt.mu.Unlock()

	// sessions flush and unsubscribe before the store clients go away
	if cont != nil {
		log.Printf("[boot] closing device sessions...")
		if err := cont.Close(); err != nil {
			log.Printf("[boot] mall container close error: %v", err)
		}
	}
	if infra != nil {
		log.Printf("[boot] closing infra resources...")
		if err := infra.Close(); err != nil {
			log.Printf("[boot] infra close error: %v", err)
		}
	}
}

func main() {
	cfg := appcfg.Load()

	if logPath := cfg.LogFile; logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644); err == nil {
			log.SetOutput(io.MultiWriter(os.Stdout, f))
			log.Printf("[boot] log output = stdout + %s", logPath)
		} else {
			log.Printf("[boot] WARN: could not open %s: %v (stdout only)", logPath, err)
		}
	}

	port := strings.TrimSpace(cfg.Port)
	if port == "" {
		port = "8080"
	}
	cors := middleware.CORS(cfg.CORSAllowedOrigin)

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", healthz)
	switcher := &swapHandler{}
	switcher.set(cors(healthMux))

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      switcher,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("[boot] listening on :%s (mall) docstore=%s products=%s", port, cfg.DocstoreBackend, cfg.ProductSource)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[boot] server error: %v", err)
		}
	}()

	rt := &services{}
	go func() {
		initCtx, cancel := context.WithTimeout(ctx, initTimeout)
		defer cancel()

		infra, err := shared.NewInfra(initCtx)
		if err != nil {
			log.Printf("[boot] WARN: shared infra init failed: %v (serving /healthz only)", err)
			return
		}
		cont, err := mallDI.NewContainer(initCtx, infra)
		if err != nil {
			_ = infra.Close()
			log.Printf("[boot] WARN: mall di init failed: %v (serving /healthz only)", err)
			return
		}
		if !rt.adopt(infra, cont) {
			return
		}

		fullMux := http.NewServeMux()
		fullMux.HandleFunc("/healthz", healthz)
		mallDI.Register(fullMux, cont)
		switcher.set(cors(fullMux))
		log.Printf("[boot] storefront routes ready mode=%s", infra.Backend.Mode)
	}()

	<-ctx.Done()
	log.Printf("[boot] shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[boot] server shutdown error: %v", err)
	}
	rt.close()
	log.Printf("[boot] server stopped")
}
