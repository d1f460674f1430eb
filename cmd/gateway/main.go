// Command gateway is the entry point for the multi-tenant Anthropic-format
// API gateway. It wires config, storage, credential management, and the
// HTTP surface together, grounded in cmd/server/main.go's load-config then
// construct-managers then register-routes then run-with-graceful-shutdown
// order.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/riftgate/anthropic-gateway/internal/allocator"
	"github.com/riftgate/anthropic-gateway/internal/api"
	"github.com/riftgate/anthropic-gateway/internal/authcache"
	"github.com/riftgate/anthropic-gateway/internal/authmanager"
	"github.com/riftgate/anthropic-gateway/internal/config"
	"github.com/riftgate/anthropic-gateway/internal/crypto"
	"github.com/riftgate/anthropic-gateway/internal/customdispatcher"
	"github.com/riftgate/anthropic-gateway/internal/health"
	"github.com/riftgate/anthropic-gateway/internal/httpproxy"
	"github.com/riftgate/anthropic-gateway/internal/kiroclient"
	"github.com/riftgate/anthropic-gateway/internal/orchestrator"
	"github.com/riftgate/anthropic-gateway/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("gateway: load config: %v", err)
	}

	box, err := crypto.NewBox(cfg.TokenEncryptKey)
	if err != nil {
		log.Fatalf("gateway: init crypto box: %v", err)
	}

	dbPath := os.Getenv("GATEWAY_DB_PATH")
	if dbPath == "" {
		dbPath = "gateway.db"
	}
	st, err := store.Open(dbPath, box)
	if err != nil {
		log.Fatalf("gateway: open store: %v", err)
	}
	defer st.Close()

	httpClient, err := httpproxy.NewClient(cfg.HTTPProxy, cfg.SOCKS5Proxy, 120*time.Second)
	if err != nil {
		log.Fatalf("gateway: build outbound http client: %v", err)
	}

	cache := authcache.New(func(creds store.TokenCredentials) *authmanager.Manager {
		return authmanager.New(creds, httpClient)
	})

	checker := health.New(st, cache, time.Duration(cfg.HealthCheckInterval)*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	go checker.Run(ctx)

	alloc := allocator.New(st, cache)
	kiro := kiroclient.New(httpClient)
	custom := customdispatcher.New(httpClient)
	orch := orchestrator.New(st, alloc, kiro, custom)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	api.New(st, orch).Register(engine)

	addr := os.Getenv("GATEWAY_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: engine}

	go func() {
		log.Infof("gateway: listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gateway: serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("gateway: shutdown: %v", err)
	}
}
