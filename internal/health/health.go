// Package health runs the background credential health checker (C7): on
// a configurable interval it probes every active Kiro token through its
// AuthManager and records the outcome, grounded in
// sdk/cliproxy/auth/conductor_token.go's StartAutoRefresh/checkRefreshes
// loop shape (context-cancellable goroutine, per-token fan-out joined by
// a plain sync.WaitGroup, no errgroup).
package health

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/riftgate/anthropic-gateway/internal/authcache"
	"github.com/riftgate/anthropic-gateway/internal/gatewayerrors"
	"github.com/riftgate/anthropic-gateway/internal/store"
)

// probeTimeout bounds each individual token's health check so one slow or
// hanging upstream can't stall the whole cycle.
const probeTimeout = 10 * time.Second

// Checker periodically validates every active Kiro token.
type Checker struct {
	store    *store.Store
	cache    *authcache.Cache
	interval time.Duration
}

// New returns a Checker that wakes every interval.
func New(st *store.Store, cache *authcache.Cache, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Checker{store: st, cache: cache, interval: interval}
}

// Run blocks, ticking until ctx is cancelled. Intended to be started as a
// background goroutine from cmd/gateway's bootstrap.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runCycle(ctx)
		}
	}
}

// runCycle checks every active token exactly once, each on its own
// goroutine, and waits for all to finish before the next tick.
func (c *Checker) runCycle(ctx context.Context) {
	tokens, err := c.store.AdminListAllKiroTokens(ctx)
	if err != nil {
		log.Errorf("health: list tokens: %v", err)
		return
	}

	var wg sync.WaitGroup
	for _, tok := range tokens {
		if tok.Status != store.TokenStatusActive {
			continue
		}
		wg.Add(1)
		go func(tok *store.KiroToken) {
			defer wg.Done()
			c.checkOne(ctx, tok)
		}(tok)
	}
	wg.Wait()
}

func (c *Checker) checkOne(ctx context.Context, tok *store.KiroToken) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	creds, err := c.store.GetTokenCredentials(probeCtx, tok.ID)
	if err != nil {
		log.Warnf("health: credentials for token %s: %v", tok.ID, err)
		return
	}

	mgr := c.cache.GetOrCreate(*creds, creds.RefreshToken)
	_, err = mgr.GetAccessToken(probeCtx)

	if err == nil {
		if rerr := c.store.RecordHealthCheck(ctx, tok.ID, store.TokenStatusActive, ""); rerr != nil {
			log.Warnf("health: record ok for %s: %v", tok.ID, rerr)
		}
		return
	}

	authErr, ok := err.(*gatewayerrors.AuthError)
	if !ok {
		log.Warnf("health: unclassified error for token %s: %v", tok.ID, err)
		return
	}

	switch authErr.Classification {
	case gatewayerrors.ClassExpired, gatewayerrors.ClassInvalid:
		if rerr := c.store.RecordHealthCheck(ctx, tok.ID, store.TokenStatusInvalid, authErr.Message); rerr != nil {
			log.Warnf("health: record invalid for %s: %v", tok.ID, rerr)
		}
		log.Warnf("health: token %s marked invalid: %s", tok.ID, authErr.Message)
	case gatewayerrors.ClassTransient:
		if rerr := c.store.RecordHealthCheck(ctx, tok.ID, store.TokenStatusActive, authErr.Message); rerr != nil {
			log.Warnf("health: record transient note for %s: %v", tok.ID, rerr)
		}
		log.Infof("health: token %s transient failure, leaving active: %s", tok.ID, authErr.Message)
	}
}
