// Package authcache is the process-wide map from a Kiro token's hash to
// its AuthManager (C6), grounded in sdk/cliproxy/auth/conductor.go's
// m.auths map guarded by m.mu: an RLock-for-read, Lock-for-insert-on-miss
// pattern that keeps refresh coalescing stable across requests sharing a
// credential.
package authcache

import (
	"sync"

	"github.com/riftgate/anthropic-gateway/internal/authmanager"
	"github.com/riftgate/anthropic-gateway/internal/crypto"
	"github.com/riftgate/anthropic-gateway/internal/store"
)

// Cache maps a token hash to the AuthManager handling that credential's
// refresh lifecycle. Entries are removed only through Evict, never on an
// LRU or TTL basis; deleting or invalidating a token row does not call
// Evict.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*authmanager.Manager

	newManager func(store.TokenCredentials) *authmanager.Manager
}

// New returns an empty Cache. newManager lets callers inject the HTTP
// client (proxy-aware) every constructed Manager should use.
func New(newManager func(store.TokenCredentials) *authmanager.Manager) *Cache {
	return &Cache{entries: make(map[string]*authmanager.Manager), newManager: newManager}
}

// GetOrCreate returns the manager for refreshToken's hash, constructing
// and inserting one on first use.
func (c *Cache) GetOrCreate(creds store.TokenCredentials, refreshToken string) *authmanager.Manager {
	hash := crypto.TokenHash(refreshToken)

	c.mu.RLock()
	m, ok := c.entries[hash]
	c.mu.RUnlock()
	if ok {
		return m
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok = c.entries[hash]; ok {
		return m
	}
	m = c.newManager(creds)
	c.entries[hash] = m
	return m
}

// Evict removes the manager for a given refresh token's hash, so a later
// GetOrCreate for the same refresh token starts from a clean manager. No
// caller in the gateway invokes it on token deletion or invalidation.
func (c *Cache) Evict(refreshToken string) {
	hash := crypto.TokenHash(refreshToken)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, hash)
}

// Len reports the number of managers currently cached, mainly for tests
// and diagnostics.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
