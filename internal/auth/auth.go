// Package auth implements the gateway's bearer-credential authenticator.
// Verification is bcrypt-based and deliberately expensive, so a
// short-TTL cache sits in front of the full active-key scan.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/llmgov/gateway/internal/models"
)

// ErrAuth is returned when no active key's hash matches the presented
// credential.
var ErrAuth = errors.New("invalid or inactive api key")

const cacheTTL = 60 * time.Second

// keyStore is the subset of store.Store the authenticator depends on.
type keyStore interface {
	ListActiveAPIKeys(ctx context.Context) ([]models.APIKey, error)
	GetAPIKey(ctx context.Context, id string) (*models.APIKey, error)
}

type cacheEntry struct {
	key       models.APIKey
	expiresAt time.Time
}

// Authenticator verifies bearer credentials against api_keys.key_hash. A
// cache entry is keyed by the SHA-256 of the bearer (never the plaintext
// itself, so a cache dump does not leak usable credentials) and maps to
// the matched APIKey for up to cacheTTL. The underlying bcrypt scan still
// runs on every cache miss; a cache hit instead re-fetches that one row
// by id to recheck is_active, which is cheap enough to do on every hit
// and catches a key deactivated mid-TTL without waiting for expiry.
type Authenticator struct {
	store                     keyStore
	defaultRateLimitPerMinute int

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// New creates an Authenticator backed by store. defaultRateLimitPerMinute
// is applied to a matched key whose own RateLimitPerMinute is unset.
func New(store keyStore, defaultRateLimitPerMinute int) *Authenticator {
	return &Authenticator{
		store:                     store,
		defaultRateLimitPerMinute: defaultRateLimitPerMinute,
		cache:                     make(map[string]cacheEntry),
	}
}

// Authenticate verifies bearer against every active APIKey's key_hash
// and returns the matching record, or ErrAuth if none matches.
func (a *Authenticator) Authenticate(ctx context.Context, bearer string) (*models.APIKey, error) {
	cacheKey := sha256Hex(bearer)

	if key, ok := a.lookupCache(cacheKey); ok {
		fresh, err := a.store.GetAPIKey(ctx, key.ID)
		if err == nil && fresh.IsActive {
			return &key, nil
		}
		a.evictCache(cacheKey)
	}

	keys, err := a.store.ListActiveAPIKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active api keys: %w", err)
	}

	for _, k := range keys {
		if !k.IsActive {
			continue
		}
		if err := bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(bearer)); err == nil {
			if k.RateLimitPerMinute == 0 {
				k.RateLimitPerMinute = a.defaultRateLimitPerMinute
			}
			a.storeCache(cacheKey, k)
			return &k, nil
		}
	}

	return nil, ErrAuth
}

func (a *Authenticator) lookupCache(cacheKey string) (models.APIKey, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	entry, ok := a.cache[cacheKey]
	if !ok || time.Now().After(entry.expiresAt) {
		return models.APIKey{}, false
	}
	return entry.key, true
}

func (a *Authenticator) storeCache(cacheKey string, key models.APIKey) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache[cacheKey] = cacheEntry{key: key, expiresAt: time.Now().Add(cacheTTL)}
}

func (a *Authenticator) evictCache(cacheKey string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.cache, cacheKey)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
