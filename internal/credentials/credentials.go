// Package credentials caches the agent API bearer token with a TTL, backed
// by a small on-disk cache so short-lived CLI invocations do not hit the
// token endpoint every run.
//
// The disk cache lives at ~/.chatviz/agent_token.json and is guarded by an
// advisory file lock so concurrent chatviz processes do not clobber each
// other's refreshes. The in-memory layer is safe for concurrent use.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/chatviz/chatviz/internal/log"
)

// ErrNoCredential indicates no token could be produced.
var ErrNoCredential = errors.New("no agent credential available")

const (
	cacheDir  = ".chatviz"
	cacheFile = "agent_token.json"

	// refreshSkew renews tokens this long before their actual expiry so a
	// token handed out is never already stale by the time it is used.
	refreshSkew = 30 * time.Second

	// lockTimeout bounds how long a process waits on another's refresh.
	lockTimeout = 5 * time.Second
)

// Token is a bearer credential with its expiry.
type Token struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// valid reports whether the token is usable at time now, with skew applied.
func (t Token) valid(now time.Time) bool {
	return t.Value != "" && now.Add(refreshSkew).Before(t.ExpiresAt)
}

// RefreshFunc obtains a fresh token from the issuing side.
type RefreshFunc func(ctx context.Context) (Token, error)

// Cache is a TTL token cache with optional disk persistence.
type Cache struct {
	refresh RefreshFunc
	path    string
	logger  log.Logger

	mu    sync.Mutex
	token Token
	now   func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithPath overrides the disk cache location. Empty disables persistence.
func WithPath(path string) Option {
	return func(c *Cache) { c.path = path }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a token cache around refresh. The default disk location
// is ~/.chatviz/agent_token.json; a home-directory lookup failure just
// disables persistence.
func NewCache(refresh RefreshFunc, logger log.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = log.NewNop()
	}
	c := &Cache{refresh: refresh, logger: logger, now: time.Now}
	if home, err := os.UserHomeDir(); err == nil {
		c.path = filepath.Join(home, cacheDir, cacheFile)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns a valid bearer token, refreshing through the configured
// RefreshFunc when the cached one has expired. It implements the agent
// package's TokenSource.
func (c *Cache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token.valid(now) {
		return c.token.Value, nil
	}

	// Another process may have refreshed already; check disk before paying
	// for a refresh of our own.
	if tok, ok := c.loadDisk(ctx); ok && tok.valid(now) {
		c.token = tok
		return tok.Value, nil
	}

	if c.refresh == nil {
		return "", ErrNoCredential
	}

	tok, err := c.refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("refreshing agent credential: %w", err)
	}
	if !tok.valid(now) {
		return "", fmt.Errorf("%w: refresh produced an expired token", ErrNoCredential)
	}

	c.token = tok
	c.storeDisk(ctx, tok)
	return tok.Value, nil
}

// Invalidate discards the cached token, forcing a refresh on the next call.
// Callers use this after the agent rejects a credential.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = Token{}
	if c.path != "" {
		if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
			c.logger.Debug("removing token cache file", "error", err)
		}
	}
}

// loadDisk reads the persisted token under the file lock. Any failure is
// treated as a cache miss.
func (c *Cache) loadDisk(ctx context.Context) (Token, bool) {
	if c.path == "" {
		return Token{}, false
	}
	unlock, err := c.lock(ctx)
	if err != nil {
		c.logger.Debug("token cache lock unavailable", "error", err)
		return Token{}, false
	}
	defer unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		return Token{}, false
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		c.logger.Debug("token cache file malformed", "error", err)
		return Token{}, false
	}
	return tok, true
}

// storeDisk persists the token atomically (temp file + rename) under the
// file lock. Persistence failures are logged, never fatal.
func (c *Cache) storeDisk(ctx context.Context, tok Token) {
	if c.path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o750); err != nil {
		c.logger.Debug("creating token cache directory", "error", err)
		return
	}
	unlock, err := c.lock(ctx)
	if err != nil {
		c.logger.Debug("token cache lock unavailable", "error", err)
		return
	}
	defer unlock()

	data, err := json.Marshal(tok)
	if err != nil {
		c.logger.Debug("encoding token cache", "error", err)
		return
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		c.logger.Debug("writing token cache", "error", err)
		return
	}
	if err := os.Rename(tmp, c.path); err != nil {
		c.logger.Debug("renaming token cache", "error", err)
	}
}

func (c *Cache) lock(ctx context.Context) (func(), error) {
	lk := flock.New(c.path + ".lock")
	lctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	ok, err := lk.TryLockContext(lctx, 100*time.Millisecond)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("lock held by another process")
	}
	return func() {
		if err := lk.Unlock(); err != nil {
			c.logger.Debug("releasing token cache lock", "error", err)
		}
	}, nil
}
