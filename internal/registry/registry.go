// Package registry owns pooled database handles keyed by resolved
// configuration. Handles are built lazily, reused while healthy, and retired
// on configuration change or shutdown.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	_ "github.com/jackc/pgx/v5/stdlib"

	"ndamli-federation/provider/internal/vault"
)

// PoolConfig bounds each pooled handle. Zero values fall back to the defaults
// matching the original deployment's pool sizing.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnectTimeout  time.Duration
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// DefaultPoolConfig is the fixed pool policy: max 10 connections, 2 idle,
// 30s connect timeout, 10m idle timeout, 30m max lifetime.
var DefaultPoolConfig = PoolConfig{
	MaxOpenConns:    10,
	MaxIdleConns:    2,
	ConnectTimeout:  30 * time.Second,
	ConnMaxIdleTime: 10 * time.Minute,
	ConnMaxLifetime: 30 * time.Minute,
}

func (p PoolConfig) withDefaults() PoolConfig {
	d := DefaultPoolConfig
	if p.MaxOpenConns > 0 {
		d.MaxOpenConns = p.MaxOpenConns
	}
	if p.MaxIdleConns > 0 {
		d.MaxIdleConns = p.MaxIdleConns
	}
	if p.ConnectTimeout > 0 {
		d.ConnectTimeout = p.ConnectTimeout
	}
	if p.ConnMaxIdleTime > 0 {
		d.ConnMaxIdleTime = p.ConnMaxIdleTime
	}
	if p.ConnMaxLifetime > 0 {
		d.ConnMaxLifetime = p.ConnMaxLifetime
	}
	return d
}

// UnavailableError reports that a pooled handle could not be established or
// obtained for a configuration key. The registry does not retry; retry policy
// belongs to the caller.
type UnavailableError struct {
	Key string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("registry: handle for %q unavailable: %v", e.Key, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// BundleSupplier resolves connection credentials for a configuration key,
// typically by consulting the Vault client or returning static configuration.
type BundleSupplier func(ctx context.Context) (vault.Credentials, error)

// Registry caches one live *sql.DB per configuration key. Safe for concurrent
// use; concurrent misses on the same key construct at most one handle.
type Registry struct {
	pool PoolConfig

	open func(dsn string) (*sql.DB, error)

	mu      sync.RWMutex
	handles map[string]*sql.DB
	group   singleflight.Group
}

// New returns a Registry using the given pool policy (zero fields default).
func New(pool PoolConfig) *Registry {
	return NewWithOpener(pool, func(dsn string) (*sql.DB, error) { return sql.Open("pgx", dsn) })
}

// NewWithOpener returns a Registry that opens handles with open instead of
// the default pgx driver.
func NewWithOpener(pool PoolConfig, open func(dsn string) (*sql.DB, error)) *Registry {
	return &Registry{
		pool:    pool.withDefaults(),
		open:    open,
		handles: make(map[string]*sql.DB),
	}
}

// HandleFor returns the live handle for key, building one via supplier when
// none exists. An existing handle that fails a ping is evicted and rebuilt.
// Construction failures return *UnavailableError.
func (r *Registry) HandleFor(ctx context.Context, key string, supplier BundleSupplier) (*sql.DB, error) {
	if db, ok := r.lookup(key); ok {
		if r.healthy(ctx, db) {
			return db, nil
		}
		r.evict(key, db)
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		// Another caller may have built the handle while we waited.
		if db, ok := r.lookup(key); ok && r.healthy(ctx, db) {
			return db, nil
		}
		db, err := r.build(ctx, supplier)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.handles[key] = db
		r.mu.Unlock()
		return db, nil
	})
	if err != nil {
		return nil, &UnavailableError{Key: key, Err: err}
	}
	return v.(*sql.DB), nil
}

func (r *Registry) lookup(key string) (*sql.DB, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	db, ok := r.handles[key]
	return db, ok
}

func (r *Registry) healthy(ctx context.Context, db *sql.DB) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.PingContext(pingCtx) == nil
}

func (r *Registry) evict(key string, db *sql.DB) {
	r.mu.Lock()
	if current, ok := r.handles[key]; ok && current == db {
		delete(r.handles, key)
	}
	r.mu.Unlock()
	if err := db.Close(); err != nil {
		log.Printf("registry: closing dead handle for %q: %v", key, err)
	}
}

func (r *Registry) build(ctx context.Context, supplier BundleSupplier) (*sql.DB, error) {
	creds, err := supplier(ctx)
	if err != nil {
		return nil, err
	}
	dsn, err := buildDSN(creds)
	if err != nil {
		return nil, err
	}

	db, err := r.open(dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(r.pool.MaxOpenConns)
	db.SetMaxIdleConns(r.pool.MaxIdleConns)
	db.SetConnMaxIdleTime(r.pool.ConnMaxIdleTime)
	db.SetConnMaxLifetime(r.pool.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, r.pool.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// buildDSN merges the bundle's username/password into its endpoint URL.
// Credentials in the URL itself are overridden by the bundle's principal.
func buildDSN(creds vault.Credentials) (string, error) {
	u, err := url.Parse(creds.URL)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint URL: %w", err)
	}
	if creds.Username != "" {
		u.User = url.UserPassword(creds.Username, creds.Password)
	}
	return u.String(), nil
}

// Invalidate closes and removes the handle for key. Used when configuration
// fields change between snapshots. No-op for unknown keys.
func (r *Registry) Invalidate(key string) {
	r.mu.Lock()
	db, ok := r.handles[key]
	delete(r.handles, key)
	r.mu.Unlock()
	if ok {
		if err := db.Close(); err != nil {
			log.Printf("registry: closing handle for %q: %v", key, err)
		}
	}
}

// Shutdown closes every handle. Called once at process teardown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]*sql.DB)
	r.mu.Unlock()
	for key, db := range handles {
		if err := db.Close(); err != nil {
			log.Printf("registry: closing handle for %q: %v", key, err)
		}
	}
}

// Len reports how many live handles the registry holds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
