// Package cache provides the compiled-schema cache with PostgreSQL
// LISTEN/NOTIFY invalidation.
package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"docforge/internal/schema"
	"docforge/pkg/logger"
)

// SchemaCache keeps compiled schemas by doctype name. A miss compiles through
// the compiler's lookup; invalidating a doctype also drops every cached schema
// that embeds it through Reference Table or Extend.
type SchemaCache struct {
	compiler *schema.Compiler
	opts     schema.Options

	mu      sync.RWMutex
	entries map[string]*schema.Compiled
	// generation advances on every invalidation; a compile that started
	// under an older generation is returned but not stored.
	generation uint64

	// Listeners for cache invalidation
	listeners   []InvalidationListener
	listenersMu sync.RWMutex

	// NOTIFY listening is optional; pool is nil for embedded backends.
	pool    *pgxpool.Pool
	channel string

	// Lifecycle
	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// InvalidationListener is called with the doctypes dropped from the cache.
type InvalidationListener func(doctypes []string)

// Config configures a SchemaCache.
type Config struct {
	Compiler *schema.Compiler
	Options  schema.Options

	// Pool and Channel enable invalidation from NOTIFY payloads carrying a
	// doctype name. An empty payload drops everything.
	Pool    *pgxpool.Pool
	Channel string
}

// NewSchemaCache creates a new schema cache.
func NewSchemaCache(cfg Config) *SchemaCache {
	return &SchemaCache{
		compiler: cfg.Compiler,
		opts:     cfg.Options,
		entries:  make(map[string]*schema.Compiled),
		pool:     cfg.Pool,
		channel:  cfg.Channel,
	}
}

// Get returns the compiled schema for doctype, compiling it on a miss.
// Failed compiles are not cached.
func (c *SchemaCache) Get(ctx context.Context, doctype string) (*schema.Compiled, error) {
	c.mu.RLock()
	compiled, ok := c.entries[doctype]
	gen := c.generation
	c.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	compiled, err := c.compiler.CompileByName(ctx, doctype, c.opts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	switch existing, ok := c.entries[doctype]; {
	case ok:
		compiled = existing
	case c.generation == gen:
		c.entries[doctype] = compiled
	default:
		c.mu.Unlock()
		logger.Debug(ctx, "schema compiled across an invalidation, not cached", "doctype", doctype)
		return compiled, nil
	}
	c.mu.Unlock()

	logger.Debug(ctx, "schema compiled", "doctype", doctype, "fields", len(compiled.Fields))
	return compiled, nil
}

// Invalidate drops doctype and every cached schema depending on it, and
// returns the dropped names.
func (c *SchemaCache) Invalidate(doctype string) []string {
	c.mu.Lock()
	c.generation++
	var dropped []string
	for name, compiled := range c.entries {
		if name == doctype || dependsOn(compiled, doctype, map[*schema.Compiled]bool{}) {
			delete(c.entries, name)
			dropped = append(dropped, name)
		}
	}
	c.mu.Unlock()

	sort.Strings(dropped)
	c.notify(dropped)
	return dropped
}

// InvalidateAll empties the cache.
func (c *SchemaCache) InvalidateAll() []string {
	c.mu.Lock()
	c.generation++
	dropped := make([]string, 0, len(c.entries))
	for name := range c.entries {
		dropped = append(dropped, name)
	}
	c.entries = make(map[string]*schema.Compiled)
	c.mu.Unlock()

	sort.Strings(dropped)
	c.notify(dropped)
	return dropped
}

func dependsOn(c *schema.Compiled, doctype string, seen map[*schema.Compiled]bool) bool {
	if seen[c] {
		return false
	}
	seen[c] = true
	for _, f := range c.Fields {
		if f.Child == nil {
			continue
		}
		if f.Child.Doctype == doctype || dependsOn(f.Child, doctype, seen) {
			return true
		}
	}
	return false
}

// OnInvalidation registers a callback for cache invalidation events.
func (c *SchemaCache) OnInvalidation(listener InvalidationListener) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, listener)
	c.listenersMu.Unlock()
}

// notify runs listeners inline with panic recovery.
func (c *SchemaCache) notify(dropped []string) {
	if len(dropped) == 0 {
		return
	}
	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	for _, listener := range c.listeners {
		func(l InvalidationListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(context.Background(), "listener panic recovered", "doctypes", dropped, "panic", r)
				}
			}()
			l(dropped)
		}(listener)
	}
}

// Start begins listening for NOTIFY events. It is a no-op without a pool.
func (c *SchemaCache) Start(ctx context.Context) error {
	if c.pool == nil || c.channel == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.started {
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.started = true

	c.wg.Add(1)
	go c.listenLoop()
	logger.Info(c.ctx, "schema cache started", "channel", c.channel)
	return nil
}

// Stop gracefully stops the cache listener.
func (c *SchemaCache) Stop() {
	c.lifecycleMu.Lock()
	if !c.started {
		c.lifecycleMu.Unlock()
		return
	}
	cancel := c.cancel
	c.started = false
	c.cancel = nil
	c.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	logger.Info(context.Background(), "schema cache stopped")
}

// listenLoop holds a dedicated connection subscribed to the channel and
// reconnects after failures.
func (c *SchemaCache) listenLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		conn, err := c.pool.Acquire(c.ctx)
		if err != nil {
			logger.Error(c.ctx, "failed to acquire connection for LISTEN", "error", err)
			time.Sleep(time.Second)
			continue
		}

		if _, err = conn.Exec(c.ctx, "LISTEN "+c.channel); err != nil {
			logger.Error(c.ctx, "failed to LISTEN", "channel", c.channel, "error", err)
			conn.Release()
			time.Sleep(time.Second)
			continue
		}

		// Changes made while no connection was listening are unknown.
		c.InvalidateAll()
		c.waitForNotifications(conn)
		conn.Release()
	}
}

func (c *SchemaCache) waitForNotifications(conn *pgxpool.Conn) {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
		notification, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if conn.Conn().IsClosed() {
				return
			}
			continue
		}

		logger.Debug(c.ctx, "received notification",
			"channel", notification.Channel,
			"payload", notification.Payload)
		c.handleNotification(notification.Payload)
	}
}

func (c *SchemaCache) handleNotification(payload string) {
	doctype := strings.TrimSpace(payload)
	if doctype == "" {
		c.InvalidateAll()
		return
	}
	c.Invalidate(doctype)
}

// CacheStats describes the cache contents.
type CacheStats struct {
	Cached   int
	Doctypes []string
}

// GetStats returns current cache statistics.
func (c *SchemaCache) GetStats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.entries))
	for k := range c.entries {
		names = append(names, k)
	}
	sort.Strings(names)
	return CacheStats{Cached: len(names), Doctypes: names}
}
