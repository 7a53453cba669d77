package schema

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/askdb/askdb/internal/observability"
)

const loadKey = "describe"

// Cache holds the most recent Description. Concurrent loads share one catalog
// round trip and readers only ever see a complete Description.
type Cache struct {
	describer Describer
	timeout   time.Duration
	logger    *slog.Logger

	current atomic.Pointer[Description]
	loads   singleflight.Group
}

func NewCache(describer Describer, timeout time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Cache{describer: describer, timeout: timeout, logger: logger}
}

// Get returns a copy of the cached description, loading it on first use.
func (c *Cache) Get(ctx context.Context) (Description, error) {
	if cached := c.current.Load(); cached != nil {
		return cached.Clone(), nil
	}
	return c.load(ctx, false)
}

// Refresh reloads from the catalog and swaps the cached value on success. A
// failed refresh keeps the previous description.
func (c *Cache) Refresh(ctx context.Context) (Description, error) {
	c.loads.Forget(loadKey)
	return c.load(ctx, true)
}

func (c *Cache) Invalidate() {
	c.current.Store(nil)
}

// Loaded reports whether a description is cached.
func (c *Cache) Loaded() bool {
	return c.current.Load() != nil
}

func (c *Cache) load(ctx context.Context, force bool) (Description, error) {
	// The shared load outlives a cancelled caller so other waiters still get a
	// result; it is bounded by the schema timeout.
	ch := c.loads.DoChan(loadKey, func() (any, error) {
		if cached := c.current.Load(); cached != nil && !force {
			return *cached, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		started := time.Now()
		description, err := c.describer.Describe(loadCtx)
		if err != nil {
			observability.IncrementSchemaRefresh("error")
			c.logger.Warn("schema load failed", slog.Any("error", err))
			return Description{}, err
		}
		c.current.Store(&description)
		observability.IncrementSchemaRefresh("success")
		c.logger.Info("schema loaded",
			slog.Int("tables", len(description.Tables)),
			slog.Int("columns", description.ColumnCount()),
			slog.Duration("duration", time.Since(started)),
		)
		return description, nil
	})

	select {
	case <-ctx.Done():
		return Description{}, ctx.Err()
	case result := <-ch:
		if result.Err != nil {
			return Description{}, result.Err
		}
		return result.Val.(Description).Clone(), nil
	}
}
