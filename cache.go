package spacetraveling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/singleflight"

	"github.com/eringen/spacetraveling/blog"
)

// ErrPageNotStored is returned by Store.LoadPage for unknown routes.
var ErrPageNotStored = errors.New("page not stored")

// Page is a generated response body.
type Page struct {
	Route       string
	ContentType string
	Body        []byte
	GeneratedAt time.Time
}

// Generator produces the current version of one page.
type Generator func(ctx context.Context) (Page, error)

// PageCache serves generated pages and regenerates them once they are
// older than the revalidation interval. Stale pages are served as-is while
// a single background regeneration per route runs. A failed regeneration
// keeps the previous page, except when the post no longer exists.
type PageCache struct {
	mu      sync.RWMutex
	pages   map[string]Page
	missing map[string]time.Time // routes whose post was not found, and when
	failed  map[string]time.Time // last failed generation per route
	ttl     time.Duration
	store   *Store // optional
	now     func() time.Time

	group   singleflight.Group
	wg      sync.WaitGroup
	timeout time.Duration
	logger  echo.Logger
}

// NewPageCache creates a PageCache. store may be nil.
func NewPageCache(store *Store, ttl time.Duration, logger echo.Logger) *PageCache {
	return &PageCache{
		pages:   make(map[string]Page),
		missing: make(map[string]time.Time),
		failed:  make(map[string]time.Time),
		ttl:     ttl,
		store:   store,
		now:     time.Now,
		timeout: 30 * time.Second,
		logger:  logger,
	}
}

// Len returns the number of pages held in memory.
func (c *PageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pages)
}

// Peek returns the page for route without generating it, falling back to
// the store.
func (c *PageCache) Peek(route string) (Page, bool) {
	c.mu.RLock()
	p, ok := c.pages[route]
	c.mu.RUnlock()
	if ok {
		return p, true
	}
	if c.store == nil {
		return Page{}, false
	}
	p, err := c.store.LoadPage(route)
	if err != nil {
		if !errors.Is(err, ErrPageNotStored) {
			c.logger.Warnf("load page %s: %v", route, err)
		}
		return Page{}, false
	}
	c.mu.Lock()
	// A concurrent generation may have produced a newer page meanwhile.
	if cur, ok := c.pages[route]; ok {
		p = cur
	} else {
		c.pages[route] = p
	}
	c.mu.Unlock()
	return p, true
}

func (c *PageCache) fresh(p Page) bool {
	return c.now().Sub(p.GeneratedAt) < c.ttl
}

// Get returns the page for route. A missing page is generated
// synchronously; a stale one is returned immediately and regenerated in
// the background.
func (c *PageCache) Get(ctx context.Context, route string, gen Generator) (Page, error) {
	if p, ok := c.Peek(route); ok {
		if !c.fresh(p) {
			c.Revalidate(route, gen)
		}
		return p, nil
	}
	return c.Generate(ctx, route, gen)
}

// Generate runs gen for route now, sharing the result with concurrent
// callers for the same route, and stores the page.
func (c *PageCache) Generate(ctx context.Context, route string, gen Generator) (Page, error) {
	ch := c.group.DoChan(route, func() (any, error) {
		// Detached so one cancelled request does not fail the others
		// waiting on the same generation.
		gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.generate(gctx, route, gen)
	})
	select {
	case <-ctx.Done():
		return Page{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Page{}, res.Err
		}
		return res.Val.(Page), nil
	}
}

// retryBackoff is how long a route whose regeneration failed keeps being
// served stale before the next attempt.
const retryBackoff = time.Minute

// Revalidate regenerates route in the background. Concurrent calls for the
// same route share one generation, and a route whose last generation
// failed is not retried within retryBackoff.
func (c *PageCache) Revalidate(route string, gen Generator) {
	c.mu.RLock()
	failedAt, failed := c.failed[route]
	c.mu.RUnlock()
	if failed && c.now().Sub(failedAt) < retryBackoff {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_, err, _ := c.group.Do(route, func() (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			defer cancel()
			return c.generate(ctx, route, gen)
		})
		if err != nil && !errors.Is(err, blog.ErrNotFound) {
			c.logger.Errorf("regenerate %s: %v (serving previous version)", route, err)
		}
	}()
}

func (c *PageCache) generate(ctx context.Context, route string, gen Generator) (Page, error) {
	p, err := gen(ctx)
	if errors.Is(err, blog.ErrNotFound) {
		c.Evict(route)
		return Page{}, err
	}
	if err != nil {
		c.mu.Lock()
		c.failed[route] = c.now()
		c.mu.Unlock()
		return Page{}, err
	}
	p.Route = route
	if p.GeneratedAt.IsZero() {
		p.GeneratedAt = c.now()
	}
	c.mu.Lock()
	c.pages[route] = p
	delete(c.missing, route)
	delete(c.failed, route)
	c.mu.Unlock()
	if c.store != nil {
		if err := c.store.SavePage(p); err != nil {
			c.logger.Warnf("persist page %s: %v", route, err)
		}
	}
	return p, nil
}

// missingTTL is how long a not-found route is remembered.
const missingTTL = time.Minute

// Missing reports whether the last generation of route found no post
// within missingTTL.
func (c *PageCache) Missing(route string) bool {
	c.mu.RLock()
	at, ok := c.missing[route]
	c.mu.RUnlock()
	return ok && c.now().Sub(at) < missingTTL
}

// Evict forgets route in memory and in the store and marks it missing.
func (c *PageCache) Evict(route string) {
	c.mu.Lock()
	delete(c.pages, route)
	delete(c.failed, route)
	for r, at := range c.missing {
		if c.now().Sub(at) >= missingTTL {
			delete(c.missing, r)
		}
	}
	c.missing[route] = c.now()
	c.mu.Unlock()
	if c.store != nil {
		if err := c.store.DeletePage(route); err != nil {
			c.logger.Warnf("delete page %s: %v", route, err)
		}
	}
}

// Warm loads every stored page into memory and returns how many were
// loaded.
func (c *PageCache) Warm() (int, error) {
	if c.store == nil {
		return 0, nil
	}
	routes, err := c.store.ListRoutes()
	if err != nil {
		return 0, fmt.Errorf("warm cache: %w", err)
	}
	n := 0
	for _, route := range routes {
		if _, ok := c.Peek(route); ok {
			n++
		}
	}
	return n, nil
}

// Wait blocks until all background regenerations have finished.
func (c *PageCache) Wait() {
	c.wg.Wait()
}
