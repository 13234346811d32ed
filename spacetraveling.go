// Package spacetraveling is a blog front end built with Go, Echo and templ
// on top of a Prismic content repository.
//
// Pages are generated on first request, persisted in SQLite and
// regenerated in the background once older than the revalidation
// interval. The same generators export the whole site as static files.
package spacetraveling

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/eringen/spacetraveling/blog"
	"github.com/eringen/spacetraveling/prismic"
	"github.com/eringen/spacetraveling/views"
)

// App is the central spacetraveling application. It wires together the
// CMS client, page cache, store, handlers and middleware.
type App struct {
	Config  SiteConfig
	Echo    *echo.Echo
	Client  *prismic.Client
	Source  *blog.Source
	Store   *Store // nil when running WithoutStore
	Cache   *PageCache
	Metrics *Metrics

	banners      *BannerOptimizer
	limiter      *RateLimiter
	httpClient   *http.Client
	memoryOnly   bool
	now          func() time.Time
	customRoutes []func(*App)
	ready        bool
}

// New creates an App from cfg. It does not touch the network or disk;
// Setup does.
func New(cfg SiteConfig, opts ...Option) (*App, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("spacetraveling: %w", err)
	}

	a := &App{
		Config:  cfg,
		Echo:    echo.New(),
		Metrics: newMetrics(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.Echo.HideBanner = true
	a.Echo.Logger.SetLevel(log.INFO)

	if a.httpClient == nil {
		a.httpClient = &http.Client{Timeout: cfg.FetchTimeout}
	}
	hc := a.Metrics.instrumentClient(a.httpClient)

	client, err := prismic.NewClient(prismic.Config{
		Endpoint:    cfg.endpoint(),
		AccessToken: cfg.AccessToken,
		HTTPClient:  hc,
	})
	if err != nil {
		return nil, fmt.Errorf("spacetraveling: %w", err)
	}
	a.Client = client

	policy, _ := blog.ParsePolicy(cfg.MalformedPolicy)
	a.Source = blog.NewSource(client, blog.SourceConfig{
		PageSize:  cfg.PageSize,
		Orderings: cfg.Orderings,
		Policy:    policy,
		OnSkip: func(err error) {
			a.Metrics.skipped.Inc()
			a.Echo.Logger.Warnf("skipping malformed document: %v", err)
		},
	})

	if cfg.OptimizeBanners {
		a.banners = NewBannerOptimizer(hc, cfg.StaticDir)
	}
	return a, nil
}

// Setup opens the store and registers middleware and routes. It is called
// by Start; tests call it directly and drive a.Echo with httptest.
func (a *App) Setup() error {
	if a.ready {
		return nil
	}
	if !a.memoryOnly {
		store, err := NewStore(a.Config.DatabasePath)
		if err != nil {
			return fmt.Errorf("spacetraveling: init store: %w", err)
		}
		a.Store = store
	}

	a.Cache = NewPageCache(a.Store, a.Config.Revalidate, a.Echo.Logger)
	a.Cache.now = a.now
	if n, err := a.Cache.Warm(); err != nil {
		a.Echo.Logger.Warnf("%v", err)
	} else if n > 0 {
		a.Echo.Logger.Infof("loaded %d stored pages", n)
	}
	a.Metrics.registerPageGauge(a.Cache.Len)

	a.limiter = NewRateLimiter(a.Config.MoreRateLimit, time.Minute)

	a.setupMiddleware()
	a.setupRoutes()
	for _, fn := range a.customRoutes {
		fn(a)
	}
	a.ready = true
	return nil
}

// Start sets the app up and serves until the server is shut down.
func (a *App) Start() error {
	if err := a.Setup(); err != nil {
		return err
	}
	if a.Config.Prebuild {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := a.Prebuild(ctx); err != nil {
				a.Echo.Logger.Warnf("%v", err)
			}
		}()
	}
	a.Echo.Logger.Infof("listening on %s (CMS %s)", a.Config.Addr, a.Client.Endpoint())
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	// Embedded assets take precedence; everything else under /public
	// comes from the static directory.
	embeddedFS, _ := fs.Sub(EmbeddedAssets, "embedded")
	embeddedHandler := echo.WrapHandler(http.StripPrefix("/public/", http.FileServer(http.FS(embeddedFS))))
	entries, _ := fs.ReadDir(embeddedFS, ".")
	for _, entry := range entries {
		if !entry.IsDir() {
			e.GET("/public/"+entry.Name(), embeddedHandler)
		}
	}
	e.Static("/public", a.Config.StaticDir)

	e.GET("/robots.txt", a.handleRobots)
	e.GET("/healthz", handleHealth)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: a.Metrics.Registry,
	}))

	e.GET("/", a.handleHome)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/post/:slug/", a.handlePost)

	cms := e.Group("", a.limiter.Middleware)
	cms.GET("/posts/more/", a.handleMore)
	cms.POST("/post/:slug/generate/", a.handleGenerate)
}

func (a *App) site() views.Site {
	return views.Site{
		Name:        a.Config.Name,
		URL:         a.Config.URL,
		Description: a.Config.Description,
		Author:      a.Config.Author,
	}
}

// Shutdown stops the server and waits for background regenerations.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Echo.Shutdown(ctx)
	if a.Cache != nil {
		done := make(chan struct{})
		go func() {
			a.Cache.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
