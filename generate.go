package spacetraveling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/eringen/spacetraveling/blog"
	"github.com/eringen/spacetraveling/views"
)

const (
	mimeRSS = "application/rss+xml; charset=utf-8"
	mimeXML = "application/xml; charset=utf-8"
)

// exportConcurrency bounds the posts generated in parallel by Prebuild and
// Export.
const exportConcurrency = 4

func renderComponent(ctx context.Context, cmp templ.Component) ([]byte, error) {
	var buf bytes.Buffer
	if err := cmp.Render(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func htmlPage(body []byte) Page {
	return Page{ContentType: echo.MIMETextHTMLCharsetUTF8, Body: body}
}

// generator wraps fn with the generation metric.
func (a *App) generator(kind string, fn Generator) Generator {
	return func(ctx context.Context) (Page, error) {
		p, err := fn(ctx)
		a.Metrics.observeGeneration(kind, err)
		return p, err
	}
}

func (a *App) homeGenerator() Generator {
	return a.generator("home", a.generateHome)
}

func (a *App) postGenerator(uid string) Generator {
	return a.generator("post", func(ctx context.Context) (Page, error) {
		return a.generatePost(ctx, uid)
	})
}

func (a *App) feedGenerator() Generator {
	return a.generator("feed", a.generateFeed)
}

func (a *App) sitemapGenerator() Generator {
	return a.generator("sitemap", a.generateSitemap)
}

func (a *App) generateHome(ctx context.Context) (Page, error) {
	page, err := a.Source.Home(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("home: %w", err)
	}
	body, err := renderComponent(ctx, views.Home(a.site(), page, 1))
	if err != nil {
		return Page{}, fmt.Errorf("home: render: %w", err)
	}
	return htmlPage(body), nil
}

func (a *App) generatePost(ctx context.Context, uid string) (Page, error) {
	post, err := a.Source.Post(ctx, uid)
	if err != nil {
		return Page{}, fmt.Errorf("post %s: %w", uid, err)
	}
	banner := post.Banner.URL
	if a.banners != nil && banner != "" {
		local, err := a.banners.Optimize(ctx, post.UID, banner)
		if err != nil {
			a.Echo.Logger.Warnf("post %s: %v (using original banner)", uid, err)
		} else {
			banner = local
		}
	}
	body, err := renderComponent(ctx, views.Post(a.site(), views.NewPostView(post, banner)))
	if err != nil {
		return Page{}, fmt.Errorf("post %s: render: %w", uid, err)
	}
	return htmlPage(body), nil
}

func (a *App) generateFeed(ctx context.Context) (Page, error) {
	posts, err := a.Source.AllPosts(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("feed: %w", err)
	}
	body, err := renderRSS(a.site(), posts)
	if err != nil {
		return Page{}, fmt.Errorf("feed: %w", err)
	}
	return Page{ContentType: mimeRSS, Body: body}, nil
}

func (a *App) generateSitemap(ctx context.Context) (Page, error) {
	posts, err := a.Source.AllPosts(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("sitemap: %w", err)
	}
	body, err := renderSitemap(a.site(), posts)
	if err != nil {
		return Page{}, fmt.Errorf("sitemap: %w", err)
	}
	return Page{ContentType: mimeXML, Body: body}, nil
}

// Prebuild generates the home page and every post page that is not cached
// yet, so the first visitors never see the loading placeholder.
func (a *App) Prebuild(ctx context.Context) error {
	if _, err := a.Cache.Get(ctx, homeRoute, a.homeGenerator()); err != nil {
		return fmt.Errorf("prebuild: %w", err)
	}
	uids, err := a.Source.StaticPaths(ctx)
	if err != nil {
		return fmt.Errorf("prebuild: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(exportConcurrency)
	for _, uid := range uids {
		g.Go(func() error {
			// One bad post must not keep the others from being built.
			if _, err := a.Cache.Get(gctx, postRoute(uid), a.postGenerator(uid)); err != nil {
				a.Echo.Logger.Warnf("prebuild: %v", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	a.Echo.Logger.Infof("prebuilt %d posts", len(uids))
	return nil
}

// maxListingPages bounds loadListing when it follows every cursor.
const maxListingPages = 1000

// loadListing follows the listing cursors from the first page until pages
// pages are loaded, or until the last page when pages <= 0.
func (a *App) loadListing(ctx context.Context, pages int) (blog.PostsPage, error) {
	first, err := a.Source.Home(ctx)
	if err != nil {
		return blog.PostsPage{}, err
	}
	if pages <= 0 {
		pages = maxListingPages
	}
	l := blog.NewListing(first)
	for n := 1; n < pages; n++ {
		if _, err := l.LoadMore(ctx, a.Source); err != nil {
			if errors.Is(err, blog.ErrExhausted) {
				break
			}
			return blog.PostsPage{}, err
		}
	}
	return blog.PostsPage{Results: l.Posts(), NextPage: l.Next()}, nil
}

// generateFullHome renders the listing with every post and no load-more
// trigger, for exports that have no server behind them.
func (a *App) generateFullHome(ctx context.Context) (Page, error) {
	page, err := a.loadListing(ctx, 0)
	if err != nil {
		return Page{}, fmt.Errorf("home: %w", err)
	}
	body, err := renderComponent(ctx, views.Home(a.site(), page, 1))
	if err != nil {
		return Page{}, fmt.Errorf("home: render: %w", err)
	}
	return htmlPage(body), nil
}

// Export writes the whole site as static files under dir: the home page
// listing every post, each post, the feed, the sitemap and the public
// assets.
func (a *App) Export(ctx context.Context, dir string) error {
	type job struct {
		route string
		gen   Generator
	}
	uids, err := a.Source.StaticPaths(ctx)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	jobs := []job{
		{homeRoute, a.generator("home", a.generateFullHome)},
		{feedRoute, a.feedGenerator()},
		{sitemapRoute, a.sitemapGenerator()},
	}
	for _, uid := range uids {
		jobs = append(jobs, job{postRoute(uid), a.postGenerator(uid)})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(exportConcurrency)
	for _, j := range jobs {
		g.Go(func() error {
			p, err := j.gen(gctx)
			if err != nil {
				return fmt.Errorf("export %s: %w", j.route, err)
			}
			return writeFileAtomic(filepath.Join(dir, filepath.FromSlash(exportPath(j.route))), p.Body)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := a.exportAssets(filepath.Join(dir, "public")); err != nil {
		return fmt.Errorf("export assets: %w", err)
	}
	a.Echo.Logger.Infof("exported %d pages to %s", len(jobs), dir)
	return nil
}

// exportAssets copies the embedded script and the static directory.
func (a *App) exportAssets(dst string) error {
	embedded, err := fs.Sub(EmbeddedAssets, "embedded")
	if err != nil {
		return err
	}
	if err := copyFS(dst, embedded); err != nil {
		return err
	}
	if _, err := os.Stat(a.Config.StaticDir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return copyFS(dst, os.DirFS(a.Config.StaticDir))
}

func copyFS(dst string, src fs.FS) error {
	return fs.WalkDir(src, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := fs.ReadFile(src, path)
		if err != nil {
			return err
		}
		return writeFileAtomic(filepath.Join(dst, filepath.FromSlash(path)), data)
	})
}
