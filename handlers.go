package spacetraveling

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eringen/spacetraveling/blog"
	"github.com/eringen/spacetraveling/prismic"
	"github.com/eringen/spacetraveling/views"
)

func (a *App) handleHome(c echo.Context) error {
	pages, _ := strconv.Atoi(c.QueryParam("pages"))
	if pages > 1 {
		return a.handleHomePages(c, min(pages, views.MaxListingPages))
	}
	p, err := a.Cache.Get(c.Request().Context(), homeRoute, a.homeGenerator())
	if err != nil {
		return cmsError(err)
	}
	return servePage(c, p)
}

// handleHomePages renders the listing with its first pages pages loaded,
// for browsers that follow the load-more link without htmx.
func (a *App) handleHomePages(c echo.Context, pages int) error {
	c.Response().Header().Set("Cache-Control", "no-store")
	if !a.limiter.Allow(c.RealIP()) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
	}
	page, err := a.loadListing(c.Request().Context(), pages)
	if err != nil {
		return cmsError(err)
	}
	return Render(c, views.Home(a.site(), page, pages))
}

// handleMore serves the next batch of the listing: an HTML fragment for
// htmx, a page of its own otherwise.
func (a *App) handleMore(c echo.Context) error {
	cursor := c.QueryParam("cursor")
	if cursor == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing cursor")
	}
	shown, err := strconv.Atoi(c.QueryParam("pages"))
	if err != nil || shown < 2 {
		shown = 2
	}
	page, err := a.Source.FetchPage(c.Request().Context(), cursor)
	if err != nil {
		return cmsError(err)
	}
	if isHTMX(c) {
		return Render(c, views.PostList(page.Results, page.NextPage, shown))
	}
	return Render(c, views.More(a.site(), page, shown))
}

// handlePost serves a generated post. Posts that were never generated get
// the loading placeholder, which asks handleGenerate to build them.
func (a *App) handlePost(c echo.Context) error {
	slug := c.Param("slug")
	if !validSlug(slug) {
		return a.renderNotFound(c)
	}
	route := postRoute(slug)
	if _, ok := a.Cache.Peek(route); ok {
		// Refreshes stale pages in the background.
		p, err := a.Cache.Get(c.Request().Context(), route, a.postGenerator(slug))
		if err != nil {
			return cmsError(err)
		}
		return servePage(c, p)
	}
	if a.Cache.Missing(route) {
		return a.renderNotFound(c)
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return Render(c, views.Loading(a.site(), generateURL(slug)))
}

// handleGenerate builds a post page. htmx gets 204 once the page is
// cached, or 404 when the CMS has no such post, both with a refresh so
// the placeholder reloads into the outcome. A plain form post is
// redirected to the post instead.
func (a *App) handleGenerate(c echo.Context) error {
	slug := c.Param("slug")
	if !validSlug(slug) {
		return c.NoContent(http.StatusNotFound)
	}
	_, err := a.Cache.Get(c.Request().Context(), postRoute(slug), a.postGenerator(slug))
	if err != nil && !errors.Is(err, blog.ErrNotFound) {
		return cmsError(err)
	}
	if !isHTMX(c) {
		return c.Redirect(http.StatusSeeOther, postRoute(slug))
	}
	c.Response().Header().Set("HX-Refresh", "true")
	if err != nil {
		return c.NoContent(http.StatusNotFound)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleFeed(c echo.Context) error {
	p, err := a.Cache.Get(c.Request().Context(), feedRoute, a.feedGenerator())
	if err != nil {
		return cmsError(err)
	}
	return servePage(c, p)
}

func (a *App) handleSitemap(c echo.Context) error {
	p, err := a.Cache.Get(c.Request().Context(), sitemapRoute, a.sitemapGenerator())
	if err != nil {
		return cmsError(err)
	}
	return servePage(c, p)
}

func (a *App) handleRobots(c echo.Context) error {
	body := "User-agent: *\nAllow: /\nSitemap: " + strings.TrimSuffix(a.Config.URL, "/") + sitemapRoute + "\n"
	return c.String(http.StatusOK, body)
}

func handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// cmsError classifies a failed CMS call for the error handler.
func cmsError(err error) error {
	var apiErr *prismic.APIError
	switch {
	case errors.Is(err, prismic.ErrForeignCursor):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid cursor").SetInternal(err)
	case errors.As(err, &apiErr), errors.Is(err, prismic.ErrNoMasterRef):
		return echo.NewHTTPError(http.StatusBadGateway).SetInternal(err)
	}
	return err
}

// notFoundCacheControl lets shared caches keep a 404 only as long as the
// page cache remembers the missing post, so a post published later is
// reachable again.
var notFoundCacheControl = fmt.Sprintf("public, max-age=0, s-maxage=%d", int(missingTTL.Seconds()))

func (a *App) renderNotFound(c echo.Context) error {
	c.Response().Header().Set("Cache-Control", notFoundCacheControl)
	return RenderStatus(c, http.StatusNotFound, views.NotFound(a.site()))
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	ok := errors.As(err, &he)
	if (ok && he.Code == http.StatusNotFound) || errors.Is(err, blog.ErrNotFound) {
		_ = a.renderNotFound(c)
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		c.Logger().Errorf("server error: %v", err)
		c.Response().Header().Set("Cache-Control", "no-store")
		_ = RenderStatus(c, code, views.ServerError(a.site()))
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
