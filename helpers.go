package spacetraveling

import (
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eringen/spacetraveling/blog"
)

// Slugify converts a string to a file-system and URL safe slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Routes of the generated pages.
const (
	homeRoute    = "/"
	feedRoute    = "/feed.xml"
	sitemapRoute = "/sitemap.xml"
)

// postRoute is the cache key and path of a post page.
func postRoute(uid string) string {
	return blog.PostPath(uid)
}

// generateURL is the endpoint the loading placeholder calls.
func generateURL(uid string) string {
	return postRoute(uid) + "generate/"
}

// validSlug rejects slugs that cannot be a CMS uid, so they never reach
// the CMS or the page store.
func validSlug(slug string) bool {
	if slug == "" || len(slug) > 200 {
		return false
	}
	return !strings.ContainsAny(slug, "/\\?#\x00") && slug != "." && slug != ".."
}

// exportPath maps a route to the file written by Export.
func exportPath(route string) string {
	if strings.HasSuffix(route, "/") {
		route += "index.html"
	}
	p, err := url.PathUnescape(route)
	if err != nil {
		return route
	}
	return p
}

// isHTMX reports whether the request was issued by htmx.
func isHTMX(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true"
}
