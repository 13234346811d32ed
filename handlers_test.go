package spacetraveling

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, a *App, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

// doHTMX issues the request the way htmx does.
func doHTMX(t *testing.T, a *App, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

var loadMoreHref = regexp.MustCompile(`class="load-more" href="([^"]+)"`)

func TestHomeListsFirstPageWithLoadMore(t *testing.T) {
	cms := newFakeCMS(t, threePosts...)
	a := newTestApp(t, cms, newFakeClock())

	rec := do(t, a, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Como utilizar Hooks")
	assert.Contains(t, body, "25 mar 2021")
	assert.Contains(t, body, "Joseph Oliveira")
	assert.NotContains(t, body, "Criando um app CRA do zero")
	assert.Contains(t, body, "Carregar mais posts")
	assert.Contains(t, body, `href="/?pages=2"`)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "s-maxage=3600")
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	searches := cms.searches.Load()
	rec = do(t, a, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, searches, cms.searches.Load(), "fresh page must come from the cache")
}

func TestLoadMoreAppendsUntilExhausted(t *testing.T) {
	cms := newFakeCMS(t, threePosts...)
	a := newTestApp(t, cms, newFakeClock())

	first, err := a.Source.Home(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, first.NextPage)

	rec := doHTMX(t, a, http.MethodGet, "/posts/more/?pages=2&cursor="+url.QueryEscape(first.NextPage))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Criando um app CRA do zero")
	assert.Contains(t, body, "26 mar 2021")
	assert.Contains(t, body, "Carregar mais posts")
	assert.Contains(t, body, `href="/?pages=3"`)
	assert.Contains(t, body, `hx-get="/posts/more/?cursor=`)
	assert.NotContains(t, body, "<html", "load more returns a fragment")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = do(t, a, http.MethodGet, "/posts/more/?pages=2&cursor="+url.QueryEscape(first.NextPage))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<!DOCTYPE html>", "without htmx the batch is a page of its own")
	assert.Contains(t, rec.Body.String(), "Criando um app CRA do zero")

	second, err := a.Source.FetchPage(context.Background(), first.NextPage)
	require.NoError(t, err)
	rec = doHTMX(t, a, http.MethodGet, "/posts/more/?pages=3&cursor="+url.QueryEscape(second.NextPage))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Terceiro post")
	assert.NotContains(t, rec.Body.String(), "Carregar mais posts")
}

func TestLoadMoreRejectsBadCursors(t *testing.T) {
	cms := newFakeCMS(t, threePosts...)
	a := newTestApp(t, cms, newFakeClock())

	rec := do(t, a, http.MethodGet, "/posts/more/")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, a, http.MethodGet, "/posts/more/?cursor="+url.QueryEscape("https://attacker.example/api/v2/documents/search"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHomePagesFallbackLoadsEveryPage(t *testing.T) {
	cms := newFakeCMS(t, threePosts...)
	a := newTestApp(t, cms, newFakeClock())

	rec := do(t, a, http.MethodGet, "/?pages=5")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	for _, p := range threePosts {
		assert.Contains(t, body, p.Title)
	}
	assert.NotContains(t, body, "Carregar mais posts")
	assert.Less(t, strings.Index(body, threePosts[0].Title), strings.Index(body, threePosts[2].Title))
}

func TestHomePagesFallbackContinuesPastTheCap(t *testing.T) {
	var posts []fakePost
	for i := 0; i < 25; i++ {
		posts = append(posts, fakePost{UID: fmt.Sprintf("post-%02d", i), Title: fmt.Sprintf("Post %02d", i)})
	}
	cms := newFakeCMS(t, posts...)
	a := newTestApp(t, cms, newFakeClock())

	rec := do(t, a, http.MethodGet, "/?pages=21")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Post 00")
	assert.Contains(t, body, "Post 19")
	assert.NotContains(t, body, "Post 20")
	m := loadMoreHref.FindStringSubmatch(body)
	require.NotNil(t, m)
	next := html.UnescapeString(m[1])
	assert.True(t, strings.HasPrefix(next, "/posts/more/?cursor="), next)
	assert.Contains(t, next, "pages=21")

	// Following the link without htmx reaches the posts past the cap.
	for i := 20; i < 25; i++ {
		rec = do(t, a, http.MethodGet, next)
		require.Equal(t, http.StatusOK, rec.Code, next)
		body = rec.Body.String()
		assert.Contains(t, body, fmt.Sprintf("Post %02d", i))
		m = loadMoreHref.FindStringSubmatch(body)
		if i == 24 {
			assert.Nil(t, m)
			break
		}
		require.NotNil(t, m)
		next = html.UnescapeString(m[1])
	}
}

func TestPostPlaceholderThenGenerate(t *testing.T) {
	cms := newFakeCMS(t, threePosts...)
	a := newTestApp(t, cms, newFakeClock())

	rec := do(t, a, http.MethodGet, "/post/como-utilizar-hooks/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Carregando...")
	assert.Contains(t, rec.Body.String(), `hx-post="/post/como-utilizar-hooks/generate/"`)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = doHTMX(t, a, http.MethodPost, "/post/como-utilizar-hooks/generate/")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("HX-Refresh"))

	rec = do(t, a, http.MethodGet, "/post/como-utilizar-hooks/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<h1>Como utilizar Hooks</h1>")
	assert.Contains(t, body, "<h1>Introdução</h1>")
	assert.Contains(t, body, "<p>Lorem ipsum dolor sit amet</p>")
	assert.Contains(t, body, "1 min")
	assert.Contains(t, body, "25 mar 2021")
	assert.NotContains(t, body, "Carregando...")
}

func TestPlaceholderFormWithoutHtmxRedirectsToPost(t *testing.T) {
	cms := newFakeCMS(t, threePosts...)
	a := newTestApp(t, cms, newFakeClock())

	rec := do(t, a, http.MethodPost, "/post/criando-um-app-cra/generate/")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/post/criando-um-app-cra/", rec.Header().Get(echo.HeaderLocation))
	assert.Contains(t, do(t, a, http.MethodGet, "/post/criando-um-app-cra/").Body.String(), "<h1>Criando um app CRA do zero</h1>")

	rec = do(t, a, http.MethodPost, "/post/nao-existe/generate/")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, http.StatusNotFound, do(t, a, http.MethodGet, "/post/nao-existe/").Code)
}

func TestUnknownPostIsNotFound(t *testing.T) {
	cms := newFakeCMS(t, threePosts...)
	a := newTestApp(t, cms, newFakeClock())

	rec := doHTMX(t, a, http.MethodPost, "/post/nao-existe/generate/")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("HX-Refresh"))

	rec = do(t, a, http.MethodGet, "/post/nao-existe/")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Página não encontrada")
}

func TestNotFoundIsCachedOnlyBriefly(t *testing.T) {
	cms := newFakeCMS(t, threePosts...)
	clock := newFakeClock()
	a := newTestApp(t, cms, clock)

	require.Equal(t, http.StatusNotFound, doHTMX(t, a, http.MethodPost, "/post/novo-post/generate/").Code)

	for _, target := range []string{"/post/novo-post/", "/nada/"} {
		rec := do(t, a, http.MethodGet, target)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Equal(t, "public, max-age=0, s-maxage=60", rec.Header().Get("Cache-Control"), target)
	}

	// Published after the miss: reachable once the miss is forgotten.
	cms.setPosts(append(threePosts, fakePost{UID: "novo-post", Title: "Novo post"})...)
	clock.Advance(missingTTL)
	rec := do(t, a, http.MethodGet, "/post/novo-post/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Carregando...")
	require.Equal(t, http.StatusNoContent, doHTMX(t, a, http.MethodPost, "/post/novo-post/generate/").Code)
	assert.Contains(t, do(t, a, http.MethodGet, "/post/novo-post/").Body.String(), "<h1>Novo post</h1>")
}

func TestRemovedPostIsEvicted(t *testing.T) {
	cms := newFakeCMS(t, threePosts...)
	clock := newFakeClock()
	a := newTestApp(t, cms, clock)

	require.Equal(t, http.StatusNoContent, doHTMX(t, a, http.MethodPost, "/post/terceiro-post/generate/").Code)
	cms.setPosts(threePosts[:2]...)
	clock.Advance(2 * time.Hour)

	// The stale page is served once while the regeneration finds the post gone.
	rec := do(t, a, http.MethodGet, "/post/terceiro-post/")
	assert.Equal(t, http.StatusOK, rec.Code)
	a.Cache.Wait()

	rec = do(t, a, http.MethodGet, "/post/terceiro-post/")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStalePageIsServedWhileRegenerating(t *testing.T) {
	cms := newFakeCMS(t, threePosts...)
	clock := newFakeClock()
	a := newTestApp(t, cms, clock)

	require.Equal(t, http.StatusOK, do(t, a, http.MethodGet, "/").Code)

	renamed := append([]fakePost(nil), threePosts...)
	renamed[0].Title = "Hooks revisitados"
	cms.setPosts(renamed...)

	clock.Advance(30 * time.Minute)
	assert.Contains(t, do(t, a, http.MethodGet, "/").Body.String(), "Como utilizar Hooks", "fresh page is not regenerated")

	clock.Advance(time.Hour)
	assert.Contains(t, do(t, a, http.MethodGet, "/").Body.String(), "Como utilizar Hooks", "stale page is served first")
	a.Cache.Wait()
	assert.Contains(t, do(t, a, http.MethodGet, "/").Body.String(), "Hooks revisitados")
}

func TestFailedRegenerationKeepsLastGoodPage(t *testing.T) {
	cms := newFakeCMS(t, threePosts...)
	clock := newFakeClock()
	a := newTestApp(t, cms, clock)

	require.Equal(t, http.StatusOK, do(t, a, http.MethodGet, "/").Code)
	cms.failing.Store(true)
	clock.Advance(2 * time.Hour)

	rec := do(t, a, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	a.Cache.Wait()

	rec = do(t, a, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Como utilizar Hooks")
}

func TestCMSDownWithoutCachedPage(t *testing.T) {
	cms := newFakeCMS(t, threePosts...)
	cms.failing.Store(true)
	a := newTestApp(t, cms, newFakeClock())

	for _, target := range []string{"/", "/feed.xml", "/sitemap.xml", "/?pages=2"} {
		rec := do(t, a, http.MethodGet, target)
		assert.Equal(t, http.StatusBadGateway, rec.Code, target)
		assert.Contains(t, rec.Body.String(), "Algo deu errado", target)
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"), target)
	}

	rec := doHTMX(t, a, http.MethodPost, "/post/como-utilizar-hooks/generate/")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestFeedAndSitemapListEveryPost(t *testing.T) {
	cms := newFakeCMS(t, threePosts...)
	a := newTestApp(t, cms, newFakeClock())

	rec := do(t, a, http.MethodGet, "/feed.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, mimeRSS, rec.Header().Get("Content-Type"))
	assert.Equal(t, 3, strings.Count(rec.Body.String(), "<item>"))
	assert.Contains(t, rec.Body.String(), "<link>https://example.com/post/terceiro-post/</link>")

	rec = do(t, a, http.MethodGet, "/sitemap.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, strings.Count(rec.Body.String(), "<url>"))
	assert.Contains(t, rec.Body.String(), "<lastmod>2021-03-26</lastmod>")
}

func TestRobotsHealthAndMetrics(t *testing.T) {
	cms := newFakeCMS(t, threePosts...)
	a := newTestApp(t, cms, newFakeClock())

	rec := do(t, a, http.MethodGet, "/robots.txt")
	assert.Contains(t, rec.Body.String(), "Sitemap: https://example.com/sitemap.xml")

	assert.Equal(t, "ok", do(t, a, http.MethodGet, "/healthz").Body.String())

	require.Equal(t, http.StatusOK, do(t, a, http.MethodGet, "/").Code)
	rec = do(t, a, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `spacetraveling_page_generations_total{kind="home",result="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "spacetraveling_cms_requests_total")
	assert.Contains(t, rec.Body.String(), "spacetraveling_cached_pages 1")
}

func TestPublicAssetsAreServed(t *testing.T) {
	cms := newFakeCMS(t)
	a := newTestApp(t, cms, newFakeClock())
	require.NoError(t, os.WriteFile(filepath.Join(a.Config.StaticDir, "style.css"), []byte("body{}"), 0o644))

	rec := do(t, a, http.MethodGet, "/public/logo.svg")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<svg")
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")

	rec = do(t, a, http.MethodGet, "/public/style.css")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body{}", rec.Body.String())
}

func TestExportWritesStaticSite(t *testing.T) {
	cms := newFakeCMS(t, threePosts...)
	a := newTestApp(t, cms, newFakeClock())
	dir := t.TempDir()

	require.NoError(t, a.Export(context.Background(), dir))

	index, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	for _, p := range threePosts {
		assert.Contains(t, string(index), p.Title)
		assert.FileExists(t, filepath.Join(dir, "post", p.UID, "index.html"))
	}
	assert.NotContains(t, string(index), "Carregar mais posts")
	assert.FileExists(t, filepath.Join(dir, "feed.xml"))
	assert.FileExists(t, filepath.Join(dir, "sitemap.xml"))
	assert.FileExists(t, filepath.Join(dir, "public", "logo.svg"))
}

func TestPrebuildGeneratesEveryPost(t *testing.T) {
	cms := newFakeCMS(t, threePosts...)
	a := newTestApp(t, cms, newFakeClock())

	require.NoError(t, a.Prebuild(context.Background()))
	for _, p := range threePosts {
		_, ok := a.Cache.Peek(postRoute(p.UID))
		assert.True(t, ok, p.UID)
	}
}
