package spacetraveling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePost struct {
	UID      string
	Title    string
	Subtitle string
	Author   string
	Date     string // Prismic timestamp
	Body     string
}

// fakeCMS is a minimal Prismic repository: an API root plus a search
// endpoint that understands the type and uid predicates and paginates
// with next_page links.
type fakeCMS struct {
	srv *httptest.Server

	mu    sync.Mutex
	posts []fakePost

	searches atomic.Int32
	failing  atomic.Bool
}

var uidPredicate = regexp.MustCompile(`at\(my\.posts\.uid,"([^"]*)"\)`)

func newFakeCMS(t *testing.T, posts ...fakePost) *fakeCMS {
	t.Helper()
	f := &fakeCMS{posts: posts}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"refs":[{"id":"master","ref":"MASTER","isMasterRef":true}]}`))
	})
	mux.HandleFunc("/api/v2/documents/search", f.search)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCMS) endpoint() string {
	return f.srv.URL + "/api/v2"
}

func (f *fakeCMS) setPosts(posts ...fakePost) {
	f.mu.Lock()
	f.posts = posts
	f.mu.Unlock()
}

func (f *fakeCMS) search(w http.ResponseWriter, r *http.Request) {
	f.searches.Add(1)
	if f.failing.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	f.mu.Lock()
	posts := append([]fakePost(nil), f.posts...)
	f.mu.Unlock()

	q := r.URL.Query()
	if m := uidPredicate.FindStringSubmatch(q.Get("q")); m != nil {
		var results []any
		for _, p := range posts {
			if p.UID == m[1] {
				results = append(results, document(p))
			}
		}
		writeJSON(w, map[string]any{"page": 1, "next_page": nil, "results": orEmpty(results)})
		return
	}

	pageSize, _ := strconv.Atoi(q.Get("pageSize"))
	if pageSize <= 0 {
		pageSize = 20
	}
	page, _ := strconv.Atoi(q.Get("page"))
	if page <= 0 {
		page = 1
	}
	start := min((page-1)*pageSize, len(posts))
	end := min(start+pageSize, len(posts))
	var results []any
	for _, p := range posts[start:end] {
		results = append(results, document(p))
	}
	var next any
	if end < len(posts) {
		nq := r.URL.Query()
		nq.Set("page", strconv.Itoa(page+1))
		next = f.srv.URL + r.URL.Path + "?" + nq.Encode()
	}
	writeJSON(w, map[string]any{
		"page":               page,
		"results_per_page":   pageSize,
		"total_results_size": len(posts),
		"next_page":          next,
		"results":            orEmpty(results),
	})
}

func document(p fakePost) map[string]any {
	date := p.Date
	if date == "" {
		date = "2021-03-25T19:25:28+0000"
	}
	var body []any
	for _, para := range strings.Split(p.Body, "\n") {
		if para != "" {
			body = append(body, map[string]any{"type": "paragraph", "text": para, "spans": []any{}})
		}
	}
	return map[string]any{
		"id":                     "id-" + p.UID,
		"uid":                    p.UID,
		"type":                   "posts",
		"first_publication_date": date,
		"last_publication_date":  date,
		"data": map[string]any{
			"title":    p.Title,
			"subtitle": p.Subtitle,
			"author":   p.Author,
			"banner":   map[string]any{"url": ""},
			"content": []any{map[string]any{
				"heading": "Introdução",
				"body":    orEmpty(body),
			}},
		},
	}
}

func orEmpty(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var threePosts = []fakePost{
	{UID: "como-utilizar-hooks", Title: "Como utilizar Hooks", Subtitle: "Pensando em sincronização", Author: "Joseph Oliveira", Body: "Lorem ipsum dolor sit amet"},
	{UID: "criando-um-app-cra", Title: "Criando um app CRA do zero", Subtitle: "Tudo sobre como criar", Author: "Danilo Vieira", Date: "2021-03-26T12:00:00+0000"},
	{UID: "terceiro-post", Title: "Terceiro post", Subtitle: "Mais um", Author: "Ana"},
}

// newTestApp returns a set-up App backed by cms, keeping pages in memory.
func newTestApp(t *testing.T, cms *fakeCMS, clock *fakeClock, opts ...Option) *App {
	t.Helper()
	cfg := SiteConfig{
		Name:        "spacetraveling",
		URL:         "https://example.com",
		APIEndpoint: cms.endpoint(),
		StaticDir:   t.TempDir(),
		Revalidate:  time.Hour,
		PageSize:    1,
	}
	opts = append([]Option{WithoutStore(), WithHTTPClient(cms.srv.Client()), WithClock(clock.Now)}, opts...)
	a, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, a.Setup())
	t.Cleanup(func() {
		a.Cache.Wait()
		a.Close()
	})
	return a
}
