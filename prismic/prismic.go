// Package prismic is a small client for the Prismic REST API v2.
//
// It resolves the master ref, runs predicate queries against the
// documents/search endpoint and follows the opaque next_page links
// returned by paginated responses.
package prismic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned by GetByUID when no document matches.
	ErrNotFound = errors.New("prismic: document not found")
	// ErrForeignCursor is returned by FetchPage when the cursor does not
	// point at the configured API endpoint.
	ErrForeignCursor = errors.New("prismic: cursor does not belong to the api endpoint")
	// ErrNoMasterRef is returned when the API root lists no master ref.
	ErrNoMasterRef = errors.New("prismic: api has no master ref")
)

// APIError is returned for non-2xx responses.
type APIError struct {
	Status int
	URL    string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("prismic: %s returned %d: %s", e.URL, e.Status, e.Body)
}

// Config configures a Client.
type Config struct {
	Endpoint    string        // e.g. https://repo.cdn.prismic.io/api/v2
	AccessToken string        // optional
	HTTPClient  *http.Client  // default: 10s timeout
	RefTTL      time.Duration // how long the master ref is reused (default 1m)
}

// EndpointForRepository returns the CDN API endpoint of a repository name.
func EndpointForRepository(repo string) string {
	return "https://" + repo + ".cdn.prismic.io/api/v2"
}

// Client queries a single Prismic repository. It is safe for concurrent use.
type Client struct {
	endpoint *url.URL
	token    string
	http     *http.Client
	refTTL   time.Duration

	mu      sync.Mutex
	ref     string
	refTime time.Time
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("prismic: endpoint is required")
	}
	u, err := url.Parse(strings.TrimSuffix(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("prismic: parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("prismic: unsupported endpoint scheme %q", u.Scheme)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	ttl := cfg.RefTTL
	if ttl == 0 {
		ttl = time.Minute
	}
	return &Client{endpoint: u, token: cfg.AccessToken, http: hc, refTTL: ttl}, nil
}

// Endpoint returns the API endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

// Ref returns the current master ref, fetching the API root when the
// cached one is older than the configured TTL.
func (c *Client) Ref(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.ref != "" && time.Since(c.refTime) < c.refTTL {
		ref := c.ref
		c.mu.Unlock()
		return ref, nil
	}
	c.mu.Unlock()

	u := *c.endpoint
	q := url.Values{}
	if c.token != "" {
		q.Set("access_token", c.token)
	}
	u.RawQuery = q.Encode()

	var api apiRoot
	if err := c.get(ctx, u.String(), &api); err != nil {
		return "", err
	}
	for _, r := range api.Refs {
		if r.IsMasterRef {
			c.mu.Lock()
			c.ref = r.Ref
			c.refTime = time.Now()
			c.mu.Unlock()
			return r.Ref, nil
		}
	}
	return "", ErrNoMasterRef
}

// QueryOptions are the optional search parameters.
type QueryOptions struct {
	Fetch     []string // field projection, e.g. "posts.title"
	PageSize  int
	Orderings []string // e.g. "document.first_publication_date desc"
}

// Query runs a predicate search against the master ref.
func (c *Client) Query(ctx context.Context, preds []Predicate, opts QueryOptions) (*Response, error) {
	ref, err := c.Ref(ctx)
	if err != nil {
		return nil, err
	}
	u := *c.endpoint
	u.Path = path.Join(u.Path, "documents", "search")

	q := url.Values{}
	q.Set("ref", ref)
	if len(preds) > 0 {
		q.Set("q", joinPredicates(preds))
	}
	if len(opts.Fetch) > 0 {
		q.Set("fetch", strings.Join(opts.Fetch, ","))
	}
	if opts.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(opts.PageSize))
	}
	if len(opts.Orderings) > 0 {
		q.Set("orderings", "["+strings.Join(opts.Orderings, ",")+"]")
	}
	if c.token != "" {
		q.Set("access_token", c.token)
	}
	u.RawQuery = q.Encode()

	var resp Response
	if err := c.get(ctx, u.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetByUID returns the document of the given custom type and uid.
func (c *Client) GetByUID(ctx context.Context, docType, uid string) (*Document, error) {
	resp, err := c.Query(ctx, []Predicate{At("my."+docType+".uid", uid)}, QueryOptions{PageSize: 1})
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, ErrNotFound
	}
	return &resp.Results[0], nil
}

// FetchPage performs a plain GET on a next_page cursor. The cursor must
// point at the same scheme and host as the endpoint; the access token is
// added back when the cursor was cleaned with CleanCursor.
func (c *Client) FetchPage(ctx context.Context, cursor string) (*Response, error) {
	u, err := url.Parse(cursor)
	if err != nil {
		return nil, fmt.Errorf("prismic: parse cursor: %w", err)
	}
	if u.Scheme != c.endpoint.Scheme || u.Host != c.endpoint.Host {
		return nil, ErrForeignCursor
	}
	if c.token != "" {
		q := u.Query()
		if q.Get("access_token") == "" {
			q.Set("access_token", c.token)
			u.RawQuery = q.Encode()
		}
	}
	var resp Response
	if err := c.get(ctx, u.String(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CleanCursor removes the access token from a next_page URL so it can be
// handed to browsers.
func CleanCursor(cursor string) string {
	u, err := url.Parse(cursor)
	if err != nil {
		return cursor
	}
	q := u.Query()
	if q.Get("access_token") == "" {
		return cursor
	}
	q.Del("access_token")
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("prismic: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("prismic: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, URL: redact(rawURL), Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("prismic: decode %s: %w", redact(rawURL), err)
	}
	return nil
}

func redact(rawURL string) string {
	return CleanCursor(rawURL)
}
