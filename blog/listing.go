package blog

import (
	"context"
	"errors"
)

// ErrExhausted is returned by LoadMore when there is no next page.
var ErrExhausted = errors.New("blog: no more posts")

// PageFetcher fetches the page a cursor points at.
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor string) (PostsPage, error)
}

// Listing is the state of the listing view: the posts shown so far and
// the cursor of the next page. It is only changed by LoadMore and is not
// safe for concurrent use.
type Listing struct {
	posts []PostSummary
	next  string
}

// NewListing starts a listing from its first page.
func NewListing(first PostsPage) *Listing {
	posts := make([]PostSummary, len(first.Results))
	copy(posts, first.Results)
	return &Listing{posts: posts, next: first.NextPage}
}

// Posts returns a copy of the posts loaded so far, in order.
func (l *Listing) Posts() []PostSummary {
	out := make([]PostSummary, len(l.posts))
	copy(out, l.posts)
	return out
}

// Next returns the current cursor, "" once exhausted.
func (l *Listing) Next() string {
	return l.next
}

// HasMore reports whether a "load more" trigger should be offered.
func (l *Listing) HasMore() bool {
	return l.next != ""
}

// LoadMore fetches the page at the cursor, appends its posts after the
// existing ones and replaces the cursor. It returns the newly appended
// posts. On any error the listing is left untouched.
func (l *Listing) LoadMore(ctx context.Context, f PageFetcher) ([]PostSummary, error) {
	if !l.HasMore() {
		return nil, ErrExhausted
	}
	page, err := f.FetchPage(ctx, l.next)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.posts = append(l.posts, page.Results...)
	l.next = page.NextPage
	return page.Results, nil
}
