package blog

import (
	"context"
	"errors"
	"fmt"

	"github.com/eringen/spacetraveling/prismic"
)

// Querier is the part of the CMS client the Source needs.
// *prismic.Client implements it.
type Querier interface {
	Query(ctx context.Context, preds []prismic.Predicate, opts prismic.QueryOptions) (*prismic.Response, error)
	GetByUID(ctx context.Context, docType, uid string) (*prismic.Document, error)
	FetchPage(ctx context.Context, cursor string) (*prismic.Response, error)
}

// SourceConfig configures a Source.
type SourceConfig struct {
	DocumentType string   // custom type of posts (default "posts")
	PageSize     int      // listing page size (default 1)
	Orderings    []string // optional listing orderings
	Policy       Policy
	OnSkip       func(error) // called for documents dropped under PolicySkip
}

// Source runs the blog queries against the CMS and maps the results at
// the boundary: nothing outside this type sees raw documents.
type Source struct {
	q   Querier
	cfg SourceConfig
}

// NewSource returns a Source reading posts through q.
func NewSource(q Querier, cfg SourceConfig) *Source {
	if cfg.DocumentType == "" {
		cfg.DocumentType = "posts"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1
	}
	return &Source{q: q, cfg: cfg}
}

func (s *Source) typePredicate() []prismic.Predicate {
	return []prismic.Predicate{prismic.At("document.type", s.cfg.DocumentType)}
}

func (s *Source) summaryFields() []string {
	t := s.cfg.DocumentType
	return []string{t + ".title", t + ".subtitle", t + ".author"}
}

// Home returns the first listing page.
func (s *Source) Home(ctx context.Context) (PostsPage, error) {
	resp, err := s.q.Query(ctx, s.typePredicate(), prismic.QueryOptions{
		Fetch:     s.summaryFields(),
		PageSize:  s.cfg.PageSize,
		Orderings: s.cfg.Orderings,
	})
	if err != nil {
		return PostsPage{}, fmt.Errorf("blog: query listing: %w", err)
	}
	return s.mapPage(resp)
}

// FetchPage returns the listing page a cursor points at. It implements
// PageFetcher.
func (s *Source) FetchPage(ctx context.Context, cursor string) (PostsPage, error) {
	resp, err := s.q.FetchPage(ctx, cursor)
	if err != nil {
		return PostsPage{}, fmt.Errorf("blog: fetch page: %w", err)
	}
	return s.mapPage(resp)
}

func (s *Source) mapPage(resp *prismic.Response) (PostsPage, error) {
	posts, err := MapSummaries(resp.Results, s.cfg.Policy, s.cfg.OnSkip)
	if err != nil {
		return PostsPage{}, err
	}
	next := resp.Next()
	if next != "" {
		next = prismic.CleanCursor(next)
	}
	return PostsPage{Results: posts, NextPage: next}, nil
}

// Post returns the post with the given uid.
func (s *Source) Post(ctx context.Context, uid string) (PostDetail, error) {
	doc, err := s.q.GetByUID(ctx, s.cfg.DocumentType, uid)
	if err != nil {
		if errors.Is(err, prismic.ErrNotFound) {
			return PostDetail{}, ErrNotFound
		}
		return PostDetail{}, fmt.Errorf("blog: get post %q: %w", uid, err)
	}
	post, err := DetailFromDocument(*doc)
	if err != nil {
		if s.cfg.Policy == PolicySkip {
			if s.cfg.OnSkip != nil {
				s.cfg.OnSkip(err)
			}
			return PostDetail{}, ErrNotFound
		}
		return PostDetail{}, err
	}
	return post, nil
}

// maxPages bounds the walks over the whole result set.
const maxPages = 1000

// StaticPaths returns the uid of every post, for pre-generation.
func (s *Source) StaticPaths(ctx context.Context) ([]string, error) {
	var uids []string
	err := s.walk(ctx, []string{s.cfg.DocumentType + ".uid"}, func(resp *prismic.Response) error {
		for _, doc := range resp.Results {
			if doc.UID != "" {
				uids = append(uids, doc.UID)
			}
		}
		return nil
	})
	return uids, err
}

// AllPosts returns the summary of every post, for feeds and sitemaps.
func (s *Source) AllPosts(ctx context.Context) ([]PostSummary, error) {
	var posts []PostSummary
	err := s.walk(ctx, s.summaryFields(), func(resp *prismic.Response) error {
		page, err := MapSummaries(resp.Results, s.cfg.Policy, s.cfg.OnSkip)
		if err != nil {
			return err
		}
		posts = append(posts, page...)
		return nil
	})
	return posts, err
}

func (s *Source) walk(ctx context.Context, fetch []string, fn func(*prismic.Response) error) error {
	resp, err := s.q.Query(ctx, s.typePredicate(), prismic.QueryOptions{
		Fetch:     fetch,
		PageSize:  100,
		Orderings: s.cfg.Orderings,
	})
	if err != nil {
		return fmt.Errorf("blog: query all posts: %w", err)
	}
	for i := 0; ; i++ {
		if err := fn(resp); err != nil {
			return err
		}
		next := resp.Next()
		if next == "" {
			return nil
		}
		if i >= maxPages {
			return fmt.Errorf("blog: more than %d result pages", maxPages)
		}
		resp, err = s.q.FetchPage(ctx, next)
		if err != nil {
			return fmt.Errorf("blog: fetch page: %w", err)
		}
	}
}
