// Package blog holds the post view models, the mapping from CMS documents
// into them, the paginated listing flow, reading-time estimation and date
// formatting.
package blog

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/eringen/spacetraveling/richtext"
)

// ErrNotFound is returned when a post does not exist, or was skipped
// because it is malformed.
var ErrNotFound = errors.New("blog: post not found")

// PostSummary is one entry of the listing page.
type PostSummary struct {
	UID                  string
	FirstPublicationDate *time.Time
	Title                string
	Subtitle             string
	Author               string
}

// Link returns the detail page path of the post.
func (p PostSummary) Link() string {
	return PostPath(p.UID)
}

// PostPath returns the detail route of uid.
func PostPath(uid string) string {
	return "/post/" + url.PathEscape(uid) + "/"
}

// Banner is the post header image.
type Banner struct {
	URL string
	Alt string
}

// Section is one heading plus its rich-text body.
type Section struct {
	Heading string
	Body    richtext.RichText
}

// PostDetail is everything the detail page renders.
type PostDetail struct {
	UID                  string
	FirstPublicationDate *time.Time
	LastPublicationDate  *time.Time
	Title                string
	Subtitle             string
	Banner               Banner
	Author               string
	Content              []Section
}

// Summary returns the listing view of the post.
func (p PostDetail) Summary() PostSummary {
	return PostSummary{
		UID:                  p.UID,
		FirstPublicationDate: p.FirstPublicationDate,
		Title:                p.Title,
		Subtitle:             p.Subtitle,
		Author:               p.Author,
	}
}

// PostsPage is one page of summaries plus the cursor of the next one.
// An empty NextPage means the result set is exhausted.
type PostsPage struct {
	Results  []PostSummary
	NextPage string
}

// Policy decides what happens to documents that fail validation.
type Policy int

const (
	// PolicyFail aborts the whole query with a *MalformedError.
	PolicyFail Policy = iota
	// PolicySkip drops the document and keeps going.
	PolicySkip
)

// ParsePolicy parses "fail" or "skip".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "fail":
		return PolicyFail, nil
	case "skip":
		return PolicySkip, nil
	}
	return PolicyFail, fmt.Errorf("blog: unknown malformed-document policy %q", s)
}

func (p Policy) String() string {
	if p == PolicySkip {
		return "skip"
	}
	return "fail"
}
