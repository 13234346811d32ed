package views

import (
	"encoding/json"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/eringen/spacetraveling/blog"
)

// BuildURL joins path segments onto a base URL, ensuring a trailing slash.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if len(pathSegments) > 0 && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// PostURL returns the canonical URL of a post.
func PostURL(site Site, uid string) string {
	return BuildURL(site.URL, "post", uid)
}

// MoreURL returns the load-more endpoint for a cursor. shown is the number
// of listing pages on screen once the batch is inserted.
func MoreURL(cursor string, shown int) string {
	return "/posts/more/?cursor=" + url.QueryEscape(cursor) + "&pages=" + strconv.Itoa(shown)
}

// ListingURL returns the home page showing the first pages listing pages.
func ListingURL(pages int) string {
	if pages <= 1 {
		return "/"
	}
	return "/?pages=" + strconv.Itoa(pages)
}

// WebsiteJsonLD produces a Schema.org WebSite JSON-LD block.
func WebsiteJsonLD(site Site) string {
	data := map[string]interface{}{
		"@context": "https://schema.org",
		"@type":    "WebSite",
		"name":     site.Name,
		"url":      BuildURL(site.URL),
	}
	if site.Description != "" {
		data["description"] = site.Description
	}
	if site.Author != "" {
		data["author"] = map[string]string{
			"@type": "Person",
			"name":  site.Author,
		}
	}
	return marshalJsonLD(data)
}

// BlogPostingJsonLD produces a Schema.org BlogPosting JSON-LD block for a post.
func BlogPostingJsonLD(site Site, post blog.PostDetail, image string) string {
	postURL := PostURL(site, post.UID)
	data := map[string]interface{}{
		"@context": "https://schema.org",
		"@type":    "BlogPosting",
		"headline": post.Title,
		"url":      postURL,
		"publisher": map[string]string{
			"@type": "Organization",
			"name":  site.Name,
		},
		"mainEntityOfPage": map[string]string{
			"@type": "WebPage",
			"@id":   postURL,
		},
	}
	if post.Subtitle != "" {
		data["description"] = post.Subtitle
	}
	if post.FirstPublicationDate != nil {
		data["datePublished"] = post.FirstPublicationDate.UTC().Format(time.RFC3339)
	}
	if post.LastPublicationDate != nil {
		data["dateModified"] = post.LastPublicationDate.UTC().Format(time.RFC3339)
	}
	if image != "" {
		data["image"] = image
	}
	if post.Author != "" {
		data["author"] = map[string]string{
			"@type": "Person",
			"name":  post.Author,
		}
	}
	return marshalJsonLD(data)
}

func marshalJsonLD(data map[string]interface{}) string {
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	// json.Marshal escapes <, > and & so the block cannot close its <script>.
	return string(b)
}
