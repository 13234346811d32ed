package views

import (
	"bytes"
	"context"

	"github.com/a-h/templ"

	"github.com/eringen/spacetraveling/blog"
)

// MaxListingPages is the most listing pages the home page renders at once.
// Past it the load-more link walks the cursor pages instead.
const MaxListingPages = 20

// Home renders the listing page. shown is the number of listing pages
// page holds, 1 for the plain home page.
func Home(site Site, page blog.PostsPage, shown int) templ.Component {
	body := component(func(ctx context.Context, buf *bytes.Buffer) error {
		buf.WriteString(`<main class="container"><img src="/public/logo.svg" alt="logo"/>`)
		buf.WriteString(`<div class="posts">`)
		writePostList(buf, page.Results, page.NextPage, shown)
		buf.WriteString("</div></main>")
		return nil
	})
	meta := PageMeta{
		URL:     BuildURL(site.URL),
		Title:   "Posts",
		JSONLD:  WebsiteJsonLD(site),
		NoIndex: shown > 1,
	}
	return Layout(site, meta, body)
}

// More renders one batch of the listing as a page of its own, for
// browsers that follow the load-more link without htmx.
func More(site Site, page blog.PostsPage, shown int) templ.Component {
	body := component(func(ctx context.Context, buf *bytes.Buffer) error {
		buf.WriteString(`<main class="container"><a href="/"><img src="/public/logo.svg" alt="logo"/></a>`)
		buf.WriteString(`<div class="posts">`)
		writePostList(buf, page.Results, page.NextPage, shown)
		buf.WriteString("</div></main>")
		return nil
	})
	return Layout(site, PageMeta{Title: "Posts", NoIndex: true}, body)
}

// PostList renders a batch of posts followed by the load-more trigger,
// which is only present while next is non-empty. htmx swaps the clicked
// trigger for this fragment. shown counts the listing pages on screen
// once the fragment is inserted.
func PostList(posts []blog.PostSummary, next string, shown int) templ.Component {
	return component(func(ctx context.Context, buf *bytes.Buffer) error {
		writePostList(buf, posts, next, shown)
		return nil
	})
}

func writePostList(buf *bytes.Buffer, posts []blog.PostSummary, next string, shown int) {
	for _, p := range posts {
		buf.WriteString(`<div class="post">`)
		buf.WriteString(`<a href="` + esc(p.Link()) + `"><h1>` + esc(p.Title) + `</h1></a>`)
		buf.WriteString("<p>" + esc(p.Subtitle) + "</p>")
		writePostInfo(buf, p.FirstPublicationDate != nil, blog.FormatDate(p.FirstPublicationDate), p.Author, "")
		buf.WriteString("</div>")
	}
	if next != "" {
		more := MoreURL(next, shown+1)
		// Without htmx the link reloads the listing with one more page, or
		// opens the next batch on its own once the listing is at its cap.
		href := more
		if shown+1 <= MaxListingPages {
			href = ListingURL(shown + 1)
		}
		buf.WriteString(`<a class="load-more" href="` + esc(href) + `" hx-get="` + esc(more) + `" hx-swap="outerHTML" hx-sync="this:drop">Carregar mais posts</a>`)
	}
}

func writePostInfo(buf *bytes.Buffer, hasDate bool, date, author, readingTime string) {
	buf.WriteString(`<div class="post-info">`)
	if hasDate {
		buf.WriteString(`<span class="calendar"><time>` + esc(date) + `</time></span>`)
	}
	if author != "" {
		buf.WriteString(`<span class="user">` + esc(author) + `</span>`)
	}
	if readingTime != "" {
		buf.WriteString(`<span class="clock">` + esc(readingTime) + `</span>`)
	}
	buf.WriteString("</div>")
}
