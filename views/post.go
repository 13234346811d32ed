package views

import (
	"bytes"
	"context"

	"github.com/a-h/templ"

	"github.com/eringen/spacetraveling/blog"
	"github.com/eringen/spacetraveling/richtext"
)

// PostView is the detail page model.
type PostView struct {
	Post        blog.PostDetail
	BannerURL   string // optimised local copy, or the CMS URL
	ReadingTime string
}

// NewPostView derives the banner and reading-time label of post.
func NewPostView(post blog.PostDetail, bannerURL string) PostView {
	return PostView{
		Post:        post,
		BannerURL:   bannerURL,
		ReadingTime: blog.ReadingLabel(blog.ReadingMinutes(post.Content)),
	}
}

// Post renders the detail page.
func Post(site Site, v PostView) templ.Component {
	body := component(func(ctx context.Context, buf *bytes.Buffer) error {
		header(buf, site)
		if v.BannerURL != "" {
			alt := v.Post.Banner.Alt
			if alt == "" {
				alt = "banner"
			}
			buf.WriteString(`<img class="banner" src="` + esc(v.BannerURL) + `" alt="` + esc(alt) + `"/>`)
		}
		buf.WriteString(`<main class="container"><article class="post"><header>`)
		buf.WriteString("<h1>" + esc(v.Post.Title) + "</h1>")
		writePostInfo(buf, v.Post.FirstPublicationDate != nil, blog.FormatDate(v.Post.FirstPublicationDate), v.Post.Author, v.ReadingTime)
		buf.WriteString(`</header><section class="post-content">`)
		for _, s := range v.Post.Content {
			buf.WriteString("<div>")
			buf.WriteString("<h1>" + esc(s.Heading) + "</h1>")
			buf.WriteString(`<div class="body">`)
			if err := richtext.Component(s.Body).Render(ctx, buf); err != nil {
				return err
			}
			buf.WriteString("</div></div>")
		}
		buf.WriteString("</section></article></main>")
		return nil
	})

	image := v.BannerURL
	if image != "" && image[0] == '/' {
		image = site.URL + image
	}
	meta := PageMeta{
		Title:       v.Post.Title,
		Description: v.Post.Subtitle,
		URL:         PostURL(site, v.Post.UID),
		OGType:      "article",
		Image:       image,
		JSONLD:      BlogPostingJsonLD(site, v.Post, image),
	}
	return Layout(site, meta, body)
}

// Loading is the placeholder served for posts that have not been
// generated yet. htmx posts to generateURL as soon as the page loads and
// the server answers with a refresh; without htmx the reader submits the
// form and is redirected to the post.
func Loading(site Site, generateURL string) templ.Component {
	body := component(func(ctx context.Context, buf *bytes.Buffer) error {
		header(buf, site)
		buf.WriteString(`<main class="container"><h1>Carregando...</h1>`)
		buf.WriteString(`<form method="post" action="` + esc(generateURL) + `" hx-post="` + esc(generateURL) + `" hx-trigger="load" hx-swap="none">`)
		buf.WriteString(`<noscript><button type="submit">Abrir post</button></noscript></form></main>`)
		return nil
	})
	return Layout(site, PageMeta{Title: "Carregando", NoIndex: true}, body)
}
