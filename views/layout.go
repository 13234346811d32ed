// Package views renders the site pages as templ components.
package views

import (
	"bytes"
	"context"
	"html"
	"io"

	"github.com/a-h/templ"
)

var esc = html.EscapeString

// component adapts a buffer-writing function to templ.Component. The
// output is only written once fn succeeds, so a failed render never
// leaves half a page behind.
func component(fn func(ctx context.Context, buf *bytes.Buffer) error) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var buf bytes.Buffer
		if err := fn(ctx, &buf); err != nil {
			return err
		}
		_, err := w.Write(buf.Bytes())
		return err
	})
}

// Layout wraps body in the HTML document shell.
func Layout(site Site, meta PageMeta, body templ.Component) templ.Component {
	return component(func(ctx context.Context, buf *bytes.Buffer) error {
		title := site.Name
		if meta.Title != "" {
			title = meta.Title + " | " + site.Name
		}
		description := meta.Description
		if description == "" {
			description = site.Description
		}
		ogType := meta.OGType
		if ogType == "" {
			ogType = "website"
		}

		buf.WriteString(`<!DOCTYPE html><html lang="pt-BR"><head><meta charset="utf-8"/>`)
		buf.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1"/>`)
		buf.WriteString("<title>" + esc(title) + "</title>")
		if description != "" {
			buf.WriteString(`<meta name="description" content="` + esc(description) + `"/>`)
		}
		if meta.NoIndex {
			buf.WriteString(`<meta name="robots" content="noindex"/>`)
		}
		if meta.URL != "" {
			buf.WriteString(`<link rel="canonical" href="` + esc(meta.URL) + `"/>`)
			buf.WriteString(`<meta property="og:url" content="` + esc(meta.URL) + `"/>`)
		}
		buf.WriteString(`<meta property="og:title" content="` + esc(title) + `"/>`)
		buf.WriteString(`<meta property="og:type" content="` + esc(ogType) + `"/>`)
		buf.WriteString(`<meta property="og:site_name" content="` + esc(site.Name) + `"/>`)
		if meta.Image != "" {
			buf.WriteString(`<meta property="og:image" content="` + esc(meta.Image) + `"/>`)
		}
		buf.WriteString(`<link rel="alternate" type="application/rss+xml" title="` + esc(site.Name) + `" href="/feed.xml"/>`)
		if meta.JSONLD != "" {
			buf.WriteString(`<script type="application/ld+json">` + meta.JSONLD + `</script>`)
		}
		buf.WriteString(`<script src="/public/htmx.min.js" defer></script>`)
		buf.WriteString("</head><body>")
		if err := body.Render(ctx, buf); err != nil {
			return err
		}
		buf.WriteString("</body></html>")
		return nil
	})
}

// header is the logo bar shown on post pages.
func header(buf *bytes.Buffer, site Site) {
	buf.WriteString(`<header class="header"><a href="/"><img src="/public/logo.svg" alt="` + esc(site.Name) + `"/></a></header>`)
}
