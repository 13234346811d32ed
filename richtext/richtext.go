// Package richtext renders Prismic structured text as plain text, HTML or
// a templ component.
package richtext

import (
	"bytes"
	"context"
	"html"
	"io"
	"net/url"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/a-h/templ"
)

// RichText is an ordered list of blocks.
type RichText []Block

// Block is one structured-text node: a paragraph, heading, list item,
// preformatted block, image or embed.
type Block struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Spans  []Span `json:"spans"`
	URL    string `json:"url,omitempty"`
	Alt    string `json:"alt,omitempty"`
	Oembed *Embed `json:"oembed,omitempty"`
}

// Embed carries the oEmbed payload of an embed block.
type Embed struct {
	EmbedURL string `json:"embed_url"`
	HTML     string `json:"html"`
}

// Span marks inline formatting. Start and End are UTF-16 offsets into
// the block text, as produced by the CMS editor.
type Span struct {
	Start int       `json:"start"`
	End   int       `json:"end"`
	Type  string    `json:"type"`
	Data  *SpanData `json:"data,omitempty"`
}

// SpanData holds hyperlink targets and label names.
type SpanData struct {
	URL    string `json:"url,omitempty"`
	Target string `json:"target,omitempty"`
	Label  string `json:"label,omitempty"`
}

// AsText flattens rt to plain text, joining the text of each block with
// sep. Blocks without text (images, embeds) are skipped.
func AsText(rt RichText, sep string) string {
	parts := make([]string, 0, len(rt))
	for _, b := range rt {
		if b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, sep)
}

// Component returns a templ.Component that renders rt as HTML.
func Component(rt RichText) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, AsHTML(rt))
		return err
	})
}

// AsHTML renders rt as an HTML string.
func AsHTML(rt RichText) string {
	var buf bytes.Buffer
	renderHTML(&buf, rt)
	return buf.String()
}

// renderHTML writes the HTML representation of rt to buf. Consecutive
// list items are grouped into a single <ul> or <ol>.
func renderHTML(buf *bytes.Buffer, rt RichText) {
	openList := ""
	flushList := func() {
		if openList != "" {
			buf.WriteString("</" + openList + ">")
			openList = ""
		}
	}

	for _, b := range rt {
		switch b.Type {
		case "list-item", "o-list-item":
			tag := "ul"
			if b.Type == "o-list-item" {
				tag = "ol"
			}
			if openList != tag {
				flushList()
				buf.WriteString("<" + tag + ">")
				openList = tag
			}
			buf.WriteString("<li>")
			buf.WriteString(FormatSpans(b.Text, b.Spans))
			buf.WriteString("</li>")
			continue
		}

		flushList()
		switch b.Type {
		case "heading1", "heading2", "heading3", "heading4", "heading5", "heading6":
			tag := "h" + strings.TrimPrefix(b.Type, "heading")
			buf.WriteString("<" + tag + ">")
			buf.WriteString(FormatSpans(b.Text, b.Spans))
			buf.WriteString("</" + tag + ">")
		case "paragraph":
			buf.WriteString("<p>")
			buf.WriteString(FormatSpans(b.Text, b.Spans))
			buf.WriteString("</p>")
		case "preformatted":
			buf.WriteString("<pre>")
			buf.WriteString(html.EscapeString(b.Text))
			buf.WriteString("</pre>")
		case "image":
			src := SafeURL(b.URL)
			if src == "" {
				continue
			}
			buf.WriteString(`<p class="block-img"><img src="` + src + `" alt="` + html.EscapeString(b.Alt) + `" loading="lazy" decoding="async"/></p>`)
		case "embed":
			if b.Oembed == nil {
				continue
			}
			buf.WriteString(`<div data-oembed="` + SafeURL(b.Oembed.EmbedURL) + `">`)
			buf.WriteString(b.Oembed.HTML)
			buf.WriteString("</div>")
		}
	}
	flushList()
}

// FormatSpans escapes text and applies strong, em, hyperlink and label
// spans. Overlapping spans are split at every boundary so the output is
// always well nested. Newlines become <br />.
func FormatSpans(text string, spans []Span) string {
	if len(spans) == 0 {
		return escapeText(text)
	}
	units := utf16.Encode([]rune(text))
	n := len(units)

	active := make([]Span, 0, len(spans))
	cuts := []int{0, n}
	for _, s := range spans {
		s.Start = clamp(s.Start, 0, n)
		s.End = clamp(s.End, 0, n)
		if s.Start >= s.End || openTag(s) == "" {
			continue
		}
		active = append(active, s)
		cuts = append(cuts, s.Start, s.End)
	}
	// Outer spans first: earlier start, then longer.
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Start != active[j].Start {
			return active[i].Start < active[j].Start
		}
		return active[i].End > active[j].End
	})
	sort.Ints(cuts)

	var b strings.Builder
	for i := 0; i+1 < len(cuts); i++ {
		lo, hi := cuts[i], cuts[i+1]
		if lo == hi {
			continue
		}
		var covering []Span
		for _, s := range active {
			if s.Start <= lo && s.End >= hi {
				covering = append(covering, s)
			}
		}
		for _, s := range covering {
			b.WriteString(openTag(s))
		}
		b.WriteString(escapeText(string(utf16.Decode(units[lo:hi]))))
		for j := len(covering) - 1; j >= 0; j-- {
			b.WriteString(closeTag(covering[j]))
		}
	}
	return b.String()
}

func openTag(s Span) string {
	switch s.Type {
	case "strong":
		return "<strong>"
	case "em":
		return "<em>"
	case "label":
		if s.Data == nil || s.Data.Label == "" {
			return ""
		}
		return `<span class="` + html.EscapeString(s.Data.Label) + `">`
	case "hyperlink":
		if s.Data == nil {
			return ""
		}
		href := SafeURL(s.Data.URL)
		if href == "" {
			return ""
		}
		if s.Data.Target == "_blank" {
			return `<a href="` + href + `" target="_blank" rel="noopener noreferrer">`
		}
		return `<a href="` + href + `">`
	}
	return ""
}

func closeTag(s Span) string {
	switch s.Type {
	case "strong":
		return "</strong>"
	case "em":
		return "</em>"
	case "label":
		return "</span>"
	case "hyperlink":
		return "</a>"
	}
	return ""
}

func escapeText(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br />")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SafeURL validates and escapes a URL for use in HTML attributes. Only
// relative, http(s), mailto and tel URLs are allowed.
func SafeURL(raw string) string {
	val := strings.TrimSpace(raw)
	if val == "" {
		return ""
	}
	if strings.HasPrefix(val, "/") || strings.HasPrefix(val, "#") {
		return html.EscapeString(val)
	}
	parsed, err := url.Parse(val)
	if err != nil || parsed.Scheme == "" {
		return ""
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https", "mailto", "tel":
		return html.EscapeString(val)
	default:
		return ""
	}
}
