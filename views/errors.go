package views

import (
	"bytes"
	"context"

	"github.com/a-h/templ"
)

// NotFound renders the 404 page.
func NotFound(site Site) templ.Component {
	return errorPage(site, "Página não encontrada", "O post que você procura não existe.")
}

// ServerError renders the 500 page.
func ServerError(site Site) templ.Component {
	return errorPage(site, "Erro", "Algo deu errado. Tente novamente mais tarde.")
}

func errorPage(site Site, title, message string) templ.Component {
	body := component(func(ctx context.Context, buf *bytes.Buffer) error {
		header(buf, site)
		buf.WriteString(`<main class="container"><h1>` + esc(title) + `</h1><p>` + esc(message) + `</p>`)
		buf.WriteString(`<a href="/">Voltar para o início</a></main>`)
		return nil
	})
	return Layout(site, PageMeta{Title: title, NoIndex: true}, body)
}
