package spacetraveling

import (
	"net/http"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// Render writes a templ component as an HTTP 200 HTML response.
func Render(c echo.Context, cmp templ.Component) error {
	return RenderStatus(c, http.StatusOK, cmp)
}

// RenderStatus writes a templ component with a specific HTTP status code.
// The component is rendered before the header is written so a render
// error still reaches the error handler.
func RenderStatus(c echo.Context, code int, cmp templ.Component) error {
	body, err := renderComponent(c.Request().Context(), cmp)
	if err != nil {
		return err
	}
	return c.Blob(code, echo.MIMETextHTMLCharsetUTF8, body)
}

// servePage writes a generated page with its generation time.
func servePage(c echo.Context, p Page) error {
	c.Response().Header().Set(echo.HeaderLastModified, p.GeneratedAt.UTC().Format(http.TimeFormat))
	return c.Blob(http.StatusOK, p.ContentType, p.Body)
}
