// Package components renders the HTML pages of the web UI.
package components

import (
	"embed"
	"html/template"

	"github.com/a-h/templ"
	"github.com/cloradar/cloradar/cmd/web/components/types"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("pages").Funcs(TemplateFuncs()).ParseFS(templateFS, "templates/*.html"))

// SearchPage renders the search page.
func SearchPage(data types.SearchPage) templ.Component {
	return templ.FromGoHTML(templates.Lookup("search"), data)
}
