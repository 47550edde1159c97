// Package views renders the server-side HTML pages from templates embedded
// in the binary.
package views

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/aanand-mishra/student-records/internal/http/flash"
	"github.com/aanand-mishra/student-records/internal/types"
)

//go:embed templates/*.html
var files embed.FS

// Page names accepted by Render.
const (
	Index         = "index.html"
	Update        = "update.html"
	ConfirmDelete = "delete.html"
	Hash          = "hash.html"
	Forbidden     = "403.html"
	NotFound      = "404.html"
	InternalError = "500.html"
)

var pages = []string{Index, Update, ConfirmDelete, Hash, Forbidden, NotFound, InternalError}

// Form is a student form being displayed, possibly after a failed submit.
type Form struct {
	Values types.StudentInput
	Errors map[string]string
}

// Page is the data every template receives. Handlers fill in only what the
// page needs.
type Page struct {
	Title     string
	CSRFField template.HTML
	Notices   []flash.Notice
	Students  []types.Student
	Student   types.Student
	Form      Form

	Plaintext string
	Hashed    string
}

// Views holds one parsed template set per page, each combined with the
// shared layout.
type Views struct {
	pages map[string]*template.Template
}

// New parses every embedded page.
func New() (*Views, error) {
	v := &Views{pages: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		t, err := template.ParseFS(files, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("views: parse %s: %w", name, err)
		}
		v.pages[name] = t
	}
	return v, nil
}

// MustNew is New for package initialization and tests.
func MustNew() *Views {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Render executes page into a buffer and only then writes it, so a template
// error never leaves a half-written response.
func (v *Views) Render(w http.ResponseWriter, status int, page string, data Page) error {
	t, ok := v.pages[page]
	if !ok {
		return fmt.Errorf("views: unknown page %q", page)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("views: render %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
