package console

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/schemawatch/collector"
	"github.com/hazyhaar/schemawatch/shield"
)

const timeLayout = time.RFC3339

func parsePages() (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"when": func(t time.Time) string { return t.Format(timeLayout) },
		"pretty": func(v any) (string, error) {
			data, err := json.MarshalIndent(v, "", "  ")
			return string(data), err
		},
	}
	pages := make(map[string]*template.Template)
	for _, name := range []string{"index", "operation", "document"} {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("console: parse %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

type pageData struct {
	Title  string
	Flash  *shield.FlashMessage
	Status collector.Status
	Specs  []*collector.OperationSpec
	Spec   *collector.OperationSpec
	Doc    template.HTML
}

// render executes the page into a buffer first so template errors produce
// a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, code int, page string, data pageData) {
	data.Flash = shield.GetFlash(r.Context())
	var buf bytes.Buffer
	if err := s.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logger.Error("console: render", "page", page, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	w.Write(buf.Bytes())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	st, err := s.c.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	specs, err := s.c.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	s.render(w, r, http.StatusOK, "index", pageData{Title: "Operations", Status: st, Specs: specs})
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	spec, err := s.c.Get(r.Context(), name)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	if spec == nil {
		http.NotFound(w, r)
		return
	}
	s.render(w, r, http.StatusOK, "operation", pageData{Title: name, Spec: spec})
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.c.ExportHTML(r.Context())
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	// ExportHTML output is sanitized.
	s.render(w, r, http.StatusOK, "document", pageData{Title: "Document", Doc: template.HTML(doc)})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.c.Clear(r.Context()); err != nil {
		s.logger.Error("console: clear", "error", err)
		shield.SetFlash(w, "error", "Clear failed: "+err.Error())
	} else {
		shield.SetFlash(w, "success", "All operations cleared.")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
