package console

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/schemawatch/collector"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// statusFor maps collector errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, collector.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, collector.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) apiStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.c.Status(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type operationItem struct {
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
	Endpoint    string `json:"endpoint,omitempty"`
	CollectedAt string `json:"collected_at"`
}

func (s *Server) apiList(w http.ResponseWriter, r *http.Request) {
	specs, err := s.c.List(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	items := make([]operationItem, 0, len(specs))
	for _, spec := range specs {
		items = append(items, operationItem{
			Name:        spec.OperationName,
			Fingerprint: spec.ContentFingerprint,
			Endpoint:    spec.Endpoint,
			CollectedAt: spec.CollectedAt.Format(timeLayout),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": items, "count": len(items)})
}

func (s *Server) apiGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	spec, err := s.c.Get(r.Context(), name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if spec == nil {
		writeError(w, http.StatusNotFound, collector.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

func (s *Server) apiJSONSchema(w http.ResponseWriter, r *http.Request) {
	doc, err := s.c.JSONSchema(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	json.NewEncoder(w).Encode(doc)
}

func (s *Server) apiCheck(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var response any
	if err := dec.Decode(&response); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err := s.c.Check(r.Context(), chi.URLParam(r, "name"), response)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"valid": true})
	case errors.Is(err, collector.ErrNotFound), errors.Is(err, collector.ErrClosed):
		writeError(w, statusFor(err), err)
	default:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"valid": false, "error": err.Error()})
	}
}

func (s *Server) apiClear(w http.ResponseWriter, r *http.Request) {
	if err := s.c.Clear(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiExport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.c.Export(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+collector.ExportFilename()+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	w.Write(doc)
}
