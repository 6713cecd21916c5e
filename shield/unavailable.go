package shield

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Unavailable answers 503 while ready reports false. Paths under any of
// exclude pass through. API paths get JSON, everything else a small page.
func Unavailable(ready func() bool, retryAfter time.Duration, exclude ...string) func(http.Handler) http.Handler {
	secs := strconv.Itoa(max(1, int(retryAfter/time.Second)))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ready() {
				next.ServeHTTP(w, r)
				return
			}
			for _, prefix := range exclude {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			w.Header().Set("Retry-After", secs)
			if strings.HasPrefix(r.URL.Path, "/api/") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"error": "store not ready"})
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusServiceUnavailable)
			unavailablePage.Execute(w, secs)
		})
	}
}

var unavailablePage = template.Must(template.New("unavailable").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="{{.}}">
<title>schemawatch: starting</title>
</head>
<body>
<h1>Store not ready</h1>
<p>Captures are buffered until the database opens. This page reloads in {{.}}s.</p>
</body>
</html>`))
