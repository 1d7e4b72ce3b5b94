// Package demosite serves a small marketing website for local runs. Pages
// can be slowed down or made to fail so every check has something to find.
package demosite

import (
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
)

// Pages maps each served path to its title.
var Pages = map[string]string{
	"/":         "Home",
	"/features": "Features",
	"/pricing":  "Pricing",
	"/about":    "About",
	"/contact":  "Contact",
}

// Options configures the demo site.
type Options struct {
	// Delay is added to every response
	Delay time.Duration

	// Slow adds a per-path delay on top of Delay
	Slow map[string]time.Duration

	// Fail answers a path with a fixed status code
	Fail map[string]int

	// Headers sets cache and security headers on every page and gzips
	// replies for clients that accept it
	Headers bool

	Logger *zap.Logger
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>{{.Title}} | Acme</title></head>
<body>
<nav>{{range .Nav}}<a href="{{.}}">{{.}}</a> {{end}}</nav>
<h1>{{.Title}}</h1>
<p>Served at {{.Served}}.</p>
</body>
</html>
`))

// NewHandler returns the site's handler. Unknown paths are 404.
func NewHandler(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	nav := make([]string, 0, len(Pages))
	for path := range Pages {
		nav = append(nav, path)
	}
	sort.Strings(nav)

	mux := http.NewServeMux()
	for path, title := range Pages {
		mux.Handle(path, page(path, title, nav, opts, logger))
	}
	if !opts.Headers {
		return mux
	}

	// Pages are far below the default minimum size.
	wrap, err := gzhttp.NewWrapper(gzhttp.MinSize(0))
	if err != nil {
		logger.Warn("gzip disabled", zap.Error(err))
		return mux
	}
	return wrap(mux)
}

func page(path, title string, nav []string, opts Options, logger *zap.Logger) http.HandlerFunc {
	delay := opts.Delay + opts.Slow[path]
	status, failing := opts.Fail[path]

	return func(w http.ResponseWriter, r *http.Request) {
		// "/" is the mux catch-all
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		if opts.Headers {
			h := w.Header()
			h.Set("Cache-Control", "public, max-age=300")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Strict-Transport-Security", "max-age=63072000")
		}

		if failing {
			logger.Debug("failing page", zap.String("path", path), zap.Int("status", status))
			http.Error(w, http.StatusText(status), status)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err := pageTmpl.Execute(w, struct {
			Title  string
			Nav    []string
			Served string
		}{title, nav, time.Now().UTC().Format(time.RFC3339)})
		if err != nil {
			logger.Warn("render page", zap.String("path", path), zap.Error(err))
		}
	}
}

// NewServer returns an http.Server for the site on addr.
func NewServer(addr string, opts Options) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewHandler(opts),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 2 * time.Second,
	}
}

// ParseSlow converts path=duration pairs, e.g. {"/features": "700ms"}.
func ParseSlow(raw map[string]string) (map[string]time.Duration, error) {
	out := make(map[string]time.Duration, len(raw))
	for path, v := range raw {
		if _, ok := Pages[path]; !ok {
			return nil, fmt.Errorf("unknown page %q", path)
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("delay for %s: %w", path, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("delay for %s must be >= 0", path)
		}
		out[path] = d
	}
	return out, nil
}

// ParseFail converts path=status pairs, e.g. {"/pricing": "503"}.
func ParseFail(raw map[string]string) (map[string]int, error) {
	out := make(map[string]int, len(raw))
	for path, v := range raw {
		if _, ok := Pages[path]; !ok {
			return nil, fmt.Errorf("unknown page %q", path)
		}
		code, err := strconv.Atoi(v)
		if err != nil || code < 100 || code > 599 {
			return nil, fmt.Errorf("status for %s must be an HTTP status code, got %q", path, v)
		}
		out[path] = code
	}
	return out, nil
}
