// Package web renders the HTML pages. Templates are embedded in the binary;
// pointing the renderer at a directory serves those instead and reloads them
// whenever they change.
package web

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"flashdeck/pkg/decks"
	"flashdeck/pkg/models"
	"flashdeck/pkg/performance"
)

//go:embed templates/*.html
var embedded embed.FS

const reloadDelay = 200 * time.Millisecond

var funcs = template.FuncMap{
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("Jan 2, 2006")
	},
	"plural": func(n int, one, many string) string {
		if n == 1 {
			return fmt.Sprintf("%d %s", n, one)
		}
		return fmt.Sprintf("%d %s", n, many)
	},
}

// LandingPage is the data for "/".
type LandingPage struct {
	User *models.User
}

// AuthPage is the data for "/auth".
type AuthPage struct {
	User      *models.User
	Email     string
	Error     string
	Notice    string
	Providers []string
}

// DashboardPage is the data for "/dashboard".
type DashboardPage struct {
	Snapshot   decks.Snapshot
	Error      string
	FetchError string
}

// Renderer executes the page templates.
type Renderer struct {
	dir       string
	logger    *slog.Logger
	debouncer *performance.Debouncer

	mu   sync.RWMutex
	tmpl *template.Template
}

// NewRenderer parses the embedded templates, or the *.html files in dir when
// dir is set.
func NewRenderer(dir string, logger *slog.Logger) (*Renderer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Renderer{
		dir:       dir,
		logger:    logger.With(slog.String("component", "web.renderer")),
		debouncer: performance.NewDebouncer(reloadDelay),
	}
	tmpl, err := r.parse()
	if err != nil {
		return nil, err
	}
	r.tmpl = tmpl
	return r, nil
}

func (r *Renderer) parse() (*template.Template, error) {
	var fsys fs.FS = embedded
	pattern := "templates/*.html"
	if r.dir != "" {
		fsys = os.DirFS(r.dir)
		pattern = "*.html"
	}
	tmpl, err := template.New("pages").Funcs(funcs).ParseFS(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}

// Reload parses the templates again. On failure the previous set stays.
func (r *Renderer) Reload() error {
	tmpl, err := r.parse()
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.tmpl = tmpl
	r.mu.Unlock()
	return nil
}

// Watch reloads the templates whenever a file in the template directory
// changes, until ctx ends. It does nothing for embedded templates.
func (r *Renderer) Watch(ctx context.Context) error {
	if r.dir == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create template watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", r.dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				r.debouncer.Clear()
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(event.Name, ".html") {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				r.logger.Debug("template changed", slog.String("file", filepath.Base(event.Name)), slog.String("op", event.Op.String()))
				r.debouncer.Debounce("reload", func() {
					if err := r.Reload(); err != nil {
						r.logger.Warn("template reload failed", slog.String("error", err.Error()))
						return
					}
					r.logger.Info("templates reloaded")
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn("template watcher error", slog.String("error", err.Error()))
			}
		}
	}()
	return nil
}

// Render executes the named page into w. Nothing is written if the template
// fails.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data any) error {
	r.mu.RLock()
	tmpl := r.tmpl
	r.mu.RUnlock()

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
