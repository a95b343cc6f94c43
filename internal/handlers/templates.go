package handlers

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFS embed.FS

const layoutFile = "layout.html"

// TemplateCache holds parsed templates
type TemplateCache struct {
	cache map[string]*template.Template
	mu    sync.RWMutex
	funcs template.FuncMap
}

func NewTemplateCache() *TemplateCache {
	return &TemplateCache{
		cache: make(map[string]*template.Template),
		funcs: template.FuncMap{
			"prevPage": func(currentPage int) int { return currentPage - 1 },
			"nextPage": func(currentPage int) int { return currentPage + 1 },
			"usd":      func(d decimal.Decimal) string { return "$" + d.StringFixed(2) },
			"when": func(t *time.Time) string {
				if t == nil || t.IsZero() {
					return "-"
				}
				return t.UTC().Format("2006-01-02 15:04")
			},
			"date": func(t time.Time) string {
				if t.IsZero() {
					return "-"
				}
				return t.UTC().Format("2006-01-02 15:04")
			},
		},
	}
}

// Load parses every embedded page together with the shared layout.
func (tc *TemplateCache) Load() error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	files, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return err
	}
	for _, file := range files {
		name := path.Base(file)
		if name == layoutFile {
			continue
		}
		tmpl, err := template.New(layoutFile).Funcs(tc.funcs).ParseFS(templateFS, "templates/"+layoutFile, file)
		if err != nil {
			slog.Error("Failed to parse template", "file", file, "error", err)
			return fmt.Errorf("parse %s: %w", name, err)
		}
		tc.cache[name] = tmpl
		slog.Debug("Cached template", "name", name)
	}
	return nil
}

func (tc *TemplateCache) Get(name string) *template.Template {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.cache[name]
}
