package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/matst80/wsrelay/internal/obs"
)

//go:embed templates/*.html
var tmplFS embed.FS

var (
	once sync.Once
	tmpl *template.Template
)

func load() {
	base := template.New("base").Funcs(template.FuncMap{
		"sortedKeys": sortedKeys,
		"since": func(t time.Time) string {
			return time.Since(t).Round(time.Second).String()
		},
	})
	tmpl = template.Must(base.ParseFS(tmplFS, "templates/*.html"))
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Render writes the named template to w with data enriched by Now.
func Render(w io.Writer, name string, data map[string]any) error {
	once.Do(load)
	if data == nil {
		data = map[string]any{}
	}
	data["Now"] = time.Now().UTC().Format(time.RFC822)
	if tmpl.Lookup(name) == nil {
		return fmt.Errorf("template %q not found", name)
	}
	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		obs.Error("web.render", obs.Fields{"template": name, "err": err.Error()})
		return err
	}
	return nil
}
