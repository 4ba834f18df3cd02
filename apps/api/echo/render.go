package echoapi

import (
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/alama/core"
	appfs "github.com/trezcool/alama/fs"
)

const pageTemplatesDir = "templates/pages"

var pageFuncs = template.FuncMap{
	"pct": func(f float64) string { return fmt.Sprintf("%.2f%%", f) },
	"gp":  func(f float64) string { return fmt.Sprintf("%.2f", f) },
	"num": func(f float64) string {
		if f == float64(int64(f)) {
			return fmt.Sprintf("%d", int64(f))
		}
		return fmt.Sprintf("%.2f", f)
	},
	"datetime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Local().Format("2006-01-02 15:04")
	},
	"lower": strings.ToLower,
}

// pageRenderer renders the embedded pages; every page is executed within the `_base` layout.
type pageRenderer struct {
	templates map[string]*template.Template
}

var _ echo.Renderer = (*pageRenderer)(nil)

func newPageRenderer(logger core.Logger) *pageRenderer {
	r := &pageRenderer{templates: make(map[string]*template.Template)}

	fps, err := fs.Glob(appfs.FS, path.Join(pageTemplatesDir, "*.gohtml"))
	if err != nil {
		logger.Fatal("echoapi.newPageRenderer: "+err.Error(), err)
	}
	base := path.Join(pageTemplatesDir, "_base.gohtml")
	for _, fp := range fps {
		fname := path.Base(fp)
		if strings.HasPrefix(fname, "_") {
			continue
		}
		tmpl, err := template.New(fname).Funcs(pageFuncs).ParseFS(appfs.FS, base, fp)
		if err != nil {
			logger.Fatal("echoapi.newPageRenderer: "+err.Error(), err)
		}
		r.templates[strings.TrimSuffix(fname, ".gohtml")] = tmpl
	}
	return r
}

func (r *pageRenderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	tmpl, ok := r.templates[name]
	if !ok {
		return errors.Errorf("page template %q not found", name)
	}
	return tmpl.ExecuteTemplate(w, "base", data)
}
