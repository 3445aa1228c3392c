// Package renderer turns page sources into HTML documents.
//
// Pages are Go html/template files (.html, .tmpl) or Markdown files (.md).
// Both may start with a YAML front matter block. Template pages are executed
// together with every shared template (layouts and partials); Markdown pages
// are converted with goldmark and wrapped in a layout when one is defined.
// The result is optionally re-indented by Pretty.
package renderer

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/sitesmith/internal/blur"
	siteerrors "github.com/conneroisu/sitesmith/internal/errors"
)

// Options configure a Renderer.
type Options struct {
	// Layout is the template used to wrap Markdown pages that do not name one.
	Layout string
	// Pretty re-indents every rendered document.
	Pretty bool
	// Assets maps an asset category to its URL prefix, for the asset function.
	Assets map[string]string
	// Blur selects the elements used by the blurScript function.
	Blur blur.Selectors
}

// Page is the data passed to page and layout templates.
type Page struct {
	Name    string
	Title   string
	Meta    map[string]any
	Content template.HTML
}

// Renderer renders pages against a fixed set of shared templates.
type Renderer struct {
	opts   Options
	shared *template.Template
	md     goldmark.Markdown
}

// New parses the shared templates. Files other than .html and .tmpl are
// ignored. Each template is named after its file name.
func New(opts Options, shared []string) (*Renderer, error) {
	r := &Renderer{
		opts: opts,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		),
	}

	base := template.New("").Funcs(r.funcs())
	for _, file := range shared {
		if !isTemplate(file) {
			continue
		}
		src, err := os.ReadFile(file)
		if err != nil {
			return nil, siteerrors.NewIOError("TEMPLATE_READ", "cannot read template", err).
				WithLocation(file, 0, 0)
		}
		_, body, err := splitFrontMatter(src)
		if err != nil {
			return nil, compileError(file, err)
		}
		if _, err := base.New(filepath.Base(file)).Parse(string(body)); err != nil {
			return nil, compileError(file, err)
		}
	}
	r.shared = base
	return r, nil
}

// OutputName is the file name a page renders to.
func OutputName(page string) string {
	base := filepath.Base(page)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".html"
}

// Render renders one page file. The shared set is cloned for every page so
// pages never see each other's definitions.
func (r *Renderer) Render(page string) ([]byte, error) {
	src, err := os.ReadFile(page)
	if err != nil {
		return nil, siteerrors.NewIOError("PAGE_READ", "cannot read page", err).WithLocation(page, 0, 0)
	}

	rawMeta, body, err := splitFrontMatter(src)
	if err != nil {
		return nil, compileError(page, err)
	}
	meta, err := parseFrontMatter(rawMeta)
	if err != nil {
		return nil, compileError(page, err)
	}

	data := Page{
		Name:  strings.TrimSuffix(filepath.Base(page), filepath.Ext(page)),
		Title: pageTitle(page, meta),
		Meta:  meta,
	}

	var out []byte
	if strings.EqualFold(filepath.Ext(page), ".md") {
		out, err = r.renderMarkdown(page, body, data)
	} else {
		out, err = r.renderTemplate(page, body, data)
	}
	if err != nil {
		return nil, err
	}

	if r.opts.Pretty {
		pretty, err := Pretty(out)
		if err != nil {
			return nil, compileError(page, err)
		}
		return pretty, nil
	}
	return out, nil
}

func (r *Renderer) renderTemplate(page string, body []byte, data Page) ([]byte, error) {
	set, err := r.shared.Clone()
	if err != nil {
		return nil, siteerrors.NewInternalError("TEMPLATE_CLONE", "cannot clone shared templates", err)
	}
	t, err := set.New(filepath.Base(page)).Parse(string(body))
	if err != nil {
		return nil, compileError(page, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, compileError(page, err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) renderMarkdown(page string, body []byte, data Page) ([]byte, error) {
	var content bytes.Buffer
	if err := r.md.Convert(body, &content); err != nil {
		return nil, compileError(page, err)
	}
	data.Content = template.HTML(content.String())

	layout := r.opts.Layout
	if name, ok := data.Meta["layout"].(string); ok && name != "" {
		layout = name
	}

	set, err := r.shared.Clone()
	if err != nil {
		return nil, siteerrors.NewInternalError("TEMPLATE_CLONE", "cannot clone shared templates", err)
	}
	t := lookup(set, layout)
	if t == nil {
		return content.Bytes(), nil
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, compileError(page, err)
	}
	return buf.Bytes(), nil
}

// lookup finds a template by defined name or by file name, with or without
// extension.
func lookup(set *template.Template, name string) *template.Template {
	if name == "" {
		return nil
	}
	for _, candidate := range []string{name, name + ".html", name + ".tmpl"} {
		if t := set.Lookup(candidate); t != nil && t.Tree != nil {
			return t
		}
	}
	return nil
}

func (r *Renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"blurScript": func() (template.HTML, error) {
			return blur.Script(r.opts.Blur)
		},
		"asset": func(category, name string) (string, error) {
			prefix, ok := r.opts.Assets[category]
			if !ok {
				return "", fmt.Errorf("unknown asset category %q", category)
			}
			return path.Join(prefix, name), nil
		},
		"title": titleCase,
	}
}

func pageTitle(page string, meta map[string]any) string {
	if t, ok := meta["title"].(string); ok && t != "" {
		return t
	}
	name := strings.TrimSuffix(filepath.Base(page), filepath.Ext(page))
	return titleCase(strings.NewReplacer("-", " ", "_", " ").Replace(name))
}

// titleCase uses a fresh Caser per call since a Caser is not safe for
// concurrent use.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

func isTemplate(file string) bool {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".html", ".tmpl":
		return true
	}
	return false
}

var templateLine = regexp.MustCompile(`^(?:template|html/template): [^:]+:(\d+):`)

func compileError(file string, err error) *siteerrors.SiteError {
	line := 0
	if m := templateLine.FindStringSubmatch(err.Error()); m != nil {
		line, _ = strconv.Atoi(m[1])
	}
	return siteerrors.NewCompileError("TEMPLATE_COMPILE", err.Error(), err).WithLocation(file, line, 0)
}
