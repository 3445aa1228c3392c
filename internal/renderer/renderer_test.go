package renderer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitesmith/internal/blur"
	siteerrors "github.com/conneroisu/sitesmith/internal/errors"
)

const layoutSrc = `{{define "layout"}}<!DOCTYPE html><html><head><title>{{.Title}}</title></head><body>{{block "content" .}}{{.Content}}{{end}}</body></html>{{end}}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func newTestRenderer(t *testing.T, opts Options) (*Renderer, string) {
	t.Helper()
	dir := t.TempDir()
	layout := writeFile(t, dir, "layouts/layout.html", layoutSrc)
	r, err := New(opts, []string{layout, filepath.Join(dir, "notes.md")})
	require.NoError(t, err)
	return r, dir
}

func TestRenderTemplatePagePretty(t *testing.T) {
	r, dir := newTestRenderer(t, Options{Pretty: true, Layout: "layout"})
	page := writeFile(t, dir, "pages/index.html",
		`{{define "content"}}<main><h1>Hi</h1><p>Body</p></main>{{end}}{{template "layout" .}}`)

	out, err := r.Render(page)
	require.NoError(t, err)

	want := `<!DOCTYPE html>
<html>
  <head>
    <title>Index</title>
  </head>
  <body>
    <main>
      <h1>Hi</h1>
      <p>Body</p>
    </main>
  </body>
</html>
`
	assert.Equal(t, want, string(out))
}

func TestPagesDoNotShareDefinitions(t *testing.T) {
	r, dir := newTestRenderer(t, Options{Layout: "layout"})
	a := writeFile(t, dir, "pages/a.html", `{{define "content"}}AAA{{end}}{{template "layout" .}}`)
	b := writeFile(t, dir, "pages/b.html", `{{template "layout" .}}`)

	outA, err := r.Render(a)
	require.NoError(t, err)
	outB, err := r.Render(b)
	require.NoError(t, err)

	assert.Contains(t, string(outA), "AAA")
	assert.NotContains(t, string(outB), "AAA")
}

func TestRenderMarkdownPage(t *testing.T) {
	r, dir := newTestRenderer(t, Options{Layout: "layout"})
	page := writeFile(t, dir, "pages/about.md", "---\ntitle: About us\n---\n# Hello\n\nSome *text*.\n")

	out, err := r.Render(page)
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, "<title>About us</title>")
	assert.Contains(t, s, "<h1>Hello</h1>")
	assert.Contains(t, s, "<em>text</em>")
}

func TestRenderMarkdownWithoutLayout(t *testing.T) {
	r, dir := newTestRenderer(t, Options{Layout: "missing"})
	page := writeFile(t, dir, "pages/raw.md", "plain *words*\n")

	out, err := r.Render(page)
	require.NoError(t, err)
	assert.Equal(t, "<p>plain <em>words</em></p>\n", string(out))
}

func TestTemplateFuncs(t *testing.T) {
	r, dir := newTestRenderer(t, Options{
		Assets: map[string]string{"styles": "/assets/styles"},
		Blur:   blur.DefaultSelectors,
	})
	page := writeFile(t, dir, "pages/funcs.html",
		`<link href="{{asset "styles" "app.min.css"}}">{{title "hello world"}}{{blurScript}}`)

	out, err := r.Render(page)
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, `href="/assets/styles/app.min.css"`)
	assert.Contains(t, s, "Hello World")
	assert.Contains(t, s, `".blur-form"`)
}

func TestUnknownAssetCategoryIsCompileError(t *testing.T) {
	r, dir := newTestRenderer(t, Options{})
	page := writeFile(t, dir, "pages/bad.html", `{{asset "videos" "a.mp4"}}`)

	_, err := r.Render(page)
	require.Error(t, err)
	assert.True(t, siteerrors.IsCompileError(err))
}

func TestParseErrorCarriesLocation(t *testing.T) {
	r, dir := newTestRenderer(t, Options{})
	page := writeFile(t, dir, "pages/broken.html", "<p>ok</p>\n{{if}}\n")

	_, err := r.Render(page)
	require.Error(t, err)

	var se *siteerrors.SiteError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, siteerrors.ErrorTypeCompile, se.Type)
	assert.Equal(t, page, se.FilePath)
	assert.Equal(t, 2, se.Line)
}

func TestMissingPageIsIOError(t *testing.T) {
	r, dir := newTestRenderer(t, Options{})
	_, err := r.Render(filepath.Join(dir, "pages", "nope.html"))
	require.Error(t, err)
	assert.Equal(t, siteerrors.ErrorTypeIO, siteerrors.TypeOf(err))
}

func TestSharedTemplateErrorFailsConstruction(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "partials/nav.html", "{{if}}")
	_, err := New(Options{}, []string{bad})
	require.Error(t, err)
	assert.True(t, siteerrors.IsCompileError(err))
}

func TestOutputNameAndTitle(t *testing.T) {
	assert.Equal(t, "index.html", OutputName("app/templates/pages/index.tmpl"))
	assert.Equal(t, "about.html", OutputName("about.md"))
	assert.Equal(t, "Contact Us", pageTitle("pages/contact-us.html", nil))
	assert.Equal(t, "Custom", pageTitle("pages/x.html", map[string]any{"title": "Custom"}))
}

func TestSplitFrontMatter(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantMeta string
		wantBody string
		wantErr  bool
	}{
		{name: "none", in: "# hi\n", wantBody: "# hi\n"},
		{name: "block", in: "---\na: 1\n---\nbody\n", wantMeta: "a: 1\n", wantBody: "body\n"},
		{name: "empty block", in: "---\n---\nbody\n", wantBody: "body\n"},
		{name: "crlf", in: "---\r\na: 1\r\n---\r\nbody", wantMeta: "a: 1\r\n", wantBody: "body"},
		{name: "unclosed", in: "---\na: 1\nbody\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, body, err := splitFrontMatter([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMeta, string(meta))
			assert.Equal(t, tt.wantBody, string(body))
		})
	}
}

func TestPrettyKeepsVerbatimElements(t *testing.T) {
	src := "<html><body><div><pre>  a\n    b</pre><script>var x = 1;\n  x++;</script></div></body></html>"
	out, err := Pretty([]byte(src))
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, "<pre>  a\n    b</pre>")
	assert.Contains(t, s, "<script>var x = 1;\n  x++;</script>")
}

func TestPrettyCollapsesWhitespaceAndVoidElements(t *testing.T) {
	src := "<html><head><meta charset=\"utf-8\"></head><body><ul>\n   <li>one</li>\n\n<li>two</li></ul><hr></body></html>"
	out, err := Pretty([]byte(src))
	require.NoError(t, err)

	want := `<html>
  <head>
    <meta charset="utf-8">
  </head>
  <body>
    <ul>
      <li>one</li>
      <li>two</li>
    </ul>
    <hr>
  </body>
</html>
`
	assert.Equal(t, want, string(out))
}
