package tasks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitesmith/internal/config"
	siteerrors "github.com/conneroisu/sitesmith/internal/errors"
	"github.com/conneroisu/sitesmith/internal/logging"
	"github.com/conneroisu/sitesmith/internal/notify"
	"github.com/conneroisu/sitesmith/internal/pipeline"
)

var projectFiles = []struct{ name, content string }{
	{"app/styles/app.css", "@import \"./blocks/blur.css\";\nbody { margin: 0 }\n"},
	{"app/styles/blocks/blur.css", ".blur-form { user-select: none }\n"},
	{"app/scripts/app.js", "import { blur } from './common/blur.js';\nblur();\n"},
	{"app/scripts/common/blur.js", "export function blur() { return 1 }\n"},
	{"app/templates/layout.html", `{{define "layout"}}<!DOCTYPE html><html><head><title>{{.Title}}</title><link rel="stylesheet" href="{{asset "styles" "app.min.css"}}"></head><body>{{block "content" .}}{{.Content}}{{end}}{{blurScript}}</body></html>{{end}}`},
	{"app/templates/pages/index.html", `{{define "content"}}<main><h1>Home</h1></main>{{end}}{{template "layout" .}}`},
	{"app/templates/pages/about.md", "---\ntitle: About\n---\n# About us\n"},
	{"app/images/logo.png", "png"},
	{"app/images/icons/star.svg", "<svg/>"},
	{"app/fonts/roboto.woff2", "font"},
	{"node_modules/normalize.css/normalize.css", "/* normalize */"},
}

// newProject lays out a sample site in a temporary directory and makes it
// the working directory, so the default configuration applies unchanged.
func newProject(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	for _, f := range projectFiles {
		p := filepath.Join(dir, filepath.FromSlash(f.name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(f.content), 0o644))
	}
	t.Chdir(dir)
	return config.Default()
}

func newRunner(n notify.Notifier) *pipeline.Runner {
	return pipeline.NewRunner(logging.NewNop(), n, siteerrors.DefaultPolicy())
}

type stubServer struct {
	run func(ctx context.Context) error
}

func (s stubServer) Run(ctx context.Context) error { return s.run(ctx) }

func newSet(t *testing.T, cfg *config.Config, runner *pipeline.Runner, srv Server) *Set {
	t.Helper()
	s, err := NewSet(cfg, Deps{Logger: logging.NewNop(), Runner: runner, Server: srv})
	require.NoError(t, err)
	return s
}

func TestBuildTasksWriteToTheirDestinations(t *testing.T) {
	cfg := newProject(t)
	runner := newRunner(nil)
	s := newSet(t, cfg, runner, nil)

	tests := []struct {
		task *pipeline.Task
		want []string
	}{
		{s.Styles, []string{"dist/assets/styles/app.min.css"}},
		{s.VendorCSS, []string{"dist/assets/styles/vendor.min.css"}},
		{s.Scripts, []string{"dist/assets/scripts/app.js", "dist/assets/scripts/app.js.map"}},
		{s.Templates, []string{"dist/index.html", "dist/about.html"}},
		{s.Images, []string{"dist/assets/images/logo.png", "dist/assets/images/icons/star.svg"}},
		{s.Fonts, []string{"dist/assets/fonts/roboto.woff2"}},
	}

	for _, tt := range tests {
		t.Run(tt.task.Name, func(t *testing.T) {
			require.NoError(t, runner.Run(context.Background(), tt.task))
			for _, f := range tt.want {
				assert.FileExists(t, f)
			}
		})
	}
}

func TestStylesOutput(t *testing.T) {
	cfg := newProject(t)
	cfg.Styles.Minify = false
	runner := newRunner(nil)

	require.NoError(t, runner.Run(context.Background(), Styles(cfg.PathTable(), cfg.Styles)))

	css, err := os.ReadFile("dist/assets/styles/app.min.css")
	require.NoError(t, err)
	assert.Contains(t, string(css), "-webkit-user-select")
	assert.Contains(t, string(css), "sourceMappingURL=data:application/json")
}

func TestTemplatesOutput(t *testing.T) {
	cfg := newProject(t)
	runner := newRunner(nil)
	require.NoError(t, runner.Run(context.Background(), Templates(cfg.PathTable(), TemplateOptions{
		Pretty: true,
		Layout: "layout",
		Blur:   blurSelectors(cfg.Blur),
	})))

	index, err := os.ReadFile("dist/index.html")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(index), "<!DOCTYPE html>\n<html>\n  <head>\n"))
	assert.Contains(t, string(index), `<link rel="stylesheet" href="/assets/styles/app.min.css">`)
	assert.Contains(t, string(index), `".blur__back"`)

	about, err := os.ReadFile("dist/about.html")
	require.NoError(t, err)
	assert.Contains(t, string(about), "<title>About</title>")
	assert.Contains(t, string(about), "<h1>About us</h1>")

	assert.NoFileExists(t, "dist/layout.html")
}

func TestCleanIsIdempotent(t *testing.T) {
	cfg := newProject(t)
	runner := newRunner(nil)
	require.NoError(t, os.MkdirAll("dist/assets", 0o755))
	require.NoError(t, os.WriteFile("dist/assets/stale.css", []byte("x"), 0o644))

	clean := Clean(cfg.PathTable())
	require.NoError(t, runner.Run(context.Background(), clean))
	assert.NoDirExists(t, "dist")
	require.NoError(t, runner.Run(context.Background(), clean))
	assert.NoDirExists(t, "dist")
}

func TestVendorCSSKeepsListOrder(t *testing.T) {
	cfg := newProject(t)
	require.NoError(t, os.WriteFile("first.css", []byte("/* first */"), 0o644))
	require.NoError(t, os.WriteFile("second.css", []byte("/* second */"), 0o644))
	cfg.Vendor.CSS = []string{"second.css", "node_modules/normalize.css/normalize.css", "first.css"}

	require.NoError(t, newRunner(nil).Run(context.Background(), VendorCSS(cfg.PathTable(), cfg.Vendor)))

	out, err := os.ReadFile("dist/assets/styles/vendor.min.css")
	require.NoError(t, err)
	assert.Equal(t, "/* second */\n/* normalize */\n/* first */", string(out))
}

func TestVendorCSSMissingFileIsFatal(t *testing.T) {
	cfg := newProject(t)
	cfg.Vendor.CSS = []string{"node_modules/missing/missing.css"}

	err := newRunner(nil).Run(context.Background(), VendorCSS(cfg.PathTable(), cfg.Vendor))
	require.Error(t, err)
	task, ok := pipeline.FailedTask(err)
	assert.True(t, ok)
	assert.Equal(t, NameVendorCSS, task)
}

func TestMalformedStylesheetNotifies(t *testing.T) {
	cfg := newProject(t)
	require.NoError(t, os.WriteFile("app/styles/app.css", []byte("@import \"./nope.css\";\n"), 0o644))

	var rec notify.Recorder
	runner := newRunner(&rec)
	s := newSet(t, cfg, runner, nil)

	require.NoError(t, runner.Run(context.Background(), s.Build))

	notes := rec.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, NameStyles, notes[0].Task)
	assert.Equal(t, "styles: compile error", notes[0].Title)
	assert.Contains(t, notes[0].Message, "app/styles/app.css:1")
	assert.FileExists(t, "dist/index.html")
}

func TestDefaultRunsPhasesInOrder(t *testing.T) {
	cfg := newProject(t)
	require.NoError(t, os.MkdirAll("dist", 0o755))
	require.NoError(t, os.WriteFile("dist/stale.html", []byte("old"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []string
	srv := stubServer{run: func(ctx context.Context) error {
		for _, f := range []string{
			"dist/index.html",
			"dist/about.html",
			"dist/assets/styles/app.min.css",
			"dist/assets/styles/vendor.min.css",
			"dist/assets/scripts/app.js",
			"dist/assets/images/logo.png",
			"dist/assets/fonts/roboto.woff2",
			"dist/stale.html",
		} {
			if _, err := os.Stat(f); err == nil {
				seen = append(seen, f)
			}
		}
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}}

	runner := newRunner(nil)
	s := newSet(t, cfg, runner, srv)

	err := runner.Run(ctx, s.Default)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Len(t, seen, 7)
	assert.NotContains(t, seen, "dist/stale.html")
}

func TestFatalBuildErrorStopsDefault(t *testing.T) {
	cfg := newProject(t)
	require.NoError(t, os.Remove("app/scripts/app.js"))

	started := false
	srv := stubServer{run: func(ctx context.Context) error {
		started = true
		return nil
	}}
	runner := newRunner(nil)
	s := newSet(t, cfg, runner, srv)

	err := runner.Run(context.Background(), s.Default)
	require.Error(t, err)
	task, _ := pipeline.FailedTask(err)
	assert.Equal(t, NameScripts, task)
	assert.False(t, started)
}

func TestFatalServerErrorEndsDefault(t *testing.T) {
	cfg := newProject(t)

	listen := siteerrors.NewIOError("SERVER_LISTEN", "cannot listen on localhost:3000", errors.New("address already in use"))
	srv := stubServer{run: func(ctx context.Context) error {
		return listen
	}}
	runner := newRunner(nil)
	s := newSet(t, cfg, runner, srv)

	done := make(chan error, 1)
	go func() { done <- runner.Run(context.Background(), s.Default) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, listen)
		task, _ := pipeline.FailedTask(err)
		assert.Equal(t, NameServer, task)
	case <-time.After(5 * time.Second):
		t.Fatal("default task kept watching after the server failed")
	}
}

func TestOverlappingDestinationsAreRejected(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.Fonts.Dest = cfg.Paths.Images.Dest

	_, err := NewSet(cfg, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "images")
	assert.Contains(t, err.Error(), "fonts")
}

func TestBindings(t *testing.T) {
	cfg := config.Default()
	s := newSet(t, cfg, newRunner(nil), nil)

	got := map[string][]string{}
	for _, b := range Bindings(cfg, s) {
		var names []string
		for _, task := range b.Tasks {
			names = append(names, task.Name)
		}
		got[b.Name] = names
	}

	assert.Equal(t, map[string][]string{
		NameScripts:   {NameScripts},
		NameVendorCSS: {NameVendorCSS},
		NameStyles:    {NameStyles},
		NameTemplates: {NameTemplates},
		NameImages:    {NameImages, NameFonts},
		NameFonts:     {NameFonts},
	}, got)
}

func TestWatchRerunsFontsOnFontChange(t *testing.T) {
	cfg := newProject(t)
	runner := newRunner(nil)
	s := newSet(t, cfg, runner, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx, s.Watch) }()

	// The watch is in place once a change to an existing font is copied.
	require.Eventually(t, func() bool {
		_ = os.WriteFile("app/fonts/roboto.woff2", []byte("font v2"), 0o644)
		data, err := os.ReadFile("dist/assets/fonts/roboto.woff2")
		return err == nil && string(data) == "font v2"
	}, 10*time.Second, 50*time.Millisecond)

	require.NoError(t, os.WriteFile("app/fonts/mono.woff2", []byte("mono"), 0o644))
	assert.Eventually(t, func() bool {
		_, err := os.Stat("dist/assets/fonts/mono.woff2")
		return err == nil
	}, 10*time.Second, 50*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRegister(t *testing.T) {
	s := newSet(t, config.Default(), newRunner(nil), nil)
	reg := pipeline.NewRegistry()
	require.NoError(t, s.Register(reg))

	for _, name := range []string{
		NameClean, NameStyles, NameVendorCSS, "vendor-css", NameScripts, NameTemplates,
		NameImages, NameFonts, NameWatch, NameServer, "serve", NameBuild, NameDefault,
	} {
		_, ok := reg.Get(name)
		assert.True(t, ok, name)
	}
	assert.Len(t, reg.Tasks(), 11)
}

func TestAssetPrefixes(t *testing.T) {
	assert.Equal(t, map[string]string{
		"styles":  "/assets/styles",
		"scripts": "/assets/scripts",
		"images":  "/assets/images",
		"fonts":   "/assets/fonts",
	}, AssetPrefixes(config.Default().PathTable()))
}

func TestServerTaskWithoutServer(t *testing.T) {
	err := newRunner(nil).Run(context.Background(), Serve(nil))
	assert.Error(t, err)
}
