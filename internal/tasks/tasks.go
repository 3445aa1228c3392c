// Package tasks defines the named build tasks of a site and composes them
// into the build and default sequences. Every constructor receives the
// configuration it needs explicitly.
package tasks

import (
	"context"
	"errors"

	"github.com/conneroisu/sitesmith/internal/config"
	"github.com/conneroisu/sitesmith/internal/logging"
	"github.com/conneroisu/sitesmith/internal/pipeline"
)

// Task names as used on the command line.
const (
	NameClean     = "clean"
	NameStyles    = "styles"
	NameVendorCSS = "vendorCSS"
	NameScripts   = "scripts"
	NameTemplates = "templates"
	NameImages    = "images"
	NameFonts     = "fonts"
	NameWatch     = "watch"
	NameServer    = "server"
	NameBuild     = "build"
	NameDefault   = "default"
)

// Server is the dev server run by the server task.
type Server interface {
	Run(ctx context.Context) error
}

// Deps are the collaborators shared by tasks.
type Deps struct {
	Logger logging.Logger
	// Runner reruns tasks on file changes.
	Runner *pipeline.Runner
	Server Server
}

// Set holds every task of a site.
type Set struct {
	Clean     *pipeline.Task
	Styles    *pipeline.Task
	VendorCSS *pipeline.Task
	Scripts   *pipeline.Task
	Templates *pipeline.Task
	Images    *pipeline.Task
	Fonts     *pipeline.Task
	Watch     *pipeline.Task
	Server    *pipeline.Task
	Build     *pipeline.Task
	Default   *pipeline.Task
}

// NewSet builds all tasks for cfg. It fails when tasks that run in parallel
// declare overlapping destinations.
func NewSet(cfg *config.Config, deps Deps) (*Set, error) {
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	defines, err := cfg.Defines()
	if err != nil {
		return nil, err
	}

	paths := cfg.PathTable()
	s := &Set{
		Clean:     Clean(paths),
		Styles:    Styles(paths, cfg.Styles),
		VendorCSS: VendorCSS(paths, cfg.Vendor),
		Scripts:   Scripts(paths, cfg.Scripts, defines),
		Templates: Templates(paths, TemplateOptions{
			Pretty: cfg.Templates.Pretty,
			Layout: cfg.Templates.Layout,
			Blur:   blurSelectors(cfg.Blur),
		}),
		Images: Copy(NameImages, paths.MustLookup(config.CategoryImages)),
		Fonts:  Copy(NameFonts, paths.MustLookup(config.CategoryFonts)),
		Server: Serve(deps.Server),
	}
	s.Watch = Watch(Bindings(cfg, s), cfg.Watch.Debounce, deps.Runner, deps.Logger)

	assets, err := pipeline.Parallel("assets", s.Styles, s.VendorCSS, s.Scripts, s.Templates, s.Images, s.Fonts)
	if err != nil {
		return nil, err
	}
	serve, err := pipeline.Parallel("serve", s.Watch, s.Server)
	if err != nil {
		return nil, err
	}

	s.Build = pipeline.Series(NameBuild, s.Clean, assets)
	s.Build.Description = "clean the output root, then build every asset"
	s.Default = pipeline.Series(NameDefault, s.Clean, assets, serve)
	s.Default.Description = "build, then watch sources and serve the output root"
	return s, nil
}

// Register adds every task of the set to reg.
func (s *Set) Register(reg *pipeline.Registry) error {
	entries := []struct {
		task    *pipeline.Task
		aliases []string
	}{
		{s.Clean, nil},
		{s.Styles, nil},
		{s.VendorCSS, []string{"vendor-css"}},
		{s.Scripts, nil},
		{s.Templates, nil},
		{s.Images, nil},
		{s.Fonts, nil},
		{s.Watch, nil},
		{s.Server, []string{"serve"}},
		{s.Build, nil},
		{s.Default, nil},
	}
	for _, e := range entries {
		if err := reg.Register(e.task, e.aliases...); err != nil {
			return err
		}
	}
	return nil
}

// Serve runs the dev server until the context ends.
func Serve(srv Server) *pipeline.Task {
	return pipeline.New(NameServer, "serve the output root with live reload", func(ctx context.Context) error {
		if srv == nil {
			return errors.New("no dev server configured")
		}
		return srv.Run(ctx)
	})
}
