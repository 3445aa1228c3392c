package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/conneroisu/sitesmith/internal/config"
	siteerrors "github.com/conneroisu/sitesmith/internal/errors"
	"github.com/conneroisu/sitesmith/internal/logging"
	"github.com/conneroisu/sitesmith/internal/pipeline"
	"github.com/conneroisu/sitesmith/internal/watcher"
)

// Binding reruns tasks, in order, when a file matching one of its patterns
// changes.
type Binding struct {
	Name     string
	Patterns []string
	Tasks    []*pipeline.Task
}

// Bindings returns the watch bindings of a site. Image changes rerun both
// asset copies; font changes rerun the font copy.
func Bindings(cfg *config.Config, s *Set) []Binding {
	paths := cfg.PathTable()
	src := func(c config.Category) []string {
		return []string{paths.MustLookup(c).Src}
	}
	return []Binding{
		{Name: NameScripts, Patterns: src(config.CategoryScripts), Tasks: []*pipeline.Task{s.Scripts}},
		{Name: NameVendorCSS, Patterns: append([]string(nil), cfg.Vendor.CSS...), Tasks: []*pipeline.Task{s.VendorCSS}},
		{Name: NameStyles, Patterns: src(config.CategoryStyles), Tasks: []*pipeline.Task{s.Styles}},
		{Name: NameTemplates, Patterns: src(config.CategoryTemplates), Tasks: []*pipeline.Task{s.Templates}},
		{Name: NameImages, Patterns: src(config.CategoryImages), Tasks: []*pipeline.Task{s.Images, s.Fonts}},
		{Name: NameFonts, Patterns: src(config.CategoryFonts), Tasks: []*pipeline.Task{s.Fonts}},
	}
}

// Watch reruns the bound tasks on every matching change until the context
// ends. A fatal error in a rerun is logged and watching continues.
func Watch(bindings []Binding, debounce time.Duration, runner *pipeline.Runner, logger logging.Logger) *pipeline.Task {
	if logger == nil {
		logger = logging.NewNop()
	}
	return pipeline.New(NameWatch, "rerun tasks when their sources change", func(ctx context.Context) error {
		if runner == nil {
			return errors.New("watch needs a task runner")
		}

		fw, err := watcher.NewFileWatcher(logger, debounce)
		if err != nil {
			return siteerrors.NewIOError("WATCH", "cannot create file watcher", err)
		}
		fw.AddFilter(watcher.NoGitFilter)
		fw.AddFilter(watcher.NoEditorTempFilter)

		for _, b := range bindings {
			if err := fw.Bind(b.Name, b.Patterns, rerun(runner, b.Tasks)); err != nil {
				_ = fw.Close()
				return siteerrors.NewIOError("WATCH", "cannot watch sources", err)
			}
		}

		logger.Info(ctx, "Watching sources", "bindings", len(bindings))
		if err := fw.Run(ctx); err != nil {
			return siteerrors.NewIOError("WATCH", "file watcher failed", err)
		}
		return ctx.Err()
	})
}

func rerun(runner *pipeline.Runner, tasks []*pipeline.Task) watcher.ChangeHandler {
	return func(ctx context.Context, _ []watcher.ChangeEvent) error {
		var errs []error
		for _, t := range tasks {
			if err := runner.Run(ctx, t); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
