package tasks

import (
	"context"
	"path/filepath"

	"github.com/conneroisu/sitesmith/internal/blur"
	"github.com/conneroisu/sitesmith/internal/build"
	"github.com/conneroisu/sitesmith/internal/config"
	"github.com/conneroisu/sitesmith/internal/pipeline"
	"github.com/conneroisu/sitesmith/internal/renderer"
)

// TemplateOptions configure page rendering.
type TemplateOptions struct {
	Pretty bool
	Layout string
	Blur   blur.Selectors
}

// Templates renders every page matched by the templates entry glob to
// <dest>/<basename>.html. The remaining files of the templates glob are
// shared layouts and partials.
func Templates(paths config.PathTable, opts TemplateOptions) *pipeline.Task {
	entry := paths.MustLookup(config.CategoryTemplates)
	ropts := renderer.Options{
		Layout: opts.Layout,
		Pretty: opts.Pretty,
		Assets: AssetPrefixes(paths),
		Blur:   opts.Blur,
	}

	return pipeline.New(NameTemplates, "render pages to HTML", func(ctx context.Context) error {
		pages, err := build.Match(entry.Entry)
		if err != nil {
			return err
		}
		all, err := build.Match(entry.Src)
		if err != nil {
			return err
		}

		r, err := renderer.New(ropts, without(all, pages))
		if err != nil {
			return err
		}

		for _, page := range pages {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := r.Render(page)
			if err != nil {
				return err
			}
			if err := build.WriteFile(filepath.Join(entry.Dest, renderer.OutputName(page)), out); err != nil {
				return err
			}
		}
		return nil
	}, pipeline.Output{Dir: entry.Dest, Files: []string{"*.html"}})
}

// AssetPrefixes maps each asset category to its URL path below the output
// root, for the asset template function.
func AssetPrefixes(paths config.PathTable) map[string]string {
	out := make(map[string]string)
	for _, e := range paths.Entries() {
		if e.Category == config.CategoryTemplates {
			continue
		}
		rel, err := filepath.Rel(paths.Root(), e.Dest)
		if err != nil {
			continue
		}
		out[string(e.Category)] = "/" + filepath.ToSlash(rel)
	}
	return out
}

func without(all, drop []string) []string {
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[filepath.Clean(d)] = true
	}
	var out []string
	for _, a := range all {
		if !skip[filepath.Clean(a)] {
			out = append(out, a)
		}
	}
	return out
}

func blurSelectors(c config.BlurConfig) blur.Selectors {
	return blur.Selectors{Image: c.Image, Section: c.Section, Target: c.Target}
}
