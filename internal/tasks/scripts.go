package tasks

import (
	"context"
	"maps"
	"path/filepath"
	"strings"

	"github.com/conneroisu/sitesmith/internal/build"
	"github.com/conneroisu/sitesmith/internal/config"
	"github.com/conneroisu/sitesmith/internal/pipeline"
)

// Scripts bundles the script entry point into the scripts destination.
func Scripts(paths config.PathTable, opts config.ScriptsConfig, defines map[string]string) *pipeline.Task {
	entry := paths.MustLookup(config.CategoryScripts)
	name := strings.TrimSuffix(filepath.Base(entry.Entry), filepath.Ext(entry.Entry)) + ".js"
	defines = maps.Clone(defines)
	external := append([]string(nil), opts.External...)

	return pipeline.New(NameScripts, "bundle the script entry point", func(ctx context.Context) error {
		_, err := build.BundleScripts(ctx, build.BundlerOptions{
			Entry:     entry.Entry,
			Outfile:   filepath.Join(entry.Dest, name),
			Minify:    opts.Minify,
			SourceMap: opts.SourceMap,
			Format:    opts.Format,
			Target:    opts.Target,
			Define:    defines,
			External:  external,
		})
		return err
	}, pipeline.Output{Dir: entry.Dest, Files: []string{name, name + ".map"}})
}
