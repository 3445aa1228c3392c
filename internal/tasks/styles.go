package tasks

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/conneroisu/sitesmith/internal/build"
	"github.com/conneroisu/sitesmith/internal/config"
	"github.com/conneroisu/sitesmith/internal/pipeline"
)

// Styles compiles the stylesheet entry point to <base><suffix>.css in the
// styles destination.
func Styles(paths config.PathTable, opts config.StylesConfig) *pipeline.Task {
	entry := paths.MustLookup(config.CategoryStyles)
	name := strings.TrimSuffix(filepath.Base(entry.Entry), filepath.Ext(entry.Entry)) + opts.Suffix + ".css"

	return pipeline.New(NameStyles, "compile, prefix and minify the stylesheet entry point", func(ctx context.Context) error {
		_, err := build.BundleStyles(ctx, build.BundlerOptions{
			Entry:     entry.Entry,
			Outfile:   filepath.Join(entry.Dest, name),
			Minify:    opts.Minify,
			SourceMap: opts.SourceMap,
			Engines:   opts.Targets,
		})
		return err
	}, pipeline.Output{Dir: entry.Dest, Files: []string{name, name + ".map"}})
}

// VendorCSS concatenates the vendor stylesheets, in list order, into the
// styles destination.
func VendorCSS(paths config.PathTable, vendor config.VendorConfig) *pipeline.Task {
	dest := paths.MustLookup(config.CategoryStyles).Dest
	files := append([]string(nil), vendor.CSS...)

	return pipeline.New(NameVendorCSS, "concatenate vendor stylesheets", func(ctx context.Context) error {
		return build.Concat(ctx, files, filepath.Join(dest, vendor.Output))
	}, pipeline.Output{Dir: dest, Files: []string{vendor.Output}})
}
