// Package build produces the site's output files: stylesheet and script
// bundles through esbuild, ordered concatenation, and verbatim asset copies.
package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	siteerrors "github.com/conneroisu/sitesmith/internal/errors"
)

// BundlerOptions configures one esbuild run.
type BundlerOptions struct {
	Entry     string            `json:"entry"`
	Outfile   string            `json:"outfile"`
	Minify    bool              `json:"minify"`
	SourceMap string            `json:"source_map"` // "inline", "external" or "none"
	Format    string            `json:"format"`     // "iife", "esm", "cjs"
	Target    string            `json:"target"`     // "es2017", "esnext", ...
	Engines   []string          `json:"engines"`    // "chrome58", "safari11", ...
	Define    map[string]string `json:"define"`
	External  []string          `json:"external"`
}

// Files referenced from stylesheets through url() are copied by the asset
// tasks, not bundled.
var assetExternals = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.svg", "*.webp", "*.avif", "*.ico",
	"*.woff", "*.woff2", "*.ttf", "*.otf", "*.eot",
}

// BundleStyles compiles a stylesheet entry point and everything it imports
// into plain CSS lowered and prefixed for opts.Engines, then writes it.
func BundleStyles(ctx context.Context, opts BundlerOptions) ([]string, error) {
	build, err := baseOptions(opts, "STYLE")
	if err != nil {
		return nil, err
	}
	build.External = append(append([]string(nil), assetExternals...), opts.External...)
	return run(ctx, build, "STYLE_COMPILE", isCSSSyntaxError)
}

// BundleScripts bundles a script entry point.
func BundleScripts(ctx context.Context, opts BundlerOptions) ([]string, error) {
	build, err := baseOptions(opts, "SCRIPT")
	if err != nil {
		return nil, err
	}

	format, err := parseFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	target, err := parseTarget(opts.Target)
	if err != nil {
		return nil, err
	}
	build.Format = format
	build.Target = target
	build.Define = opts.Define
	build.External = opts.External
	return run(ctx, build, "SCRIPT_COMPILE", nil)
}

func baseOptions(opts BundlerOptions, kind string) (api.BuildOptions, error) {
	if _, err := os.Stat(opts.Entry); err != nil {
		return api.BuildOptions{}, siteerrors.NewIOError(kind+"_ENTRY", "entry point not found", err).
			WithLocation(opts.Entry, 0, 0)
	}

	sourcemap, err := parseSourceMap(opts.SourceMap)
	if err != nil {
		return api.BuildOptions{}, err
	}
	engines, err := parseEngines(opts.Engines)
	if err != nil {
		return api.BuildOptions{}, err
	}

	return api.BuildOptions{
		EntryPoints:       []string{opts.Entry},
		Outfile:           opts.Outfile,
		Bundle:            true,
		Write:             false,
		MinifyWhitespace:  opts.Minify,
		MinifyIdentifiers: opts.Minify,
		MinifySyntax:      opts.Minify,
		Sourcemap:         sourcemap,
		Engines:           engines,
		LogLevel:          api.LogLevelSilent,
	}, nil
}

// isCSSSyntaxError selects the syntax warnings esbuild recovers from. A
// stylesheet compiler rejects these, so they fail the build.
func isCSSSyntaxError(m api.Message) bool {
	return m.ID == "css-syntax-error"
}

func run(ctx context.Context, opts api.BuildOptions, code string, fatalWarning func(api.Message) bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := api.Build(opts)
	errs := result.Errors
	if fatalWarning != nil {
		for _, w := range result.Warnings {
			if fatalWarning(w) {
				errs = append(errs, w)
			}
		}
	}
	if len(errs) > 0 {
		return nil, compileError(code, errs)
	}

	written := make([]string, 0, len(result.OutputFiles))
	for _, f := range result.OutputFiles {
		if err := WriteFile(f.Path, f.Contents); err != nil {
			return written, err
		}
		written = append(written, f.Path)
	}
	return written, nil
}

func compileError(code string, msgs []api.Message) *siteerrors.SiteError {
	first := msgs[0]
	text := first.Text
	if len(msgs) > 1 {
		text = fmt.Sprintf("%s (and %d more errors)", text, len(msgs)-1)
	}

	err := siteerrors.NewCompileError(code, text, nil)
	if loc := first.Location; loc != nil {
		err = err.WithLocation(loc.File, loc.Line, loc.Column+1)
	}
	return err
}

// WriteFile writes data to path, creating parent directories.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return siteerrors.NewIOError("MKDIR", "cannot create output directory", err).WithLocation(path, 0, 0)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return siteerrors.NewIOError("WRITE", "cannot write output file", err).WithLocation(path, 0, 0)
	}
	return nil
}

func parseSourceMap(mode string) (api.SourceMap, error) {
	switch strings.ToLower(mode) {
	case "", "none":
		return api.SourceMapNone, nil
	case "inline":
		return api.SourceMapInline, nil
	case "external":
		return api.SourceMapLinked, nil
	}
	return api.SourceMapNone, siteerrors.NewConfigError("SOURCEMAP", fmt.Sprintf("unknown source map mode %q", mode))
}

func parseFormat(format string) (api.Format, error) {
	switch strings.ToLower(format) {
	case "", "iife":
		return api.FormatIIFE, nil
	case "esm":
		return api.FormatESModule, nil
	case "cjs":
		return api.FormatCommonJS, nil
	}
	return api.FormatDefault, siteerrors.NewConfigError("FORMAT", fmt.Sprintf("unknown script format %q", format))
}

var targets = map[string]api.Target{
	"esnext": api.ESNext,
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es6":    api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
}

func parseTarget(target string) (api.Target, error) {
	if target == "" {
		return api.ESNext, nil
	}
	if t, ok := targets[strings.ToLower(target)]; ok {
		return t, nil
	}
	return api.DefaultTarget, siteerrors.NewConfigError("TARGET", fmt.Sprintf("unknown script target %q", target))
}

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

var enginePattern = regexp.MustCompile(`^([a-z]+)(\d+(?:\.\d+)*)$`)

// parseEngines turns "chrome58" style targets into esbuild engines.
func parseEngines(specs []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(specs))
	for _, spec := range specs {
		m := enginePattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(spec)))
		if m == nil {
			return nil, siteerrors.NewConfigError("ENGINE", fmt.Sprintf("malformed browser target %q", spec))
		}
		name, ok := engineNames[m[1]]
		if !ok {
			return nil, siteerrors.NewConfigError("ENGINE", fmt.Sprintf("unknown browser %q in target %q", m[1], spec))
		}
		engines = append(engines, api.Engine{Name: name, Version: m[2]})
	}
	return engines, nil
}
