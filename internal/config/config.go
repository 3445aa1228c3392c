// Package config provides configuration management for sitesmith using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration is loaded once, validated, and then passed by value into
// every task. It carries the Path Table (source globs and destinations per
// asset category), the ordered vendor stylesheet list, compiler and bundler
// options, dev server settings, and the error policy.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	siteerrors "github.com/conneroisu/sitesmith/internal/errors"
)

// Config is the complete, immutable-by-convention configuration of a site.
type Config struct {
	Paths     PathsConfig     `mapstructure:"paths" yaml:"paths"`
	Vendor    VendorConfig    `mapstructure:"vendor" yaml:"vendor"`
	Styles    StylesConfig    `mapstructure:"styles" yaml:"styles"`
	Scripts   ScriptsConfig   `mapstructure:"scripts" yaml:"scripts"`
	Templates TemplatesConfig `mapstructure:"templates" yaml:"templates"`
	Blur      BlurConfig      `mapstructure:"blur" yaml:"blur"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Watch     WatchConfig     `mapstructure:"watch" yaml:"watch"`
	Errors    ErrorsConfig    `mapstructure:"errors" yaml:"errors"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// PathsConfig is the raw form of the Path Table.
type PathsConfig struct {
	Root      string     `mapstructure:"root" yaml:"root"`
	Styles    AssetPaths `mapstructure:"styles" yaml:"styles"`
	Scripts   AssetPaths `mapstructure:"scripts" yaml:"scripts"`
	Templates AssetPaths `mapstructure:"templates" yaml:"templates"`
	Images    AssetPaths `mapstructure:"images" yaml:"images"`
	Fonts     AssetPaths `mapstructure:"fonts" yaml:"fonts"`
}

// AssetPaths describes one asset category. Src is the watched glob, Entry the
// file a compiler starts from (for templates: the glob of pages to render),
// Dest the output directory.
type AssetPaths struct {
	Src   string `mapstructure:"src" yaml:"src"`
	Entry string `mapstructure:"entry" yaml:"entry,omitempty"`
	Dest  string `mapstructure:"dest" yaml:"dest"`
}

type VendorConfig struct {
	CSS    []string `mapstructure:"css" yaml:"css"`
	Output string   `mapstructure:"output" yaml:"output"`
}

type StylesConfig struct {
	Suffix    string   `mapstructure:"suffix" yaml:"suffix"`
	Targets   []string `mapstructure:"targets" yaml:"targets"`
	SourceMap string   `mapstructure:"sourcemap" yaml:"sourcemap"`
	Minify    bool     `mapstructure:"minify" yaml:"minify"`
}

// ScriptsConfig is the bundler configuration for the script entry point.
type ScriptsConfig struct {
	Minify    bool     `mapstructure:"minify" yaml:"minify"`
	SourceMap string   `mapstructure:"sourcemap" yaml:"sourcemap"`
	Format    string   `mapstructure:"format" yaml:"format"`
	Target    string   `mapstructure:"target" yaml:"target"`
	Define    []string `mapstructure:"define" yaml:"define"`
	External  []string `mapstructure:"external" yaml:"external"`
}

type TemplatesConfig struct {
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
	Layout string `mapstructure:"layout" yaml:"layout"`
}

type BlurConfig struct {
	Image   string `mapstructure:"image" yaml:"image"`
	Section string `mapstructure:"section" yaml:"section"`
	Target  string `mapstructure:"target" yaml:"target"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	Open           bool     `mapstructure:"open" yaml:"open"`
	LiveReload     bool     `mapstructure:"live_reload" yaml:"live_reload"`
	CSSInjection   bool     `mapstructure:"css_injection" yaml:"css_injection"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type ErrorsConfig struct {
	Recoverable []string `mapstructure:"recoverable" yaml:"recoverable"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers the default configuration on v. The defaults
// reproduce the classic app/ -> dist/ front-end layout.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("paths.root", "dist")
	v.SetDefault("paths.styles.src", "app/styles/**/*.css")
	v.SetDefault("paths.styles.entry", "app/styles/app.css")
	v.SetDefault("paths.styles.dest", "dist/assets/styles")
	v.SetDefault("paths.scripts.src", "app/scripts/**/*.js")
	v.SetDefault("paths.scripts.entry", "app/scripts/app.js")
	v.SetDefault("paths.scripts.dest", "dist/assets/scripts")
	v.SetDefault("paths.templates.src", "app/templates/**/*.{html,tmpl,md}")
	v.SetDefault("paths.templates.entry", "app/templates/pages/*.{html,tmpl,md}")
	v.SetDefault("paths.templates.dest", "dist")
	v.SetDefault("paths.images.src", "app/images/**/*.*")
	v.SetDefault("paths.images.dest", "dist/assets/images")
	v.SetDefault("paths.fonts.src", "app/fonts/**/*.*")
	v.SetDefault("paths.fonts.dest", "dist/assets/fonts")

	v.SetDefault("vendor.css", []string{"node_modules/normalize.css/normalize.css"})
	v.SetDefault("vendor.output", "vendor.min.css")

	v.SetDefault("styles.suffix", ".min")
	v.SetDefault("styles.targets", []string{"chrome58", "edge16", "firefox57", "safari11", "ios11"})
	v.SetDefault("styles.sourcemap", SourceMapInline)
	v.SetDefault("styles.minify", true)

	v.SetDefault("scripts.minify", true)
	v.SetDefault("scripts.sourcemap", SourceMapExternal)
	v.SetDefault("scripts.format", "iife")
	v.SetDefault("scripts.target", "es2017")
	v.SetDefault("scripts.define", []string{})
	v.SetDefault("scripts.external", []string{})

	v.SetDefault("templates.pretty", true)
	v.SetDefault("templates.layout", "layout")

	v.SetDefault("blur.image", ".blur__back")
	v.SetDefault("blur.section", ".reviews")
	v.SetDefault("blur.target", ".blur-form")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.open", false)
	v.SetDefault("server.live_reload", true)
	v.SetDefault("server.css_injection", true)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("watch.debounce", time.Duration(0))

	v.SetDefault("errors.recoverable", []string{"compile"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Source map modes shared by styles and scripts.
const (
	SourceMapInline   = "inline"
	SourceMapExternal = "external"
	SourceMapNone     = "none"
)

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads, normalizes and validates the configuration held by v.
// Defaults are registered on v first, so keys set explicitly win.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// Viper hands back comma separated env values as a single element.
	cfg.Vendor.CSS = splitList(v.GetStringSlice("vendor.css"))
	cfg.Styles.Targets = splitList(v.GetStringSlice("styles.targets"))
	cfg.Errors.Recoverable = splitList(v.GetStringSlice("errors.recoverable"))

	if err := validateConfig(&cfg); err != nil {
		return nil, siteerrors.NewValidationError("CONFIG_INVALID", "invalid configuration", err)
	}

	return &cfg, nil
}

// Default returns the default configuration without reading any file or
// environment variable.
func Default() *Config {
	cfg, err := LoadFrom(viper.New())
	if err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

// PathTable returns the Path Table described by the configuration.
func (c *Config) PathTable() PathTable {
	return NewPathTable(c.Paths)
}

// Defines parses the scripts.define entries ("KEY=VALUE") into a map.
func (c *Config) Defines() (map[string]string, error) {
	out := make(map[string]string, len(c.Scripts.Define))
	for _, d := range c.Scripts.Define {
		key, value, ok := strings.Cut(d, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("define %q must have the form KEY=VALUE", d)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
