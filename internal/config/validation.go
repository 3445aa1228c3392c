package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	siteerrors "github.com/conneroisu/sitesmith/internal/errors"
)

var dangerousChars = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validatePathsConfig(&config.Paths); err != nil {
		return fmt.Errorf("paths config: %w", err)
	}

	if err := validateVendorConfig(&config.Vendor); err != nil {
		return fmt.Errorf("vendor config: %w", err)
	}

	if config.Styles.Suffix == "" {
		return fmt.Errorf("styles config: suffix cannot be empty")
	}
	if err := validateSourceMap(config.Styles.SourceMap); err != nil {
		return fmt.Errorf("styles config: %w", err)
	}

	if err := validateSourceMap(config.Scripts.SourceMap); err != nil {
		return fmt.Errorf("scripts config: %w", err)
	}
	switch config.Scripts.Format {
	case "iife", "esm", "cjs":
	default:
		return fmt.Errorf("scripts config: unsupported format %q (iife, esm, cjs)", config.Scripts.Format)
	}
	if _, err := config.Defines(); err != nil {
		return fmt.Errorf("scripts config: %w", err)
	}

	if config.Watch.Debounce < 0 {
		return fmt.Errorf("watch config: debounce %s is negative", config.Watch.Debounce)
	}
	if config.Watch.Debounce > time.Minute {
		return fmt.Errorf("watch config: debounce %s exceeds one minute", config.Watch.Debounce)
	}

	for _, r := range config.Errors.Recoverable {
		if _, err := siteerrors.ParseErrorType(r); err != nil {
			return fmt.Errorf("errors config: %w", err)
		}
	}

	switch config.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log config: unsupported format %q (console, json)", config.Log.Format)
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// 0 asks the kernel for a free port, which tests rely on.
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		for _, char := range append(dangerousChars, "\\") {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

func validatePathsConfig(config *PathsConfig) error {
	if err := validateRoot(config.Root); err != nil {
		return err
	}

	assets := map[Category]AssetPaths{
		CategoryStyles:    config.Styles,
		CategoryScripts:   config.Scripts,
		CategoryTemplates: config.Templates,
		CategoryImages:    config.Images,
		CategoryFonts:     config.Fonts,
	}
	for _, c := range Categories {
		a := assets[c]
		if strings.TrimSpace(a.Src) == "" {
			return fmt.Errorf("%s: src glob cannot be empty", c)
		}
		if err := validatePath(a.Dest); err != nil {
			return fmt.Errorf("%s: invalid dest '%s': %w", c, a.Dest, err)
		}
		if !within(config.Root, a.Dest) {
			return fmt.Errorf("%s: dest '%s' is outside root '%s'", c, a.Dest, config.Root)
		}
	}

	for _, c := range []Category{CategoryStyles, CategoryScripts, CategoryTemplates} {
		if strings.TrimSpace(assets[c].Entry) == "" {
			return fmt.Errorf("%s: entry cannot be empty", c)
		}
	}

	return nil
}

// validateRoot guards the directory the clean task deletes.
func validateRoot(root string) error {
	if err := validatePath(root); err != nil {
		return fmt.Errorf("invalid root '%s': %w", root, err)
	}
	clean := filepath.Clean(root)
	if clean == "." || filepath.IsAbs(clean) {
		return fmt.Errorf("root '%s' must be a relative subdirectory of the project", root)
	}
	return nil
}

func validateVendorConfig(config *VendorConfig) error {
	if config.Output == "" {
		return fmt.Errorf("output name cannot be empty")
	}
	if strings.ContainsAny(config.Output, `/\`) {
		return fmt.Errorf("output '%s' must be a file name, not a path", config.Output)
	}
	for _, f := range config.CSS {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("vendor list contains an empty path")
		}
	}
	return nil
}

func validateSourceMap(mode string) error {
	switch mode {
	case SourceMapInline, SourceMapExternal, SourceMapNone:
		return nil
	default:
		return fmt.Errorf("unsupported sourcemap mode %q (inline, external, none)", mode)
	}
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

// within reports whether path is root or lies below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
