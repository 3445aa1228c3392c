package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/sitesmith/internal/config"
	"github.com/conneroisu/sitesmith/internal/version"
)

var siteFiles = map[string]string{
	"app/styles/app.css":                       "body { margin: 0 }\n",
	"app/scripts/app.js":                       "console.log('hi');\n",
	"app/templates/pages/index.html":           "<!DOCTYPE html><html><head><title>Home</title></head><body><h1>Home</h1></body></html>",
	"app/images/logo.svg":                      "<svg/>",
	"node_modules/normalize.css/normalize.css": "/* normalize */",
}

// inProject makes a fresh directory, optionally holding the sample site, the
// working directory of the test.
func inProject(t *testing.T, withSite bool) string {
	t.Helper()
	dir := t.TempDir()
	if withSite {
		for name, content := range siteFiles {
			p := filepath.Join(dir, filepath.FromSlash(name))
			require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
			require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		}
	}
	t.Chdir(dir)
	return dir
}

func resetState() {
	viper.Reset()
	cfgFile = ""
	versionFormat = "text"
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	rootCmd.PersistentFlags().VisitAll(reset)
	for _, c := range rootCmd.Commands() {
		c.Flags().VisitAll(reset)
	}
	keepGoing = false
}

func executeContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	resetState()
	t.Cleanup(resetState)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), args...)
}

func loadPrinted(t *testing.T, out string) *config.Config {
	t.Helper()
	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	return &cfg
}

func TestConfigCommandPrintsDefaults(t *testing.T) {
	inProject(t, false)

	out, err := execute(t, "config")
	require.NoError(t, err)

	if diff := cmp.Diff(config.Default(), loadPrinted(t, out), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("printed configuration differs from defaults (-want +got):\n%s", diff)
	}
}

func TestConfigPrecedence(t *testing.T) {
	dir := inProject(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".sitesmith.yml"),
		[]byte("server:\n  port: 5000\n  host: file.local\nstyles:\n  minify: false\n"), 0o644))
	t.Setenv("SITESMITH_SERVER_HOST", "env.local")

	out, err := execute(t, "config", "--port", "6000")
	require.NoError(t, err)

	cfg := loadPrinted(t, out)
	assert.Equal(t, 6000, cfg.Server.Port)
	assert.Equal(t, "env.local", cfg.Server.Host)
	assert.False(t, cfg.Styles.Minify)
}

func TestExplicitConfigFile(t *testing.T) {
	dir := inProject(t, false)
	custom := filepath.Join(dir, "site.yaml")
	require.NoError(t, os.WriteFile(custom, []byte("log:\n  level: debug\n"), 0o644))

	out, err := execute(t, "config", "--config", custom)
	require.NoError(t, err)
	assert.Equal(t, "debug", loadPrinted(t, out).Log.Level)

	t.Setenv("SITESMITH_CONFIG_FILE", custom)
	out, err = execute(t, "config")
	require.NoError(t, err)
	assert.Equal(t, "debug", loadPrinted(t, out).Log.Level)

	_, err = execute(t, "config", "--config", filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}

func TestDotEnvIsLoaded(t *testing.T) {
	dir := inProject(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SITESMITH_SERVER_PORT=7000\n"), 0o644))
	// Restored to unset once the test ends.
	t.Setenv("SITESMITH_SERVER_PORT", "")
	require.NoError(t, os.Unsetenv("SITESMITH_SERVER_PORT"))

	out, err := execute(t, "config")
	require.NoError(t, err)
	assert.Equal(t, 7000, loadPrinted(t, out).Server.Port)
}

func TestInvalidConfigurationFails(t *testing.T) {
	inProject(t, false)
	t.Setenv("SITESMITH_SERVER_PORT", "-1")

	_, err := execute(t, "config")
	assert.Error(t, err)
}

func TestListShowsTasksAndOutputs(t *testing.T) {
	inProject(t, false)

	out, err := execute(t, "list")
	require.NoError(t, err)

	for _, want := range []string{"TASK", "clean", "vendorCSS", "vendor-css", "serve", "default", "dist/assets/styles/{vendor.min.css}", "dist/**"} {
		assert.Contains(t, out, want)
	}
}

func TestVersionCommand(t *testing.T) {
	inProject(t, false)

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "sitesmith ")

	out, err = execute(t, "version", "--format", "json")
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info.Version)

	_, err = execute(t, "version", "--format", "xml")
	assert.Error(t, err)
}

func TestBuildCommand(t *testing.T) {
	inProject(t, true)
	require.NoError(t, os.MkdirAll("dist/stale", 0o755))

	_, err := execute(t, "build")
	require.NoError(t, err)

	for _, f := range []string{
		"dist/index.html",
		"dist/assets/styles/app.min.css",
		"dist/assets/styles/vendor.min.css",
		"dist/assets/scripts/app.js",
		"dist/assets/images/logo.svg",
	} {
		assert.FileExists(t, f)
	}
	assert.NoDirExists(t, "dist/stale")
}

func TestTaskCommandsAndAliases(t *testing.T) {
	inProject(t, true)

	_, err := execute(t, "vendor-css")
	require.NoError(t, err)
	data, err := os.ReadFile("dist/assets/styles/vendor.min.css")
	require.NoError(t, err)
	assert.Equal(t, "/* normalize */", string(data))

	_, err = execute(t, "clean")
	require.NoError(t, err)
	assert.NoDirExists(t, "dist")
}

func TestFatalTaskErrorFailsCommand(t *testing.T) {
	inProject(t, true)
	require.NoError(t, os.Remove("node_modules/normalize.css/normalize.css"))

	_, err := execute(t, "vendorCSS")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vendorCSS")
}

func TestBuildFailsOnCompileErrors(t *testing.T) {
	inProject(t, true)
	require.NoError(t, os.WriteFile("app/styles/app.css", []byte("@import \"./nope.css\";\n"), 0o644))

	_, err := execute(t, "build")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build failed")

	_, err = execute(t, "build", "--keep-going")
	assert.NoError(t, err)
	assert.FileExists(t, "dist/index.html")
}

func TestRecoverableErrorDoesNotFailCommand(t *testing.T) {
	inProject(t, true)
	require.NoError(t, os.WriteFile("app/styles/app.css", []byte("@import \"./nope.css\";\n"), 0o644))

	_, err := execute(t, "styles")
	assert.NoError(t, err)
}

func TestInterruptedWatchExitsCleanly(t *testing.T) {
	inProject(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := executeContext(t, ctx, "watch")
	assert.NoError(t, err)
}

func TestUnknownCommand(t *testing.T) {
	inProject(t, false)

	_, err := execute(t, "nope")
	assert.Error(t, err)
}
