// Package cmd provides the sitesmith command line.
//
// Configuration is read from, in order of precedence:
//  1. command-line flags (--port, --log-level, ...)
//  2. SITESMITH_* environment variables, including those loaded from .env
//  3. the configuration file: --config, SITESMITH_CONFIG_FILE, or .sitesmith.yml
//  4. built-in defaults
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/sitesmith/internal/tasks"
)

const envPrefix = "SITESMITH"

var cfgFile string

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"host":       "server.host",
	"port":       "server.port",
	"open":       "server.open",
}

// rootCmd runs the default task: build everything, then watch and serve.
var rootCmd = &cobra.Command{
	Use:   "sitesmith",
	Short: "Build, watch and serve a static front-end site",
	Long: `sitesmith compiles stylesheets, bundles scripts, renders page templates and
copies images and fonts from app/ into dist/, then watches the sources and
serves the result with live reload.

Run without a command to clean, build, watch and serve. Run a task by name
to execute just that task.

Quick Start:
  sitesmith                 Clean, build, then watch and serve
  sitesmith build           Clean and build once
  sitesmith styles          Rebuild the stylesheet
  sitesmith list            Show every task and where it writes`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTask(cmd, tasks.NameDefault, false)
	},
}

// Execute runs the command line until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .sitesmith.yml, can also use SITESMITH_CONFIG_FILE)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.String("host", "localhost", "dev server host")
	flags.IntP("port", "p", 3000, "dev server port")
	flags.Bool("open", false, "open a browser once the dev server is up")
}

// initConfig points viper at the configuration sources. A missing default
// configuration file is fine; a missing explicit one is not.
func initConfig(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	explicit := true
	switch {
	case cfgFile != "":
		viper.SetConfigFile(cfgFile)
	case os.Getenv(envPrefix+"_CONFIG_FILE") != "":
		viper.SetConfigFile(os.Getenv(envPrefix + "_CONFIG_FILE"))
	default:
		explicit = false
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sitesmith")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := bindFlags(cmd.Root().PersistentFlags()); err != nil {
		return err
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

func bindFlags(flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		err = viper.BindPFlag(key, f)
	})
	return err
}
