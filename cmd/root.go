// Package cmd provides the command-line interface for assetpipe.
//
// Configuration is read, highest priority first, from command-line flags,
// ASSETPIPE_<SECTION>_<OPTION> environment variables, and the config file.
// The config file is the --config flag, else ASSETPIPE_CONFIG_FILE, else
// .assetpipe.yml in the working directory. A .env file in the working
// directory is loaded into the environment before any of that.
package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
)

var (
	cfgFile       string
	configReadErr error
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "assetpipe",
	Short: "Compile, fingerprint and inject stylesheets into static HTML",
	Long: `assetpipe compiles stylesheets, writes them under content-hashed names,
records them in a manifest and renders HTML templates with the matching
<link> tags. The dev server rebuilds on change and live-reloads the browser.

Running assetpipe without a command cleans the build root and starts the
dev server.

Quick Start:
  assetpipe init      Write .assetpipe.yml and an example site
  assetpipe           Clean, build, watch and serve
  assetpipe build     One-shot production build
  assetpipe clean     Remove the build root`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDev(cmd, true)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Errors the ErrorHandler already logged are not printed again.
func Execute() error {
	err := rootCmd.Execute()
	var logged *loggedError
	if err != nil && !stderrors.As(err, &logged) {
		rootCmd.PrintErrln("Error:", err)
	}
	return err
}

// loggedError marks an error that went through the ErrorHandler.
type loggedError struct {
	err error
}

func (e *loggedError) Error() string { return e.err.Error() }

func (e *loggedError) Unwrap() error { return e.err }

// handleError logs err through the ErrorHandler and marks it as logged.
func handleError(ctx context.Context, logger errors.Logger, err error) error {
	if err == nil {
		return nil
	}
	errors.NewErrorHandler(logger).Handle(ctx, err)
	return &loggedError{err: err}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .assetpipe.yml, can also use ASSETPIPE_CONFIG_FILE env var)")
	flags.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", flags.Lookup("log-format"))

	addServerFlags(rootCmd)
}

// initConfig points viper at the config file and the environment. A missing
// default config file is fine; a broken or explicitly named missing one is
// reported by loadConfig.
func initConfig() {
	configReadErr = nil

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "Ignoring .env:", err)
	}

	explicit := true
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		explicit = false
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(strings.TrimSuffix(config.FileName, ".yml"))
	}

	config.SetDefaults()
	config.BindEnvironment()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !stderrors.As(err, &notFound) {
			configReadErr = err
		}
	}
}

// loadConfig returns the validated configuration for a command.
func loadConfig() (*config.Config, error) {
	if configReadErr != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to read config file: %v", configReadErr))
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, err.Error())
	}
	return cfg, nil
}

// newLogger builds the logger described by the log section.
func newLogger(cfg *config.Config) logging.Logger {
	level, err := logging.ParseLevel(cfg.Log.Level)
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	if err != nil {
		logger.Warn(context.Background(), err, "Falling back to info level")
	}
	return logger
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
