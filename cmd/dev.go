package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/assetpipe/internal/services"
)

var devClean bool

var devCmd = &cobra.Command{
	Use:     "dev",
	Aliases: []string{"serve", "s"},
	Short:   "Build, watch and serve with live reload",
	Long: `Build once, then watch the source root and serve the build root.

Stylesheet changes recompile, re-render templates and swap the stylesheets
in open pages without a reload. Template changes re-render and reload.
Compile errors are shown as an overlay in the browser.

Examples:
  assetpipe dev                 # Serve on localhost:3000
  assetpipe dev --clean         # Remove the build root first
  assetpipe dev -p 8080 --open  # Other port, open a browser`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDev(cmd, devClean)
	},
}

func init() {
	rootCmd.AddCommand(devCmd)

	devCmd.Flags().BoolVar(&devClean, "clean", false, "Remove the build root before the initial build")
	addServerFlags(devCmd)
}

// addServerFlags registers the server flags on cmd and binds them when the
// command runs, so the root and dev commands can share keys.
func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("port", "p", 3000, "Port to serve on")
	cmd.Flags().String("host", "localhost", "Host to bind to")
	cmd.Flags().Bool("open", false, "Open a browser once the server is up")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd.Flags(), map[string]string{
			"server.port": "port",
			"server.host": "host",
			"server.open": "open",
		})
	}
}

// bindFlags binds each config key to the named flag in flags.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("unknown flag %q for %s", name, key)
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}

func runDev(cmd *cobra.Command, clean bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	logger := newLogger(cfg)
	logger.Info(ctx, "Starting dev server",
		"src", cfg.Paths.Src,
		"build", cfg.Paths.Build,
		"addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))

	err = services.NewDevService(cfg, logger).Run(ctx, services.DevOptions{Clean: clean})
	return handleError(ctx, logger, err)
}
