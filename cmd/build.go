package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conneroisu/assetpipe/internal/services"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Clean, compile stylesheets and render templates once",
	Long: `Run the production pipeline once: remove the build root, compile and
optimise every stylesheet entry point into a content-hashed file, then
render every HTML template with the resulting <link> tags.

Any compile or write error aborts the build with a non-zero exit code.

Examples:
  assetpipe build
  assetpipe build --config site.yml`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	logger := newLogger(cfg)
	result, err := services.NewBuildService(cfg, logger).Build(ctx)
	if err != nil {
		return handleError(ctx, logger, err)
	}

	out := cmd.OutOrStdout()
	for _, sheet := range result.Stylesheets {
		rel, relErr := filepath.Rel(".", sheet.Path)
		if relErr != nil {
			rel = sheet.Path
		}
		fmt.Fprintf(out, "%s -> %s (%d bytes)\n", sheet.Entry, rel, sheet.Size)
	}
	fmt.Fprintf(out, "Rendered %d page(s) in %s\n", len(result.Pages), result.Duration.Round(1e6))
	return nil
}
