package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/assetpipe/internal/services"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the build root",
	Long: `Remove the build root and everything in it. The source root is never
touched; a build root that contains it is refused.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	if err := services.NewBuildService(cfg, newLogger(cfg)).Clean(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", cfg.Paths.Build)
	return nil
}
