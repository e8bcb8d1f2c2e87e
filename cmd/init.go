package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/assetpipe/internal/services"
)

var initCmd = &cobra.Command{
	Use:     "init [dir]",
	Aliases: []string{"i"},
	Short:   "Write a default config and an example site",
	Long: `Write .assetpipe.yml with every default spelled out, plus an example
stylesheet, partial and page under src/. Existing files are left alone
unless --force is given. If no directory is provided, the current
directory is used.

Examples:
  assetpipe init              # Config and example site here
  assetpipe init my-site      # In ./my-site
  assetpipe init --minimal    # Config only`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var (
	initMinimal bool
	initForce   bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initMinimal, "minimal", false, "Write the config file only")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	result, err := services.NewInitService().InitProject(services.InitOptions{
		ProjectDir: dir,
		Minimal:    initMinimal,
		Force:      initForce,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, name := range result.Created {
		fmt.Fprintf(out, "created  %s\n", name)
	}
	for _, name := range result.Skipped {
		fmt.Fprintf(out, "skipped  %s (exists, use --force to overwrite)\n", name)
	}
	return nil
}
