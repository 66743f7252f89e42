package main

import (
	"github.com/spf13/cobra"

	"refloop/internal/version"
)

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	dir    string
	config string
}

func (rf *rootFlags) paths() (*Paths, error) {
	return ResolvePaths(rf.dir, rf.config)
}

// newRootCmd creates the root refloop command with all subcommands attached.
func newRootCmd() *cobra.Command {
	rf := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "refloop",
		Short: "Multi-pass AI refactor loop",
		Long: "refloop scans a repository for refactor-worthy files and drives an AI coding agent\n" +
			"(codex or claude) through bounded, resumable passes until the backlog clears.",
		Version:       version.Long(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.PersistentFlags().StringVarP(&rf.dir, "dir", "C", ".", "target repository")
	cmd.PersistentFlags().StringVar(&rf.config, "config", "", "config file (default <dir>/.refloop/config.yaml)")

	cmd.AddCommand(
		newRunCmd(rf),
		newScanCmd(rf),
		newStatusCmd(rf),
		newHistoryCmd(rf),
		newResetCmd(rf),
		newVersionCmd(),
	)

	return cmd
}
