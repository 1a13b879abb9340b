// Package cli implements the starterbot command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/m3rciful/starterbot/core/buildinfo"
	corecmd "github.com/m3rciful/starterbot/core/cmd"
)

// DefaultConfigPath is used when neither --config nor CONFIG_PATH is set.
const DefaultConfigPath = "config.yaml"

// NewRootCommand builds the starterbot command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "starterbot",
		Version:       buildinfo.String(),
		Short:         "Telegram starter bot with PostgreSQL schema migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to configuration file (default $CONFIG_PATH or config.yaml)")

	root.AddCommand(newRunCommand(), newMigrateCommand())
	return root
}

// Execute runs the command tree with ctx and returns the first error.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func configPath(cmd *cobra.Command) (string, error) {
	flag, _ := cmd.Flags().GetString("config")
	return corecmd.ResolveConfigPath(corecmd.Options{
		ConfigPath:        flag,
		ConfigEnvVar:      corecmd.DefaultConfigEnvVar,
		DefaultConfigPath: DefaultConfigPath,
	})
}
