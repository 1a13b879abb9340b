package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	corecmd "github.com/m3rciful/starterbot/core/cmd"
	"github.com/m3rciful/starterbot/internal/app"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Apply pending migrations and run the bot",
		Long: `run loads the configuration, applies every pending schema migration and
starts the bot. Startup stops with a non-zero exit code if any migration fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			return corecmd.Run(corecmd.Options{
				ConfigPath: path,
				LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
					return app.Load(path)
				},
				Bootstrap: func(ctx context.Context, cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
					appCfg, ok := cfg.(*app.Config)
					if !ok {
						return nil, fmt.Errorf("unexpected config type %T", cfg)
					}
					return app.Bootstrap(ctx, appCfg)
				},
			})
		},
	}
}
