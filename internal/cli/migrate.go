package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/m3rciful/starterbot/core/logger"
	"github.com/m3rciful/starterbot/core/migrate"
	"github.com/m3rciful/starterbot/internal/app"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}
	cmd.AddCommand(newMigrateUpCommand(), newMigrateDownCommand(), newMigrateStatusCommand())
	return cmd
}

// withRunner loads the database config, connects and hands a runner to fn.
func withRunner(cmd *cobra.Command, fn func(*migrate.Runner) error) (err error) {
	path, err := configPath(cmd)
	if err != nil {
		return err
	}
	cfg, err := app.LoadDatabase(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.InitLogger(cfg.CoreConfig()); err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	defer func() {
		_ = logger.Shutdown()
	}()

	runner, closeDB, err := app.OpenMigrations(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, closeDB())
	}()
	return fn(runner)
}

func newMigrateUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRunner(cmd, func(r *migrate.Runner) error {
				sum, err := r.Run(cmd.Context())
				writeSummary(cmd.OutOrStdout(), sum)
				if err != nil {
					return fmt.Errorf("migrations failed at %q: %w", sum.Failed, err)
				}
				return nil
			})
		},
	}
}

func newMigrateDownCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Long: `down reverts applied migrations newest first. By default one migration is
reverted; use --steps for more, --to to stop at a version, or --all.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			to, _ := cmd.Flags().GetString("to")
			all, _ := cmd.Flags().GetBool("all")
			if steps < 1 {
				return errors.New("--steps must be at least 1")
			}
			return withRunner(cmd, func(r *migrate.Runner) error {
				var (
					reverted []string
					err      error
				)
				switch {
				case all:
					reverted, err = r.RollbackTo(cmd.Context(), "")
				case to != "":
					reverted, err = r.RollbackTo(cmd.Context(), to)
				default:
					reverted, err = r.Rollback(cmd.Context(), steps)
				}
				for _, v := range reverted {
					fmt.Fprintf(cmd.OutOrStdout(), "reverted %s\n", v)
				}
				if errors.Is(err, migrate.ErrNothingToRollback) {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().Int("steps", 1, "number of migrations to roll back")
	cmd.Flags().String("to", "", "roll back every migration newer than this version")
	cmd.Flags().Bool("all", false, "roll back every applied migration")
	cmd.MarkFlagsMutuallyExclusive("steps", "to", "all")
	return cmd
}

func newMigrateStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRunner(cmd, func(r *migrate.Runner) error {
				statuses, err := r.Status(cmd.Context())
				if err != nil {
					return err
				}
				return writeStatus(cmd.OutOrStdout(), statuses)
			})
		},
	}
}

func writeSummary(w io.Writer, sum migrate.Summary) {
	fmt.Fprintf(w, "applied: %d, skipped: %d, current: %d, concurrent: %d\n",
		len(sum.Applied), len(sum.Skipped), sum.Current, len(sum.Concurrent))
	for _, v := range sum.Applied {
		fmt.Fprintf(w, "  applied %s\n", v)
	}
	for _, v := range sum.Skipped {
		fmt.Fprintf(w, "  skipped %s\n", v)
	}
	if sum.Failed != "" {
		fmt.Fprintf(w, "  failed  %s\n", sum.Failed)
	}
}

// writeStatus prints one row per version. Recorded versions missing from the
// binary are shown as "unknown" so drift is visible.
func writeStatus(w io.Writer, statuses []migrate.Status) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tDESCRIPTION")
	for _, st := range statuses {
		state := "pending"
		switch {
		case st.Applied && !st.Registered:
			state = "unknown"
		case st.Applied:
			state = "applied"
		}
		at := "-"
		if !st.AppliedAt.IsZero() {
			at = st.AppliedAt.UTC().Format(time.RFC3339)
		}
		desc := strings.TrimSpace(st.Description)
		if desc == "" {
			desc = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.Version, state, at, desc)
	}
	return tw.Flush()
}
