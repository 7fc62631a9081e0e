package cli

import (
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shaiso/Switchover/internal/repo"
	"github.com/shaiso/Switchover/internal/telemetry"
)

// NewHistoryCmd создаёт команду просмотра истории run.
func NewHistoryCmd(envFn func() Env, outputFn func() *Output) *cobra.Command {
	var planPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past deploy runs (requires --state-db)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env := envFn()
			out := outputFn()
			logger := telemetry.FromContext(ctx)

			if env.StateDB == "" {
				return errors.New("run history is kept only with --state-db or STATE_DB_URL")
			}

			d, err := env.openDeps(ctx, logger, "")
			if err != nil {
				return err
			}
			defer d.Close()

			filter := repo.RunFilter{Limit: limit}
			if planPath != "" {
				// в истории хранится абсолютный путь плана
				abs, err := filepath.Abs(planPath)
				if err != nil {
					return err
				}
				filter.PlanSource = abs
			}

			runs, err := repo.NewRunRepo(d.pool).List(ctx, filter)
			if err != nil {
				return err
			}

			headers := []string{"ID", "TARGET", "OUTCOME", "STARTED", "DURATION", "ERROR"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{
					r.ID.String(),
					string(r.Target),
					string(r.Outcome),
					r.StartedAt.Format("2006-01-02 15:04:05"),
					formatDuration(r.Duration()),
					r.Error,
				}
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "Filter by plan")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results (default 20)")

	return cmd
}
