package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Switchover/internal/domain"
	"github.com/shaiso/Switchover/internal/orchestrator"
	"github.com/shaiso/Switchover/internal/telemetry"
)

// NewDeployCmd создаёт команду развёртывания.
func NewDeployCmd(envFn func() Env, outputFn func() *Output) *cobra.Command {
	var metricsFile string
	var events bool

	cmd := &cobra.Command{
		Use:   "deploy PLAN",
		Short: "Deploy the inactive slot and switch traffic to it",
		Long: `Deploy reads the state record next to PLAN, picks the slot that is not active,
runs its prepare and check phases, switches traffic with activate and verify, and
finalizes with done. If activation fails, the other slot is re-activated when it
was active or backup before the run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env := envFn()
			out := outputFn()
			logger := telemetry.FromContext(ctx)

			broker := ""
			if events {
				broker = "switchover-cli"
			}

			d, err := env.openDeps(ctx, logger, broker)
			if err != nil {
				return err
			}
			defer d.Close()

			stdout, stderr := out.StepStreams()
			orch := orchestrator.New(d.orchestratorConfig(env, stdout, stderr))

			run, deployErr := orch.RunDeploy(ctx, args[0])

			if metricsFile != "" {
				if err := d.metrics.WriteTextfile(metricsFile); err != nil {
					logger.Warn("failed to write metrics textfile", "path", metricsFile, "error", err)
				}
			}

			if run != nil {
				printRun(out, run)
			}
			if deployErr != nil {
				return deployErr
			}

			out.Success(fmt.Sprintf("Slot %s is active", run.Target))
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write run metrics to a node-exporter textfile")
	cmd.Flags().BoolVar(&events, "events", false, "Publish deployment events to RabbitMQ")

	return cmd
}

// printRun выводит итог одного run.
func printRun(out *Output, run *domain.Run) {
	out.Print(
		[]string{"ID", "TARGET", "OTHER", "OUTCOME", "DURATION"},
		[][]string{{run.ID.String(), string(run.Target), string(run.Other), string(run.Outcome), formatDuration(run.Duration())}},
		run,
	)
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}
