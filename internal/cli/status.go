package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/Switchover/internal/domain"
	"github.com/shaiso/Switchover/internal/engine"
	"github.com/shaiso/Switchover/internal/orchestrator"
	"github.com/shaiso/Switchover/internal/telemetry"
)

// StateEntry — одна пара записи состояния.
type StateEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// StatusResponse — состояние развёртывания для --json.
type StatusResponse struct {
	StateFile  string       `json:"state_file"`
	Entries    []StateEntry `json:"entries"`
	NextTarget domain.Slot  `json:"next_target"`
}

// NewStatusCmd создаёт команду просмотра записи состояния.
func NewStatusCmd(envFn func() Env, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status PLAN",
		Short: "Show the deployment state of a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env := envFn()
			out := outputFn()
			logger := telemetry.FromContext(ctx)

			plan, err := engine.LoadPlanFile(args[0])
			if err != nil {
				return err
			}

			d, err := env.openDeps(ctx, logger, "")
			if err != nil {
				return err
			}
			defer d.Close()

			orch := orchestrator.New(d.orchestratorConfig(env, nil, nil))
			state, err := orch.Status(ctx, plan)
			if err != nil {
				return err
			}

			resp := StatusResponse{
				StateFile: plan.StateFile,
				Entries:   make([]StateEntry, 0, state.Len()),
			}
			resp.NextTarget, _ = orchestrator.SelectSlots(state)

			rows := make([][]string, 0, state.Len())
			for _, key := range state.Keys() {
				value, _ := state.Get(key)
				resp.Entries = append(resp.Entries, StateEntry{Key: key, Value: value})
				rows = append(rows, []string{key, value})
			}

			out.Print([]string{"KEY", "VALUE"}, rows, resp)
			out.Success(fmt.Sprintf("Next deploy target: %s", resp.NextTarget))
			return nil
		},
	}
}
