package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Switchover/internal/domain"
	"github.com/shaiso/Switchover/internal/engine"
)

// PhaseSummary — количество шагов фазы слота.
type PhaseSummary struct {
	Slot  domain.Slot  `json:"slot"`
	Phase domain.Phase `json:"phase"`
	Steps int          `json:"steps"`
}

// NewValidateCmd создаёт команду проверки плана без выполнения.
func NewValidateCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate PLAN",
		Short: "Check a deployment plan without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			plan, err := engine.LoadPlanFile(args[0])
			if err != nil {
				return err
			}

			var summary []PhaseSummary
			var rows [][]string
			for _, slot := range domain.Slots() {
				for _, phase := range domain.Phases() {
					n := len(plan.Steps(slot, phase))
					summary = append(summary, PhaseSummary{Slot: slot, Phase: phase, Steps: n})
					rows = append(rows, []string{string(slot), string(phase), strconv.Itoa(n)})
				}
			}

			out.Print([]string{"SLOT", "PHASE", "STEPS"}, rows, summary)
			out.Success(fmt.Sprintf("Plan is valid, state file: %s", plan.StateFile))
			return nil
		},
	}
}
