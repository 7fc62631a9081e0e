package cli

import (
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/shaiso/Switchover/internal/engine"
	"github.com/shaiso/Switchover/internal/mq"
	"github.com/shaiso/Switchover/internal/telemetry"
)

// TriggerResponse — результат публикации запроса.
type TriggerResponse struct {
	MessageID string `json:"message_id"`
	PlanPath  string `json:"plan_path,omitempty"`
}

// NewTriggerCmd создаёт команду запроса развёртывания у агента.
func NewTriggerCmd(envFn func() Env, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger [PLAN]",
		Short: "Ask a running agent to deploy",
		Long: `Trigger publishes a deploy request to RabbitMQ. Without PLAN the agent deploys
the plan it was started with. PLAN is checked locally before publishing and sent as an
absolute path, so it must be readable by the agent at the same location.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env := envFn()
			out := outputFn()
			logger := telemetry.FromContext(ctx)

			payload := mq.DeployRequestPayload{RequestedBy: requester()}

			if len(args) == 1 {
				plan, err := engine.LoadPlanFile(args[0])
				if err != nil {
					return err
				}
				payload.PlanPath = plan.Source
			}

			conn, err := env.connectBroker(ctx, logger, "switchover-trigger")
			if err != nil {
				return err
			}
			defer conn.Close()

			id, err := mq.NewPublisher(conn, logger).PublishDeployRequest(ctx, payload)
			if err != nil {
				return fmt.Errorf("publish deploy request: %w", err)
			}

			resp := TriggerResponse{MessageID: id, PlanPath: payload.PlanPath}
			out.Print([]string{"MESSAGE_ID", "PLAN"}, [][]string{{id, payload.PlanPath}}, resp)
			out.Success("Deploy requested")
			return nil
		},
	}

	return cmd
}

// requester — "user@host" для поля requested_by.
func requester() string {
	name := "unknown"
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	if host, err := os.Hostname(); err == nil {
		return name + "@" + host
	}
	return name
}
