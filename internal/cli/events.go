package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Switchover/internal/mq"
	"github.com/shaiso/Switchover/internal/telemetry"
)

// NewEventsCmd создаёт команду просмотра событий развёртывания.
func NewEventsCmd(envFn func() Env, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Follow deployment events from RabbitMQ",
		Long: `Events consumes the switchover.events.log queue and prints every deployment
event until interrupted. With --json each event is printed as a JSON document.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env := envFn()
			out := outputFn()
			logger := telemetry.FromContext(ctx)

			conn, err := env.connectBroker(ctx, logger, "switchover-events")
			if err != nil {
				return err
			}
			defer conn.Close()

			consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
				Queue:    string(mq.QueueEventsLog),
				Name:     "switchover-events",
				Prefetch: 16,
				Handler: func(_ context.Context, delivery *mq.Delivery) error {
					printEvent(out, &delivery.Message)
					return nil
				},
			})

			out.Success(fmt.Sprintf("Following %s, press Ctrl+C to stop", mq.QueueEventsLog))

			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

// printEvent выводит одно событие строкой или JSON.
func printEvent(out *Output, msg *mq.Message) {
	if out.IsJSON() {
		out.JSON(msg)
		return
	}
	out.Line(eventFields(msg)...)
}

// eventFields раскладывает событие на поля: время, тип, run, детали.
func eventFields(msg *mq.Message) []string {
	ts := msg.Timestamp.Format(time.RFC3339)

	switch msg.Type {
	case mq.MessageTypeDeployStarted:
		p, err := mq.ParsePayload[mq.DeployStartedPayload](msg)
		if err != nil {
			break
		}
		return []string{ts, string(msg.Type), p.RunID.String(),
			fmt.Sprintf("target=%s other=%s plan=%s", p.Target, p.Other, p.PlanSource)}

	case mq.MessageTypeDeployPhase:
		p, err := mq.ParsePayload[mq.DeployPhasePayload](msg)
		if err != nil {
			break
		}
		details := fmt.Sprintf("slot=%s phase=%s duration_ms=%d failed=%s",
			p.Slot, p.Phase, p.DurationMs, strconv.FormatBool(p.Failed))
		if p.Error != "" {
			details += fmt.Sprintf(" error=%q", p.Error)
		}
		return []string{ts, string(msg.Type), p.RunID.String(), details}

	case mq.MessageTypeDeployFinished:
		p, err := mq.ParsePayload[mq.DeployFinishedPayload](msg)
		if err != nil {
			break
		}
		details := fmt.Sprintf("target=%s outcome=%s duration_ms=%d", p.Target, p.Outcome, p.DurationMs)
		if p.Error != "" {
			details += fmt.Sprintf(" error=%q", p.Error)
		}
		return []string{ts, string(msg.Type), p.RunID.String(), details}
	}

	return []string{ts, string(msg.Type), msg.ID, "-"}
}
