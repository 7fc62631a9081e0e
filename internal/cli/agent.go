package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Switchover/internal/domain"
	"github.com/shaiso/Switchover/internal/engine"
	"github.com/shaiso/Switchover/internal/orchestrator"
	"github.com/shaiso/Switchover/internal/scheduler"
	"github.com/shaiso/Switchover/internal/telemetry"
)

// EnvPort — переменная окружения с портом HTTP агента.
const EnvPort = "SWITCHOVER_PORT"

const defaultPort = "8090"

// NewAgentCmd создаёт команду долгоживущего агента.
func NewAgentCmd(envFn func() Env) *cobra.Command {
	var planPath string
	var sched domain.Schedule
	var port string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run deploys on schedule and on requests from RabbitMQ",
		Long: `Agent keeps running and deploys PLAN when a request arrives on the
switchover.deploy.requests queue or when the schedule fires. Deploys never overlap.
It serves /healthz, /metrics and /last-run over HTTP.

Requests may only name the agent's own --plan (or no plan at all); requests
for any other plan file are rejected to the dead letter queue. Anyone who can
publish to switchover.requests can still start a deploy of that plan.

On SIGINT/SIGTERM the running step is interrupted, and the agent exits only
after the failure status of that run has been written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env := envFn()
			logger := telemetry.FromContext(ctx)

			// План проверяется сразу, чтобы агент не стартовал с битым планом.
			plan, err := engine.LoadPlanFile(planPath)
			if err != nil {
				return err
			}

			d, err := env.openDeps(ctx, logger, "switchover-agent")
			if err != nil {
				return err
			}
			defer d.Close()

			cfg := d.orchestratorConfig(env, nil, nil)
			cfg.Conn = d.conn
			cfg.PlanPath = plan.Source
			orch := orchestrator.New(cfg)

			if err := orch.Start(ctx); err != nil {
				return fmt.Errorf("start orchestrator: %w", err)
			}
			defer orch.Stop()

			// Выход ждёт горутину планировщика: run в ней дописывает статус
			// до orch.Stop и закрытия pool.
			schedCtx, cancelSched := context.WithCancel(ctx)
			var schedWG sync.WaitGroup
			defer func() {
				cancelSched()
				schedWG.Wait()
			}()

			if sched.IsEnabled() {
				s, err := scheduler.New(scheduler.Config{
					Schedule: sched,
					Trigger:  orch,
					PlanPath: plan.Source,
					Logger:   logger,
				})
				if err != nil {
					return err
				}
				schedWG.Add(1)
				go func() {
					defer schedWG.Done()
					s.Start(schedCtx)
				}()
			} else if d.conn == nil {
				logger.Warn("agent has neither schedule nor broker, it will only serve HTTP")
			}

			logger.Info("agent started", "plan", plan.Source, "state", plan.StateFile)

			server := &http.Server{
				Addr:              ":" + port,
				Handler:           chain(recovery(logger), requestLog(logger))(agentMux(orch, d.metrics)),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				return fmt.Errorf("http server: %w", err)
			}

			logger.Info("shutting down agent...")

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}

			return nil
		},
	}

	defPort := os.Getenv(EnvPort)
	if defPort == "" {
		defPort = defaultPort
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "Deployment plan (required)")
	cmd.Flags().StringVar(&sched.CronExpr, "cron", "", "Cron expression for scheduled deploys")
	cmd.Flags().IntVar(&sched.IntervalSec, "interval", 0, "Interval in seconds between scheduled deploys (if no --cron)")
	cmd.Flags().StringVar(&sched.Timezone, "timezone", "UTC", "Timezone for the cron expression")
	cmd.Flags().StringVar(&port, "port", defPort, "HTTP port for /healthz and /metrics")
	_ = cmd.MarkFlagRequired("plan")

	return cmd
}

// agentMux — HTTP агента: /healthz, /metrics, /last-run.
func agentMux(orch *orchestrator.Orchestrator, metrics *telemetry.Metrics) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if orch.IsStopped() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("stopping"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/last-run", func(w http.ResponseWriter, _ *http.Request) {
		run := orch.LastRun()
		if run == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(run)
	})

	return mux
}
