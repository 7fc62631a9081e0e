// Switchover — blue/green развёртывание по плану.
//
// Использование:
//
//	switchover [--json] [--state-db DSN] [--rabbitmq-url URL] <command> [flags]
//
// Команды:
//
//	deploy    Развернуть неактивный слот и переключить на него трафик
//	status    Показать запись состояния
//	validate  Проверить план
//	agent     Развёртывания по расписанию и по запросам из RabbitMQ
//	trigger   Запросить развёртывание у агента
//	events    Следить за событиями развёртывания
//	history   Прошлые run (Postgres)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Switchover/internal/cli"
	"github.com/shaiso/Switchover/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	logger := telemetry.SetupLogger()

	// SIGINT/SIGTERM прерывают текущий шаг; статус ошибки всё равно записывается.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = telemetry.WithLogger(ctx, logger)

	env := cli.EnvFromOS()
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "switchover",
		Short:         "Switchover — blue/green deployment orchestrator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&env.StateDB, "state-db", env.StateDB, "Postgres DSN for the state record and run history (default: state file)")
	rootCmd.PersistentFlags().StringVar(&env.RabbitURL, "rabbitmq-url", env.RabbitURL, "RabbitMQ URL for events and deploy requests")
	rootCmd.PersistentFlags().StringVar(&env.Shell, "shell", env.Shell, "Interpreter for string steps")

	envFn := func() cli.Env { return env }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewDeployCmd(envFn, outputFn),
		cli.NewStatusCmd(envFn, outputFn),
		cli.NewValidateCmd(outputFn),
		cli.NewAgentCmd(envFn),
		cli.NewTriggerCmd(envFn, outputFn),
		cli.NewEventsCmd(envFn, outputFn),
		cli.NewHistoryCmd(envFn, outputFn),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
