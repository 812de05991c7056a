package cmd

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/mindwell/apiserver/config"
	"github.com/mindwell/apiserver/internal/server"
	"github.com/spf13/cobra"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consumes domain events and runs the workflow functions",
	Long: `Subscribes to every domain event channel on the configured broker
and runs the matching workflow function for each delivered event. Usage:

	mindwell worker
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.MQ.Backend == config.MQBackendMemory {
			return errors.New("the memory mq backend only works in-process; the server consumes it itself")
		}
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := server.Open(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to start worker", "error", err)
			return err
		}
		defer func() {
			if err := app.Close(); err != nil {
				logger.Warn("worker close", "error", err)
			}
		}()

		logger.Info("worker started", "functions", len(app.Registry.Functions()))
		if err := app.Consume(ctx); err != nil {
			logger.Error("worker stopped", "error", err)
			return err
		}
		logger.Info("worker stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
