package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shaiso/cmltrain/internal/config"
	"github.com/shaiso/cmltrain/internal/mq"
	"github.com/shaiso/cmltrain/internal/repo"
	"github.com/shaiso/cmltrain/internal/telemetry"
)

// NewRootCmd создаёт корневую команду cmltrain.
// Без подкоманды выполняется train.
func NewRootCmd(version string) (*cobra.Command, error) {
	v := config.New()
	var jsonOutput bool

	logger := slog.Default()
	outputFn := func() *Output { return NewOutput(jsonOutput) }

	train := func(cmd *cobra.Command, args []string) error {
		return runTrain(cmd.Context(), v, logger, outputFn())
	}

	rootCmd := &cobra.Command{
		Use:           "cmltrain",
		Short:         "Train the wine quality model and log it to the tracking server",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = telemetry.SetupLogger()
		},
		RunE: train,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	if err := config.BindFlags(v, rootCmd.PersistentFlags()); err != nil {
		return nil, err
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "train",
			Short: "Run one training job (default command)",
			Args:  cobra.NoArgs,
			RunE:  train,
		},
		NewRunsCmd(runReader(v), runEvents(v, func() *slog.Logger { return logger }), outputFn),
	)

	return rootCmd, nil
}

// runReader открывает историю запусков из DB_URL.
func runReader(v *viper.Viper) ReaderFunc {
	return func(ctx context.Context) (RunReader, func(), error) {
		dsn := v.GetString(config.KeyDBURL)
		if dsn == "" {
			return nil, nil, fmt.Errorf("%w: %s", config.ErrMissingSetting, config.KeyDBURL)
		}

		pool, err := repo.NewPool(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}

		runRepo := repo.NewRunRepo(pool)
		if err := runRepo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return runRepo, pool.Close, nil
	}
}

// runEvents подключается к RabbitMQ из RABBITMQ_URL.
func runEvents(v *viper.Viper, loggerFn func() *slog.Logger) EventsFunc {
	return func(ctx context.Context) (EventSource, func(), error) {
		url := v.GetString(config.KeyRabbitMQURL)
		if url == "" {
			return nil, nil, fmt.Errorf("%w: %s", config.ErrMissingSetting, config.KeyRabbitMQURL)
		}

		logger := loggerFn()
		conn, err := mq.NewConnection(url, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := mq.SetupTopology(ctx, conn); err != nil {
			conn.Close()
			return nil, nil, err
		}

		closeFn := func() {
			if err := conn.Close(); err != nil {
				logger.Warn("failed to close connection", "error", err)
			}
		}
		return mq.NewConsumer(conn, logger), closeFn, nil
	}
}
