package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/shaiso/cmltrain/internal/config"
	"github.com/shaiso/cmltrain/internal/mq"
	"github.com/shaiso/cmltrain/internal/pipeline"
	"github.com/shaiso/cmltrain/internal/repo"
	"github.com/shaiso/cmltrain/internal/storage"
	"github.com/shaiso/cmltrain/internal/telemetry"
	"github.com/shaiso/cmltrain/internal/tracking"
)

// runTrain выполняет один запуск обучения.
//
// Обязательны только object storage и tracking server. История в Postgres,
// событие в RabbitMQ и push метрик включаются своими переменными; если
// интеграция недоступна, запуск продолжается без неё.
func runTrain(ctx context.Context, v *viper.Viper, logger *slog.Logger, out *Output) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	endpoint, secure := cfg.Storage.Endpoint()
	objects, err := storage.NewClient(storage.Config{
		Endpoint:  endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Secure:    secure,
	}, logger)
	if err != nil {
		return err
	}

	metrics := telemetry.NewMetrics()
	opts := pipeline.Options{
		Fetcher: objects,
		Tracker: tracking.NewClient(tracking.Config{
			URI:      cfg.Tracking.URI,
			Uploader: objects,
			Logger:   logger,
		}),
		Metrics: metrics,
		Logger:  logger,
	}

	if cfg.DBURL != "" {
		pool, err := repo.NewPool(ctx, cfg.DBURL)
		if err != nil {
			logger.Warn("database not available, run history disabled", "error", err)
		} else {
			defer pool.Close()
			runRepo := repo.NewRunRepo(pool)
			if err := runRepo.EnsureSchema(ctx); err != nil {
				logger.Warn("failed to prepare run history", "error", err)
			} else {
				opts.Store = runRepo
			}
		}
	}

	if cfg.RabbitMQURL != "" {
		conn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, completion event disabled", "error", err)
		} else {
			defer conn.Close()
			if err := mq.SetupTopology(ctx, conn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			} else {
				opts.Publisher = mq.NewPublisher(conn, logger)
			}
		}
	}

	p, err := pipeline.New(cfg, opts)
	if err != nil {
		return err
	}

	run, runErr := p.Run(ctx)

	if err := metrics.Push(context.WithoutCancel(ctx), cfg.PushgatewayURL); err != nil {
		logger.Warn("failed to push metrics", "error", err)
	}

	if run != nil {
		if err := out.PrintRun(run); err != nil {
			return err
		}
	}
	return runErr
}
