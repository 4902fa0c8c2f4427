package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/cmltrain/internal/config"
	"github.com/shaiso/cmltrain/internal/domain"
	"github.com/shaiso/cmltrain/internal/telemetry"
	"github.com/shaiso/cmltrain/internal/tracking"
)

// SourceName — значение тега mlflow.source.name.
const SourceName = "cmltrain"

// Options — зависимости Pipeline.
type Options struct {
	// Fetcher — источник CSV (обязателен).
	Fetcher Fetcher

	// Tracker — tracking server (обязателен).
	Tracker Tracker

	// Store — история запусков (опционально).
	Store RunStore

	// Publisher — событие run.completed (опционально).
	Publisher EventPublisher

	// Metrics — метрики job (опционально).
	Metrics *telemetry.Metrics

	// Logger
	Logger *slog.Logger
}

// Pipeline — один запуск обучения.
type Pipeline struct {
	cfg       *config.Config
	tracker   Tracker
	store     RunStore
	publisher EventPublisher
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	stages    []Stage
}

// New создаёт Pipeline со стадиями fetch → split → train → report.
func New(cfg *config.Config, opts Options) (*Pipeline, error) {
	if opts.Fetcher == nil {
		return nil, ErrNoFetcher
	}
	if opts.Tracker == nil {
		return nil, ErrNoTracker
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		cfg:       cfg,
		tracker:   opts.Tracker,
		store:     opts.Store,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		logger:    logger,
		stages: []Stage{
			&fetchStage{
				fetcher: opts.Fetcher,
				bucket:  cfg.Storage.Bucket,
				object:  cfg.Storage.Object,
				target:  cfg.Training.Target,
			},
			&splitStage{
				testSize: cfg.Training.TestSize,
				seed:     cfg.Training.Seed,
			},
			&trainStage{
				tracker: opts.Tracker,
				cfg:     cfg.Training,
			},
			&reportStage{
				tracker:   opts.Tracker,
				outputDir: cfg.OutputDir,
				cfg:       cfg.Training,
			},
		},
	}, nil
}

// Stages возвращает стадии в порядке выполнения.
func (p *Pipeline) Stages() []Stage {
	return p.stages
}

// Run выполняет запуск.
//
// Возвращает run в финальном статусе; при ошибке run тоже возвращается
// (со статусом FAILED), если он успел создаться.
func (p *Pipeline) Run(ctx context.Context) (*domain.Run, error) {
	run := domain.NewRun(p.cfg.Tracking.Experiment)
	logger := telemetry.WithExperiment(telemetry.WithRunID(p.logger, run.ID.String()), run.Experiment)

	p.saveNew(ctx, logger, run)

	experimentID, err := p.tracker.SetExperiment(ctx, run.Experiment)
	if err != nil {
		return p.fail(ctx, logger, run, nil, fmt.Errorf("set experiment: %w", err))
	}
	run.ExperimentID = experimentID

	tags := []tracking.Tag{
		{Key: "mlflow.source.name", Value: SourceName},
		{Key: "mlflow.source.type", Value: "JOB"},
		{Key: "cmltrain.run_id", Value: run.ID.String()},
	}
	trackingRun, err := p.tracker.StartRun(ctx, experimentID, "", tags)
	if err != nil {
		return p.fail(ctx, logger, run, nil, fmt.Errorf("start run: %w", err))
	}
	run.TrackingRunID = trackingRun.ID

	run.MarkRunning()
	p.save(ctx, logger, run)
	logger.Info("run started", "tracking_run_id", trackingRun.ID, "experiment_id", experimentID)

	state := &State{Run: run, TrackingRun: trackingRun}
	for _, stage := range p.stages {
		if err := p.execute(ctx, logger, stage, state); err != nil {
			return p.fail(ctx, logger, run, trackingRun, err)
		}
	}

	run.MarkSucceeded()
	if err := p.tracker.EndRun(ctx, trackingRun, run.Status.TrackingStatus()); err != nil {
		return p.fail(ctx, logger, run, nil, err)
	}

	if p.metrics != nil {
		p.metrics.SetRows(run.TrainRows, run.TestRows)
		p.metrics.SetScores(run.TrainScore, run.TestScore)
	}
	p.finish(ctx, logger, run)

	logger.Info("run succeeded",
		"train_score", run.TrainScore,
		"test_score", run.TestScore,
		"duration", run.Duration(),
	)
	return run, nil
}

// execute выполняет одну стадию и записывает её длительность.
func (p *Pipeline) execute(ctx context.Context, logger *slog.Logger, stage Stage, state *State) error {
	stageLogger := telemetry.WithStage(logger, stage.Name())
	stageLogger.Debug("stage started")

	start := time.Now()
	err := stage.Execute(telemetry.WithLogger(ctx, stageLogger), state)
	elapsed := time.Since(start)

	if p.metrics != nil {
		p.metrics.ObserveStage(stage.Name(), elapsed)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStageFailed, stage.Name(), err)
	}

	stageLogger.Debug("stage completed", "duration", elapsed)
	return nil
}

// fail завершает run с ошибкой. Если tracking run открыт, он закрывается
// со статусом FAILED даже при отменённом контексте.
func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, run *domain.Run, trackingRun *tracking.Run, cause error) (*domain.Run, error) {
	run.MarkFailed(cause.Error())
	if trackingRun != nil {
		if err := p.tracker.EndRun(context.WithoutCancel(ctx), trackingRun, run.Status.TrackingStatus()); err != nil {
			logger.Warn("failed to end tracking run", "error", err)
		}
	}

	p.finish(ctx, logger, run)

	logger.Error("run failed", "error", cause)
	return run, cause
}

// finish сохраняет финальный статус и публикует событие.
// Ошибки интеграций логируются, но не меняют результат run.
func (p *Pipeline) finish(ctx context.Context, logger *slog.Logger, run *domain.Run) {
	ctx = context.WithoutCancel(ctx)

	if p.metrics != nil {
		p.metrics.SetStatus(string(run.Status))
	}

	p.save(ctx, logger, run)

	if p.publisher != nil {
		if err := p.publisher.PublishRunCompleted(ctx, run); err != nil {
			logger.Warn("failed to publish run completed", "error", err)
		}
	}
}

func (p *Pipeline) saveNew(ctx context.Context, logger *slog.Logger, run *domain.Run) {
	if p.store == nil {
		return
	}
	if err := p.store.Create(ctx, run); err != nil {
		logger.Warn("failed to save run", "error", err)
	}
}

func (p *Pipeline) save(ctx context.Context, logger *slog.Logger, run *domain.Run) {
	if p.store == nil {
		return
	}
	if err := p.store.Update(ctx, run); err != nil {
		logger.Warn("failed to update run", "error", err)
	}
}
