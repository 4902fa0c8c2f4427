package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"github.com/shaiso/cmltrain/internal/config"
	"github.com/shaiso/cmltrain/internal/dataset"
	"github.com/shaiso/cmltrain/internal/forest"
	"github.com/shaiso/cmltrain/internal/report"
	"github.com/shaiso/cmltrain/internal/telemetry"
)

// Имена стадий.
const (
	StageFetch  = "fetch"
	StageSplit  = "split"
	StageTrain  = "train"
	StageReport = "report"
)

// ModelArtifactPath — каталог модели внутри артефактов run.
const ModelArtifactPath = "model"

// Имена метрик и параметров в tracking server.
const (
	ParamMaxDepth    = "max_depth"
	ParamNEstimators = "n_estimators"
	ParamRandomState = "random_state"
	ParamTestSize    = "test_size"

	MetricTrainScore = "train_score"
	MetricTestScore  = "test_score"
)

// --- fetch ---

// fetchStage читает CSV из хранилища и отделяет целевую колонку.
type fetchStage struct {
	fetcher Fetcher
	bucket  string
	object  string
	target  string
}

func (st *fetchStage) Name() string { return StageFetch }

func (st *fetchStage) Execute(ctx context.Context, s *State) error {
	body, err := st.fetcher.Fetch(ctx, st.bucket, st.object)
	if err != nil {
		return err
	}
	defer body.Close()

	ds, err := dataset.ReadCSV(body, dataset.Options{})
	if err != nil {
		return fmt.Errorf("read %s/%s: %w", st.bucket, st.object, err)
	}

	y, err := ds.Pop(st.target)
	if err != nil {
		return err
	}

	s.Features = ds.Columns
	s.X = ds.Rows
	s.Y = y

	telemetry.FromContext(ctx).Info("dataset loaded",
		"bucket", st.bucket,
		"object", st.object,
		"rows", ds.NumRows(),
		"features", ds.NumFeatures(),
	)
	return nil
}

// --- split ---

// splitStage делит строки на train и test.
type splitStage struct {
	testSize float64
	seed     int64
}

func (st *splitStage) Name() string { return StageSplit }

func (st *splitStage) Execute(ctx context.Context, s *State) error {
	split, err := dataset.TrainTestSplit(s.X, s.Y, st.testSize, st.seed)
	if err != nil {
		return err
	}

	s.Split = split
	s.Run.TrainRows = len(split.YTrain)
	s.Run.TestRows = len(split.YTest)

	telemetry.FromContext(ctx).Info("dataset split",
		"train_rows", s.Run.TrainRows,
		"test_rows", s.Run.TestRows,
		"seed", st.seed,
	)
	return nil
}

// --- train ---

// trainStage обучает лес и логирует параметры, метрики и модель.
type trainStage struct {
	tracker Tracker
	cfg     config.TrainingConfig
}

func (st *trainStage) Name() string { return StageTrain }

func (st *trainStage) Execute(ctx context.Context, s *State) error {
	logger := telemetry.FromContext(ctx)

	params := []struct {
		key   string
		value string
	}{
		{ParamMaxDepth, strconv.Itoa(st.cfg.MaxDepth)},
		{ParamNEstimators, strconv.Itoa(st.cfg.NEstimators)},
		{ParamRandomState, strconv.FormatInt(st.cfg.Seed, 10)},
		{ParamTestSize, strconv.FormatFloat(st.cfg.TestSize, 'g', -1, 64)},
	}
	for _, p := range params {
		if err := st.tracker.LogParam(ctx, s.TrackingRun, p.key, p.value); err != nil {
			return err
		}
		s.Run.Params[p.key] = p.value
	}

	model := forest.NewRegressor(
		forest.WithNEstimators(st.cfg.NEstimators),
		forest.WithMaxDepth(st.cfg.MaxDepth),
		forest.WithRandomState(st.cfg.Seed),
	)
	if err := model.Fit(ctx, s.Split.XTrain, s.Split.YTrain); err != nil {
		return fmt.Errorf("fit: %w", err)
	}
	s.Model = model

	trainR2, err := model.Score(s.Split.XTrain, s.Split.YTrain)
	if err != nil {
		return fmt.Errorf("score train: %w", err)
	}
	testR2, err := model.Score(s.Split.XTest, s.Split.YTest)
	if err != nil {
		return fmt.Errorf("score test: %w", err)
	}

	s.Scores = report.NewScores(trainR2, testR2)
	s.Run.TrainScore = s.Scores.Train
	s.Run.TestScore = s.Scores.Test

	logger.Info("model trained",
		"trees", len(model.Trees()),
		"train_score", s.Scores.Train,
		"test_score", s.Scores.Test,
	)

	if err := st.tracker.LogMetric(ctx, s.TrackingRun, MetricTrainScore, s.Scores.Train); err != nil {
		return err
	}
	if err := st.tracker.LogMetric(ctx, s.TrackingRun, MetricTestScore, s.Scores.Test); err != nil {
		return err
	}

	flavor := map[string]any{
		"format_version": forest.FormatVersion,
		"n_features":     model.NumFeatures(),
		"feature_names":  s.Features,
	}
	if _, err := st.tracker.LogModel(ctx, s.TrackingRun, ModelArtifactPath, model, flavor); err != nil {
		return err
	}
	s.Run.AddArtifact(ModelArtifactPath)
	return nil
}

// --- report ---

// reportStage пишет metrics.txt и графики, затем логирует их в run.
type reportStage struct {
	tracker   Tracker
	outputDir string
	cfg       config.TrainingConfig
}

func (st *reportStage) Name() string { return StageReport }

func (st *reportStage) Execute(ctx context.Context, s *State) error {
	logger := telemetry.FromContext(ctx)

	if err := os.MkdirAll(st.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	metricsPath := filepath.Join(st.outputDir, report.MetricsFile)
	if err := report.WriteMetrics(metricsPath, s.Scores); err != nil {
		return err
	}

	opts := report.PlotOptions{DPI: st.cfg.DPI}

	ranked, err := report.RankImportances(s.Features, s.Model.FeatureImportances())
	if err != nil {
		return err
	}
	importancePath := filepath.Join(st.outputDir, report.FeatureImportanceFile)
	if err := report.PlotFeatureImportance(importancePath, ranked, opts); err != nil {
		return err
	}

	pred, err := s.Model.Predict(s.Split.XTest)
	if err != nil {
		return fmt.Errorf("predict test: %w", err)
	}
	pts, err := report.Residuals(s.Split.YTest, pred, st.cfg.Jitter, rand.New(rand.NewSource(st.cfg.Seed)))
	if err != nil {
		return err
	}
	residualsPath := filepath.Join(st.outputDir, report.ResidualsFile)
	if err := report.PlotResiduals(residualsPath, pts, opts); err != nil {
		return err
	}

	for _, path := range []string{metricsPath, importancePath, residualsPath} {
		if err := st.tracker.LogArtifact(ctx, s.TrackingRun, path, ""); err != nil {
			return err
		}
		s.Files = append(s.Files, path)
		s.Run.AddArtifact(filepath.Base(path))
	}

	logger.Info("report logged", "artifacts", len(s.Files), "output_dir", st.outputDir)
	return nil
}
