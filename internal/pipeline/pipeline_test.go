package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/shaiso/cmltrain/internal/config"
	"github.com/shaiso/cmltrain/internal/domain"
	"github.com/shaiso/cmltrain/internal/report"
	"github.com/shaiso/cmltrain/internal/telemetry"
	"github.com/shaiso/cmltrain/internal/tracking"
)

var wineColumns = []string{
	"fixed acidity", "volatile acidity", "citric acid", "residual sugar",
	"chlorides", "free sulfur dioxide", "total sulfur dioxide", "density",
	"pH", "sulphates", "alcohol", "is_red", "quality",
}

// wineCSV генерирует таблицу с 12 признаками и целевой колонкой quality.
func wineCSV(rows int) []byte {
	rnd := rand.New(rand.NewSource(7))

	var buf bytes.Buffer
	buf.WriteString(strings.Join(wineColumns, ",") + "\n")
	for i := 0; i < rows; i++ {
		values := make([]string, 0, len(wineColumns))
		alcohol := 8 + rnd.Float64()*6
		for j := 0; j < 10; j++ {
			values = append(values, fmt.Sprintf("%.3f", rnd.Float64()*10))
		}
		values = append(values, fmt.Sprintf("%.2f", alcohol), fmt.Sprint(rnd.Intn(2)))

		quality := math.Round(3 + (alcohol-8)/6*5 + rnd.NormFloat64()*0.5)
		values = append(values, fmt.Sprint(math.Max(3, math.Min(8, quality))))
		buf.WriteString(strings.Join(values, ",") + "\n")
	}
	return buf.Bytes()
}

type fakeFetcher struct {
	data []byte
	err  error

	bucket, key string
}

func (f *fakeFetcher) Fetch(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	f.bucket, f.key = bucket, key
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

// fakeTracker записывает всё, что логирует запуск.
type fakeTracker struct {
	mu sync.Mutex

	failOn string

	experiment string
	params     map[string]string
	metrics    map[string]float64
	artifacts  []string
	models     []string
	status     string
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{params: map[string]string{}, metrics: map[string]float64{}}
}

func (f *fakeTracker) check(op string) error {
	if f.failOn == op {
		return fmt.Errorf("%w: %s", tracking.ErrTracking, op)
	}
	return nil
}

func (f *fakeTracker) SetExperiment(_ context.Context, name string) (string, error) {
	f.experiment = name
	return "1", f.check("experiment")
}

func (f *fakeTracker) StartRun(_ context.Context, experimentID, _ string, _ []tracking.Tag) (*tracking.Run, error) {
	if err := f.check("start"); err != nil {
		return nil, err
	}
	f.status = tracking.StatusRunning
	return &tracking.Run{ID: "abc", ExperimentID: experimentID, ArtifactURI: "mlflow-artifacts:/1/abc/artifacts"}, nil
}

func (f *fakeTracker) LogParam(_ context.Context, _ *tracking.Run, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params[key] = value
	return f.check("param")
}

func (f *fakeTracker) LogMetric(_ context.Context, _ *tracking.Run, key string, value float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: metric %s is not finite", tracking.ErrTracking, key)
	}
	f.metrics[key] = value
	return nil
}

func (f *fakeTracker) LogArtifact(_ context.Context, _ *tracking.Run, localPath, _ string) error {
	if _, err := os.Stat(localPath); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifacts = append(f.artifacts, filepath.Base(localPath))
	return f.check("artifact")
}

func (f *fakeTracker) LogModel(_ context.Context, run *tracking.Run, artifactPath string, model json.Marshaler, _ map[string]any) (*tracking.ModelInfo, error) {
	if _, err := model.MarshalJSON(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models = append(f.models, artifactPath)
	return &tracking.ModelInfo{ArtifactPath: artifactPath, RunID: run.ID}, nil
}

func (f *fakeTracker) EndRun(_ context.Context, _ *tracking.Run, status string) error {
	f.status = status
	return nil
}

type memoryStore struct {
	runs map[string]domain.Run
}

func (s *memoryStore) Create(_ context.Context, run *domain.Run) error {
	s.runs[run.ID.String()] = *run
	return nil
}

func (s *memoryStore) Update(_ context.Context, run *domain.Run) error {
	s.runs[run.ID.String()] = *run
	return nil
}

type recordingPublisher struct {
	events []*domain.Run
}

func (p *recordingPublisher) PublishRunCompleted(_ context.Context, run *domain.Run) error {
	p.events = append(p.events, run)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	training := config.DefaultTraining()
	training.NEstimators = 10

	return &config.Config{
		Storage: config.StorageConfig{
			URI:    "minio:9000",
			Bucket: config.DefaultBucket,
			Object: config.DefaultObject,
		},
		Tracking: config.TrackingConfig{
			URI:        "http://mlflow:5000",
			Experiment: config.DefaultExperiment,
		},
		Training:  training,
		OutputDir: t.TempDir(),
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	cfg := testConfig(t)

	if _, err := New(cfg, Options{Tracker: newFakeTracker()}); !errors.Is(err, ErrNoFetcher) {
		t.Errorf("expected ErrNoFetcher, got %v", err)
	}
	if _, err := New(cfg, Options{Fetcher: &fakeFetcher{}}); !errors.Is(err, ErrNoTracker) {
		t.Errorf("expected ErrNoTracker, got %v", err)
	}
}

func TestPipeline_StageOrder(t *testing.T) {
	p, err := New(testConfig(t), Options{Fetcher: &fakeFetcher{}, Tracker: newFakeTracker()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{StageFetch, StageSplit, StageTrain, StageReport}
	stages := p.Stages()
	if len(stages) != len(want) {
		t.Fatalf("expected %d stages, got %d", len(want), len(stages))
	}
	for i, st := range stages {
		if st.Name() != want[i] {
			t.Errorf("stage %d: expected %s, got %s", i, want[i], st.Name())
		}
	}
}

func TestPipeline_Run_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	fetcher := &fakeFetcher{data: wineCSV(1599)}
	tracker := newFakeTracker()
	store := &memoryStore{runs: map[string]domain.Run{}}
	publisher := &recordingPublisher{}
	metrics := telemetry.NewMetrics()

	p, err := New(cfg, Options{
		Fetcher:   fetcher,
		Tracker:   tracker,
		Store:     store,
		Publisher: publisher,
		Metrics:   metrics,
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Источник
	if fetcher.bucket != "cml" || fetcher.key != "wine_quality.csv" {
		t.Errorf("fetched %s/%s", fetcher.bucket, fetcher.key)
	}

	// Split
	if run.TrainRows != 1279 || run.TestRows != 320 {
		t.Errorf("expected 1279/320, got %d/%d", run.TrainRows, run.TestRows)
	}

	// Tracking
	if tracker.experiment != "training experiment" {
		t.Errorf("unexpected experiment %q", tracker.experiment)
	}
	if tracker.params[ParamMaxDepth] != "5" {
		t.Errorf("expected max_depth=5, got %q", tracker.params[ParamMaxDepth])
	}
	if len(tracker.models) != 1 || tracker.models[0] != ModelArtifactPath {
		t.Errorf("expected one model under %q, got %v", ModelArtifactPath, tracker.models)
	}

	wantFiles := []string{report.MetricsFile, report.FeatureImportanceFile, report.ResidualsFile}
	if len(tracker.artifacts) != len(wantFiles) {
		t.Fatalf("expected %d artifacts, got %v", len(wantFiles), tracker.artifacts)
	}
	for i, name := range wantFiles {
		if tracker.artifacts[i] != name {
			t.Errorf("artifact %d: expected %s, got %s", i, name, tracker.artifacts[i])
		}
	}
	if tracker.status != tracking.StatusFinished {
		t.Errorf("expected tracking run FINISHED, got %s", tracker.status)
	}

	// Scores
	for name, s := range map[string]float64{"train": run.TrainScore, "test": run.TestScore} {
		if s < 0 || s > 100 {
			t.Errorf("%s score %v out of [0, 100]", name, s)
		}
	}
	if tracker.metrics[MetricTestScore] != run.TestScore {
		t.Errorf("logged test score %v, run has %v", tracker.metrics[MetricTestScore], run.TestScore)
	}

	// Локальные файлы
	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, report.MetricsFile))
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) != 2 {
		t.Errorf("expected 2 metric lines, got %q", data)
	}

	// Run
	if run.Status != domain.RunStatusSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", run.Status)
	}
	if run.TrackingRunID != "abc" || run.ExperimentID != "1" {
		t.Errorf("tracking ids not recorded: %+v", run)
	}
	if stored := store.runs[run.ID.String()]; stored.Status != domain.RunStatusSucceeded {
		t.Errorf("store has status %s", stored.Status)
	}
	if len(publisher.events) != 1 || publisher.events[0].ID != run.ID {
		t.Errorf("expected one completion event, got %d", len(publisher.events))
	}
}

// constantQuality заменяет quality на одно значение во всех строках.
func constantQuality(data []byte, quality string) []byte {
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	for i := 1; i < len(lines); i++ {
		cut := strings.LastIndex(lines[i], ",")
		lines[i] = lines[i][:cut+1] + quality
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

func TestPipeline_Run_ConstantTarget(t *testing.T) {
	cfg := testConfig(t)
	tracker := newFakeTracker()

	p, err := New(cfg, Options{
		Fetcher: &fakeFetcher{data: constantQuality(wineCSV(50), "5")},
		Tracker: tracker,
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.TrainScore != 100 || run.TestScore != 100 {
		t.Errorf("exact fit should score 100/100, got %v/%v", run.TrainScore, run.TestScore)
	}
	if tracker.status != tracking.StatusFinished {
		t.Errorf("expected tracking run FINISHED, got %s", tracker.status)
	}

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, report.MetricsFile))
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	want := "Training variance explained: 100.0%\nTest variance explained: 100.0%\n"
	if string(data) != want {
		t.Errorf("unexpected metrics file %q", data)
	}
}

func TestPipeline_Run_FetchError(t *testing.T) {
	tracker := newFakeTracker()
	publisher := &recordingPublisher{}
	p, _ := New(testConfig(t), Options{
		Fetcher:   &fakeFetcher{err: errors.New("connection refused")},
		Tracker:   tracker,
		Publisher: publisher,
	})

	run, err := p.Run(context.Background())
	if !errors.Is(err, ErrStageFailed) {
		t.Fatalf("expected ErrStageFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), StageFetch) {
		t.Errorf("error should name the stage: %v", err)
	}

	if tracker.status != tracking.StatusFailed {
		t.Errorf("expected tracking run FAILED, got %s", tracker.status)
	}
	if run.Status != domain.RunStatusFailed || run.Error == "" {
		t.Errorf("expected FAILED run with error, got %+v", run)
	}
	if len(tracker.artifacts) != 0 {
		t.Errorf("no artifacts expected, got %v", tracker.artifacts)
	}
	if len(publisher.events) != 1 {
		t.Errorf("failed run should still publish completion, got %d", len(publisher.events))
	}
}

func TestPipeline_Run_MissingTarget(t *testing.T) {
	tracker := newFakeTracker()
	p, _ := New(testConfig(t), Options{
		Fetcher: &fakeFetcher{data: []byte("a,b\n1,2\n3,4\n")},
		Tracker: tracker,
	})

	if _, err := p.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing target column")
	}
	if tracker.status != tracking.StatusFailed {
		t.Errorf("expected tracking run FAILED, got %s", tracker.status)
	}
}

func TestPipeline_Run_TrackingUnavailable(t *testing.T) {
	tracker := newFakeTracker()
	tracker.failOn = "experiment"

	p, _ := New(testConfig(t), Options{Fetcher: &fakeFetcher{data: wineCSV(20)}, Tracker: tracker})

	run, err := p.Run(context.Background())
	if !errors.Is(err, tracking.ErrTracking) {
		t.Fatalf("expected ErrTracking, got %v", err)
	}
	if run.Status != domain.RunStatusFailed {
		t.Errorf("expected FAILED, got %s", run.Status)
	}
	if tracker.status != "" {
		t.Errorf("no tracking run should be opened, got status %s", tracker.status)
	}
}

func TestPipeline_Run_ArtifactError(t *testing.T) {
	tracker := newFakeTracker()
	tracker.failOn = "artifact"

	p, _ := New(testConfig(t), Options{Fetcher: &fakeFetcher{data: wineCSV(200)}, Tracker: tracker})

	if _, err := p.Run(context.Background()); !errors.Is(err, tracking.ErrTracking) {
		t.Fatalf("expected ErrTracking, got %v", err)
	}
	if tracker.status != tracking.StatusFailed {
		t.Errorf("expected tracking run FAILED, got %s", tracker.status)
	}
}
