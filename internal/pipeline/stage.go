package pipeline

import (
	"context"
	"encoding/json"
	"io"

	"github.com/shaiso/cmltrain/internal/dataset"
	"github.com/shaiso/cmltrain/internal/domain"
	"github.com/shaiso/cmltrain/internal/forest"
	"github.com/shaiso/cmltrain/internal/report"
	"github.com/shaiso/cmltrain/internal/tracking"
)

// Stage — одна стадия запуска.
//
// Каждая стадия (fetch, split, train, report) реализует этот интерфейс.
type Stage interface {
	// Name возвращает имя стадии.
	Name() string

	// Execute выполняет стадию: читает результаты предыдущих стадий
	// из State и дописывает туда свои.
	Execute(ctx context.Context, s *State) error
}

// State — данные, которые стадии передают друг другу.
type State struct {
	// Run — локальная запись о запуске.
	Run *domain.Run

	// TrackingRun — run в tracking server, в который логируется всё.
	TrackingRun *tracking.Run

	// Features — имена признаков в порядке колонок X.
	Features []string

	// X, Y — признаки и целевая переменная после fetch.
	X [][]float64
	Y []float64

	// Split — результат split.
	Split *dataset.Split

	// Model — обученная модель.
	Model *forest.Regressor

	// Scores — variance explained в процентах.
	Scores report.Scores

	// Files — локальные пути записанных артефактов.
	Files []string
}

// Fetcher отдаёт содержимое объекта из хранилища.
type Fetcher interface {
	Fetch(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Tracker — операции tracking server, которые использует запуск.
type Tracker interface {
	SetExperiment(ctx context.Context, name string) (string, error)
	StartRun(ctx context.Context, experimentID, runName string, tags []tracking.Tag) (*tracking.Run, error)
	LogParam(ctx context.Context, run *tracking.Run, key, value string) error
	LogMetric(ctx context.Context, run *tracking.Run, key string, value float64) error
	LogArtifact(ctx context.Context, run *tracking.Run, localPath, artifactPath string) error
	LogModel(ctx context.Context, run *tracking.Run, artifactPath string, model json.Marshaler, flavorParams map[string]any) (*tracking.ModelInfo, error)
	EndRun(ctx context.Context, run *tracking.Run, status string) error
}

// RunStore сохраняет историю запусков.
type RunStore interface {
	Create(ctx context.Context, run *domain.Run) error
	Update(ctx context.Context, run *domain.Run) error
}

// EventPublisher публикует событие о завершении запуска.
type EventPublisher interface {
	PublishRunCompleted(ctx context.Context, run *domain.Run) error
}
