package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — один запуск обучения.
//
// Локальная запись о запуске. Параллельно tracking client создаёт
// свой run на tracking server; его ID хранится в TrackingRunID.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Experiment — имя эксперимента в tracking server.
	Experiment string `json:"experiment"`

	// ExperimentID — ID эксперимента, выданный tracking server.
	ExperimentID string `json:"experiment_id,omitempty"`

	// TrackingRunID — ID run в tracking server.
	TrackingRunID string `json:"tracking_run_id,omitempty"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Params — залогированные гиперпараметры.
	Params map[string]string `json:"params,omitempty"`

	// TrainRows, TestRows — размеры партиций после split.
	TrainRows int `json:"train_rows"`
	TestRows  int `json:"test_rows"`

	// TrainScore, TestScore — variance explained в процентах.
	TrainScore float64 `json:"train_score"`
	TestScore  float64 `json:"test_score"`

	// Artifacts — пути залогированных артефактов внутри run.
	Artifacts []string `json:"artifacts,omitempty"`

	// StartedAt — время перехода в RUNNING.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения (успешного или с ошибкой).
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки, если run завершился с FAILED.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// NewRun создаёт run в статусе PENDING.
func NewRun(experiment string) *Run {
	return &Run{
		ID:         uuid.New(),
		Experiment: experiment,
		Status:     RunStatusPending,
		Params:     make(map[string]string),
		CreatedAt:  time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkSucceeded переводит run в статус SUCCEEDED.
func (r *Run) MarkSucceeded() {
	now := time.Now()
	r.Status = RunStatusSucceeded
	r.FinishedAt = &now
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *Run) MarkFailed(err string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = err
}

// AddArtifact запоминает путь залогированного артефакта.
func (r *Run) AddArtifact(path string) {
	r.Artifacts = append(r.Artifacts, path)
}
