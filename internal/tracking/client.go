package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Статусы run в tracking server.
const (
	StatusRunning  = "RUNNING"
	StatusFinished = "FINISHED"
	StatusFailed   = "FAILED"
)

// Uploader загружает файл в S3-совместимое хранилище.
// Нужен, когда tracking server хранит артефакты в s3://.
type Uploader interface {
	Upload(ctx context.Context, bucket, key, path string) error
}

// Config — конфигурация Client.
type Config struct {
	// URI — адрес tracking server, например http://mlflow:5000.
	URI string

	// Uploader — загрузка артефактов для s3:// (опционально).
	Uploader Uploader

	// HTTPClient — HTTP-клиент (опционально; по умолчанию с таймаутом 30s).
	HTTPClient *http.Client

	// Logger
	Logger *slog.Logger
}

// Client — клиент MLflow REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	uploader   Uploader
	logger     *slog.Logger
}

// Experiment — эксперимент в tracking server.
type Experiment struct {
	ID               string `json:"experiment_id"`
	Name             string `json:"name"`
	ArtifactLocation string `json:"artifact_location"`
	LifecycleStage   string `json:"lifecycle_stage"`
}

// Run — run в tracking server.
type Run struct {
	ID           string `json:"run_id"`
	ExperimentID string `json:"experiment_id"`
	Name         string `json:"run_name"`
	Status       string `json:"status"`
	ArtifactURI  string `json:"artifact_uri"`
	StartTime    int64  `json:"start_time"`
	EndTime      int64  `json:"end_time,omitempty"`
}

// Tag — тег run.
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NewClient создаёт клиент tracking server.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URI, "/"),
		httpClient: httpClient,
		uploader:   cfg.Uploader,
		logger:     logger,
	}
}

// --- Experiments ---

// GetExperimentByName возвращает эксперимент по имени.
// Возвращает ErrExperimentNotFound, если его нет.
func (c *Client) GetExperimentByName(ctx context.Context, name string) (*Experiment, error) {
	var resp struct {
		Experiment Experiment `json:"experiment"`
	}

	params := url.Values{"experiment_name": {name}}
	err := c.do(ctx, http.MethodGet, "/api/2.0/mlflow/experiments/get-by-name?"+params.Encode(), nil, &resp)
	if isCode(err, codeResourceDoesNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrExperimentNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get experiment %q: %w", name, err)
	}
	return &resp.Experiment, nil
}

// CreateExperiment создаёт эксперимент и возвращает его ID.
func (c *Client) CreateExperiment(ctx context.Context, name string) (string, error) {
	var resp struct {
		ExperimentID string `json:"experiment_id"`
	}

	body := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPost, "/api/2.0/mlflow/experiments/create", body, &resp); err != nil {
		return "", fmt.Errorf("create experiment %q: %w", name, err)
	}
	return resp.ExperimentID, nil
}

// SetExperiment возвращает ID эксперимента, создавая его при отсутствии.
func (c *Client) SetExperiment(ctx context.Context, name string) (string, error) {
	exp, err := c.GetExperimentByName(ctx, name)
	if err == nil {
		return exp.ID, nil
	}
	if !errors.Is(err, ErrExperimentNotFound) {
		return "", err
	}

	id, err := c.CreateExperiment(ctx, name)
	if isCode(err, codeResourceAlreadyExists) {
		// Эксперимент создан параллельно другим запуском.
		exp, getErr := c.GetExperimentByName(ctx, name)
		if getErr != nil {
			return "", getErr
		}
		return exp.ID, nil
	}
	if err != nil {
		return "", err
	}

	c.logger.Info("experiment created", "experiment", name, "experiment_id", id)
	return id, nil
}

// --- Runs ---

// StartRun создаёт run в эксперименте.
func (c *Client) StartRun(ctx context.Context, experimentID, runName string, tags []Tag) (*Run, error) {
	var resp struct {
		Run struct {
			Info Run `json:"info"`
		} `json:"run"`
	}

	if tags == nil {
		tags = []Tag{}
	}

	body := map[string]any{
		"experiment_id": experimentID,
		"start_time":    time.Now().UnixMilli(),
		"tags":          tags,
	}
	if runName != "" {
		body["run_name"] = runName
	}

	if err := c.do(ctx, http.MethodPost, "/api/2.0/mlflow/runs/create", body, &resp); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	run := resp.Run.Info
	c.logger.Info("tracking run started",
		"tracking_run_id", run.ID,
		"experiment_id", experimentID,
		"artifact_uri", run.ArtifactURI,
	)
	return &run, nil
}

// LogParam логирует параметр run.
func (c *Client) LogParam(ctx context.Context, run *Run, key, value string) error {
	body := map[string]string{"run_id": run.ID, "key": key, "value": value}
	if err := c.do(ctx, http.MethodPost, "/api/2.0/mlflow/runs/log-parameter", body, nil); err != nil {
		return fmt.Errorf("log param %s: %w", key, err)
	}
	return nil
}

// LogMetric логирует метрику run.
func (c *Client) LogMetric(ctx context.Context, run *Run, key string, value float64) error {
	body := map[string]any{
		"run_id":    run.ID,
		"key":       key,
		"value":     value,
		"timestamp": time.Now().UnixMilli(),
		"step":      0,
	}
	if err := c.do(ctx, http.MethodPost, "/api/2.0/mlflow/runs/log-metric", body, nil); err != nil {
		return fmt.Errorf("log metric %s: %w", key, err)
	}
	return nil
}

// SetTag выставляет тег run.
func (c *Client) SetTag(ctx context.Context, run *Run, key, value string) error {
	body := map[string]string{"run_id": run.ID, "key": key, "value": value}
	if err := c.do(ctx, http.MethodPost, "/api/2.0/mlflow/runs/set-tag", body, nil); err != nil {
		return fmt.Errorf("set tag %s: %w", key, err)
	}
	return nil
}

// EndRun завершает run с указанным статусом (FINISHED, FAILED, KILLED).
func (c *Client) EndRun(ctx context.Context, run *Run, status string) error {
	body := map[string]any{
		"run_id":   run.ID,
		"status":   status,
		"end_time": time.Now().UnixMilli(),
	}
	if err := c.do(ctx, http.MethodPost, "/api/2.0/mlflow/runs/update", body, nil); err != nil {
		return fmt.Errorf("end run: %w", err)
	}

	run.Status = status
	c.logger.Info("tracking run ended", "tracking_run_id", run.ID, "status", status)
	return nil
}

// --- HTTP ---

// do выполняет запрос к REST API.
// body сериализуется в JSON, ответ декодируется в out (если не nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// decodeError разбирает тело ошибки MLflow {"error_code", "message"}.
func decodeError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(body, apiErr); err != nil || (apiErr.Code == "" && apiErr.Message == "") {
		apiErr.Message = truncate(strings.TrimSpace(string(body)), 200)
	}
	return apiErr
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
