package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"
)

// Файлы модели внутри каталога артефактов.
const (
	MLmodelFile = "MLmodel"
	ModelFile   = "model.json"

	// FlavorName — flavor, под которым сохраняется лес.
	FlavorName = "go_random_forest"

	logModelHistoryTag = "mlflow.log-model.history"
	timeLayout         = "2006-01-02 15:04:05.000000"
)

// ModelInfo — описание сохранённой модели (содержимое MLmodel).
type ModelInfo struct {
	ArtifactPath   string                    `yaml:"artifact_path" json:"artifact_path"`
	Flavors        map[string]map[string]any `yaml:"flavors" json:"flavors"`
	ModelUUID      string                    `yaml:"model_uuid" json:"model_uuid"`
	RunID          string                    `yaml:"run_id" json:"run_id"`
	UTCTimeCreated string                    `yaml:"utc_time_created" json:"utc_time_created"`
}

// LogModel сохраняет модель в артефакты run под artifactPath:
// MLmodel (YAML) и model.json. Затем дописывает тег mlflow.log-model.history.
func (c *Client) LogModel(ctx context.Context, run *Run, artifactPath string, model json.Marshaler, flavorParams map[string]any) (*ModelInfo, error) {
	data, err := model.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("log model: %w", err)
	}

	flavor := map[string]any{"model_file": ModelFile}
	for k, v := range flavorParams {
		flavor[k] = v
	}

	info := &ModelInfo{
		ArtifactPath:   artifactPath,
		Flavors:        map[string]map[string]any{FlavorName: flavor},
		ModelUUID:      strings.ReplaceAll(uuid.New().String(), "-", ""),
		RunID:          run.ID,
		UTCTimeCreated: time.Now().UTC().Format(timeLayout),
	}

	mlmodel, err := yaml.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("log model: marshal MLmodel: %w", err)
	}

	dir, err := os.MkdirTemp("", "cmltrain-model-")
	if err != nil {
		return nil, fmt.Errorf("log model: %w", err)
	}
	defer os.RemoveAll(dir)

	files := []struct {
		name string
		data []byte
	}{
		{MLmodelFile, mlmodel},
		{ModelFile, data},
	}
	for _, f := range files {
		local := filepath.Join(dir, f.name)
		if err := os.WriteFile(local, f.data, 0o644); err != nil {
			return nil, fmt.Errorf("log model: %w", err)
		}
		if err := c.LogArtifact(ctx, run, local, artifactPath); err != nil {
			return nil, fmt.Errorf("log model: %w", err)
		}
	}

	history, err := json.Marshal([]*ModelInfo{info})
	if err != nil {
		return nil, fmt.Errorf("log model: marshal history: %w", err)
	}
	if err := c.SetTag(ctx, run, logModelHistoryTag, string(history)); err != nil {
		return nil, fmt.Errorf("log model: %w", err)
	}

	c.logger.Info("model logged",
		"tracking_run_id", run.ID,
		"artifact_path", artifactPath,
		"model_uuid", info.ModelUUID,
	)
	return info, nil
}
