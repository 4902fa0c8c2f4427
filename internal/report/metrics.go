// Package report формирует артефакты запуска: metrics.txt и два графика.
package report

import (
	"fmt"
	"os"
	"sort"
)

// Имена файлов артефактов.
const (
	MetricsFile           = "metrics.txt"
	FeatureImportanceFile = "feature_importance.png"
	ResidualsFile         = "residuals.png"
)

// Scores — variance explained (R² × 100) на train и test.
type Scores struct {
	Train float64
	Test  float64
}

// NewScores переводит R² в проценты.
func NewScores(trainR2, testR2 float64) Scores {
	return Scores{Train: trainR2 * 100, Test: testR2 * 100}
}

// FormatMetrics возвращает содержимое metrics.txt: ровно две строки.
func FormatMetrics(s Scores) string {
	return fmt.Sprintf("Training variance explained: %2.1f%%\nTest variance explained: %2.1f%%\n", s.Train, s.Test)
}

// WriteMetrics записывает metrics.txt.
func WriteMetrics(path string, s Scores) error {
	if err := os.WriteFile(path, []byte(FormatMetrics(s)), 0o644); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// FeatureImportance — важность одного признака.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// RankImportances сортирует признаки по убыванию важности.
// При равной важности порядок — по имени.
func RankImportances(names []string, importances []float64) ([]FeatureImportance, error) {
	if len(names) != len(importances) {
		return nil, fmt.Errorf("rank importances: %d names, %d values", len(names), len(importances))
	}

	ranked := make([]FeatureImportance, len(names))
	for i := range names {
		ranked[i] = FeatureImportance{Feature: names[i], Importance: importances[i]}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Importance != ranked[j].Importance {
			return ranked[i].Importance > ranked[j].Importance
		}
		return ranked[i].Feature < ranked[j].Feature
	})
	return ranked, nil
}
