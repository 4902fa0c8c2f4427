package forest

import (
	"encoding/json"
	"fmt"
	"io"
)

// FormatVersion — версия JSON-формата модели.
const FormatVersion = 1

type modelJSON struct {
	FormatVersion   int        `json:"format_version"`
	NEstimators     int        `json:"n_estimators"`
	MaxDepth        int        `json:"max_depth"`
	MinSamplesSplit int        `json:"min_samples_split"`
	MinSamplesLeaf  int        `json:"min_samples_leaf"`
	MaxFeatures     int        `json:"max_features"`
	Bootstrap       bool       `json:"bootstrap"`
	RandomState     int64      `json:"random_state"`
	NFeatures       int        `json:"n_features"`
	Trees           []treeJSON `json:"trees"`
}

type treeJSON struct {
	Nodes       []Node    `json:"nodes"`
	Importances []float64 `json:"importances"`
}

// MarshalJSON сериализует гиперпараметры и обученные деревья.
func (r *Regressor) MarshalJSON() ([]byte, error) {
	if !r.IsFitted() {
		return nil, ErrNotFitted
	}

	m := modelJSON{
		FormatVersion:   FormatVersion,
		NEstimators:     r.NEstimators,
		MaxDepth:        r.MaxDepth,
		MinSamplesSplit: r.MinSamplesSplit,
		MinSamplesLeaf:  r.MinSamplesLeaf,
		MaxFeatures:     r.MaxFeatures,
		Bootstrap:       r.Bootstrap,
		RandomState:     r.RandomState,
		NFeatures:       r.nFeatures,
		Trees:           make([]treeJSON, len(r.trees)),
	}
	for i, t := range r.trees {
		m.Trees[i] = treeJSON{Nodes: t.Nodes, Importances: t.importances}
	}

	return json.Marshal(m)
}

// Load восстанавливает обученную модель из JSON.
func Load(rd io.Reader) (*Regressor, error) {
	var m modelJSON
	if err := json.NewDecoder(rd).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if m.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("unsupported model format version %d", m.FormatVersion)
	}
	if len(m.Trees) == 0 || m.NFeatures <= 0 {
		return nil, fmt.Errorf("decode model: %w", ErrNotFitted)
	}

	r := &Regressor{
		NEstimators:     m.NEstimators,
		MaxDepth:        m.MaxDepth,
		MinSamplesSplit: m.MinSamplesSplit,
		MinSamplesLeaf:  m.MinSamplesLeaf,
		MaxFeatures:     m.MaxFeatures,
		Bootstrap:       m.Bootstrap,
		RandomState:     m.RandomState,
		nFeatures:       m.NFeatures,
		trees:           make([]*Tree, len(m.Trees)),
	}

	for i, tj := range m.Trees {
		if err := validateNodes(tj.Nodes, m.NFeatures); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		r.trees[i] = &Tree{Nodes: tj.Nodes, importances: tj.Importances}
	}
	return r, nil
}

// validateNodes проверяет ссылки узлов, чтобы predict не вышел за границы
// и не зациклился: дети всегда идут после родителя.
func validateNodes(nodes []Node, nFeatures int) error {
	if len(nodes) == 0 {
		return fmt.Errorf("no nodes")
	}
	for i, n := range nodes {
		if n.IsLeaf() {
			continue
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return fmt.Errorf("node %d: feature %d out of range", i, n.Feature)
		}
		if n.Left <= i || n.Left >= len(nodes) || n.Right <= i || n.Right >= len(nodes) {
			return fmt.Errorf("node %d: invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}
