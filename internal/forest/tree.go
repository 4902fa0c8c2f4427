package forest

import (
	"math/rand"
	"sort"
)

// leafFeature — значение Node.Feature для листа.
const leafFeature = -1

// minGain — минимальное уменьшение squared error, при котором сплит принимается.
const minGain = 1e-12

// Node — узел дерева в плоском массиве Tree.Nodes.
type Node struct {
	// Feature — индекс признака сплита, -1 для листа.
	Feature int `json:"feature"`

	// Threshold — порог: x[Feature] <= Threshold уходит влево.
	Threshold float64 `json:"threshold,omitempty"`

	// Left, Right — индексы детей в Tree.Nodes.
	Left  int `json:"left,omitempty"`
	Right int `json:"right,omitempty"`

	// Value — среднее целевой переменной в узле.
	Value float64 `json:"value"`

	// Samples — число строк bootstrap-выборки в узле.
	Samples int `json:"samples"`
}

// IsLeaf возвращает true для листа.
func (n *Node) IsLeaf() bool {
	return n.Feature == leafFeature
}

// Tree — регрессионное CART-дерево.
type Tree struct {
	Nodes []Node `json:"nodes"`

	// importances — уменьшение squared error по признакам (не нормировано).
	importances []float64
}

// treeParams — параметры построения одного дерева.
type treeParams struct {
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int
}

// treeBuilder держит общие данные на время построения дерева.
type treeBuilder struct {
	x      [][]float64
	y      []float64
	params treeParams
	rnd    *rand.Rand
	tree   *Tree

	features []int
	order    []int
}

// buildTree строит дерево по строкам idx (с повторами для bootstrap).
func buildTree(x [][]float64, y []float64, idx []int, params treeParams, rnd *rand.Rand) *Tree {
	p := len(x[0])

	b := &treeBuilder{
		x:        x,
		y:        y,
		params:   params,
		rnd:      rnd,
		tree:     &Tree{importances: make([]float64, p)},
		features: make([]int, p),
	}
	for j := range b.features {
		b.features[j] = j
	}

	b.build(idx, 0)
	return b.tree
}

// build добавляет узел для строк idx и возвращает его индекс.
func (b *treeBuilder) build(idx []int, depth int) int {
	sum, sumSq := 0.0, 0.0
	for _, i := range idx {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}
	n := float64(len(idx))
	sse := sumSq - sum*sum/n

	nodeID := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{
		Feature: leafFeature,
		Value:   sum / n,
		Samples: len(idx),
	})

	if b.params.maxDepth > 0 && depth >= b.params.maxDepth {
		return nodeID
	}
	if len(idx) < b.params.minSamplesSplit || len(idx) < 2*b.params.minSamplesLeaf {
		return nodeID
	}
	if sse <= minGain {
		return nodeID
	}

	best, ok := b.bestSplit(idx, sse)
	if !ok {
		return nodeID
	}

	b.tree.importances[best.feature] += best.gain

	left := make([]int, 0, best.nLeft)
	right := make([]int, 0, len(idx)-best.nLeft)
	for _, i := range idx {
		if b.x[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	leftID := b.build(left, depth+1)
	rightID := b.build(right, depth+1)

	node := &b.tree.Nodes[nodeID]
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = leftID
	node.Right = rightID

	return nodeID
}

// split — лучший найденный сплит узла.
type split struct {
	feature   int
	threshold float64
	gain      float64
	nLeft     int
}

// bestSplit перебирает пороги по кандидатным признакам.
// Пороги — середины между соседними различными значениями.
func (b *treeBuilder) bestSplit(idx []int, parentSSE float64) (split, bool) {
	candidates := b.candidateFeatures()
	minLeaf := max(b.params.minSamplesLeaf, 1)

	if cap(b.order) < len(idx) {
		b.order = make([]int, len(idx))
	}
	order := b.order[:len(idx)]

	var best split
	found := false

	for _, f := range candidates {
		copy(order, idx)
		sort.Slice(order, func(a, c int) bool {
			return b.x[order[a]][f] < b.x[order[c]][f]
		})

		totalSum, totalSq := 0.0, 0.0
		for _, i := range order {
			totalSum += b.y[i]
			totalSq += b.y[i] * b.y[i]
		}

		leftSum, leftSq := 0.0, 0.0
		n := len(order)
		for k := 0; k < n-1; k++ {
			yi := b.y[order[k]]
			leftSum += yi
			leftSq += yi * yi

			nLeft := k + 1
			nRight := n - nLeft
			if nLeft < minLeaf || nRight < minLeaf {
				continue
			}

			cur := b.x[order[k]][f]
			next := b.x[order[k+1]][f]
			if next <= cur {
				continue
			}

			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			sseLeft := leftSq - leftSum*leftSum/float64(nLeft)
			sseRight := rightSq - rightSum*rightSum/float64(nRight)
			gain := parentSSE - sseLeft - sseRight

			if gain > minGain && (!found || gain > best.gain) {
				threshold := cur + (next-cur)/2
				// Середина может совпасть с next из-за округления.
				if threshold >= next {
					threshold = cur
				}
				best = split{feature: f, threshold: threshold, gain: gain, nLeft: nLeft}
				found = true
			}
		}
	}

	return best, found
}

// candidateFeatures возвращает признаки для поиска сплита в узле.
// При maxFeatures < p берётся случайное подмножество без повторов.
func (b *treeBuilder) candidateFeatures() []int {
	p := len(b.features)
	k := b.params.maxFeatures
	if k <= 0 || k >= p {
		return b.features
	}

	for i := 0; i < k; i++ {
		j := i + b.rnd.Intn(p-i)
		b.features[i], b.features[j] = b.features[j], b.features[i]
	}
	out := make([]int, k)
	copy(out, b.features[:k])
	sort.Ints(out)
	return out
}

// predict возвращает значение листа для строки row.
func (t *Tree) predict(row []float64) float64 {
	i := 0
	for {
		node := &t.Nodes[i]
		if node.IsLeaf() {
			return node.Value
		}
		if row[node.Feature] <= node.Threshold {
			i = node.Left
		} else {
			i = node.Right
		}
	}
}

// Depth возвращает глубину дерева (корень — глубина 0).
func (t *Tree) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	var walk func(i, d int) int
	walk = func(i, d int) int {
		node := &t.Nodes[i]
		if node.IsLeaf() {
			return d
		}
		return max(walk(node.Left, d+1), walk(node.Right, d+1))
	}
	return walk(0, 0)
}
