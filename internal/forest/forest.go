package forest

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Regressor — random forest для регрессии.
type Regressor struct {
	// NEstimators — число деревьев.
	NEstimators int

	// MaxDepth — максимальная глубина дерева (корень — 0). 0 — без ограничения.
	MaxDepth int

	// MinSamplesSplit — минимум строк в узле для попытки сплита.
	MinSamplesSplit int

	// MinSamplesLeaf — минимум строк в каждом потомке.
	MinSamplesLeaf int

	// MaxFeatures — число признаков для поиска сплита. 0 — все.
	MaxFeatures int

	// Bootstrap — обучать деревья на bootstrap-выборках.
	Bootstrap bool

	// RandomState — seed для bootstrap и выбора признаков.
	RandomState int64

	// Parallelism — число одновременно обучаемых деревьев. 0 — GOMAXPROCS.
	Parallelism int

	trees     []*Tree
	nFeatures int
}

// Option — функциональная опция Regressor.
type Option func(*Regressor)

// WithNEstimators задаёт число деревьев.
func WithNEstimators(n int) Option { return func(r *Regressor) { r.NEstimators = n } }

// WithMaxDepth ограничивает глубину деревьев.
func WithMaxDepth(d int) Option { return func(r *Regressor) { r.MaxDepth = d } }

// WithMinSamplesSplit задаёт минимум строк для сплита узла.
func WithMinSamplesSplit(n int) Option { return func(r *Regressor) { r.MinSamplesSplit = n } }

// WithMinSamplesLeaf задаёт минимум строк в листе.
func WithMinSamplesLeaf(n int) Option { return func(r *Regressor) { r.MinSamplesLeaf = n } }

// WithMaxFeatures задаёт число признаков, перебираемых при сплите.
func WithMaxFeatures(k int) Option { return func(r *Regressor) { r.MaxFeatures = k } }

// WithBootstrap включает или выключает bootstrap-выборки.
func WithBootstrap(b bool) Option { return func(r *Regressor) { r.Bootstrap = b } }

// WithRandomState задаёт seed.
func WithRandomState(seed int64) Option { return func(r *Regressor) { r.RandomState = seed } }

// WithParallelism ограничивает число одновременно обучаемых деревьев.
func WithParallelism(n int) Option { return func(r *Regressor) { r.Parallelism = n } }

// NewRegressor создаёт лес с параметрами по умолчанию:
// 100 деревьев, без ограничения глубины, все признаки, bootstrap.
func NewRegressor(opts ...Option) *Regressor {
	r := &Regressor{
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Params возвращает гиперпараметры в виде строк для логирования.
func (r *Regressor) Params() map[string]string {
	return map[string]string{
		"n_estimators":      fmt.Sprint(r.NEstimators),
		"max_depth":         fmt.Sprint(r.MaxDepth),
		"min_samples_split": fmt.Sprint(r.MinSamplesSplit),
		"min_samples_leaf":  fmt.Sprint(r.MinSamplesLeaf),
		"bootstrap":         fmt.Sprint(r.Bootstrap),
		"random_state":      fmt.Sprint(r.RandomState),
	}
}

func (r *Regressor) validate() error {
	switch {
	case r.NEstimators <= 0:
		return fmt.Errorf("%w: n_estimators must be positive, got %d", ErrInvalidParams, r.NEstimators)
	case r.MaxDepth < 0:
		return fmt.Errorf("%w: max_depth must not be negative, got %d", ErrInvalidParams, r.MaxDepth)
	case r.MinSamplesSplit < 2:
		return fmt.Errorf("%w: min_samples_split must be at least 2, got %d", ErrInvalidParams, r.MinSamplesSplit)
	case r.MinSamplesLeaf < 1:
		return fmt.Errorf("%w: min_samples_leaf must be at least 1, got %d", ErrInvalidParams, r.MinSamplesLeaf)
	case r.MaxFeatures < 0:
		return fmt.Errorf("%w: max_features must not be negative, got %d", ErrInvalidParams, r.MaxFeatures)
	}
	return nil
}

// Fit обучает лес на X (n x p) и y (n).
//
// Деревья обучаются параллельно; отмена ctx прерывает обучение
// до старта оставшихся деревьев.
func (r *Regressor) Fit(ctx context.Context, x [][]float64, y []float64) error {
	if err := r.validate(); err != nil {
		return err
	}
	p, err := checkShape(x, y)
	if err != nil {
		return err
	}

	// Seeds выдаются заранее: порядок выполнения горутин не влияет на результат.
	master := rand.New(rand.NewSource(r.RandomState))
	seeds := make([]int64, r.NEstimators)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	params := treeParams{
		maxDepth:        r.MaxDepth,
		minSamplesSplit: r.MinSamplesSplit,
		minSamplesLeaf:  r.MinSamplesLeaf,
		maxFeatures:     r.MaxFeatures,
	}

	parallelism := r.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	trees := make([]*Tree, r.NEstimators)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rnd := rand.New(rand.NewSource(seeds[i]))
			trees[i] = buildTree(x, y, r.sampleRows(len(x), rnd), params, rnd)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("fit trees: %w", err)
	}

	r.trees = trees
	r.nFeatures = p
	return nil
}

// sampleRows возвращает индексы строк для одного дерева.
func (r *Regressor) sampleRows(n int, rnd *rand.Rand) []int {
	idx := make([]int, n)
	for i := range idx {
		if r.Bootstrap {
			idx[i] = rnd.Intn(n)
		} else {
			idx[i] = i
		}
	}
	return idx
}

// checkShape проверяет согласованность X и y и возвращает число признаков.
func checkShape(x [][]float64, y []float64) (int, error) {
	if len(x) == 0 {
		return 0, ErrEmptyInput
	}
	if len(x) != len(y) {
		return 0, fmt.Errorf("%w: %d rows, %d targets", ErrShapeMismatch, len(x), len(y))
	}
	p := len(x[0])
	if p == 0 {
		return 0, fmt.Errorf("%w: no features", ErrShapeMismatch)
	}
	for i, row := range x {
		if len(row) != p {
			return 0, fmt.Errorf("%w: row %d has %d features, want %d", ErrShapeMismatch, i, len(row), p)
		}
	}
	return p, nil
}

// IsFitted возвращает true после успешного Fit или Load.
func (r *Regressor) IsFitted() bool {
	return len(r.trees) > 0
}

// NumFeatures возвращает число признаков, на которых обучена модель.
func (r *Regressor) NumFeatures() int {
	return r.nFeatures
}

// Trees возвращает обученные деревья.
func (r *Regressor) Trees() []*Tree {
	return r.trees
}

// Predict возвращает среднее предсказание деревьев для каждой строки.
func (r *Regressor) Predict(x [][]float64) ([]float64, error) {
	if !r.IsFitted() {
		return nil, ErrNotFitted
	}

	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != r.nFeatures {
			return nil, fmt.Errorf("%w: row %d has %d features, model has %d", ErrFeatureMismatch, i, len(row), r.nFeatures)
		}
		sum := 0.0
		for _, t := range r.trees {
			sum += t.predict(row)
		}
		out[i] = sum / float64(len(r.trees))
	}
	return out, nil
}

// Score возвращает коэффициент детерминации R² предсказаний на (X, y).
// Для константного y результат 1 при точном совпадении и 0 иначе.
func (r *Regressor) Score(x [][]float64, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("%w: %d rows, %d targets", ErrShapeMismatch, len(x), len(y))
	}
	pred, err := r.Predict(x)
	if err != nil {
		return 0, err
	}
	return rSquared(pred, y), nil
}

func rSquared(pred, y []float64) float64 {
	mean := stat.Mean(y, nil)
	var ssRes, ssTot float64
	for i := range y {
		d := y[i] - pred[i]
		ssRes += d * d
		m := y[i] - mean
		ssTot += m * m
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return stat.RSquaredFrom(pred, y, nil)
}

// FeatureImportances возвращает важность признаков (mean decrease in impurity).
// Сумма значений равна 1; все нули, если ни одно дерево не сделало сплит.
func (r *Regressor) FeatureImportances() []float64 {
	total := make([]float64, r.nFeatures)
	if !r.IsFitted() {
		return total
	}

	perTree := make([]float64, r.nFeatures)
	for _, t := range r.trees {
		if len(t.importances) != r.nFeatures {
			continue
		}
		sum := floats.Sum(t.importances)
		if sum <= 0 {
			continue
		}
		copy(perTree, t.importances)
		floats.Scale(1/sum, perTree)
		floats.Add(total, perTree)
	}

	if sum := floats.Sum(total); sum > 0 {
		floats.Scale(1/sum, total)
	}
	return total
}
