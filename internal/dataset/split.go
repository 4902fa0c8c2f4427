package dataset

import (
	"fmt"
	"math"
	"math/rand"
)

// Split — разбиение строк на train и test.
type Split struct {
	// TrainIndex, TestIndex — индексы исходных строк.
	TrainIndex []int
	TestIndex  []int

	XTrain, XTest [][]float64
	YTrain, YTest []float64
}

// TrainTestSplit делит строки на train/test в фиксированной пропорции.
//
// Размер test — ceil(testSize * n), остальное уходит в train.
// Порядок строк задаётся перестановкой от seed: одинаковые вход и seed
// всегда дают одинаковые индексы.
func TrainTestSplit(x [][]float64, y []float64, testSize float64, seed int64) (*Split, error) {
	n := len(x)
	if n != len(y) {
		return nil, fmt.Errorf("%w: %d feature rows, %d targets", ErrInvalidSplit, n, len(y))
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, fmt.Errorf("%w: test size %v not in (0, 1)", ErrInvalidSplit, testSize)
	}

	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest == 0 || nTrain == 0 {
		return nil, fmt.Errorf("%w: %d rows with test size %v", ErrInvalidSplit, n, testSize)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)

	s := &Split{
		TestIndex:  perm[:nTest],
		TrainIndex: perm[nTest:],
	}
	s.XTest, s.YTest = take(x, y, s.TestIndex)
	s.XTrain, s.YTrain = take(x, y, s.TrainIndex)

	return s, nil
}

func take(x [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, k := range idx {
		xs[i] = x[k]
		ys[i] = y[k]
	}
	return xs, ys
}
