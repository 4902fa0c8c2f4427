package report

import (
	"bytes"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var metricLine = regexp.MustCompile(`^[A-Za-z ]+: -?[0-9]+\.[0-9]%$`)

func TestFormatMetrics(t *testing.T) {
	got := FormatMetrics(NewScores(0.6123, 0.4051))
	want := "Training variance explained: 61.2%\nTest variance explained: 40.5%\n"
	if got != want {
		t.Errorf("unexpected metrics text:\n%q\nwant\n%q", got, want)
	}
}

func TestWriteMetrics_TwoLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), MetricsFile)

	for _, s := range []Scores{{Train: 100, Test: 0}, {Train: 5.55, Test: 99.96}, NewScores(0.5, 0.25)} {
		if err := WriteMetrics(path, s); err != nil {
			t.Fatalf("write metrics: %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read metrics: %v", err)
		}

		lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
		if len(lines) != 2 {
			t.Fatalf("expected 2 lines, got %d: %q", len(lines), data)
		}
		for _, line := range lines {
			if !metricLine.MatchString(line) {
				t.Errorf("line %q does not match <label>: <number>%%", line)
			}
		}
	}
}

func TestRankImportances(t *testing.T) {
	ranked, err := RankImportances(
		[]string{"alcohol", "sulphates", "density", "pH"},
		[]float64{0.4, 0.3, 0.15, 0.15},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"alcohol", "sulphates", "density", "pH"}
	for i, fi := range ranked {
		if fi.Feature != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], fi.Feature)
		}
	}

	if _, err := RankImportances([]string{"a"}, []float64{0.5, 0.5}); err == nil {
		t.Error("expected error for length mismatch")
	}
}

func TestReferenceLine_FixedRange(t *testing.T) {
	line := ReferenceLine()
	if len(line) != 2 {
		t.Fatalf("expected 2 points, got %d", len(line))
	}

	minX, maxX := math.Inf(1), math.Inf(-1)
	for _, pt := range line {
		if pt.X != pt.Y {
			t.Errorf("point %v is not on the diagonal", pt)
		}
		minX = math.Min(minX, pt.X)
		maxX = math.Max(maxX, pt.X)
	}
	if minX != 2.5 || maxX != 8.5 {
		t.Errorf("diagonal spans [%v, %v], want [2.5, 8.5]", minX, maxX)
	}
}

func TestResiduals(t *testing.T) {
	yTrue := []float64{5, 6, 7, 5}
	yPred := []float64{5.2, 5.8, 6.5, 5.1}

	a, err := Residuals(yTrue, yPred, 0.25, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := Residuals(yTrue, yPred, 0.25, rand.New(rand.NewSource(1)))

	for i := range a {
		if a[i] != b[i] {
			t.Errorf("point %d differs for the same seed", i)
		}
		if math.Abs(a[i].X-yTrue[i]) > 2 || math.Abs(a[i].Y-yPred[i]) > 2 {
			t.Errorf("point %d jitter too large: %v", i, a[i])
		}
	}

	zero, _ := Residuals(yTrue, yPred, 0, rand.New(rand.NewSource(1)))
	for i, pt := range zero {
		if pt.X != yTrue[i] || pt.Y != yPred[i] {
			t.Errorf("zero sigma should keep values, got %v", pt)
		}
	}

	if _, err := Residuals(yTrue, yPred[:2], 0.25, rand.New(rand.NewSource(1))); err == nil {
		t.Error("expected error for length mismatch")
	}
}

func TestVisible(t *testing.T) {
	in := ReferenceLine()
	in = append(in, in[0])
	in[2].X = 1
	if got := visible(in); len(got) != 2 {
		t.Errorf("expected 2 visible points, got %d", len(got))
	}
}

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func assertPNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if !bytes.HasPrefix(data, pngMagic) {
		t.Errorf("%s is not a PNG", path)
	}
}

func TestPlotFeatureImportance(t *testing.T) {
	path := filepath.Join(t.TempDir(), FeatureImportanceFile)

	ranked, _ := RankImportances([]string{"alcohol", "sulphates"}, []float64{0.7, 0.3})
	if err := PlotFeatureImportance(path, ranked, PlotOptions{}); err != nil {
		t.Fatalf("plot: %v", err)
	}
	assertPNG(t, path)

	if err := PlotFeatureImportance(path, nil, PlotOptions{}); err == nil {
		t.Error("expected error for empty importances")
	}
}

func TestPlotResiduals(t *testing.T) {
	dir := t.TempDir()

	pts, _ := Residuals([]float64{5, 6, 7, 3, 9}, []float64{5.1, 5.9, 6.6, 4, 8}, 0.25, rand.New(rand.NewSource(44)))
	path := filepath.Join(dir, ResidualsFile)
	if err := PlotResiduals(path, pts, PlotOptions{DPI: 72}); err != nil {
		t.Fatalf("plot: %v", err)
	}
	assertPNG(t, path)

	// Все точки вне окна: остаётся только диагональ.
	far, _ := Residuals([]float64{20, 30}, []float64{20, 30}, 0, rand.New(rand.NewSource(1)))
	empty := filepath.Join(dir, "empty.png")
	if err := PlotResiduals(empty, far, PlotOptions{}); err != nil {
		t.Fatalf("plot without visible points: %v", err)
	}
	assertPNG(t, empty)
}
