package report

import (
	"fmt"
	"image/color"
	"math/rand"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Оформление графиков.
const (
	axisFontSize  = 18
	titleFontSize = 22

	// DefaultDPI — разрешение PNG.
	DefaultDPI = 120
)

// Границы осей графика остатков. Не зависят от данных.
const (
	ResidualAxisMin = 2.5
	ResidualAxisMax = 8.5
)

var (
	figureWidth  = 6.4 * vg.Inch
	figureHeight = 4.8 * vg.Inch

	barColor     = color.RGBA{R: 76, G: 114, B: 176, A: 255}
	scatterColor = color.RGBA{R: 31, G: 119, B: 180, A: 200}
)

// PlotOptions — общие параметры сохранения графиков.
type PlotOptions struct {
	// DPI — разрешение PNG. 0 — DefaultDPI.
	DPI int
}

func (o PlotOptions) dpi() int {
	if o.DPI <= 0 {
		return DefaultDPI
	}
	return o.DPI
}

// PlotFeatureImportance рисует горизонтальный bar chart важности признаков.
// ranked ожидается отсортированным по убыванию: первый признак рисуется сверху.
func PlotFeatureImportance(path string, ranked []FeatureImportance, opts PlotOptions) error {
	if len(ranked) == 0 {
		return fmt.Errorf("plot feature importance: no features")
	}

	p := plot.New()
	p.Title.Text = "Random forest\nfeature importance"
	p.Title.TextStyle.Font.Size = vg.Points(titleFontSize)
	p.X.Label.Text = "Importance"
	p.X.Label.TextStyle.Font.Size = vg.Points(axisFontSize)
	p.Y.Label.Text = "Feature"
	p.Y.Label.TextStyle.Font.Size = vg.Points(axisFontSize)
	p.X.Min = 0

	// Ось Y растёт вверх, поэтому порядок разворачиваем.
	n := len(ranked)
	values := make(plotter.Values, n)
	names := make([]string, n)
	for i, fi := range ranked {
		values[n-1-i] = fi.Importance
		names[n-1-i] = fi.Feature
	}

	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return fmt.Errorf("plot feature importance: %w", err)
	}
	bars.Horizontal = true
	bars.Color = barColor
	bars.LineStyle.Width = 0

	grid := plotter.NewGrid()
	grid.Horizontal.Width = 0

	p.Add(grid, bars)
	p.NominalY(names...)
	// Все важности нулевые, если ни одно дерево не сделало сплит.
	if p.X.Max <= 0 {
		p.X.Max = 1
	}

	return savePNG(p, path, figureWidth, figureHeight, opts.dpi())
}

// Residuals возвращает точки (true, predicted) с гауссовым шумом sigma
// по обеим осям: шум разводит совпадающие целые значения качества.
func Residuals(yTrue, yPred []float64, sigma float64, rnd *rand.Rand) (plotter.XYs, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("residuals: %d true values, %d predictions", len(yTrue), len(yPred))
	}

	// Сначала шум для предсказаний, затем для истинных значений.
	predNoise := make([]float64, len(yPred))
	for i := range predNoise {
		predNoise[i] = rnd.NormFloat64() * sigma
	}

	pts := make(plotter.XYs, len(yTrue))
	for i := range pts {
		pts[i].Y = yPred[i] + predNoise[i]
		pts[i].X = yTrue[i] + rnd.NormFloat64()*sigma
	}
	return pts, nil
}

// ReferenceLine возвращает диагональ y = x на фиксированном диапазоне осей.
func ReferenceLine() plotter.XYs {
	return plotter.XYs{
		{X: ResidualAxisMin, Y: ResidualAxisMin},
		{X: ResidualAxisMax, Y: ResidualAxisMax},
	}
}

// PlotResiduals рисует scatter истинных и предсказанных значений
// с диагональю y = x. Оси ограничены [2.5, 8.5], холст квадратный.
func PlotResiduals(path string, pts plotter.XYs, opts PlotOptions) error {
	p := plot.New()
	p.Title.Text = "Residuals"
	p.Title.TextStyle.Font.Size = vg.Points(titleFontSize)
	p.X.Label.Text = "True wine quality"
	p.X.Label.TextStyle.Font.Size = vg.Points(axisFontSize)
	p.Y.Label.Text = "Predicted wine quality"
	p.Y.Label.TextStyle.Font.Size = vg.Points(axisFontSize)

	p.X.Min, p.X.Max = ResidualAxisMin, ResidualAxisMax
	p.Y.Min, p.Y.Max = ResidualAxisMin, ResidualAxisMax

	diagonal, err := plotter.NewLine(ReferenceLine())
	if err != nil {
		return fmt.Errorf("plot residuals: %w", err)
	}
	diagonal.LineStyle.Color = color.Black
	diagonal.LineStyle.Width = vg.Points(1)

	p.Add(plotter.NewGrid())

	if in := visible(pts); len(in) > 0 {
		scatter, err := plotter.NewScatter(in)
		if err != nil {
			return fmt.Errorf("plot residuals: %w", err)
		}
		scatter.GlyphStyle.Color = scatterColor
		scatter.GlyphStyle.Radius = vg.Points(2.5)
		scatter.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(scatter)
	}

	p.Add(diagonal)

	return savePNG(p, path, figureHeight, figureHeight, opts.dpi())
}

// visible оставляет точки внутри окна осей; остальные всё равно
// не попали бы в область графика.
func visible(pts plotter.XYs) plotter.XYs {
	out := make(plotter.XYs, 0, len(pts))
	for _, pt := range pts {
		if pt.X < ResidualAxisMin || pt.X > ResidualAxisMax || pt.Y < ResidualAxisMin || pt.Y > ResidualAxisMax {
			continue
		}
		out = append(out, pt)
	}
	return out
}

// savePNG рисует график на холсте с заданным DPI и пишет PNG в path.
func savePNG(p *plot.Plot, path string, w, h vg.Length, dpi int) error {
	c := vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(dpi))
	p.Draw(draw.New(c))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
