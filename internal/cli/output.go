package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shaiso/cmltrain/internal/domain"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с явными writers.
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
	}
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) error {
	if o.jsonMode {
		return o.JSON(jsonData)
	}
	return o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	return tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// --- Runs ---

var runHeaders = []string{"ID", "EXPERIMENT", "STATUS", "TRAIN_ROWS", "TEST_ROWS", "TRAIN_SCORE", "TEST_SCORE", "CREATED"}

func runRow(r domain.Run) []string {
	return []string{
		r.ID.String(),
		r.Experiment,
		string(r.Status),
		strconv.Itoa(r.TrainRows),
		strconv.Itoa(r.TestRows),
		formatScore(r.TrainScore),
		formatScore(r.TestScore),
		r.CreatedAt.Format(time.RFC3339),
	}
}

// PrintRuns выводит список runs.
func (o *Output) PrintRuns(runs []domain.Run) error {
	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = runRow(r)
	}
	if runs == nil {
		runs = []domain.Run{}
	}
	return o.Print(runHeaders, rows, runs)
}

// PrintRun выводит один run с подробностями.
func (o *Output) PrintRun(r *domain.Run) error {
	headers := append(append([]string{}, runHeaders...), "TRACKING_RUN", "DURATION", "ERROR")
	row := append(runRow(*r), r.TrackingRunID, r.Duration().Round(time.Millisecond).String(), r.Error)
	return o.Print(headers, [][]string{row}, r)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}
