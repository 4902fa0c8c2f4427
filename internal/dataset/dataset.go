// Package dataset читает табличные данные из CSV и делит их на train/test.
//
// Таблица целиком числовая и прямоугольная: первая строка — заголовок,
// каждая следующая — одна запись. Целевая колонка извлекается через Pop.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Dataset — прямоугольная числовая таблица.
type Dataset struct {
	// Columns — имена колонок в порядке заголовка.
	Columns []string

	// Rows — значения по строкам, len(Rows[i]) == len(Columns).
	Rows [][]float64
}

// Options — параметры чтения CSV.
type Options struct {
	// Comma — разделитель полей. По умолчанию ','.
	Comma rune
}

// ReadCSV читает CSV с заголовком в Dataset.
func ReadCSV(r io.Reader, opts Options) (*Dataset, error) {
	reader := csv.NewReader(r)
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}
	// Длину строк проверяем сами, чтобы вернуть ErrRagged.
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyDataset
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.Trim(name, `"`))
		if seen[name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
		}
		seen[name] = true
		columns[i] = name
	}

	ds := &Dataset{Columns: columns}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) != len(columns) {
			return nil, fmt.Errorf("%w: line %d has %d fields, want %d", ErrRagged, line, len(record), len(columns))
		}

		row := make([]float64, len(record))
		for j, cell := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d column %q: %q", ErrNonNumeric, line, columns[j], cell)
			}
			row[j] = v
		}
		ds.Rows = append(ds.Rows, row)
	}

	if len(ds.Rows) == 0 {
		return nil, ErrEmptyDataset
	}
	return ds, nil
}

// NumRows возвращает число строк.
func (d *Dataset) NumRows() int {
	return len(d.Rows)
}

// NumFeatures возвращает число колонок.
func (d *Dataset) NumFeatures() int {
	return len(d.Columns)
}

// ColumnIndex возвращает индекс колонки по имени или -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column возвращает копию значений колонки j.
func (d *Dataset) Column(j int) []float64 {
	out := make([]float64, len(d.Rows))
	for i, row := range d.Rows {
		out[i] = row[j]
	}
	return out
}

// Pop удаляет колонку из таблицы и возвращает её значения.
func (d *Dataset) Pop(name string) ([]float64, error) {
	j := d.ColumnIndex(name)
	if j < 0 {
		return nil, fmt.Errorf("%w: %q", ErrTargetNotFound, name)
	}

	values := d.Column(j)

	d.Columns = append(d.Columns[:j:j], d.Columns[j+1:]...)
	for i, row := range d.Rows {
		d.Rows[i] = append(row[:j:j], row[j+1:]...)
	}
	return values, nil
}

// Subset возвращает таблицу из строк idx в заданном порядке.
// Строки не копируются и разделяются с исходной таблицей.
func (d *Dataset) Subset(idx []int) (*Dataset, error) {
	rows := make([][]float64, len(idx))
	for i, k := range idx {
		if k < 0 || k >= len(d.Rows) {
			return nil, fmt.Errorf("%w: %d of %d", ErrRowOutOfRange, k, len(d.Rows))
		}
		rows[i] = d.Rows[k]
	}
	return &Dataset{Columns: d.Columns, Rows: rows}, nil
}
