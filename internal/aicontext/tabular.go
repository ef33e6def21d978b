package aicontext

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Augmenter expands small tables so the provider accepts them for context caching. It is a
// content policy, switchable per deployment.
type Augmenter struct {
	Enabled bool
	MinRows int
	// Rand drives numeric perturbation; nil uses the global source.
	Rand *rand.Rand
}

// Prepared is the payload that is actually uploaded.
type Prepared struct {
	Filename   string
	MIMEType   string
	Data       []byte
	RowsBefore int
	RowsAfter  int
	Augmented  bool
}

// Prepare converts tabular uploads to CSV and expands them when they are below the row threshold.
// Documents pass through untouched.
func (a Augmenter) Prepare(filename string, cls Classification, data []byte) (*Prepared, error) {
	if cls.Kind != KindTabular {
		return &Prepared{Filename: filename, MIMEType: cls.MIMEType, Data: data}, nil
	}

	table, err := readTable(cls, data)
	if err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("%w: spreadsheet has no rows", ErrEmptyFile)
	}
	header, rows := table[0], table[1:]

	p := &Prepared{
		Filename:   strings.TrimSuffix(filename, filepath.Ext(filename)) + ".csv",
		MIMEType:   mimeCSV,
		RowsBefore: len(rows),
	}
	if a.Enabled && len(rows) > 0 && len(rows) < a.MinRows {
		rows = a.Expand(len(header), rows)
		p.Augmented = true
	}
	p.RowsAfter = len(rows)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	p.Data = buf.Bytes()
	return p, nil
}

func readTable(cls Classification, data []byte) ([][]string, error) {
	if cls.Ext == ".xlsx" {
		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFileType, err)
		}
		defer f.Close()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil
		}
		return f.GetRows(sheets[0])
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFileType, err)
	}
	return rows, nil
}

type columnKind int

const (
	colText columnKind = iota
	colNumber
	colDate
)

type column struct {
	kind     columnKind
	integer  bool
	decimals int
	layout   string
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"02/01/2006",
	"01/02/2006",
}

// Expand duplicates rows until MinRows is reached. Copy n perturbs numeric cells by up to ±10%
// and shifts date cells forward by n weeks; text cells are copied verbatim.
func (a Augmenter) Expand(width int, rows [][]string) [][]string {
	out := make([][]string, 0, a.MinRows)
	out = append(out, rows...)
	if len(rows) == 0 {
		return out
	}
	cols := detectColumns(width, rows)
	for n := 1; len(out) < a.MinRows; n++ {
		for _, row := range rows {
			if len(out) >= a.MinRows {
				break
			}
			out = append(out, a.perturb(row, cols, n))
		}
	}
	return out
}

func (a Augmenter) perturb(row []string, cols []column, n int) []string {
	next := make([]string, len(row))
	for i, cell := range row {
		next[i] = cell
		if i >= len(cols) || strings.TrimSpace(cell) == "" {
			continue
		}
		switch c := cols[i]; c.kind {
		case colNumber:
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				continue
			}
			v *= 1 + (a.unit()*0.2 - 0.1)
			if c.integer {
				next[i] = strconv.FormatInt(int64(math.Round(v)), 10)
			} else {
				next[i] = strconv.FormatFloat(v, 'f', c.decimals, 64)
			}
		case colDate:
			t, err := time.Parse(c.layout, strings.TrimSpace(cell))
			if err != nil {
				continue
			}
			next[i] = t.AddDate(0, 0, 7*n).Format(c.layout)
		}
	}
	return next
}

func (a Augmenter) unit() float64 {
	if a.Rand != nil {
		return a.Rand.Float64()
	}
	return rand.Float64()
}

func detectColumns(width int, rows [][]string) []column {
	cols := make([]column, width)
	for i := range cols {
		cols[i] = detectColumn(i, rows)
	}
	return cols
}

func detectColumn(i int, rows [][]string) column {
	var values []string
	for _, r := range rows {
		if i < len(r) {
			if v := strings.TrimSpace(r[i]); v != "" {
				values = append(values, v)
			}
		}
	}
	if len(values) == 0 {
		return column{kind: colText}
	}

	if c, ok := numericColumn(values); ok {
		return c
	}
	for _, layout := range dateLayouts {
		if allParse(values, layout) {
			return column{kind: colDate, layout: layout}
		}
	}
	return column{kind: colText}
}

func numericColumn(values []string) (column, bool) {
	c := column{kind: colNumber, integer: true}
	for _, v := range values {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return column{}, false
		}
		if dot := strings.IndexByte(v, '.'); dot >= 0 {
			c.integer = false
			if d := len(v) - dot - 1; d > c.decimals {
				c.decimals = d
			}
		}
	}
	return c, true
}

func allParse(values []string, layout string) bool {
	for _, v := range values {
		if _, err := time.Parse(layout, v); err != nil {
			return false
		}
	}
	return true
}
