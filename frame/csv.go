package frame

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

// DefaultNAValues are the cells read as missing when ReadOptions.NAValues is nil.
var DefaultNAValues = []string{"", "NA", "N/A", "NaN", "nan", "null"}

// ReadOptions controls CSV parsing.
type ReadOptions struct {
	// NoHeader means the first record is data, not column names.
	NoHeader bool
	// Names overrides the column names. Required length equals the record width.
	// Without a header and without Names, columns are named "0", "1", ...
	Names []string
	// NAValues are cell values read as missing. nil means DefaultNAValues.
	NAValues []string
}

// ReadCSV parses r into a frame. A column is numeric iff every non-missing
// cell parses as a float; otherwise it is categorical.
func ReadCSV(r io.Reader, opts ReadOptions) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parse csv")
	}
	if len(records) == 0 {
		return nil, errors.NewModelError("frame.ReadCSV", "empty csv", errors.ErrEmptyData)
	}

	var names []string
	if !opts.NoHeader {
		names = records[0]
		records = records[1:]
	}
	width := len(names)
	if width == 0 && len(records) > 0 {
		width = len(records[0])
	}
	if opts.Names != nil {
		if len(opts.Names) != width {
			return nil, errors.NewDimensionError("frame.ReadCSV", width, len(opts.Names), 1)
		}
		names = opts.Names
	}
	if names == nil {
		names = make([]string, width)
		for j := range names {
			names[j] = strconv.Itoa(j)
		}
	}

	naValues := opts.NAValues
	if naValues == nil {
		naValues = DefaultNAValues
	}
	na := make(map[string]bool, len(naValues))
	for _, v := range naValues {
		na[v] = true
	}

	cols := make([]*Column, width)
	for j := 0; j < width; j++ {
		cols[j] = inferColumn(names[j], records, j, na)
	}
	return New(cols...)
}

func inferColumn(name string, records [][]string, j int, na map[string]bool) *Column {
	floats := make([]float64, len(records))
	numeric := true
	for i, rec := range records {
		cell := strings.TrimSpace(rec[j])
		if na[cell] {
			floats[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			numeric = false
			break
		}
		floats[i] = v
	}
	if numeric {
		return NewNumeric(name, floats)
	}

	strs := make([]string, len(records))
	for i, rec := range records {
		cell := strings.TrimSpace(rec[j])
		if !na[cell] {
			strs[i] = cell
		}
	}
	return NewCategorical(name, strs)
}

// ReadCSVFile reads a CSV file with a header row and default NA values.
func ReadCSVFile(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()

	f, err := ReadCSV(file, ReadOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return f, nil
}

// WriteCSV writes the frame with a header row. Missing values are empty cells.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Names()); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	record := make([]string, len(f.cols))
	for i := 0; i < f.nrows; i++ {
		for j, c := range f.cols {
			record[j] = c.Cell(i)
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "write csv row %d", i)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

// WriteCSVFile creates the parent directory if needed and writes the frame to path.
func (f *Frame) WriteCSVFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := f.WriteCSV(file); err != nil {
		_ = file.Close()
		return err
	}
	return errors.Wrapf(file.Close(), "close %s", path)
}
