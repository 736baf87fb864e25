// Package frame implements the column-typed in-memory table that every
// pipeline stage reads and writes.
//
// A Frame is an ordered list of uniquely named columns of equal length. Each
// column is either Numeric (float64, NA is NaN) or Categorical (string, NA is
// the empty string). Operations return new frames that share column storage,
// so column slices must be treated as read-only once they are in a frame.
package frame

import (
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

// Kind is the storage kind of a column.
type Kind int

const (
	// Numeric columns hold float64 values. NaN marks a missing value.
	Numeric Kind = iota
	// Categorical columns hold strings. "" marks a missing value.
	Categorical
)

func (k Kind) String() string {
	if k == Categorical {
		return "categorical"
	}
	return "numeric"
}

// Column is a named, typed vector.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Strings []string
}

// NewNumeric creates a numeric column.
func NewNumeric(name string, values []float64) *Column {
	return &Column{Name: name, Kind: Numeric, Floats: values}
}

// NewCategorical creates a categorical column.
func NewCategorical(name string, values []string) *Column {
	return &Column{Name: name, Kind: Categorical, Strings: values}
}

// Len returns the number of cells.
func (c *Column) Len() int {
	if c.Kind == Categorical {
		return len(c.Strings)
	}
	return len(c.Floats)
}

// IsNA reports whether cell i is missing.
func (c *Column) IsNA(i int) bool {
	if c.Kind == Categorical {
		return c.Strings[i] == ""
	}
	return math.IsNaN(c.Floats[i])
}

// Cell formats cell i the way it is written to CSV.
func (c *Column) Cell(i int) string {
	if c.Kind == Categorical {
		return c.Strings[i]
	}
	v := c.Floats[i]
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Labels returns the column as strings, formatting numeric cells.
func (c *Column) Labels() []string {
	out := make([]string, c.Len())
	for i := range out {
		out[i] = c.Cell(i)
	}
	return out
}

func (c *Column) renamed(name string) *Column {
	cp := *c
	cp.Name = name
	return &cp
}

func (c *Column) take(rows []int) *Column {
	cp := &Column{Name: c.Name, Kind: c.Kind}
	if c.Kind == Categorical {
		cp.Strings = make([]string, len(rows))
		for i, r := range rows {
			cp.Strings[i] = c.Strings[r]
		}
		return cp
	}
	cp.Floats = make([]float64, len(rows))
	for i, r := range rows {
		cp.Floats[i] = c.Floats[r]
	}
	return cp
}

// Frame is an ordered collection of equally long, uniquely named columns.
type Frame struct {
	cols  []*Column
	index map[string]int
	nrows int
}

// New builds a frame. Column names must be unique and lengths equal.
func New(cols ...*Column) (*Frame, error) {
	f := &Frame{cols: cols, index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if c == nil {
			return nil, errors.NewValueError("frame.New", "nil column at position "+strconv.Itoa(i))
		}
		if _, dup := f.index[c.Name]; dup {
			return nil, errors.NewValueError("frame.New", "duplicate column name '"+c.Name+"'")
		}
		f.index[c.Name] = i
		if i == 0 {
			f.nrows = c.Len()
		} else if c.Len() != f.nrows {
			return nil, errors.NewDimensionError("frame.New", f.nrows, c.Len(), 0)
		}
	}
	return f, nil
}

// Len returns the number of rows.
func (f *Frame) Len() int { return f.nrows }

// Width returns the number of columns.
func (f *Frame) Width() int { return len(f.cols) }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Columns returns the columns in order.
func (f *Frame) Columns() []*Column {
	out := make([]*Column, len(f.cols))
	copy(out, f.cols)
	return out
}

// Column looks a column up by name.
func (f *Frame) Column(name string) (*Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.cols[i], true
}

// ColumnAt returns the i-th column.
func (f *Frame) ColumnAt(i int) *Column { return f.cols[i] }

// Has reports whether a column named name exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Drop returns a frame without the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	kept := make([]*Column, 0, len(f.cols))
	for _, c := range f.cols {
		if !skip[c.Name] {
			kept = append(kept, c)
		}
	}
	out, _ := New(kept...)
	if len(kept) == 0 {
		out.nrows = f.nrows
	}
	return out
}

// Select returns a frame with the named columns in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	cols := make([]*Column, len(names))
	for i, n := range names {
		c, ok := f.Column(n)
		if !ok {
			return nil, errors.NewMissingColumnError(n, "", f.Names())
		}
		cols[i] = c
	}
	return New(cols...)
}

// Rename returns a frame with columns renamed by mapping old -> new.
func (f *Frame) Rename(mapping map[string]string) (*Frame, error) {
	cols := make([]*Column, len(f.cols))
	for i, c := range f.cols {
		if to, ok := mapping[c.Name]; ok {
			cols[i] = c.renamed(to)
			continue
		}
		cols[i] = c
	}
	return New(cols...)
}

// MapNames returns a frame whose column names are fn(name).
func (f *Frame) MapNames(fn func(string) string) (*Frame, error) {
	mapping := make(map[string]string, len(f.cols))
	for _, c := range f.cols {
		mapping[c.Name] = fn(c.Name)
	}
	return f.Rename(mapping)
}

// Append returns a frame with c added as the last column.
func (f *Frame) Append(c *Column) (*Frame, error) {
	return New(append(f.Columns(), c)...)
}

// Take returns the rows at the given indices, in that order.
func (f *Frame) Take(rows []int) *Frame {
	cols := make([]*Column, len(f.cols))
	for i, c := range f.cols {
		cols[i] = c.take(rows)
	}
	out, _ := New(cols...)
	out.nrows = len(rows)
	return out
}

// Dense returns the frame as a row-major matrix. Every column must be numeric.
func (f *Frame) Dense() (*mat.Dense, error) {
	if f.nrows == 0 || len(f.cols) == 0 {
		return nil, errors.NewModelError("frame.Dense", "empty data", errors.ErrEmptyData)
	}
	var categorical []string
	for _, c := range f.cols {
		if c.Kind != Numeric {
			categorical = append(categorical, c.Name)
		}
	}
	if len(categorical) > 0 {
		return nil, errors.NewValueError("frame.Dense",
			"columns must be numeric, got categorical ["+strings.Join(categorical, ", ")+"]")
	}

	data := make([]float64, f.nrows*len(f.cols))
	w := len(f.cols)
	for j, c := range f.cols {
		for i, v := range c.Floats {
			data[i*w+j] = v
		}
	}
	return mat.NewDense(f.nrows, w, data), nil
}

// FromDense builds a numeric frame from a matrix and column names.
func FromDense(m mat.Matrix, names []string) (*Frame, error) {
	r, c := m.Dims()
	if len(names) != c {
		return nil, errors.NewDimensionError("frame.FromDense", c, len(names), 1)
	}
	cols := make([]*Column, c)
	for j := 0; j < c; j++ {
		vals := make([]float64, r)
		for i := 0; i < r; i++ {
			vals[i] = m.At(i, j)
		}
		cols[j] = NewNumeric(names[j], vals)
	}
	return New(cols...)
}
