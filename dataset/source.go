// Package dataset implements the dataset stage: fetching a raw table from a
// source, normalising it into a frame, and writing the raw and processed
// snapshots.
package dataset

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tabflow/frame"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

// RawSource is what a source hands back: either a Bunch or a Table.
// The set is closed; Normalize rejects anything else.
type RawSource interface {
	isRawSource()
}

// Bunch is a data matrix with feature names and an optional target vector.
type Bunch struct {
	Data         mat.Matrix
	FeatureNames []string
	// Target is appended as a "target" column when non-nil.
	Target []float64
}

// Table is a source that already produced a frame.
type Table struct {
	Frame *frame.Frame
}

func (Bunch) isRawSource() {}
func (Table) isRawSource() {}

// TargetColumn is the canonical name of the label column.
const TargetColumn = "target"

// Normalize flattens src into a single frame. Bunch targets become a
// trailing "target" column.
func Normalize(src RawSource) (*frame.Frame, error) {
	switch s := src.(type) {
	case Bunch:
		return normalizeBunch(&s)
	case *Bunch:
		if s == nil {
			return nil, errors.NewSourceFormatError("bunch", "nil *Bunch")
		}
		return normalizeBunch(s)
	case Table:
		return normalizeTable(&s)
	case *Table:
		if s == nil {
			return nil, errors.NewSourceFormatError("table", "nil *Table")
		}
		return normalizeTable(s)
	case nil:
		return nil, errors.NewSourceFormatError("loader", "nil")
	default:
		return nil, errors.NewSourceFormatError("loader", fmt.Sprintf("%T", src))
	}
}

func normalizeTable(t *Table) (*frame.Frame, error) {
	if t.Frame == nil {
		return nil, errors.NewSourceFormatError("table", "table without a frame")
	}
	return t.Frame, nil
}

func normalizeBunch(b *Bunch) (*frame.Frame, error) {
	if b.Data == nil {
		return nil, errors.NewSourceFormatError("bunch", "bunch without data")
	}
	r, c := b.Data.Dims()
	if len(b.FeatureNames) != c {
		return nil, errors.NewSourceFormatError("bunch",
			fmt.Sprintf("bunch with %d feature names but %d columns", len(b.FeatureNames), c))
	}
	if b.Target != nil && len(b.Target) != r {
		return nil, errors.NewSourceFormatError("bunch",
			fmt.Sprintf("bunch with %d rows but %d targets", r, len(b.Target)))
	}

	f, err := frame.FromDense(b.Data, b.FeatureNames)
	if err != nil {
		return nil, errors.NewSourceFormatError("bunch", err.Error())
	}
	if b.Target != nil {
		target := append([]float64(nil), b.Target...)
		if f, err = f.Append(frame.NewNumeric(TargetColumn, target)); err != nil {
			return nil, errors.NewSourceFormatError("bunch", err.Error())
		}
	}
	return f, nil
}

// Source produces a RawSource.
type Source interface {
	Fetch(ctx context.Context) (RawSource, error)
	// Describe names the source in logs.
	Describe() string
}

// LoaderFunc adapts a zero-argument loader (a builtin dataset) to Source.
type LoaderFunc func() (RawSource, error)

// Fetch calls the loader unless ctx is already done.
func (f LoaderFunc) Fetch(ctx context.Context) (RawSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f()
}

// Describe implements Source.
func (f LoaderFunc) Describe() string { return "builtin loader" }

// named attaches a description to a LoaderFunc.
type named struct {
	LoaderFunc
	name string
}

func (n named) Describe() string { return n.name }

// Load fetches from src and normalizes the result.
func Load(ctx context.Context, src Source) (*frame.Frame, error) {
	raw, err := src.Fetch(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", src.Describe())
	}
	return Normalize(raw)
}
