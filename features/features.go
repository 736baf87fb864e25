// Package features implements the feature stage: it splits a processed
// frame into a numeric feature matrix and a label vector.
//
// Categorical columns are one-hot (or ordinal) encoded and numeric columns
// are mean-imputed and standardized. Every transform is fitted on the frame
// it transforms. Row order is preserved.
package features

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tabflow/core/model"
	"github.com/YuminosukeSato/tabflow/frame"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
	"github.com/YuminosukeSato/tabflow/pkg/log"
	"github.com/YuminosukeSato/tabflow/preprocessing"
)

// LabelColumn is the name of the label vector when written out.
const LabelColumn = "target"

// Fallback decides what happens when the requested target is missing.
type Fallback int

const (
	// FallbackLastColumn uses the last column as the target and logs a warning.
	FallbackLastColumn Fallback = iota
	// FallbackNone fails with MissingColumnError.
	FallbackNone
)

// Encoding selects the categorical encoder.
type Encoding int

const (
	OneHot Encoding = iota
	Ordinal
)

// Scaling selects the numeric scaler.
type Scaling int

const (
	Standard Scaling = iota
	MinMax
	NoScaling
)

// Options configure Separate. The zero value (besides Target) is one-hot
// encoding, standard scaling and last-column fallback.
type Options struct {
	Target   string
	Fallback Fallback
	Encoding Encoding
	Scale    Scaling
	Logger   log.Logger
}

// FeatureMatrix is the all-numeric predictor table.
type FeatureMatrix struct {
	*frame.Frame
}

// LabelVector is the label column, named "target".
type LabelVector struct {
	*frame.Column
}

// ResolveTarget returns the column to use as the target.
func ResolveTarget(f *frame.Frame, opts Options) (string, error) {
	if f.Has(opts.Target) {
		return opts.Target, nil
	}
	if opts.Fallback == FallbackNone || f.Width() < 2 {
		fallback := ""
		if opts.Fallback == FallbackLastColumn && f.Width() > 0 {
			fallback = f.ColumnAt(f.Width() - 1).Name
		}
		return "", errors.NewMissingColumnError(opts.Target, fallback, f.Names())
	}
	last := f.ColumnAt(f.Width() - 1).Name
	logger(opts).Warn(fmt.Sprintf("Target column '%s' not found. Using the last column '%s' as target.", opts.Target, last),
		log.TargetKey, last,
	)
	return last, nil
}

func logger(opts Options) log.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return log.GetLoggerWithName("features")
}

// Separate splits f into features and labels.
func Separate(f *frame.Frame, opts Options) (FeatureMatrix, LabelVector, error) {
	target, err := ResolveTarget(f, opts)
	if err != nil {
		return FeatureMatrix{}, LabelVector{}, err
	}
	labelCol, _ := f.Column(target)
	predictors := f.Drop(target)
	if predictors.Width() == 0 {
		return FeatureMatrix{}, LabelVector{}, errors.NewValueError("features.Separate",
			fmt.Sprintf("no predictor columns besides target '%s'", target))
	}
	if predictors.Len() == 0 {
		return FeatureMatrix{}, LabelVector{}, errors.NewModelError("features.Separate", "empty data", errors.ErrEmptyData)
	}

	var categorical, numeric []*frame.Column
	for _, c := range predictors.Columns() {
		if c.Kind == frame.Categorical {
			categorical = append(categorical, c)
		} else {
			numeric = append(numeric, c)
		}
	}
	lg := logger(opts)
	lg.Info("Separating features",
		log.TargetKey, target,
		"categorical", names(categorical),
		"numeric", names(numeric),
	)

	var encoded, scaled []*frame.Column
	if len(categorical) > 0 {
		encoded, err = encode(categorical, opts.Encoding)
		if err != nil {
			return FeatureMatrix{}, LabelVector{}, err
		}
	}
	if len(numeric) > 0 {
		scaled, err = scale(numeric, opts.Scale)
		if err != nil {
			return FeatureMatrix{}, LabelVector{}, err
		}
	}
	blocks := append(dedupe(encoded, scaled, lg), scaled...)

	if len(blocks) == 0 {
		return FeatureMatrix{}, LabelVector{}, errors.NewValueError("features.Separate", "every predictor column is empty")
	}
	X, err := frame.New(blocks...)
	if err != nil {
		return FeatureMatrix{}, LabelVector{}, err
	}
	label := *labelCol
	label.Name = LabelColumn
	lg.Info("Features built", log.SamplesKey, X.Len(), log.FeaturesKey, X.Width())
	return FeatureMatrix{X}, LabelVector{&label}, nil
}

// dedupe renames encoded columns whose generated name ("color_red") is
// already taken by a source column or an earlier encoded column, appending
// "_1", "_2", ... Source column names are never changed.
func dedupe(encoded, kept []*frame.Column, lg log.Logger) []*frame.Column {
	taken := make(map[string]bool, len(encoded)+len(kept))
	for _, c := range kept {
		taken[c.Name] = true
	}
	out := make([]*frame.Column, len(encoded))
	for i, c := range encoded {
		name := c.Name
		for n := 1; taken[name]; n++ {
			name = fmt.Sprintf("%s_%d", c.Name, n)
		}
		taken[name] = true
		if name == c.Name {
			out[i] = c
			continue
		}
		lg.Debug("Encoded column renamed to avoid a name collision", "from", c.Name, "to", name)
		renamed := *c
		renamed.Name = name
		out[i] = &renamed
	}
	return out
}

func names(cols []*frame.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func encode(cols []*frame.Column, enc Encoding) ([]*frame.Column, error) {
	values := make([][]string, len(cols))
	for i, c := range cols {
		values[i] = c.Strings
	}
	var (
		dense    *mat.Dense
		outNames []string
		err      error
	)
	switch enc {
	case Ordinal:
		e := preprocessing.NewOrdinalEncoder()
		dense, err = e.FitTransform(values, names(cols))
		outNames = e.FeatureNames()
	default:
		e := preprocessing.NewOneHotEncoder()
		dense, err = e.FitTransform(values, names(cols))
		outNames = e.FeatureNames()
	}
	if err != nil {
		return nil, err
	}
	f, err := frame.FromDense(dense, outNames)
	if err != nil {
		return nil, err
	}
	return f.Columns(), nil
}

func scale(cols []*frame.Column, s Scaling) ([]*frame.Column, error) {
	f, err := frame.New(cols...)
	if err != nil {
		return nil, err
	}
	X, err := f.Dense()
	if err != nil {
		return nil, err
	}

	steps := []model.Transformer{preprocessing.NewMeanImputer()}
	switch s {
	case Standard:
		steps = append(steps, preprocessing.NewStandardScalerDefault())
	case MinMax:
		steps = append(steps, preprocessing.NewMinMaxScalerDefault())
	}

	var out mat.Matrix = X
	for _, step := range steps {
		if out, err = step.FitTransform(out); err != nil {
			return nil, err
		}
	}
	scaled, err := frame.FromDense(out, f.Names())
	if err != nil {
		return nil, err
	}
	return scaled.Columns(), nil
}

// FilterRareClasses drops rows whose label occurs fewer than minCount times.
// Stratified splitting needs every class at least twice.
func FilterRareClasses(X FeatureMatrix, y LabelVector, minCount int) (FeatureMatrix, LabelVector, []string) {
	labels := y.Labels()
	counts := make(map[string]int)
	for _, l := range labels {
		counts[l]++
	}
	var rare []string
	for l, n := range counts {
		if n < minCount {
			rare = append(rare, l)
		}
	}
	if len(rare) == 0 {
		return X, y, nil
	}
	slices.Sort(rare)

	keep := make([]int, 0, len(labels))
	for i, l := range labels {
		if counts[l] >= minCount {
			keep = append(keep, i)
		}
	}
	yf, _ := frame.New(y.Column)
	return FeatureMatrix{X.Take(keep)}, LabelVector{yf.Take(keep).ColumnAt(0)}, rare
}
