package dataset

import (
	"bytes"
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tabflow/frame"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

//go:embed data/iris.csv
var irisCSV []byte

// CreditURL is the UCI credit approval data (no header, "?" for missing).
const CreditURL = "https://archive.ics.uci.edu/ml/machine-learning-databases/credit-screening/crx.data"

// CreditColumns names the 16 attributes of the credit approval data.
var CreditColumns = []string{
	"A1", "A2", "A3", "A4", "A5", "A6", "A7", "A8",
	"A9", "A10", "A11", "A12", "A13", "A14", "A15", "A16",
}

// LoadIris returns the Iris data as a Bunch: 150 rows, 4 features, target 0..2.
func LoadIris() (RawSource, error) {
	f, err := frame.ReadCSV(bytes.NewReader(irisCSV), frame.ReadOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "read embedded iris")
	}
	target, _ := f.Column(TargetColumn)
	features := f.Drop(TargetColumn)
	data, err := features.Dense()
	if err != nil {
		return nil, err
	}
	return Bunch{
		Data:         mat.DenseCopyOf(data),
		FeatureNames: features.Names(),
		Target:       target.Floats,
	}, nil
}

// presets maps a preset name to its source. Builders are called per lookup
// so callers never share a source value.
var presets = map[string]func() Source{
	"iris": func() Source {
		return named{LoaderFunc: LoadIris, name: "builtin:iris"}
	},
	"boston": func() Source {
		return &OpenMLSource{Name: "boston", Version: 1}
	},
	"credit": func() Source {
		return &URLSource{
			URL: CreditURL,
			Options: frame.ReadOptions{
				NoHeader: true,
				Names:    slices.Clone(CreditColumns),
				NAValues: []string{"?"},
			},
		}
	},
}

// PresetNames lists the known presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Preset returns the source registered under name.
func Preset(name string) (Source, error) {
	build, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.NewValueError("dataset.Preset",
			fmt.Sprintf("unknown dataset '%s'. Available: [%s]", name, strings.Join(PresetNames(), ", ")))
	}
	return build(), nil
}
