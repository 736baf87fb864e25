package preprocessing

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tabflow/core/model"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

// sortCategories orders categories numerically when every value parses as a
// number, lexically otherwise.
func sortCategories(values []string) {
	numeric := true
	parsed := make(map[string]float64, len(values))
	for _, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			numeric = false
			break
		}
		parsed[v] = f
	}
	if numeric {
		sort.Slice(values, func(i, j int) bool { return parsed[values[i]] < parsed[values[j]] })
		return
	}
	sort.Strings(values)
}

// uniqueSorted returns the distinct non-missing values of col.
func uniqueSorted(col []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range col {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sortCategories(out)
	return out
}

func checkColumns(op string, columns [][]string, nCols int) (int, error) {
	if len(columns) != nCols {
		return 0, errors.NewDimensionError(op, nCols, len(columns), 1)
	}
	if nCols == 0 {
		return 0, nil
	}
	n := len(columns[0])
	for _, col := range columns[1:] {
		if len(col) != n {
			return 0, errors.NewDimensionError(op, n, len(col), 0)
		}
	}
	return n, nil
}

// OneHotEncoder は各カテゴリ列を、ソート済みカテゴリごとの 0/1 列に展開する。
// 欠損値（空文字列）と未知のカテゴリは全て0の行になる。
type OneHotEncoder struct {
	State      *model.StateManager
	Names      []string
	Categories [][]string
}

// NewOneHotEncoder は新しいOneHotEncoderを作成する
func NewOneHotEncoder() *OneHotEncoder {
	return &OneHotEncoder{State: model.NewStateManager()}
}

// Fit は列ごとのカテゴリを学習する。names は出力列名の接頭辞になる。
func (e *OneHotEncoder) Fit(columns [][]string, names []string) error {
	n, err := checkColumns("OneHotEncoder.Fit", columns, len(names))
	if err != nil {
		return err
	}
	e.Names = append([]string(nil), names...)
	e.Categories = make([][]string, len(columns))
	for j, col := range columns {
		e.Categories[j] = uniqueSorted(col)
	}
	e.State.SetFitted(len(columns), n)
	return nil
}

// Transform は列を one-hot 行列に変換する
func (e *OneHotEncoder) Transform(columns [][]string) (*mat.Dense, error) {
	if err := e.State.RequireFitted("OneHotEncoder", "Transform"); err != nil {
		return nil, err
	}
	n, err := checkColumns("OneHotEncoder.Transform", columns, len(e.Categories))
	if err != nil {
		return nil, err
	}
	width := len(e.FeatureNames())
	if n == 0 || width == 0 {
		return nil, errors.NewModelError("OneHotEncoder.Transform", "empty data", errors.ErrEmptyData)
	}

	out := mat.NewDense(n, width, nil)
	offset := 0
	for j, col := range columns {
		pos := make(map[string]int, len(e.Categories[j]))
		for k, c := range e.Categories[j] {
			pos[c] = k
		}
		for i, v := range col {
			if k, ok := pos[v]; ok {
				out.Set(i, offset+k, 1)
			}
		}
		offset += len(e.Categories[j])
	}
	return out, nil
}

// FitTransform は学習と変換を同時に行う
func (e *OneHotEncoder) FitTransform(columns [][]string, names []string) (*mat.Dense, error) {
	if err := e.Fit(columns, names); err != nil {
		return nil, err
	}
	return e.Transform(columns)
}

// FeatureNames は出力列名 "<column>_<category>" を返す
func (e *OneHotEncoder) FeatureNames() []string {
	var out []string
	for j, cats := range e.Categories {
		for _, c := range cats {
			out = append(out, fmt.Sprintf("%s_%s", e.Names[j], c))
		}
	}
	return out
}

// OrdinalEncoder は各カテゴリ列をソート済みカテゴリの位置（0, 1, ...）に変換する。
// 欠損値と未知のカテゴリは -1 になる。
type OrdinalEncoder struct {
	State      *model.StateManager
	Names      []string
	Categories [][]string
}

// NewOrdinalEncoder は新しいOrdinalEncoderを作成する
func NewOrdinalEncoder() *OrdinalEncoder {
	return &OrdinalEncoder{State: model.NewStateManager()}
}

// Fit は列ごとのカテゴリを学習する
func (e *OrdinalEncoder) Fit(columns [][]string, names []string) error {
	n, err := checkColumns("OrdinalEncoder.Fit", columns, len(names))
	if err != nil {
		return err
	}
	e.Names = append([]string(nil), names...)
	e.Categories = make([][]string, len(columns))
	for j, col := range columns {
		e.Categories[j] = uniqueSorted(col)
	}
	e.State.SetFitted(len(columns), n)
	return nil
}

// Transform は列を整数コードの行列に変換する
func (e *OrdinalEncoder) Transform(columns [][]string) (*mat.Dense, error) {
	if err := e.State.RequireFitted("OrdinalEncoder", "Transform"); err != nil {
		return nil, err
	}
	n, err := checkColumns("OrdinalEncoder.Transform", columns, len(e.Categories))
	if err != nil {
		return nil, err
	}
	if n == 0 || len(columns) == 0 {
		return nil, errors.NewModelError("OrdinalEncoder.Transform", "empty data", errors.ErrEmptyData)
	}

	out := mat.NewDense(n, len(columns), nil)
	for j, col := range columns {
		pos := make(map[string]int, len(e.Categories[j]))
		for k, c := range e.Categories[j] {
			pos[c] = k
		}
		for i, v := range col {
			code := -1
			if k, ok := pos[v]; ok {
				code = k
			}
			out.Set(i, j, float64(code))
		}
	}
	return out, nil
}

// FitTransform は学習と変換を同時に行う
func (e *OrdinalEncoder) FitTransform(columns [][]string, names []string) (*mat.Dense, error) {
	if err := e.Fit(columns, names); err != nil {
		return nil, err
	}
	return e.Transform(columns)
}

// FeatureNames は出力列名（入力列名と同じ）を返す
func (e *OrdinalEncoder) FeatureNames() []string {
	return append([]string(nil), e.Names...)
}

// LabelEncoder は目的変数のラベルを 0..k-1 の値に変換する
type LabelEncoder struct {
	State   *model.StateManager
	Classes []string
}

// NewLabelEncoder は新しいLabelEncoderを作成する
func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{State: model.NewStateManager()}
}

// Fit はラベルの種類を学習する。欠損ラベルは許可しない。
func (e *LabelEncoder) Fit(labels []string) error {
	if len(labels) == 0 {
		return errors.NewModelError("LabelEncoder.Fit", "empty data", errors.ErrEmptyData)
	}
	for i, l := range labels {
		if l == "" {
			return errors.NewValueError("LabelEncoder.Fit", fmt.Sprintf("missing label at row %d", i))
		}
	}
	e.Classes = uniqueSorted(labels)
	e.State.SetFitted(1, len(labels))
	return nil
}

// Transform はラベルをクラス番号に変換する
func (e *LabelEncoder) Transform(labels []string) ([]float64, error) {
	if err := e.State.RequireFitted("LabelEncoder", "Transform"); err != nil {
		return nil, err
	}
	pos := make(map[string]int, len(e.Classes))
	for k, c := range e.Classes {
		pos[c] = k
	}
	out := make([]float64, len(labels))
	for i, l := range labels {
		k, ok := pos[l]
		if !ok {
			return nil, errors.NewValueError("LabelEncoder.Transform", fmt.Sprintf("unseen label '%s'", l))
		}
		out[i] = float64(k)
	}
	return out, nil
}

// FitTransform は学習と変換を同時に行う
func (e *LabelEncoder) FitTransform(labels []string) ([]float64, error) {
	if err := e.Fit(labels); err != nil {
		return nil, err
	}
	return e.Transform(labels)
}

// InverseTransform はクラス番号を元のラベルに戻す
func (e *LabelEncoder) InverseTransform(codes []float64) ([]string, error) {
	if err := e.State.RequireFitted("LabelEncoder", "InverseTransform"); err != nil {
		return nil, err
	}
	out := make([]string, len(codes))
	for i, c := range codes {
		k := int(math.Round(c))
		if k < 0 || k >= len(e.Classes) {
			return nil, errors.NewValueError("LabelEncoder.InverseTransform", fmt.Sprintf("class index %v out of range", c))
		}
		out[i] = e.Classes[k]
	}
	return out, nil
}
