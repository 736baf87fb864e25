package metrics

import (
	"cmp"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

// Accuracy は予測の正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// AccuracyLabels は任意のラベル型に対する正解率
func AccuracyLabels[T comparable](yTrue, yPred []T) (float64, error) {
	if len(yTrue) == 0 {
		return 0, errors.NewValueError("Accuracy", "empty labels")
	}
	if len(yPred) != len(yTrue) {
		return 0, errors.NewDimensionError("Accuracy", len(yTrue), len(yPred), 0)
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue)), nil
}

// UniqueLabels は yTrue と yPred に現れるラベルの和集合をソートして返す
func UniqueLabels[T cmp.Ordered](yTrue, yPred []T) []T {
	seen := make(map[T]bool)
	var out []T
	for _, ys := range [][]T{yTrue, yPred} {
		for _, y := range ys {
			if !seen[y] {
				seen[y] = true
				out = append(out, y)
			}
		}
	}
	slices.Sort(out)
	return out
}

// ConfusionMatrix は混同行列を計算する。行が正解ラベル、列が予測ラベル。
// labels が nil の場合は UniqueLabels の順序を使う。
func ConfusionMatrix[T cmp.Ordered](yTrue, yPred, labels []T) (*mat.Dense, []T, error) {
	if len(yTrue) == 0 {
		return nil, nil, errors.NewValueError("ConfusionMatrix", "empty labels")
	}
	if len(yPred) != len(yTrue) {
		return nil, nil, errors.NewDimensionError("ConfusionMatrix", len(yTrue), len(yPred), 0)
	}
	if labels == nil {
		labels = UniqueLabels(yTrue, yPred)
	}
	pos := make(map[T]int, len(labels))
	for k, l := range labels {
		pos[l] = k
	}

	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := range yTrue {
		r, okT := pos[yTrue[i]]
		c, okP := pos[yPred[i]]
		if okT && okP {
			cm.Set(r, c, cm.At(r, c)+1)
		}
	}
	return cm, labels, nil
}

// ClassStats はクラスごとの適合率・再現率・F1・サポート
type ClassStats struct {
	Label     string  `csv:"label"`
	Precision float64 `csv:"precision"`
	Recall    float64 `csv:"recall"`
	F1Score   float64 `csv:"f1-score"`
	Support   float64 `csv:"support"`
}

// ZeroDivision は分母が0になる適合率・再現率の扱い。どちらも値は0になる。
type ZeroDivision int

const (
	// ZeroDivisionWarn reports every undefined metric as an
	// UndefinedMetricWarning (sklearn's zero_division="warn").
	ZeroDivisionWarn ZeroDivision = iota
	// ZeroDivisionZero is zero_division=0: the caller asked for 0, so
	// nothing is reported.
	ZeroDivisionZero
)

// PerClass はクラスごとの統計を計算する。
// 予測が一つもないクラスの適合率と、正解が一つもないクラスの再現率は0とする。
// ZeroDivisionWarn の場合だけ UndefinedMetricWarning を発生させる。
func PerClass[T cmp.Ordered](yTrue, yPred, labels []T, zeroDivision ZeroDivision) ([]ClassStats, error) {
	cm, labels, err := ConfusionMatrix(yTrue, yPred, labels)
	if err != nil {
		return nil, err
	}

	k := len(labels)
	stats := make([]ClassStats, k)
	var noPred, noTrue []string
	for c := 0; c < k; c++ {
		tp := cm.At(c, c)
		var predicted, actual float64
		for o := 0; o < k; o++ {
			predicted += cm.At(o, c)
			actual += cm.At(c, o)
		}
		label := fmt.Sprint(labels[c])
		if predicted == 0 {
			noPred = append(noPred, label)
		}
		if actual == 0 {
			noTrue = append(noTrue, label)
		}

		p := errors.SafeDivide(tp, predicted)
		r := errors.SafeDivide(tp, actual)
		stats[c] = ClassStats{
			Label:     label,
			Precision: p,
			Recall:    r,
			F1Score:   errors.SafeDivide(2*p*r, p+r),
			Support:   actual,
		}
	}

	if zeroDivision != ZeroDivisionWarn {
		return stats, nil
	}
	if len(noPred) > 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("precision",
			fmt.Sprintf("no predicted samples for labels %v", noPred), 0))
	}
	if len(noTrue) > 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("recall",
			fmt.Sprintf("no true samples for labels %v", noTrue), 0))
	}
	return stats, nil
}

// Weighted はサポートで重み付けした平均（sklearn の average="weighted"）を返す
func Weighted(stats []ClassStats) (precision, recall, f1 float64) {
	var total float64
	for _, s := range stats {
		precision += s.Precision * s.Support
		recall += s.Recall * s.Support
		f1 += s.F1Score * s.Support
		total += s.Support
	}
	return errors.SafeDivide(precision, total), errors.SafeDivide(recall, total), errors.SafeDivide(f1, total)
}

// ClassificationReport はクラスごとの行に続けて "accuracy", "macro avg",
// "weighted avg" の行を返す。accuracy 行は全ての列に正解率を持つ。
func ClassificationReport[T cmp.Ordered](yTrue, yPred, labels []T, zeroDivision ZeroDivision) ([]ClassStats, error) {
	stats, err := PerClass(yTrue, yPred, labels, zeroDivision)
	if err != nil {
		return nil, err
	}
	acc, err := AccuracyLabels(yTrue, yPred)
	if err != nil {
		return nil, err
	}

	var total, mp, mr, mf float64
	for _, s := range stats {
		mp += s.Precision
		mr += s.Recall
		mf += s.F1Score
		total += s.Support
	}
	k := float64(len(stats))
	wp, wr, wf := Weighted(stats)

	report := append([]ClassStats(nil), stats...)
	report = append(report,
		ClassStats{Label: "accuracy", Precision: acc, Recall: acc, F1Score: acc, Support: total},
		ClassStats{Label: "macro avg", Precision: mp / k, Recall: mr / k, F1Score: mf / k, Support: total},
		ClassStats{Label: "weighted avg", Precision: wp, Recall: wr, F1Score: wf, Support: total},
	)
	return report, nil
}
