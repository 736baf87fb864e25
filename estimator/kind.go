// Package estimator is the closed set of models the train stage can fit,
// and the persisted bundle that binds a fitted model to its feature schema.
package estimator

import (
	"slices"
	"strings"

	"github.com/YuminosukeSato/tabflow/core/model"
	"github.com/YuminosukeSato/tabflow/linear"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
	"github.com/YuminosukeSato/tabflow/sklearn/ensemble"
	"github.com/YuminosukeSato/tabflow/sklearn/neighbors"
	"github.com/YuminosukeSato/tabflow/sklearn/svm"
)

// Task is the learning task.
type Task int

const (
	Classification Task = iota
	Regression
)

func (t Task) String() string {
	if t == Regression {
		return "regression"
	}
	return "classification"
}

// ParseTask parses "classification" or "regression".
func ParseTask(s string) (Task, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "classification", "classifier":
		return Classification, nil
	case "regression", "regressor":
		return Regression, nil
	}
	return Classification, errors.NewValidationError("task", "must be classification or regression", s)
}

// Kind identifies a model family.
type Kind int

const (
	RandomForest Kind = iota
	LinearRegression
	SVR
	KNN
)

var kindNames = map[Kind]string{
	RandomForest:     "random_forest",
	LinearRegression: "linear_regression",
	SVR:              "svr",
	KNN:              "knn",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

var supported = map[Task][]Kind{
	Classification: {RandomForest, KNN},
	Regression:     {RandomForest, LinearRegression, SVR, KNN},
}

// Supported returns the kinds available for task, in declaration order.
func Supported(task Task) []Kind {
	return slices.Clone(supported[task])
}

// SupportedNames returns Supported(task) as strings.
func SupportedNames(task Task) []string {
	kinds := supported[task]
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return names
}

// ParseKind resolves a model name for task. Unknown names and kinds that
// do not support task fail with UnsupportedModelError.
func ParseKind(name string, task Task) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for _, k := range supported[task] {
		if k.String() == normalized {
			return k, nil
		}
	}
	return 0, errors.NewUnsupportedModelError(name, task.String(), SupportedNames(task))
}

// New builds an unfitted estimator with the default hyperparameters of the
// pipeline: forests use 100 trees seeded by seed, the KNN classifier uses
// k=5 with distance weights, the KNN regressor k=5 uniform, and the SVR an
// RBF kernel with C=1, epsilon=0.1 and gamma="scale".
func New(kind Kind, task Task, seed uint64) (model.Estimator, error) {
	if !slices.Contains(supported[task], kind) {
		return nil, errors.NewUnsupportedModelError(kind.String(), task.String(), SupportedNames(task))
	}
	switch kind {
	case RandomForest:
		if task == Classification {
			return ensemble.NewRandomForestClassifier(ensemble.WithRandomState(seed)), nil
		}
		return ensemble.NewRandomForestRegressor(ensemble.WithRandomState(seed)), nil
	case KNN:
		if task == Classification {
			return neighbors.NewKNeighborsClassifier(), nil
		}
		return neighbors.NewKNeighborsRegressor(), nil
	case LinearRegression:
		return linear.NewLinearRegression(), nil
	default:
		return svm.NewSVR(), nil
	}
}

// Params returns the hyperparameters of m when it exposes them.
func Params(m model.Estimator) map[string]interface{} {
	if pg, ok := m.(model.ParameterGetter); ok {
		return pg.GetParams()
	}
	return map[string]interface{}{}
}
