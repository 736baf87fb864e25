package model

import "gonum.org/v1/gonum/mat"

// Fitter learns from X (n×p) and the n×1 target y.
type Fitter interface {
	Fit(X, y mat.Matrix) error
}

// Predictor returns an n×1 matrix of predictions for X.
type Predictor interface {
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Estimator は学習ステージが扱うモデルの最小インターフェース。
// estimator.Bundle はこれだけを gob で保存する。
type Estimator interface {
	Fitter
	Predictor
}

// Scorer computes the default score on held-out data: mean accuracy for
// classifiers, R² for regressors. Cross-validation relies on it.
type Scorer interface {
	Score(X, y mat.Matrix) (float64, error)
}

// Regressor is an estimator over a continuous target.
type Regressor interface {
	Estimator
	Scorer
}

// Classifier は LabelEncoder で 0..k-1 に符号化されたラベルを学習する。
type Classifier interface {
	Estimator
	Scorer

	// PredictProba returns an n×k matrix, columns ordered as Classes.
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the encoded labels seen by Fit, ascending.
	Classes() []float64
}

// ParameterGetter exposes hyperparameters; the train stage records them as
// tracking params.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// LinearModel は学習済みの係数と切片を公開する。
type LinearModel interface {
	Coefficients() []float64
	InterceptValue() float64
}

// Transformer is an unsupervised column transform. The feature stage fits
// and applies it on the same rows via FitTransform.
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}
