// Package model provides the estimator interfaces, fitted-state tracking and
// gob persistence shared by every tabflow model.
package model

import (
	"sync"

	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

// StateManager manages the fitted state of a model in a thread-safe manner.
// Exported fields are persisted by gob together with the owning model.
type StateManager struct {
	Fitted bool
	mu     sync.RWMutex

	NFeatures int
	NSamples  int
}

// NewStateManager creates a new StateManager instance.
func NewStateManager() *StateManager {
	return &StateManager{}
}

// IsFitted returns whether the model has been fitted.
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Fitted
}

// SetFitted marks the model as fitted and records the training shape.
func (s *StateManager) SetFitted(nFeatures, nSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = true
	s.NFeatures = nFeatures
	s.NSamples = nSamples
}

// Reset resets the fitted state.
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = false
	s.NFeatures = 0
	s.NSamples = 0
}

// GetDimensions returns the number of features and samples seen during fitting.
func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NFeatures, s.NSamples
}

// RequireFitted returns a NotFittedError for modelName/method if the model
// has not been fitted.
func (s *StateManager) RequireFitted(modelName, method string) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError(modelName, method)
	}
	return nil
}

// CheckFeatures validates that X has the number of columns seen during Fit.
func (s *StateManager) CheckFeatures(op string, nCols int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if nCols != s.NFeatures {
		return errors.NewDimensionError(op, s.NFeatures, nCols, 1)
	}
	return nil
}
