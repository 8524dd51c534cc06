package advisor

import (
	"errors"
	"fmt"
)

var (
	// ErrPredictorUnavailable means no price model is loaded; the submit was a no-op.
	ErrPredictorUnavailable = errors.New("price prediction is unavailable")
	// ErrEmptyMessage rejects blank chat input before a pass starts.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrSessionKeyDisabled is returned when per-session API keys are turned off.
	ErrSessionKeyDisabled = errors.New("per-session api keys are disabled")
)

// ConfigurationError reports a missing or broken dependency. The service keeps
// running with the affected feature disabled.
type ConfigurationError struct {
	Component string
	Err       error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Component, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// PredictionError wraps a failure inside the price model. Session state is untouched.
type PredictionError struct {
	Err error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed: %v", e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }

// ProactiveError wraps a failed follow-up. It is shown as a warning only and the
// follow-up stays armed for the next pass.
type ProactiveError struct {
	Err error
}

func (e *ProactiveError) Error() string {
	return fmt.Sprintf("proactive follow-up failed: %v", e.Err)
}

func (e *ProactiveError) Unwrap() error { return e.Err }
