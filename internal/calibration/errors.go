package calibration

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks invalid settings detected before any evaluation.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidSpace marks a parameter space that cannot be sampled.
	ErrInvalidSpace = fmt.Errorf("%w: invalid parameter space", ErrConfiguration)
	// ErrOptimizerFailure marks a generation in which no candidate produced a usable fitness.
	ErrOptimizerFailure = errors.New("optimizer failure")
)

// UnknownObjectiveError is returned for an unrecognised objective name
type UnknownObjectiveError struct {
	ObjectiveType string
}

func (e *UnknownObjectiveError) Error() string {
	return "unknown objective type: " + e.ObjectiveType
}

func (e *UnknownObjectiveError) Unwrap() error {
	return ErrConfiguration
}

// SettingError reports an optimizer setting outside its valid range
type SettingError struct {
	Field  string
	Reason string
}

func (e *SettingError) Error() string {
	return fmt.Sprintf("invalid setting %s: %s", e.Field, e.Reason)
}

func (e *SettingError) Unwrap() error {
	return ErrConfiguration
}
