package detector

import (
	"errors"
	"fmt"
)

var (
	// ErrClassifier is matched by every *ClassifierError.
	ErrClassifier = errors.New("classifier error")
	// ErrConfig is matched by every *ConfigError.
	ErrConfig = errors.New("config error")
	// ErrNotReady is wrapped when the classifier reports it cannot serve.
	ErrNotReady = errors.New("model not loaded")
)

// ClassifierError wraps a failure of the external classifier. It is fatal for
// the current reading only.
type ClassifierError struct {
	Op  string
	Err error
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("classifier %s: %v", e.Op, e.Err)
}

func (e *ClassifierError) Unwrap() error { return e.Err }

func (e *ClassifierError) Is(target error) bool { return target == ErrClassifier }

// ConfigError reports a malformed threshold configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }
