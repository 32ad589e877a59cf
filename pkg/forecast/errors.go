package forecast

import (
	"errors"
	"fmt"

	"github.com/tunogya/sensorcast/pkg/model"
)

var (
	// ErrInsufficientData means there were too few samples or rows to train or predict
	ErrInsufficientData = errors.New("insufficient data")

	// ErrModelNotReady means no estimator has been fitted for the sensor yet
	ErrModelNotReady = errors.New("model not ready")
)

// Error is a prediction failure scoped to one sensor
type Error struct {
	Kind   error // ErrInsufficientData or ErrModelNotReady
	Sensor model.SensorKind
	Have   int   // samples available when Kind is ErrInsufficientData
	Cause  error // why training did not produce a model, if known
}

func (e *Error) Error() string {
	switch {
	case errors.Is(e.Kind, ErrInsufficientData):
		return fmt.Sprintf("Need more data. Have %d points", e.Have)
	case errors.Is(e.Kind, ErrModelNotReady):
		return "Model not ready"
	}
	return e.Kind.Error()
}

// Unwrap exposes both the kind and the underlying cause to errors.Is
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
