package worker

import (
	"errors"
	"fmt"

	"github.com/Lllllllleong/docpipeline/internal/models"
)

var (
	// ErrNoTerminal means the worker stream ended before a terminal event.
	ErrNoTerminal = errors.New("worker exited without a terminal response")
	// ErrUnexpectedResult means a terminal event did not match the request.
	ErrUnexpectedResult = errors.New("unexpected worker result")
)

// TransformError is a failure reported by a worker.
type TransformError struct {
	Kind    models.Kind
	Message string
}

func (e *TransformError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s failed: %s", e.Kind, e.Message)
}

// IsTransformError reports whether err carries a worker-reported failure.
func IsTransformError(err error) bool {
	var te *TransformError
	return errors.As(err, &te)
}
