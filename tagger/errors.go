package tagger

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned when an image cannot be decoded.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrEmptyImage is returned when an image has zero width or height.
	ErrEmptyImage = errors.New("image has zero width or height")
	// ErrPipelineNotReady is returned when Tag is called on a pipeline that
	// was never fully loaded or has been closed.
	ErrPipelineNotReady = errors.New("pipeline is not ready")
)

// MalformedTableError reports a tag table that could not be parsed.
type MalformedTableError struct {
	Line   int
	Reason string
}

func (e *MalformedTableError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed tag table: line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed tag table: %s", e.Reason)
}

// LengthMismatchError reports a score vector whose width disagrees with the
// loaded tag table. This is the defense against pairing a model with the
// wrong table, which would otherwise silently mislabel every result.
type LengthMismatchError struct {
	Scores int
	Labels int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("scores/labels length mismatch: got %d scores for %d labels", e.Scores, e.Labels)
}

// ShapeMismatchError reports an input tensor whose element count disagrees
// with the session's expected input shape.
type ShapeMismatchError struct {
	Expected int
	Actual   int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("input tensor shape mismatch: expected %d elements, got %d", e.Expected, e.Actual)
}

// ModelLoadError reports a failure to load a model graph onto a device.
type ModelLoadError struct {
	Path   string
	Device string
	Err    error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load model %q on %s: %v", e.Path, e.Device, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// ExecutionError reports a runtime failure inside the backend while running
// the graph. Execution errors are never retried by the pipeline.
type ExecutionError struct {
	Device string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("inference failed on %s: %v", e.Device, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
