package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Category classifies error types for targeted handling and monitoring.
type Category string

const (
	CategoryClient   Category = "client"
	CategoryNotFound Category = "not_found"
	CategoryDecode   Category = "decode"
	CategoryEncode   Category = "encode"
	CategoryPipeline Category = "pipeline"
	CategoryStorage  Category = "storage"
	CategoryConfig   Category = "config"
	CategoryDelivery Category = "delivery"
)

// ProcessingError is the structured error type used throughout the module.
type ProcessingError struct {
	Category Category
	Op       string // operation name
	Err      error
	// Recovered marks a condition the caller may log and ignore. Anything
	// else must propagate to the request boundary.
	Recovered bool
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// New creates a ProcessingError that must propagate.
func New(category Category, op string, err error) *ProcessingError {
	return &ProcessingError{Category: category, Op: op, Err: err}
}

// Recovered creates an ignorable ProcessingError.
func Recovered(category Category, op string, err error) *ProcessingError {
	return &ProcessingError{Category: category, Op: op, Err: err, Recovered: true}
}

// Wrap wraps an existing error with context.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(category, op, err)
}

// IsRecovered reports whether err is an ignorable best-effort failure.
func IsRecovered(err error) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Recovered
	}
	return false
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category == cat
	}
	return false
}

// StatusCode maps err to the HTTP status the request boundary should emit.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if IsCategory(err, CategoryClient) || IsCategory(err, CategoryNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// Sentinel errors for common failure modes.
var (
	ErrPresetNotAllowed   = errors.New("preset not allowed")
	ErrInvalidParam       = errors.New("invalid transform parameter")
	ErrSourceNotFound     = errors.New("source image not found")
	ErrInvalidPath        = errors.New("source path escapes image root")
	ErrUnsupportedFormat  = errors.New("unsupported image format")
	ErrInvalidDimensions  = errors.New("invalid dimensions")
	ErrEmptyInput         = errors.New("empty input")
	ErrDirectoryNotExists = errors.New("directory still absent after create")
)
