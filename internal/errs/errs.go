// Package errs defines the failure categories of a distillation run.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// KindFatal aborts the run before any work begins.
	KindFatal Kind = "FATAL"
	// KindPerFile degrades a single file to a minimal record.
	KindPerFile Kind = "PER_FILE_FAILURE"
	// KindRender replaces a single entry with an inline marker.
	KindRender Kind = "RENDER_FAILURE"
)

// FatalError is the only error allowed to escape the pipeline.
type FatalError struct {
	Message string
	cause   error
}

// Fatalf builds a FatalError. A trailing %w verb is unwrapped as the cause.
func Fatalf(format string, args ...any) *FatalError {
	err := fmt.Errorf(format, args...)
	return &FatalError{Message: err.Error(), cause: errors.Unwrap(err)}
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("[%s] %s", KindFatal, e.Message)
}

func (e *FatalError) Unwrap() error {
	return e.cause
}

// IsFatal reports whether err carries a FatalError.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// PerFileFailure records why a file could not be fully interrogated.
type PerFileFailure struct {
	Path string
	Op   string // stat, read, decode, parse
	Err  error
}

func (e *PerFileFailure) Error() string {
	return fmt.Sprintf("[%s] %s %s: %v", KindPerFile, e.Op, e.Path, e.Err)
}

func (e *PerFileFailure) Unwrap() error {
	return e.Err
}

// RenderFailure records a single entry that could not be rendered.
type RenderFailure struct {
	Path string
	Err  error
}

func (e *RenderFailure) Error() string {
	return fmt.Sprintf("[%s] %s: %v", KindRender, e.Path, e.Err)
}

func (e *RenderFailure) Unwrap() error {
	return e.Err
}

// KindOf returns the category of err, or "" when it is not classified.
func KindOf(err error) Kind {
	var (
		fatal   *FatalError
		perFile *PerFileFailure
		render  *RenderFailure
	)
	switch {
	case errors.As(err, &fatal):
		return KindFatal
	case errors.As(err, &perFile):
		return KindPerFile
	case errors.As(err, &render):
		return KindRender
	default:
		return ""
	}
}
