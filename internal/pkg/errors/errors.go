package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrParse marks input that could not be interpreted (playlist/video refs).
	ErrParse = errors.New("parse error")
	// ErrGeneration marks a model call that failed after all retries.
	ErrGeneration = errors.New("generation error")
)
