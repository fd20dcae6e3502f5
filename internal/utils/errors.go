package utils

import (
	"errors"
	"fmt"
)

// AppError describes a failed operation at a file or network boundary.
// Path is optional and names the file the operation touched.
type AppError struct {
	Op   string
	Path string
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	op := e.Op
	if e.Path != "" {
		op = fmt.Sprintf("%s %s", e.Op, e.Path)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError without a path.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// NewFileError constructs an AppError for an operation on path.
func NewFileError(op, path, msg string, err error) error {
	return &AppError{Op: op, Path: path, Msg: msg, Err: err}
}

// OpOf returns the Op of the first AppError in err's chain, or "".
func OpOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Op
	}
	return ""
}
