// Package fserr classifies filesystem failures into the small set of kinds
// the mirror reports on: missing paths, rejected access, cancellation and
// everything else as generic I/O errors.
package fserr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

// Kind is a coarse category of filesystem failure.
type Kind string

const (
	KindNotFound         Kind = "NotFound"
	KindPermissionDenied Kind = "PermissionDenied"
	KindIO               Kind = "IOError"
	KindCanceled         Kind = "Canceled"
)

// Error records the operation and absolute path that failed.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap classifies err and attaches op and path. A nil err returns nil.
// An err that is already an *Error is returned unchanged.
func Wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: KindOf(err), Op: op, Path: path, Err: err}
}

// KindOf returns the kind of err.
func KindOf(err error) Kind {
	var fe *Error
	switch {
	case errors.As(err, &fe):
		return fe.Kind
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, fs.ErrPermission):
		return KindPermissionDenied
	default:
		return KindIO
	}
}

// PathOf returns the path attached to err, or "" when there is none.
func PathOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Path
	}
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Path
	}
	return ""
}
