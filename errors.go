// This is free and unencumbered software released into the public domain.
//
// Anyone is free to copy, modify, publish, use, compile, sell, or
// distribute this software, either in source code form or as a compiled
// binary, for any purpose, commercial or non-commercial, and by any
// means.
//
// In jurisdictions that recognize copyright laws, the author or authors
// of this software dedicate any and all copyright interest in the
// software to the public domain. We make this dedication for the benefit
// of the public at large and to the detriment of our heirs and
// successors. We intend this dedication to be an overt act of
// relinquishment in perpetuity of all present and future rights to this
// software under copyright law.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
// MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
// IN NO EVENT SHALL THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR
// OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE,
// ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.
//
// For more information, please refer to <https://unlicense.org>

package grovedb

import (
	"errors"
	"fmt"
)

func asError(err error, target **Error) bool {
	return errors.As(err, target)
}

// ErrorKind classifies the failures the database can report. Lookup kinds
// are recoverable; corruption kinds are fatal and callers must not retry.
type ErrorKind int

const (
	// ErrPathNotFound means a subtree along the path does not exist.
	ErrPathNotFound ErrorKind = iota + 1
	// ErrPathParentLayerNotFound means an ancestor layer of the path does
	// not exist.
	ErrPathParentLayerNotFound
	// ErrPathKeyNotFound means the subtree exists but the key does not.
	ErrPathKeyNotFound
	// ErrInvalidPath means the path is structurally invalid for the
	// operation.
	ErrInvalidPath
	// ErrInvalidParentLayerPath means a parent layer is not a subtree.
	ErrInvalidParentLayerPath
	// ErrInvalidInput means the arguments are inconsistent.
	ErrInvalidInput
	// ErrDeletingNonEmptyTree means a non-empty subtree deletion was
	// refused by the options.
	ErrDeletingNonEmptyTree
	// ErrDeleteUpTreeStopHeightMoreThanInitialPathSize means delete-up-tree
	// was given a stop height and found no level to delete, as when the
	// stop height equals the path length.
	ErrDeleteUpTreeStopHeightMoreThanInitialPathSize
	// ErrCyclicReference means reference resolution revisited a path.
	ErrCyclicReference
	// ErrReferenceLimit means reference resolution exceeded the hop
	// budget.
	ErrReferenceLimit
	// ErrCorruptedReferencePathNotFound means a reference points into a
	// missing subtree.
	ErrCorruptedReferencePathNotFound
	// ErrCorruptedReferencePathParentLayerNotFound means a reference
	// points below a missing layer.
	ErrCorruptedReferencePathParentLayerNotFound
	// ErrCorruptedReferencePathKeyNotFound means a reference points to a
	// missing key.
	ErrCorruptedReferencePathKeyNotFound
	// ErrCorruptedPath means stored path data is inconsistent.
	ErrCorruptedPath
	// ErrCorruptedData means stored bytes failed to decode.
	ErrCorruptedData
	// ErrCorruptedCodeExecution means an internal invariant was violated.
	ErrCorruptedCodeExecution
	// ErrNotSupported means the operation combination is not implemented.
	ErrNotSupported
	// ErrOverflow means a sum tree aggregate left the 64-bit range.
	ErrOverflow
	// ErrBackend wraps a storage collaborator failure.
	ErrBackend
)

// Error is the database's error type: a kind plus context.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("grovedb: %s: %v", e.Msg, e.Err)
	}
	return "grovedb: " + e.Msg
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches errors by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// IsFatal reports whether the error is a corruption kind callers must
// treat as unrecoverable.
func (e *Error) IsFatal() bool {
	switch e.Kind {
	case ErrCorruptedReferencePathNotFound,
		ErrCorruptedReferencePathParentLayerNotFound,
		ErrCorruptedReferencePathKeyNotFound,
		ErrCorruptedPath,
		ErrCorruptedData,
		ErrCorruptedCodeExecution:
		return true
	default:
		return false
	}
}

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func newErrorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind of a database error, or zero.
func KindOf(err error) ErrorKind {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind
	}
	return 0
}
