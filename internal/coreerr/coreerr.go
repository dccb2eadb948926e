// Package coreerr defines the behavioural error kinds shared across the
// text engine's components. Errors are sentinel values checked with
// errors.Is; layers wrap them with fmt.Errorf("...: %w", err) to add
// context without losing the underlying kind.
package coreerr

import "errors"

var (
	// ErrOutOfMemory is returned when an allocation failed. Always
	// propagated; never retried.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrInvalidIndex is returned by mutating APIs when a row, column, or
	// offset falls outside the current buffer. Read APIs prefer clamping
	// over returning this.
	ErrInvalidIndex = errors.New("invalid index")

	// ErrInvalidMemID is returned by MemRegistry.Replace and Unregister
	// when the slot is absent or already freed.
	ErrInvalidMemID = errors.New("invalid mem id")

	// ErrIOError wraps load_file failures (not-found, permission, read
	// error).
	ErrIOError = errors.New("io error")
)
