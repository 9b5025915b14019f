// Error kinds shared by the pipeline, backends and file collaborators
package core

import (
	"errors"
	"fmt"
)

var (
	// ErrAborted is returned by a stage whose context was cancelled.
	// It is an internal signal to restart or go idle, never shown to the user.
	ErrAborted = errors.New("processing aborted")

	// ErrInternalInvariant marks a scheduler or buffer bookkeeping bug.
	ErrInternalInvariant = errors.New("internal invariant violated")
)

// FileLoadError reports an unreadable or unsupported image file.
type FileLoadError struct {
	Path string
	Err  error
}

func (e *FileLoadError) Error() string {
	return fmt.Sprintf("cannot load image %q: %v", e.Path, e.Err)
}

func (e *FileLoadError) Unwrap() error { return e.Err }

// SettingsLoadError reports a malformed settings file.
type SettingsLoadError struct {
	Path string
	Err  error
}

func (e *SettingsLoadError) Error() string {
	return fmt.Sprintf("cannot load settings %q: %v", e.Path, e.Err)
}

func (e *SettingsLoadError) Unwrap() error { return e.Err }

// Invariant panics with an error wrapping ErrInternalInvariant.
func Invariant(format string, args ...interface{}) {
	panic(fmt.Errorf("%w: %s", ErrInternalInvariant, fmt.Sprintf(format, args...)))
}
