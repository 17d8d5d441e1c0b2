package internal

import "fmt"

// CodecError is returned when the image codec rejects the source buffer,
// a size's dimensions or the format override.
type CodecError struct {
	Size string
	Op   string
	Err  error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("codec %s for size %q: %v", e.Op, e.Size, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

// StorageError is returned when an output file can't be checked, removed or written.
type StorageError struct {
	Size string
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s for size %q: %v", e.Op, e.Path, e.Size, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// SanitizationError means no safe output filename could be derived.
type SanitizationError struct {
	Size     string
	Filename string
	Reason   string
}

func (e *SanitizationError) Error() string {
	return fmt.Sprintf("unsafe filename %q for size %q: %s", e.Filename, e.Size, e.Reason)
}
