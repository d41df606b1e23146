// Package archerr defines the error kinds shared by the archive codecs and
// the engine. Errors are wrapped with fmt.Errorf and classified with errors.Is.
package archerr

import "errors"

var (
	// ErrIO reports an open, read or write failure on a path.
	ErrIO = errors.New("io error")
	// ErrMalformedContainer reports a bad magic, a truncated field or an
	// inconsistent length in a container.
	ErrMalformedContainer = errors.New("malformed container")
	// ErrCorruptTree reports a bad marker, a missing sentinel or a tree blob
	// that ends prematurely.
	ErrCorruptTree = errors.New("corrupt tree")
	// ErrCorruptStream reports a decode walk that hits a missing child or runs
	// out of bits before producing the expected number of symbols.
	ErrCorruptStream = errors.New("corrupt stream")
	// ErrCapacity reports a value too large for its fixed-width field.
	ErrCapacity = errors.New("capacity exceeded")
	// ErrWorkerFailure reports a job that terminated abnormally.
	ErrWorkerFailure = errors.New("worker failure")
)
