// Package shm is the platform syscall layer for named shared memory
// segments. It validates segment names and translates open, resize, map,
// unmap, close and unlink into the corresponding OS calls. Classification of
// failures into the public error taxonomy happens one layer up, in
// pkg/segment.
package shm

import (
	"errors"
	"strings"
)

// MaxNameLen bounds segment names before any syscall is issued. A name of
// 255 bytes or more is rejected outright; the underlying C interfaces work
// with a 256-byte buffer that must also hold the terminator.
const MaxNameLen = 255

var (
	// ErrNameTooLong reports a name of MaxNameLen bytes or more.
	ErrNameTooLong = errors.New("segment name too long")
	// ErrNameInvalid reports an empty name or one containing a NUL byte or
	// an interior slash.
	ErrNameInvalid = errors.New("segment name invalid")
	// ErrUnsupported is returned by every operation on platforms without
	// POSIX shared memory.
	ErrUnsupported = errors.New("shared memory not supported on this platform")
)

// CleanName validates a segment name and returns its path-safe form with the
// optional leading slash stripped. POSIX names conventionally start with "/";
// the backing filesystem entry does not. No OS call is made.
func CleanName(name string) (string, error) {
	if len(name) >= MaxNameLen {
		return "", ErrNameTooLong
	}
	name = strings.TrimPrefix(name, "/")
	if len(name) == 0 {
		return "", ErrNameInvalid
	}
	if strings.IndexByte(name, 0) >= 0 || strings.IndexByte(name, '/') >= 0 {
		return "", ErrNameInvalid
	}
	return name, nil
}
