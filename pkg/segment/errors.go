/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package segment

import (
	"errors"
	"fmt"
	"io/fs"
)

// Failure kinds. Every error returned by a Manager operation wraps exactly
// one of these, so callers classify with errors.Is.
var (
	// ErrInvalidArgument reports an oversized or malformed segment name, or
	// a negative size. No OS call was issued.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrResource reports an OS-level failure on open, resize, close or
	// unmap, including exhaustion of the shared memory filesystem.
	ErrResource = errors.New("resource failure")
	// ErrMapping reports a mapping request the OS (or the pre-flight size
	// check) refused.
	ErrMapping = errors.New("mapping failed")
	// ErrNotFound reports an unlink or open of a name with no object bound.
	ErrNotFound = errors.New("segment not found")
	// ErrPermissionDenied reports an operation the OS rejected for lack of
	// access rights.
	ErrPermissionDenied = errors.New("permission denied")
)

// OpError carries the failing operation, the segment name when known, the
// failure kind and the underlying cause. errors.Is matches both the kind and
// the cause.
type OpError struct {
	Op   string
	Name string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("segment %s %q: %v: %v", e.Op, e.Name, e.Kind, e.Err)
	}
	return fmt.Sprintf("segment %s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func opErr(op, name string, kind, err error) *OpError {
	return &OpError{Op: op, Name: name, Kind: kind, Err: err}
}

// errnoKind classifies an errno carried by the platform layer. Errno values
// satisfy errors.Is against the fs sentinel errors.
func errnoKind(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return ErrPermissionDenied
	default:
		return ErrResource
	}
}
