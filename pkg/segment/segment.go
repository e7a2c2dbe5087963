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
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
)

// Segment owns a handle together with its mapping as a single scoped
// resource, so callers that want shared memory rather than the individual
// primitives cannot leak a descriptor without also leaking its mapping.
type Segment struct {
	m       *Manager
	h       *Handle
	mp      *Mapping
	created bool
}

// Attach opens the named segment, creating and sizing it when create is set,
// and maps size bytes of it. With create unset and size 0 the whole object is
// mapped. On a partial failure nothing leaks: the descriptor is closed and a
// newly created name unlinked before the error is returned.
func (m *Manager) Attach(ctx context.Context, name string, size int64, create bool) (*Segment, error) {
	var (
		h   *Handle
		err error
	)
	if create {
		h, err = m.CreateOrOpen(ctx, name, size)
	} else {
		h, err = m.OpenExisting(ctx, name)
		if err == nil && size == 0 {
			size = h.Size()
		}
	}
	if err != nil {
		return nil, err
	}
	mp, err := m.Map(ctx, h, size)
	if err != nil {
		if cerr := m.Close(ctx, h); cerr != nil {
			internalLogger.warnf("attach cleanup close of %s: %v", h.Name(), cerr)
		}
		if create {
			if uerr := m.Unlink(ctx, name); uerr != nil {
				internalLogger.warnf("attach cleanup unlink of %s: %v", h.Name(), uerr)
			}
		}
		return nil, err
	}
	return &Segment{m: m, h: h, mp: mp, created: create}, nil
}

// Bytes is the mapped memory. Invalid after Close.
func (s *Segment) Bytes() []byte { return s.mp.Bytes() }

// Name is the segment's cleaned name.
func (s *Segment) Name() string { return s.h.Name() }

// Handle exposes the underlying descriptor handle.
func (s *Segment) Handle() *Handle { return s.h }

// Mapping exposes the underlying mapping.
func (s *Segment) Mapping() *Mapping { return s.mp }

// Close releases the mapping and then the descriptor. Both releases are
// attempted; the first failure is reported. The name binding stays until
// Unlink.
func (s *Segment) Close(ctx context.Context) error {
	var first error
	if err := s.m.Unmap(ctx, s.mp); err != nil {
		first = err
	}
	if err := s.m.Close(ctx, s.h); err != nil && first == nil {
		first = err
	}
	return first
}

// Unlink removes the segment's name binding. The mapping and descriptor stay
// usable until Close.
func (s *Segment) Unlink(ctx context.Context) error {
	return s.m.Unlink(ctx, s.h.Name())
}

// AttachWithRetry attaches to a segment that a peer process is expected to
// create, retrying while the name does not resolve, under the supplied
// backoff policy. Any failure other than ErrNotFound aborts immediately. The
// five core operations themselves never retry; waiting for a peer is the one
// place a retry loop belongs.
func AttachWithRetry(ctx context.Context, m *Manager, name string, size int64, bo backoff.BackOff) (*Segment, error) {
	var seg *Segment
	op := func() error {
		s, err := m.Attach(ctx, name, size, false)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return err
			}
			return backoff.Permanent(err)
		}
		seg = s
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return seg, nil
}
