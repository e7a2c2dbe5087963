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

// Package ffi is the sentinel-value boundary over pkg/segment for foreign
// runtimes that only understand primitive return values: failed calls return
// -1 (or address 0 for Mmap) instead of an error value. Structured errors
// exist inside pkg/segment and are translated to the sentinel only here.
//
// Names arrive as raw byte buffers that need not be NUL-terminated; they are
// validated and bounded before any OS call. The functions are safe for
// concurrent callers.
package ffi

import (
	"context"
	"strconv"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/srediag/shm-segment/pkg/segment"
)

var (
	mgr = segment.NewManager(segment.Options{})

	handles  = cmap.New[*segment.Handle]()
	mappings = cmap.New[*segment.Mapping]()
)

// Configure replaces the boundary's manager, e.g. to tighten the create mode
// or attach metrics. Call it before any other function.
func Configure(m *segment.Manager) {
	mgr = m
}

// ShmOpen creates or opens the named segment with read/write access and
// resizes it to size bytes. Returns the descriptor, or -1 on failure.
func ShmOpen(name []byte, size int64) int {
	h, err := mgr.CreateOrOpen(context.Background(), string(name), size)
	if err != nil {
		return -1
	}
	handles.Set(strconv.Itoa(h.Fd()), h)
	return h.Fd()
}

// ShmUnlink removes the name-to-object binding. Returns 0, or -1 on failure.
// Descriptors and mappings already handed out stay valid.
func ShmUnlink(name []byte) int {
	if err := mgr.Unlink(context.Background(), string(name)); err != nil {
		return -1
	}
	return 0
}

// Mmap maps size bytes of the segment behind fd, read/write and shared,
// starting at offset 0. Returns the mapping's base address, or 0 when the
// request cannot be satisfied. Descriptors not handed out by ShmOpen are
// accepted and mapped as-is.
func Mmap(fd int, size int64) uintptr {
	h, ok := handles.Get(strconv.Itoa(fd))
	if !ok {
		h = segment.AdoptHandle(fd)
	}
	mp, err := mgr.Map(context.Background(), h, size)
	if err != nil {
		return 0
	}
	addr := mp.Addr()
	mappings.Set(addrKey(addr), mp)
	return addr
}

// Munmap releases the mapping at addr. size must equal the size passed to
// Mmap, mirroring the symmetry the raw syscall demands; a mismatch is
// reported as failure rather than left undefined. Returns 0, or -1 on
// failure.
func Munmap(addr uintptr, size int64) int {
	mp, ok := mappings.Get(addrKey(addr))
	if !ok || int64(mp.Size()) != size {
		return -1
	}
	mappings.Remove(addrKey(addr))
	if err := mgr.Unmap(context.Background(), mp); err != nil {
		return -1
	}
	return 0
}

// Close releases the descriptor. Returns 0, or -1 on failure. Closing twice
// fails the second time; there is no idempotent-close guarantee.
func Close(fd int) int {
	h, ok := handles.Pop(strconv.Itoa(fd))
	if !ok {
		h = segment.AdoptHandle(fd)
	}
	if err := mgr.Close(context.Background(), h); err != nil {
		return -1
	}
	return 0
}

func addrKey(addr uintptr) string {
	return strconv.FormatUint(uint64(addr), 16)
}
