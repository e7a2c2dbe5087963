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
	"fmt"
	"io/fs"
	"runtime"
	"strconv"
	"strings"
	"unsafe"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/disk"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	internalshm "github.com/srediag/shm-segment/internal/shm"
)

// DefaultMode is the permission mode applied to newly created objects when
// Options.Mode is left zero. World read/write matches the historical contract
// of the C shim this package replaces; tighten it through Options.Mode.
const DefaultMode fs.FileMode = 0o666

// Options configures a Manager. The zero value is usable.
type Options struct {
	// Mode is the permission mode for newly created objects. Zero means
	// DefaultMode.
	Mode fs.FileMode
	// Registerer receives the manager's Prometheus collectors when non-nil.
	Registerer prometheus.Registerer
	// Meter and Tracer enable OpenTelemetry instrumentation. Nil means noop.
	Meter  metric.Meter
	Tracer trace.Tracer
	// Journal receives lifecycle events when non-nil.
	Journal *Journal
}

// Handle references an open shared memory object. It is not a mapping; the
// two have independent lifetimes.
type Handle struct {
	fd   int
	name string
	size int64
}

// Fd exposes the raw descriptor for foreign callers.
func (h *Handle) Fd() int { return h.fd }

// Name is the cleaned segment name, empty for adopted descriptors.
func (h *Handle) Name() string { return h.name }

// Size is the object size established at open time.
func (h *Handle) Size() int64 { return h.size }

// AdoptHandle wraps a descriptor obtained outside this package so it can be
// mapped and closed through a Manager. The caller keeps ownership semantics:
// close it exactly once.
func AdoptHandle(fd int) *Handle {
	return &Handle{fd: fd}
}

// Mapping is a process-local address range backed by a segment. Writes
// through it are visible to every other mapping of the same object.
type Mapping struct {
	data []byte
	name string
}

// Bytes is the mapped memory. Invalid after Unmap.
func (m *Mapping) Bytes() []byte { return m.data }

// Size is the mapping length in bytes.
func (m *Mapping) Size() int { return len(m.data) }

// Name is the segment name the mapping was derived from, when known.
func (m *Mapping) Name() string { return m.name }

// Addr is the base address of the mapping, 0 after Unmap.
func (m *Mapping) Addr() uintptr {
	if len(m.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&m.data[0]))
}

// Manager performs the five lifecycle operations on named shared memory
// segments: create-or-open, unlink, map, unmap and close. Every operation is
// a direct synchronous translation to one or two OS calls; there is no
// internal locking around them and no retry. The OS serializes concurrent
// create/open races on the same name. Contexts are used for tracing only.
type Manager struct {
	opts     Options
	mode     fs.FileMode
	metrics  *managerMetrics
	inst     *otelInstruments
	tracer   trace.Tracer
	handles  cmap.ConcurrentMap[string, *Handle]
	mappings cmap.ConcurrentMap[string, *Mapping]

	// resize is swapped in tests to force a post-open failure.
	resize func(fd int, size int64) error
}

// NewManager builds a Manager from opts.
func NewManager(opts Options) *Manager {
	mode := opts.Mode
	if mode == 0 {
		mode = DefaultMode
	}
	return &Manager{
		opts:     opts,
		mode:     mode,
		metrics:  newManagerMetrics(opts.Registerer),
		inst:     newOtelInstruments(opts.Meter),
		tracer:   tracerOrNoop(opts.Tracer),
		handles:  cmap.New[*Handle](),
		mappings: cmap.New[*Mapping](),
		resize:   internalshm.Resize,
	}
}

// CreateOrOpen opens the named object, creating it if absent, and resizes it
// to exactly size bytes. The returned handle is not mapped. If the resize
// fails the fresh descriptor is closed and the name unlinked so no
// zero-length object lingers; those cleanup failures are logged, not
// surfaced, since the resize failure dominates.
func (m *Manager) CreateOrOpen(ctx context.Context, name string, size int64) (*Handle, error) {
	ctx, span := m.tracer.Start(ctx, "segment.CreateOrOpen")
	defer span.End()

	cleaned, err := internalshm.CleanName(name)
	if err != nil {
		return nil, m.fail(span, opErr("create_or_open", name, ErrInvalidArgument, err))
	}
	if size < 0 {
		return nil, m.fail(span, opErr("create_or_open", name, ErrInvalidArgument,
			fmt.Errorf("negative size %d", size)))
	}
	if !canCreateOnDevShm(uint64(size), internalshm.PathFor(cleaned)) {
		return nil, m.fail(span, opErr("create_or_open", name, ErrResource,
			fmt.Errorf("no space for %d bytes on %s", size, internalshm.Dir)))
	}

	fd, err := internalshm.Open(cleaned, true, uint32(m.mode))
	if err != nil {
		return nil, m.fail(span, opErr("create_or_open", name, errnoKind(err), err))
	}
	if err := m.resize(fd, size); err != nil {
		if cerr := internalshm.Close(fd); cerr != nil {
			internalLogger.warnf("cleanup close of %s after failed resize: %v", cleaned, cerr)
		}
		if uerr := internalshm.Unlink(cleaned); uerr != nil {
			internalLogger.warnf("cleanup unlink of %s after failed resize: %v", cleaned, uerr)
		}
		return nil, m.fail(span, opErr("create_or_open", name, ErrResource, err))
	}

	h := &Handle{fd: fd, name: cleaned, size: size}
	m.handles.Set(fdKey(fd), h)
	m.metrics.created.Inc()
	m.metrics.handles.Inc()
	m.inst.ops.Add(ctx, 1)
	m.opts.Journal.record("create_or_open", cleaned, size, nil)
	return h, nil
}

// OpenExisting attaches to an already created object without creating it.
// ErrNotFound when the name does not resolve.
func (m *Manager) OpenExisting(ctx context.Context, name string) (*Handle, error) {
	ctx, span := m.tracer.Start(ctx, "segment.OpenExisting")
	defer span.End()

	cleaned, err := internalshm.CleanName(name)
	if err != nil {
		return nil, m.fail(span, opErr("open_existing", name, ErrInvalidArgument, err))
	}
	fd, err := internalshm.Open(cleaned, false, uint32(m.mode))
	if err != nil {
		return nil, m.fail(span, opErr("open_existing", name, errnoKind(err), err))
	}
	size, err := internalshm.ObjectSize(fd)
	if err != nil {
		if cerr := internalshm.Close(fd); cerr != nil {
			internalLogger.warnf("cleanup close of %s after failed stat: %v", cleaned, cerr)
		}
		return nil, m.fail(span, opErr("open_existing", name, ErrResource, err))
	}

	h := &Handle{fd: fd, name: cleaned, size: size}
	m.handles.Set(fdKey(fd), h)
	m.metrics.handles.Inc()
	m.inst.ops.Add(ctx, 1)
	m.opts.Journal.record("open_existing", cleaned, size, nil)
	return h, nil
}

// Unlink removes the name-to-object binding. Handles and mappings already
// obtained stay valid until released by every holder; future CreateOrOpen
// calls with the same name allocate a fresh object.
func (m *Manager) Unlink(ctx context.Context, name string) error {
	ctx, span := m.tracer.Start(ctx, "segment.Unlink")
	defer span.End()

	cleaned, err := internalshm.CleanName(name)
	if err != nil {
		return m.fail(span, opErr("unlink", name, ErrInvalidArgument, err))
	}
	if err := internalshm.Unlink(cleaned); err != nil {
		return m.fail(span, opErr("unlink", name, errnoKind(err), err))
	}
	m.metrics.unlinked.Inc()
	m.inst.ops.Add(ctx, 1)
	m.opts.Journal.record("unlink", cleaned, 0, nil)
	return nil
}

// Map establishes a read-write shared mapping of size bytes at offset 0 of
// the object behind h. The kernel picks the address. A request larger than
// the object's allocated size fails with ErrMapping up front rather than
// faulting on first access. The handle is neither closed nor duplicated.
func (m *Manager) Map(ctx context.Context, h *Handle, size int64) (*Mapping, error) {
	ctx, span := m.tracer.Start(ctx, "segment.Map")
	defer span.End()

	if h == nil {
		return nil, m.fail(span, opErr("map", "", ErrInvalidArgument, fmt.Errorf("nil handle")))
	}
	if size <= 0 {
		return nil, m.fail(span, opErr("map", h.name, ErrMapping,
			fmt.Errorf("unmappable size %d", size)))
	}
	objSize, err := internalshm.ObjectSize(h.fd)
	if err != nil {
		return nil, m.fail(span, opErr("map", h.name, ErrMapping, err))
	}
	if size > objSize {
		return nil, m.fail(span, opErr("map", h.name, ErrMapping,
			fmt.Errorf("requested %d bytes of a %d byte object", size, objSize)))
	}
	data, err := internalshm.Map(h.fd, int(size))
	if err != nil {
		return nil, m.fail(span, opErr("map", h.name, ErrMapping, err))
	}

	mp := &Mapping{data: data, name: h.name}
	m.mappings.Set(addrKey(mp.Addr()), mp)
	m.metrics.mappings.Inc()
	m.metrics.mappedBytes.Add(float64(size))
	m.inst.ops.Add(ctx, 1)
	m.inst.mappedBytes.Add(ctx, size)
	m.opts.Journal.record("map", h.name, size, nil)
	return mp, nil
}

// Unmap releases the mapping. The mapping's bytes must not be touched
// afterwards.
func (m *Manager) Unmap(ctx context.Context, mp *Mapping) error {
	ctx, span := m.tracer.Start(ctx, "segment.Unmap")
	defer span.End()

	if mp == nil || mp.data == nil {
		return m.fail(span, opErr("unmap", "", ErrInvalidArgument, fmt.Errorf("nil mapping")))
	}
	size := int64(len(mp.data))
	key := addrKey(mp.Addr())
	if err := internalshm.Unmap(mp.data); err != nil {
		return m.fail(span, opErr("unmap", mp.name, ErrResource, err))
	}
	mp.data = nil
	if _, tracked := m.mappings.Pop(key); tracked {
		m.metrics.mappings.Dec()
		m.metrics.mappedBytes.Sub(float64(size))
		m.inst.mappedBytes.Add(ctx, -size)
	}
	m.inst.ops.Add(ctx, 1)
	m.opts.Journal.record("unmap", mp.name, size, nil)
	return nil
}

// Close releases the descriptor. It does not unlink the name and does not
// unmap mappings derived from the handle. There is no idempotent-close
// guarantee: closing a handle twice surfaces the OS error.
func (m *Manager) Close(ctx context.Context, h *Handle) error {
	ctx, span := m.tracer.Start(ctx, "segment.Close")
	defer span.End()

	if h == nil {
		return m.fail(span, opErr("close", "", ErrInvalidArgument, fmt.Errorf("nil handle")))
	}
	_, tracked := m.handles.Pop(fdKey(h.fd))
	if err := internalshm.Close(h.fd); err != nil {
		return m.fail(span, opErr("close", h.name, ErrResource, err))
	}
	if tracked {
		m.metrics.handles.Dec()
	}
	m.inst.ops.Add(ctx, 1)
	m.opts.Journal.record("close", h.name, h.size, nil)
	return nil
}

// Stats is a point-in-time snapshot of the resources the manager tracks.
type Stats struct {
	OpenHandles    int
	ActiveMappings int
	MappedBytes    int64
}

// Stats reports currently tracked handles and mappings. Adopted descriptors
// closed through the manager are not counted.
func (m *Manager) Stats() Stats {
	s := Stats{
		OpenHandles:    m.handles.Count(),
		ActiveMappings: m.mappings.Count(),
	}
	for _, mp := range m.mappings.Items() {
		s.MappedBytes += int64(len(mp.data))
	}
	return s
}

func (m *Manager) fail(span trace.Span, err *OpError) error {
	span.RecordError(err)
	m.metrics.errors.WithLabelValues(err.Op).Inc()
	m.opts.Journal.record(err.Op, err.Name, 0, err)
	return err
}

// canCreateOnDevShm reports whether the shared memory filesystem has room for
// size more bytes. Paths outside it are not checked and always pass.
func canCreateOnDevShm(size uint64, path string) bool {
	if runtime.GOOS != "linux" || !strings.HasPrefix(path, internalshm.Dir) {
		return true
	}
	stat, err := disk.Usage(internalshm.Dir)
	if err != nil {
		internalLogger.debugf("disk usage of %s: %v", internalshm.Dir, err)
		return true
	}
	return stat.Free >= size
}

func fdKey(fd int) string { return strconv.Itoa(fd) }

func addrKey(addr uintptr) string { return strconv.FormatUint(uint64(addr), 16) }
