// Package segment manages the lifecycle of named POSIX shared memory
// segments: create-or-open, unlink, map, unmap and close, plus an owning
// Segment wrapper pairing a descriptor with its mapping.
//
// The package performs no coordination over the mapped bytes; synchronizing
// concurrent writers belongs to a higher layer, such as a ring buffer or a
// lock protocol built on the memory itself. Unlinking a name never
// invalidates handles or mappings already obtained, matching POSIX
// semantics. Operations accept a context for tracing only; each call either
// completes or fails synchronously.
//
// Example:
//
//	m := segment.NewManager(segment.Options{Mode: 0o600})
//	seg, err := m.Attach(ctx, "ipc-channel", 1<<16, true)
//	if err != nil {
//		return err
//	}
//	defer seg.Close(ctx)
//	copy(seg.Bytes(), payload)
package segment
