//go:build linux

package shm

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Dir is where the kernel exposes POSIX shared memory objects.
const Dir = "/dev/shm"

// PathFor returns the backing path of an already cleaned segment name.
func PathFor(name string) string {
	return filepath.Join(Dir, name)
}

// Open opens the named object read/write, creating it with the given mode
// when create is set. The name must have passed CleanName.
func Open(name string, create bool, mode uint32) (int, error) {
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if create {
		flags |= unix.O_CREAT
	}
	fd, err := unix.Open(PathFor(name), flags, mode)
	if err != nil {
		return -1, fmt.Errorf("open %s: %w", name, err)
	}
	return fd, nil
}

// Resize sets the object behind fd to exactly size bytes.
func Resize(fd int, size int64) error {
	if err := unix.Ftruncate(fd, size); err != nil {
		return fmt.Errorf("ftruncate fd %d to %d: %w", fd, size, err)
	}
	return nil
}

// ObjectSize reports the allocated size of the object behind fd.
func ObjectSize(fd int) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, fmt.Errorf("fstat fd %d: %w", fd, err)
	}
	return st.Size, nil
}

// Map establishes a read-write shared mapping of size bytes at offset 0.
// The kernel chooses the address.
func Map(fd int, size int) ([]byte, error) {
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap fd %d size %d: %w", fd, size, err)
	}
	return data, nil
}

// Unmap releases a mapping produced by Map.
func Unmap(data []byte) error {
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}

// Close releases the descriptor. Mappings derived from it stay valid.
func Close(fd int) error {
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close fd %d: %w", fd, err)
	}
	return nil
}

// Unlink removes the name-to-object binding. Open descriptors and mappings
// keep the object alive until released.
func Unlink(name string) error {
	if err := unix.Unlink(PathFor(name)); err != nil {
		return fmt.Errorf("unlink %s: %w", name, err)
	}
	return nil
}
