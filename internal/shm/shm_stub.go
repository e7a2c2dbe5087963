//go:build !linux

package shm

// Dir is unused on platforms without POSIX shared memory.
const Dir = ""

func PathFor(name string) string { return name }

func Open(name string, create bool, mode uint32) (int, error) { return -1, ErrUnsupported }

func Resize(fd int, size int64) error { return ErrUnsupported }

func ObjectSize(fd int) (int64, error) { return 0, ErrUnsupported }

func Map(fd int, size int) ([]byte, error) { return nil, ErrUnsupported }

func Unmap(data []byte) error { return ErrUnsupported }

func Close(fd int) error { return ErrUnsupported }

func Unlink(name string) error { return ErrUnsupported }
