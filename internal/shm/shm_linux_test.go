//go:build linux

package shm

import (
	"fmt"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("shmtest-%d-%d", os.Getpid(), time.Now().UnixNano())
}

func TestOpenResizeMapRoundtrip(t *testing.T) {
	name := testName(t)
	fd, err := Open(name, true, 0o600)
	require.NoError(t, err)
	defer func() { _ = Unlink(name) }()

	require.NoError(t, Resize(fd, 4096))

	size, err := ObjectSize(fd)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), size)

	data, err := Map(fd, 4096)
	require.NoError(t, err)
	assert.Len(t, data, 4096)

	copy(data, "roundtrip")
	assert.Equal(t, "roundtrip", string(data[:9]))

	assert.NoError(t, Unmap(data))
	assert.NoError(t, Close(fd))
}

func TestOpenWithoutCreate(t *testing.T) {
	_, err := Open(testName(t), false, 0o600)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestUnlinkMissing(t *testing.T) {
	err := Unlink(testName(t))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestUnlinkKeepsOpenDescriptorAlive(t *testing.T) {
	name := testName(t)
	fd, err := Open(name, true, 0o600)
	require.NoError(t, err)
	require.NoError(t, Resize(fd, 1024))

	data, err := Map(fd, 1024)
	require.NoError(t, err)
	copy(data, "survivor")

	require.NoError(t, Unlink(name))

	// Binding is gone but the mapping still reads back what was written.
	assert.Equal(t, "survivor", string(data[:8]))
	_, err = Open(name, false, 0o600)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	assert.NoError(t, Unmap(data))
	assert.NoError(t, Close(fd))
}

func TestCreateModeApplied(t *testing.T) {
	name := testName(t)
	fd, err := Open(name, true, 0o640)
	require.NoError(t, err)
	defer func() {
		_ = Close(fd)
		_ = Unlink(name)
	}()

	info, err := os.Stat(PathFor(name))
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o640), info.Mode().Perm())
}
