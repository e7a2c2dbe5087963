package segment

import (
	"fmt"
	"os"

	"github.com/heptiolabs/healthcheck"
	"github.com/shirou/gopsutil/v3/disk"

	internalshm "github.com/srediag/shm-segment/internal/shm"
)

// NewHealthHandler builds an HTTP health handler covering shared memory
// availability: readiness requires the segment directory to be writable and
// minFreeBytes to remain free on its filesystem.
func NewHealthHandler(minFreeBytes uint64) healthcheck.Handler {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(1000))
	h.AddReadinessCheck("shm-dir-writable", checkDirWritable(internalshm.Dir))
	h.AddReadinessCheck("shm-capacity", checkCapacity(internalshm.Dir, minFreeBytes))
	return h
}

func checkDirWritable(dir string) healthcheck.Check {
	return func() error {
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
		f, err := os.CreateTemp(dir, ".shmseg-health-*")
		if err != nil {
			return err
		}
		name := f.Name()
		if err := f.Close(); err != nil {
			return err
		}
		return os.Remove(name)
	}
}

func checkCapacity(dir string, minFree uint64) healthcheck.Check {
	return func() error {
		stat, err := disk.Usage(dir)
		if err != nil {
			return err
		}
		if stat.Free < minFree {
			return fmt.Errorf("%s: %d bytes free, need %d", dir, stat.Free, minFree)
		}
		return nil
	}
}
