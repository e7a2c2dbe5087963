package segment

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	internalshm "github.com/srediag/shm-segment/internal/shm"
)

// Sweeper removes stale named segments left behind by crashed processes. A
// sweep scans the shared memory directory for entries carrying a required
// prefix and unlinks those outside the retention window, fanning the unlinks
// out over a worker pool. Objects still held open elsewhere survive the
// unlink until their holders release them, so sweeping a live segment is
// disruptive but not corrupting.
type Sweeper struct {
	m    *Manager
	pool *ants.Pool
}

// NewSweeper builds a sweeper unlinking through m with the given pool size.
func NewSweeper(m *Manager, workers int) (*Sweeper, error) {
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("sweeper pool: %w", err)
	}
	return &Sweeper{m: m, pool: pool}, nil
}

// Sweep unlinks segments whose name begins with prefix and whose backing
// object has not been modified for at least olderThan. The prefix must be
// non-empty; a sweep of the whole directory is never what an operator wants.
// Returns the number unlinked.
func (s *Sweeper) Sweep(ctx context.Context, prefix string, olderThan time.Duration) (int, error) {
	if prefix == "" {
		return 0, fmt.Errorf("sweep: empty prefix")
	}
	entries, err := os.ReadDir(internalshm.Dir)
	if err != nil {
		return 0, fmt.Errorf("sweep %s: %w", internalshm.Dir, err)
	}
	cutoff := time.Now().Add(-olderThan)

	var (
		wg      sync.WaitGroup
		removed atomic.Int64
	)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		wg.Add(1)
		submitErr := s.pool.Submit(func() {
			defer wg.Done()
			if err := s.m.Unlink(ctx, name); err != nil {
				internalLogger.debugf("sweep left %s in place: %v", name, err)
				return
			}
			internalLogger.infof("sweep unlinked stale segment %s", name)
			removed.Add(1)
		})
		if submitErr != nil {
			wg.Done()
			internalLogger.warnf("sweep submit for %s: %v", name, submitErr)
		}
	}
	wg.Wait()
	return int(removed.Load()), ctx.Err()
}

// Close releases the worker pool.
func (s *Sweeper) Close() {
	s.pool.Release()
}
