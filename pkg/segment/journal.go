package segment

import (
	"time"

	"github.com/Workiva/go-datastructures/queue"
)

// Event is one lifecycle transition of a named segment.
type Event struct {
	Time time.Time
	Op   string
	Name string
	Size int64
	Err  string
}

// Journal is a bounded, concurrency-safe record of segment lifecycle events,
// useful as an audit trail when segments are shared between processes. A full
// journal drops new events rather than blocking an operation. A nil *Journal
// is valid and records nothing.
type Journal struct {
	rb *queue.RingBuffer
}

// NewJournal builds a journal retaining up to capacity events.
func NewJournal(capacity uint64) *Journal {
	return &Journal{rb: queue.NewRingBuffer(capacity)}
}

func (j *Journal) record(op, name string, size int64, err error) {
	if j == nil {
		return
	}
	e := Event{Time: time.Now(), Op: op, Name: name, Size: size}
	if err != nil {
		e.Err = err.Error()
	}
	if ok, qerr := j.rb.Offer(e); !ok || qerr != nil {
		internalLogger.debugf("journal full, dropped %s %s", op, name)
	}
}

// Len reports the number of buffered events.
func (j *Journal) Len() uint64 {
	if j == nil {
		return 0
	}
	return j.rb.Len()
}

// Drain removes and returns the buffered events, oldest first.
func (j *Journal) Drain() []Event {
	if j == nil {
		return nil
	}
	n := j.rb.Len()
	events := make([]Event, 0, n)
	for i := uint64(0); i < n; i++ {
		item, err := j.rb.Poll(time.Millisecond)
		if err != nil {
			break
		}
		if e, ok := item.(Event); ok {
			events = append(events, e)
		}
	}
	return events
}

// Dispose releases the journal. Later records are dropped.
func (j *Journal) Dispose() {
	if j != nil {
		j.rb.Dispose()
	}
}
