package resilience

import (
	"context"
	"sync"

	"github.com/echolens/echolens/insight-engine/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultErrorLogCapacity bounds the in-memory ring.
const DefaultErrorLogCapacity = 256

// ErrorMirror receives a copy of every handled error for dashboard
// counters. Mirror failures are swallowed — the log never fails a
// workflow over bookkeeping.
type ErrorMirror interface {
	RecordErrorStat(ctx context.Context, rec models.ErrorRecord) error
}

// ErrorLog is a bounded ring buffer of handled failures, oldest evicted
// first, mirrored to an external cache when one is wired.
type ErrorLog struct {
	mu       sync.Mutex
	records  []models.ErrorRecord
	next     int
	size     int
	capacity int
	mirror   ErrorMirror
}

// NewErrorLog creates a ring with the given capacity. mirror may be nil.
func NewErrorLog(capacity int, mirror ErrorMirror) *ErrorLog {
	if capacity <= 0 {
		capacity = DefaultErrorLogCapacity
	}
	return &ErrorLog{
		records:  make([]models.ErrorRecord, capacity),
		capacity: capacity,
		mirror:   mirror,
	}
}

// Record appends a handled failure, evicting the oldest entry when full.
func (l *ErrorLog) Record(ctx context.Context, rec models.ErrorRecord) {
	l.mu.Lock()
	l.records[l.next] = rec
	l.next = (l.next + 1) % l.capacity
	if l.size < l.capacity {
		l.size++
	}
	l.mu.Unlock()

	if l.mirror != nil {
		if err := l.mirror.RecordErrorStat(ctx, rec); err != nil {
			log.Debug().Err(err).Msg("Error-stat mirror write failed, ignoring")
		}
	}
}

// Snapshot returns the recorded failures, oldest first.
func (l *ErrorLog) Snapshot() []models.ErrorRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.ErrorRecord, 0, l.size)
	if l.size < l.capacity {
		out = append(out, l.records[:l.size]...)
		return out
	}
	out = append(out, l.records[l.next:]...)
	out = append(out, l.records[:l.next]...)
	return out
}

// Len returns the number of retained records.
func (l *ErrorLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}
