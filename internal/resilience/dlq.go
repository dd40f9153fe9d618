package resilience

import (
	"sync"
	"time"
)

// DLQEntry records a job that exhausted its retries.
type DLQEntry struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Payload      any       `json:"payload"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"` // "transient" or "permanent"
	Attempts     int       `json:"attempts"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// DLQ is a bounded in-memory dead letter buffer. When full, the oldest entry
// is dropped; failed work is recoverable by a later reconcile sweep, so the
// buffer exists for observability rather than durability.
type DLQ struct {
	mu      sync.Mutex
	max     int
	entries []DLQEntry
}

// NewDLQ creates a buffer holding at most max entries (default 1000).
func NewDLQ(max int) *DLQ {
	if max <= 0 {
		max = 1000
	}
	return &DLQ{max: max}
}

// Add appends an entry, evicting the oldest when the buffer is full.
func (d *DLQ) Add(e DLQEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.entries) >= d.max {
		d.entries = d.entries[1:]
	}
	d.entries = append(d.entries, e)
}

// Drain removes and returns all entries.
func (d *DLQ) Drain() []DLQEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.entries
	d.entries = nil
	return out
}

// Len reports the number of buffered entries.
func (d *DLQ) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
