package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDLQ_AddAndDrain(t *testing.T) {
	d := NewDLQ(10)
	d.Add(DLQEntry{ID: "a", Kind: "identify", Error: "boom", LastFailedAt: time.Now()})
	d.Add(DLQEntry{ID: "b", Kind: "identify", Error: "boom", LastFailedAt: time.Now()})

	if d.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", d.Len())
	}

	entries := d.Drain()
	if len(entries) != 2 {
		t.Fatalf("expected 2 drained entries, got %d", len(entries))
	}
	if entries[0].ID != "a" || entries[1].ID != "b" {
		t.Errorf("expected FIFO order, got %v", entries)
	}
	if d.Len() != 0 {
		t.Errorf("expected empty buffer after drain, got %d", d.Len())
	}
}

func TestDLQ_EvictsOldestWhenFull(t *testing.T) {
	d := NewDLQ(3)
	for i := 0; i < 5; i++ {
		d.Add(DLQEntry{ID: fmt.Sprintf("job-%d", i)})
	}

	if d.Len() != 3 {
		t.Fatalf("expected buffer capped at 3, got %d", d.Len())
	}
	entries := d.Drain()
	if entries[0].ID != "job-2" || entries[2].ID != "job-4" {
		t.Errorf("expected oldest entries evicted, got %v", entries)
	}
}

func TestDLQ_DefaultCapacity(t *testing.T) {
	d := NewDLQ(0)
	d.Add(DLQEntry{ID: "a", ErrorType: ClassifyError(errors.New("database is locked"))})

	entries := d.Drain()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ErrorType != "transient" {
		t.Errorf("expected transient classification, got %q", entries[0].ErrorType)
	}
}
