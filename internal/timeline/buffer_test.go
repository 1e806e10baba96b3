package timeline

import (
	"sync"
	"testing"
)

func TestBufferDeliversOneBatchPerType(t *testing.T) {
	buf := NewBuffer()

	var mu sync.Mutex
	var batches [][]Entry
	obs, err := buf.Observe(EntryResource, func(entries []Entry) {
		mu.Lock()
		batches = append(batches, entries)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	defer obs.Disconnect()

	buf.Record(
		Entry{Type: EntryResource, Name: "a.js", TransferSize: 10},
		Entry{Type: EntryLayoutShift, Value: 0.1},
		Entry{Type: EntryResource, Name: "b.css", TransferSize: 20},
	)

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	if len(batches[0]) != 2 {
		t.Errorf("batch has %d entries, want 2", len(batches[0]))
	}
	if got := len(buf.EntriesByType(EntryLayoutShift)); got != 1 {
		t.Errorf("EntriesByType(layout-shift) = %d, want 1", got)
	}
}

func TestBufferUnsupportedType(t *testing.T) {
	buf := NewBuffer(EntryResource)

	if buf.Supports(EntryLayoutShift) {
		t.Error("Supports(layout-shift) = true, want false")
	}
	if _, err := buf.Observe(EntryLayoutShift, func([]Entry) {}); err != ErrUnsupported {
		t.Errorf("Observe() error = %v, want ErrUnsupported", err)
	}

	buf.Record(Entry{Type: EntryLayoutShift, Value: 1})
	if got := buf.EntriesByType(EntryLayoutShift); len(got) != 0 {
		t.Errorf("unsupported entries stored: %v", got)
	}
}

func TestBufferDisconnectStopsDelivery(t *testing.T) {
	buf := NewBuffer()
	calls := 0
	obs, err := buf.Observe(EntryFirstInput, func([]Entry) { calls++ })
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}

	buf.Record(Entry{Type: EntryFirstInput})
	obs.Disconnect()
	obs.Disconnect()
	buf.Record(Entry{Type: EntryFirstInput})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if n := buf.ObserverCount(); n != 0 {
		t.Errorf("ObserverCount() = %d, want 0", n)
	}
}

func TestBufferOnLoad(t *testing.T) {
	buf := NewBuffer()

	fired := 0
	buf.OnLoad(func() { fired++ })
	cancel := buf.OnLoad(func() { t.Error("cancelled load callback ran") })
	cancel()

	buf.MarkLoaded()
	buf.MarkLoaded()
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}

	late := false
	buf.OnLoad(func() { late = true })
	if !late {
		t.Error("callback registered after load did not run")
	}
	if !buf.Loaded() {
		t.Error("Loaded() = false")
	}
}
