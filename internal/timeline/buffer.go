package timeline

import (
	"sync"
	"time"
)

// Buffer is an in-memory Timeline fed through Record and MarkLoaded.
type Buffer struct {
	mu        sync.Mutex
	origin    time.Time
	supported map[EntryType]bool
	entries   map[EntryType][]Entry
	observers map[EntryType]map[uint64]func([]Entry)
	loadFns   map[uint64]func()
	loaded    bool
	nextID    uint64
}

// NewBuffer creates a Buffer supporting the given entry types. With no types
// every known type is supported.
func NewBuffer(types ...EntryType) *Buffer {
	if len(types) == 0 {
		types = AllEntryTypes
	}
	supported := make(map[EntryType]bool, len(types))
	for _, t := range types {
		supported[t] = true
	}
	return &Buffer{
		origin:    time.Now(),
		supported: supported,
		entries:   make(map[EntryType][]Entry),
		observers: make(map[EntryType]map[uint64]func([]Entry)),
		loadFns:   make(map[uint64]func()),
	}
}

// Origin returns the wall time that entry timestamps are relative to.
func (b *Buffer) Origin() time.Time {
	return b.origin
}

// Since converts a wall time into milliseconds since the origin.
func (b *Buffer) Since(t time.Time) float64 {
	return float64(t.Sub(b.origin)) / float64(time.Millisecond)
}

func (b *Buffer) Supports(t EntryType) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.supported[t]
}

func (b *Buffer) Observe(t EntryType, fn func([]Entry)) (Observer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.supported[t] {
		return nil, ErrUnsupported
	}
	b.nextID++
	id := b.nextID
	if b.observers[t] == nil {
		b.observers[t] = make(map[uint64]func([]Entry))
	}
	b.observers[t][id] = fn
	return &bufferObserver{buf: b, typ: t, id: id}, nil
}

func (b *Buffer) EntriesByType(t EntryType) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Entry(nil), b.entries[t]...)
}

func (b *Buffer) OnLoad(fn func()) func() {
	b.mu.Lock()
	if b.loaded {
		b.mu.Unlock()
		fn()
		return func() {}
	}
	b.nextID++
	id := b.nextID
	b.loadFns[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.loadFns, id)
		b.mu.Unlock()
	}
}

// Record stores entries and delivers them to observers, one batch per entry
// type. Entries of unsupported types are dropped.
func (b *Buffer) Record(entries ...Entry) {
	if len(entries) == 0 {
		return
	}

	batches := make(map[EntryType][]Entry)
	var order []EntryType

	b.mu.Lock()
	for _, e := range entries {
		if !b.supported[e.Type] {
			continue
		}
		if _, seen := batches[e.Type]; !seen {
			order = append(order, e.Type)
		}
		batches[e.Type] = append(batches[e.Type], e)
		b.entries[e.Type] = append(b.entries[e.Type], e)
	}
	type delivery struct {
		fns   []func([]Entry)
		batch []Entry
	}
	deliveries := make([]delivery, 0, len(order))
	for _, t := range order {
		d := delivery{batch: batches[t]}
		for _, fn := range b.observers[t] {
			d.fns = append(d.fns, fn)
		}
		deliveries = append(deliveries, d)
	}
	b.mu.Unlock()

	for _, d := range deliveries {
		for _, fn := range d.fns {
			fn(append([]Entry(nil), d.batch...))
		}
	}
}

// MarkLoaded signals load completion. Only the first call has an effect.
func (b *Buffer) MarkLoaded() {
	b.mu.Lock()
	if b.loaded {
		b.mu.Unlock()
		return
	}
	b.loaded = true
	fns := make([]func(), 0, len(b.loadFns))
	for id, fn := range b.loadFns {
		fns = append(fns, fn)
		delete(b.loadFns, id)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Loaded reports whether MarkLoaded has been called.
func (b *Buffer) Loaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

// ObserverCount returns the number of connected observers and pending load
// callbacks.
func (b *Buffer) ObserverCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.loadFns)
	for _, obs := range b.observers {
		n += len(obs)
	}
	return n
}

type bufferObserver struct {
	buf  *Buffer
	typ  EntryType
	id   uint64
	once sync.Once
}

func (o *bufferObserver) Disconnect() {
	o.once.Do(func() {
		o.buf.mu.Lock()
		delete(o.buf.observers[o.typ], o.id)
		o.buf.mu.Unlock()
	})
}
