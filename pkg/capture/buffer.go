package capture

import (
	"sync"

	"github.com/kumarabd/console-brief/pkg/logtypes"
)

// DefaultCapacity is the number of events a tab keeps before evicting.
const DefaultCapacity = 5000

// Buffer is a fixed-capacity FIFO of raw console events.
// Entries are never mutated or reordered; the oldest entry is evicted on overflow.
type Buffer struct {
	mu sync.RWMutex

	entries  []logtypes.LogEntry
	capacity int
	head     int // index of the oldest entry once full

	totalAdded int64
	evicted    int64
}

// NewBuffer creates a buffer holding at most capacity entries.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		entries:  make([]logtypes.LogEntry, 0, capacity),
		capacity: capacity,
	}
}

// Append stores one event and reports whether an older one was evicted.
func (b *Buffer) Append(entry logtypes.LogEntry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appendLocked(entry)
}

// AppendAll stores events in order and returns how many were evicted.
func (b *Buffer) AppendAll(entries []logtypes.LogEntry) int {
	if len(entries) == 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	evicted := 0
	for _, entry := range entries {
		if b.appendLocked(entry) {
			evicted++
		}
	}
	return evicted
}

// appendLocked must be called with mu held.
func (b *Buffer) appendLocked(entry logtypes.LogEntry) bool {
	b.totalAdded++
	if len(b.entries) < b.capacity {
		b.entries = append(b.entries, entry)
		return false
	}
	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	b.evicted++
	return true
}

// Snapshot returns the most recent min(n, Len()) entries in chronological order.
// A negative n returns everything.
func (b *Buffer) Snapshot(n int) []logtypes.LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	size := len(b.entries)
	if n < 0 || n > size {
		n = size
	}
	out := make([]logtypes.LogEntry, n)
	if n == 0 {
		return out
	}

	// The oldest entry sits at head once the buffer has wrapped, at 0 before.
	start := b.head + size - n
	for i := 0; i < n; i++ {
		out[i] = b.entries[(start+i)%size]
	}
	return out
}

// Len returns the number of entries currently held.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Capacity returns the configured capacity.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Stats returns the lifetime append and eviction counters.
func (b *Buffer) Stats() (added, evicted int64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.totalAdded, b.evicted
}
