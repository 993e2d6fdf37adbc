package gateway

import "sync"

type replayEntry struct {
	Seq  int64
	Data []byte // envelope JSON
}

// ReplayBuffer keeps the most recent envelopes so a reconnecting dashboard
// can catch up from the last sequence number it saw. Safe for concurrent use.
type ReplayBuffer struct {
	mu      sync.RWMutex
	entries []replayEntry
	next    int
	size    int
}

// NewReplayBuffer creates a buffer holding up to capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{entries: make([]replayEntry, capacity)}
}

// Push stores a copy of data under seq, evicting the oldest entry when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := append([]byte(nil), data...)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.entries[rb.next] = replayEntry{Seq: seq, Data: cp}
	rb.next = (rb.next + 1) % len(rb.entries)
	if rb.size < len(rb.entries) {
		rb.size++
	}
}

// Range returns entries with fromSeq <= seq <= toSeq, oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []replayEntry
	for i := 0; i < rb.size; i++ {
		e := rb.entries[rb.at(i)]
		if e.Seq >= fromSeq && e.Seq <= toSeq {
			out = append(out, e)
		}
	}
	return out
}

// Since returns every entry newer than seq. ok is false when entries after
// seq have already been evicted and the caller must resync from scratch.
func (rb *ReplayBuffer) Since(seq int64) (out []replayEntry, ok bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.size == 0 {
		return nil, true
	}
	oldest := rb.entries[rb.at(0)].Seq
	if seq+1 < oldest {
		return nil, false
	}
	for i := 0; i < rb.size; i++ {
		if e := rb.entries[rb.at(i)]; e.Seq > seq {
			out = append(out, e)
		}
	}
	return out, true
}

// Len returns the number of stored entries.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// at maps a logical index (0 = oldest) to a slot.
func (rb *ReplayBuffer) at(i int) int {
	if rb.size < len(rb.entries) {
		return i
	}
	return (rb.next + i) % len(rb.entries)
}
