package kafka

import "sync"

// offsetTracker follows the in-flight offsets of one topic/partition claim
// and reports the highest offset below which everything is acknowledged.
// Acks may arrive in any order.
type offsetTracker struct {
	mu    sync.Mutex
	order []int64        // emitted offsets, ascending
	acked map[int64]bool // offset -> acknowledged
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{acked: make(map[int64]bool)}
}

func (t *offsetTracker) track(off int64) {
	t.mu.Lock()
	t.order = append(t.order, off)
	t.acked[off] = false
	t.mu.Unlock()
}

// resolve acknowledges off. It returns the new contiguous watermark and
// whether it moved; known is false for offsets not in flight, including
// repeated acks.
func (t *offsetTracker) resolve(off int64) (mark int64, moved, known bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if done, ok := t.acked[off]; !ok || done {
		return 0, false, false
	}
	t.acked[off] = true

	n := 0
	for n < len(t.order) && t.acked[t.order[n]] {
		mark = t.order[n]
		delete(t.acked, t.order[n])
		n++
	}
	t.order = t.order[n:]
	return mark, n > 0, true
}

func (t *offsetTracker) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}
