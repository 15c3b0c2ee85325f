package ingress

import (
	"sync"
	"time"
)

// bucketKey identifies one fixed UTC hour window for one sender.
type bucketKey struct {
	sender string
	bucket int64
}

// RateCounter is a fixed-window admission counter keyed (sender, hour).
//
// Fixed windows make admission order-independent inside a bucket: the n-th
// request of an hour is admitted or refused by count alone, regardless of
// the order concurrent requests are evaluated. Counts only grow within a
// bucket (monotonic); old buckets are pruned lazily.
type RateCounter struct {
	mu     sync.Mutex
	counts map[bucketKey]int64
}

func NewRateCounter() *RateCounter {
	return &RateCounter{counts: make(map[bucketKey]int64)}
}

// Admit counts one request for sender at now and reports whether it fits
// under max. max <= 0 means the channel has no rate budget at all.
func (r *RateCounter) Admit(sender string, now time.Time, max int64) bool {
	if max <= 0 {
		return false
	}
	key := bucketKey{sender: sender, bucket: now.UTC().Unix() / 3600}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked(key.bucket)
	if r.counts[key] >= max {
		return false
	}
	r.counts[key]++
	return true
}

// pruneLocked drops buckets older than the previous hour.
func (r *RateCounter) pruneLocked(current int64) {
	for k := range r.counts {
		if k.bucket < current-1 {
			delete(r.counts, k)
		}
	}
}
