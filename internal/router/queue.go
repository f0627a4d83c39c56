package router

import (
	"sync"
	"time"
)

// perEntryOverhead is the fixed accounting cost charged against the
// queue byte budget for each entry, beyond its encoded frame length
// (spec.md §8 invariant 7: "queue byte accounting equals the sum of
// encoded lengths plus per-entry overhead").
const perEntryOverhead = 64

// queuedMessage is a fully-encoded textual frame plus routing metadata
// (spec.md §3.3).
type queuedMessage struct {
	frame     []byte
	from      string
	to        string
	createdAt time.Time
}

func (q queuedMessage) accountedBytes() int64 {
	return int64(len(q.frame)) + perEntryOverhead
}

// queue is the daemon's single FIFO of messages awaiting an offline
// recipient.
type queue struct {
	mu       sync.Mutex
	entries  []queuedMessage
	maxBytes int64
	ttl      time.Duration
	total    int64
}

func newQueue(maxBytes int64, ttl time.Duration) *queue {
	return &queue{maxBytes: maxBytes, ttl: ttl}
}

// Enqueue appends msg to the FIFO if doing so would not exceed the byte
// budget. It reports whether the message was accepted.
func (q *queue) Enqueue(msg queuedMessage) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	cost := msg.accountedBytes()
	if q.total+cost > q.maxBytes {
		return false
	}
	q.entries = append(q.entries, msg)
	q.total += cost
	return true
}

// Bytes returns the current total accounted bytes (spec.md §8
// invariant 7).
func (q *queue) Bytes() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.total
}

// drainResult is one disposition produced by Drain: either a message to
// fan out, or a note that a message expired.
type drainResult struct {
	msg     queuedMessage
	expired bool
}

// Drain walks the queue once (spec.md §4.1 event-loop step 5): any
// message whose `to` callsign now has a deliverable target is removed
// and returned for fan-out; any message older than the TTL is dropped.
// hasTarget is called once per entry while q.mu is still held, so it
// must not itself lock the queue; touching the callsign index is fine
// since that is a separate mutex.
func (q *queue) Drain(now time.Time, hasTarget func(to string) bool) []drainResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	var results []drainResult
	var remaining []queuedMessage
	var remainingBytes int64

	for _, e := range q.entries {
		switch {
		case hasTarget(e.to):
			results = append(results, drainResult{msg: e})
		case now.Sub(e.createdAt) > q.ttl:
			results = append(results, drainResult{msg: e, expired: true})
		default:
			remaining = append(remaining, e)
			remainingBytes += e.accountedBytes()
		}
	}

	q.entries = remaining
	q.total = remainingBytes
	return results
}
