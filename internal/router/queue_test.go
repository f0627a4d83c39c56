package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueEnqueueAccountsOverhead(t *testing.T) {
	q := newQueue(1000, time.Hour)
	msg := queuedMessage{frame: make([]byte, 100), to: "DAL123", createdAt: time.Now()}

	require.True(t, q.Enqueue(msg))
	assert.Equal(t, int64(100+perEntryOverhead), q.Bytes())
}

func TestQueueEnqueueRejectsOverBudget(t *testing.T) {
	q := newQueue(100, time.Hour)
	msg := queuedMessage{frame: make([]byte, 200), to: "DAL123", createdAt: time.Now()}

	assert.False(t, q.Enqueue(msg))
	assert.Equal(t, int64(0), q.Bytes())
}

func TestQueueDrainDeliversToNowLiveTarget(t *testing.T) {
	q := newQueue(1000, time.Hour)
	now := time.Now()
	require.True(t, q.Enqueue(queuedMessage{frame: []byte("a"), to: "DAL123", createdAt: now}))
	require.True(t, q.Enqueue(queuedMessage{frame: []byte("b"), to: "UAL456", createdAt: now}))

	results := q.Drain(now, func(to string) bool { return to == "DAL123" })

	require.Len(t, results, 1)
	assert.False(t, results[0].expired)
	assert.Equal(t, "DAL123", results[0].msg.to)

	// UAL456 remains queued, so its bytes are still accounted.
	assert.Equal(t, int64(len("b"))+perEntryOverhead, q.Bytes())
}

func TestQueueDrainExpiresOldEntries(t *testing.T) {
	q := newQueue(1000, time.Minute)
	old := time.Now().Add(-2 * time.Minute)
	require.True(t, q.Enqueue(queuedMessage{frame: []byte("a"), to: "DAL123", createdAt: old}))

	results := q.Drain(time.Now(), func(to string) bool { return false })

	require.Len(t, results, 1)
	assert.True(t, results[0].expired)
	assert.Equal(t, int64(0), q.Bytes())
}

func TestQueueDrainRetainsUndeliverableFreshEntries(t *testing.T) {
	q := newQueue(1000, time.Hour)
	now := time.Now()
	require.True(t, q.Enqueue(queuedMessage{frame: []byte("a"), to: "DAL123", createdAt: now}))

	results := q.Drain(now, func(to string) bool { return false })

	assert.Empty(t, results)
	assert.Equal(t, int64(len("a"))+perEntryOverhead, q.Bytes())
}
