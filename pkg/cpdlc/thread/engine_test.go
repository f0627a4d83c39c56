package thread

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/marmos91/cpdlcd/pkg/cpdlc"
	"github.com/marmos91/cpdlcd/pkg/cpdlc/catalog"
	"github.com/marmos91/cpdlcd/pkg/cpdlc/transport"
)

// fakeTransport is a minimal in-memory transport.Transport used to drive
// the engine without a real TLS connection.
type fakeTransport struct {
	cb     func(*cpdlc.Message)
	status transport.LogonStatus
	sent   []*cpdlc.Message
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{status: transport.LoggedOn}
}

func (f *fakeTransport) Send(_ context.Context, m *cpdlc.Message) (transport.Token, error) {
	f.sent = append(f.sent, m)
	return struct{}{}, nil
}

func (f *fakeTransport) Status(transport.Token) transport.SendStatus { return transport.Sent }
func (f *fakeTransport) LogonStatus() transport.LogonStatus          { return f.status }
func (f *fakeTransport) SetRecvCB(cb func(*cpdlc.Message))           { f.cb = cb }

func (f *fakeTransport) deliver(m *cpdlc.Message) {
	f.cb(m)
}

var _ transport.Transport = (*fakeTransport)(nil)

func downlinkRequest() *cpdlc.Message {
	return &cpdlc.Message{
		Direction: cpdlc.Downlink,
		From:      "B", To: "ATC1",
		Segments: []cpdlc.Segment{{MsgType: catalog.DM(6)}},
	}
}

func uplinkReplyRequired(mrn uint32) *cpdlc.Message {
	return &cpdlc.Message{
		Direction: cpdlc.Uplink,
		From:      "ATC1", To: "B",
		MRN:      mrn,
		Segments: []cpdlc.Segment{{MsgType: catalog.UM(20)}}, // WU, timeout 60s
	}
}

// TestMINMonotonic is spec.md §8 invariant 4.
func TestMINMonotonic(t *testing.T) {
	e := New(newFakeTransport())
	ctx := context.Background()

	var mins []uint32
	for i := 0; i < 5; i++ {
		m := downlinkRequest()
		_, err := e.Send(ctx, m, NewThreadID)
		require.NoError(t, err)
		mins = append(mins, m.MIN)
	}
	for i := 1; i < len(mins); i++ {
		assert.Greater(t, mins[i], mins[i-1])
	}
}

// TestBucketIndicesContiguous is spec.md §8 invariant 2.
func TestBucketIndicesContiguous(t *testing.T) {
	e := New(newFakeTransport())
	ctx := context.Background()

	m1 := downlinkRequest()
	id, err := e.Send(ctx, m1, NewThreadID)
	require.NoError(t, err)

	count := e.GetThreadMessageCount(id)
	for i := 0; i < count; i++ {
		_, _, _, _, _, ok := e.GetThreadMessage(id, i)
		assert.True(t, ok, "bucket %d must exist", i)
	}
	_, _, _, _, _, ok := e.GetThreadMessage(id, count)
	assert.False(t, ok, "no bucket beyond count")
}

// TestReplyCorrelation is spec.md §8 scenario 5.
func TestReplyCorrelation(t *testing.T) {
	tr := newFakeTransport()
	e := New(tr)
	ctx := context.Background()

	m1 := downlinkRequest()
	id, err := e.Send(ctx, m1, NewThreadID)
	require.NoError(t, err)
	require.Equal(t, uint32(0), m1.MIN)

	uplink := uplinkReplyRequired(m1.MIN)
	tr.deliver(uplink)

	assert.Equal(t, 2, e.GetThreadMessageCount(id))

	m2 := downlinkRequest()
	id2, err := e.Send(ctx, m2, id)
	require.NoError(t, err)
	assert.Equal(t, id, id2, "reply stays in the same thread")
	assert.Equal(t, uplink.MIN, m2.MRN)
	assert.Equal(t, uint32(1), m2.MIN)
}

// TestTimeout is spec.md §8 scenario 6.
func TestTimeout(t *testing.T) {
	tr := newFakeTransport()
	e := New(tr)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	e.SetClock(func() time.Time { return now })

	uplink := uplinkReplyRequired(cpdlc.InvalidSeqNr)
	tr.deliver(uplink)

	ids := e.GetThreadIDs(false)
	require.Len(t, ids, 1)
	id := ids[0]

	status, _, _ := getStatus(e, id)
	assert.Equal(t, Open, status)

	now = base.Add(61 * time.Second)
	e.Update(ctx)

	status, _, _ = getStatus(e, id)
	assert.Equal(t, Timedout, status)
	assert.Equal(t, 2, e.GetThreadMessageCount(id))

	msg, _, _, _, isSent, ok := e.GetThreadMessage(id, 1)
	require.True(t, ok)
	assert.True(t, isSent)
	assert.Equal(t, catalog.DM62ERROR, msg.Segments[0].MsgType)
	assert.Equal(t, uplink.MIN, msg.MRN)

	// A further update must not append a second ERROR (status is final).
	e.Update(ctx)
	assert.Equal(t, 2, e.GetThreadMessageCount(id))
}

// TestFinalStatusStable is spec.md §8 invariant 3.
func TestFinalStatusStable(t *testing.T) {
	tr := newFakeTransport()
	e := New(tr)
	ctx := context.Background()

	m := &cpdlc.Message{
		Direction: cpdlc.Uplink,
		From:      "ATC1", To: "B",
		MRN:      cpdlc.InvalidSeqNr,
		Segments: []cpdlc.Segment{{MsgType: catalog.UM168Disregard}},
	}
	tr.deliver(m)

	ids := e.GetThreadIDs(false)
	require.Len(t, ids, 1)
	id := ids[0]

	status, _, _ := getStatus(e, id)
	assert.Equal(t, Disregard, status)

	e.Update(ctx)
	status2, _, _ := getStatus(e, id)
	assert.Equal(t, status, status2)
}

// TestClosedThreadForcesNewThread is spec.md §8 scenario 7.
func TestClosedThreadForcesNewThread(t *testing.T) {
	tr := newFakeTransport()
	e := New(tr)
	ctx := context.Background()

	m1 := downlinkRequest()
	id, err := e.Send(ctx, m1, NewThreadID)
	require.NoError(t, err)

	e.Close(id)
	status, _, _ := getStatus(e, id)
	assert.Equal(t, Closed, status)

	uplink := uplinkReplyRequired(m1.MIN)
	tr.deliver(uplink)

	ids := e.GetThreadIDs(false)
	require.Len(t, ids, 2)
	assert.NotEqual(t, id, ids[1])
}

func getStatus(e *Engine, id uint64) (Status, bool, bool) {
	return e.GetThreadStatus(id)
}

// TestMINMonotonicProperty is spec.md §8 invariant 4, driven by a random
// sequence of new-thread sends rather than a fixed count.
func TestMINMonotonicProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e := New(newFakeTransport())
		ctx := context.Background()

		n := rapid.IntRange(1, 30).Draw(rt, "nsends")
		var last uint32
		for i := 0; i < n; i++ {
			m := downlinkRequest()
			_, err := e.Send(ctx, m, NewThreadID)
			require.NoError(rt, err)
			if i > 0 {
				assert.Greater(rt, m.MIN, last)
			}
			last = m.MIN
		}
	})
}

// TestBucketIndicesContiguousProperty is spec.md §8 invariant 2, checked
// against a randomly sized burst of sends into the same thread.
func TestBucketIndicesContiguousProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e := New(newFakeTransport())
		ctx := context.Background()

		n := rapid.IntRange(1, 20).Draw(rt, "nsends")
		id, err := e.Send(ctx, downlinkRequest(), NewThreadID)
		require.NoError(rt, err)
		for i := 1; i < n; i++ {
			_, err := e.Send(ctx, downlinkRequest(), id)
			require.NoError(rt, err)
		}

		count := e.GetThreadMessageCount(id)
		require.Equal(rt, n, count)
		for i := 0; i < count; i++ {
			_, _, _, _, _, ok := e.GetThreadMessage(id, i)
			assert.True(rt, ok, "bucket %d must exist", i)
		}
		_, _, _, _, _, ok := e.GetThreadMessage(id, count)
		assert.False(rt, ok, "no bucket beyond count")
	})
}

// TestFinalStatusStableProperty is spec.md §8 invariant 3: once a thread
// reaches a final status, an arbitrary-length run of further Update
// calls and idle sends into other threads must never move it off that
// status.
func TestFinalStatusStableProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tr := newFakeTransport()
		e := New(tr)
		ctx := context.Background()

		accept := &cpdlc.Message{
			Direction: cpdlc.Uplink,
			From:      "ATC1", To: "B",
			MRN:      cpdlc.InvalidSeqNr,
			Segments: []cpdlc.Segment{{MsgType: catalog.UM168Disregard}},
		}
		tr.deliver(accept)

		ids := e.GetThreadIDs(false)
		require.Len(rt, ids, 1)
		id := ids[0]

		status, _, _ := getStatus(e, id)
		require.True(rt, status.isFinal())

		rounds := rapid.IntRange(0, 10).Draw(rt, "rounds")
		for i := 0; i < rounds; i++ {
			if rapid.Bool().Draw(rt, "unrelated_send") {
				_, err := e.Send(ctx, downlinkRequest(), NewThreadID)
				require.NoError(rt, err)
			}
			e.Update(ctx)
			got, _, _ := getStatus(e, id)
			assert.Equal(rt, status, got)
		}
	})
}
