// Package thread implements the client-side message-list engine: it
// groups messages into threads by MRN chain, assigns MIN/MRN, computes
// per-thread status, and handles reply timeouts (spec.md §4.2).
package thread

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/cpdlcd/internal/logger"
	"github.com/marmos91/cpdlcd/pkg/cpdlc"
	"github.com/marmos91/cpdlcd/pkg/cpdlc/catalog"
	"github.com/marmos91/cpdlcd/pkg/cpdlc/transport"
)

// Status is a thread's current state, per spec.md §4.2.
type Status int

const (
	Open Status = iota
	Pending
	Standby
	Accepted
	Rejected
	Timedout
	Disregard
	ErrorStatus
	Closed
	Failed
	ConnEnded
)

func (s Status) String() string {
	switch s {
	case Open:
		return "OPEN"
	case Pending:
		return "PENDING"
	case Standby:
		return "STANDBY"
	case Accepted:
		return "ACCEPTED"
	case Rejected:
		return "REJECTED"
	case Timedout:
		return "TIMEDOUT"
	case Disregard:
		return "DISREGARD"
	case ErrorStatus:
		return "ERROR"
	case Closed:
		return "CLOSED"
	case Failed:
		return "FAILED"
	case ConnEnded:
		return "CONN_ENDED"
	default:
		return "UNKNOWN"
	}
}

// isFinal reports whether s is one of the final statuses that the
// recomputation rule must not overwrite.
func (s Status) isFinal() bool {
	switch s {
	case Closed, Accepted, Rejected, Timedout, Disregard, Failed, ErrorStatus, ConnEnded:
		return true
	default:
		return false
	}
}

// Bucket is one message within a thread plus its local bookkeeping
// (spec.md §3.4).
type Bucket struct {
	Msg       *cpdlc.Message
	Token     transport.Token
	Sent      bool // true = we sent it, false = peer sent it
	Timestamp time.Time
	Hours     int
	Mins      int
}

// Thread groups messages exchanged about one topic (spec.md §3.4).
type Thread struct {
	ID      uint64
	Buckets []Bucket
	Status  Status
	Dirty   bool
}

// NewThreadID is the sentinel passed to Send to request a brand-new
// thread rather than appending to an existing one.
const NewThreadID uint64 = 0

// TimeFunc supplies the local wall-clock display time for a new bucket
// (spec.md §6.4 "Time function").
type TimeFunc func() (hours, mins int)

// defaultTimeFunc reports the local hour/minute.
func defaultTimeFunc() (int, int) {
	now := time.Now()
	return now.Hour(), now.Minute()
}

// Engine is the per-station thread-list engine. All public operations
// serialize on one lock (spec.md §5); the update callback is invoked
// with the lock released.
//
// The engine lock does not need to be re-entrant: the timeout
// side-effect in recomputeLocked calls sendLocked directly rather than
// re-acquiring the lock, which is the non-re-entrant alternative
// spec.md §9 allows ("a non-re-entrant lock suffices if the timeout
// side-effect is deferred to a post-unlock action queue" — here it is
// simply dispatched inline while still holding the single lock, since
// Go's sync.Mutex is not re-entrant and restructuring the call graph is
// the idiomatic fix).
type Engine struct {
	mu           sync.Mutex
	threads      map[uint64]*Thread
	order        []uint64
	nextThreadID uint64
	nextMIN      uint32

	transport transport.Transport
	timeFunc  TimeFunc
	nowFunc   func() time.Time

	updateCB func(affected []uint64)
}

// New creates an engine bound to the given transport. It registers
// itself as the transport's receive callback.
func New(tr transport.Transport) *Engine {
	e := &Engine{
		threads:      make(map[uint64]*Thread),
		nextThreadID: 1,
		nextMIN:      0,
		transport:    tr,
		timeFunc:     defaultTimeFunc,
		nowFunc:      time.Now,
	}
	if tr != nil {
		tr.SetRecvCB(e.onRecv)
	}
	return e
}

// SetTimeFunc overrides the display-clock source (tests / alternate
// locales).
func (e *Engine) SetTimeFunc(f TimeFunc) {
	e.mu.Lock()
	e.timeFunc = f
	e.mu.Unlock()
}

// SetClock overrides the wall-clock source used for timestamps and
// timeout comparisons. Tests use this to simulate the passage of time
// (spec.md §8 scenario 6) without sleeping.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.nowFunc = now
	e.mu.Unlock()
}

// SetUpdateCallback registers the callback invoked, lock released,
// after any operation that changes thread state. affected lists the
// thread ids touched by that operation.
func (e *Engine) SetUpdateCallback(cb func(affected []uint64)) {
	e.mu.Lock()
	e.updateCB = cb
	e.mu.Unlock()
}

// Send assigns MIN/MRN to msg as described in spec.md §4.2 "MRN
// assignment on send", hands it to the transport, and returns the
// thread id it was filed under. Pass NewThreadID to start a new thread.
func (e *Engine) Send(ctx context.Context, msg *cpdlc.Message, thrID uint64) (uint64, error) {
	e.mu.Lock()
	id, err := e.sendLocked(ctx, msg, thrID)
	affected := []uint64{id}
	cb := e.updateCB
	e.mu.Unlock()

	if cb != nil {
		cb(affected)
	}
	return id, err
}

// sendLocked performs the send assuming e.mu is held. It is also called
// internally from recomputeLocked for the timeout-synthesized ERROR.
func (e *Engine) sendLocked(ctx context.Context, msg *cpdlc.Message, thrID uint64) (uint64, error) {
	var t *Thread
	if thrID == NewThreadID {
		t = e.newThreadLocked()
	} else {
		var ok bool
		t, ok = e.threads[thrID]
		if !ok {
			t = e.newThreadLocked()
		}
	}

	// Step 1: MRN assignment — walk tail->head for the latest bucket of
	// opposite direction.
	msg.MRN = cpdlc.InvalidSeqNr
	for i := len(t.Buckets) - 1; i >= 0; i-- {
		b := t.Buckets[i]
		if b.Msg.Direction != msg.Direction {
			msg.MRN = b.Msg.MIN
			break
		}
	}

	// Step 2: MIN assignment, monotonic per station.
	msg.MIN = e.nextMIN
	e.nextMIN++

	// Step 3: hand to transport, retain the send-token.
	var tok transport.Token
	var err error
	if e.transport != nil {
		tok, err = e.transport.Send(ctx, msg)
	}

	hours, mins := e.timeFunc()
	t.Buckets = append(t.Buckets, Bucket{
		Msg:       msg,
		Token:     tok,
		Sent:      true,
		Timestamp: e.nowFunc(),
		Hours:     hours,
		Mins:      mins,
	})
	t.Dirty = true
	e.recomputeLocked(ctx, t)

	return t.ID, err
}

func (e *Engine) newThreadLocked() *Thread {
	t := &Thread{ID: e.nextThreadID, Status: Open}
	e.nextThreadID++
	e.threads[t.ID] = t
	e.order = append(e.order, t.ID)
	return t
}

// onRecv is the transport's receive callback: correlate m with an
// existing thread by MRN chain, or start a new one (spec.md §4.2
// "Thread correlation on receive").
func (e *Engine) onRecv(m *cpdlc.Message) {
	ctx := context.Background()
	e.mu.Lock()
	t := e.correlateLocked(m)

	hours, mins := e.timeFunc()
	t.Buckets = append(t.Buckets, Bucket{
		Msg:       m,
		Sent:      false,
		Timestamp: e.nowFunc(),
		Hours:     hours,
		Mins:      mins,
	})
	t.Dirty = true
	e.recomputeLocked(ctx, t)

	affected := []uint64{t.ID}
	cb := e.updateCB
	e.mu.Unlock()

	if cb != nil {
		cb(affected)
	}
}

// correlateLocked implements spec.md §4.2 "Thread correlation on
// receive" steps 1-2.
func (e *Engine) correlateLocked(m *cpdlc.Message) *Thread {
	if m.HasMRN() {
		for i := len(e.order) - 1; i >= 0; i-- {
			t := e.threads[e.order[i]]
			if t.Status == Closed {
				continue
			}
			for j := len(t.Buckets) - 1; j >= 0; j-- {
				b := t.Buckets[j]
				if b.Msg.MIN != m.MRN {
					continue
				}
				if catalog.IsDisregard(m) && !b.Sent {
					return t
				}
				if b.Sent {
					return t
				}
			}
		}
	}
	return e.newThreadLocked()
}

// recomputeLocked applies the status-recomputation rule of spec.md
// §4.2 to t. e.mu must be held.
func (e *Engine) recomputeLocked(ctx context.Context, t *Thread) {
	if t.Status.isFinal() {
		return
	}
	if len(t.Buckets) == 0 {
		return
	}

	headEqualsTail := len(t.Buckets) == 1
	l := t.Buckets[len(t.Buckets)-1]

	var allSegs []cpdlc.Segment
	for _, b := range t.Buckets {
		allSegs = append(allSegs, b.Msg.Segments...)
	}
	timeout := catalog.MinTimeout(allSegs)

	switch {
	case headEqualsTail && l.Sent && catalog.ExpectsNoReply(l.Msg):
		t.Status = Closed

	case l.Sent && catalog.IsDownlinkRequest(leadingType(l.Msg)):
		if e.transport != nil {
			switch e.transport.Status(l.Token) {
			case transport.Sending:
				t.Status = Pending
			case transport.SendFailed:
				t.Status = Failed
			default:
				t.Status = Open
			}
		} else {
			t.Status = Open
		}

	case catalog.IsStandby(l.Msg):
		t.Status = Standby

	case catalog.IsAccept(l.Msg):
		t.Status = Accepted

	case catalog.IsReject(l.Msg):
		t.Status = Rejected

	case catalog.IsRogerOrLinkMgmt(l.Msg):
		t.Status = Closed

	case !l.Sent && catalog.ReplyRequired(l.Msg) && t.Status != Standby && timeout > 0 &&
		e.nowFunc().Sub(l.Timestamp) > time.Duration(timeout)*time.Second:
		errMsg := &cpdlc.Message{
			Direction: cpdlc.Downlink,
			MRN:       l.Msg.MIN,
			From:      l.Msg.To,
			To:        l.Msg.From,
			Segments:  []cpdlc.Segment{{MsgType: catalog.DM62ERROR, Args: []string{"TIMEDOUT"}}},
		}
		logger.WarnCtx(ctx, "thread reply timed out", logger.ThreadID(t.ID), logger.MIN(l.Msg.MIN))
		e.sendLocked(ctx, errMsg, t.ID)
		t.Status = Timedout

	case catalog.IsDisregard(l.Msg):
		t.Status = Disregard

	case catalog.IsErrorSegment(l.Msg):
		t.Status = ErrorStatus

	case e.transport != nil && e.transport.LogonStatus() != transport.LoggedOn:
		t.Dirty = false
		t.Status = ConnEnded
	}
}

func leadingType(m *cpdlc.Message) int {
	if len(m.Segments) == 0 {
		return -1
	}
	return m.Segments[0].MsgType
}

// Update recomputes the status of every thread; used to pick up
// timeouts without incoming traffic (spec.md §4.2 "update()").
func (e *Engine) Update(ctx context.Context) {
	e.mu.Lock()
	affected := make([]uint64, 0, len(e.order))
	for _, id := range e.order {
		t := e.threads[id]
		before := t.Status
		e.recomputeLocked(ctx, t)
		if t.Status != before {
			affected = append(affected, id)
		}
	}
	cb := e.updateCB
	e.mu.Unlock()

	if cb != nil && len(affected) > 0 {
		cb(affected)
	}
}

// GetThreadIDs enumerates thread ids in insertion order. When
// ignoreClosed is true, threads that are both final-status and not
// dirty are omitted.
func (e *Engine) GetThreadIDs(ignoreClosed bool) []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]uint64, 0, len(e.order))
	for _, id := range e.order {
		t := e.threads[id]
		if ignoreClosed && t.Status.isFinal() && !t.Dirty {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// GetThreadStatus returns a thread's status and dirty flag.
func (e *Engine) GetThreadStatus(id uint64) (Status, bool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.threads[id]
	if !ok {
		return 0, false, false
	}
	return t.Status, t.Dirty, true
}

// MarkSeen clears a thread's dirty flag.
func (e *Engine) MarkSeen(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.threads[id]; ok {
		t.Dirty = false
	}
}

// GetThreadMessage returns bucket n of thread id.
func (e *Engine) GetThreadMessage(id uint64, n int) (msg *cpdlc.Message, tok transport.Token, hours, mins int, isSent bool, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, found := e.threads[id]
	if !found || n < 0 || n >= len(t.Buckets) {
		return nil, nil, 0, 0, false, false
	}
	b := t.Buckets[n]
	return b.Msg, b.Token, b.Hours, b.Mins, b.Sent, true
}

// GetThreadMessageCount returns the number of buckets in thread id.
func (e *Engine) GetThreadMessageCount(id uint64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.threads[id]
	if !ok {
		return 0
	}
	return len(t.Buckets)
}

// Close forces a thread to CLOSED if it is not already final.
func (e *Engine) Close(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.threads[id]
	if !ok || t.Status.isFinal() {
		return
	}
	t.Status = Closed
}

// Remove detaches and frees a thread.
func (e *Engine) Remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.threads, id)
	for i, oid := range e.order {
		if oid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}
