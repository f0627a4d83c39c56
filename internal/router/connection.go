package router

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/cpdlcd/internal/logger"
	"github.com/marmos91/cpdlcd/pkg/cpdlc"
	"github.com/marmos91/cpdlcd/pkg/cpdlc/wire"
)

// connState is the connection state machine of spec.md §4.1.
type connState int

const (
	stateAccepted connState = iota
	stateTLSUp
	stateLoggedOn
	stateClosed
)

// Connection is the server-side connection (spec.md §3.2). Each
// Connection runs its own goroutine (spec.md §9 "task-per-connection"
// redesign); a per-connection write mutex preserves atomic, in-order
// fan-out appends even though writes may originate from other
// connections' goroutines forwarding messages to this one.
type Connection struct {
	ID     string
	conn   net.Conn
	raddr  string
	daemon *Daemon

	writeMu sync.Mutex
	state   connState

	stateMu sync.Mutex
	from    string
	to      string

	closeOnce sync.Once
}

func newConnection(d *Daemon, nc net.Conn) *Connection {
	return &Connection{
		ID:     uuid.NewString(),
		conn:   nc,
		raddr:  nc.RemoteAddr().String(),
		daemon: d,
		state:  stateAccepted,
	}
}

// From returns the connection's bound FROM callsign, or "" if not yet
// logged on.
func (c *Connection) From() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.from
}

func (c *Connection) logCtx() context.Context {
	lc := logger.NewLogContext(c.raddr)
	lc.ConnectionID = c.ID
	lc.Callsign = c.From()
	return logger.WithContext(context.Background(), lc)
}

// serve runs the connection's full lifecycle. The conn comes from the
// daemon's TLS listener, so the TLS handshake runs implicitly on the
// first read; the pre-logon byte cap applies from that first read on.
// It returns once the connection is closed.
func (c *Connection) serve() {
	ctx := c.logCtx()
	logger.InfoCtx(ctx, "connection accepted", logger.PeerAddr(c.raddr))
	c.daemon.metrics.ConnectionAccepted()

	c.state = stateTLSUp

	defer c.close("")

	reader := bufio.NewReader(c.conn)
	buf := make([]byte, 0, maxBufSzOf(false))
	tmp := make([]byte, 4096)

	for {
		limit := maxBufSzOf(c.isLoggedOn())
		if len(buf) > limit {
			logger.WarnCtx(ctx, "input buffer exceeded cap, closing", logger.Reason("oversize"))
			return
		}

		n, err := reader.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			logger.DebugCtx(ctx, "bytes read", logger.BytesRead(n))
		}

		for {
			if len(buf) > limit {
				logger.WarnCtx(ctx, "input buffer exceeded cap, closing", logger.Reason("oversize"))
				return
			}
			m, consumed, derr := wire.Decode(buf)
			if errors.Is(derr, wire.ErrNeedMore) {
				break
			}
			if derr != nil {
				logger.WarnCtx(ctx, "malformed frame, closing", logger.Err(derr))
				return
			}
			buf = buf[consumed:]
			if !c.handleMessage(ctx, m) {
				return
			}
		}

		if err != nil {
			if !isSoftError(err) {
				logger.DebugCtx(ctx, "connection read ended", logger.Err(err))
				return
			}
		}
	}
}

func maxBufSzOf(loggedOn bool) int {
	if loggedOn {
		return maxBufSz
	}
	return maxBufSzNoLogon
}

const (
	maxBufSzNoLogon = 128
	maxBufSz        = 8192
)

func (c *Connection) isLoggedOn() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state == stateLoggedOn
}

// handleMessage processes one decoded message per spec.md §4.1. It
// returns false when the connection must be closed.
func (c *Connection) handleMessage(ctx context.Context, m *cpdlc.Message) bool {
	c.stateMu.Lock()
	loggedOn := c.state == stateLoggedOn
	c.stateMu.Unlock()

	if !loggedOn {
		if !m.IsLogon {
			c.sendError(ctx, &ProtocolError{Description: "LOGON REQUIRED"})
			return false
		}
		if m.From == "" {
			// spec.md §4.1: this error fails the logon attempt but does
			// not close the connection.
			c.sendError(ctx, &ProtocolError{Description: "LOGON REQUIRES FROM= HEADER"})
			return true
		}
		c.bindLogon(ctx, m.From, m.To)
		return true
	}

	if m.IsLogon {
		// spec.md §9 "Open question: logon replay": rebinding happens
		// silently, with no acknowledgement to the peer. Preserved as
		// specified.
		c.rebindLogon(ctx, m.From, m.To)
		return true
	}

	c.forward(ctx, m)
	return true
}

func (c *Connection) bindLogon(ctx context.Context, from, to string) {
	c.stateMu.Lock()
	c.from = from
	c.to = to
	c.state = stateLoggedOn
	c.stateMu.Unlock()

	c.daemon.index.Add(from, c)
	logger.InfoCtx(ctx, "logon complete", logger.Callsign(from), logger.PeerCallsign(to))
}

func (c *Connection) rebindLogon(ctx context.Context, from, to string) {
	c.stateMu.Lock()
	oldFrom := c.from
	c.from = from
	c.to = to
	c.stateMu.Unlock()

	c.daemon.index.Remove(oldFrom, c)
	c.daemon.index.Add(from, c)
	logger.InfoCtx(ctx, "logon rebind", logger.Callsign(from), logger.PeerCallsign(to))
}

// forward implements spec.md §4.1 "Forwarding algorithm".
func (c *Connection) forward(ctx context.Context, m *cpdlc.Message) {
	to := m.To
	if to == "" {
		to = c.To()
	}
	if to == "" {
		c.sendError(ctx, &ProtocolError{Description: "MESSAGE MISSING TO= HEADER", Offending: m})
		return
	}
	m.From = c.From()
	m.To = to

	targets := c.daemon.index.Lookup(to)
	if len(targets) > 0 {
		frame := wire.Encode(m)
		for _, t := range targets {
			t.writeFrame(ctx, frame)
		}
		c.daemon.metrics.MessageFannedOut(len(targets))
		c.daemon.metrics.BytesRouted(len(frame))
		return
	}

	qm := queuedMessage{frame: wire.Encode(m), from: m.From, to: to, createdAt: time.Now()}
	if !c.daemon.queue.Enqueue(qm) {
		c.daemon.metrics.MessageDropped("queue_full")
		c.sendError(ctx, &ProtocolError{Description: "TOO MANY QUEUED MESSAGES", Offending: m})
		return
	}
	c.daemon.metrics.MessageQueued()
	c.daemon.metrics.SetQueueBytes(c.daemon.queue.Bytes())
}

// To returns the connection's declared peer callsign.
func (c *Connection) To() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.to
}

func (c *Connection) sendError(ctx context.Context, pe *ProtocolError) {
	errMsg := synthesizeError(pe)
	logger.InfoCtx(ctx, "protocol error", logger.Reason(pe.Description))
	c.writeFrame(ctx, wire.Encode(errMsg))
}

// writeFrame appends frame to the connection's out-buffer. Writes from
// other connections' goroutines (fan-out delivery) and from this
// connection's own goroutine (error replies) both funnel through here,
// serialized by writeMu.
func (c *Connection) writeFrame(ctx context.Context, frame []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(frame); err != nil {
		if !isSoftError(err) {
			logger.WarnCtx(ctx, "write failed, closing", logger.Err(err))
			go c.close("write error")
		}
	}
}

// close tears the connection down exactly once: deregisters from the
// callsign index, closes the socket (spec.md §5 "single close_conn
// path").
func (c *Connection) close(reason string) {
	c.closeOnce.Do(func() {
		c.stateMu.Lock()
		c.state = stateClosed
		from := c.from
		c.stateMu.Unlock()

		if from != "" {
			c.daemon.index.Remove(from, c)
		}
		c.conn.Close()

		ctx := c.logCtx()
		logger.InfoCtx(ctx, "connection closed", logger.Reason(reason))
	})
}

// isSoftError reports whether err is a retryable "try again" condition
// rather than a fatal I/O error (spec.md §5/§7).
func isSoftError(err error) bool {
	if err == nil {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}
