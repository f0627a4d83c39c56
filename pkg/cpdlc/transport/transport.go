// Package transport defines the thin client-transport interface the
// thread engine depends on (spec.md §6.4 "Client transport"), plus a
// concrete TLS implementation dialing the router daemon.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/marmos91/cpdlcd/internal/logger"
	"github.com/marmos91/cpdlcd/pkg/cpdlc"
	"github.com/marmos91/cpdlcd/pkg/cpdlc/wire"
)

// SendStatus is the disposition of a previously sent message, polled by
// send-token.
type SendStatus int

const (
	Sending SendStatus = iota
	Sent
	SendFailed
)

func (s SendStatus) String() string {
	switch s {
	case Sending:
		return "SENDING"
	case Sent:
		return "SENT"
	case SendFailed:
		return "SEND_FAILED"
	default:
		return "UNKNOWN"
	}
}

// LogonStatus mirrors the connection's logon state as seen by a client.
type LogonStatus int

const (
	LoggedOff LogonStatus = iota
	LoggingOn
	LoggedOn
)

// Token is an opaque handle returned by Send, later used to poll Status.
// spec.md §9 calls these "opaque send tokens"; the engine never inspects
// their contents.
type Token any

// Transport is the interface the thread engine consumes (spec.md §6.4).
// Implementations deliver messages asynchronously via the callback
// registered through SetRecvCB.
type Transport interface {
	Send(ctx context.Context, m *cpdlc.Message) (Token, error)
	Status(tok Token) SendStatus
	LogonStatus() LogonStatus
	SetRecvCB(cb func(*cpdlc.Message))
}

// tokenState is the bookkeeping behind a Token returned to callers; it
// is never exposed to them as a concrete type, only as transport.Token.
type tokenState struct {
	status atomic.Int32
}

// TLSClient is the reference Transport implementation: it dials the
// daemon over TLS, frames writes/reads through pkg/cpdlc/wire, and
// delivers received messages on a background read loop.
type TLSClient struct {
	conn   *tls.Conn
	rd     *bufio.Reader
	mu     sync.Mutex
	status atomic.Int32 // LogonStatus

	recvMu sync.RWMutex
	recvCB func(*cpdlc.Message)

	readBuf []byte
}

// Dial connects to addr and wraps the connection in TLS using cfg
// (InsecureSkipVerify is the caller's choice; production callers should
// supply a proper RootCAs pool).
func Dial(ctx context.Context, addr string, cfg *tls.Config) (*TLSClient, error) {
	d := &tls.Dialer{Config: cfg}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("transport: dial %s: not a TLS connection", addr)
	}
	c := &TLSClient{
		conn: tlsConn,
		rd:   bufio.NewReader(tlsConn),
	}
	c.status.Store(int32(LoggedOff))
	go c.readLoop()
	return c, nil
}

// Logon sends the structural logon handshake (spec.md §3.2/§6.1): FROM=
// identifies this station, TO= optionally names the intended peer.
func (c *TLSClient) Logon(ctx context.Context, from, to string) (Token, error) {
	c.status.Store(int32(LoggingOn))
	tok, err := c.Send(ctx, &cpdlc.Message{IsLogon: true, From: from, To: to, MRN: cpdlc.InvalidSeqNr})
	if err != nil {
		c.status.Store(int32(LoggedOff))
		return nil, err
	}
	c.status.Store(int32(LoggedOn))
	return tok, nil
}

func (c *TLSClient) Send(ctx context.Context, m *cpdlc.Message) (Token, error) {
	frame := wire.Encode(m)

	ts := &tokenState{}
	ts.status.Store(int32(Sending))

	c.mu.Lock()
	_, err := c.conn.Write(frame)
	c.mu.Unlock()

	if err != nil {
		ts.status.Store(int32(SendFailed))
		logger.ErrorCtx(ctx, "send failed", logger.Err(err), logger.MIN(m.MIN))
		return ts, fmt.Errorf("transport: send: %w", err)
	}
	ts.status.Store(int32(Sent))
	return ts, nil
}

func (c *TLSClient) Status(tok Token) SendStatus {
	ts, ok := tok.(*tokenState)
	if !ok {
		return SendFailed
	}
	return SendStatus(ts.status.Load())
}

func (c *TLSClient) LogonStatus() LogonStatus {
	return LogonStatus(c.status.Load())
}

func (c *TLSClient) SetRecvCB(cb func(*cpdlc.Message)) {
	c.recvMu.Lock()
	c.recvCB = cb
	c.recvMu.Unlock()
}

// Close terminates the underlying TLS connection.
func (c *TLSClient) Close() error {
	return c.conn.Close()
}

// readLoop decodes frames off the wire and dispatches them to the
// registered receive callback, the same NEEDMORE-driven loop the router
// daemon runs on the server side (internal/router.Connection.serve).
func (c *TLSClient) readLoop() {
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		n, err := c.rd.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		for {
			m, consumed, derr := wire.Decode(buf)
			if derr == wire.ErrNeedMore {
				break
			}
			if derr != nil {
				c.status.Store(int32(LoggedOff))
				return
			}
			buf = buf[consumed:]
			c.recvMu.RLock()
			cb := c.recvCB
			c.recvMu.RUnlock()
			if cb != nil {
				cb(m)
			}
		}
		if err != nil {
			c.status.Store(int32(LoggedOff))
			return
		}
	}
}

var _ Transport = (*TLSClient)(nil)
