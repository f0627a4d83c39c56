package router

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/cpdlcd/pkg/cpdlc"
	"github.com/marmos91/cpdlcd/pkg/cpdlc/catalog"
	"github.com/marmos91/cpdlcd/pkg/cpdlc/wire"
)

func newTestDaemon() *Daemon {
	return &Daemon{
		index: newCallsignIndex(),
		queue: newQueue(1<<20, time.Hour),
	}
}

// peerReader drains frames written to a *Connection's side of a
// net.Pipe and decodes them as they arrive, since net.Pipe writes block
// until a matching read.
type peerReader struct {
	frames chan *cpdlc.Message
}

func startPeerReader(conn net.Conn) *peerReader {
	pr := &peerReader{frames: make(chan *cpdlc.Message, 16)}
	go func() {
		var buf []byte
		tmp := make([]byte, 4096)
		for {
			n, err := conn.Read(tmp)
			if n > 0 {
				buf = append(buf, tmp[:n]...)
				for {
					m, consumed, derr := wire.Decode(buf)
					if errors.Is(derr, wire.ErrNeedMore) {
						break
					}
					if derr != nil {
						close(pr.frames)
						return
					}
					buf = buf[consumed:]
					pr.frames <- m
				}
			}
			if err != nil {
				close(pr.frames)
				return
			}
		}
	}()
	return pr
}

func (pr *peerReader) next(t *testing.T) *cpdlc.Message {
	t.Helper()
	select {
	case m, ok := <-pr.frames:
		if !ok {
			t.Fatal("peer connection closed before a frame arrived")
		}
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

func TestConnectionLogonBindsCallsignIntoIndex(t *testing.T) {
	d := newTestDaemon()
	server, client := net.Pipe()
	defer client.Close()
	c := newConnection(d, server)
	startPeerReader(client)

	ok := c.handleMessage(context.Background(), &cpdlc.Message{IsLogon: true, From: "DAL123", To: "TEST"})

	assert.True(t, ok)
	assert.True(t, c.isLoggedOn())
	assert.Equal(t, "DAL123", c.From())
	assert.Same(t, c, d.index.Lookup("DAL123")[0])
}

func TestConnectionLogonWithoutFromFailsButStaysOpen(t *testing.T) {
	d := newTestDaemon()
	server, client := net.Pipe()
	defer client.Close()
	c := newConnection(d, server)
	pr := startPeerReader(client)

	ok := c.handleMessage(context.Background(), &cpdlc.Message{IsLogon: true})

	require.True(t, ok)
	assert.False(t, c.isLoggedOn())
	errMsg := pr.next(t)
	require.Len(t, errMsg.Segments, 1)
	assert.Equal(t, catalog.UM159ERROR, errMsg.Segments[0].MsgType)
	assert.Equal(t, []string{"LOGON REQUIRES FROM= HEADER"}, errMsg.Segments[0].Args)
}

func TestConnectionNonLogonBeforeLogonCloses(t *testing.T) {
	d := newTestDaemon()
	server, client := net.Pipe()
	defer client.Close()
	c := newConnection(d, server)
	pr := startPeerReader(client)

	ok := c.handleMessage(context.Background(), &cpdlc.Message{Segments: []cpdlc.Segment{{MsgType: catalog.DM0WILCO}}})

	assert.False(t, ok)
	errMsg := pr.next(t)
	assert.Equal(t, []string{"LOGON REQUIRED"}, errMsg.Segments[0].Args)
}

func TestConnectionForwardFansOutToLiveTarget(t *testing.T) {
	d := newTestDaemon()

	aServer, aClient := net.Pipe()
	defer aClient.Close()
	a := newConnection(d, aServer)
	startPeerReader(aClient)
	require.True(t, a.handleMessage(context.Background(), &cpdlc.Message{IsLogon: true, From: "DAL123", To: "TEST"}))

	bServer, bClient := net.Pipe()
	defer bClient.Close()
	b := newConnection(d, bServer)
	bReader := startPeerReader(bClient)
	require.True(t, b.handleMessage(context.Background(), &cpdlc.Message{IsLogon: true, From: "TEST", To: "DAL123"}))

	msg := &cpdlc.Message{To: "TEST", Segments: []cpdlc.Segment{{MsgType: catalog.DM0WILCO}}}
	ok := a.handleMessage(context.Background(), msg)

	require.True(t, ok)
	got := bReader.next(t)
	assert.Equal(t, "DAL123", got.From)
	assert.Equal(t, "TEST", got.To)
	assert.Equal(t, catalog.DM0WILCO, got.Segments[0].MsgType)
}

func TestConnectionForwardQueuesWhenTargetOffline(t *testing.T) {
	d := newTestDaemon()
	server, client := net.Pipe()
	defer client.Close()
	c := newConnection(d, server)
	startPeerReader(client)
	require.True(t, c.handleMessage(context.Background(), &cpdlc.Message{IsLogon: true, From: "DAL123", To: "TEST"}))

	msg := &cpdlc.Message{To: "TEST", Segments: []cpdlc.Segment{{MsgType: catalog.DM0WILCO}}}
	ok := c.handleMessage(context.Background(), msg)

	require.True(t, ok)
	assert.Greater(t, d.queue.Bytes(), int64(0))
}

func TestConnectionForwardMissingToHeaderRepliesWithError(t *testing.T) {
	d := newTestDaemon()
	server, client := net.Pipe()
	defer client.Close()
	c := newConnection(d, server)
	pr := startPeerReader(client)
	require.True(t, c.handleMessage(context.Background(), &cpdlc.Message{IsLogon: true, From: "DAL123"}))

	msg := &cpdlc.Message{Segments: []cpdlc.Segment{{MsgType: catalog.DM0WILCO}}}
	ok := c.handleMessage(context.Background(), msg)

	require.True(t, ok)
	errMsg := pr.next(t)
	assert.Equal(t, []string{"MESSAGE MISSING TO= HEADER"}, errMsg.Segments[0].Args)
}

func TestConnectionLogonReplayRebindsIndex(t *testing.T) {
	d := newTestDaemon()
	server, client := net.Pipe()
	defer client.Close()
	c := newConnection(d, server)
	startPeerReader(client)
	require.True(t, c.handleMessage(context.Background(), &cpdlc.Message{IsLogon: true, From: "DAL123", To: "TEST"}))

	ok := c.handleMessage(context.Background(), &cpdlc.Message{IsLogon: true, From: "DAL456", To: "TEST"})

	require.True(t, ok)
	assert.Nil(t, d.index.Lookup("DAL123"))
	assert.Same(t, c, d.index.Lookup("DAL456")[0])
	assert.Equal(t, "DAL456", c.From())
}

func TestConnectionCloseDeregistersFromIndex(t *testing.T) {
	d := newTestDaemon()
	server, client := net.Pipe()
	defer client.Close()
	c := newConnection(d, server)
	startPeerReader(client)
	require.True(t, c.handleMessage(context.Background(), &cpdlc.Message{IsLogon: true, From: "DAL123", To: "TEST"}))

	c.close("test teardown")

	assert.Nil(t, d.index.Lookup("DAL123"))
}
