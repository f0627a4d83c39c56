package router

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/cpdlcd/internal/blocklist"
	"github.com/marmos91/cpdlcd/internal/config"
	"github.com/marmos91/cpdlcd/internal/logger"
	"github.com/marmos91/cpdlcd/internal/metrics"
)

// sweepInterval is the period of the daemon's background sweep
// goroutine, which performs the queue-drain and blocklist-refresh work
// spec.md §4.1 describes as one iteration of a single-threaded event
// loop. The task-per-connection redesign (spec.md §9) moves that work
// into its own goroutine, run on a ticker instead of inline between
// socket reads.
const sweepInterval = 1 * time.Second

// Daemon is the CPDLC router daemon (spec.md §4.1).
type Daemon struct {
	cfg       config.Config
	index     *callsignIndex
	queue     *queue
	blocklist *blocklist.List
	metrics   *metrics.Recorder
	tlsConf   *tls.Config

	listeners []net.Listener

	connsMu sync.Mutex
	conns   map[*Connection]struct{}
}

// New builds a Daemon from cfg. It does not start listening; call Run.
func New(cfg config.Config, rec *metrics.Recorder) (*Daemon, error) {
	bl, err := blocklist.New(cfg.Blocklist)
	if err != nil {
		return nil, fmt.Errorf("router: blocklist: %w", err)
	}

	tlsConf, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("router: tls: %w", err)
	}

	if rec == nil {
		rec = metrics.New()
	}

	return &Daemon{
		cfg:       cfg,
		index:     newCallsignIndex(),
		queue:     newQueue(cfg.QueueMaxBytes, time.Duration(cfg.QueueTTLSeconds)*time.Second),
		blocklist: bl,
		metrics:   rec,
		tlsConf:   tlsConf,
		conns:     make(map[*Connection]struct{}),
	}, nil
}

func buildTLSConfig(cfg config.Config) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	tc := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates parsed from %s", cfg.CAFile)
		}
		tc.ClientCAs = pool
		tc.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return tc, nil
}

// Run starts listening on every configured address and blocks until ctx
// is cancelled, then shuts down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, addr := range d.cfg.Listen {
		ln, err := tls.Listen("tcp", addr, d.tlsConf)
		if err != nil {
			return fmt.Errorf("router: listen %s: %w", addr, err)
		}
		d.listeners = append(d.listeners, ln)
		logger.Info("listening", logger.PeerAddr(addr))

		ln := ln
		g.Go(func() error {
			return d.acceptLoop(ctx, ln)
		})
	}

	g.Go(func() error {
		d.sweepLoop(ctx)
		return nil
	})

	<-ctx.Done()
	d.shutdown()
	return g.Wait()
}

func (d *Daemon) shutdown() {
	for _, ln := range d.listeners {
		ln.Close()
	}
	d.connsMu.Lock()
	conns := make([]*Connection, 0, len(d.conns))
	for c := range d.conns {
		conns = append(conns, c)
	}
	d.connsMu.Unlock()
	for _, c := range conns {
		c.close("daemon shutdown")
	}
	if d.blocklist != nil {
		d.blocklist.Close()
	}
}

func (d *Daemon) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isSoftError(err) {
				continue
			}
			return fmt.Errorf("router: accept: %w", err)
		}

		if d.blocklist != nil && !d.blocklist.Check(nc.RemoteAddr().String(), "") {
			logger.Info("rejecting blocklisted peer", logger.PeerAddr(nc.RemoteAddr().String()))
			d.metrics.BlocklistClose()
			nc.Close()
			continue
		}

		c := newConnection(d, nc)
		d.trackConn(c)
		go func() {
			defer d.untrackConn(c)
			c.serve()
		}()
	}
}

func (d *Daemon) trackConn(c *Connection) {
	d.connsMu.Lock()
	d.conns[c] = struct{}{}
	d.connsMu.Unlock()
}

func (d *Daemon) untrackConn(c *Connection) {
	d.connsMu.Lock()
	delete(d.conns, c)
	d.connsMu.Unlock()
}

// sweepLoop performs the periodic queue-drain, blocklist-refresh, and
// blocklisted-connection close work that spec.md §4.1 assigns to each
// iteration of the daemon's event loop.
func (d *Daemon) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweepOnce()
		}
	}
}

func (d *Daemon) sweepOnce() {
	d.drainQueue()
	d.metrics.SetLoggedOnCount(d.index.LoggedOnCount())

	if d.blocklist == nil {
		return
	}
	if !d.blocklist.Refresh() {
		return
	}
	d.closeBlocklistedConns()
}

func (d *Daemon) drainQueue() {
	now := time.Now()
	results := d.queue.Drain(now, func(to string) bool {
		return len(d.index.Lookup(to)) > 0
	})
	if len(results) == 0 {
		return
	}

	for _, r := range results {
		if r.expired {
			d.metrics.MessageExpired()
			d.metrics.MessageDropped("ttl_expired")
			continue
		}
		targets := d.index.Lookup(r.msg.to)
		for _, t := range targets {
			t.writeFrame(context.Background(), r.msg.frame)
		}
		d.metrics.MessageFannedOut(len(targets))
		d.metrics.BytesRouted(len(r.msg.frame))
	}
	d.metrics.SetQueueBytes(d.queue.Bytes())
}

// closeBlocklistedConns re-evaluates every live connection against the
// (just-reloaded) blocklist and closes any that now match. Per spec.md
// §9 "blocklist race", this only runs once per sweep, never inline
// during a read, so a rule change never closes a connection
// mid-iteration.
func (d *Daemon) closeBlocklistedConns() {
	d.connsMu.Lock()
	conns := make([]*Connection, 0, len(d.conns))
	for c := range d.conns {
		conns = append(conns, c)
	}
	d.connsMu.Unlock()

	for _, c := range conns {
		if !d.blocklist.Check(c.raddr, "") {
			d.metrics.BlocklistClose()
			c.close("blocklisted")
		}
	}
}

// LoggedOnCount reports the number of connections currently indexed by
// callsign.
func (d *Daemon) LoggedOnCount() int {
	return d.index.LoggedOnCount()
}
