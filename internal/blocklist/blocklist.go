// Package blocklist implements the blocklist oracle collaborator
// (spec.md §6.4): check(address, family) -> bool, refresh() -> bool.
//
// spec.md §9 "Open question: blocklist race" requires that a mid-loop
// ruleset change not close connections until the next loop iteration —
// this package only ever flips a dirty bit from its fsnotify watcher;
// the router daemon decides when to actually call Refresh and act on
// the result, once per event-loop iteration.
package blocklist

import (
	"bufio"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/cpdlcd/internal/logger"
)

// List is a blocklist oracle backed by a flat file of one CIDR or bare
// IP per line, hot-reloaded via fsnotify. The file format itself is an
// external-collaborator detail spec.md leaves unspecified; this is the
// obvious minimal one.
type List struct {
	path string

	mu      sync.RWMutex
	entries []*net.IPNet

	dirty   atomic.Bool
	watcher *fsnotify.Watcher
}

// New creates a blocklist oracle over path. If path is empty, Check
// always returns true (nothing blocked) and Refresh always returns
// false.
func New(path string) (*List, error) {
	l := &List{path: path}
	if path == "" {
		return l, nil
	}

	if err := l.reload(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, err
	}
	l.watcher = w
	l.dirty.Store(false)

	go l.watchLoop()
	return l, nil
}

func (l *List) watchLoop() {
	for {
		select {
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				l.dirty.Store(true)
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("blocklist watcher error", logger.Err(err))
		}
	}
}

// Close stops the filesystem watcher.
func (l *List) Close() error {
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Close()
}

func (l *List) reload() error {
	f, err := os.Open(l.path)
	if err != nil {
		return err
	}
	defer f.Close()

	var entries []*net.IPNet
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		_, ipnet, err := net.ParseCIDR(line)
		if err != nil {
			ip := net.ParseIP(line)
			if ip == nil {
				logger.Warn("blocklist: skipping unparsable entry", logger.Reason(line))
				continue
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			ipnet = &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
		}
		entries = append(entries, ipnet)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()
	return nil
}

// Refresh reports whether the ruleset changed since the last call to
// Refresh, reloading it if so. Per spec.md §6.4, a single bool captures
// "did the rule set change".
func (l *List) Refresh() bool {
	if l.path == "" {
		return false
	}
	if !l.dirty.CompareAndSwap(true, false) {
		return false
	}
	if err := l.reload(); err != nil {
		logger.Warn("blocklist: reload failed", logger.Err(err))
		return false
	}
	return true
}

// Check reports whether address is allowed (true) or blocked (false).
// family is accepted for interface parity with spec.md §6.4 but is not
// needed: net.ParseIP / the stored *net.IPNet already disambiguate
// IPv4/IPv6.
func (l *List) Check(address string, _ string) bool {
	if l.path == "" {
		return true
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return true
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, n := range l.entries {
		if n.Contains(ip) {
			return false
		}
	}
	return true
}
