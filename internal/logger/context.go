package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for a single connection
// or thread-engine event being processed.
type LogContext struct {
	ConnectionID string    // Server-assigned connection identifier
	Callsign     string    // Bound FROM callsign of the connection, if logged on
	PeerAddr     string    // Remote socket address
	ThreadID     uint64    // Thread engine thread id, if applicable
	StartTime    time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a freshly accepted connection.
func NewLogContext(peerAddr string) *LogContext {
	return &LogContext{
		PeerAddr:  peerAddr,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		ConnectionID: lc.ConnectionID,
		Callsign:     lc.Callsign,
		PeerAddr:     lc.PeerAddr,
		ThreadID:     lc.ThreadID,
		StartTime:    lc.StartTime,
	}
}

// WithCallsign returns a copy with the bound callsign set
func (lc *LogContext) WithCallsign(callsign string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Callsign = callsign
	}
	return clone
}

// WithThread returns a copy with the thread id set
func (lc *LogContext) WithThread(threadID uint64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ThreadID = threadID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
