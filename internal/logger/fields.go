package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the router daemon and
// the thread engine. Use these keys consistently so log lines can be
// aggregated and queried regardless of which component emitted them.
const (
	// ========================================================================
	// Connection identification
	// ========================================================================
	KeyConnectionID = "connection_id" // Server-assigned connection identifier
	KeyPeerAddr     = "peer_addr"     // Remote socket address
	KeyCallsign     = "callsign"      // Bound FROM callsign
	KeyPeerCallsign = "peer_callsign" // Declared TO callsign

	// ========================================================================
	// Wire message fields
	// ========================================================================
	KeyMIN         = "min"          // Message Identification Number
	KeyMRN         = "mrn"          // Message Reference Number
	KeyDirection   = "direction"    // uplink / downlink
	KeyMsgType     = "msg_type"     // Segment message-type code
	KeyIsLogon     = "is_logon"     // Logon flag
	KeyFrom        = "from"         // FROM callsign on a decoded message
	KeyTo          = "to"           // TO callsign on a decoded message
	KeyBytesRead   = "bytes_read"   // Bytes read from a connection in one syscall
	KeyFrameLength = "frame_length" // Encoded frame length in bytes

	// ========================================================================
	// Thread engine
	// ========================================================================
	KeyThreadID     = "thread_id"     // Thread engine thread id
	KeyThreadStatus = "thread_status" // Thread status enum value
	KeyBucketIndex  = "bucket_index"  // Position of a bucket within a thread

	// ========================================================================
	// Queue / routing
	// ========================================================================
	KeyQueueBytes    = "queue_bytes"    // Current queued-message byte total
	KeyQueueMax      = "queue_max"      // Configured queue byte budget
	KeyQueueAge      = "queue_age_s"    // Age of a queued message in seconds
	KeyFanoutCount   = "fanout_count"   // Number of live connections a message fanned out to
	KeyDroppedReason = "dropped_reason" // Why a queued message was dropped

	// ========================================================================
	// Operation metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyReason     = "reason"      // Human readable disposition (close reason, etc.)

	// ========================================================================
	// Blocklist
	// ========================================================================
	KeyBlocklistPath    = "blocklist_path"
	KeyBlocklistEntries = "blocklist_entries"
)

// ----------------------------------------------------------------------------
// Connection identification
// ----------------------------------------------------------------------------

// ConnectionID returns a slog.Attr for the server-assigned connection id.
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// PeerAddr returns a slog.Attr for the remote socket address.
func PeerAddr(addr string) slog.Attr {
	return slog.String(KeyPeerAddr, addr)
}

// Callsign returns a slog.Attr for a bound FROM callsign.
func Callsign(callsign string) slog.Attr {
	return slog.String(KeyCallsign, callsign)
}

// PeerCallsign returns a slog.Attr for a declared TO callsign.
func PeerCallsign(callsign string) slog.Attr {
	return slog.String(KeyPeerCallsign, callsign)
}

// ----------------------------------------------------------------------------
// Wire message fields
// ----------------------------------------------------------------------------

// MIN returns a slog.Attr for a Message Identification Number.
func MIN(min uint32) slog.Attr {
	return slog.Uint64(KeyMIN, uint64(min))
}

// MRN returns a slog.Attr for a Message Reference Number.
func MRN(mrn uint32) slog.Attr {
	return slog.Uint64(KeyMRN, uint64(mrn))
}

// Direction returns a slog.Attr for a message direction (uplink/downlink).
func Direction(dir string) slog.Attr {
	return slog.String(KeyDirection, dir)
}

// MsgType returns a slog.Attr for a segment message-type code.
func MsgType(code int) slog.Attr {
	return slog.Int(KeyMsgType, code)
}

// BytesRead returns a slog.Attr for the number of bytes read from a
// connection in one syscall.
func BytesRead(n int) slog.Attr {
	return slog.Int(KeyBytesRead, n)
}

// ----------------------------------------------------------------------------
// Thread engine
// ----------------------------------------------------------------------------

// ThreadID returns a slog.Attr for a thread engine thread id.
func ThreadID(id uint64) slog.Attr {
	return slog.Uint64(KeyThreadID, id)
}

// ThreadStatus returns a slog.Attr for a thread status value.
func ThreadStatus(status string) slog.Attr {
	return slog.String(KeyThreadStatus, status)
}

// ----------------------------------------------------------------------------
// Queue / routing
// ----------------------------------------------------------------------------

// QueueBytes returns a slog.Attr for the current queued-message byte total.
func QueueBytes(n int64) slog.Attr {
	return slog.Int64(KeyQueueBytes, n)
}

// FanoutCount returns a slog.Attr for the number of connections a message
// fanned out to.
func FanoutCount(n int) slog.Attr {
	return slog.Int(KeyFanoutCount, n)
}

// ----------------------------------------------------------------------------
// Operation metadata
// ----------------------------------------------------------------------------

// DurationMs returns a slog.Attr for an operation duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error, or a zero Attr if err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Reason returns a slog.Attr describing why something happened (connection
// close, dropped message, etc.).
func Reason(reason string) slog.Attr {
	return slog.String(KeyReason, reason)
}
