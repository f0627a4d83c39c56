package router

import (
	"fmt"

	"github.com/marmos91/cpdlcd/pkg/cpdlc"
	"github.com/marmos91/cpdlcd/pkg/cpdlc/catalog"
)

// ProtocolError is a policy-violation error (spec.md §7): it does not
// close the connection by itself, it is turned into a CPDLC error
// segment and written back to the offending connection's out-buffer.
type ProtocolError struct {
	Description string
	Offending   *cpdlc.Message // nil if the offender had no decoded message
	cause       error
}

func (e *ProtocolError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("router: %s: %v", e.Description, e.cause)
	}
	return fmt.Sprintf("router: %s", e.Description)
}

func (e *ProtocolError) Unwrap() error { return e.cause }

// synthesizeError builds the CPDLC error segment spec.md §4.1 "Error
// reporting" prescribes: UM159 ERROR when the offender was a downlink
// message (or unknown), DM62 ERROR when it was an uplink message. The
// MIN is mirrored from the offender when available.
func synthesizeError(pe *ProtocolError) *cpdlc.Message {
	msgType := catalog.UM159ERROR
	dir := cpdlc.Uplink
	var min uint32
	if pe.Offending != nil {
		min = pe.Offending.MIN
		if pe.Offending.Direction == cpdlc.Uplink {
			msgType = catalog.DM62ERROR
			dir = cpdlc.Downlink
		}
	}
	return &cpdlc.Message{
		Direction: dir,
		MIN:       min,
		MRN:       cpdlc.InvalidSeqNr,
		Segments:  []cpdlc.Segment{{MsgType: msgType, Args: []string{pe.Description}}},
	}
}
