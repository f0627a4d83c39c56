// Package catalog is the static message-type metadata catalog: for each
// segment type code it gives direction, response class and reply timeout.
// spec.md treats the full enumeration of CPDLC message types as an
// out-of-scope collaborator; this package implements just enough of it —
// the codes referenced by the thread-engine status rule — to make that
// rule concrete and testable.
package catalog

import "github.com/marmos91/cpdlcd/pkg/cpdlc"

// ResponseClass is the reply obligation a message segment carries.
type ResponseClass int

const (
	// None means no reply is expected.
	None ResponseClass = iota
	// Y means a reply is required ("yes").
	Y
	// WU is wilco/unable.
	WU
	// AN is affirm/negative.
	AN
	// NE is no-reply-expected-but-acknowledge.
	NE
)

func (r ResponseClass) String() string {
	switch r {
	case Y:
		return "Y"
	case WU:
		return "WU"
	case AN:
		return "AN"
	case NE:
		return "NE"
	default:
		return "NONE"
	}
}

// Entry is one catalog row, as consumed by the router daemon and the
// thread engine (spec.md §6.4 "Catalog").
type Entry struct {
	IsDownlink     bool
	ResponseClass  ResponseClass
	TimeoutSeconds int
}

// downlinkBase offsets downlink (DMnn) codes from uplink (UMnn) codes so
// the two numbering spaces, which overlap in the CPDLC message set, can
// share one lookup table.
const downlinkBase = 1000

// DM returns the catalog code for downlink message type n (e.g. DM(0) is
// DM0 WILCO).
func DM(n int) int { return downlinkBase + n }

// UM returns the catalog code for uplink message type n (e.g. UM(159) is
// UM159 ERROR).
func UM(n int) int { return n }

var table = map[int]Entry{
	// Downlink acknowledgements / terminal replies.
	DM(0):  {IsDownlink: true, ResponseClass: None}, // WILCO
	DM(1):  {IsDownlink: true, ResponseClass: None}, // UNABLE
	DM(2):  {IsDownlink: true, ResponseClass: None}, // STANDBY
	DM(3):  {IsDownlink: true, ResponseClass: None}, // ROGER
	DM(4):  {IsDownlink: true, ResponseClass: None}, // AFFIRM
	DM(5):  {IsDownlink: true, ResponseClass: None}, // NEGATIVE
	DM(62): {IsDownlink: true, ResponseClass: None}, // ERROR

	// Uplink terminal / link-management replies.
	UM(0):   {IsDownlink: false, ResponseClass: None}, // UNABLE
	UM(1):   {IsDownlink: false, ResponseClass: None}, // STANDBY
	UM(3):   {IsDownlink: false, ResponseClass: None}, // ROGER
	UM(4):   {IsDownlink: false, ResponseClass: None}, // AFFIRM
	UM(5):   {IsDownlink: false, ResponseClass: None}, // NEGATIVE
	UM(159): {IsDownlink: false, ResponseClass: None}, // ERROR
	UM(160): {IsDownlink: false, ResponseClass: None}, // NEXT DATA AUTHORITY
	UM(161): {IsDownlink: false, ResponseClass: None}, // END SVC
	UM(168): {IsDownlink: false, ResponseClass: None}, // DISREGARD
}

func init() {
	// Downlink request range DM6-DM27: clearance/level/route requests,
	// reply-required ("WU" style wilco/unable on the uplink clearance).
	for n := 6; n <= 27; n++ {
		table[DM(n)] = Entry{IsDownlink: true, ResponseClass: Y, TimeoutSeconds: 0}
	}
	// Downlink request range DM49-DM54.
	for n := 49; n <= 54; n++ {
		table[DM(n)] = Entry{IsDownlink: true, ResponseClass: Y, TimeoutSeconds: 0}
	}
	// DM70/DM71: request heading / request ground track.
	table[DM(70)] = Entry{IsDownlink: true, ResponseClass: Y}
	table[DM(71)] = Entry{IsDownlink: true, ResponseClass: Y}

	// A representative spread of reply-required uplink clearances, each
	// carrying a nonzero timeout so the thread-engine timeout path
	// (spec.md §4.2, scenario 6) has live catalog entries to consult.
	for n := 20; n <= 30; n++ {
		table[UM(n)] = Entry{IsDownlink: false, ResponseClass: WU, TimeoutSeconds: 60}
	}
	for n := 100; n <= 110; n++ {
		table[UM(n)] = Entry{IsDownlink: false, ResponseClass: AN, TimeoutSeconds: 60}
	}
	for n := 130; n <= 140; n++ {
		table[UM(n)] = Entry{IsDownlink: false, ResponseClass: NE, TimeoutSeconds: 60}
	}
}

// Lookup resolves a segment's message-type code, per spec.md §6.4.
func Lookup(msgType int) (Entry, bool) {
	e, ok := table[msgType]
	return e, ok
}

// IsDownlinkRequest implements the "downlink-request predicate" of
// spec.md §4.2: DM6-DM27, DM49-DM54, or DM70/DM71.
func IsDownlinkRequest(msgType int) bool {
	n := msgType - downlinkBase
	if n < 0 {
		return false
	}
	switch {
	case n >= 6 && n <= 27:
		return true
	case n >= 49 && n <= 54:
		return true
	case n == 70 || n == 71:
		return true
	default:
		return false
	}
}

// Well-known segment codes referenced directly by name in the
// status-recomputation rule (spec.md §4.2).
var (
	DM0WILCO    = DM(0)
	DM1UNABLE   = DM(1)
	DM2STANDBY  = DM(2)
	DM3ROGER    = DM(3)
	DM4AFFIRM   = DM(4)
	DM5NEGATIVE = DM(5)
	DM62ERROR   = DM(62)

	UM0UNABLE            = UM(0)
	UM1STANDBY           = UM(1)
	UM3ROGER             = UM(3)
	UM4AFFIRM            = UM(4)
	UM5NEGATIVE          = UM(5)
	UM159ERROR           = UM(159)
	UM160NextDataAuth    = UM(160)
	UM161EndSvc          = UM(161)
	UM168Disregard       = UM(168)
)

// segmentMsgType returns the message type of the first segment of m, or
// -1 if m has none.
func segmentMsgType(m *cpdlc.Message) int {
	if len(m.Segments) == 0 {
		return -1
	}
	return m.Segments[0].MsgType
}

// IsStandby reports whether m's leading segment is DM2 or UM1.
func IsStandby(m *cpdlc.Message) bool {
	t := segmentMsgType(m)
	return t == DM2STANDBY || t == UM1STANDBY
}

// IsAccept reports whether m's leading segment is DM0, DM4, or UM4.
func IsAccept(m *cpdlc.Message) bool {
	t := segmentMsgType(m)
	return t == DM0WILCO || t == DM4AFFIRM || t == UM4AFFIRM
}

// IsReject reports whether m's leading segment is one of the
// unable/negative/error codes listed in the status rule.
func IsReject(m *cpdlc.Message) bool {
	switch segmentMsgType(m) {
	case DM1UNABLE, DM5NEGATIVE, DM62ERROR, UM0UNABLE, UM5NEGATIVE, UM159ERROR:
		return true
	default:
		return false
	}
}

// IsRogerOrLinkMgmt reports whether m is DM3/UM3 ROGER or a link-management
// uplink (UM160 NEXT DATA AUTHORITY, UM161 END SVC).
func IsRogerOrLinkMgmt(m *cpdlc.Message) bool {
	switch segmentMsgType(m) {
	case DM3ROGER, UM3ROGER, UM160NextDataAuth, UM161EndSvc:
		return true
	default:
		return false
	}
}

// IsDisregard reports whether m's leading segment is UM168 DISREGARD.
func IsDisregard(m *cpdlc.Message) bool {
	return segmentMsgType(m) == UM168Disregard
}

// IsErrorSegment reports whether m's leading segment is DM62 or UM159.
func IsErrorSegment(m *cpdlc.Message) bool {
	t := segmentMsgType(m)
	return t == DM62ERROR || t == UM159ERROR
}

// ExpectsNoReply reports whether every segment of m has ResponseClass
// None in the catalog (used for the "closed, no reply expected" rule).
func ExpectsNoReply(m *cpdlc.Message) bool {
	for _, seg := range m.Segments {
		e, ok := Lookup(seg.MsgType)
		if !ok || e.ResponseClass != None {
			return false
		}
	}
	return true
}

// ReplyRequired reports whether m's leading segment's response class is
// one of WU, AN, NE (spec.md §4.2 "uplink reply-required").
func ReplyRequired(m *cpdlc.Message) bool {
	t := segmentMsgType(m)
	if t < 0 {
		return false
	}
	e, ok := Lookup(t)
	if !ok {
		return false
	}
	switch e.ResponseClass {
	case WU, AN, NE:
		return true
	default:
		return false
	}
}

// MinTimeout returns the minimum nonzero TimeoutSeconds across every
// segment in every bucket passed, or 0 if none carry a timeout. Callers
// pass the flattened segment list of all buckets in a thread.
func MinTimeout(segments []cpdlc.Segment) int {
	min := 0
	for _, seg := range segments {
		e, ok := Lookup(seg.MsgType)
		if !ok || e.TimeoutSeconds == 0 {
			continue
		}
		if min == 0 || e.TimeoutSeconds < min {
			min = e.TimeoutSeconds
		}
	}
	return min
}
