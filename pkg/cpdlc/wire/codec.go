// Package wire implements the textual frame codec shared by the router
// daemon and the thread engine (spec.md §6.1): newline-delimited,
// printable 7-bit ASCII frames, with a strict round-trip guarantee
// (decode(encode(m)) == m).
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/marmos91/cpdlcd/pkg/cpdlc"
)

// ErrNeedMore is returned by Decode when the buffer does not yet contain
// a complete frame. Callers should treat it as "wait for more bytes", not
// as a malformation.
var ErrNeedMore = errors.New("wire: need more bytes")

// DecodeError reports a fatal frame malformation: a non-ASCII byte or an
// undecodable frame. Per spec.md §7, this class of error closes the
// connection.
type DecodeError struct {
	Reason string
	cause  error
}

func (e *DecodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("wire: malformed frame: %s: %v", e.Reason, e.cause)
	}
	return fmt.Sprintf("wire: malformed frame: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.cause }

const (
	fieldSep   = '|'
	kvSep      = '='
	segArgSep  = ':'
	argListSep = ','
)

// Encode renders m as a single newline-terminated wire frame.
//
// Layout (all fields pipe-separated, key=value except the leading
// type tag):
//
//	LOGON|D=<U|D>|MIN=<n>|MRN=<n|->|FROM=<cs>|TO=<cs>\n
//	MSG|D=<U|D>|MIN=<n>|MRN=<n|->|FROM=<cs>|TO=<cs>|SEG=<type>:<a,b,c>|SEG=...\n
func Encode(m *cpdlc.Message) []byte {
	var b bytes.Buffer

	if m.IsLogon {
		b.WriteString("LOGON")
	} else {
		b.WriteString("MSG")
	}

	b.WriteByte(fieldSep)
	if m.Direction == cpdlc.Uplink {
		b.WriteString("D=U")
	} else {
		b.WriteString("D=D")
	}

	b.WriteByte(fieldSep)
	b.WriteString("MIN=")
	b.WriteString(strconv.FormatUint(uint64(m.MIN), 10))

	b.WriteByte(fieldSep)
	b.WriteString("MRN=")
	if m.HasMRN() {
		b.WriteString(strconv.FormatUint(uint64(m.MRN), 10))
	} else {
		b.WriteByte('-')
	}

	b.WriteByte(fieldSep)
	b.WriteString("FROM=")
	b.WriteString(m.From)

	b.WriteByte(fieldSep)
	b.WriteString("TO=")
	b.WriteString(m.To)

	for _, seg := range m.Segments {
		b.WriteByte(fieldSep)
		b.WriteString("SEG=")
		b.WriteString(strconv.Itoa(seg.MsgType))
		b.WriteByte(segArgSep)
		b.WriteString(strings.Join(seg.Args, string(argListSep)))
	}

	b.WriteByte('\n')
	return b.Bytes()
}

// Decode scans buf for one complete frame. It returns (msg, consumed, nil)
// on success. If buf does not yet contain a full line, it returns
// (nil, 0, ErrNeedMore). Any other error is a *DecodeError and is fatal
// per spec.md §7.
func Decode(buf []byte) (*cpdlc.Message, int, error) {
	for _, c := range buf {
		if c == '\n' {
			break
		}
		if c == 0 || c > 127 {
			return nil, 0, &DecodeError{Reason: "non-ASCII byte in input stream"}
		}
	}

	nl := bytes.IndexByte(buf, '\n')
	if nl < 0 {
		return nil, 0, ErrNeedMore
	}
	consumed := nl + 1
	line := buf[:nl]
	// Tolerate a trailing \r for CRLF-terminated peers.
	line = bytes.TrimSuffix(line, []byte{'\r'})

	if len(line) == 0 {
		return nil, consumed, &DecodeError{Reason: "empty frame"}
	}

	fields := strings.Split(string(line), string(fieldSep))
	tag := fields[0]

	m := &cpdlc.Message{MRN: cpdlc.InvalidSeqNr}
	switch tag {
	case "LOGON":
		m.IsLogon = true
	case "MSG":
		m.IsLogon = false
	default:
		return nil, consumed, &DecodeError{Reason: fmt.Sprintf("unknown frame tag %q", tag)}
	}

	for _, f := range fields[1:] {
		key, val, ok := strings.Cut(f, string(kvSep))
		if !ok {
			return nil, consumed, &DecodeError{Reason: fmt.Sprintf("malformed field %q", f)}
		}
		switch key {
		case "D":
			switch val {
			case "U":
				m.Direction = cpdlc.Uplink
			case "D":
				m.Direction = cpdlc.Downlink
			default:
				return nil, consumed, &DecodeError{Reason: fmt.Sprintf("bad direction %q", val)}
			}
		case "MIN":
			n, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return nil, consumed, &DecodeError{Reason: "bad MIN", cause: err}
			}
			m.MIN = uint32(n)
		case "MRN":
			if val == "-" {
				m.MRN = cpdlc.InvalidSeqNr
			} else {
				n, err := strconv.ParseUint(val, 10, 32)
				if err != nil {
					return nil, consumed, &DecodeError{Reason: "bad MRN", cause: err}
				}
				m.MRN = uint32(n)
			}
		case "FROM":
			if len(val) > cpdlc.MaxCallsignLen {
				return nil, consumed, &DecodeError{Reason: "FROM callsign too long"}
			}
			m.From = val
		case "TO":
			if len(val) > cpdlc.MaxCallsignLen {
				return nil, consumed, &DecodeError{Reason: "TO callsign too long"}
			}
			m.To = val
		case "SEG":
			seg, err := decodeSegment(val)
			if err != nil {
				return nil, consumed, err
			}
			m.Segments = append(m.Segments, seg)
		default:
			return nil, consumed, &DecodeError{Reason: fmt.Sprintf("unknown field %q", key)}
		}
	}

	if m.IsLogon && m.From == "" {
		return nil, consumed, &DecodeError{Reason: "LOGON requires FROM="}
	}

	return m, consumed, nil
}

func decodeSegment(val string) (cpdlc.Segment, error) {
	typeStr, argStr, ok := strings.Cut(val, string(segArgSep))
	if !ok {
		return cpdlc.Segment{}, &DecodeError{Reason: fmt.Sprintf("malformed segment %q", val)}
	}
	typ, err := strconv.Atoi(typeStr)
	if err != nil {
		return cpdlc.Segment{}, &DecodeError{Reason: "bad segment type", cause: err}
	}
	var args []string
	if argStr != "" {
		args = strings.Split(argStr, string(argListSep))
	}
	return cpdlc.Segment{MsgType: typ, Args: args}, nil
}
