package mtp

import "fmt"

// MtpStatus wraps a non-OK response code from the device (spec.md §7).
// It is the typed equivalent of the teacher's RCError, given an
// errors.As-friendly name and a Code field instead of being the error
// value itself.
type MtpStatus struct {
	Op   string
	Code uint16
}

func (e *MtpStatus) Error() string {
	return fmt.Sprintf("mtp: %s: device returned %s", e.Op, getName(RC_names, int(e.Code)))
}

// ProtocolError indicates a transaction lost its Command/Data/Response
// framing: wrong container type where one was expected, transaction ID
// mismatch, or a packet too short to hold a container header. This is
// the typed analogue of the teacher's SyncError.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "mtp: protocol error: " + e.Reason
}

// TransportLost indicates the underlying USB transport failed: device
// unplugged, endpoint stalled beyond recovery, claim lost.
type TransportLost struct {
	Op  string
	Err error
}

func (e *TransportLost) Error() string {
	return fmt.Sprintf("mtp: %s: transport lost: %v", e.Op, e.Err)
}

func (e *TransportLost) Unwrap() error { return e.Err }

// Timeout indicates a bulk transfer or transaction exceeded its
// deadline without completing.
type Timeout struct {
	Op string
}

func (e *Timeout) Error() string {
	return "mtp: " + e.Op + ": timed out"
}

// ParseError indicates a dataset could not be decoded from the bytes
// the device returned: short read, malformed string length, bad
// timestamp.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("mtp: parse %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
