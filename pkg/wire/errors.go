// Package wire holds the error kinds shared by every wire-format codec
// (STUN, RTP, RTCP) and by the subsystems that consume them.
package wire

import "fmt"

// MalformedError is returned when a datagram fails to parse. The session
// driver drops the datagram, logs it at debug level, and emits no
// user-visible event; it keeps no drop counter.
type MalformedError struct {
	Kind   string // "stun", "rtp", "rtcp"
	Offset int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("wire: malformed %s at offset %d: %s", e.Kind, e.Offset, e.Reason)
}

// Malformed constructs a MalformedError.
func Malformed(kind string, offset int, reason string) error {
	return &MalformedError{Kind: kind, Offset: offset, Reason: reason}
}

// IntegrityError is returned when a STUN MESSAGE-INTEGRITY or SRTP auth tag
// fails to verify. The datagram is dropped and logged, never surfaced to
// the host as an event.
type IntegrityError struct {
	Kind   string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("wire: integrity failure (%s): %s", e.Kind, e.Reason)
}

// IntegrityFailure constructs an IntegrityError.
func IntegrityFailure(kind, reason string) error {
	return &IntegrityError{Kind: kind, Reason: reason}
}

// UnknownSSRCError describes an incoming RTP packet that names an SSRC with
// no matching receive stream. The session driver logs it and drops the
// packet; such packets are not buffered for a later media-line binding.
type UnknownSSRCError struct {
	SSRC uint32
}

func (e *UnknownSSRCError) Error() string {
	return fmt.Sprintf("wire: unknown ssrc %d", e.SSRC)
}

// UnknownSsrc constructs an UnknownSSRCError.
func UnknownSsrc(ssrc uint32) error {
	return &UnknownSSRCError{SSRC: ssrc}
}

// DefaultUnknownSsrcQueue is the default value of session.Config's
// UnknownSsrcQueue field. The session driver does not read that field and
// keeps no buffer of unknown-SSRC packets.
const DefaultUnknownSsrcQueue = 100

// StateViolationError is returned synchronously to the caller when a
// control API method is invoked in the wrong phase (e.g. accept_answer
// with no pending offer).
type StateViolationError struct {
	Op     string
	Reason string
}

func (e *StateViolationError) Error() string {
	return fmt.Sprintf("wire: state violation calling %s: %s", e.Op, e.Reason)
}

// StateViolation constructs a StateViolationError.
func StateViolation(op, reason string) error {
	return &StateViolationError{Op: op, Reason: reason}
}

// FatalError signals an internal invariant violation. The host must treat
// it as terminal and discard the instance; nothing inside a tick may
// continue once one has been raised.
type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("wire: fatal invariant violation: %s", e.Reason)
}

// Fatal constructs a FatalError.
func Fatal(reason string) error {
	return &FatalError{Reason: reason}
}
