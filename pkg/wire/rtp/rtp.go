// Package rtp parses and serializes RTP packets (RFC 3550), including the
// one-byte and two-byte header extension forms (RFC 8285). It wraps
// github.com/pion/rtp rather than reimplementing the wire format: the
// teacher and the rest of the pack exercise pion/rtp directly (see e.g. the
// NACK interceptors' use of rtp.Packet.SequenceNumber), so this is the same
// codec the wider ecosystem already relies on — unlike STUN, which had no
// grounded in-pack call site for pion/stun.
package rtp

import (
	"github.com/pion/rtp"

	"github.com/sansrtc/core/pkg/wire"
)

// Packet is a parsed RTP packet: header fields plus the payload with no
// header extension bytes mixed in.
type Packet struct {
	Version        uint8
	Padding        bool
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	CSRC           []uint32
	ExtensionIDs   []uint8
	raw            *rtp.Packet
	Payload        []byte
}

// Extension returns the raw bytes of header extension id, if present.
func (p *Packet) Extension(id uint8) ([]byte, bool) {
	v := p.raw.GetExtension(id)
	if v == nil {
		return nil, false
	}
	return v, true
}

// Parse decodes an RTP packet from wire bytes. Any parse failure (short
// buffer, inconsistent extension/padding lengths, CSRC count mismatch) is
// reported as a *wire.MalformedError; the datagram is never panicked on.
func Parse(data []byte) (*Packet, error) {
	raw := &rtp.Packet{}
	if err := raw.Unmarshal(data); err != nil {
		return nil, wire.Malformed("rtp", 0, err.Error())
	}

	return &Packet{
		Version:        raw.Version,
		Padding:        raw.Padding,
		Marker:         raw.Marker,
		PayloadType:    raw.PayloadType,
		SequenceNumber: raw.SequenceNumber,
		Timestamp:      raw.Timestamp,
		SSRC:           raw.SSRC,
		CSRC:           raw.CSRC,
		ExtensionIDs:   raw.GetExtensionIDs(),
		raw:            raw,
		Payload:        raw.Payload,
	}, nil
}

// Marshal serializes an outgoing packet. nackable callers should set
// Marker/Timestamp/SequenceNumber/SSRC before calling; CSRC (via the CSRC
// field) and header extensions (via SetExtension) are optional and set first.
func (p *Packet) Marshal() ([]byte, error) {
	raw := p.toWire()
	out, err := raw.Marshal()
	if err != nil {
		return nil, wire.Malformed("rtp", 0, err.Error())
	}
	return out, nil
}

func (p *Packet) toWire() *rtp.Packet {
	if p.raw != nil {
		p.raw.Version = p.Version
		p.raw.Padding = p.Padding
		p.raw.Marker = p.Marker
		p.raw.PayloadType = p.PayloadType
		p.raw.SequenceNumber = p.SequenceNumber
		p.raw.Timestamp = p.Timestamp
		p.raw.SSRC = p.SSRC
		p.raw.CSRC = p.CSRC
		p.raw.Payload = p.Payload
		return p.raw
	}
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Padding:        p.Padding,
			Marker:         p.Marker,
			PayloadType:    p.PayloadType,
			SequenceNumber: p.SequenceNumber,
			Timestamp:      p.Timestamp,
			SSRC:           p.SSRC,
			CSRC:           p.CSRC,
		},
		Payload: p.Payload,
	}
}

// SetExtension attaches a header extension (one-byte or two-byte form,
// chosen automatically by pion/rtp based on id/length) before Marshal.
func (p *Packet) SetExtension(id uint8, payload []byte) error {
	raw := p.toWire()
	if err := raw.SetExtension(id, payload); err != nil {
		return wire.Malformed("rtp", 0, err.Error())
	}
	p.raw = raw
	return nil
}

// NewOutgoing builds a fresh outgoing packet shell for Marshal/SetExtension.
func NewOutgoing(pt uint8, seq uint16, ts uint32, ssrc uint32, marker bool, payload []byte) *Packet {
	return &Packet{
		Version:        2,
		Marker:         marker,
		PayloadType:    pt,
		SequenceNumber: seq,
		Timestamp:      ts,
		SSRC:           ssrc,
		Payload:        payload,
	}
}
