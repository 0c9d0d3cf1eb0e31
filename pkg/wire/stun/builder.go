package stun

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // required by RFC 5389 MESSAGE-INTEGRITY
	"encoding/binary"
	"hash/crc32"
)

// Builder assembles a STUN message for transmission. Attributes are added
// in the order callers want them to appear; MESSAGE-INTEGRITY and
// FINGERPRINT, when requested, are always written last, in that order, as
// RFC 5389 §15 requires.
type Builder struct {
	typ  uint16
	tx   TransactionID
	attr []RawAttribute

	addIntegrity bool
	password     string
	addFinger    bool
}

// NewBuilder starts a message of the given type and transaction id.
func NewBuilder(typ uint16, tx TransactionID) *Builder {
	return &Builder{typ: typ, tx: tx}
}

// Username appends a USERNAME attribute.
func (b *Builder) Username(u string) *Builder {
	b.attr = append(b.attr, RawAttribute{Type: AttrUsername, Value: []byte(u)})
	return b
}

// Priority appends a PRIORITY attribute.
func (b *Builder) Priority(p uint32) *Builder {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, p)
	b.attr = append(b.attr, RawAttribute{Type: AttrPriority, Value: v})
	return b
}

// UseCandidate appends the zero-length USE-CANDIDATE flag attribute.
func (b *Builder) UseCandidate() *Builder {
	b.attr = append(b.attr, RawAttribute{Type: AttrUseCandidate})
	return b
}

// IceControlling appends an ICE-CONTROLLING attribute carrying tiebreaker.
func (b *Builder) IceControlling(tiebreaker uint64) *Builder {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, tiebreaker)
	b.attr = append(b.attr, RawAttribute{Type: AttrIceControlling, Value: v})
	return b
}

// IceControlled appends an ICE-CONTROLLED attribute carrying tiebreaker.
func (b *Builder) IceControlled(tiebreaker uint64) *Builder {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, tiebreaker)
	b.attr = append(b.attr, RawAttribute{Type: AttrIceControlled, Value: v})
	return b
}

// MessageIntegrity requests that a MESSAGE-INTEGRITY attribute be computed
// and appended (second-to-last, before FINGERPRINT) using the short-term
// credential password.
func (b *Builder) MessageIntegrity(password string) *Builder {
	b.addIntegrity = true
	b.password = password
	return b
}

// Fingerprint requests a FINGERPRINT attribute be appended last.
func (b *Builder) Fingerprint() *Builder {
	b.addFinger = true
	return b
}

// Build serializes the message to wire bytes.
func (b *Builder) Build() []byte {
	body := encodeAttrs(b.attr)

	if b.addIntegrity {
		// Length field must cover the message through the
		// MESSAGE-INTEGRITY attribute (24 bytes: 4 header + 20 value).
		provisional := encodeHeader(b.typ, b.tx, len(body)+24)
		mac := hmac.New(sha1.New, []byte(b.password))
		mac.Write(provisional)
		mac.Write(body)
		sum := mac.Sum(nil)
		body = append(body, encodeAttr(AttrMessageInteg, sum)...)
	}

	if b.addFinger {
		provisional := encodeHeader(b.typ, b.tx, len(body)+8)
		crc := crc32.ChecksumIEEE(append(provisional, body...)) ^ fingerprintXOR
		v := make([]byte, 4)
		binary.BigEndian.PutUint32(v, crc)
		body = append(body, encodeAttr(AttrFingerprint, v)...)
	}

	header := encodeHeader(b.typ, b.tx, len(body))
	return append(header, body...)
}

func encodeHeader(typ uint16, tx TransactionID, attrLen int) []byte {
	h := make([]byte, 20)
	binary.BigEndian.PutUint16(h[0:2], typ)
	binary.BigEndian.PutUint16(h[2:4], uint16(attrLen))
	binary.BigEndian.PutUint32(h[4:8], MagicCookie)
	copy(h[8:20], tx[:])
	return h
}

func encodeAttrs(attrs []RawAttribute) []byte {
	var out []byte
	for _, a := range attrs {
		out = append(out, encodeAttr(a.Type, a.Value)...)
	}
	return out
}

func encodeAttr(typ uint16, val []byte) []byte {
	out := make([]byte, 4+len(val))
	binary.BigEndian.PutUint16(out[0:2], typ)
	binary.BigEndian.PutUint16(out[2:4], uint16(len(val)))
	copy(out[4:], val)
	if pad := len(val) % 4; pad != 0 {
		out = append(out, make([]byte, 4-pad)...)
	}
	return out
}
