package stream

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	wirertcp "github.com/sansrtc/core/pkg/wire/rtcp"
	wirertp "github.com/sansrtc/core/pkg/wire/rtp"

	"github.com/sansrtc/core/pkg/rtx"
)

// Tx is the per-SSRC transmit pipeline: sequence assignment, RTX retention,
// and SR generation (spec §4.4).
type Tx struct {
	ssrc      uint32
	clockRate uint32
	interval  time.Duration

	nextSeq uint16
	cache   *rtx.Cache

	packetCount uint32
	octetCount  uint32

	lastSRAt time.Time
}

// NewTx creates a transmit pipeline for ssrc, seeding the initial sequence
// number from the OS random source per RFC 3550 §5.1's recommendation that
// initial sequence numbers be unpredictable.
func NewTx(ssrc uint32, clockRate uint32, audio bool) *Tx {
	interval := RRIntervalVideo
	if audio {
		interval = RRIntervalAudio
	}
	var seed [2]byte
	_, _ = rand.Read(seed[:])
	return &Tx{
		ssrc:      ssrc,
		clockRate: clockRate,
		interval:  interval,
		nextSeq:   binary.BigEndian.Uint16(seed[:]),
		cache:     rtx.NewCache(rtx.DefaultCacheConfig()),
	}
}

// SSRC returns the stream's synchronization source.
func (s *Tx) SSRC() uint32 { return s.ssrc }

// WritePacket assigns the next sequence number, builds and serializes the
// outgoing RTP packet, retains it in the RTX cache, and returns the wire
// bytes for transmission.
func (s *Tx) WritePacket(pt uint8, marker bool, timestamp uint32, payload []byte, now time.Time) ([]byte, error) {
	seq := s.nextSeq
	s.nextSeq++

	pkt := wirertp.NewOutgoing(pt, seq, timestamp, s.ssrc, marker, payload)
	data, err := pkt.Marshal()
	if err != nil {
		return nil, err
	}

	s.cache.Insert(uint64(seq), data, now)
	s.packetCount++
	s.octetCount += uint32(len(payload))
	return data, nil
}

// Resend looks up a previously sent packet by wire sequence number for
// retransmission in answer to a NACK. ok is false if it has aged out of the
// cache or was never sent.
func (s *Tx) Resend(seq uint16) (data []byte, ok bool) {
	return s.cache.Lookup(uint64(seq))
}

// FeedbackAt returns the instant at which this stream's next SR is due.
func (s *Tx) FeedbackAt() time.Time {
	return s.lastSRAt.Add(s.interval)
}

// BuildSenderReport marshals an SR for this stream's current counters,
// carrying along any ReceptionReport blocks the session wants to bundle in
// the same compound packet (for streams this endpoint both sends and
// receives, e.g. a bidirectional audio SSRC). Call MarkReportSent once it
// has actually been placed on the wire.
func (s *Tx) BuildSenderReport(now time.Time, ntpTime uint64, rtpTime uint32, reports []wirertcp.ReceptionReport) ([]byte, error) {
	return wirertcp.BuildSenderReport(s.ssrc, ntpTime, rtpTime, s.packetCount, s.octetCount, reports)
}

// MarkReportSent records that an SR built from BuildSenderReport was
// transmitted at now, resetting the feedback_at deadline.
func (s *Tx) MarkReportSent(now time.Time) {
	s.lastSRAt = now
}
