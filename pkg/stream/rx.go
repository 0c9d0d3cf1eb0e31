package stream

import (
	"time"

	wirertcp "github.com/sansrtc/core/pkg/wire/rtcp"
	wirertp "github.com/sansrtc/core/pkg/wire/rtp"

	"github.com/sansrtc/core/pkg/rollover"
	"github.com/sansrtc/core/pkg/rtx"
)

// Rx is the per-SSRC receive pipeline: rollover projection, jitter, and
// loss bookkeeping feeding periodic ReceptionReport blocks, plus a NACK
// register feeding the RTX request side (spec §4.4).
type Rx struct {
	ssrc      uint32
	clockRate uint32
	interval  time.Duration

	seqReg *rollover.Register
	tsReg  *rollover.Register

	baseSeq   uint64
	hasBase   bool
	received  uint64
	expPrior  uint64
	recvPrior uint64

	refTime     time.Time
	hasTransit  bool
	transit     int64
	jitter      float64

	hasLastSR    bool
	lastSRMid    uint32
	lastSRRecvAt time.Time

	nack    *rtx.Register
	lastRRAt time.Time
}

// NewRx creates a receive pipeline for ssrc. clockRate is the codec's RTP
// clock rate (e.g. 90000 for video, 48000 for Opus), used to convert wall
// time into RTP timestamp units for the jitter estimator.
func NewRx(ssrc uint32, clockRate uint32, audio bool) *Rx {
	interval := RRIntervalVideo
	if audio {
		interval = RRIntervalAudio
	}
	return &Rx{
		ssrc:      ssrc,
		clockRate: clockRate,
		interval:  interval,
		seqReg:    rollover.NewSeqRegister(),
		tsReg:     rollover.NewTimeRegister(),
		nack:      rtx.NewRegister(rtx.DefaultNackConfig()),
	}
}

// SSRC returns the stream's synchronization source.
func (s *Rx) SSRC() uint32 { return s.ssrc }

// HandleRTP projects a parsed packet's sequence/timestamp onto the extended
// counters, updates jitter and loss bookkeeping, schedules NACKs for any
// newly observed gap, and returns the packet the host should deliver.
func (s *Rx) HandleRTP(pkt *wirertp.Packet, now time.Time) StreamPacket {
	extSeq := s.seqReg.Update(uint64(pkt.SequenceNumber))
	extTs := s.tsReg.Update(uint64(pkt.Timestamp))

	if !s.hasBase {
		s.baseSeq = extSeq
		s.hasBase = true
		s.refTime = now
	}
	s.received++
	s.updateJitter(pkt.Timestamp, now)
	s.nack.Receive(extSeq, now)

	return StreamPacket{
		SSRC:              s.ssrc,
		ExtendedSeq:       extSeq,
		ExtendedTimestamp: extTs,
		PayloadType:       pkt.PayloadType,
		Marker:            pkt.Marker,
		Payload:           pkt.Payload,
	}
}

// updateJitter implements the RFC 3550 §6.4.1 / appendix A.8 recursive
// jitter estimator: arrival time is converted into RTP timestamp units
// using clockRate and a stream-local wall-clock reference, so only the
// relative arrival spacing matters.
func (s *Rx) updateJitter(wireTs uint32, now time.Time) {
	if s.clockRate == 0 {
		return
	}
	arrival := int64(now.Sub(s.refTime).Seconds() * float64(s.clockRate))
	transit := arrival - int64(wireTs)

	if s.hasTransit {
		d := transit - s.transit
		if d < 0 {
			d = -d
		}
		s.jitter += (float64(d) - s.jitter) / 16
	}
	s.transit = transit
	s.hasTransit = true
}

// OnSenderReport records the NTP mid-timestamp from a received SR, for
// DLSR computation in the next RR this stream emits.
func (s *Rx) OnSenderReport(ntpMid uint32, now time.Time) {
	s.hasLastSR = true
	s.lastSRMid = ntpMid
	s.lastSRRecvAt = now
}

// FeedbackAt returns the instant at which this stream's next RR is due. A
// zero-valued return (before any RR has ever been sent) is always in the
// past, so callers needn't special-case the first report.
func (s *Rx) FeedbackAt() time.Time {
	return s.lastRRAt.Add(s.interval)
}

// BuildReportBlock computes this stream's ReceptionReport for the current
// moment, following galene's FractionLost/TotalLost derivation (its
// rtpconn.go), and advances the interval-tracking counters. Call
// MarkReportSent once the block has actually been placed on the wire.
func (s *Rx) BuildReportBlock(now time.Time) wirertcp.ReceptionReport {
	highest, _ := s.seqReg.Extended()
	expected := highest - s.baseSeq + 1

	expectedInterval := expected - s.expPrior
	receivedInterval := s.received - s.recvPrior
	s.expPrior = expected
	s.recvPrior = s.received

	var fraction uint8
	if expectedInterval > 0 && receivedInterval < expectedInterval {
		lost := expectedInterval - receivedInterval
		fraction = uint8((lost << 8) / expectedInterval)
	}

	var totalLost uint32
	if expected > s.received {
		diff := expected - s.received
		if diff > 0x7fffff {
			diff = 0x7fffff
		}
		totalLost = uint32(diff)
	}

	var dlsr uint32
	if s.hasLastSR {
		dlsr = uint32(now.Sub(s.lastSRRecvAt).Seconds() * 65536)
	}

	return wirertcp.ReceptionReport{
		SSRC:             s.ssrc,
		FractionLost:     fraction,
		TotalLost:        totalLost,
		LastSequence:     uint32(highest),
		Jitter:           uint32(s.jitter),
		LastSR:           s.lastSRMid,
		DelaySinceLastSR: dlsr,
	}
}

// MarkReportSent records that a report block built from BuildReportBlock
// was transmitted at now, resetting the feedback_at deadline.
func (s *Rx) MarkReportSent(now time.Time) {
	s.lastRRAt = now
}

// Stats is a read-only snapshot of this stream's reception bookkeeping, for
// the session driver's peer-stats event (spec §6: "Statistics are exposed
// as a plain value snapshot"). Unlike BuildReportBlock it does not advance
// the interval counters, so it is safe to call on every poll_output tick.
type Stats struct {
	SSRC            uint32
	PacketsReceived uint64
	Jitter          float64
	HighestSeq      uint64
}

// Stats returns the current snapshot.
func (s *Rx) Stats() Stats {
	highest, _ := s.seqReg.Extended()
	return Stats{SSRC: s.ssrc, PacketsReceived: s.received, Jitter: s.jitter, HighestSeq: highest}
}

// HasNack reports whether this stream currently has a gap worth NACKing.
func (s *Rx) HasNack() bool {
	return s.nack.HasPending()
}

// DueNacks returns the extended sequence numbers that should be NACKed
// right now.
func (s *Rx) DueNacks(now time.Time) []uint64 {
	return s.nack.DueNacks(now)
}

// NextNackDeadline returns the earliest instant at which a NACK will next
// be due.
func (s *Rx) NextNackDeadline() (time.Time, bool) {
	return s.nack.NextDeadline()
}
