// Package stream implements the per-SSRC receive and transmit pipelines
// (spec §4.4): StreamRx tracks rollover, jitter, and loss bookkeeping for an
// inbound SSRC and emits RR blocks; StreamTx assigns outgoing sequence
// numbers, retains a resend cache, and emits SR blocks. Both are grounded on
// galene's rtpconn.go (its receiverStats/jitter.Estimator split and its
// FractionLost/TotalLost computation at rtpconn.go:949-978) layered onto the
// teacher's sans-I/O discipline: no goroutines, every deadline is a plain
// time.Time a host polls for.
package stream

import "time"

// StreamPacket is what StreamRx hands the host for each received RTP
// payload: header fields already projected onto the monotone extended
// counters, with any header-extension bytes left to the caller to inspect
// via the wire/rtp.Packet if needed.
type StreamPacket struct {
	SSRC              uint32
	ExtendedSeq       uint64
	ExtendedTimestamp uint64
	PayloadType       uint8
	Marker            bool
	Payload           []byte
}

const (
	// RRIntervalVideo is the regular RTCP report cadence for video streams
	// (spec §4.4).
	RRIntervalVideo = time.Second
	// RRIntervalAudio is the regular RTCP report cadence for audio streams
	// (spec §4.4).
	RRIntervalAudio = 5 * time.Second
)
