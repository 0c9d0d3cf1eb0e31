// Package rtcp builds and parses the compound RTCP packets the stream
// engine needs: SR (200), RR (201), generic NACK (205/FMT=1), and PLI
// (206/FMT=1). It wraps github.com/pion/rtcp, grounded directly on the
// teacher's own remb.go (which wraps rtcp.ReceiverEstimatedMaximumBitrate
// the same way) and the pack's NACK interceptors (rtcp.TransportLayerNack,
// rtcp.NackPair).
package rtcp

import (
	"github.com/pion/rtcp"

	"github.com/sansrtc/core/pkg/wire"
)

// ReceptionReport mirrors one block of an RFC 3550 RR/SR report.
type ReceptionReport struct {
	SSRC               uint32
	FractionLost       uint8
	TotalLost          uint32
	LastSequence       uint32
	Jitter             uint32
	LastSR             uint32
	DelaySinceLastSR   uint32 // DLSR, in units of 1/65536 seconds
}

// BuildReceiverReport marshals an RR packet.
func BuildReceiverReport(senderSSRC uint32, reports []ReceptionReport) ([]byte, error) {
	rr := &rtcp.ReceiverReport{
		SSRC:    senderSSRC,
		Reports: toReceptionReports(reports),
	}
	out, err := rr.Marshal()
	if err != nil {
		return nil, wire.Malformed("rtcp", 0, err.Error())
	}
	return out, nil
}

// BuildSenderReport marshals an SR packet.
func BuildSenderReport(senderSSRC uint32, ntpTime uint64, rtpTime, packetCount, octetCount uint32, reports []ReceptionReport) ([]byte, error) {
	sr := &rtcp.SenderReport{
		SSRC:        senderSSRC,
		NTPTime:     ntpTime,
		RTPTime:     rtpTime,
		PacketCount: packetCount,
		OctetCount:  octetCount,
		Reports:     toReceptionReports(reports),
	}
	out, err := sr.Marshal()
	if err != nil {
		return nil, wire.Malformed("rtcp", 0, err.Error())
	}
	return out, nil
}

// BuildNack marshals a generic NACK (RTPFB, FMT=1) packet for the given
// missing sequence numbers, grouping them into NackPair bitmasks the same
// way the pack's receiver_nack.go interceptor does.
func BuildNack(senderSSRC, mediaSSRC uint32, missing []uint16) ([]byte, error) {
	if len(missing) == 0 {
		return nil, wire.Malformed("rtcp", 0, "nack requires at least one missing sequence")
	}
	nack := &rtcp.TransportLayerNack{
		SenderSSRC: senderSSRC,
		MediaSSRC:  mediaSSRC,
		Nacks:      nackPairs(missing),
	}
	out, err := nack.Marshal()
	if err != nil {
		return nil, wire.Malformed("rtcp", 0, err.Error())
	}
	return out, nil
}

// BuildPLI marshals a Picture Loss Indication (PSFB, FMT=1) packet.
func BuildPLI(senderSSRC, mediaSSRC uint32) ([]byte, error) {
	pli := &rtcp.PictureLossIndication{SenderSSRC: senderSSRC, MediaSSRC: mediaSSRC}
	out, err := pli.Marshal()
	if err != nil {
		return nil, wire.Malformed("rtcp", 0, err.Error())
	}
	return out, nil
}

// ParseCompound walks a compound RTCP packet, rejecting any inner length
// that would overrun the compound envelope (spec §4.1). pion/rtcp already
// enforces this in rtcp.Unmarshal; failures are reported as Malformed.
func ParseCompound(data []byte) ([]rtcp.Packet, error) {
	pkts, err := rtcp.Unmarshal(data)
	if err != nil {
		return nil, wire.Malformed("rtcp", 0, err.Error())
	}
	return pkts, nil
}

// NackedSequences extracts every sequence number named by a
// TransportLayerNack's NackPair bitmasks.
func NackedSequences(nack *rtcp.TransportLayerNack) []uint16 {
	var seqs []uint16
	for _, pair := range nack.Nacks {
		seqs = append(seqs, pair.PacketID)
		for i := 0; i < 16; i++ {
			if pair.LostPackets&(1<<uint(i)) != 0 {
				seqs = append(seqs, pair.PacketID+uint16(i)+1)
			}
		}
	}
	return seqs
}

func nackPairs(seqNums []uint16) []rtcp.NackPair {
	pairs := make([]rtcp.NackPair, 0, len(seqNums))
	pair := rtcp.NackPair{PacketID: seqNums[0]}
	for i := 1; i < len(seqNums); i++ {
		seq := seqNums[i]
		delta := seq - pair.PacketID
		if delta > 16 {
			pairs = append(pairs, pair)
			pair = rtcp.NackPair{PacketID: seq}
			continue
		}
		pair.LostPackets |= 1 << (delta - 1)
	}
	pairs = append(pairs, pair)
	return pairs
}

func toReceptionReports(reports []ReceptionReport) []rtcp.ReceptionReport {
	out := make([]rtcp.ReceptionReport, len(reports))
	for i, r := range reports {
		out[i] = rtcp.ReceptionReport{
			SSRC:               r.SSRC,
			FractionLost:       r.FractionLost,
			TotalLost:          r.TotalLost,
			LastSequenceNumber: r.LastSequence,
			Jitter:             r.Jitter,
			LastSenderReport:   r.LastSR,
			Delay:              r.DelaySinceLastSR,
		}
	}
	return out
}
