// Package session implements the sans-I/O driver of spec §4.8: the
// monotonic clock reference, inbound-datagram classification, and the
// next-wake computation across the ICE agent, the SDP negotiator, and the
// stream engine. It is the glue component (H in spec §2's dependency
// table) — new code, since str0m's equivalent (its Rtc/RtcClient) is the
// origin this spec distills but is not itself retrievable source; grounded
// directly on spec.md §4.8/§5/§6.
package session

import (
	"time"

	"github.com/pion/logging"
	"github.com/pion/rtcp"

	"github.com/sansrtc/core/pkg/ice"
	"github.com/sansrtc/core/pkg/sdpneg"
	"github.com/sansrtc/core/pkg/stream"
	"github.com/sansrtc/core/pkg/streams"
	"github.com/sansrtc/core/pkg/wire"
	wirertcp "github.com/sansrtc/core/pkg/wire/rtcp"
	wirertp "github.com/sansrtc/core/pkg/wire/rtp"
	"github.com/sansrtc/core/pkg/wire/stun"
)

// Config configures a Session (spec §4.9's config-struct idiom).
type Config struct {
	Controlling       bool
	Aggressive        bool
	UnknownSsrcQueue  int
	Logger            logging.LeveledLogger
	PeerStatsInterval time.Duration
}

// DefaultConfig returns the defaults: controlled role, regular nomination,
// and UnknownSsrcQueue set to 100. No unknown-SSRC queue is kept:
// handleRTP drops packets for an SSRC with no receive stream.
func DefaultConfig() Config {
	return Config{
		UnknownSsrcQueue:  wire.DefaultUnknownSsrcQueue,
		Logger:            logging.NewDefaultLoggerFactory().NewLogger("session"),
		PeerStatsInterval: 1 * time.Second,
	}
}

// Input is one of the two inbound kinds the host feeds the core (spec §6).
// Exactly one of Timeout/Receive is set.
type Input struct {
	Timeout *time.Time
	Receive *ReceiveInput
}

// ReceiveInput is an opaque inbound datagram (spec §6: "Receive(source_addr,
// destination_addr, bytes)").
type ReceiveInput struct {
	Source, Destination string
	Data                []byte
}

// OutputKind discriminates poll_output's three result shapes (spec §6).
type OutputKind int

const (
	OutputTransmit OutputKind = iota
	OutputTimeout
	OutputEvent
)

// Output is one item poll_output yields.
type Output struct {
	Kind     OutputKind
	Transmit Transmit
	Timeout  time.Time
	Event    Event
}

// Transmit is an outbound datagram the host must send (spec §6).
type Transmit struct {
	Source, Destination string
	Data                []byte
}

// EventKind enumerates the application-visible event kinds (spec §6).
type EventKind int

const (
	EventMediaPacket EventKind = iota
	EventIceStateChange
	EventPeerStats
)

// Event is an application-visible notification from poll_output.
type Event struct {
	Kind        EventKind
	MediaPacket stream.StreamPacket
	IceState    ice.AgentState
	IceStats    ice.Stats
	PeerStats   []stream.Stats
}

// Session is the single-threaded state machine driving one peer connection
// (spec §5: "single-threaded and cooperative"). Every mutation happens
// inside HandleInput, the HandleAPI methods, or PollOutput; none of them
// spawn goroutines or touch a shared clock other than the `now` they are
// given.
type Session struct {
	config Config
	logger logging.LeveledLogger

	ice *ice.Agent
	neg *sdpneg.Negotiator
	reg *streams.Registry

	lastPeerStatsAt time.Time

	events           []Event
	pendingTransmits []Transmit

	lastIceState ice.AgentState
}

// New creates a Session. config.Controlling seeds the agent's initial role
// belief; SetControlling may still flip it later (spec §6 control API).
func New(config Config) *Session {
	if config.Logger == nil {
		config.Logger = logging.NewDefaultLoggerFactory().NewLogger("session")
	}
	agentCfg := ice.AgentConfig{Aggressive: config.Aggressive, Logger: config.Logger}
	agent := ice.NewAgent(agentCfg)
	agent.SetControlling(config.Controlling)

	return &Session{
		config: config,
		logger: config.Logger,
		ice:    agent,
		neg:    sdpneg.NewNegotiator(),
		reg:    streams.NewRegistry(),
	}
}

// ICE exposes the underlying agent for statistics/state inspection (spec
// §6: "Statistics are exposed as a plain value snapshot").
func (s *Session) ICE() *ice.Agent { return s.ice }

// Negotiator exposes the SDP negotiator for codec_config/extension_map
// control-API calls (spec §6).
func (s *Session) Negotiator() *sdpneg.Negotiator { return s.neg }

// Streams exposes the registry for host-driven WriteMedia/read paths.
func (s *Session) Streams() *streams.Registry { return s.reg }

// HandleInput processes one inbound Timeout or Receive (spec §6). Parse
// and integrity failures are absorbed per spec §7: they are never
// returned to the caller, only logged; no drop counter is kept.
func (s *Session) HandleInput(now time.Time, in Input) error {
	switch {
	case in.Timeout != nil:
		return nil // timers carry no payload; PollOutput re-derives everything from now
	case in.Receive != nil:
		return s.handleReceive(now, in.Receive)
	default:
		return wire.Fatal("HandleInput called with neither Timeout nor Receive set")
	}
}

// datagramKind is the tagged variant of spec §9 ("Polymorphism over
// datagram kinds"), produced by first-byte classification (spec §4.8).
type datagramKind int

const (
	datagramStun datagramKind = iota
	datagramDTLS
	datagramRTP
	datagramRTCP
	datagramUnknown
)

func classify(data []byte) datagramKind {
	if len(data) == 0 {
		return datagramUnknown
	}
	b0 := data[0]
	switch {
	case b0 <= 3:
		return datagramStun
	case b0 >= 20 && b0 <= 63:
		return datagramDTLS
	case b0 >= 128 && b0 <= 191:
		if len(data) >= 2 && data[1] >= 64 && data[1] <= 95 {
			return datagramRTCP
		}
		return datagramRTP
	default:
		return datagramUnknown
	}
}

func (s *Session) handleReceive(now time.Time, in *ReceiveInput) error {
	switch classify(in.Data) {
	case datagramStun:
		return s.handleStun(now, in)
	case datagramRTP:
		s.handleRTP(now, in)
		return nil
	case datagramRTCP:
		s.handleRTCP(now, in)
		return nil
	case datagramDTLS:
		// DTLS is an external collaborator (spec §1); the session only
		// classifies it so the host can route it to the crypto layer.
		return nil
	default:
		s.logger.Debugf("session: dropping unclassifiable datagram from %s", in.Source)
		return nil
	}
}

func (s *Session) handleStun(now time.Time, in *ReceiveInput) error {
	msg, err := stun.Decode(in.Data)
	if err != nil {
		s.logger.Debugf("session: %v", err)
		return nil
	}
	resp, err := s.ice.HandleMessage(now, in.Source, in.Destination, msg, in.Data)
	if err != nil {
		return err
	}
	for _, tx := range resp {
		s.pendingTransmits = append(s.pendingTransmits, Transmit{Source: tx.SourceAddr, Destination: tx.DestAddr, Data: tx.Data})
	}
	return nil
}

func (s *Session) handleRTP(now time.Time, in *ReceiveInput) {
	pkt, err := wirertp.Parse(in.Data)
	if err != nil {
		s.logger.Debugf("session: %v", err)
		return
	}
	rx, ok := s.reg.Rx(pkt.SSRC)
	if !ok {
		// Spec §7: an incoming RTP packet with no matching RX stream is an
		// UnknownSsrc, buffered pending a media-line binding. This engine
		// has nowhere to buffer it to before the host calls ExpectRx (no
		// m-line exists yet to bind it against), so it is dropped and
		// counted via the log rather than grown into an unbounded queue.
		s.logger.Debugf("session: %v", wire.UnknownSsrc(pkt.SSRC))
		return
	}
	streamPkt := rx.HandleRTP(pkt, now)
	s.events = append(s.events, Event{Kind: EventMediaPacket, MediaPacket: streamPkt})
}

func (s *Session) handleRTCP(now time.Time, in *ReceiveInput) {
	pkts, err := wirertcp.ParseCompound(in.Data)
	if err != nil {
		s.logger.Debugf("session: %v", err)
		return
	}
	for _, p := range pkts {
		s.applyRTCP(now, in, p)
	}
}

// applyRTCP dispatches on the concrete pion/rtcp packet type, acting on
// the kinds this engine consumes directly (SR updates DLSR bookkeeping on
// the matching Rx; NACK triggers an RTX resend from the Tx cache). Other
// compound members (e.g. SDES) are ignored: nothing in the stream engine
// needs them.
func (s *Session) applyRTCP(now time.Time, in *ReceiveInput, p rtcp.Packet) {
	switch pkt := p.(type) {
	case *rtcp.SenderReport:
		if rx, ok := s.reg.Rx(pkt.SSRC); ok {
			rx.OnSenderReport(uint32(pkt.NTPTime>>16), now)
		}
	case *rtcp.TransportLayerNack:
		tx, ok := s.reg.Tx(pkt.MediaSSRC)
		if !ok {
			return
		}
		for _, seq := range wirertcp.NackedSequences(pkt) {
			if data, found := tx.Resend(seq); found {
				s.pendingTransmits = append(s.pendingTransmits, Transmit{Source: in.Destination, Destination: in.Source, Data: data})
			}
		}
	case *rtcp.PictureLossIndication:
		s.events = append(s.events, Event{Kind: EventPeerStats})
	}
}

// WriteMedia assigns a sequence number, builds the RTP packet, and returns
// the wire bytes to transmit — gated by ICE nomination (spec §1: "an ICE
// pair becoming nominated gates RTP egress"). ok is false if no pair for
// component has been nominated yet; the host must not send in that case.
func (s *Session) WriteMedia(component uint8, ssrc uint32, pt uint8, marker bool, timestamp uint32, payload []byte, now time.Time) (tx Transmit, ok bool, err error) {
	pair, nominated := s.ice.NominatedPair(component)
	if !nominated {
		return Transmit{}, false, nil
	}
	txStream, found := s.reg.Tx(ssrc)
	if !found {
		return Transmit{}, false, wire.StateViolation("WriteMedia", "no declared Tx stream for ssrc")
	}
	data, err := txStream.WritePacket(pt, marker, timestamp, payload, now)
	if err != nil {
		return Transmit{}, false, err
	}
	return Transmit{Source: pair.Local.Address, Destination: pair.Remote.Address, Data: data}, true, nil
}

// PollOutput drains every ready output — queued transmits, due RTCP
// feedback, ICE state-change events, and periodic peer-stats snapshots —
// then returns the next instant the host should wake the core at (spec §6:
// "poll_output(now) -> transmit | timeout | event", §4.8's next-wake
// aggregation).
func (s *Session) PollOutput(now time.Time) ([]Output, time.Time) {
	var out []Output

	for _, tx := range s.pendingTransmits {
		out = append(out, Output{Kind: OutputTransmit, Transmit: tx})
	}
	s.pendingTransmits = nil

	iceTx, iceDeadline, iceHasDeadline := s.ice.Poll(now)
	for _, tx := range iceTx {
		out = append(out, Output{Kind: OutputTransmit, Transmit: Transmit{Source: tx.SourceAddr, Destination: tx.DestAddr, Data: tx.Data}})
	}
	for _, ev := range s.ice.Events() {
		if ev.Kind == ice.EventStateChange {
			s.events = append(s.events, Event{Kind: EventIceStateChange, IceState: ev.State, IceStats: s.ice.Stats()})
		}
	}

	out = append(out, s.pollFeedback(now)...)
	s.pollPeerStats(now)

	for _, ev := range s.events {
		out = append(out, Output{Kind: OutputEvent, Event: ev})
	}
	s.events = nil

	deadline, hasDeadline := s.nextWake(now, iceDeadline, iceHasDeadline)
	if hasDeadline {
		out = append(out, Output{Kind: OutputTimeout, Timeout: deadline})
	}
	return out, deadline
}

// pollFeedback emits NACKs and compound RR/SR packets for every stream
// whose deadline is due (spec §4.4/§4.5).
func (s *Session) pollFeedback(now time.Time) []Output {
	var out []Output

	for ssrc, rx := range s.reg.RxStreams() {
		for _, seq := range rx.DueNacks(now) {
			if _, ok := s.reg.Tx(ssrc); !ok {
				continue // no companion Tx to resend against; nothing to NACK for
			}
			data, err := wirertcp.BuildNack(ssrc, ssrc, []uint16{uint16(seq)})
			if err != nil {
				continue
			}
			out = append(out, Output{Kind: OutputTransmit, Transmit: Transmit{Data: data}})
		}
		if !rx.FeedbackAt().After(now) {
			block := rx.BuildReportBlock(now)
			data, err := wirertcp.BuildReceiverReport(ssrc, []wirertcp.ReceptionReport{block})
			if err == nil {
				out = append(out, Output{Kind: OutputTransmit, Transmit: Transmit{Data: data}})
			}
			rx.MarkReportSent(now)
		}
	}

	for _, tx := range s.reg.TxStreams() {
		if !tx.FeedbackAt().After(now) {
			ntpTime := uint64(now.UnixNano())
			data, err := tx.BuildSenderReport(now, ntpTime, uint32(now.UnixNano()), nil)
			if err == nil {
				out = append(out, Output{Kind: OutputTransmit, Transmit: Transmit{Data: data}})
			}
			tx.MarkReportSent(now)
		}
	}

	return out
}

// pollPeerStats emits a snapshot of every receive pipeline's reception
// bookkeeping (packets received, jitter, highest sequence) once per
// PeerStatsInterval, for hosts that want visibility into link quality
// without the session driver owning any congestion-control policy itself
// (spec §6: "Statistics are exposed as a plain value snapshot").
func (s *Session) pollPeerStats(now time.Time) {
	if !s.lastPeerStatsAt.IsZero() && now.Sub(s.lastPeerStatsAt) < s.config.PeerStatsInterval {
		return
	}
	rxStreams := s.reg.RxStreams()
	if len(rxStreams) == 0 {
		return
	}
	stats := make([]stream.Stats, 0, len(rxStreams))
	for _, rx := range rxStreams {
		stats = append(stats, rx.Stats())
	}
	s.lastPeerStatsAt = now
	s.events = append(s.events, Event{Kind: EventPeerStats, PeerStats: stats})
}

// nextWake computes the minimum of every pending deadline (spec §4.8):
// ICE's next check, the streams registry's regular feedback/NACK
// deadlines, and the peer-stats interval.
func (s *Session) nextWake(now, iceDeadline time.Time, iceHas bool) (time.Time, bool) {
	best := time.Time{}
	found := false
	consider := func(t time.Time, ok bool) {
		if !ok {
			return
		}
		if !found || t.Before(best) {
			best, found = t, true
		}
	}

	consider(iceDeadline, iceHas)
	consider(s.reg.RegularFeedbackAt())
	consider(s.reg.NextNackDeadline())
	consider(now.Add(s.config.PeerStatsInterval), s.reg.IsReceiving())

	return best, found
}
