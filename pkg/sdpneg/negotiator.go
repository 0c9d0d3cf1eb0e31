package sdpneg

import (
	"strconv"

	"github.com/sansrtc/core/pkg/wire"
)

// Direction is an m-line's declared media direction.
type Direction int

const (
	SendRecv Direction = iota
	SendOnly
	RecvOnly
	Inactive
)

// OfferedCodec is the wire-level shape of one codec entry inside an offer
// or answer: just the PT and the spec it names, isomorphic to an
// `a=rtpmap`/`a=fmtp` pair.
type OfferedCodec struct {
	PT   uint8
	Spec CodecSpec
}

// MediaOffer is the opaque offer blob for one m-line, produced by
// AddMedia and consumed by AcceptOffer (spec §6: "add_media(kind,
// direction) -> produces an opaque offer blob").
type MediaOffer struct {
	Mid       string
	Kind      MediaKind
	Direction Direction
	Codecs    []OfferedCodec
	ExtMap    *ExtensionMap
}

// MediaAnswer is the opaque answer blob, produced by AcceptOffer and
// consumed by AcceptAnswer.
type MediaAnswer struct {
	Mid       string
	Kind      MediaKind
	Direction Direction
	Codecs    []OfferedCodec
	ExtMap    *ExtensionMap
	Disabled  bool // true when no codec intersection exists (spec §4.7.4)
}

// PendingOffer correlates an offer this endpoint sent with the matching
// AcceptAnswer call (spec §6: "accept_answer(pending, blob)").
type PendingOffer struct {
	Mid  string
	Kind MediaKind
}

// mediaState is what a Negotiator remembers about one m-line beyond its
// codec_config (which is shared per MediaKind, not per m-line, matching
// str0m's model where CodecConfig is Rtc-wide).
type mediaState struct {
	kind      MediaKind
	direction Direction
	remotePTs []uint8
	extMap    *ExtensionMap
	disabled  bool
}

// Negotiator is one endpoint's side of offer/answer reconciliation: its
// per-kind codec_config (authoritative order, spec §4.7), its extension
// map, and the per-mid state produced by each negotiation round.
type Negotiator struct {
	codecs map[MediaKind]*CodecConfig
	extMap *ExtensionMap
	media  map[string]*mediaState
	nextID int
}

// NewNegotiator creates a Negotiator with empty codec configs and the
// standard extension map (spec §6: codec_config().add_config(...) and
// extension_map() populate/replace these after construction).
func NewNegotiator() *Negotiator {
	return &Negotiator{
		codecs: map[MediaKind]*CodecConfig{Audio: NewCodecConfig(), Video: NewCodecConfig()},
		extMap: StandardExtensionMap(),
		media:  make(map[string]*mediaState),
	}
}

// CodecConfig returns the mutable codec configuration for kind (spec §6:
// codec_config().add_config(pt, resend_pt, codec, clock_rate, channels,
// format)).
func (n *Negotiator) CodecConfig(kind MediaKind) *CodecConfig {
	return n.codecs[kind]
}

// ExtensionMap returns the current extension map (spec §6:
// extension_map() read/replace).
func (n *Negotiator) ExtensionMap() *ExtensionMap {
	return n.extMap
}

// SetExtensionMap replaces the extension map wholesale.
func (n *Negotiator) SetExtensionMap(m *ExtensionMap) {
	n.extMap = m
}

// RemotePTs returns the remote payload types a prior negotiation round
// recorded for mid, in the order the peer or this endpoint produced them
// (spec §4.7.2/§8 scenarios).
func (n *Negotiator) RemotePTs(mid string) []uint8 {
	if s, ok := n.media[mid]; ok {
		return s.remotePTs
	}
	return nil
}

// Disabled reports whether mid's m-line was disabled by a no-intersection
// negotiation (spec §4.7.4).
func (n *Negotiator) Disabled(mid string) bool {
	s, ok := n.media[mid]
	return ok && s.disabled
}

func (n *Negotiator) nextMid() string {
	n.nextID++
	return strconv.Itoa(n.nextID)
}

// AddMedia creates a new m-line and produces the offer blob for it (spec
// §6: "sdp_api().add_media(kind, direction) -> produces an opaque offer
// blob"). The returned PendingOffer must be kept and passed to
// AcceptAnswer once the remote answer arrives.
func (n *Negotiator) AddMedia(kind MediaKind, direction Direction) (MediaOffer, PendingOffer) {
	mid := n.nextMid()
	n.media[mid] = &mediaState{kind: kind, direction: direction}
	offer := MediaOffer{
		Mid:       mid,
		Kind:      kind,
		Direction: direction,
		Codecs:    n.codecs[kind].snapshot(),
		ExtMap:    n.extMap,
	}
	return offer, PendingOffer{Mid: mid, Kind: kind}
}

// AcceptOffer reconciles an incoming offer against this endpoint's codec
// config and extension map, producing an answer (spec §6:
// "accept_offer(blob) -> answer").
//
// PT adoption: for each offered codec this endpoint also supports (by
// spec, not PT), its local PT is overwritten with the offered PT and
// locked, unless it is already locked. Ordering: the answer lists codecs
// in this endpoint's own preferred order, restricted to the intersection
// (spec §4.7.2/.3). remote_pts on this side keeps the offer's order,
// narrowed to the codecs this endpoint supports.
func (n *Negotiator) AcceptOffer(offer MediaOffer) MediaAnswer {
	local := n.codecs[offer.Kind]

	var answerCodecs []OfferedCodec
	matched := make(map[CodecSpec]bool, len(offer.Codecs))
	for _, lp := range local.params {
		for _, oc := range offer.Codecs {
			if !lp.Spec.Matches(oc.Spec) {
				continue
			}
			// A locked PT never changes value across renegotiation rounds
			// (spec §3/§8); only adopt the offered PT the first time.
			if !lp.Locked {
				lp.PT = oc.PT
				lp.Locked = true
			}
			answerCodecs = append(answerCodecs, OfferedCodec{PT: lp.PT, Spec: lp.Spec})
			matched[oc.Spec] = true
			break
		}
	}

	// remote_pts reflects the offer's order, narrowed to the codecs this
	// endpoint actually supports (spec §4.7.2/.3; confirmed by
	// original_source/tests/sdp-negotiation.rs's answer_narrow scenario,
	// where the answerer's remote_pts omits the unsupported codec rather
	// than listing the offer unfiltered).
	remotePTs := make([]uint8, 0, len(offer.Codecs))
	for _, oc := range offer.Codecs {
		if matched[oc.Spec] {
			remotePTs = append(remotePTs, oc.PT)
		}
	}

	disabled := len(answerCodecs) == 0
	var answerExt *ExtensionMap
	if !disabled {
		answerExt = negotiateExtensions(offer.ExtMap, n.extMap, offer.Kind)
	}

	state := &mediaState{
		kind:      offer.Kind,
		direction: offer.Direction,
		remotePTs: remotePTs,
		extMap:    answerExt,
		disabled:  disabled,
	}
	if disabled {
		// No intersection: "both sides retain their original unlocked
		// codec_config and empty remote_pts" (spec §4.7.4) — nothing was
		// locked above since the inner loop never matched, and we record
		// no remote_pts for this side either.
		state.remotePTs = nil
	}
	n.media[offer.Mid] = state

	return MediaAnswer{
		Mid:       offer.Mid,
		Kind:      offer.Kind,
		Direction: offer.Direction,
		Codecs:    answerCodecs,
		ExtMap:    answerExt,
		Disabled:  disabled,
	}
}

// AcceptAnswer completes a negotiation round this endpoint initiated (spec
// §6: "accept_answer(pending, blob) completes the round"). The offerer's
// matching PT is locked for every codec the answer carries; remote_pts on
// this side reflects the answer's order (the answerer's preferred order
// restricted to the intersection, per spec §4.7.2/.3).
func (n *Negotiator) AcceptAnswer(pending PendingOffer, answer MediaAnswer) error {
	state, ok := n.media[pending.Mid]
	if !ok {
		return wire.StateViolation("accept_answer", "no pending offer for mid "+pending.Mid)
	}

	local := n.codecs[pending.Kind]

	if answer.Disabled {
		state.remotePTs = nil
		state.disabled = true
		return nil
	}

	remotePTs := make([]uint8, 0, len(answer.Codecs))
	for _, ac := range answer.Codecs {
		remotePTs = append(remotePTs, ac.PT)
		if lp, found := local.FindByPT(ac.PT); found {
			lp.Locked = true
			continue
		}
		if lp, found := local.FindBySpec(ac.Spec); found && !lp.Locked {
			// A locked PT never changes value across renegotiation rounds
			// (spec §3/§8); a second round naming a different PT for an
			// already-locked codec must not relock it.
			lp.PT = ac.PT
			lp.Locked = true
		}
	}

	state.remotePTs = remotePTs
	state.extMap = answer.ExtMap
	state.disabled = false
	return nil
}
