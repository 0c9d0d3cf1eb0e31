// Package sdpneg implements the offer/answer codec and extension
// reconciliation of spec §4.7: PT adoption, stable ordering, narrowing, and
// extension id renumbering. It is spec-novel — str0m (the Rust original
// this spec distills) is the only prior art, so the reconciliation rules
// are hand-written against spec.md §4.7/§8 and
// original_source/tests/sdp-negotiation.rs, which pin down the exact
// per-scenario expectations spec.md only states declaratively. SDP text
// serialization itself stays an external collaborator (spec §1); this
// package exchanges structured Offer/Answer values isomorphic to SDP
// m-lines rather than strings.
package sdpneg

// CodecSpec identifies a codec independent of its negotiated payload type:
// name, clock rate, channel count (audio only), and any extra format
// parameters (spec §3: PayloadParams.spec).
type CodecSpec struct {
	Codec     string
	ClockRate uint32
	Channels  uint8 // 0 means "not applicable" (video)
	Format    string
}

// Matches reports whether two specs identify the same codec for the
// purpose of offer/answer matching: same codec name, clock rate and
// format; channel count only compared when either side sets it.
func (s CodecSpec) Matches(o CodecSpec) bool {
	if s.Codec != o.Codec || s.ClockRate != o.ClockRate || s.Format != o.Format {
		return false
	}
	if s.Channels != 0 && o.Channels != 0 && s.Channels != o.Channels {
		return false
	}
	return true
}

// PayloadParams is one negotiable codec entry (spec §3): a payload type,
// an optional RTX (resend) payload type, the codec spec, and whether an
// offer/answer round has already fixed its PT.
type PayloadParams struct {
	PT       uint8
	ResendPT *uint8
	Spec     CodecSpec
	Locked   bool
}

// CodecConfig is an ordered list of PayloadParams for one media kind,
// preserving the owner's preferred order (spec §4.7: "the offerer's codec
// order is authoritative in its own codec_config").
type CodecConfig struct {
	params []*PayloadParams
}

// NewCodecConfig returns an empty codec configuration.
func NewCodecConfig() *CodecConfig {
	return &CodecConfig{}
}

// Add appends a new codec entry in unlocked state (spec §6: control API
// codec_config().add_config(...)).
func (c *CodecConfig) Add(pt uint8, resendPT *uint8, codec string, clockRate uint32, channels uint8, format string) *PayloadParams {
	p := &PayloadParams{
		PT:       pt,
		ResendPT: resendPT,
		Spec:     CodecSpec{Codec: codec, ClockRate: clockRate, Channels: channels, Format: format},
	}
	c.params = append(c.params, p)
	return p
}

// Params returns every entry in configured order. Callers may mutate the
// returned PayloadParams in place (e.g. to lock a PT); the slice itself
// must not be reordered by the caller.
func (c *CodecConfig) Params() []*PayloadParams {
	return c.params
}

// FindBySpec returns the entry matching spec, if any, regardless of its
// current PT (used when adopting a remote PT for an already-known codec).
func (c *CodecConfig) FindBySpec(spec CodecSpec) (*PayloadParams, bool) {
	for _, p := range c.params {
		if p.Spec.Matches(spec) {
			return p, true
		}
	}
	return nil, false
}

// FindByPT returns the entry currently holding pt, if any.
func (c *CodecConfig) FindByPT(pt uint8) (*PayloadParams, bool) {
	for _, p := range c.params {
		if p.PT == pt {
			return p, true
		}
	}
	return nil, false
}

// snapshot copies the current PT values in order, for building an offer or
// reading remote_pts after a round.
func (c *CodecConfig) snapshot() []OfferedCodec {
	out := make([]OfferedCodec, 0, len(c.params))
	for _, p := range c.params {
		out = append(out, OfferedCodec{PT: p.PT, Spec: p.Spec})
	}
	return out
}
