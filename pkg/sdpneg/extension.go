package sdpneg

// ExtensionKind enumerates the RTP header extension kinds this negotiator
// knows about. The set mirrors the entries exercised by
// original_source/tests/sdp-negotiation.rs's narrow_exts scenario.
type ExtensionKind int

const (
	ExtAudioLevel ExtensionKind = iota
	ExtAbsoluteSendTime
	ExtTransportSequenceNumber
	ExtRtpMid
	ExtRtpStreamID
	ExtRepairedRtpStreamID
	ExtVideoOrientation
)

// MediaKind distinguishes audio and video m-lines (spec §3: ExtensionMap
// "partitioned into audio-valid and video-valid subsets").
type MediaKind int

const (
	Audio MediaKind = iota
	Video
)

// validFor reports whether kind may appear on a mediaKind m-line. The
// partition is fixed by extension semantics, not overridable per entry:
// AudioLevel has no video use; VideoOrientation has no audio use; the rest
// (transport-wide feedback, mid, RTX stream ids) are valid on both.
func validFor(kind ExtensionKind, mediaKind MediaKind) bool {
	switch kind {
	case ExtAudioLevel:
		return mediaKind == Audio
	case ExtVideoOrientation:
		return mediaKind == Video
	default:
		return true
	}
}

// ExtensionMap is a mapping id (1..14) <-> extension kind (spec §3). Ids
// are unique within a map; negotiation never produces a duplicate id
// (enforced by construction in negotiateExtensions, which only ever assigns
// one id per surviving kind).
type ExtensionMap struct {
	byID   map[uint8]ExtensionKind
	byKind map[ExtensionKind]uint8
}

// NewExtensionMap returns an empty map.
func NewExtensionMap() *ExtensionMap {
	return &ExtensionMap{byID: make(map[uint8]ExtensionKind), byKind: make(map[ExtensionKind]uint8)}
}

// StandardExtensionMap returns the default id assignment most
// implementations ship: the ids used throughout
// original_source/tests/sdp-negotiation.rs's narrow_exts expectations.
func StandardExtensionMap() *ExtensionMap {
	m := NewExtensionMap()
	m.Set(1, ExtAudioLevel)
	m.Set(2, ExtAbsoluteSendTime)
	m.Set(3, ExtTransportSequenceNumber)
	m.Set(4, ExtRtpMid)
	m.Set(10, ExtRtpStreamID)
	m.Set(11, ExtRepairedRtpStreamID)
	return m
}

// Set assigns id to kind, replacing any previous assignment for either
// (spec §3 invariant: ids are unique within a map).
func (m *ExtensionMap) Set(id uint8, kind ExtensionKind) {
	if oldKind, ok := m.byID[id]; ok {
		delete(m.byKind, oldKind)
	}
	if oldID, ok := m.byKind[kind]; ok {
		delete(m.byID, oldID)
	}
	m.byID[id] = kind
	m.byKind[kind] = id
}

// IDFor returns the id assigned to kind in this map, if any.
func (m *ExtensionMap) IDFor(kind ExtensionKind) (uint8, bool) {
	id, ok := m.byKind[kind]
	return id, ok
}

// KindAt returns the kind assigned to id, if any.
func (m *ExtensionMap) KindAt(id uint8) (ExtensionKind, bool) {
	kind, ok := m.byID[id]
	return kind, ok
}

// filterValid returns the subset of this map's entries that are valid for
// mediaKind, as kind -> id.
func (m *ExtensionMap) filterValid(mediaKind MediaKind) map[ExtensionKind]uint8 {
	out := make(map[ExtensionKind]uint8)
	for kind, id := range m.byKind {
		if validFor(kind, mediaKind) {
			out[kind] = id
		}
	}
	return out
}

// Iter returns the (id, kind) pairs valid for mediaKind, for inspection in
// tests (mirrors str0m's `exts().iter(video_bool)`).
func (m *ExtensionMap) Iter(mediaKind MediaKind) []ExtensionEntry {
	valid := m.filterValid(mediaKind)
	out := make([]ExtensionEntry, 0, len(valid))
	for kind, id := range valid {
		out = append(out, ExtensionEntry{ID: id, Kind: kind})
	}
	return out
}

// ExtensionEntry is one (id, kind) pair.
type ExtensionEntry struct {
	ID   uint8
	Kind ExtensionKind
}

// negotiateExtensions reconciles two endpoints' extension maps for one
// media kind (spec §4.7: "Extension negotiation"). The surviving set is
// the intersection of kinds valid for mediaKind on both sides, each with
// the offerer's id. The second loop would keep the answerer's id for a kind
// the offerer has registered but that is missing from offererValid; since
// validity depends only on the kind (validFor) and a map holds one id per
// kind, that case does not arise, so every surviving kind takes the
// offerer's id.
func negotiateExtensions(offerer, answerer *ExtensionMap, mediaKind MediaKind) *ExtensionMap {
	offererValid := offerer.filterValid(mediaKind)
	answererValid := answerer.filterValid(mediaKind)

	result := NewExtensionMap()
	for kind, id := range offererValid {
		if _, ok := answererValid[kind]; ok {
			result.Set(id, kind)
		}
	}
	for kind, id := range answererValid {
		if _, already := result.IDFor(kind); already {
			continue
		}
		if _, inOffererValid := offererValid[kind]; inOffererValid {
			continue
		}
		if _, registeredAnywhere := offerer.IDFor(kind); registeredAnywhere {
			result.Set(id, kind)
		}
	}
	return result
}
