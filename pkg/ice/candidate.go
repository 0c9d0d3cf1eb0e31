// Package ice implements the candidate-pair connectivity-check state
// machine (spec §4.6): pairing, STUN binding checks with the RFC 5389
// retransmission schedule, role resolution, and nomination. It is the
// largest spec-novel package in the core — str0m itself (the Rust original
// this spec distills) is the only prior art, so the state machine is
// hand-written against spec.md §4.6 and original_source/ice/tests/
// drop-host.rs, using pkg/wire/stun for the wire format and crypto/rand for
// tiebreaker/ufrag/pwd generation (see DESIGN.md's "Reconsidered
// dependencies" for why pion/randutil was not adopted).
package ice

// Kind enumerates the candidate type hierarchy used by priority
// arbitration and pair formation (spec §3).
type Kind int

const (
	Host Kind = iota
	ServerReflexive
	PeerReflexive
	Relay
)

func (k Kind) String() string {
	switch k {
	case Host:
		return "host"
	case ServerReflexive:
		return "srflx"
	case PeerReflexive:
		return "prflx"
	case Relay:
		return "relay"
	default:
		return "unknown"
	}
}

// Candidate is an immutable connectivity endpoint, supplied by the host
// (or discovered via a peer-reflexive STUN response) rather than computed
// internally (spec §3: "Immutable once added").
type Candidate struct {
	Address    string // "ip:port", opaque to this package
	Kind       Kind
	Base       string
	Priority   uint32
	Foundation string
	Component  uint8
}

// compatible reports whether a local and remote candidate may form a pair:
// same component, same address family. Address family is inferred from the
// address string shape rather than parsed as net.IP, since the host may
// pass non-UDP-socket addresses in tests.
func compatible(local, remote Candidate) bool {
	if local.Component != remote.Component {
		return false
	}
	return addressFamily(local.Address) == addressFamily(remote.Address)
}

func addressFamily(addr string) int {
	for i := 0; i < len(addr); i++ {
		if addr[i] == ':' {
			// Count colons: more than one in total marks IPv6 (an IPv4
			// "ip:port" has exactly one). A cheap heuristic sufficient for
			// pairing.
			colons := 0
			for j := 0; j < len(addr); j++ {
				if addr[j] == ':' {
					colons++
				}
			}
			if colons > 1 {
				return 6
			}
			return 4
		}
	}
	return 4
}
