package ice

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"sort"
	"time"

	"github.com/pion/logging"

	"github.com/sansrtc/core/pkg/wire/stun"
)

// AgentState is the aggregate connectivity state (spec §4.6).
type AgentState int

const (
	New AgentState = iota
	Checking
	Connected
	Completed
	Disconnected
)

func (s AgentState) String() string {
	switch s {
	case New:
		return "new"
	case Checking:
		return "checking"
	case Connected:
		return "connected"
	case Completed:
		return "completed"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Role is the ICE controlling/controlled role.
type Role int

const (
	Controlled Role = iota
	Controlling
)

// AgentConfig configures an Agent. Aggressive nomination is off by default
// (spec §4.6 distinguishes aggressive from regular; regular is the safer
// default for a from-scratch implementation).
type AgentConfig struct {
	Aggressive bool
	Logger     logging.LeveledLogger
}

// DefaultAgentConfig returns regular nomination with pion's default logger.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{Logger: logging.NewDefaultLoggerFactory().NewLogger("ice")}
}

// Stats are the testable counters of spec §4.6.
type Stats struct {
	BindRequestSent     int
	BindSuccessRecv     int
	BindRequestRecv     int
	DiscoveredRecvCount int
	NominationSendCount int
}

// Transmit is an outbound datagram the host must send.
type Transmit struct {
	SourceAddr, DestAddr string
	Data                 []byte
}

// EventKind enumerates the ICE-layer events poll_output surfaces.
type EventKind int

const (
	EventStateChange EventKind = iota
	EventNominated
)

// Event is an ICE-layer notification for the session's Event surface.
type Event struct {
	Kind       EventKind
	State      AgentState
	Component  uint8
	LocalAddr  string
	RemoteAddr string
}

// Agent is the per-session ICE connectivity-check state machine
// (spec §4.6, data model §3).
type Agent struct {
	config AgentConfig

	local  []Candidate
	remote []Candidate
	pairs  []*Pair

	role       Role
	tiebreaker uint64

	localUfrag, localPwd   string
	remoteUfrag, remotePwd string

	state AgentState
	stats Stats

	schedules map[*Pair]*retransmitSchedule

	events []Event
}

// NewAgent creates an Agent with freshly generated credentials and a
// random tiebreaker (spec §3: "tiebreaker (random 64-bit, stable for
// agent life)").
func NewAgent(config AgentConfig) *Agent {
	if config.Logger == nil {
		config.Logger = logging.NewDefaultLoggerFactory().NewLogger("ice")
	}
	return &Agent{
		config:     config,
		tiebreaker: randomUint64(),
		localUfrag: randomCredential(8),
		localPwd:   randomCredential(24),
		state:      New,
		schedules:  make(map[*Pair]*retransmitSchedule),
	}
}

func randomUint64() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint64(b[:])
}

func randomCredential(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)[:n]
}

// SetControlling sets the agent's initial role belief (spec §6 control API).
func (a *Agent) SetControlling(controlling bool) {
	if controlling {
		a.role = Controlling
	} else {
		a.role = Controlled
	}
}

// Role returns the agent's current role.
func (a *Agent) Role() Role { return a.role }

// LocalCredentials returns the local ufrag/password pair for SDP exchange.
func (a *Agent) LocalCredentials() (ufrag, pwd string) {
	return a.localUfrag, a.localPwd
}

// SetRemoteCredentials records the remote ufrag/password learned from SDP.
func (a *Agent) SetRemoteCredentials(ufrag, pwd string) {
	a.remoteUfrag, a.remotePwd = ufrag, pwd
}

// AddLocalCandidate adds a local candidate and forms any new pairs with
// already-known remote candidates (spec §6: add_local_candidate).
func (a *Agent) AddLocalCandidate(c Candidate) {
	a.local = append(a.local, c)
	for _, r := range a.remote {
		a.tryPair(c, r)
	}
	a.unfreeze()
}

// AddRemoteCandidate adds a remote candidate and forms any new pairs
// (spec §6: add_remote_candidate).
func (a *Agent) AddRemoteCandidate(c Candidate) {
	a.remote = append(a.remote, c)
	for _, l := range a.local {
		a.tryPair(l, c)
	}
	a.unfreeze()
}

func (a *Agent) tryPair(local, remote Candidate) {
	if !compatible(local, remote) {
		return
	}
	for _, p := range a.pairs {
		if p.Local == local && p.Remote == remote {
			return
		}
	}
	p := &Pair{Local: local, Remote: remote, state: Frozen, foundation: foundationKey(local, remote)}
	a.pairs = append(a.pairs, p)
}

// unfreeze promotes, within each foundation group, the single
// highest-priority Frozen pair to Waiting if no pair of that group is
// already active (Waiting/InProgress/Succeeded) (spec §4.6).
func (a *Agent) unfreeze() {
	groups := make(map[string][]*Pair)
	for _, p := range a.pairs {
		groups[p.foundation] = append(groups[p.foundation], p)
	}
	for _, g := range groups {
		active := false
		for _, p := range g {
			if p.state == Waiting || p.state == InProgress || p.state == Succeeded {
				active = true
				break
			}
		}
		if active {
			continue
		}
		var best *Pair
		for _, p := range g {
			if p.state != Frozen {
				continue
			}
			if best == nil || p.Priority(a.role == Controlling) > best.Priority(a.role == Controlling) {
				best = p
			}
		}
		if best != nil {
			best.state = Waiting
		}
	}
}

// orderedChecklist returns pairs ordered by descending pair priority
// (spec §3: "a single check list ordered by pair priority").
func (a *Agent) orderedChecklist() []*Pair {
	out := append([]*Pair(nil), a.pairs...)
	controlling := a.role == Controlling
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority(controlling) > out[j].Priority(controlling)
	})
	return out
}

// Poll drives pending STUN checks: transmitting due retransmissions,
// declaring pairs Failed once their schedule is exhausted, and
// recalculating the aggregate agent state. It returns the transmits the
// host must send and the next instant at which Poll should be called
// again.
func (a *Agent) Poll(now time.Time) ([]Transmit, time.Time, bool) {
	var transmits []Transmit

	for _, p := range a.orderedChecklist() {
		switch p.state {
		case Waiting:
			a.startCheck(p, now)
			transmits = append(transmits, a.sendCheck(p, now))
		case InProgress:
			sched := a.schedules[p]
			if sched == nil {
				continue
			}
			if !sched.due(now) {
				continue
			}
			shouldSend, failed := sched.advance(now)
			if failed {
				p.state = Failed
				delete(a.schedules, p)
				a.unfreeze()
				continue
			}
			if shouldSend {
				transmits = append(transmits, a.sendCheck(p, now))
			}
		case Succeeded:
			// Regular nomination (spec §4.6): the controlling agent sends
			// one modified check carrying USE-CANDIDATE once a pair has
			// succeeded and is the best candidate for its component.
			// Aggressive nomination already nominates on the original
			// check (see sendCheck/shouldNominate), so this only fires
			// for regular mode.
			if !a.config.Aggressive && !p.nominationSent && a.shouldNominate(p) {
				p.nominationSent = true
				transmits = append(transmits, a.sendCheck(p, now))
			}
		}
	}

	a.recomputeState()
	deadline, ok := a.nextDeadline()
	return transmits, deadline, ok
}

func (a *Agent) startCheck(p *Pair, now time.Time) {
	p.state = InProgress
	a.schedules[p] = newSchedule(p.srtt(), now)
}

func (a *Agent) sendCheck(p *Pair, now time.Time) Transmit {
	tx := stun.NewTransactionID()
	p.txID = tx
	p.hasTxID = true
	p.lastCheckSent = now

	b := stun.NewBuilder(stun.TypeBindingRequest, tx).
		Username(a.remoteUfrag+":"+a.localUfrag).
		Priority(p.Local.Priority)
	if a.role == Controlling {
		b = b.IceControlling(a.tiebreaker)
		if a.shouldNominate(p) {
			b = b.UseCandidate()
			a.stats.NominationSendCount++
		}
	} else {
		b = b.IceControlled(a.tiebreaker)
	}
	data := b.MessageIntegrity(a.remotePwd).Fingerprint().Build()

	a.stats.BindRequestSent++
	return Transmit{SourceAddr: p.Local.Address, DestAddr: p.Remote.Address, Data: data}
}

// shouldNominate reports whether this check should carry USE-CANDIDATE:
// the controlling agent nominates the highest-priority Succeeded pair
// once, or (aggressive mode) every outgoing check (spec §4.6).
func (a *Agent) shouldNominate(p *Pair) bool {
	if a.role != Controlling {
		return false
	}
	if a.config.Aggressive {
		return true
	}
	best := a.bestSucceeded(p.Local.Component)
	return best == p && !p.nominated
}

func (a *Agent) bestSucceeded(component uint8) *Pair {
	var best *Pair
	for _, p := range a.pairs {
		if p.state != Succeeded || p.Local.Component != component {
			continue
		}
		if best == nil || p.Priority(true) > best.Priority(true) {
			best = p
		}
	}
	return best
}

// HandleMessage processes an inbound STUN message already classified and
// parsed by the session driver (spec §6: Receive). srcAddr/dstAddr
// identify which candidates the datagram arrived on. Any transmits
// returned (e.g. a binding response) must be sent by the caller.
func (a *Agent) HandleMessage(now time.Time, srcAddr, dstAddr string, msg *stun.Message, raw []byte) ([]Transmit, error) {
	switch msg.Type {
	case stun.TypeBindingRequest:
		return a.handleRequest(now, srcAddr, dstAddr, msg, raw)
	case stun.TypeBindingSuccess:
		return nil, a.handleSuccess(now, srcAddr, dstAddr, msg, raw)
	default:
		return nil, nil
	}
}

func (a *Agent) handleRequest(now time.Time, srcAddr, dstAddr string, msg *stun.Message, raw []byte) ([]Transmit, error) {
	a.stats.BindRequestRecv++

	if err := stun.VerifyIntegrity(msg, raw, a.localPwd); err != nil {
		a.config.Logger.Debugf("ice: dropping binding request: %v", err)
		return nil, nil
	}

	a.resolveRole(msg)

	p := a.findPair(dstAddr, srcAddr)
	if p == nil {
		// Peer-reflexive discovery: the remote reached us from an address
		// we hadn't learned yet. Spec places discovery within the core's
		// scope; register it as a new remote candidate and pair it.
		pr := Candidate{Address: srcAddr, Kind: PeerReflexive, Priority: 0, Foundation: srcAddr, Component: 1}
		a.stats.DiscoveredRecvCount++
		a.AddRemoteCandidate(pr)
		p = a.findPair(dstAddr, srcAddr)
		if p == nil {
			return nil, nil
		}
	}

	if msg.UseCandidate() && a.role == Controlled {
		if p.state == Succeeded {
			a.promote(p)
		}
	}

	resp := stun.NewBuilder(stun.TypeBindingSuccess, msg.TransactionID).
		MessageIntegrity(a.localPwd).Fingerprint().Build()
	return []Transmit{{SourceAddr: dstAddr, DestAddr: srcAddr, Data: resp}}, nil
}

func (a *Agent) handleSuccess(now time.Time, srcAddr, dstAddr string, msg *stun.Message, raw []byte) error {
	p := a.findPairByTx(msg.TransactionID)
	if p == nil {
		return nil
	}
	if err := stun.VerifyIntegrity(msg, raw, a.remotePwd); err != nil {
		a.config.Logger.Debugf("ice: dropping binding success: %v", err)
		return nil
	}

	a.stats.BindSuccessRecv++
	rtt := now.Sub(p.lastCheckSent)
	p.rttSamples = append(p.rttSamples, rtt)
	p.state = Succeeded
	delete(a.schedules, p)
	a.unfreeze()

	if a.role == Controlling && (a.config.Aggressive || p.nominationSent) {
		a.promote(p)
	}
	return nil
}

// promote marks p nominated, demoting any previous nominee for the same
// component in the same tick (spec §3 invariant).
func (a *Agent) promote(p *Pair) {
	for _, other := range a.pairs {
		if other != p && other.Local.Component == p.Local.Component {
			other.nominated = false
		}
	}
	p.nominated = true
}

func (a *Agent) findPair(local, remote string) *Pair {
	for _, p := range a.pairs {
		if p.Local.Address == local && p.Remote.Address == remote {
			return p
		}
	}
	return nil
}

// findPairByTx matches a response to the pair whose latest check carried
// tx: an InProgress pair's connectivity check, or a Succeeded pair's
// regular-nomination check.
func (a *Agent) findPairByTx(tx stun.TransactionID) *Pair {
	for _, p := range a.pairs {
		if p.hasTxID && p.txID == tx && (p.state == InProgress || p.state == Succeeded) {
			return p
		}
	}
	return nil
}

// resolveRole implements simultaneous-controlling-role resolution
// (spec §4.6): if the request carries ICE-CONTROLLING while we also
// believe we're controlling, the higher tiebreaker wins.
func (a *Agent) resolveRole(msg *stun.Message) {
	if peerTb, ok := msg.IceControlling(); ok && a.role == Controlling {
		if peerTb > a.tiebreaker {
			a.role = Controlled
			a.unfreeze()
		}
	}
	if peerTb, ok := msg.IceControlled(); ok && a.role == Controlled {
		if peerTb < a.tiebreaker {
			a.role = Controlling
			a.unfreeze()
		}
	}
}

func (a *Agent) componentsNominated() bool {
	seen := make(map[uint8]bool)
	for _, p := range a.pairs {
		seen[p.Local.Component] = false
	}
	for _, p := range a.pairs {
		if p.nominated {
			seen[p.Local.Component] = true
		}
	}
	if len(seen) == 0 {
		return false
	}
	for _, ok := range seen {
		if !ok {
			return false
		}
	}
	return true
}

func (a *Agent) anyChecksPending() bool {
	for _, p := range a.pairs {
		if p.state == Waiting || p.state == InProgress {
			return true
		}
	}
	return false
}

func (a *Agent) anyNominated() bool {
	for _, p := range a.pairs {
		if p.nominated {
			return true
		}
	}
	return false
}

func (a *Agent) allFailed() bool {
	if len(a.pairs) == 0 {
		return false
	}
	for _, p := range a.pairs {
		if p.state != Failed {
			return false
		}
	}
	return true
}

// recomputeState implements the aggregate state machine of spec §4.6.
func (a *Agent) recomputeState() {
	prev := a.state
	switch {
	case a.allFailed():
		a.state = Disconnected
	case a.componentsNominated() && !a.anyChecksPending():
		a.state = Completed
	case a.anyNominated():
		a.state = Connected
	case a.anyChecksPending():
		a.state = Checking
	default:
		a.state = New
	}
	if a.state != prev {
		a.events = append(a.events, Event{Kind: EventStateChange, State: a.state})
	}
}

func (a *Agent) nextDeadline() (time.Time, bool) {
	var best time.Time
	found := false
	for p, sched := range a.schedules {
		_ = p
		if !found || sched.nextAt.Before(best) {
			best, found = sched.nextAt, true
		}
	}
	return best, found
}

// State returns the current aggregate agent state.
func (a *Agent) State() AgentState { return a.state }

// Stats returns a snapshot of the testable counters.
func (a *Agent) Stats() Stats { return a.stats }

// Events drains accumulated state-change events.
func (a *Agent) Events() []Event {
	ev := a.events
	a.events = nil
	return ev
}

// NominatedPair returns the nominated pair for component, if any — used by
// the session driver to gate RTP egress (spec §1: "an ICE pair becoming
// nominated gates RTP egress").
func (a *Agent) NominatedPair(component uint8) (*Pair, bool) {
	for _, p := range a.pairs {
		if p.nominated && p.Local.Component == component {
			return p, true
		}
	}
	return nil, false
}
