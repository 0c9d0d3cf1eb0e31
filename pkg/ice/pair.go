package ice

import (
	"time"

	"github.com/sansrtc/core/pkg/wire/stun"
)

// PairState is the connectivity-check lifecycle for one candidate pair
// (spec §4.6).
type PairState int

const (
	Frozen PairState = iota
	Waiting
	InProgress
	Succeeded
	Failed
)

func (s PairState) String() string {
	switch s {
	case Frozen:
		return "frozen"
	case Waiting:
		return "waiting"
	case InProgress:
		return "in-progress"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// pairHandle is an arena index type. The Agent does not use it: pairs live
// in a flat slice of *Pair on the Agent and are referenced by pointer
// (including as the key of its retransmission-schedule map).
type pairHandle int

// Pair is a candidate pair and its connectivity-check bookkeeping
// (spec §3).
type Pair struct {
	Local, Remote Candidate

	state      PairState
	nominated  bool
	foundation string // combined foundation-group key

	lastCheckSent time.Time
	txID          stun.TransactionID
	hasTxID       bool

	rttSamples []time.Duration

	consecutiveFailures int
	sendCount           int
	nextSendAt          time.Time
	exhausted           bool // all 9 sends issued, final wait elapsed

	nominationSent bool // regular nomination's modified check has gone out (spec §4.6)
}

// Priority computes the pair's derived priority (spec §3):
// min(local,remote)·2³² + max(local,remote)·2 + controlling_bit.
func (p *Pair) Priority(controlling bool) uint64 {
	lo := uint64(p.Local.Priority)
	hi := uint64(p.Remote.Priority)
	min, max := lo, hi
	if min > max {
		min, max = max, min
	}
	var bit uint64
	if controlling {
		bit = 1
	}
	return min<<32 + max*2 + bit
}

// State returns the pair's current lifecycle state.
func (p *Pair) State() PairState { return p.state }

// Nominated reports whether this pair currently carries the nomination for
// its (stream, component).
func (p *Pair) Nominated() bool { return p.nominated }

// RTT returns the most recent round-trip sample, if any.
func (p *Pair) RTT() (time.Duration, bool) {
	if len(p.rttSamples) == 0 {
		return 0, false
	}
	return p.rttSamples[len(p.rttSamples)-1], true
}

func (p *Pair) srtt() time.Duration {
	if len(p.rttSamples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, s := range p.rttSamples {
		sum += s
	}
	return sum / time.Duration(len(p.rttSamples))
}

func foundationKey(local, remote Candidate) string {
	return local.Foundation + "/" + remote.Foundation
}
