package ice

import "time"

// Rc and Rm are the STUN binding-request retransmission constants of
// spec §4.6. The schedule sends Rc+1 exponential-backoff retransmissions
// after the initial send (see totalBindingRequests), then waits a final
// Rm·RTO with no further send before the pair is declared Failed.
const (
	Rc = 7
	Rm = 16
)

// totalBindingRequests is the cardinality the "isolated hosts" scenario
// (spec §8 scenario 1, original_source/ice/tests/drop-host.rs) requires:
// Rc+2 = 9 — the initial send plus Rc exponentially-backed-off
// retransmissions plus one final retransmission at the point the schedule
// would otherwise only wait, per spec §9's open question ("the source's
// specific backoff constants are the authority in ambiguous cases").
const totalBindingRequests = Rc + 2

// minRTO is the floor on RTO before an SRTT sample exists (spec §4.6:
// "RTO = max(100ms, SRTT)").
const minRTO = 100 * time.Millisecond

// retransmitSchedule describes one pair's outstanding check timer: how
// many times it has fired since the initial check (each firing below the
// threshold is one retransmission), and when the next one (or the final
// failure) is due.
type retransmitSchedule struct {
	rto        time.Duration
	sendCount  int
	nextAt     time.Time
	finalWait  bool // past totalBindingRequests sends, waiting Rm*RTO before Failed
}

func rtoFor(srtt time.Duration) time.Duration {
	if srtt < minRTO {
		return minRTO
	}
	return srtt
}

// newSchedule starts a schedule for a pair whose initial check was just
// sent at now; the first retransmission is due one RTO later (spec §4.6:
// "RTO·2⁰" after the initial send, not immediately).
func newSchedule(srtt time.Duration, now time.Time) *retransmitSchedule {
	rto := rtoFor(srtt)
	return &retransmitSchedule{rto: rto, sendCount: 0, nextAt: now.Add(rto)}
}

// due reports whether a send (or the final failure) is due at now.
func (s *retransmitSchedule) due(now time.Time) bool {
	return !now.Before(s.nextAt)
}

// advance is called once a send (or the final wait) fires at now. It
// returns shouldSend (whether a binding request transmit should happen)
// and failed (whether the pair should transition to Failed).
func (s *retransmitSchedule) advance(now time.Time) (shouldSend, failed bool) {
	if s.finalWait {
		return false, true
	}
	s.sendCount++
	if s.sendCount >= totalBindingRequests {
		// The send that pushed sendCount to the threshold already happened
		// on the previous advance (or the initial check); this call only
		// starts the final Rm*RTO wait, it does not transmit again.
		s.finalWait = true
		s.nextAt = now.Add(s.rto * Rm)
		return false, false
	}
	// Exponential backoff between sends: RTO*2^n for n = 0..Rc (enough
	// gaps to cover totalBindingRequests-1 sends after the initial one).
	n := s.sendCount - 1
	backoff := s.rto << uint(n)
	s.nextAt = now.Add(backoff)
	return true, false
}
