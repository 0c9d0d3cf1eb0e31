package ice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sansrtc/core/pkg/wire/stun"
)

// driveUntilDisconnected repeatedly polls the agent, jumping the clock
// forward to whatever deadline Poll reports, until the agent settles into
// a terminal state or the iteration budget is exhausted (a safety net
// against an infinite loop if a future change breaks termination).
func driveUntilDisconnected(t *testing.T, a *Agent, start time.Time) (sends int, final AgentState) {
	t.Helper()
	now := start
	for i := 0; i < 1000; i++ {
		transmits, deadline, ok := a.Poll(now)
		sends += len(transmits)
		if a.State() == Disconnected {
			return sends, a.State()
		}
		if !ok {
			return sends, a.State()
		}
		now = deadline
	}
	t.Fatal("agent never reached a terminal state")
	return
}

// TestIsolatedHostDisconnects mirrors original_source/ice/tests/drop-host.rs's
// "isolated hosts" scenario: a controlling agent with one host candidate
// pair whose peer never answers should send exactly nine binding requests
// (the initial check plus the Rc/Rm-governed retransmission schedule) and
// end up Disconnected.
func TestIsolatedHostDisconnects(t *testing.T) {
	a := NewAgent(DefaultAgentConfig())
	a.SetControlling(true)
	a.SetRemoteCredentials("ruser", "rpwd")

	start := time.Unix(0, 0)
	a.AddLocalCandidate(Candidate{Address: "10.0.0.1:5000", Kind: Host, Priority: 100, Foundation: "f1", Component: 1})
	a.AddRemoteCandidate(Candidate{Address: "10.0.0.2:5000", Kind: Host, Priority: 100, Foundation: "f2", Component: 1})

	sends, final := driveUntilDisconnected(t, a, start)

	assert.Equal(t, totalBindingRequests, sends)
	assert.Equal(t, Disconnected, final)

	stats := a.Stats()
	assert.Equal(t, totalBindingRequests, stats.BindRequestSent)
	assert.Equal(t, 0, stats.BindRequestRecv)
	assert.Equal(t, 0, stats.BindSuccessRecv)
	assert.Equal(t, 0, stats.NominationSendCount)
}

// TestRetransmitScheduleSpacing pins the actual RTO-spaced timing of the
// retransmission schedule, rather than driveUntilDisconnected's approach of
// jumping straight to whatever deadline Poll reports (which would pass even
// if the first retransmission fired immediately instead of one RTO later).
func TestRetransmitScheduleSpacing(t *testing.T) {
	start := time.Unix(0, 0)
	sched := newSchedule(0, start) // no RTT samples yet: RTO floors to minRTO

	assert.False(t, sched.due(start), "the first retransmission must not be due at the same instant as the initial send")
	assert.True(t, sched.due(start.Add(minRTO)))
}

// TestIncompatibleCandidatesNeverPair checks that a component mismatch (or
// address-family mismatch) never forms a pair at all, so the agent stays
// New forever rather than spuriously becoming Disconnected.
func TestIncompatibleCandidatesNeverPair(t *testing.T) {
	a := NewAgent(DefaultAgentConfig())
	a.AddLocalCandidate(Candidate{Address: "10.0.0.1:5000", Priority: 100, Foundation: "f1", Component: 1})
	a.AddRemoteCandidate(Candidate{Address: "10.0.0.2:5000", Priority: 100, Foundation: "f2", Component: 2})

	_, _, ok := a.Poll(time.Unix(0, 0))
	assert.False(t, ok)
	assert.Equal(t, New, a.State())
}

// TestHandleRequestRespondsWithBindingSuccess exercises handleRequest
// directly: a well-formed, correctly-integrity-protected binding request
// must produce a single binding-success transmit addressed back to the
// sender (the bug this fixes: the response used to be built and
// discarded).
func TestHandleRequestRespondsWithBindingSuccess(t *testing.T) {
	a := NewAgent(DefaultAgentConfig())
	a.SetControlling(false)
	a.SetRemoteCredentials("ruser", "rpwd")
	a.AddLocalCandidate(Candidate{Address: "10.0.0.1:5000", Kind: Host, Priority: 100, Foundation: "f1", Component: 1})
	a.AddRemoteCandidate(Candidate{Address: "10.0.0.2:5000", Kind: Host, Priority: 100, Foundation: "f2", Component: 1})

	peer := NewAgent(DefaultAgentConfig())
	peer.SetControlling(true)
	peer.SetRemoteCredentials(a.localUfrag, a.localPwd)
	peer.AddLocalCandidate(Candidate{Address: "10.0.0.2:5000", Kind: Host, Priority: 100, Foundation: "f2", Component: 1})
	peer.AddRemoteCandidate(Candidate{Address: "10.0.0.1:5000", Kind: Host, Priority: 100, Foundation: "f1", Component: 1})

	now := time.Unix(0, 0)
	transmits, _, ok := peer.Poll(now)
	require.True(t, ok)
	require.Len(t, transmits, 1)
	req := transmits[0]

	msg, err := stun.Decode(req.Data)
	require.NoError(t, err)

	resp, err := a.HandleMessage(now, req.SourceAddr, req.DestAddr, msg, req.Data)
	require.NoError(t, err)
	require.Len(t, resp, 1)
	assert.Equal(t, req.SourceAddr, resp[0].DestAddr)
	assert.Equal(t, req.DestAddr, resp[0].SourceAddr)
	assert.Equal(t, 1, a.Stats().BindRequestRecv)
}
