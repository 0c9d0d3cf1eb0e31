package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sansrtc/core/pkg/ice"
)

// drainOutputs runs PollOutput and splits the result into transmits and
// events, the shape most tests want to assert against.
func drainOutputs(s *Session, now time.Time) (transmits []Transmit, events []Event, deadline time.Time) {
	outputs, d := s.PollOutput(now)
	for _, o := range outputs {
		switch o.Kind {
		case OutputTransmit:
			transmits = append(transmits, o.Transmit)
		case OutputEvent:
			events = append(events, o.Event)
		}
	}
	return transmits, events, d
}

// connect drives two sessions' ICE agents to completion by ping-ponging
// whatever each side's PollOutput produces into the other's HandleInput,
// mirroring how a host would wire poll_output's transmits to the network
// and back into handle_input (spec §6).
func connect(t *testing.T, a, b *Session, start time.Time) time.Time {
	t.Helper()
	now := start
	for i := 0; i < 2000; i++ {
		aTx, _, aDeadline := drainOutputs(a, now)
		bTx, _, bDeadline := drainOutputs(b, now)

		for _, tx := range aTx {
			require.NoError(t, b.HandleInput(now, Input{Receive: &ReceiveInput{Source: tx.Source, Destination: tx.Destination, Data: tx.Data}}))
		}
		for _, tx := range bTx {
			require.NoError(t, a.HandleInput(now, Input{Receive: &ReceiveInput{Source: tx.Source, Destination: tx.Destination, Data: tx.Data}}))
		}

		if a.ICE().State() == ice.Completed && b.ICE().State() == ice.Completed {
			return now
		}

		// Advance only as far as the earlier of the two pending deadlines
		// so neither side's retransmission schedule gets skipped over.
		var next time.Time
		if !aDeadline.IsZero() {
			next = aDeadline
		}
		if !bDeadline.IsZero() && (next.IsZero() || bDeadline.Before(next)) {
			next = bDeadline
		}
		if next.IsZero() || !next.After(now) {
			next = now.Add(time.Millisecond)
		}
		now = next
	}
	t.Fatal("ICE never completed")
	return now
}

func newPeer(controlling bool) *Session {
	cfg := DefaultConfig()
	cfg.Controlling = controlling
	return New(cfg)
}

// TestSessionEstablishesAndCarriesMedia exercises the component-H driver
// end to end: two Sessions exchange STUN checks through their own
// poll_output/handle_input surfaces (no test reaches into ice.Agent
// directly), reach ICE completion, then one side's WriteMedia is fed into
// the other's handle_input and surfaces as an EventMediaPacket.
func TestSessionEstablishesAndCarriesMedia(t *testing.T) {
	a := newPeer(true)
	b := newPeer(false)

	aUfrag, aPwd := a.ICE().LocalCredentials()
	bUfrag, bPwd := b.ICE().LocalCredentials()
	a.ICE().SetRemoteCredentials(bUfrag, bPwd)
	b.ICE().SetRemoteCredentials(aUfrag, aPwd)

	a.ICE().AddLocalCandidate(ice.Candidate{Address: "10.0.0.1:5000", Kind: ice.Host, Priority: 100, Foundation: "fa", Component: 1})
	a.ICE().AddRemoteCandidate(ice.Candidate{Address: "10.0.0.2:5000", Kind: ice.Host, Priority: 100, Foundation: "fb", Component: 1})
	b.ICE().AddLocalCandidate(ice.Candidate{Address: "10.0.0.2:5000", Kind: ice.Host, Priority: 100, Foundation: "fb", Component: 1})
	b.ICE().AddRemoteCandidate(ice.Candidate{Address: "10.0.0.1:5000", Kind: ice.Host, Priority: 100, Foundation: "fa", Component: 1})

	start := time.Unix(0, 0)
	now := connect(t, a, b, start)

	require.Equal(t, ice.Completed, a.ICE().State())
	require.Equal(t, ice.Completed, b.ICE().State())

	const ssrc = uint32(0xC0FFEE)
	a.Streams().DeclareTx(ssrc, 90000, false)
	b.Streams().ExpectRx(ssrc, 90000, false)

	tx, ok, err := a.WriteMedia(1, ssrc, 96, true, 3000, []byte("frame-data"), now)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, b.HandleInput(now, Input{Receive: &ReceiveInput{Source: tx.Source, Destination: tx.Destination, Data: tx.Data}}))

	_, events, _ := drainOutputs(b, now)
	var found bool
	for _, ev := range events {
		if ev.Kind == EventMediaPacket {
			found = true
			assert.Equal(t, ssrc, ev.MediaPacket.SSRC)
			assert.Equal(t, uint8(96), ev.MediaPacket.PayloadType)
			assert.True(t, ev.MediaPacket.Marker)
		}
	}
	assert.True(t, found, "expected an EventMediaPacket after relaying WriteMedia's output")
}

// TestWriteMediaBlockedBeforeNomination checks the invariant from spec §1
// ("an ICE pair becoming nominated gates RTP egress"): with no candidates
// added at all, WriteMedia must refuse to produce a transmit.
func TestWriteMediaBlockedBeforeNomination(t *testing.T) {
	a := newPeer(true)
	a.Streams().DeclareTx(42, 48000, true)

	_, ok, err := a.WriteMedia(1, 42, 111, false, 160, []byte("pcm"), time.Unix(0, 0))
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestClassifyDatagramKinds pins the first-byte discrimination of spec
// §4.8 that handleReceive dispatches on.
func TestClassifyDatagramKinds(t *testing.T) {
	assert.Equal(t, datagramStun, classify([]byte{0, 1, 2}))
	assert.Equal(t, datagramDTLS, classify([]byte{20, 1, 2}))
	assert.Equal(t, datagramDTLS, classify([]byte{63, 1, 2}))
	assert.Equal(t, datagramRTP, classify([]byte{128, 96, 0, 0}))
	assert.Equal(t, datagramRTCP, classify([]byte{128, 200, 0, 0}))
	assert.Equal(t, datagramUnknown, classify([]byte{200, 1}))
	assert.Equal(t, datagramUnknown, classify(nil))
}
