package streams

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wirertp "github.com/sansrtc/core/pkg/wire/rtp"
)

func TestRegistry_RegularFeedbackAtEmptyIsFalse(t *testing.T) {
	r := NewRegistry()
	_, ok := r.RegularFeedbackAt()
	assert.False(t, ok)
}

func TestRegistry_RegularFeedbackAtIsMinimumAcrossStreams(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	video := r.ExpectRx(1, 90000, false)
	audio := r.ExpectRx(2, 48000, true)
	video.MarkReportSent(now)
	audio.MarkReportSent(now)

	deadline, ok := r.RegularFeedbackAt()
	require.True(t, ok)
	assert.Equal(t, video.FeedbackAt(), deadline, "video's 1s cadence should be sooner than audio's 5s")
}

func TestRegistry_NeedNackOredAcrossReceivers(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	assert.False(t, r.NeedNack())

	quiet := r.ExpectRx(1, 90000, false)
	_ = quiet

	noisy := r.ExpectRx(2, 90000, false)
	noisy.HandleRTP(wirertp.NewOutgoing(96, 1, 0, 2, false, nil), now)
	noisy.HandleRTP(wirertp.NewOutgoing(96, 3, 0, 2, false, nil), now)

	assert.True(t, r.NeedNack())
}

func TestRegistry_IsReceivingReflectsRxMap(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.IsReceiving())
	r.ExpectRx(1, 90000, false)
	assert.True(t, r.IsReceiving())
}

func TestRegistry_RemoveRxClearsStream(t *testing.T) {
	r := NewRegistry()
	r.ExpectRx(1, 90000, false)
	r.RemoveRx(1)
	_, ok := r.Rx(1)
	assert.False(t, ok)
}
