package rtcp

import (
	"testing"

	pionrtcp "github.com/pion/rtcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildNackAndRoundTrip(t *testing.T) {
	data, err := BuildNack(1, 2, []uint16{10, 11, 27})
	require.NoError(t, err)

	pkts, err := ParseCompound(data)
	require.NoError(t, err)
	require.Len(t, pkts, 1)

	nack, ok := pkts[0].(*pionrtcp.TransportLayerNack)
	require.True(t, ok)
	assert.EqualValues(t, 1, nack.SenderSSRC)
	assert.EqualValues(t, 2, nack.MediaSSRC)

	assert.ElementsMatch(t, []uint16{10, 11, 27}, NackedSequences(nack))
}

func TestBuildReceiverReportRoundTrip(t *testing.T) {
	data, err := BuildReceiverReport(42, []ReceptionReport{
		{SSRC: 7, FractionLost: 1, TotalLost: 2, LastSequence: 100, Jitter: 5},
	})
	require.NoError(t, err)

	pkts, err := ParseCompound(data)
	require.NoError(t, err)
	require.Len(t, pkts, 1)

	rr, ok := pkts[0].(*pionrtcp.ReceiverReport)
	require.True(t, ok)
	assert.EqualValues(t, 42, rr.SSRC)
	require.Len(t, rr.Reports, 1)
	assert.EqualValues(t, 7, rr.Reports[0].SSRC)
}

func TestBuildPLI(t *testing.T) {
	data, err := BuildPLI(1, 2)
	require.NoError(t, err)

	pkts, err := ParseCompound(data)
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	_, ok := pkts[0].(*pionrtcp.PictureLossIndication)
	assert.True(t, ok)
}

func TestParseCompoundRejectsMalformed(t *testing.T) {
	_, err := ParseCompound([]byte{0x01, 0x02})
	assert.Error(t, err)
}
