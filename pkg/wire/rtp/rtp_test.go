package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalParseRoundTrip(t *testing.T) {
	p := NewOutgoing(111, 1000, 90000, 0xCAFEBABE, true, []byte("payload"))
	require.NoError(t, p.SetExtension(3, []byte{0x01}))

	data, err := p.Marshal()
	require.NoError(t, err)

	got, err := Parse(data)
	require.NoError(t, err)

	assert.EqualValues(t, 111, got.PayloadType)
	assert.EqualValues(t, 1000, got.SequenceNumber)
	assert.EqualValues(t, 90000, got.Timestamp)
	assert.EqualValues(t, 0xCAFEBABE, got.SSRC)
	assert.True(t, got.Marker)
	assert.Equal(t, []byte("payload"), got.Payload)

	ext, ok := got.Extension(3)
	require.True(t, ok)
	assert.Equal(t, []byte{0x01}, ext)
}

func TestParseRejectsShortBuffer(t *testing.T) {
	_, err := Parse([]byte{0x80, 0x6f})
	require.Error(t, err)
}
