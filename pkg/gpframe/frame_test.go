package gpframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x45, 0x00, 0x00, 0x14},
		make([]byte, 65535-HeaderLen),
		[]byte("hello gateway"),
	}
	for _, p := range payloads {
		encoded := Encode(p)
		require.Len(t, encoded, HeaderLen+len(p))
		header := encoded[:HeaderLen]
		payload := encoded[HeaderLen:]
		frame, err := Decode(header, payload)
		require.NoError(t, err)
		if len(p) == 0 {
			assert.Equal(t, KindKeepalive, frame.Kind)
		} else {
			assert.Equal(t, KindData, frame.Kind)
			assert.Equal(t, p, frame.Payload)
		}
	}
}

func TestEncodeKeepaliveDecodesAsKeepalive(t *testing.T) {
	header := EncodeKeepalive()
	require.Len(t, header, HeaderLen)
	length, err := PayloadLength(header)
	require.NoError(t, err)
	assert.EqualValues(t, 0, length)

	frame, err := Decode(header, nil)
	require.NoError(t, err)
	assert.Equal(t, KindKeepalive, frame.Kind)
	assert.Nil(t, frame.Payload)
}

func TestDecodeLengthMismatchIsFrameError(t *testing.T) {
	header := newHeader(10, frameTypeData)
	_, err := Decode(header, []byte{1, 2, 3})
	require.Error(t, err)
}

func TestPayloadLengthRejectsShortHeader(t *testing.T) {
	_, err := PayloadLength([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestClassifyFromIP(t *testing.T) {
	assert.True(t, ClassifyFromIP([]byte{0x45, 0, 0, 0}))  // IPv4
	assert.True(t, ClassifyFromIP([]byte{0x60, 0, 0, 0}))  // IPv6
	assert.False(t, ClassifyFromIP([]byte{0x00, 0, 0, 0})) // neither
	assert.False(t, ClassifyFromIP(nil))
}
