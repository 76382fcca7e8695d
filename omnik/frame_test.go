package omnik

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildRequestGolden(t *testing.T) {
	// Serial 1234567890 = 0x499602d2, doubled and byte-reversed.
	frame, err := BuildRequest(1234567890)
	require.NoError(t, err)
	require.Equal(t, []byte{
		0x68, 0x02, 0x40, 0x30,
		0xd2, 0x02, 0x96, 0x49, 0xd2, 0x02, 0x96, 0x49,
		0x01, 0x00,
		0xd9,
		0x16,
	}, frame)
}

func TestBuildRequestShape(t *testing.T) {
	for _, serial := range []int64{1, 0x1234, 613170000, 1234567890, 0xFFFFFFFF} {
		frame, err := BuildRequest(serial)
		require.NoError(t, err, "serial %d", serial)

		require.Equal(t, []byte{0x68, 0x02, 0x40, 0x30}, frame[:4], "serial %d", serial)
		require.Equal(t, byte(0x16), frame[len(frame)-1], "serial %d", serial)
		require.Equal(t, byte(0x01), frame[len(frame)-4], "serial %d", serial)
		require.Equal(t, byte(0x00), frame[len(frame)-3], "serial %d", serial)

		// Checksum covers the serial bytes plus the fixed bias.
		sum := checksumBias
		for _, b := range frame[4 : len(frame)-4] {
			sum += int(b)
		}
		require.Equal(t, byte(sum&0xFF), frame[len(frame)-2], "serial %d", serial)
	}
}

func TestBuildRequestDeterministic(t *testing.T) {
	a, err := BuildRequest(613170000)
	require.NoError(t, err)
	b, err := BuildRequest(613170000)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestBuildRequestOddHexLength(t *testing.T) {
	// 0x123 has an odd hex length; doubling keeps the decode valid.
	frame, err := BuildRequest(0x123)
	require.NoError(t, err)
	// 3 serial bytes plus 8 fixed bytes.
	require.Len(t, frame, 11)
	require.Equal(t, []byte{0x23, 0x31, 0x12}, frame[4:7])
}

func TestBuildRequestInvalidSerial(t *testing.T) {
	for _, serial := range []int64{0, -1, -1234567890, 0x100000000} {
		_, err := BuildRequest(serial)
		require.Error(t, err, "serial %d", serial)
	}
}
