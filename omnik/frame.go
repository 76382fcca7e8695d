package omnik

import (
	"encoding/hex"
	"fmt"
	"strconv"
)

// Request frame layout:
//
//	68 02 40 30 | doubled+reversed serial bytes | 01 00 | checksum | 16
//
// The checksum bias 115 equals the sum of the fixed header, separator and
// trailer bytes, so the checksum effectively covers the whole frame.
const checksumBias = 115

// BuildRequest builds the query frame for the given inverter serial number.
// The serial is rendered as lowercase hex, concatenated with itself, decoded
// and byte-reversed; doubling guarantees an even-length hex string, so the
// decode cannot fail on an odd-digit serial.
func BuildRequest(serialNumber int64) ([]byte, error) {
	if serialNumber <= 0 {
		return nil, fmt.Errorf("omnik: serial number must be positive, got %d", serialNumber)
	}
	if serialNumber > 0xFFFFFFFF {
		return nil, fmt.Errorf("omnik: serial number %d does not fit in 32 bits", serialNumber)
	}

	h := strconv.FormatInt(serialNumber, 16)
	serialBytes, err := hex.DecodeString(h + h)
	if err != nil {
		return nil, fmt.Errorf("omnik: serial number %d: %w", serialNumber, err)
	}
	for i, j := 0, len(serialBytes)-1; i < j; i, j = i+1, j-1 {
		serialBytes[i], serialBytes[j] = serialBytes[j], serialBytes[i]
	}

	checksum := checksumBias
	for _, b := range serialBytes {
		checksum += int(b)
	}

	frame := make([]byte, 0, len(serialBytes)+8)
	frame = append(frame, 0x68, 0x02, 0x40, 0x30)
	frame = append(frame, serialBytes...)
	frame = append(frame, 0x01, 0x00)
	frame = append(frame, byte(checksum&0xFF))
	frame = append(frame, 0x16)
	return frame, nil
}
