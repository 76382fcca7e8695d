package omnik

import (
	"encoding/binary"
	"strings"
	"unicode/utf8"
)

// minResponseLength is the smallest buffer a live inverter produces. Anything
// shorter degrades to an offline record, not an error: a powered-down
// inverter legitimately answers with short or garbage frames.
const minResponseLength = 80

// sentinel16 is the wire encoding for "no reading" in 16 bit fields. The 32
// bit fields carry no sentinel; that asymmetry is part of the wire protocol
// and is preserved as-is.
const sentinel16 = 0xFFFF

// maxPlausibleTemperature in °C. Anything above it marks a garbage frame
// from an inverter that is actually down.
const maxPlausibleTemperature = 150

// Field offsets in the response buffer, all big-endian.
const (
	offSerialBegin = 15
	offSerialEnd   = 31
	offTemperature = 31 // u16 / 10
	offDCVoltage   = 33 // u16 / 10
	offDCCurrent   = 39 // u16 / 10
	offACCurrent   = 45 // u16 / 10
	offACVoltage   = 51 // u16 / 10
	offACFrequency = 57 // u16 / 100
	offACPower     = 59 // u16 / 1
	offEnergyToday = 69 // u16 / 100
	offEnergyTotal = 71 // u32 / 10
	offHoursTotal  = 75 // u32 / 1
)

func readShort(raw []byte, begin int, divisor float64) *float64 {
	if begin < 0 || len(raw) < begin+2 {
		return nil
	}
	num := binary.BigEndian.Uint16(raw[begin : begin+2])
	if num == sentinel16 {
		return nil
	}
	v := float64(num) / divisor
	return &v
}

func readLong(raw []byte, begin int, divisor float64) *float64 {
	if begin < 0 || len(raw) < begin+4 {
		return nil
	}
	v := float64(binary.BigEndian.Uint32(raw[begin:begin+4])) / divisor
	return &v
}

func readString(raw []byte, begin, end int) *string {
	if begin < 0 || end < begin || len(raw) < end {
		return nil
	}
	s := strings.TrimRight(string(raw[begin:end]), "\x00")
	if !utf8.ValidString(s) {
		return nil
	}
	return &s
}

// parseData decodes a raw response buffer into a snapshot. It is total:
// malformed input yields an offline record with every optional field absent,
// never an error.
//
// The temperature reading gates the online/offline decision. ActualPower is
// forced to zero while offline so a garbage frame cannot report phantom
// production; all other fields are extracted independently of the status.
func parseData(raw []byte) Data {
	if len(raw) < minResponseLength {
		return Data{Status: StatusOffline}
	}

	temperature := readShort(raw, offTemperature, 10)
	if temperature != nil && *temperature > maxPlausibleTemperature {
		temperature = nil
	}

	status := StatusOffline
	if temperature != nil {
		status = StatusOnline
	}

	var actualPower int
	var acOutputPower *int
	if p := readShort(raw, offACPower, 1); p != nil {
		watts := int(*p)
		acOutputPower = &watts
		if status == StatusOnline {
			actualPower = watts
		}
	}

	var hoursTotal *int
	if h := readLong(raw, offHoursTotal, 1); h != nil {
		hours := int(*h)
		hoursTotal = &hours
	}

	return Data{
		SerialNumber:      readString(raw, offSerialBegin, offSerialEnd),
		Status:            status,
		Temperature:       temperature,
		ActualPower:       actualPower,
		EnergyToday:       readShort(raw, offEnergyToday, 100),
		EnergyTotal:       readLong(raw, offEnergyTotal, 10),
		HoursTotal:        hoursTotal,
		DCInputVoltage:    readShort(raw, offDCVoltage, 10),
		DCInputCurrent:    readShort(raw, offDCCurrent, 10),
		ACOutputVoltage:   readShort(raw, offACVoltage, 10),
		ACOutputCurrent:   readShort(raw, offACCurrent, 10),
		ACOutputFrequency: readShort(raw, offACFrequency, 100),
		ACOutputPower:     acOutputPower,
	}
}
