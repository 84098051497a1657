package microbit

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// rawFallback renders a payload that could not be decoded as "raw=<hex>".
// An empty payload yields "raw=".
func rawFallback(data []byte) string {
	return "raw=" + hex.EncodeToString(data)
}

// decodeButton decodes a 1-byte button state.
// 0/1/2 map to not pressed/pressed/long press; anything else is reported as
// unknown with the raw code preserved.
func decodeButton(data []byte) string {
	if len(data) < 1 {
		return rawFallback(data)
	}
	state := data[0]
	description := "unknown"
	switch state {
	case 0:
		description = "not pressed"
	case 1:
		description = "pressed"
	case 2:
		description = "long press"
	}
	return fmt.Sprintf("state=%d (%s)", state, description)
}

// decodeAccelerometer decodes three little-endian signed 16-bit axes in mg.
func decodeAccelerometer(data []byte) string {
	if len(data) < 6 {
		return rawFallback(data)
	}
	x := int16(binary.LittleEndian.Uint16(data[0:2]))
	y := int16(binary.LittleEndian.Uint16(data[2:4]))
	z := int16(binary.LittleEndian.Uint16(data[4:6]))
	return fmt.Sprintf("x=%dmg y=%dmg z=%dmg", x, y, z)
}

// decodeMagnetometer decodes three little-endian signed 16-bit axes in raw units.
func decodeMagnetometer(data []byte) string {
	if len(data) < 6 {
		return rawFallback(data)
	}
	x := int16(binary.LittleEndian.Uint16(data[0:2]))
	y := int16(binary.LittleEndian.Uint16(data[2:4]))
	z := int16(binary.LittleEndian.Uint16(data[4:6]))
	return fmt.Sprintf("x=%d y=%d z=%d", x, y, z)
}

// decodeTemperature decodes a signed temperature in degrees Celsius.
// The micro:bit temperature service notifies a single signed byte, but some
// firmware revisions send two; a 2-byte payload is read as little-endian int16.
func decodeTemperature(data []byte) string {
	switch {
	case len(data) == 0:
		return rawFallback(data)
	case len(data) == 1:
		return fmt.Sprintf("%d°C", int8(data[0]))
	default:
		return fmt.Sprintf("%d°C", int16(binary.LittleEndian.Uint16(data[0:2])))
	}
}

// decodeBearing decodes a little-endian unsigned 16-bit compass bearing in degrees.
func decodeBearing(data []byte) string {
	if len(data) < 2 {
		return rawFallback(data)
	}
	return fmt.Sprintf("%d°", binary.LittleEndian.Uint16(data[0:2]))
}

// decodeEvent decodes the generic event channel: two little-endian unsigned
// 16-bit integers (event id, event value).
func decodeEvent(data []byte) string {
	if len(data) < 4 {
		return rawFallback(data)
	}
	id := binary.LittleEndian.Uint16(data[0:2])
	value := binary.LittleEndian.Uint16(data[2:4])
	return fmt.Sprintf("event_id=%d event_value=%d", id, value)
}

// decodeUART decodes UART text as UTF-8, substituting the replacement
// character for invalid sequences. It never fails.
func decodeUART(data []byte) string {
	return strings.ToValidUTF8(string(data), "�")
}
