// Package microbit defines the BBC micro:bit BLE profile subset that mblog
// understands: a closed set of named characteristics, their UUIDs, and pure
// decoders that turn raw notification payloads into display strings.
package microbit

import (
	"fmt"
	"strings"
)

// Characteristic identifies one of the micro:bit characteristics mblog can
// subscribe to. The set is closed; configuration is validated against it once
// at startup, so an unrecognized name never reaches the connection layer.
type Characteristic int

const (
	UARTTx Characteristic = iota
	Event
	ButtonA
	ButtonB
	Accelerometer
	Temperature
	Magnetometer
	MagnetometerBearing

	numCharacteristics
)

var characteristicNames = [numCharacteristics]string{
	UARTTx:              "uart_tx",
	Event:               "event",
	ButtonA:             "button_a",
	ButtonB:             "button_b",
	Accelerometer:       "accelerometer",
	Temperature:         "temperature",
	Magnetometer:        "magnetometer",
	MagnetometerBearing: "magnetometer_bearing",
}

// UUIDs for the core micro:bit services/characteristics. The UART TX
// characteristic belongs to the Nordic UART service; the rest are from the
// micro:bit profile (e95d... base).
var characteristicUUIDs = [numCharacteristics]string{
	UARTTx:              "6e400002-b5a3-f393-e0a9-e50e24dcca9e",
	Event:               "e95d0101-251d-470a-a062-fa1922dfa9a8",
	ButtonA:             "e95dda90-251d-470a-a062-fa1922dfa9a8",
	ButtonB:             "e95dda91-251d-470a-a062-fa1922dfa9a8",
	Accelerometer:       "e95dca4b-251d-470a-a062-fa1922dfa9a8",
	Temperature:         "e95d9250-251d-470a-a062-fa1922dfa9a8",
	Magnetometer:        "e95dfb11-251d-470a-a062-fa1922dfa9a8",
	MagnetometerBearing: "e95d9715-251d-470a-a062-fa1922dfa9a8",
}

var characteristicDecoders = [numCharacteristics]func([]byte) string{
	UARTTx:              decodeUART,
	Event:               decodeEvent,
	ButtonA:             decodeButton,
	ButtonB:             decodeButton,
	Accelerometer:       decodeAccelerometer,
	Temperature:         decodeTemperature,
	Magnetometer:        decodeMagnetometer,
	MagnetometerBearing: decodeBearing,
}

// String returns the canonical name used on the CLI, in console output, and
// in webhook payloads (e.g. "button_a").
func (c Characteristic) String() string {
	if c < 0 || c >= numCharacteristics {
		return fmt.Sprintf("characteristic(%d)", int(c))
	}
	return characteristicNames[c]
}

// UUID returns the 128-bit characteristic UUID in dashed lowercase form.
func (c Characteristic) UUID() string {
	if c < 0 || c >= numCharacteristics {
		return ""
	}
	return characteristicUUIDs[c]
}

// Decode converts a raw notification payload to a display string.
// Decoders never fail: malformed or short input falls back to a raw
// hexadecimal rendering of the bytes.
func (c Characteristic) Decode(data []byte) string {
	if c < 0 || c >= numCharacteristics {
		return rawFallback(data)
	}
	return characteristicDecoders[c](data)
}

// ParseCharacteristic maps a CLI name to its Characteristic.
// Matching is case-insensitive; unknown names are a configuration error.
func ParseCharacteristic(name string) (Characteristic, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for c, n := range characteristicNames {
		if n == needle {
			return Characteristic(c), nil
		}
	}
	return 0, fmt.Errorf("unknown characteristic name %q (valid: %s)", name, strings.Join(CharacteristicNames(), ", "))
}

// AllCharacteristics returns every supported characteristic in its canonical
// subscription order.
func AllCharacteristics() []Characteristic {
	all := make([]Characteristic, numCharacteristics)
	for i := range all {
		all[i] = Characteristic(i)
	}
	return all
}

// CharacteristicNames returns the canonical names of all supported
// characteristics, in subscription order.
func CharacteristicNames() []string {
	names := make([]string, numCharacteristics)
	copy(names, characteristicNames[:])
	return names
}
