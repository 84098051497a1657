// Package device provides the Bluetooth Low Energy plumbing the logging
// session needs: device resolution by address or advertised name, connection
// lifecycle, and per-characteristic notification subscriptions backed by
// go-ble.
package device

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// NotFoundError reports a BLE resource that could not be located.
type NotFoundError struct {
	Resource string // "device", "characteristic"
	Target   string // address, name substring, or UUID
}

func (e *NotFoundError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.Target)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ErrNotConnected is returned when an operation requires a live connection.
var ErrNotConnected = errors.New("device not connected")

// Conn is a live BLE connection. Implementations deliver notification
// payloads on their own goroutines; handlers must not block.
type Conn interface {
	// Subscribe starts notifications for the characteristic identified by
	// UUID, routing each payload to handler. Returns a NotFoundError if the
	// device does not expose the characteristic.
	Subscribe(charUUID string, handler func(data []byte)) error

	// UnsubscribeAll stops every active subscription. Best-effort: individual
	// failures are logged and ignored.
	UnsubscribeAll()

	// Disconnected is closed when the peripheral drops the connection.
	Disconnected() <-chan struct{}

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// Client resolves and connects to peripherals.
type Client interface {
	// Resolve scans for a device by exact address or, when address is empty,
	// by case-insensitive substring match on the advertised name. Returns the
	// device address, or a NotFoundError once the scan timeout elapses.
	Resolve(ctx context.Context, address, name string, timeout time.Duration) (string, error)

	// Connect opens a connection to the device at address and discovers its
	// GATT profile.
	Connect(ctx context.Context, address string, timeout time.Duration) (Conn, error)
}
