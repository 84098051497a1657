package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
)

// BLEConnection is a live go-ble connection with its discovered profile.
type BLEConnection struct {
	client ble.Client
	logger *logrus.Logger

	// normalized characteristic UUID -> live handle
	chars map[string]*ble.Characteristic

	mu         sync.Mutex
	subscribed []*ble.Characteristic
	closed     bool
	closeOnce  sync.Once
	closeErr   error
}

// Connect dials the device, discovers its GATT profile, and indexes every
// characteristic by normalized UUID.
func (c *BLEClient) Connect(ctx context.Context, address string, timeout time.Duration) (Conn, error) {
	if address == "" {
		return nil, fmt.Errorf("failed to connect: device address is not set")
	}

	c.logger.WithField("address", address).Info("Connecting to BLE device...")

	dev, err := DeviceFactory()
	if err != nil {
		return nil, err
	}
	ble.SetDefaultDevice(dev)

	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := ble.Dial(connCtx, ble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device %q: %w", address, err)
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		client.CancelConnection()
		return nil, fmt.Errorf("failed to discover profile: %w", err)
	}

	conn := &BLEConnection{
		client: client,
		logger: c.logger,
		chars:  make(map[string]*ble.Characteristic),
	}

	for _, svc := range profile.Services {
		for _, char := range svc.Characteristics {
			uuid := NormalizeUUID(char.UUID.String())
			conn.chars[uuid] = char
			c.logger.WithFields(logrus.Fields{
				"service_uuid": svc.UUID.String(),
				"char_uuid":    char.UUID.String(),
			}).Debug("Found characteristic")
		}
	}

	c.logger.WithFields(logrus.Fields{
		"address":         address,
		"services":        len(profile.Services),
		"characteristics": len(conn.chars),
	}).Info("BLE device connected")

	return conn, nil
}

// Subscribe starts notifications for one characteristic. Notify is preferred;
// indication is the fallback for characteristics that only support it.
func (conn *BLEConnection) Subscribe(charUUID string, handler func(data []byte)) error {
	conn.mu.Lock()
	closed := conn.closed
	conn.mu.Unlock()
	if closed {
		return ErrNotConnected
	}

	char, ok := conn.chars[NormalizeUUID(charUUID)]
	if !ok {
		return &NotFoundError{Resource: "characteristic", Target: charUUID}
	}

	err := conn.client.Subscribe(char, false, handler)
	if err != nil && char.Property&ble.CharIndicate != 0 {
		err = conn.client.Subscribe(char, true, handler)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", ShortenUUID(charUUID), err)
	}

	conn.mu.Lock()
	conn.subscribed = append(conn.subscribed, char)
	conn.mu.Unlock()

	conn.logger.WithField("char_uuid", charUUID).Debug("Subscribed to characteristic notifications")
	return nil
}

// UnsubscribeAll stops every active subscription. Failures are expected
// during teardown of an already-dropped link and are only logged.
func (conn *BLEConnection) UnsubscribeAll() {
	conn.mu.Lock()
	subscribed := conn.subscribed
	conn.subscribed = nil
	conn.mu.Unlock()

	for _, char := range subscribed {
		err1 := conn.client.Unsubscribe(char, false) // notify
		err2 := conn.client.Unsubscribe(char, true)  // indicate
		if err1 != nil && err2 != nil {
			conn.logger.WithFields(logrus.Fields{
				"char_uuid":   char.UUID.String(),
				"notifyErr":   err1,
				"indicateErr": err2,
			}).Debug("Failed to unsubscribe from characteristic")
		}
	}
}

// Disconnected is closed when the peripheral drops the link.
func (conn *BLEConnection) Disconnected() <-chan struct{} {
	return conn.client.Disconnected()
}

// Close releases the connection exactly once.
func (conn *BLEConnection) Close() error {
	conn.closeOnce.Do(func() {
		conn.mu.Lock()
		conn.closed = true
		conn.mu.Unlock()

		conn.logger.Info("Disconnecting BLE device...")
		conn.closeErr = conn.client.CancelConnection()
		if conn.closeErr != nil {
			conn.logger.WithError(conn.closeErr).Warn("BLE device disconnected with errors")
		} else {
			conn.logger.Info("BLE device disconnected")
		}
	})
	return conn.closeErr
}
