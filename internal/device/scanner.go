package device

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
)

// BLEClient is the production Client implementation backed by go-ble.
type BLEClient struct {
	logger *logrus.Logger
}

// NewBLEClient creates a client using the platform BLE device factory.
func NewBLEClient(logger *logrus.Logger) *BLEClient {
	if logger == nil {
		logger = logrus.New()
	}
	return &BLEClient{logger: logger}
}

// matchAdvertisement reports whether an advertisement matches the selector:
// exact address when address is set, case-insensitive name substring otherwise.
func matchAdvertisement(addr, localName, wantAddress, wantName string) bool {
	if wantAddress != "" {
		return EqualAddr(addr, wantAddress)
	}
	return strings.Contains(strings.ToLower(localName), strings.ToLower(wantName))
}

// Resolve scans until a matching device is seen or the timeout elapses.
func (c *BLEClient) Resolve(ctx context.Context, address, name string, timeout time.Duration) (string, error) {
	target := address
	if target == "" {
		c.logger.WithField("name", name).Info("Scanning for device by advertised name...")
		target = name
	} else {
		c.logger.WithField("address", address).Info("Scanning for device by address...")
	}

	dev, err := DeviceFactory()
	if err != nil {
		return "", err
	}
	defer func() { _ = dev.Stop() }()

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Seen devices, keyed by address; avoids re-logging duplicate advertisements.
	seen := hashmap.New[string, string]()

	var mu sync.Mutex
	var foundAddr string

	handler := func(adv ble.Advertisement) {
		addr := adv.Addr().String()
		localName := adv.LocalName()

		if seen.Insert(addr, localName) {
			c.logger.WithFields(logrus.Fields{
				"address": addr,
				"name":    localName,
				"rssi":    adv.RSSI(),
			}).Debug("Advertisement seen")
		}

		if matchAdvertisement(addr, localName, address, name) {
			mu.Lock()
			if foundAddr == "" {
				foundAddr = addr
				c.logger.WithFields(logrus.Fields{
					"address": addr,
					"name":    localName,
				}).Info("Found matching device")
			}
			mu.Unlock()
			cancel()
		}
	}

	err = dev.Scan(scanCtx, false, handler)

	mu.Lock()
	defer mu.Unlock()
	if foundAddr != "" {
		return foundAddr, nil
	}

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}
	if ctx.Err() != nil {
		// Caller cancelled (e.g. Ctrl+C) - propagate rather than report NotFound.
		return "", ctx.Err()
	}
	return "", &NotFoundError{Resource: "device", Target: target}
}
