package device

import (
	"context"
	"errors"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
)

// DiscoveredDevice is a single advertiser seen during a Discover pass.
type DiscoveredDevice struct {
	Address     string    `json:"address"`
	Name        string    `json:"name,omitempty"`
	RSSI        int       `json:"rssi"`
	Connectable bool      `json:"connectable"`
	Services    []string  `json:"services,omitempty"`
	LastSeen    time.Time `json:"last_seen"`
}

// Discover scans for the given duration (indefinitely when zero) and returns
// every advertiser seen, deduplicated by address with the latest advertisement
// winning. A cancelled context is a normal end of scan, not an error.
func (c *BLEClient) Discover(ctx context.Context, duration time.Duration) ([]DiscoveredDevice, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, err
	}
	defer func() { _ = dev.Stop() }()

	scanCtx := ctx
	if duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	found := hashmap.New[string, DiscoveredDevice]()

	handler := func(adv ble.Advertisement) {
		addr := adv.Addr().String()
		entry := DiscoveredDevice{
			Address:     addr,
			Name:        adv.LocalName(),
			RSSI:        adv.RSSI(),
			Connectable: adv.Connectable(),
			LastSeen:    time.Now(),
		}
		for _, s := range adv.Services() {
			entry.Services = append(entry.Services, s.String())
		}
		// Advertisements without a scan response may lack the name; keep a
		// previously seen one rather than blanking it.
		if prev, ok := found.Get(addr); ok && entry.Name == "" {
			entry.Name = prev.Name
		}
		found.Set(addr, entry)
	}

	err = dev.Scan(scanCtx, true, handler)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	devices := make([]DiscoveredDevice, 0, found.Len())
	found.Range(func(_ string, d DiscoveredDevice) bool {
		devices = append(devices, d)
		return true
	})
	return devices, nil
}
