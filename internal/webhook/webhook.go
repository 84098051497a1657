// Package webhook forwards aggregated characteristic values to an HTTP
// endpoint, either per individual update (immediate mode) or once per flush
// window (batch mode). Delivery is best-effort, at-most-once: failures are
// logged and never retried, and a slow endpoint backs up in the forwarder's
// unbounded queue rather than in the aggregation pipeline.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/mblog/internal/aggregator"
	"github.com/srg/mblog/internal/microbit"
)

// Mode selects the delivery granularity.
type Mode int

const (
	// ModeBatch sends one event per flush window covering every targeted
	// characteristic seen in that window.
	ModeBatch Mode = iota
	// ModeImmediate sends one event per individual update of a targeted
	// characteristic.
	ModeImmediate
)

// ParseMode converts the CLI mode string to a Mode.
func ParseMode(mode string) (Mode, error) {
	switch strings.ToLower(mode) {
	case "batch", "batched":
		return ModeBatch, nil
	case "immediate", "live":
		return ModeImmediate, nil
	default:
		return 0, fmt.Errorf("invalid webhook mode %q: use batch or immediate", mode)
	}
}

// Event is one webhook payload. Immediate mode fills Characteristic/Value;
// batch mode fills Values. SecurityKey is attached when configured.
type Event struct {
	Timestamp      float64           `json:"timestamp"`
	Characteristic string            `json:"characteristic,omitempty"`
	Value          string            `json:"value,omitempty"`
	Values         map[string]string `json:"values,omitempty"`
	SecurityKey    string            `json:"securityKey,omitempty"`
}

// Options configures a Forwarder.
type Options struct {
	URL             string
	Mode            Mode
	Timeout         time.Duration
	SecurityKey     string
	Characteristics []microbit.Characteristic // target set; empty means all subscribed
}

// Forwarder owns the webhook queue and its single delivery worker.
//
// Wiring: in batch mode the Forwarder is registered as an aggregator sink; in
// immediate mode its RecordUpdate is registered as the aggregator's update
// observer. Both paths enqueue; only the worker performs HTTP calls, one POST
// at a time, preserving submission order.
type Forwarder struct {
	opts    Options
	client  *http.Client
	queue   *Queue[Event]
	targets map[microbit.Characteristic]struct{}
	logger  *logrus.Logger
	done    chan struct{}
}

// NewForwarder creates a forwarder for the given endpoint. The caller must
// Start it before enqueuing and Close it to drain on shutdown.
func NewForwarder(opts Options, logger *logrus.Logger) *Forwarder {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}

	targets := make(map[microbit.Characteristic]struct{}, len(opts.Characteristics))
	for _, c := range opts.Characteristics {
		targets[c] = struct{}{}
	}

	return &Forwarder{
		opts:    opts,
		client:  &http.Client{Timeout: opts.Timeout},
		queue:   NewQueue[Event](),
		targets: targets,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Mode returns the configured delivery mode.
func (f *Forwarder) Mode() Mode {
	return f.opts.Mode
}

// Targeted reports whether updates for the characteristic are forwarded.
func (f *Forwarder) Targeted(c microbit.Characteristic) bool {
	if len(f.targets) == 0 {
		return true
	}
	_, ok := f.targets[c]
	return ok
}

// Start launches the delivery worker.
func (f *Forwarder) Start() {
	go f.run()
}

// RecordUpdate enqueues one immediate-mode event for a targeted
// characteristic. Registered as the aggregator's update observer; a no-op in
// batch mode and for non-targeted characteristics.
func (f *Forwarder) RecordUpdate(at time.Time, name microbit.Characteristic, value string) {
	if f.opts.Mode != ModeImmediate || !f.Targeted(name) {
		return
	}
	f.queue.Push(Event{
		Timestamp:      unixSeconds(at),
		Characteristic: name.String(),
		Value:          value,
		SecurityKey:    f.opts.SecurityKey,
	})
}

// Emit enqueues one batch-mode event for a flush window, filtered to the
// target set. A window whose filtered result is empty enqueues nothing, even
// though the console printed the full snapshot.
func (f *Forwarder) Emit(snap *aggregator.Snapshot) {
	if f.opts.Mode != ModeBatch || snap == nil {
		return
	}

	values := make(map[string]string, snap.Values.Len())
	for pair := snap.Values.Oldest(); pair != nil; pair = pair.Next() {
		if f.Targeted(pair.Key) {
			values[pair.Key.String()] = pair.Value
		}
	}
	if len(values) == 0 {
		return
	}

	f.queue.Push(Event{
		Timestamp:   unixSeconds(snap.At),
		Values:      values,
		SecurityKey: f.opts.SecurityKey,
	})
}

// Close stops accepting events and blocks until the queue is drained and the
// worker has exited.
func (f *Forwarder) Close() {
	f.queue.Close()
	<-f.done
}

// Pending reports the number of undelivered events. Used by tests and debug logs.
func (f *Forwarder) Pending() int {
	return f.queue.Len()
}

func (f *Forwarder) run() {
	defer close(f.done)

	for {
		ev, ok := f.queue.Pop()
		if !ok {
			return
		}
		if err := f.deliver(ev); err != nil {
			f.logger.WithError(err).WithField("url", f.opts.URL).Warn("Webhook delivery failed")
		}
	}
}

func (f *Forwarder) deliver(ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode webhook event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.opts.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %s", resp.Status)
	}

	f.logger.WithFields(logrus.Fields{
		"url":    f.opts.URL,
		"status": resp.StatusCode,
	}).Debug("Webhook event delivered")
	return nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
