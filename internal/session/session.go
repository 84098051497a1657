// Package session wires the connection lifecycle to the aggregation pipeline:
// resolve the device, connect, subscribe the configured characteristics, run
// the flush loop for a bounded duration, and drain everything on the way out.
//
// The session moves through Resolving, Connected, Listening, Draining, and
// Disconnected. Duration expiry, an unexpected disconnect, and caller
// cancellation all converge on the same drain sequence, so no decoded value
// is lost regardless of how the listening phase ends.
package session

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/mblog/internal/aggregator"
	"github.com/srg/mblog/internal/device"
	"github.com/srg/mblog/internal/microbit"
	"github.com/srg/mblog/internal/webhook"
)

// ErrNoSubscriptions is returned when every characteristic subscription
// failed; with nothing to listen to the session is pointless.
var ErrNoSubscriptions = errors.New(
	"failed to subscribe to any characteristics - ensure the micro:bit program enables the corresponding BLE services")

// DefaultConnectTimeout bounds the dial + profile discovery phase.
const DefaultConnectTimeout = 30 * time.Second

// Options configures one logging session.
type Options struct {
	// Device selection: Address wins when set, otherwise Name substring.
	Address string
	Name    string

	ScanTimeout    time.Duration
	ConnectTimeout time.Duration

	// Duration bounds the listening phase.
	Duration time.Duration

	// Characteristics to subscribe; empty means the full micro:bit set.
	Characteristics []microbit.Characteristic

	// FlushInterval is the aggregation cadence; zero means the default 1s.
	FlushInterval time.Duration

	// Webhook enables forwarding when non-nil.
	Webhook *webhook.Options

	// Output receives console snapshots; defaults to os.Stdout.
	Output io.Writer
}

// Session runs one bounded listen-and-log pass against a micro:bit.
type Session struct {
	opts   Options
	client device.Client
	logger *logrus.Logger
}

// New creates a session. client is the BLE entry point; tests inject fakes.
func New(opts Options, client device.Client, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if len(opts.Characteristics) == 0 {
		opts.Characteristics = microbit.AllCharacteristics()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Session{opts: opts, client: client, logger: logger}
}

// Run executes the full session. Cancelling ctx (e.g. Ctrl+C) ends the
// listening phase early and still drains; it is not an error.
func (s *Session) Run(ctx context.Context) error {
	// Resolving
	addr, err := s.client.Resolve(ctx, s.opts.Address, s.opts.Name, s.opts.ScanTimeout)
	if err != nil {
		return err
	}

	// Connected
	conn, err := s.client.Connect(ctx, addr, s.opts.ConnectTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	agg := aggregator.New(s.opts.FlushInterval, s.logger)
	agg.AddSink(aggregator.NewConsoleSink(s.opts.Output))

	var forwarder *webhook.Forwarder
	if s.opts.Webhook != nil {
		forwarder = webhook.NewForwarder(*s.opts.Webhook, s.logger)
		switch forwarder.Mode() {
		case webhook.ModeBatch:
			agg.AddSink(forwarder)
		case webhook.ModeImmediate:
			agg.OnUpdate(forwarder.RecordUpdate)
		}
		forwarder.Start()
	}

	go agg.Run()

	// Listening: subscribe everything, tolerating individual failures.
	active, err := s.subscribeAll(conn, agg)
	if err != nil {
		agg.Close()
		if forwarder != nil {
			forwarder.Close()
		}
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"characteristics": strings.Join(active, ", "),
		"duration":        s.opts.Duration,
	}).Info("Listening for notifications...")

	// Zero duration listens until disconnect or cancellation.
	var timerC <-chan time.Time
	if s.opts.Duration > 0 {
		timer := time.NewTimer(s.opts.Duration)
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case <-timerC:
		s.logger.Info("Time limit reached, stopping notifications")
	case <-conn.Disconnected():
		s.logger.Info("Device disconnected before duration elapsed")
	case <-ctx.Done():
		s.logger.Info("Interrupted, stopping notifications")
	}

	// Draining: stop subscriptions first so no late notification can land
	// after the final flush, then flush, then let the webhook queue empty.
	conn.UnsubscribeAll()
	agg.Close()
	if forwarder != nil {
		forwarder.Close()
	}

	// Disconnected via the deferred conn.Close.
	return nil
}

// subscribeAll attempts every configured characteristic. Individual failures
// are demoted to warnings; only a complete failure is fatal.
func (s *Session) subscribeAll(conn device.Conn, agg *aggregator.Aggregator) ([]string, error) {
	var active, skipped []string

	for _, c := range s.opts.Characteristics {
		name := c // capture for the notification closure
		err := conn.Subscribe(c.UUID(), func(data []byte) {
			agg.Record(name, name.Decode(data))
		})
		if err != nil {
			skipped = append(skipped, c.String())
			s.logger.WithError(err).WithField("characteristic", c.String()).Debug("Unable to subscribe")
			continue
		}
		active = append(active, c.String())
	}

	if len(active) == 0 {
		return nil, ErrNoSubscriptions
	}
	if len(skipped) > 0 {
		s.logger.WithField("characteristics", strings.Join(skipped, ", ")).
			Warn("Skipped characteristics (service not started on micro:bit?)")
	}
	return active, nil
}
