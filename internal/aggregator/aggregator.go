// Package aggregator implements the latest-value-per-characteristic
// aggregation pipeline: notification callbacks feed updates into a single
// owning goroutine, which flushes an immutable snapshot to the registered
// sinks on a fixed cadence and once more on shutdown.
package aggregator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/mblog/internal/microbit"
)

// DefaultFlushInterval is the snapshot cadence used when none is configured.
const DefaultFlushInterval = 1 * time.Second

// updateBuffer bounds the inbound update channel. Sensor streams coalesce to
// latest-value-wins anyway, so dropping the oldest buffered update under
// pressure is observably equivalent to a flush having run in between.
const updateBuffer = 128

// Update is one decoded notification.
type Update struct {
	Name  microbit.Characteristic
	Value string
}

// Snapshot is an immutable copy of the latest-value table taken at one flush
// instant. Entries preserve first-seen order. Sinks must not mutate it.
type Snapshot struct {
	At     time.Time
	Values *orderedmap.OrderedMap[microbit.Characteristic, string]
}

// Sink consumes non-empty snapshots emitted by the aggregator.
type Sink interface {
	Emit(snap *Snapshot)
}

// UpdateFunc observes each individual update as it is recorded, before it is
// folded into the table. Used for immediate-mode webhook dispatch.
type UpdateFunc func(at time.Time, name microbit.Characteristic, value string)

// Aggregator owns the latest-value table. All mutation happens on the Run
// goroutine; Record is safe to call from any notification callback.
type Aggregator struct {
	interval time.Duration
	updates  chan Update
	sinks    []Sink
	onUpdate UpdateFunc
	logger   *logrus.Logger

	table   *orderedmap.OrderedMap[microbit.Characteristic, string]
	now     func() time.Time
	dropped atomic.Uint64

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// New creates an aggregator flushing at the given interval.
// A non-positive interval falls back to DefaultFlushInterval.
func New(interval time.Duration, logger *logrus.Logger) *Aggregator {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Aggregator{
		interval: interval,
		updates:  make(chan Update, updateBuffer),
		logger:   logger,
		table:    orderedmap.New[microbit.Characteristic, string](),
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// AddSink registers a snapshot consumer. Not safe to call after Run started.
func (a *Aggregator) AddSink(s Sink) {
	if s != nil {
		a.sinks = append(a.sinks, s)
	}
}

// OnUpdate registers the per-update observer. Not safe to call after Run started.
func (a *Aggregator) OnUpdate(fn UpdateFunc) {
	a.onUpdate = fn
}

// Record accepts one decoded characteristic value. It never blocks: if the
// inbound buffer is full the oldest pending update is discarded, which under
// latest-value-wins semantics only advances the coalescing window.
func (a *Aggregator) Record(name microbit.Characteristic, value string) {
	if a.closed.Load() {
		return
	}
	u := Update{Name: name, Value: value}
	select {
	case a.updates <- u:
	default:
		select {
		case <-a.updates:
			a.dropped.Add(1)
		default:
		}
		if !a.closed.Load() {
			select {
			case a.updates <- u:
			default:
			}
		}
	}
}

// Run consumes updates and flushes snapshots until Close is called. It always
// performs exactly one final flush of any pending values before returning.
func (a *Aggregator) Run() {
	defer close(a.done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case u, ok := <-a.updates:
			if !ok {
				a.flush()
				return
			}
			a.apply(u)
		case <-ticker.C:
			a.flush()
		}
	}
}

// Close stops the aggregator and waits for the final flush to complete.
// Safe to call more than once. Callers must stop producing updates first;
// Record calls racing Close are dropped, not recorded.
func (a *Aggregator) Close() {
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		close(a.updates)
	})
	<-a.done
}

// Dropped reports how many buffered updates were discarded under pressure.
func (a *Aggregator) Dropped() uint64 {
	return a.dropped.Load()
}

func (a *Aggregator) apply(u Update) {
	if a.onUpdate != nil {
		a.onUpdate(a.now(), u.Name, u.Value)
	}
	a.table.Set(u.Name, u.Value)
}

// flush takes a point-in-time snapshot of the table, clears it, and emits the
// snapshot to every sink. Empty windows emit nothing.
func (a *Aggregator) flush() {
	if a.table.Len() == 0 {
		return
	}

	snap := &Snapshot{At: a.now(), Values: a.table}
	a.table = orderedmap.New[microbit.Characteristic, string]()

	if dropped := a.dropped.Swap(0); dropped > 0 {
		a.logger.WithField("dropped", dropped).Warn("Update buffer overflowed; coalesced oldest updates")
	}

	for _, s := range a.sinks {
		s.Emit(snap)
	}
}
