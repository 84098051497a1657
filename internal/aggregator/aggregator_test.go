package aggregator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/mblog/internal/microbit"
)

// recordingSink captures emitted snapshots for assertions
type recordingSink struct {
	mu    sync.Mutex
	snaps []*Snapshot
}

func (s *recordingSink) Emit(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
}

func (s *recordingSink) snapshots() []*Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Snapshot(nil), s.snaps...)
}

// AggregatorTestSuite tests the latest-value aggregation pipeline
type AggregatorTestSuite struct {
	suite.Suite
	sink *recordingSink
	agg  *Aggregator
}

func (suite *AggregatorTestSuite) SetupTest() {
	suite.sink = &recordingSink{}
	// A long interval keeps the periodic ticker out of finite tests; flushes
	// are driven explicitly or via Close.
	suite.agg = New(time.Hour, nil)
	suite.agg.AddSink(suite.sink)
}

func (suite *AggregatorTestSuite) TestLatestValueWins() {
	// GOAL: Verify repeated updates within one window coalesce to one entry
	//
	// TEST SCENARIO: Record same characteristic multiple times → flush →
	// snapshot holds exactly one entry with the last value

	suite.agg.apply(Update{Name: microbit.Temperature, Value: "20°C"})
	suite.agg.apply(Update{Name: microbit.Temperature, Value: "21°C"})
	suite.agg.apply(Update{Name: microbit.Temperature, Value: "22°C"})
	suite.agg.flush()

	snaps := suite.sink.snapshots()
	suite.Require().Len(snaps, 1, "exactly one snapshot MUST be emitted")
	suite.Assert().Equal(1, snaps[0].Values.Len(), "snapshot MUST have one entry per characteristic")
	v, ok := snaps[0].Values.Get(microbit.Temperature)
	suite.Require().True(ok, "entry MUST be present")
	suite.Assert().Equal("22°C", v, "last recorded value MUST win")
}

func (suite *AggregatorTestSuite) TestEmptyWindowEmitsNothing() {
	// GOAL: Verify a window with no updates produces no snapshot

	suite.agg.flush()
	suite.agg.flush()
	suite.Assert().Empty(suite.sink.snapshots(), "empty windows MUST NOT emit snapshots")
}

func (suite *AggregatorTestSuite) TestClearingBetweenWindows() {
	// GOAL: Verify no value is reported twice across windows
	//
	// TEST SCENARIO: Record → flush → flush again without updates → only the
	// first flush emits

	suite.agg.apply(Update{Name: microbit.ButtonA, Value: "state=1 (pressed)"})
	suite.agg.flush()
	suite.agg.flush()

	snaps := suite.sink.snapshots()
	suite.Require().Len(snaps, 1, "value MUST appear in exactly one snapshot")
}

func (suite *AggregatorTestSuite) TestSnapshotPreservesInsertionOrder() {
	// GOAL: Verify snapshot entries keep first-seen order, even when a value
	// is overwritten later in the window

	suite.agg.apply(Update{Name: microbit.Accelerometer, Value: "x=1mg y=2mg z=3mg"})
	suite.agg.apply(Update{Name: microbit.ButtonA, Value: "state=0 (not pressed)"})
	suite.agg.apply(Update{Name: microbit.Temperature, Value: "20°C"})
	suite.agg.apply(Update{Name: microbit.Accelerometer, Value: "x=4mg y=5mg z=6mg"})
	suite.agg.flush()

	snaps := suite.sink.snapshots()
	suite.Require().Len(snaps, 1)

	var order []microbit.Characteristic
	for pair := snaps[0].Values.Oldest(); pair != nil; pair = pair.Next() {
		order = append(order, pair.Key)
	}
	suite.Assert().Equal(
		[]microbit.Characteristic{microbit.Accelerometer, microbit.ButtonA, microbit.Temperature},
		order, "entries MUST keep first-seen order")

	v, _ := snaps[0].Values.Get(microbit.Accelerometer)
	suite.Assert().Equal("x=4mg y=5mg z=6mg", v, "overwrite MUST update the value in place")
}

func (suite *AggregatorTestSuite) TestOnUpdateObserver() {
	// GOAL: Verify the per-update observer sees every recorded update, not
	// the coalesced result

	type seen struct {
		name  microbit.Characteristic
		value string
	}
	var observed []seen
	suite.agg.OnUpdate(func(_ time.Time, name microbit.Characteristic, value string) {
		observed = append(observed, seen{name, value})
	})

	suite.agg.apply(Update{Name: microbit.ButtonB, Value: "state=1 (pressed)"})
	suite.agg.apply(Update{Name: microbit.ButtonB, Value: "state=0 (not pressed)"})

	suite.Require().Len(observed, 2, "observer MUST see each update individually")
	suite.Assert().Equal("state=1 (pressed)", observed[0].value)
	suite.Assert().Equal("state=0 (not pressed)", observed[1].value)
}

func (suite *AggregatorTestSuite) TestCloseFlushesPendingUpdates() {
	// GOAL: Verify shutdown drains pending updates into exactly one final flush
	//
	// TEST SCENARIO: Run aggregator → record updates → Close → pending values
	// appear in one snapshot and Close returns only after emission

	go suite.agg.Run()

	suite.agg.Record(microbit.Temperature, "19°C")
	suite.agg.Record(microbit.MagnetometerBearing, "90°")
	suite.agg.Close()

	snaps := suite.sink.snapshots()
	suite.Require().Len(snaps, 1, "exactly one final flush MUST occur")
	suite.Assert().Equal(2, snaps[0].Values.Len(), "final flush MUST cover all pending values")
}

func (suite *AggregatorTestSuite) TestCloseIdempotent() {
	// GOAL: Verify duplicate Close calls are a no-op

	go suite.agg.Run()
	suite.agg.Record(microbit.Event, "event_id=1 event_value=2")
	suite.agg.Close()
	suite.Assert().NotPanics(func() { suite.agg.Close() }, "second Close MUST be a no-op")
	suite.Require().Len(suite.sink.snapshots(), 1, "drain MUST happen exactly once")
}

func (suite *AggregatorTestSuite) TestCloseWithNoPendingUpdates() {
	// GOAL: Verify shutdown with an empty table emits nothing

	go suite.agg.Run()
	suite.agg.Close()
	suite.Assert().Empty(suite.sink.snapshots(), "empty final flush MUST NOT emit")
}

func (suite *AggregatorTestSuite) TestRecordAfterCloseDropped() {
	// GOAL: Verify late notifications after shutdown are dropped, not recorded

	go suite.agg.Run()
	suite.agg.Close()
	suite.Assert().NotPanics(func() {
		suite.agg.Record(microbit.ButtonA, "state=1 (pressed)")
	}, "Record after Close MUST be a no-op")
}

func (suite *AggregatorTestSuite) TestPeriodicFlush() {
	// GOAL: Verify the ticker-driven flush emits without shutdown

	agg := New(10*time.Millisecond, nil)
	sink := &recordingSink{}
	agg.AddSink(sink)
	go agg.Run()
	defer agg.Close()

	agg.Record(microbit.Temperature, "25°C")

	suite.Require().Eventually(func() bool {
		return len(sink.snapshots()) >= 1
	}, time.Second, 5*time.Millisecond, "periodic flush MUST emit the recorded value")

	v, ok := sink.snapshots()[0].Values.Get(microbit.Temperature)
	suite.Require().True(ok)
	suite.Assert().Equal("25°C", v)
}

func TestAggregatorSuite(t *testing.T) {
	suite.Run(t, new(AggregatorTestSuite))
}
