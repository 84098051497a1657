package aggregator

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/mblog/internal/microbit"
)

// ConsoleSinkTestSuite tests the console snapshot formatting
type ConsoleSinkTestSuite struct {
	suite.Suite
}

func (suite *ConsoleSinkTestSuite) snapshot(at time.Time, entries ...[2]string) *Snapshot {
	values := orderedmap.New[microbit.Characteristic, string]()
	for _, e := range entries {
		c, err := microbit.ParseCharacteristic(e[0])
		suite.Require().NoError(err)
		values.Set(c, e[1])
	}
	return &Snapshot{At: at, Values: values}
}

func (suite *ConsoleSinkTestSuite) TestEmitFormat() {
	// GOAL: Verify the exact console rendering of a snapshot
	//
	// TEST SCENARIO: Emit a fixed snapshot → header carries millisecond
	// precision unix seconds → one indented line per entry in order

	var buf bytes.Buffer
	sink := NewConsoleSink(&buf)

	at := time.Unix(1700000000, 123_000_000)
	sink.Emit(suite.snapshot(at,
		[2]string{"button_a", "state=1 (pressed)"},
		[2]string{"temperature", "21°C"},
	))

	expected := "[1700000000.123]\n" +
		"  button_a: state=1 (pressed)\n" +
		"  temperature: 21°C\n"
	suite.Assert().Equal(expected, buf.String(), "console output MUST match exactly")
}

func (suite *ConsoleSinkTestSuite) TestEmitPreservesSnapshotOrder() {
	// GOAL: Verify lines follow snapshot entry order, not name sort order

	var buf bytes.Buffer
	sink := NewConsoleSink(&buf)

	sink.Emit(suite.snapshot(time.Unix(1, 0),
		[2]string{"temperature", "21°C"},
		[2]string{"accelerometer", "x=0mg y=0mg z=0mg"},
		[2]string{"button_a", "state=0 (not pressed)"},
	))

	expected := "[1.000]\n" +
		"  temperature: 21°C\n" +
		"  accelerometer: x=0mg y=0mg z=0mg\n" +
		"  button_a: state=0 (not pressed)\n"
	suite.Assert().Equal(expected, buf.String(), "line order MUST follow snapshot order")
}

func (suite *ConsoleSinkTestSuite) TestEmitNothingForEmptySnapshot() {
	// GOAL: Verify empty or nil snapshots produce no output

	var buf bytes.Buffer
	sink := NewConsoleSink(&buf)

	sink.Emit(nil)
	sink.Emit(&Snapshot{At: time.Now(), Values: orderedmap.New[microbit.Characteristic, string]()})

	suite.Assert().Empty(buf.String(), "empty snapshots MUST NOT produce output")
}

func (suite *ConsoleSinkTestSuite) TestNoColorCodesForNonTerminal() {
	// GOAL: Verify a plain writer gets no ANSI escape sequences

	var buf bytes.Buffer
	sink := NewConsoleSink(&buf)
	sink.Emit(suite.snapshot(time.Unix(2, 500_000_000), [2]string{"event", "event_id=1 event_value=2"}))

	suite.Assert().NotContains(buf.String(), "\x1b[", "non-terminal output MUST be colorless")
	suite.Assert().Contains(buf.String(), "[2.500]\n", "header MUST still be printed")
}

func TestConsoleSinkSuite(t *testing.T) {
	suite.Run(t, new(ConsoleSinkTestSuite))
}
