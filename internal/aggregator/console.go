package aggregator

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// ConsoleSink prints snapshots to a writer: a timestamp header line followed
// by one indented name/value line per characteristic, in snapshot order.
type ConsoleSink struct {
	w      io.Writer
	header *color.Color
}

// NewConsoleSink creates a console sink writing to w. The timestamp header is
// colorized only when w is a terminal.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}

	header := color.New(color.FgCyan)
	if f, ok := w.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		header.DisableColor()
	}

	return &ConsoleSink{w: w, header: header}
}

// Emit writes one snapshot. The aggregator never emits empty snapshots, but
// an empty one would print nothing here either.
func (s *ConsoleSink) Emit(snap *Snapshot) {
	if snap == nil || snap.Values.Len() == 0 {
		return
	}

	ts := float64(snap.At.UnixNano()) / 1e9
	_, _ = s.header.Fprintf(s.w, "[%.3f]\n", ts)
	for pair := snap.Values.Oldest(); pair != nil; pair = pair.Next() {
		_, _ = fmt.Fprintf(s.w, "  %s: %s\n", pair.Key, pair.Value)
	}
}
