package main

import (
	"fmt"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter displays a countdown progress line while a scan is running.
//
// Usage:
//
//	p := NewCountdownProgressPrinter(...)
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use. Start may be called at most once; Stop is
// safe to call multiple times.
type ProgressPrinter struct {
	prefix    string
	duration  time.Duration
	startTime time.Time
	ticker    atomic.Pointer[time.Ticker]
	stopChan  chan struct{}
	done      chan struct{} // closed when goroutine exits
	started   atomic.Bool   // ensures Start is called at most once
}

// NewCountdownProgressPrinter creates a progress printer that counts down from
// the duration. A zero duration shows elapsed seconds instead.
func NewCountdownProgressPrinter(prefix string, duration time.Duration) *ProgressPrinter {
	return &ProgressPrinter{
		prefix:   prefix,
		duration: duration,
	}
}

// Start begins displaying progress updates in a background goroutine.
// Panics if called more than once on the same ProgressPrinter instance.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}

	p.done = make(chan struct{})
	p.stopChan = make(chan struct{})
	p.startTime = time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	p.ticker.Store(ticker)

	fmt.Printf("\r%s (scanning...)   ", p.prefix)

	go func() {
		defer close(p.done)
		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				elapsed := time.Since(p.startTime)
				var seconds int
				if p.duration > 0 {
					remaining := p.duration - elapsed
					if remaining > 0 {
						// Round to the nearest second
						seconds = int(remaining.Seconds() + 0.5)
					}
				} else {
					seconds = int(elapsed.Seconds())
				}
				fmt.Printf("\r%s (scanning %ds)   ", p.prefix, seconds)
			}
		}
	}()
}

// Stop stops the progress display and clears the line.
// Safe to call multiple times and from multiple goroutines; only the first
// call stops the ticker and waits for the goroutine to exit.
func (p *ProgressPrinter) Stop() {
	ticker := p.ticker.Swap(nil)
	if ticker == nil {
		return // Already stopped
	}

	ticker.Stop()
	close(p.stopChan)
	<-p.done

	fmt.Print(clearLineSequence)
}
