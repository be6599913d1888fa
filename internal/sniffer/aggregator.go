package sniffer

import (
	"time"

	"github.com/banshee-data/serialsniff/internal/timeutil"
)

// CollapseWindow is the largest gap between two same-origin packets that
// still merges them into one run.
const CollapseWindow = 1000 * time.Millisecond

// Aggregator decides when packets are handed to the observer. With collapsing
// off every packet is emitted as it arrives. With collapsing on, consecutive
// packets from the same origin that arrive within CollapseWindow of each other
// are merged, and the run is emitted only when a packet from the other origin,
// or a late packet from the same origin, arrives.
//
// There is no idle timer: the last run of a session stays pending until
// another packet arrives or Flush is called.
//
// An Aggregator is not safe for concurrent use. The Engine confines it to
// its coordinating goroutine.
type Aggregator struct {
	collapsing bool
	clock      timeutil.Clock
	observer   Observer

	lastOrigin   Origin
	buffer       []byte
	lastActivity time.Time
}

// NewAggregator returns an aggregator that emits to observer and reads the
// time from clock.
func NewAggregator(collapsing bool, clock timeutil.Clock, observer Observer) *Aggregator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Aggregator{
		collapsing: collapsing,
		clock:      clock,
		observer:   observer,
		lastOrigin: Undefined,
	}
}

// Admit processes one packet read from origin. data is copied; the caller may
// reuse it.
func (a *Aggregator) Admit(origin Origin, data []byte) {
	now := a.clock.Now()

	if !a.collapsing {
		a.emit(SniffedPacket{When: now, Origin: origin, Content: clone(data)})
		return
	}

	switch {
	case a.lastOrigin == Undefined:
		a.start(origin, data, now)

	case origin == a.lastOrigin && now.Sub(a.lastActivity) <= CollapseWindow:
		a.buffer = append(a.buffer, data...)
		a.lastActivity = now

	default:
		a.emit(SniffedPacket{When: now, Origin: a.lastOrigin, Content: a.buffer})
		a.start(origin, data, now)
	}
}

// Flush emits the pending run, if any, and returns the aggregator to its
// initial state. It reports whether a packet was emitted.
func (a *Aggregator) Flush() bool {
	if a.lastOrigin == Undefined {
		return false
	}
	a.emit(SniffedPacket{When: a.clock.Now(), Origin: a.lastOrigin, Content: a.buffer})
	a.lastOrigin = Undefined
	a.buffer = nil
	a.lastActivity = time.Time{}
	return true
}

// Pending returns the origin and size of the run waiting to be emitted.
// Origin is Undefined when nothing is pending.
func (a *Aggregator) Pending() (Origin, int) {
	return a.lastOrigin, len(a.buffer)
}

// start opens a new run. The buffer is always freshly allocated so the slice
// handed to the observer by the previous emit is never written again.
func (a *Aggregator) start(origin Origin, data []byte, now time.Time) {
	a.lastOrigin = origin
	a.buffer = clone(data)
	a.lastActivity = now
}

func (a *Aggregator) emit(p SniffedPacket) {
	if a.observer != nil {
		a.observer.Observe(p)
	}
}

func clone(b []byte) []byte {
	return append(make([]byte, 0, len(b)), b...)
}
