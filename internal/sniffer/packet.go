// Package sniffer relays bytes between the two ports of a monitored serial
// link and reports every chunk it sees as a timestamped, origin-tagged
// packet.
package sniffer

import (
	"fmt"
	"strings"
	"time"
)

// Origin tells which side of the link a packet came from.
type Origin int

const (
	// Undefined is only ever the initial aggregator state; no emitted packet
	// carries it.
	Undefined Origin = iota
	// FromReal marks bytes sent by the physical device.
	FromReal
	// FromInjected marks bytes sent by the software under observation.
	FromInjected
)

func (o Origin) String() string {
	switch o {
	case Undefined:
		return "undefined"
	case FromReal:
		return "real"
	case FromInjected:
		return "injected"
	default:
		return fmt.Sprintf("Origin(%d)", int(o))
	}
}

// ParseOrigin is the inverse of Origin.String for the two emitted origins.
func ParseOrigin(s string) (Origin, error) {
	switch strings.ToLower(s) {
	case "real":
		return FromReal, nil
	case "injected":
		return FromInjected, nil
	}
	return Undefined, fmt.Errorf("unknown origin %q", s)
}

// Mode decides whether the engine forwards what it reads.
type Mode int

const (
	// Relay copies every byte to the opposite port: the sniffer sits in the
	// middle of the link, typically behind a virtual null-modem pair.
	Relay Mode = iota
	// Passive only observes. Used with a Y-cable that already duplicates the
	// line onto both ports.
	Passive
)

func (m Mode) String() string {
	switch m {
	case Relay:
		return "relay"
	case Passive:
		return "passive"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "relay" and "passive" (or "y-cable").
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "relay":
		return Relay, nil
	case "passive", "y-cable", "ycable":
		return Passive, nil
	}
	return Relay, fmt.Errorf("unknown mode %q: expected relay or passive", s)
}

// SniffedPacket is one observed chunk of traffic. When is the time the packet
// was emitted, which for a coalesced run is the arrival time of the packet
// that closed it. Content must not be modified after emission.
type SniffedPacket struct {
	When    time.Time
	Origin  Origin
	Content []byte
}

// Observer receives emitted packets. Observe is called once per packet, in
// emission order, from the engine's single coordinating goroutine, so
// implementations need no locking of their own against the engine. Observe
// must not call back into the Engine.
type Observer interface {
	Observe(SniffedPacket)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(SniffedPacket)

func (f ObserverFunc) Observe(p SniffedPacket) { f(p) }
