package observer

import (
	"sync"
	"time"

	"github.com/banshee-data/serialsniff/internal/sniffer"
)

// Counters are the totals for one origin.
type Counters struct {
	Packets uint64 `json:"packets"`
	Bytes   uint64 `json:"bytes"`
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Real     Counters   `json:"real"`
	Injected Counters   `json:"injected"`
	First    *time.Time `json:"first,omitempty"`
	Last     *time.Time `json:"last,omitempty"`
}

// Stats counts packets and bytes per origin.
type Stats struct {
	mu   sync.Mutex
	snap Snapshot
}

// Observe implements sniffer.Observer.
func (s *Stats) Observe(p sniffer.SniffedPacket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c *Counters
	switch p.Origin {
	case sniffer.FromReal:
		c = &s.snap.Real
	case sniffer.FromInjected:
		c = &s.snap.Injected
	default:
		return
	}
	c.Packets++
	c.Bytes += uint64(len(p.Content))

	when := p.When
	if s.snap.First == nil {
		first := when
		s.snap.First = &first
	}
	s.snap.Last = &when
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.snap
	if out.First != nil {
		first := *out.First
		out.First = &first
	}
	if out.Last != nil {
		last := *out.Last
		out.Last = &last
	}
	return out
}

// Reset zeroes the counters.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{}
}
