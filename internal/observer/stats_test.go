package observer

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/serialsniff/internal/sniffer"
)

func TestStats(t *testing.T) {
	var s Stats
	if snap := s.Snapshot(); snap.First != nil || snap.Last != nil {
		t.Fatal("empty stats should have no first/last time")
	}

	s.Observe(sniffer.SniffedPacket{When: t0, Origin: sniffer.FromInjected, Content: []byte("AT\r")})
	s.Observe(sniffer.SniffedPacket{When: t0.Add(time.Second), Origin: sniffer.FromReal, Content: []byte("OK\r\n")})
	s.Observe(sniffer.SniffedPacket{When: t0.Add(2 * time.Second), Origin: sniffer.FromReal, Content: []byte("x")})
	s.Observe(sniffer.SniffedPacket{When: t0.Add(3 * time.Second), Origin: sniffer.Undefined, Content: []byte("ignored")})

	first, last := t0, t0.Add(2*time.Second)
	want := Snapshot{
		Real:     Counters{Packets: 2, Bytes: 5},
		Injected: Counters{Packets: 1, Bytes: 3},
		First:    &first,
		Last:     &last,
	}
	snap := s.Snapshot()
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
	}

	// The snapshot is a copy.
	*snap.First = time.Time{}
	if s.Snapshot().First.IsZero() {
		t.Error("modifying a snapshot changed the stats")
	}

	s.Reset()
	if diff := cmp.Diff(Snapshot{}, s.Snapshot()); diff != "" {
		t.Errorf("Reset left data behind:\n%s", diff)
	}
}
