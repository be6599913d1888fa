package sniffer_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/serialsniff/internal/sniffer"
	"github.com/banshee-data/serialsniff/internal/testutil"
	"github.com/banshee-data/serialsniff/internal/timeutil"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type step struct {
	after  time.Duration
	origin sniffer.Origin
	data   string
}

func feed(agg *sniffer.Aggregator, clock *timeutil.MockClock, steps []step) {
	for _, s := range steps {
		clock.Advance(s.after)
		agg.Admit(s.origin, []byte(s.data))
	}
}

type emitted struct {
	At      time.Duration
	Origin  sniffer.Origin
	Content string
}

func summarize(packets []sniffer.SniffedPacket) []emitted {
	out := make([]emitted, 0, len(packets))
	for _, p := range packets {
		out = append(out, emitted{At: p.When.Sub(epoch), Origin: p.Origin, Content: string(p.Content)})
	}
	return out
}

func TestAggregator(t *testing.T) {
	ms := time.Millisecond
	tests := []struct {
		name       string
		collapsing bool
		steps      []step
		want       []emitted
	}{
		{
			name: "no collapsing emits every packet",
			steps: []step{
				{0, sniffer.FromReal, "a"},
				{ms, sniffer.FromInjected, "b"},
				{ms, sniffer.FromReal, "c"},
				{ms, sniffer.FromReal, "d"},
			},
			want: []emitted{
				{0, sniffer.FromReal, "a"},
				{ms, sniffer.FromInjected, "b"},
				{2 * ms, sniffer.FromReal, "c"},
				{3 * ms, sniffer.FromReal, "d"},
			},
		},
		{
			name:       "first packet is held",
			collapsing: true,
			steps:      []step{{0, sniffer.FromReal, "ab"}},
			want:       []emitted{},
		},
		{
			name:       "close packets merge and origin switch emits",
			collapsing: true,
			steps: []step{
				{0, sniffer.FromReal, "ab"},
				{100 * ms, sniffer.FromReal, "cd"},
				{50 * ms, sniffer.FromInjected, "x"},
			},
			want: []emitted{{150 * ms, sniffer.FromReal, "abcd"}},
		},
		{
			name:       "gap of exactly the window still merges",
			collapsing: true,
			steps: []step{
				{0, sniffer.FromReal, "a"},
				{sniffer.CollapseWindow, sniffer.FromReal, "b"},
				{ms, sniffer.FromInjected, "c"},
			},
			want: []emitted{{1001 * ms, sniffer.FromReal, "ab"}},
		},
		{
			name:       "late packet from same origin splits",
			collapsing: true,
			steps: []step{
				{0, sniffer.FromReal, "a"},
				{1500 * ms, sniffer.FromReal, "b"},
			},
			want: []emitted{{1500 * ms, sniffer.FromReal, "a"}},
		},
		{
			name:       "window measured from last packet of the run",
			collapsing: true,
			steps: []step{
				{0, sniffer.FromInjected, "1"},
				{900 * ms, sniffer.FromInjected, "2"},
				{900 * ms, sniffer.FromInjected, "3"},
				{900 * ms, sniffer.FromReal, "r"},
			},
			want: []emitted{{2700 * ms, sniffer.FromInjected, "123"}},
		},
		{
			name:       "alternating origins",
			collapsing: true,
			steps: []step{
				{0, sniffer.FromInjected, "q1"},
				{10 * ms, sniffer.FromReal, "a1"},
				{10 * ms, sniffer.FromInjected, "q2"},
				{10 * ms, sniffer.FromReal, "a2"},
			},
			want: []emitted{
				{10 * ms, sniffer.FromInjected, "q1"},
				{20 * ms, sniffer.FromReal, "a1"},
				{30 * ms, sniffer.FromInjected, "q2"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := timeutil.NewMockClock(epoch)
			rec := testutil.NewRecorder()
			agg := sniffer.NewAggregator(tt.collapsing, clock, rec)

			feed(agg, clock, tt.steps)

			if diff := cmp.Diff(tt.want, summarize(rec.Packets())); diff != "" {
				t.Errorf("emitted packets mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAggregator_Flush(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	rec := testutil.NewRecorder()
	agg := sniffer.NewAggregator(true, clock, rec)

	if agg.Flush() {
		t.Fatal("Flush on an empty aggregator should emit nothing")
	}

	feed(agg, clock, []step{
		{0, sniffer.FromReal, "he"},
		{10 * time.Millisecond, sniffer.FromReal, "llo"},
	})
	if origin, n := agg.Pending(); origin != sniffer.FromReal || n != 5 {
		t.Fatalf("Pending() = %v, %d; want real, 5", origin, n)
	}

	clock.Advance(time.Second)
	if !agg.Flush() {
		t.Fatal("Flush should emit the pending run")
	}
	if origin, n := agg.Pending(); origin != sniffer.Undefined || n != 0 {
		t.Errorf("after Flush Pending() = %v, %d; want undefined, 0", origin, n)
	}

	// The next packet starts a fresh run rather than being compared with the
	// flushed one.
	feed(agg, clock, []step{
		{0, sniffer.FromReal, "!"},
		{0, sniffer.FromInjected, "?"},
	})

	want := []emitted{
		{1010 * time.Millisecond, sniffer.FromReal, "hello"},
		{1010 * time.Millisecond, sniffer.FromReal, "!"},
	}
	if diff := cmp.Diff(want, summarize(rec.Packets())); diff != "" {
		t.Errorf("emitted packets mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregator_DoesNotRetainCallerBuffer(t *testing.T) {
	for _, collapsing := range []bool{false, true} {
		clock := timeutil.NewMockClock(epoch)
		rec := testutil.NewRecorder()
		agg := sniffer.NewAggregator(collapsing, clock, rec)

		buf := []byte("abc")
		agg.Admit(sniffer.FromReal, buf)
		copy(buf, "xyz")
		agg.Admit(sniffer.FromInjected, buf)
		copy(buf, "!!!")

		got := rec.Packets()
		if len(got) == 0 {
			t.Fatalf("collapsing=%v: nothing emitted", collapsing)
		}
		if string(got[0].Content) != "abc" {
			t.Errorf("collapsing=%v: first packet content = %q, want %q", collapsing, got[0].Content, "abc")
		}
	}
}

func TestAggregator_NilClockUsesRealTime(t *testing.T) {
	rec := testutil.NewRecorder()
	agg := sniffer.NewAggregator(false, nil, rec)

	before := time.Now()
	agg.Admit(sniffer.FromReal, []byte{1})
	got := rec.Packets()
	if len(got) != 1 {
		t.Fatalf("got %d packets, want 1", len(got))
	}
	if got[0].When.Before(before) {
		t.Errorf("packet time %v is before admission at %v", got[0].When, before)
	}
}
