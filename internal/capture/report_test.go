package capture

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/serialsniff/internal/sniffer"
)

func TestHistogram(t *testing.T) {
	assert.Nil(t, Histogram(nil))

	packets := []sniffer.SniffedPacket{
		{When: t0, Origin: sniffer.FromInjected, Content: make([]byte, 3)},
		{When: t0.Add(200 * time.Millisecond), Origin: sniffer.FromReal, Content: make([]byte, 10)},
		{When: t0.Add(999 * time.Millisecond), Origin: sniffer.FromReal, Content: make([]byte, 1)},
		{When: t0.Add(2500 * time.Millisecond), Origin: sniffer.FromInjected, Content: make([]byte, 4)},
	}
	want := []Bucket{
		{Offset: 0, Real: 11, Injected: 3},
		{Offset: time.Second},
		{Offset: 2 * time.Second, Injected: 4},
	}
	if diff := cmp.Diff(want, Histogram(packets)); diff != "" {
		t.Errorf("Histogram mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderReport(t *testing.T) {
	sess := Session{RealPort: "COM3", InjectedPort: "COM2", LineOptions: "9600 8N1", StartedAt: t0}
	packets := []sniffer.SniffedPacket{
		{When: t0, Origin: sniffer.FromInjected, Content: []byte("AT\r")},
		{When: t0.Add(time.Second), Origin: sniffer.FromReal, Content: []byte("OK\r\n")},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderReport(&buf, sess, packets))

	html := buf.String()
	assert.Contains(t, html, "Bytes per second")
	assert.Contains(t, html, "COM3")
	assert.Contains(t, html, "echarts")
}
