package observer

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/serialsniff/internal/hexdump"
	"github.com/banshee-data/serialsniff/internal/sniffer"
	"github.com/banshee-data/serialsniff/internal/testutil"
)

func TestAdminRoutes_Stats(t *testing.T) {
	b := NewBroadcaster(1)
	stats := &Stats{}
	stats.Observe(sniffer.SniffedPacket{When: t0, Origin: sniffer.FromReal, Content: []byte("abc")})

	mux := http.NewServeMux()
	AttachAdminRoutes(mux, b, stats, FormatOptions{})

	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.LocalRequest(http.MethodGet, "/debug/sniffer/stats"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var got struct {
		Real        Counters `json:"real"`
		Subscribers int      `json:"subscribers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, Counters{Packets: 1, Bytes: 3}, got.Real)
	assert.Equal(t, 0, got.Subscribers)
}

func TestAdminRoutes_TailPage(t *testing.T) {
	mux := http.NewServeMux()
	AttachAdminRoutes(mux, NewBroadcaster(1), &Stats{}, FormatOptions{})

	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.LocalRequest(http.MethodGet, "/debug/sniffer"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Body.String(), "/debug/sniffer/tail")
}

func TestAdminRoutes_TailRejectsPost(t *testing.T) {
	mux := http.NewServeMux()
	AttachAdminRoutes(mux, NewBroadcaster(1), &Stats{}, FormatOptions{})

	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, testutil.LocalRequest(http.MethodPost, "/debug/sniffer/tail"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestAdminRoutes_TailStreamsPackets(t *testing.T) {
	b := NewBroadcaster(8)
	mux := http.NewServeMux()
	AttachAdminRoutes(mux, b, &Stats{}, FormatOptions{Dump: hexdump.Options{BytesPerRow: 2}})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/debug/sniffer/tail")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": ping\n", line)

	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	b.Observe(sniffer.SniffedPacket{When: t0, Origin: sniffer.FromInjected, Content: []byte("AT\r")})

	// Skip the blank line that ends the ping, then read one event.
	var event []string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			if len(event) > 0 {
				break
			}
			continue
		}
		event = append(event, line)
	}
	assert.Equal(t, []string{
		"event: injected",
		"data: > 41 54 | AT",
		"data:   0d    | .",
	}, event)
}
