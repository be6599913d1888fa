// Package testutil provides shared test helpers: a recording packet observer
// and small HTTP assertions for the debug handlers.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/serialsniff/internal/sniffer"
)

// Recorder is a sniffer.Observer that keeps every packet it is given.
type Recorder struct {
	mu      sync.Mutex
	packets []sniffer.SniffedPacket
	notify  chan struct{}

	// OnObserve, if set, is called from Observe before the packet is stored.
	OnObserve func(sniffer.SniffedPacket)
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// Observe implements sniffer.Observer.
func (r *Recorder) Observe(p sniffer.SniffedPacket) {
	if r.OnObserve != nil {
		r.OnObserve(p)
	}
	r.mu.Lock()
	r.packets = append(r.packets, p)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Packets returns a copy of the packets observed so far.
func (r *Recorder) Packets() []sniffer.SniffedPacket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sniffer.SniffedPacket(nil), r.packets...)
}

// WaitFor blocks until at least n packets were observed or the timeout
// elapses, and returns what was observed.
func (r *Recorder) WaitFor(n int, timeout time.Duration) []sniffer.SniffedPacket {
	deadline := time.After(timeout)
	for {
		if got := r.Packets(); len(got) >= n {
			return got
		}
		select {
		case <-r.notify:
		case <-deadline:
			return r.Packets()
		}
	}
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// LocalRequest creates a test HTTP request from a loopback address, which the
// debug handlers require.
func LocalRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// NewTestRecorder creates a new HTTP test recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
