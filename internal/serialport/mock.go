package serialport

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrPortClosed is returned by TestablePort once Close has been called.
var ErrPortClosed = errors.New("serial port closed")

// TestablePort implements Porter with configurable behaviour for testing.
// Reads block until data is fed with Inject or the port is closed, mirroring
// a real port with no read timeout.
type TestablePort struct {
	mu sync.Mutex

	// Name is informational only.
	Name string

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer

	// WriteLatency adds a delay to each Write call
	WriteLatency time.Duration

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by every Write call while set
	WriteError error

	// CloseError is returned by Close if set
	CloseError error

	closed     bool
	readCalls  int
	writeCalls int

	readCond *sync.Cond
	written  chan struct{}
}

// NewTestablePort creates a new TestablePort for testing.
func NewTestablePort(name string) *TestablePort {
	p := &TestablePort{Name: name, written: make(chan struct{}, 1)}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

// Read blocks until injected data is available and returns all of it that
// fits in buf.
func (p *TestablePort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readCalls++

	for !p.closed && p.ReadError == nil && p.readBuf.Len() == 0 {
		p.readCond.Wait()
	}
	if p.closed {
		return 0, ErrPortClosed
	}
	if p.ReadError != nil {
		err := p.ReadError
		p.ReadError = nil
		return 0, err
	}
	return p.readBuf.Read(buf)
}

// Write appends to the captured output.
func (p *TestablePort) Write(data []byte) (int, error) {
	p.mu.Lock()
	p.writeCalls++
	if p.closed {
		p.mu.Unlock()
		return 0, ErrPortClosed
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.mu.Unlock()
		return 0, err
	}
	latency := p.WriteLatency
	p.mu.Unlock()

	if latency > 0 {
		time.Sleep(latency)
	}

	p.mu.Lock()
	n, err := p.writeBuf.Write(data)
	p.mu.Unlock()

	select {
	case p.written <- struct{}{}:
	default:
	}
	return n, err
}

// Close marks the port as closed and wakes blocked readers.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.readCond.Broadcast()
	return p.CloseError
}

// Inject makes data available to the next Read, as if it had arrived on the
// wire.
func (p *TestablePort) Inject(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readBuf.Write(data)
	p.readCond.Broadcast()
}

// FailRead makes the blocked or next Read return err.
func (p *TestablePort) FailRead(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadError = err
	p.readCond.Broadcast()
}

// Written returns a copy of everything written to the port so far.
func (p *TestablePort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	return bytes.Clone(p.writeBuf.Bytes())
}

// WaitWritten blocks until at least n bytes have been written or the timeout
// elapses, and returns what was written.
func (p *TestablePort) WaitWritten(n int, timeout time.Duration) []byte {
	deadline := time.After(timeout)
	for {
		if got := p.Written(); len(got) >= n {
			return got
		}
		select {
		case <-p.written:
		case <-deadline:
			return p.Written()
		}
	}
}

// Closed reports whether Close was called.
func (p *TestablePort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Calls returns the number of Read and Write calls made so far.
func (p *TestablePort) Calls() (reads, writes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readCalls, p.writeCalls
}

// MockOpener implements Opener for testing by handing out preconfigured
// ports by name.
type MockOpener struct {
	mu sync.Mutex

	// Ports maps port names to the port returned by Open
	Ports map[string]Porter

	// Errors maps port names to the error returned by Open
	Errors map[string]error

	// OpenCalls records all Open calls
	OpenCalls []MockOpenCall
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Name    string
	Options PortOptions
}

// NewMockOpener creates a MockOpener serving the given ports.
func NewMockOpener(ports map[string]Porter) *MockOpener {
	return &MockOpener{Ports: ports, Errors: map[string]error{}}
}

// Open returns the configured port or error. Unknown names fail the same way a
// misspelled device name would.
func (o *MockOpener) Open(name string, opts PortOptions) (Porter, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.OpenCalls = append(o.OpenCalls, MockOpenCall{Name: name, Options: opts})

	if err, ok := o.Errors[name]; ok && err != nil {
		return nil, &ConnectionError{Port: name, Err: err}
	}
	port, ok := o.Ports[name]
	if !ok {
		return nil, &ConnectionError{Port: name, Err: fmt.Errorf("no such port")}
	}
	return port, nil
}

// Calls returns a copy of the recorded Open calls.
func (o *MockOpener) Calls() []MockOpenCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]MockOpenCall(nil), o.OpenCalls...)
}
