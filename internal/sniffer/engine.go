package sniffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/serialsniff/internal/monitoring"
	"github.com/banshee-data/serialsniff/internal/serialport"
	"github.com/banshee-data/serialsniff/internal/timeutil"
)

// readBufferSize bounds a single Read. Serial drivers rarely return more than
// a few hundred bytes at once.
const readBufferSize = 4096

var (
	// ErrAlreadyStarted is returned by Start on an engine that has run.
	ErrAlreadyStarted = errors.New("sniffer: engine already started")
	// ErrNotStarted is returned by Wait before Start.
	ErrNotStarted = errors.New("sniffer: engine not started")
	// ErrNoPorts is returned when both ports are "none".
	ErrNoPorts = errors.New("sniffer: at least one port must be named")
)

// Config describes one sniffing session.
type Config struct {
	// RealPort is the port wired to the physical device.
	RealPort string
	// InjectedPort is the port the observed software talks to. Either port
	// may be "none", in which case only the other side is read.
	InjectedPort string
	Options      serialport.PortOptions
	Mode         Mode
	Collapsing   bool
	// FlushOnClose emits the pending collapsed run when the session ends.
	// Without it the last run of a session is never reported.
	FlushOnClose bool
}

// Validate normalizes the port options and checks that the session has at
// least one port to read.
func (c Config) Validate() (Config, error) {
	opts, err := c.Options.Normalize()
	if err != nil {
		return c, err
	}
	c.Options = opts
	if c.RealPort == "" || c.InjectedPort == "" {
		return c, errors.New("sniffer: port names must not be empty (use \"none\" to omit one side)")
	}
	if serialport.IsNone(c.RealPort) && serialport.IsNone(c.InjectedPort) {
		return c, ErrNoPorts
	}
	if c.RealPort == c.InjectedPort {
		return c, fmt.Errorf("sniffer: real and injected port are both %q", c.RealPort)
	}
	return c, nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithOpener replaces the serial driver. Tests use serialport.MockOpener.
func WithOpener(o serialport.Opener) Option {
	return func(e *Engine) { e.opener = o }
}

// WithClock sets the clock used to stamp packets.
func WithClock(c timeutil.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the engine's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

type side struct {
	name   string
	origin Origin
	port   serialport.Porter
}

type arrival struct {
	origin Origin
	data   []byte
}

// Engine owns the two ports of a session. One goroutine per present port
// reads, forwards (in Relay mode) and hands the chunk to a single
// coordinating goroutine that owns the Aggregator, so the observer is only
// ever called from one goroutine.
//
// In Relay mode a chunk is written to the opposite port before it is
// reported, so observers never see traffic the peer has not been sent.
// Every chunk that was read and relayed is reported, including across
// shutdown: the coordinator drains all pending chunks before it stops.
type Engine struct {
	cfg      Config
	observer Observer
	opener   serialport.Opener
	clock    timeutil.Clock
	log      zerolog.Logger

	real     *side
	injected *side

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error

	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New validates cfg and returns an engine that reports to observer.
func New(cfg Config, observer Observer, opts ...Option) (*Engine, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:      cfg,
		observer: observer,
		opener:   serialport.RealOpener{},
		clock:    timeutil.RealClock{},
		log:      monitoring.Logger(),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	if !serialport.IsNone(cfg.RealPort) {
		e.real = &side{name: cfg.RealPort, origin: FromReal}
	}
	if !serialport.IsNone(cfg.InjectedPort) {
		e.injected = &side{name: cfg.InjectedPort, origin: FromInjected}
	}
	return e, nil
}

// Config returns the validated session configuration.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) sides() []*side {
	var s []*side
	if e.real != nil {
		s = append(s, e.real)
	}
	if e.injected != nil {
		s = append(s, e.injected)
	}
	return s
}

func (e *Engine) opposite(s *side) *side {
	if s == e.real {
		return e.injected
	}
	return e.real
}

// Start opens the ports and begins relaying. It returns a
// *serialport.ConnectionError if either port cannot be opened, in which case
// any port already opened is closed again. Start does not block; use Wait
// or Run.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return ErrAlreadyStarted
	}

	sides := e.sides()
	for i, s := range sides {
		port, err := e.opener.Open(s.name, e.cfg.Options)
		if err != nil {
			for _, opened := range sides[:i] {
				_ = opened.port.Close()
				opened.port = nil
			}
			var connErr *serialport.ConnectionError
			if !errors.As(err, &connErr) {
				err = &serialport.ConnectionError{Port: s.name, Err: err}
			}
			e.log.Error().Err(err).Str("port", s.name).Msg("open failed")
			return err
		}
		s.port = port
		e.log.Info().Str("port", s.name).Stringer("origin", s.origin).
			Stringer("options", e.cfg.Options).Msg("port opened")
	}
	e.started = true

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	pumps, pctx := errgroup.WithContext(ctx)
	arrivals := make(chan arrival)

	for _, s := range sides {
		var to *side
		if e.cfg.Mode == Relay {
			to = e.opposite(s)
		}
		pumps.Go(func() error { return e.pump(s, to, arrivals) })
	}

	// Closing the ports is what stops the pumps. pctx ends on Close, on
	// parent cancellation or when a pump fails.
	go func() {
		<-pctx.Done()
		e.closePorts()
	}()

	coordinated := make(chan struct{})
	go func() {
		defer close(coordinated)
		e.coordinate(arrivals)
	}()

	e.log.Info().Stringer("mode", e.cfg.Mode).Bool("collapsing", e.cfg.Collapsing).
		Msg("sniffing started")

	go func() {
		err := pumps.Wait()
		close(arrivals)
		<-coordinated
		e.closePorts()
		cancel()
		e.err = err
		close(e.done)
	}()
	return nil
}

// pump reads from one side until the port fails or is closed. Read errors
// after shutdown has begun are expected and not reported. A chunk that was
// read is always handed to the coordinator unless relaying it failed.
func (e *Engine) pump(from, to *side, out chan<- arrival) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := from.port.Read(buf)
		if err != nil {
			if e.closing.Load() {
				return nil
			}
			return &serialport.TransportIOError{Port: from.name, Op: "read", Err: err}
		}
		if n == 0 {
			if e.closing.Load() {
				return nil
			}
			continue
		}
		data := clone(buf[:n])

		if to != nil {
			if err := serialport.WriteAll(to.port, data); err != nil {
				if e.closing.Load() {
					e.log.Warn().Str("port", from.name).Int("bytes", len(data)).
						Msg("chunk read during shutdown was not relayed and is not reported")
					return nil
				}
				return &serialport.TransportIOError{Port: to.name, Op: "write", Err: err}
			}
		}

		out <- arrival{origin: from.origin, data: data}
	}
}

// coordinate runs the aggregator until in is closed, which happens only
// after every pump has returned.
func (e *Engine) coordinate(in <-chan arrival) {
	agg := NewAggregator(e.cfg.Collapsing, e.clock, e.observer)
	for a := range in {
		e.log.Debug().Stringer("origin", a.origin).Int("bytes", len(a.data)).Msg("chunk")
		agg.Admit(a.origin, a.data)
	}
	if e.cfg.FlushOnClose {
		if agg.Flush() {
			e.log.Debug().Msg("flushed pending run")
		}
		return
	}
	if origin, n := agg.Pending(); n > 0 {
		e.log.Warn().Stringer("origin", origin).Int("bytes", n).
			Msg("pending collapsed run discarded at shutdown (use flush-on-exit to report it)")
	}
}

func (e *Engine) closePorts() {
	e.closeOnce.Do(func() {
		e.closing.Store(true)
		var errs []error
		for _, s := range e.sides() {
			if s.port == nil {
				continue
			}
			if err := s.port.Close(); err != nil {
				errs = append(errs, &serialport.TransportIOError{Port: s.name, Op: "close", Err: err})
			}
		}
		e.closeErr = errors.Join(errs...)
	})
}

// Wait blocks until the session ends and returns the error that ended it,
// or nil if it was stopped by Close or context cancellation.
func (e *Engine) Wait() error {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	<-e.done
	if e.err != nil {
		e.log.Error().Err(e.err).Msg("sniffing stopped")
	} else {
		e.log.Info().Msg("sniffing stopped")
	}
	return e.err
}

// Close stops the session, closes both ports and waits for the goroutines
// to exit. It is safe to call more than once and before Start.
func (e *Engine) Close() error {
	e.mu.Lock()
	started := e.started
	cancel := e.cancel
	e.mu.Unlock()
	if !started {
		return nil
	}
	cancel()
	<-e.done
	return e.closeErr
}

// Run starts the engine and waits for it to stop.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	return e.Wait()
}
