package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/banshee-data/serialsniff/internal/capture"
	"github.com/banshee-data/serialsniff/internal/config"
	"github.com/banshee-data/serialsniff/internal/monitoring"
	"github.com/banshee-data/serialsniff/internal/observer"
	"github.com/banshee-data/serialsniff/internal/serialport"
	"github.com/banshee-data/serialsniff/internal/sniffer"
)

// errReload ends a session so that it is restarted with fresh settings.
var errReload = errors.New("config changed")

// services outlive individual sessions: a config reload restarts the engine
// but keeps the store, the live tail and the debug server.
type services struct {
	stats       *observer.Stats
	broadcaster *observer.Broadcaster
	store       *capture.Store

	// opener is replaced in tests.
	opener serialport.Opener
}

func (s *services) close() error {
	s.broadcaster.Close()
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

func runSniff(ctx context.Context, opts *rootOptions, stdout io.Writer) error {
	cfg, err := opts.resolve()
	if err != nil {
		return err
	}
	if err := monitoring.Configure(os.Stderr, cfg.LogLevel, true); err != nil {
		return err
	}
	log := monitoring.Logger()

	svc := &services{
		stats:       &observer.Stats{},
		broadcaster: observer.NewBroadcaster(0),
		opener:      serialport.RealOpener{},
	}
	if cfg.CaptureDB != "" {
		if svc.store, err = capture.Open(cfg.CaptureDB); err != nil {
			return fmt.Errorf("open capture database: %w", err)
		}
	}
	defer func() {
		if err := svc.close(); err != nil {
			log.Error().Err(err).Msg("close capture database")
		}
	}()

	if cfg.Listen != "" {
		srv, err := startDebugServer(cfg, svc)
		if err != nil {
			return err
		}
		defer srv.shutdown()
	}

	var reload <-chan struct{}
	if cfg.WatchConfig {
		path := opts.configPath()
		if path == "" || !config.FileExists(path) {
			log.Warn().Str("path", path).Msg("watch-config set but there is no config file to watch")
		} else {
			w := config.NewWatcher(path)
			if reload, err = w.Watch(ctx); err != nil {
				return err
			}
			log.Info().Str("path", path).Msg("watching config file")
		}
	}

	return sessionLoop(ctx, opts, cfg, svc, stdout, reload)
}

// sessionLoop runs sessions until one ends for a reason other than a config
// reload. A reload with invalid settings keeps the previous ones.
func sessionLoop(ctx context.Context, opts *rootOptions, cfg config.Config, svc *services, stdout io.Writer, reload <-chan struct{}) error {
	log := monitoring.Logger()
	for {
		err := runSession(ctx, cfg, svc, stdout, reload)
		if !errors.Is(err, errReload) {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		next, rerr := opts.resolve()
		if rerr != nil {
			log.Error().Err(rerr).Msg("config reload rejected, keeping previous settings")
			continue
		}
		if lvl, lerr := monitoring.ParseLevel(next.LogLevel); lerr == nil {
			l := monitoring.Logger().Level(lvl)
			monitoring.SetLogger(&l)
		}
		log.Info().Msg("config reloaded, restarting session")
		cfg = next
	}
}

// runSession runs one engine until it fails, the context ends or reload
// fires.
func runSession(ctx context.Context, cfg config.Config, svc *services, stdout io.Writer, reload <-chan struct{}) error {
	log := monitoring.Logger()

	sc, err := cfg.Sniffer()
	if err != nil {
		return err
	}
	warnUnknownPorts(log, sc)

	observers := []sniffer.Observer{svc.stats, svc.broadcaster}
	svc.stats.Reset()

	switch cfg.Output {
	case config.OutputNone:
	case "", config.OutputStdout:
		observers = append(observers, observer.NewConsole(stdout, formatOptions(cfg)))
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open output: %w", err)
		}
		defer f.Close()
		observers = append(observers, observer.NewConsole(f, formatOptions(cfg)))
	}

	if cfg.PCAPPath != "" {
		f, err := os.Create(cfg.PCAPPath)
		if err != nil {
			return fmt.Errorf("create pcap: %w", err)
		}
		defer f.Close()
		pw, err := capture.NewPCAPWriter(f)
		if err != nil {
			return err
		}
		observers = append(observers, pw)
	}

	if svc.store != nil {
		sess, err := svc.store.BeginSession(ctx, capture.SessionFromConfig(sc))
		if err != nil {
			return err
		}
		log.Info().Str("session", sess.ID).Str("db", svc.store.Path()).Msg("recording session")
		defer func() {
			if err := svc.store.EndSession(context.Background()); err != nil {
				log.Error().Err(err).Msg("end capture session")
			}
		}()
		observers = append(observers, svc.store)
	}

	eng, err := sniffer.New(sc, observer.Tee(observers...), sniffer.WithOpener(svc.opener), sniffer.WithLogger(log))
	if err != nil {
		return err
	}
	if err := eng.Start(ctx); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- eng.Wait() }()

	select {
	case err := <-done:
		return err
	case _, ok := <-reload:
		eng.Close()
		err := <-done
		if !ok {
			// The watcher closes its channel when ctx ends.
			return err
		}
		return errReload
	case <-ctx.Done():
		eng.Close()
		return <-done
	}
}

func formatOptions(cfg config.Config) observer.FormatOptions {
	return observer.FormatOptions{Dump: cfg.Dump(), ShowTime: cfg.ShowTime}
}

// warnUnknownPorts logs configured ports that the OS does not list. They
// are still opened: virtual ports and some adapters are not enumerated.
func warnUnknownPorts(log zerolog.Logger, sc sniffer.Config) {
	ports, err := serialport.ListPorts()
	if err != nil {
		log.Debug().Err(err).Msg("could not list serial ports")
		return
	}
	for _, name := range []string{sc.RealPort, sc.InjectedPort} {
		if serialport.IsNone(name) || serialport.Known(ports, name) {
			continue
		}
		log.Warn().Str("port", name).Msg("port not in the system port list")
	}
}
