package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/banshee-data/serialsniff/internal/config"
	"github.com/banshee-data/serialsniff/internal/monitoring"
	"github.com/banshee-data/serialsniff/internal/observer"
)

type debugServer struct {
	srv  *http.Server
	done chan struct{}
}

// newDebugMux mounts the live tail, stats and, with a capture database, the
// SQL console, backup and report routes.
func newDebugMux(cfg config.Config, svc *services) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	observer.AttachAdminRoutes(mux, svc.broadcaster, svc.stats, formatOptions(cfg))
	if svc.store != nil {
		if err := svc.store.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func startDebugServer(cfg config.Config, svc *services) (*debugServer, error) {
	mux, err := newDebugMux(cfg, svc)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, err
	}

	log := monitoring.Logger()
	s := &debugServer{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("debug server stopped")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("debug server listening on /debug/")
	return s, nil
}

func (s *debugServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		l := monitoring.Logger()
		l.Error().Err(err).Msg("debug server shutdown")
	}
	<-s.done
}
