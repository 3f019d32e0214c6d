// Package server exposes the telephony webhooks and media-stream socket and
// runs them alongside the event bus.
package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/twilio/twilio-go/twiml"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/callgpt/pkg/events"
)

const (
	IncomingPath   = "/incoming"
	ConnectionPath = "/connection"
	HealthPath     = "/healthz"
)

type Options struct {
	Addr            string
	PublicHost      string
	ShutdownTimeout time.Duration
}

type Server struct {
	opts    Options
	httpSrv *http.Server
	bus     *events.Bus
	closers []io.Closer
}

// New mounts media on ConnectionPath. closers are closed after the HTTP
// server and the bus have stopped.
func New(opts Options, media http.Handler, bus *events.Bus, closers ...io.Closer) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}
	s := &Server{opts: opts, bus: bus, closers: closers}

	mux := http.NewServeMux()
	mux.HandleFunc(IncomingPath, s.handleIncoming)
	mux.Handle(ConnectionPath, media)
	mux.HandleFunc(HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	s.httpSrv = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// handleIncoming answers the call webhook by pointing the provider at the
// media-stream socket.
func (s *Server) handleIncoming(w http.ResponseWriter, r *http.Request) {
	stream := &twiml.VoiceStream{Url: "wss://" + s.opts.PublicHost + ConnectionPath}
	connect := &twiml.VoiceConnect{InnerElements: []twiml.Element{stream}}
	body, err := twiml.Voice([]twiml.Element{connect})
	if err != nil {
		log.Error().Err(err).Str("component", "server").Msg("encode twiml")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	log.Info().Str("component", "server").Str("remote", r.RemoteAddr).Msg("incoming call")
	w.Header().Set("Content-Type", "text/xml")
	_, _ = io.WriteString(w, body)
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("ctx is nil")
	}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()
	// sessions derive from the request context, so shutdown cancels them
	s.httpSrv.BaseContext = func(net.Listener) context.Context { return srvCtx }

	eg := errgroup.Group{}

	if s.bus != nil {
		eg.Go(func() error { return s.bus.Run(srvCtx) })
	}

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			log.Info().Str("component", "server").Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		srvCancel()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("component", "server").Msg("server shutdown error")
			return err
		}
		if s.bus != nil {
			if err := s.bus.Close(); err != nil {
				log.Error().Err(err).Str("component", "server").Msg("event bus close error")
			}
		}
		for _, c := range s.closers {
			if err := c.Close(); err != nil {
				log.Error().Err(err).Str("component", "server").Msg("close error")
			}
		}
		log.Info().Str("component", "server").Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("component", "server").Str("addr", s.httpSrv.Addr).Str("public_host", s.opts.PublicHost).Msg("starting callgpt server")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("component", "server").Msg("server listen error")
			srvCancel()
			return err
		}
		return nil
	})

	return eg.Wait()
}
