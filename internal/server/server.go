// Package server exposes the question answering endpoint over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

const (
	serviceName = "manualqa"
	// writeSlack is how long after the request deadline a response may
	// still be written.
	writeSlack = 10 * time.Second
)

type Options struct {
	Addr       string
	CORSOrigin string
	// RequestTimeout bounds a single POST /query; zero means no bound.
	RequestTimeout time.Duration
}

// Server is an http.Server wired to an Answerer.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// Handler returns the routed and wrapped handler.
func Handler(a Answerer, opts Options, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /query", handleQuery(a, opts.RequestTimeout, logger))
	mux.HandleFunc("GET /health", handleHealth(a))

	return Chain(mux,
		Recover(logger),
		Logger(logger),
		CORS(opts.CORSOrigin),
		OTel(serviceName),
	)
}

func New(a Answerer, opts Options, logger *slog.Logger) *Server {
	writeTimeout := 60 * time.Second
	if opts.RequestTimeout > 0 {
		writeTimeout = opts.RequestTimeout + writeSlack
	}
	return &Server{
		srv: &http.Server{
			Addr:              opts.Addr,
			Handler:           Handler(a, opts, logger),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "addr", s.srv.Addr, "write_timeout", s.srv.WriteTimeout)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutCtx)
}
