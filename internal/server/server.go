// Package server exposes the local HTTP API: measurement ingest, pipeline
// status, connectivity control, history reads and a live websocket feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"vital-signs-monitor/internal/pipeline"
	"vital-signs-monitor/internal/storage"
	"vital-signs-monitor/internal/vitals"
)

// Options tune the HTTP server.
type Options struct {
	Listen          string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Processor is the pipeline surface the API drives.
type Processor interface {
	IngestMeasurement(ctx context.Context, m vitals.Measurement) pipeline.Result
	FlushCachedData() pipeline.FlushResult
	SetOnline(online bool)
	Online() bool
	Stats() pipeline.Stats
}

// Server hosts the HTTP API and the websocket hub.
type Server struct {
	opts         Options
	processor    Processor
	measurements storage.MeasurementHistory
	alerts       storage.AlertHistory
	hub          *Hub
	logger       zerolog.Logger

	httpServer *http.Server
}

// New constructs the server. The history stores and hub may be nil; the
// corresponding endpoints then degrade gracefully.
func New(opts Options, processor Processor, measurements storage.MeasurementHistory, alerts storage.AlertHistory, hub *Hub, logger zerolog.Logger) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	return &Server{
		opts:         opts,
		processor:    processor,
		measurements: measurements,
		alerts:       alerts,
		hub:          hub,
		logger:       logger.With().Str("component", "http_server").Logger(),
	}
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/measurements", s.handleIngest).Methods(http.MethodPost)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/connectivity", s.handleConnectivity).Methods(http.MethodPost)
	r.HandleFunc("/api/flush", s.handleFlush).Methods(http.MethodPost)
	r.HandleFunc("/api/patients/{patientID}/measurements", s.handlePatientMeasurements).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts", s.handleAlerts).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	return r
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.opts.Listen,
		Handler:      handlers.LoggingHandler(os.Stdout, s.routes()),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", s.opts.Listen).Msg("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	s.logger.Info().Msg("http server stopped")
	return nil
}
