package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"webmill/internal/config"
	"webmill/internal/jobs"
	"webmill/internal/logging"
	"webmill/internal/workflow"
)

// jobSubmitter accepts uploads into the pipeline. *workflow.Orchestrator
// satisfies it.
type jobSubmitter interface {
	Submit(ctx context.Context, req workflow.SubmitRequest) (*jobs.Record, error)
}

// Server is the HTTP front end for uploads, status polling, and artifact
// retrieval.
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *jobs.Store
	submitter jobSubmitter

	listener net.Listener
	server   *http.Server
}

// New constructs a server bound to the configured address.
func New(cfg *config.Config, store *jobs.Store, submitter jobSubmitter, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "server"),
		store:     store,
		submitter: submitter,
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with CORS applied, usable directly in
// tests without a listener.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	router.HandleFunc("/status/{id}", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/download/{id}", s.handleDownload).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "X-Job-Id"},
		ExposedHeaders: []string{"X-Detected-Color"},
	})
	return c.Handler(router)
}

// Start begins serving and shuts down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Server.Bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Server.Bind, err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address, or empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}
