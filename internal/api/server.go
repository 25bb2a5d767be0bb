// Package api exposes artifacts, launcher builds and the join handshake
// over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"launcher-core/internal/launcher"
)

// Artifacts is the part of the ArtifactStore the API serves from.
type Artifacts interface {
	Get(ctx context.Context, hash string) (io.ReadCloser, error)
	Stat(ctx context.Context, hash string) (*launcher.ArtifactRecord, error)
}

// Versions is the part of the VersionRegistry the API reads.
type Versions interface {
	GetActual(os launcher.OSType) (*launcher.LauncherVersion, error)
}

// Sessions is the part of Identity the API drives.
type Sessions interface {
	Authenticate(ctx context.Context, req launcher.AuthRequest) (*launcher.AuthResult, error)
	Refresh(ctx context.Context, userUUID, refreshToken string) (*launcher.AuthResult, error)
	StartSession(ctx context.Context, userUUID string) (*launcher.Session, error)
	ValidateJoin(ctx context.Context, accessToken, userUUID, serverID string) (bool, error)
	HasJoined(ctx context.Context, userName, serverID string) (*launcher.User, error)
}

// Server holds the HTTP handlers.
type Server struct {
	artifacts Artifacts
	versions  Versions
	sessions  Sessions
	logger    launcher.Logger
}

// NewServer creates the API handlers.
func NewServer(artifacts Artifacts, versions Versions, sessions Sessions, logger launcher.Logger) *Server {
	return &Server{artifacts: artifacts, versions: versions, sessions: sessions, logger: logger}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(instrument(s.logger))

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/artifacts/{hash}", s.getArtifact)

	r.Get("/launcher/{os}", s.getActual)
	r.Get("/launcher/{os}/download", s.downloadActual)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/authenticate", s.authenticate)
		r.Post("/refresh", s.refresh)
	})
	r.Route("/session", func(r chi.Router) {
		r.Post("/join", s.join)
		r.Get("/hasJoined", s.hasJoined)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
