// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CCGate Contributors

// Package server exposes the admin API under /admin/v1 and forwards every
// other request to the dispatcher.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	ccgerr "github.com/ccgate-dev/ccgate/pkg/errors"
)

// AdminPrefix is the mount point of the admin API.
const AdminPrefix = "/admin/v1"

// Config holds HTTP server configuration. WriteTimeout stays zero by
// default because proxied streams may run for minutes.
type Config struct {
	ListenAddr        string
	CORSOrigins       []string
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	ShutdownTimeout   time.Duration
	MaxBodyBytes      int64
	Version           string
	Auth              *Authenticator
	Logger            *slog.Logger
}

// Server wraps a chi router with huma API and HTTP server.
type Server struct {
	router    chi.Router
	api       huma.API
	cfg       Config
	services  *Services
	logger    *slog.Logger
	startedAt time.Time
	port      int
}

// New creates a Server with chi router, huma API, admin routes, the health
// endpoint and the proxy catch-all.
func New(cfg Config, svc *Services) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, ccgerr.New(ccgerr.CodeServerConfigInvalid, "listen address is required")
	}
	if err := svc.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 32 << 20
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Auth == nil {
		cfg.Auth = NewAuthenticator(false, "X-CCG-Token", "")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.CORSOrigins, cfg.Auth.Header()))
	r.Use(cfg.Auth.Middleware)

	humaConfig := huma.DefaultConfig("CCGate", cfg.Version)
	humaConfig.Info.Description = "Multi-provider gateway for AI coding CLIs"
	api := humachi.New(r, humaConfig)

	srv := &Server{
		router:    r,
		api:       api,
		cfg:       cfg,
		services:  svc,
		logger:    cfg.Logger,
		startedAt: time.Now(),
	}
	if _, portStr, err := net.SplitHostPort(cfg.ListenAddr); err == nil {
		srv.port, _ = strconv.Atoi(portStr)
	}

	srv.registerSystemRoutes()
	srv.registerProviderRoutes()
	srv.registerSettingsRoutes()
	srv.registerStatsRoutes()
	srv.registerProxy()

	return srv, nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API, used to export the OpenAPI document.
func (s *Server) API() huma.API {
	return s.api
}

// Start runs the HTTP server and blocks until the context is cancelled,
// then performs graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return ccgerr.Errorf(ccgerr.CodeServerStartFailure, "listening on %s: %w", s.cfg.ListenAddr, err)
	}
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = addr.Port
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("gateway listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return ccgerr.Errorf(ccgerr.CodeServerStartFailure, "serving: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return ccgerr.Errorf(ccgerr.CodeServerShutdownFailure, "shutting down: %w", err)
	}

	return <-errCh
}

func corsMiddleware(origins []string, authHeader string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", authHeader},
		ExposedHeaders:   []string{HeaderProvider, HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
