// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes agent sessions over HTTP and WebSocket for `tess serve`.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/tess/internal/agent"
	"github.com/traylinx/tess/internal/brain"
	"github.com/traylinx/tess/internal/buildinfo"
	"github.com/traylinx/tess/internal/config"
)

// StatusSource reports provider health.
type StatusSource interface {
	Status() []brain.ProviderStatus
}

// Server is the HTTP front end of the agent.
type Server struct {
	cfg      *config.Config
	store    *agent.Store
	status   StatusSource
	engine   *gin.Engine
	upgrader websocket.Upgrader
	server   *http.Server
	started  time.Time
}

// NewServer builds the router. status may be nil.
func NewServer(cfg *config.Config, store *agent.Store, status StatusSource) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		cfg:     cfg,
		store:   store,
		status:  status,
		engine:  gin.New(),
		started: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     sameHostOrigin,
		},
	}
	if err := s.engine.SetTrustedProxies(nil); err != nil {
		log.Warnf("failed to reset trusted proxies: %v", err)
	}
	s.engine.Use(gin.Recovery(), requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)

	v1 := s.engine.Group("/v1", s.authMiddleware())
	v1.GET("/providers", s.handleProviders)
	v1.POST("/sessions", s.handleCreateSession)
	v1.GET("/sessions", s.handleListSessions)
	v1.POST("/sessions/:id/commands", s.handleCommand)
	v1.POST("/sessions/:id/clear", s.handleClear)
	v1.GET("/sessions/:id/history", s.handleHistory)
	v1.DELETE("/sessions/:id", s.handleDeleteSession)
	v1.GET("/sessions/:id/ws", s.handleWebSocket)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.Server.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("API server listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("API server shutting down")
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"version":  buildinfo.Version,
		"commit":   buildinfo.Commit,
		"uptime":   time.Since(s.started).Round(time.Second).String(),
		"sessions": s.store.Len(),
	})
}

func (s *Server) handleProviders(c *gin.Context) {
	if s.status == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "provider status unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": s.status.Status()})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"latency": time.Since(start).Round(time.Millisecond).String(),
		}).Debug("api request")
	}
}
