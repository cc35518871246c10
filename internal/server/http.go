// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/AccelByte/extend-badge-engine/pkg/handler"
)

// HTTPServer serves the REST API.
type HTTPServer struct {
	server      *http.Server
	port        int
	environment string
	handler     *handler.Handler
	limiter     *handler.IPRateLimiter
}

// NewHTTPServer creates the API server. limiter may be nil to disable rate limiting.
func NewHTTPServer(port int, environment string, h *handler.Handler, limiter *handler.IPRateLimiter) *HTTPServer {
	return &HTTPServer{
		port:        port,
		environment: environment,
		handler:     h,
		limiter:     limiter,
	}
}

// Setup builds the gin engine with logging, recovery and rate limiting.
func (s *HTTPServer) Setup() error {
	if s.environment != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(handler.RequestLogger(), handler.Recovery())
	if s.limiter != nil {
		router.Use(handler.RateLimit(s.limiter))
	}
	s.handler.Register(router)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           otelhttp.NewHandler(router, "http"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Handler exposes the configured handler chain, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving HTTP requests.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		logrus.Infof("HTTP server listening on port %d", s.port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down HTTP server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	logrus.Info("HTTP server stopped")
	return nil
}
