// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/AccelByte/extend-badge-engine/pkg/handler"
	"github.com/AccelByte/extend-badge-engine/pkg/storage/memstore"
	"github.com/AccelByte/extend-badge-engine/pkg/trigger"
)

type switchPinger struct{ err error }

func (p *switchPinger) Ping(ctx context.Context) error { return p.err }

func TestGRPCServer_HealthFollowsStorage(t *testing.T) {
	p := &switchPinger{}
	s := NewGRPCServer(0, map[string]handler.Pinger{"db": p})
	if err := s.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if got := s.RefreshHealth(context.Background()); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, expected SERVING", got)
	}

	p.err = errors.New("down")
	if got := s.RefreshHealth(context.Background()); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, expected NOT_SERVING", got)
	}

	resp, err := s.health.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("health service reports %v, expected NOT_SERVING", resp.Status)
	}
}

func TestMetricsServer_ExposesEngineMetrics(t *testing.T) {
	metrics := trigger.NewMetrics()
	m := NewMetricsServer(0, "/metrics")
	if err := m.Setup(metrics.Collectors()...); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	metrics.Grants.Inc()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "badge_engine_grants_total 1") {
		t.Errorf("metrics output missing grant counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics output missing Go collector")
	}
}

func TestHTTPServer_Routes(t *testing.T) {
	mem := memstore.New()
	h := handler.New(handler.Dependencies{Health: map[string]handler.Pinger{"memory": mem}})

	s := NewHTTPServer(0, "dev", h, handler.NewIPRateLimiter(100, 100))
	if err := s.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("GET /health = %d, expected 200", w.Code)
	}
}
