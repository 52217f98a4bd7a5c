package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/codu-code/codu/internal/config"
	"github.com/codu-code/codu/internal/logger"
	"github.com/codu-code/codu/internal/routes"
)

func TestMain(m *testing.M) {
	setLoggers(logger.Nop())
	os.Exit(m.Run())
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Database.DSN = ":memory:"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	return cfg
}

func TestBuildWiresServices(t *testing.T) {
	a, err := build(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer a.close()

	if a.scheduler == nil {
		t.Error("Expected scheduler to be enabled by default")
	}
	if a.server.RPC == nil || a.server.Auth == nil {
		t.Fatal("Expected RPC router and auth provider to be wired")
	}

	handler := a.server.Routes()
	for _, path := range []string{routes.HealthPath, routes.ReadyPath, routes.Metrics} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, routes.RPCPrefix+"/post.all", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected public feed to be served, got %d: %s", rec.Code, rec.Body)
	}
}

func TestBuildSchedulerDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.Enabled = false

	a, err := build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer a.close()

	if a.scheduler != nil {
		t.Error("Expected no scheduler")
	}
}

func TestBuildErrors(t *testing.T) {
	testCases := map[string]func(c *config.Config){
		"unknown driver": func(c *config.Config) { c.Database.Driver = "oracle" },
		"bad webhook secret": func(c *config.Config) {
			c.Auth.Type = "clerk"
			c.Auth.ClerkWebhookSecret = "whsec_not base64!"
		},
	}

	for name, mutate := range testCases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(cfg)
			if _, err := build(context.Background(), cfg); err == nil {
				t.Error("Expected build to fail")
			}
		})
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, testConfig()) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
