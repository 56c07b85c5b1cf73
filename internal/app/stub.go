package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/brewhouse/internal/identitytest"
	"github.com/aussiebroadwan/brewhouse/internal/telemetry"
	"github.com/aussiebroadwan/brewhouse/pkg/httpx"
	"github.com/aussiebroadwan/brewhouse/pkg/slogx"
)

// Demo account seeded into the identity stub outside prod.
const (
	DemoName     = "Demo Shopper"
	DemoEmail    = "demo@brewhouse.test"
	DemoPassword = "Espresso#1"
)

// IdentityStub serves the in-memory identity service for local development.
type IdentityStub struct {
	cfg    Config
	logger *slog.Logger

	identity *identitytest.Server
	server   *http.Server

	shutdownTelemetry func(context.Context) error
}

// NewIdentityStub creates the stub with its routes applied.
func NewIdentityStub(ctx context.Context, cfg Config) *IdentityStub {
	stub := &IdentityStub{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "identity-stub",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	stub.shutdownTelemetry = telemetry.Setup(ctx, telemetry.Config{
		ServiceName: "identity-stub",
		Version:     BuildVersion,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	}, stub.logger)

	stub.identity = identitytest.NewServer(identitytest.Config{
		Secret:    []byte(cfg.StubSecret),
		AuthLimit: httpx.ParseRateLimitFromEnv("STUB_AUTH", httpx.StrictLimit),
		Logger:    stub.logger,
	})
	if cfg.Env != "prod" {
		stub.identity.AddUser(DemoName, DemoEmail, DemoPassword)
		stub.logger.Info("demo account seeded", "email", DemoEmail)
	}

	stub.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           telemetry.Handler(stub.identity, "identity-stub"),
		ReadHeaderTimeout: 3 * time.Second,
	}

	return stub
}

// Run starts the stub and blocks until shutdown is requested.
func (stub *IdentityStub) Run() error {
	stub.logger.Info("identity stub starting", "port", stub.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- stub.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		stub.logger.Info("shutdown signal received", "signal", sig)

		if err := stub.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully stops the HTTP server and flushes traces.
func (stub *IdentityStub) Shutdown() error {
	stub.logger.Info("shutting down identity stub...")

	ctx, cancel := context.WithTimeout(context.Background(), stub.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := stub.server.Shutdown(ctx); err != nil {
		stub.logger.Error("graceful server shutdown failed", "error", err)
		if err := stub.server.Close(); err != nil {
			stub.logger.Error("error closing server", "error", err)
		}
	}

	if err := stub.shutdownTelemetry(ctx); err != nil {
		stub.logger.Error("error flushing traces", "error", err)
	}

	stub.logger.Info("identity stub stopped")
	return nil
}

// Handler exposes the stub's HTTP handler, for tests.
func (stub *IdentityStub) Handler() http.Handler { return stub.server.Handler }
