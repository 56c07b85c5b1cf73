package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	storeredis "github.com/aussiebroadwan/brewhouse/internal/storage/redis"
	"github.com/aussiebroadwan/brewhouse/internal/storage/sqlite"
	"github.com/aussiebroadwan/brewhouse/internal/telemetry"
	"github.com/aussiebroadwan/brewhouse/pkg/cryptox"
	"github.com/aussiebroadwan/brewhouse/pkg/sessionsdk"
	"github.com/aussiebroadwan/brewhouse/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// storage is a sessionsdk.Storage that holds a connection.
type storage interface {
	sessionsdk.Storage
	Close() error
}

type memoryStorage struct {
	*sessionsdk.MemoryStorage
}

func (memoryStorage) Close() error { return nil }

// Application is one run of the storefront CLI: durable storage, the identity
// client with its persistent cookie jar, and the session on top of them.
type Application struct {
	cfg    Config
	logger *slog.Logger

	in  *bufio.Reader
	out io.Writer

	storage storage
	client  *sessionsdk.SDKClient
	session *sessionsdk.Session
	live    *sessionsdk.Liveness

	bootstrapped bool

	shutdownTelemetry func(context.Context) error
}

// Option configures New.
type Option func(*Application)

// WithIO replaces stdin and stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(a *Application) {
		a.in = bufio.NewReader(in)
		a.out = out
	}
}

// WithLogger replaces the logger built from Config.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Application) { a.logger = logger }
}

// New opens storage and builds the session. Nothing is sent to the API until
// a command runs.
func New(ctx context.Context, cfg Config, opts ...Option) (*Application, error) {
	app := &Application{
		cfg:  cfg,
		in:   bufio.NewReader(os.Stdin),
		out:  os.Stdout,
		live: sessionsdk.NewLiveness(),
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		app.logger = slogx.New(slogx.Config{
			Service: "brewhouse",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  os.Stderr,
		})
	}

	app.shutdownTelemetry = telemetry.Setup(ctx, telemetry.Config{
		ServiceName: "brewhouse",
		Version:     BuildVersion,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	}, app.logger)

	if err := app.initStorage(ctx); err != nil {
		return nil, err
	}

	if err := app.initSession(ctx); err != nil {
		_ = app.storage.Close()
		return nil, err
	}

	return app, nil
}

// Session returns the application's session.
func (app *Application) Session() *sessionsdk.Session { return app.session }

// Shutdown abandons any bootstrap still in flight and releases storage.
func (app *Application) Shutdown(ctx context.Context) error {
	app.live.Kill()

	var errs []error
	if err := app.storage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
	}
	if err := app.shutdownTelemetry(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush traces: %w", err))
	}
	return errors.Join(errs...)
}

// initStorage opens the configured durable storage backend.
func (app *Application) initStorage(ctx context.Context) error {
	sealer, err := app.loadSealer()
	if err != nil {
		return err
	}

	switch app.cfg.Storage {
	case StorageMemory:
		app.storage = memoryStorage{sessionsdk.NewMemoryStorage()}

	case StorageSQLite:
		var opts []sqlite.Option
		if sealer != nil {
			opts = append(opts, sqlite.WithSealer(sealer))
		}
		store, err := sqlite.Open(sqlite.DSN(app.cfg.DatabaseFile), opts...)
		if err != nil {
			return fmt.Errorf("failed to initialize sqlite storage: %w", err)
		}
		app.storage = store

	case StorageRedis:
		var opts []storeredis.Option
		if sealer != nil {
			opts = append(opts, storeredis.WithSealer(sealer))
		}
		store, err := storeredis.Dial(ctx, app.cfg.RedisAddr, app.cfg.RedisPassword, app.cfg.RedisPrefix, opts...)
		if err != nil {
			return fmt.Errorf("failed to initialize redis storage: %w", err)
		}
		app.storage = store

	default:
		return fmt.Errorf("unknown storage backend %q", app.cfg.Storage)
	}

	app.logger.Debug("storage ready", "backend", app.cfg.Storage, "encrypted", sealer != nil)
	return nil
}

// loadSealer returns nil when no master key is configured.
func (app *Application) loadSealer() (*cryptox.Sealer, error) {
	master, err := cryptox.LoadMasterKey(app.cfg.MasterKeyFile, app.cfg.MasterKey)
	if errors.Is(err, cryptox.ErrNoMasterKey) {
		if app.cfg.Storage != StorageMemory {
			app.logger.Warn("no master key configured, stored credentials are not encrypted")
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return cryptox.NewSealer(master)
}

// initSession builds the client and session over the opened storage.
func (app *Application) initSession(ctx context.Context) error {
	jar, err := sessionsdk.NewPersistentJar(ctx, app.cfg.APIBaseURL, app.storage, app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize cookie jar: %w", err)
	}

	app.client = sessionsdk.NewSDKClient(app.cfg.APIBaseURL,
		sessionsdk.WithCookieJar(jar),
		sessionsdk.WithTimeout(app.cfg.RequestTimeout),
		sessionsdk.WithTransport(telemetry.Transport(nil)),
	)
	app.session = sessionsdk.NewSession(app.client, app.storage, sessionsdk.WithLogger(app.logger))

	return nil
}
