// Package bootstrap wires the application together.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	apihttp "github.com/artpar/dataforge/adapters/http"
	"github.com/artpar/dataforge/adapters/filetree"
	"github.com/artpar/dataforge/adapters/memory"
	"github.com/artpar/dataforge/adapters/metrics"
	"github.com/artpar/dataforge/adapters/sqlite"
	"github.com/artpar/dataforge/config"
	"github.com/artpar/dataforge/core/data"
	"github.com/artpar/dataforge/core/descriptors"
	"github.com/artpar/dataforge/core/meta"
	"github.com/artpar/dataforge/core/metacodec"
	"github.com/artpar/dataforge/core/plugin"
	"github.com/artpar/dataforge/ports"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	DB         *sqlite.DB // nil with the memory driver
	Store      ports.MetaStore
	Metrics    *metrics.Collector
	Registry   *prometheus.Registry
	Meta       *meta.Config
	Watcher    *config.MetaWatcher // nil without a meta file
	Descriptor *descriptors.NodeDescriptor
	Plugins    *plugin.Context
	Tree       data.Tree[any] // nil without a data dir
	HTTPServer *http.Server

	unwatch func()
}

// New creates and initializes the application from cfg.
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)
	logger.Info().Msg("initializing dataforge")

	a := &App{
		Logger: logger,
		Config: cfg,
		Meta:   meta.NewConfig(),
	}

	if err := a.initStore(); err != nil {
		a.Shutdown()
		return nil, fmt.Errorf("init store: %w", err)
	}

	if cfg.Metrics.Enabled {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(a.Registry)
		logger.Info().Msg("prometheus metrics enabled")
	}

	if err := a.initMeta(); err != nil {
		a.Shutdown()
		return nil, fmt.Errorf("init meta: %w", err)
	}

	if err := a.initPlugins(); err != nil {
		a.Shutdown()
		return nil, fmt.Errorf("init plugins: %w", err)
	}

	if err := a.preload(); err != nil {
		a.Shutdown()
		return nil, fmt.Errorf("preload data: %w", err)
	}

	a.initHTTPServer()
	return a, nil
}

// NewFromEnv creates the application from DATAFORGE_* environment variables.
func NewFromEnv() (*App, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

func (a *App) initStore() error {
	switch a.Config.Database.Driver {
	case "memory":
		a.Store = memory.NewMetaStore()
		return nil
	case "sqlite":
		db, err := sqlite.Open(a.Config.Database.DSN)
		if err != nil {
			return err
		}
		a.DB = db
		if err := db.Migrate(context.Background()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		a.Store = sqlite.NewMetaStore(db)
		a.Logger.Info().Str("dsn", a.Config.Database.DSN).Msg("database ready")
		return nil
	default:
		return fmt.Errorf("unknown database driver %q", a.Config.Database.Driver)
	}
}

func (a *App) initMeta() error {
	mc := a.Config.Meta
	if mc.Descriptor != "" {
		m, err := readMeta(mc.Descriptor)
		if err != nil {
			return fmt.Errorf("descriptor: %w", err)
		}
		a.Descriptor = descriptors.FromMeta(m)
	}

	if mc.File == "" {
		a.Logger.Info().Msg("no meta file configured, serving an empty config")
	} else {
		w, err := config.NewMetaWatcher(mc.File, a.Logger)
		if err != nil {
			return err
		}
		a.Watcher = w
		a.Meta = w.Config()
		if a.Metrics != nil {
			w.OnReload(a.Metrics.RecordReload)
		}
		if mc.Watch {
			if err := w.WatchFile(); err != nil {
				return fmt.Errorf("watch meta file: %w", err)
			}
			w.WatchSignals()
		}
	}

	if a.Descriptor != nil {
		if err := descriptors.Validate(a.Descriptor, a.Meta).Err(); err != nil {
			a.Logger.Warn().Err(err).Msg("meta does not match its descriptor")
		}
	}
	if a.Metrics != nil {
		a.unwatch = a.Metrics.WatchConfig("main", a.Meta)
	}
	return nil
}

func readMeta(path string) (meta.Meta, error) {
	codec, err := metacodec.ForPath(path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return metacodec.Unmarshal(codec, raw)
}

// initPlugins creates the root plugin context. The data directory is
// served by the filetree plugin.
func (a *App) initPlugins() error {
	root := plugin.NewRoot("dataforge", plugin.NewRegistry(filetree.Factory()), a.Logger)
	b := plugin.NewContextBuilder(root, "app").
		Property("database.driver", a.Config.Database.Driver)
	if a.Config.Data.Dir != "" {
		b.Plugin(filetree.Tag, meta.NewBuilder().Put("dir", a.Config.Data.Dir).Seal())
	}
	pctx, err := b.Build()
	if err != nil {
		return err
	}
	a.Plugins = pctx

	if p, ok := pctx.Plugin(filetree.Tag); ok {
		a.Tree = p.(*filetree.Plugin).Tree()
		a.Logger.Info().Str("dir", a.Config.Data.Dir).Msg("data tree loaded")
	}
	return nil
}

func (a *App) preload() error {
	if a.Tree == nil || !a.Config.Data.Preload {
		return nil
	}
	ctx := context.Background()
	if a.Metrics != nil {
		ctx = data.WithObserver(ctx, a.Metrics)
	}
	start := time.Now()
	if err := data.AwaitAll(ctx, a.Tree, a.Config.Data.Concurrency); err != nil {
		return err
	}
	a.Logger.Info().Dur("elapsed", time.Since(start)).Msg("data preloaded")
	return nil
}

func (a *App) initHTTPServer() {
	rc := apihttp.RouterConfig{
		Config:     a.Meta,
		Descriptor: a.Descriptor,
		Tree:       a.Tree,
		Store:      a.Store,
		Metrics:    a.Metrics,
		Timeout:    a.Config.Server.WriteTimeout,
	}
	if a.Registry != nil {
		rc.Gatherer = a.Registry
	}
	a.HTTPServer = &http.Server{
		Addr:         a.Config.Server.Addr(),
		Handler:      apihttp.NewRouter(rc, a.Logger),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
}

// Run starts the HTTP server and blocks until ctx is done, a signal
// arrives or the server fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
		a.Logger.Info().Msg("context done, shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	timeout := a.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.Watcher != nil {
		a.Watcher.Stop()
	}
	if a.unwatch != nil {
		a.unwatch()
		a.unwatch = nil
	}

	if a.Plugins != nil {
		a.Plugins.Close()
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
		a.DB = nil
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// Reload re-reads the meta file. It is a no-op without one.
func (a *App) Reload() error {
	if a.Watcher == nil {
		return nil
	}
	return a.Watcher.Reload()
}

// setupLogger creates a logger from the logging config.
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
