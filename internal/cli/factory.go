package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/actdata"
	"github.com/aretw0/actdata/internal/adapters/file"
	"github.com/aretw0/actdata/internal/adapters/redis"
	"github.com/aretw0/actdata/internal/config"
	"github.com/aretw0/actdata/internal/logging"
	"github.com/aretw0/actdata/internal/runtime"
	"github.com/aretw0/actdata/pkg/adapters/badger"
	"github.com/aretw0/actdata/pkg/adapters/memory"
	"github.com/aretw0/actdata/pkg/adapters/process"
	"github.com/aretw0/actdata/pkg/adapters/sqlite"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/persistence/middleware"
	"github.com/aretw0/actdata/pkg/ports"
	"github.com/aretw0/actdata/pkg/registry"
	"github.com/aretw0/actdata/pkg/schema"
	"github.com/aretw0/actdata/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
)

// App holds everything a command needs, built from one Config.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *registry.Registry
	Table    *schema.Table
	Engine   *actdata.Engine
	Store    ports.DocumentStore
	Sessions *session.Manager
	Metrics  *prometheus.Registry

	closers []func() error
}

// NewApp wires the registry, store and engine described by cfg.
func NewApp(cfg *config.Config) (*App, error) {
	logger, err := createLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: prometheus.NewRegistry(),
	}

	if err := app.loadRegistry(); err != nil {
		return nil, err
	}

	policy, err := runtime.ParseRetouchPolicy(cfg.Engine.RetouchPolicy)
	if err != nil {
		return nil, err
	}
	store, locker, err := app.openStore()
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Store = store

	opts := []actdata.Option{
		actdata.WithLogger(logger),
		actdata.WithStore(store),
		actdata.WithRetouchPolicy(policy),
		actdata.WithMaxPasses(cfg.Engine.MaxPasses),
		actdata.WithUndoLimit(cfg.Engine.UndoLimit),
		actdata.WithMetricsRegisterer(app.Metrics),
	}
	if locker != nil {
		opts = append(opts, actdata.WithLocker(locker))
	}
	if cfg.Engine.Expressions {
		opts = append(opts, actdata.WithExpressions())
	}
	if cfg.Engine.PersistConversions {
		opts = append(opts, actdata.WithPersistConversions())
	}
	app.Engine, err = actdata.New(app.Registry, opts...)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Sessions = app.Engine.Sessions()
	return app, nil
}

// Close releases the store.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// loadRegistry builds the registry from the configured type table and registers the
// configured process functions. Without a table the registry is empty at version 1.
func (a *App) loadRegistry() error {
	if a.Config.Types == "" {
		a.Registry = registry.NewRegistry()
	} else {
		table, err := schema.Load(a.Config.Types)
		if err != nil {
			return err
		}
		reg, err := table.NewRegistry()
		if err != nil {
			return fmt.Errorf("register types of %s: %w", a.Config.Types, err)
		}
		a.Table = table
		a.Registry = reg
	}
	for _, fc := range a.Config.Functions {
		process.Register(a.Registry, domain.FunctionID(fc.Name), process.New(fc.Command, fc.Args,
			process.WithEnv(fc.Env),
			process.WithDir(fc.Dir),
			process.WithLogger(a.Logger),
		))
	}
	return nil
}

// openStore creates the configured backend and wraps it in the configured middlewares.
// The returned locker is non-nil only for redis with locking enabled.
func (a *App) openStore() (ports.DocumentStore, ports.DistributedLocker, error) {
	sc := a.Config.Store
	var (
		base   ports.DocumentStore
		locker ports.DistributedLocker
	)
	switch sc.Type {
	case config.StoreMemory:
		base = memory.NewStore()
	case config.StoreFile:
		base = file.New(sc.Path)
	case config.StoreBadger:
		bcfg := badger.DefaultConfig(sc.Path)
		bcfg.Logger = a.Logger
		s, err := badger.Open(bcfg)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, s.Close)
		base = s
	case config.StoreSQLite:
		s, err := sqlite.NewStore(filepath.Clean(sc.Path))
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, s.Close)
		base = s
	case config.StoreRedis:
		var opts []redis.Option
		if sc.Prefix != "" {
			opts = append(opts, redis.WithPrefix(sc.Prefix))
		}
		if sc.TTL > 0 {
			opts = append(opts, redis.WithTTL(sc.TTL))
		}
		s := redis.New(sc.Address, sc.Password, sc.DB, opts...)
		a.closers = append(a.closers, s.Close)
		base = s
		if sc.Lock {
			locker = redis.NewLocker(s.Client(), sc.Prefix+"lock:")
		}
	default:
		return nil, nil, fmt.Errorf("unknown store type %q", sc.Type)
	}

	var mws []middleware.Middleware
	if len(sc.Redact) > 0 {
		mws = append(mws, middleware.NewRedactMiddleware(sc.Redact))
	}
	if sc.Encryption.Enabled() {
		active, fallback, err := sc.Encryption.Keys()
		if err != nil {
			return nil, nil, err
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		}))
	}
	a.Logger.Debug("store opened", "type", sc.Type, "middlewares", len(mws), "locking", locker != nil)
	return middleware.Chain(base, mws...), locker, nil
}

// createLogger configures the application logger from the log section.
func createLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewWithOptions(logOutput, level, cfg.Format), nil
}
