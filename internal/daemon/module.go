package daemon

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatrelay/internal/admin"
	"github.com/matheus3301/chatrelay/internal/bus"
	"github.com/matheus3301/chatrelay/internal/config"
	"github.com/matheus3301/chatrelay/internal/instance"
	"github.com/matheus3301/chatrelay/internal/lock"
	"github.com/matheus3301/chatrelay/internal/logging"
	"github.com/matheus3301/chatrelay/internal/relay"
	"github.com/matheus3301/chatrelay/internal/status"
	"github.com/matheus3301/chatrelay/internal/store"
	"github.com/matheus3301/chatrelay/internal/ws"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved instance configuration passed to the fx module.
type Params struct {
	InstanceName string
	ListenAddr   string // optional override; empty = config
	LogLevel     string // optional override; empty = config
	SocketPath   string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			relay.NewRegistry,
			relay.NewFanout,
			providePresence,
			provideRouter,
			provideWSServer,
			provideAdminServer,
			NewActivity,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(instance.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, fmt.Errorf("apply env: %w", err)
	}
	if p.ListenAddr != "" {
		cfg.ListenAddr = p.ListenAddr
	}
	if p.LogLevel != "" {
		cfg.LogLevel = p.LogLevel
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(instance.LogPath(p.InstanceName), p.InstanceName, cfg.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := instance.EnsureDir(p.InstanceName); err != nil {
		return nil, err
	}
	logger.Info("acquiring instance lock")
	l, err := lock.Acquire(instance.Dir(p.InstanceName))
	if err != nil {
		return nil, err
	}
	logger.Info("instance lock acquired")
	return l, nil
}

// provideStore takes the lock so the database is never opened by a second daemon.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := instance.DBPath(p.InstanceName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func providePresence(db *store.DB, fanout *relay.Fanout, b *bus.Bus, logger *zap.Logger) *relay.Presence {
	return relay.NewPresence(db, fanout, b, logger)
}

func provideRouter(cfg *config.Config, reg *relay.Registry, presence *relay.Presence, fanout *relay.Fanout, db *store.DB, b *bus.Bus, logger *zap.Logger) *relay.Router {
	return relay.NewRouter(reg, presence, fanout, db, db, b, logger, relay.Options{
		BroadcastOffline: cfg.BroadcastOffline,
	})
}

func provideWSServer(cfg *config.Config, router *relay.Router, machine *status.Machine, reg *relay.Registry, db *store.DB, logger *zap.Logger) *ws.Server {
	return ws.NewServer(router, machine, reg, db, ws.Options{
		SendBuffer:    cfg.SendBuffer,
		MaxFrameBytes: cfg.MaxFrameBytes,
		HistoryLimit:  cfg.HistoryLimit,
	}, logger)
}

func provideAdminServer(p Params, _ *lock.Lock, machine *status.Machine, b *bus.Bus, logger *zap.Logger) (*admin.Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = instance.AdminSocketPath(p.InstanceName)
	}
	return admin.NewServer(socketPath, machine, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, srv *ws.Server, adm *admin.Server, act *Activity, lk *lock.Lock, db *store.DB, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			act.Start()

			// Start admin gRPC server in background.
			go func() {
				if err := adm.Start(); err != nil {
					logger.Error("admin server error", zap.Error(err))
				}
			}()

			// Nobody is connected yet, so any stored online flag is stale.
			if n, err := db.ResetPresence(); err != nil {
				logger.Warn("presence reset failed", zap.Error(err))
			} else if n > 0 {
				logger.Info("reset stale presence", zap.Int64("users", n))
			}

			if err := srv.Start(cfg.ListenAddr); err != nil {
				_ = machine.Transition(status.Error)
				return fmt.Errorf("start http server: %w", err)
			}
			if err := machine.Transition(status.Ready); err != nil {
				return err
			}
			logger.Info("relay ready", zap.String("addr", srv.Addr()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := machine.Transition(status.Draining); err != nil {
				logger.Warn("drain transition", zap.Error(err))
			}
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
			adm.Stop(ctx)
			if err := machine.Transition(status.Stopped); err != nil {
				logger.Warn("stop transition", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			act.Stop()
			counts := act.Counts()
			logger.Info("daemon stopped",
				zap.Int64("online_events", counts.Online),
				zap.Int64("offline_events", counts.Offline),
				zap.Int64("messages", counts.Messages),
				zap.Int64("reads", counts.Reads),
			)
			_ = logger.Sync()
			return nil
		},
	})
}
