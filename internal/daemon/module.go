package daemon

import (
	"context"

	"github.com/matheus3301/parley/internal/api"
	"github.com/matheus3301/parley/internal/auth"
	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/config"
	"github.com/matheus3301/parley/internal/group"
	"github.com/matheus3301/parley/internal/hub"
	"github.com/matheus3301/parley/internal/instance"
	"github.com/matheus3301/parley/internal/lock"
	"github.com/matheus3301/parley/internal/logging"
	"github.com/matheus3301/parley/internal/pipeline"
	"github.com/matheus3301/parley/internal/presence"
	"github.com/matheus3301/parley/internal/registry"
	"github.com/matheus3301/parley/internal/status"
	"github.com/matheus3301/parley/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved instance configuration passed to the fx module.
type Params struct {
	Instance   string
	Config     *config.Config
	ListenAddr string // optional override for testing; empty = Config.ListenAddr
}

func (p Params) listenAddr() string {
	if p.ListenAddr != "" {
		return p.ListenAddr
	}
	return p.Config.ListenAddr
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			registry.New,
			provideGroups,
			provideTracker,
			providePipeline,
			provideHub,
			provideVerifier,
			provideGateway,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(instance.LogPath(p.Instance), p.Instance, p.Config.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := instance.EnsureDir(p.Instance); err != nil {
		return nil, err
	}
	logger.Info("acquiring instance lock", zap.String("instance", p.Instance))
	l, err := lock.Acquire(instance.Dir(p.Instance))
	if err != nil {
		return nil, err
	}
	logger.Info("instance lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is never opened by two
// daemons.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := instance.DBPath(p.Instance)
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

func provideGroups(r *registry.Registry, db *store.DB, b *bus.Bus, logger *zap.Logger) *group.Manager {
	return group.NewManager(r, db, b, logger.Named("groups"))
}

func provideTracker(r *registry.Registry, db *store.DB, b *bus.Bus, logger *zap.Logger) *presence.Tracker {
	return presence.NewTracker(r, db, b, logger.Named("presence"))
}

func providePipeline(p Params, db *store.DB, groups *group.Manager, b *bus.Bus, logger *zap.Logger) *pipeline.Pipeline {
	return pipeline.New(db, groups, b, logger.Named("pipeline"), pipeline.Options{
		ConfirmAllSessions: p.Config.ConfirmAllSessions,
		MaxBodyLen:         p.Config.MaxBodyLen,
	})
}

func provideHub(p Params, r *registry.Registry, tr *presence.Tracker, groups *group.Manager, pl *pipeline.Pipeline, b *bus.Bus, logger *zap.Logger) *hub.Hub {
	return hub.New(r, tr, groups, pl, b, logger.Named("hub"), p.Config.SendBuffer)
}

func provideVerifier(p Params) (*auth.Verifier, error) {
	return auth.NewVerifier(p.Config.TokenSecret)
}

func provideGateway(p Params, h *hub.Hub, v *auth.Verifier, m *status.Machine, b *bus.Bus, db *store.DB, logger *zap.Logger) *api.Gateway {
	return api.NewGateway(p.Instance, h, v, m, b, db, logger.Named("gateway"))
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	lk *lock.Lock,
	db *store.DB,
	h *hub.Hub,
	gw *api.Gateway,
	machine *status.Machine,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Nobody is connected yet, whatever the last run left behind.
			n, err := db.ResetPresence(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("cleared stale presence", zap.Int64("identities", n))
			}

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
					_ = machine.Transition(status.Error)
				}
			}()

			return machine.Transition(status.Serving)
		},
		OnStop: func(ctx context.Context) error {
			_ = machine.Transition(status.Draining)

			gw.Close()
			h.CloseAll()
			srv.Stop(ctx)
			if err := h.Wait(ctx); err != nil {
				logger.Warn("connections still open at shutdown", zap.Error(err))
			}
			if _, err := db.ResetPresence(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("error clearing presence", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			_ = machine.Transition(status.Stopped)
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
