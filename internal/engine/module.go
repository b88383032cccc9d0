package engine

import (
	"context"
	"time"

	"github.com/velacare/chatsync/internal/bus"
	"github.com/velacare/chatsync/internal/cache"
	"github.com/velacare/chatsync/internal/config"
	"github.com/velacare/chatsync/internal/logging"
	"github.com/velacare/chatsync/internal/reconcile"
	"github.com/velacare/chatsync/internal/search"
	"github.com/velacare/chatsync/internal/send"
	"github.com/velacare/chatsync/internal/socket"
	"github.com/velacare/chatsync/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved startup configuration passed to the fx module.
type Params struct {
	ConfigPath string
}

// Module returns the fx module for the sync engine, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("engine",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideCache,
			provideTransport,
			provideStateMachine,
			provideListener,
			provideReconciler,
			provideSearch,
			provideSender,
			provideEngine,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	return config.Load(p.ConfigPath)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath, cfg.UserID)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideCache(b *bus.Bus) *cache.Store {
	return cache.New(b)
}

func provideTransport(cfg *config.Config) transport.Client {
	return transport.NewHTTPClient(cfg.APIBaseURL, cfg.UserID, transport.WithToken(cfg.APIToken))
}

func provideStateMachine(b *bus.Bus) *socket.Machine {
	return socket.NewMachine(b)
}

func provideListener(cfg *config.Config, b *bus.Bus, m *socket.Machine, logger *zap.Logger) *socket.Listener {
	return socket.NewListener(cfg.SocketURL, cfg.APIToken, b, m, logger)
}

func provideReconciler(c *cache.Store, client transport.Client, b *bus.Bus, logger *zap.Logger) *reconcile.Reconciler {
	return reconcile.New(c, client, b, logger)
}

func provideSearch(cfg *config.Config, c *cache.Store, client transport.Client, b *bus.Bus, logger *zap.Logger) *search.Controller {
	return search.New(c, client, b, logger, cfg.PageLimit, time.Duration(cfg.SearchDebounceMS)*time.Millisecond)
}

func provideSender(c *cache.Store, client transport.Client, b *bus.Bus, logger *zap.Logger) *send.Coordinator {
	return send.New(c, client, b, logger)
}

func provideEngine(cfg *config.Config, c *cache.Store, client transport.Client, logger *zap.Logger, searchCtl *search.Controller, sender *send.Coordinator) *Engine {
	return New(c, client, logger, searchCtl, sender, cfg.PageLimit)
}

func registerLifecycle(lc fx.Lifecycle, listener *socket.Listener, rec *reconcile.Reconciler, eng *Engine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			rec.Start(context.Background())
			listener.Start(context.Background())

			if err := eng.Bootstrap(ctx); err != nil {
				// Recoverable: the list reloads on the next refresh.
				logger.Warn("bootstrap failed", zap.Error(err))
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			listener.Stop()
			rec.Stop()
			logger.Info("engine stopped")
			return nil
		},
	})
}
