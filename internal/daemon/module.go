package daemon

import (
	"context"
	"errors"

	"github.com/matheus3301/opschat/internal/api"
	"github.com/matheus3301/opschat/internal/bus"
	"github.com/matheus3301/opschat/internal/chatlist"
	"github.com/matheus3301/opschat/internal/config"
	"github.com/matheus3301/opschat/internal/connection"
	"github.com/matheus3301/opschat/internal/ledger"
	"github.com/matheus3301/opschat/internal/lock"
	"github.com/matheus3301/opschat/internal/logging"
	"github.com/matheus3301/opschat/internal/netwatch"
	"github.com/matheus3301/opschat/internal/notify"
	"github.com/matheus3301/opschat/internal/rest"
	"github.com/matheus3301/opschat/internal/router"
	"github.com/matheus3301/opschat/internal/session"
	"github.com/matheus3301/opschat/internal/status"
	"github.com/matheus3301/opschat/internal/store"
	intsync "github.com/matheus3301/opschat/internal/sync"
	"github.com/matheus3301/opschat/internal/transport"
	"github.com/matheus3301/opschat/internal/typing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Config      *config.Config
	SocketPath  string // optional override for testing; empty = use default
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
			provideLedger,
			provideChatList,
			provideTyping,
			provideFocus,
			providePresenter,
			router.NewTranscript,
			router.NewBridge,
			provideBackend,
			provideManager,
			provideWatcher,
			provideEngine,
			provideConsoleService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config == nil {
		return nil, errors.New("daemon: config is required")
	}
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}
	return p.Config, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.NewWithLevel(session.LogPath(p.SessionName), p.SessionName, logging.ParseLevel(cfg.LogLevel))
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName), cfg.UserID)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.ClientDBPath(p.SessionName)
	db, result, err := store.OpenMigrated(dbPath)
	if err != nil {
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideLedger(db *store.DB, b *bus.Bus, logger *zap.Logger) *ledger.Ledger {
	return ledger.New(db, b, logger)
}

func provideChatList(db *store.DB, b *bus.Bus, logger *zap.Logger) *chatlist.Projector {
	return chatlist.New(db, b, logger)
}

func provideTyping(b *bus.Bus) *typing.Tracker {
	return typing.NewTracker(b)
}

func provideFocus(db *store.DB, logger *zap.Logger) *notify.Focus {
	return notify.NewFocus(db, logger)
}

func providePresenter(cfg *config.Config, focus *notify.Focus, db *store.DB, b *bus.Bus, logger *zap.Logger) *notify.Presenter {
	opts := notify.Options{
		Capacity: cfg.Notifications.Capacity,
		Sound:    cfg.Notifications.Sound,
	}
	return notify.NewPresenter(opts, focus, db, b, logger,
		notify.LogSink{Logger: logger},
		notify.BusSink{Bus: b},
	)
}

func provideBackend(cfg *config.Config) (*rest.Client, error) {
	token, err := cfg.ResolveToken()
	if err != nil {
		return nil, err
	}
	return rest.New(cfg.APIURL, token, nil), nil
}

func provideManager(cfg *config.Config, machine *status.Machine, logger *zap.Logger) *connection.Manager {
	opts := connection.Options{
		InitialInterval: cfg.Reconnect.InitialInterval,
		MaxInterval:     cfg.Reconnect.MaxInterval,
	}
	return connection.NewManager(transport.NewWSDialer(cfg.ServerURL), machine, opts, logger)
}

func provideWatcher(cfg *config.Config, b *bus.Bus, logger *zap.Logger) (*netwatch.Watcher, error) {
	addr, err := netwatch.HostPort(cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	return netwatch.New(addr, cfg.Network.ProbeInterval, netwatch.TCPProbe, b, logger), nil
}

type engineDeps struct {
	fx.In

	Config     *config.Config
	Manager    *connection.Manager
	Backend    *rest.Client
	Ledger     *ledger.Ledger
	List       *chatlist.Projector
	Typing     *typing.Tracker
	Focus      *notify.Focus
	Presenter  *notify.Presenter
	Transcript *router.Transcript
	Bridge     *router.Bridge
	Bus        *bus.Bus
	Logger     *zap.Logger
}

func provideEngine(d engineDeps) *intsync.Engine {
	return intsync.NewEngine(intsync.Deps{
		Conn:        d.Manager,
		Backend:     d.Backend,
		Ledger:      d.Ledger,
		List:        d.List,
		Typing:      d.Typing,
		Focus:       d.Focus,
		Notifier:    d.Presenter,
		Transcript:  d.Transcript,
		Bridge:      d.Bridge,
		Bus:         d.Bus,
		QuietPeriod: d.Config.Typing.QuietPeriod,
	}, d.Logger)
}

func provideConsoleService(p Params, engine *intsync.Engine, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *api.ConsoleService {
	return api.NewConsoleService(p.SessionName, engine, machine, b, logger)
}

type lifecycleDeps struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Server    *Server
	Lock      *lock.Lock
	DB        *store.DB
	Engine    *intsync.Engine
	Manager   *connection.Manager
	Watcher   *netwatch.Watcher
	Logger    *zap.Logger
}

func registerLifecycle(d lifecycleDeps) {
	var cancel context.CancelFunc
	logger := d.Logger

	d.Lifecycle.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			token, err := d.Config.ResolveToken()
			if err != nil {
				return err
			}
			if token == "" {
				logger.Warn("no auth token configured, transport will stay disconnected")
			}

			// Durable state is rehydrated before the loop sees any event.
			d.Engine.Init(d.Config.UserID, token)

			// Start gRPC server in background.
			go func() {
				if err := d.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())

			d.Watcher.OnChange(d.Manager.NetworkChanged)
			go d.Watcher.Run(ctx)

			d.Engine.Start(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			d.Engine.Dispose()
			d.Server.Stop(ctx)
			if err := d.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
