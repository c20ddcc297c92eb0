package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/godilite/sentiment-sync/internal/bus"
	"github.com/godilite/sentiment-sync/internal/config"
	handler "github.com/godilite/sentiment-sync/internal/grpc"
	"github.com/godilite/sentiment-sync/internal/platform"
	"github.com/godilite/sentiment-sync/internal/reconciler"
	"github.com/godilite/sentiment-sync/internal/repository"
	"github.com/godilite/sentiment-sync/internal/scoring"
	"github.com/godilite/sentiment-sync/internal/service"
	"github.com/godilite/sentiment-sync/internal/view"
	"github.com/godilite/sentiment-sync/pkg/cache"
	dbbuilder "github.com/godilite/sentiment-sync/pkg/database"
	grpcsrv "github.com/godilite/sentiment-sync/pkg/grpc/server"
)

const (
	httpTimeout     = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// App is one view process: a mounted controller plus the dashboard that
// exposes it.
type App struct {
	logger     *zap.Logger
	kind       view.Kind
	dbPool     *sql.DB
	cache      *cache.Cache
	bus        *bus.Bus
	controller view.Controller
	grpcServer *grpcsrv.Server
}

// Option adjusts how NewApp wires collaborators. Production code passes
// none.
type Option func(*wiring)

type wiring struct {
	hub        *bus.MemoryHub
	listener   net.Listener
	httpClient *http.Client
}

// WithMemoryHub joins hub instead of Redis pub/sub, so several Apps in one
// process can talk to each other.
func WithMemoryHub(hub *bus.MemoryHub) Option {
	return func(w *wiring) { w.hub = hub }
}

func WithListener(lis net.Listener) Option {
	return func(w *wiring) { w.listener = lis }
}

func WithHTTPClient(c *http.Client) Option {
	return func(w *wiring) { w.httpClient = c }
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (a *App, err error) {
	w := wiring{httpClient: &http.Client{Timeout: httpTimeout}}
	for _, opt := range opts {
		opt(&w)
	}

	kind, err := view.ParseKind(cfg.ViewKind)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("view", string(kind)))
	a = &App{logger: logger, kind: kind}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	if w.hub == nil && cfg.RedisAddr != "" {
		a.cache, err = cache.New(ctx,
			cache.WithAddress(cfg.RedisAddr),
			cache.WithPassword(cfg.RedisPassword),
		)
		if err != nil {
			return nil, fmt.Errorf("cache init failed: %w", err)
		}
		logger.Info("Cache client initialized", zap.String("addr", cfg.RedisAddr))
	}

	var channel bus.Channel
	switch {
	case w.hub != nil:
		channel = w.hub.Connect()
	case a.cache != nil:
		channel, err = bus.NewRedisChannel(ctx, a.cache.Client(), cfg.Subdomain, logger)
		if err != nil {
			return nil, fmt.Errorf("bus init failed: %w", err)
		}
	default:
		logger.Warn("no Redis configured, views in other processes will not be notified")
		channel = bus.NewMemoryHub().Connect()
	}
	a.bus = bus.New(channel, logger)

	host, err := platform.NewHTTPHost(platform.HostOptions{
		BaseURL:    cfg.PlatformURL,
		Email:      cfg.PlatformEmail,
		Token:      cfg.PlatformToken,
		Subdomain:  cfg.Subdomain,
		TicketID:   cfg.TicketID,
		HTTPClient: w.httpClient,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("platform init failed: %w", err)
	}
	platformClient := platform.NewClient(host, logger,
		platform.WithPageSize(cfg.PageSize),
		platform.WithExclusionThreshold(cfg.ExclusionThreshold),
	)

	scoringClient, err := scoring.NewClient(scoring.Options{
		BaseURL:    cfg.BackendURL,
		Subdomain:  cfg.Subdomain,
		HTTPClient: w.httpClient,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("scoring init failed: %w", err)
	}

	analyzerOpts := []service.AnalyzerOption{service.WithNamespace(cfg.Subdomain)}
	if a.cache != nil {
		analyzerOpts = append(analyzerOpts, service.WithScoreCache(a.cache, cfg.ScoreCacheTTL))
	}
	analyzer := service.NewAnalyzer(scoringClient, platformClient, logger, analyzerOpts...)

	deps := view.Deps{
		Bus:          a.bus,
		Tickets:      platformClient,
		Scorer:       analyzer,
		Logger:       logger,
		ListPageSize: cfg.NavPageSize,
	}

	if kind != view.KindSidebar {
		a.dbPool, err = dbbuilder.New(
			dbbuilder.WithDriver(cfg.DBDriver),
			dbbuilder.WithDataSource(cfg.DBPath),
			dbbuilder.WithMigrations(repository.Schema...),
		)
		if err != nil {
			return nil, fmt.Errorf("database init failed: %w", err)
		}
		logger.Info("Database pool initialized", zap.String("path", cfg.DBPath))

		store := repository.NewTicketStore(a.dbPool)
		deps.Store = store
		if kind == view.KindBackground {
			deps.Runner = reconciler.New(platformClient, scoringClient, analyzer, store, a.bus, logger,
				reconciler.WithRefreshInterval(cfg.RefreshInterval),
				reconciler.WithWorkers(cfg.BackfillWorkers),
				reconciler.WithRetry(cfg.RetryAttempts, reconciler.DefaultRetryBase),
			)
		}
	}

	a.controller, err = view.New(kind, deps)
	if err != nil {
		return nil, err
	}

	serverOpts := []grpcsrv.Option{
		grpcsrv.WithPort(cfg.GRPCPort),
		grpcsrv.WithLogger(logger),
		grpcsrv.WithReflection(cfg.GRPCReflectionEnabled),
		grpcsrv.WithLogging(cfg.Debug),
		grpcsrv.WithRecovery(true),
	}
	if w.listener != nil {
		serverOpts = append(serverOpts, grpcsrv.WithListener(w.listener))
	}
	a.grpcServer, err = grpcsrv.New(serverOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC server: %w", err)
	}

	dashboard := handler.NewDashboardHandlers(a.controller, logger)
	a.grpcServer.RegisterServiceWithHealth(handler.ServiceName, func(s *grpc.Server) {
		handler.RegisterDashboardServer(s, dashboard)
	})

	return a, nil
}

// View is the mounted controller.
func (a *App) View() view.Controller {
	return a.controller
}

// Addr is the dashboard's listening address.
func (a *App) Addr() net.Addr {
	return a.grpcServer.Addr()
}

// Start connects the bus, mounts the view and begins serving. It returns
// once the view has rendered its first snapshot.
func (a *App) Start(ctx context.Context) error {
	a.logger.Info("application starting")

	a.bus.Start(context.WithoutCancel(ctx))
	if err := a.controller.Mount(ctx); err != nil {
		return fmt.Errorf("mount %s view: %w", a.kind, err)
	}
	a.grpcServer.Start()
	return nil
}

// Run starts the application and blocks until a shutdown signal is received.
func (a *App) Run() error {
	if err := a.Start(context.Background()); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	a.logger.Info("application shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := a.Shutdown(ctx)
	_ = a.logger.Sync()
	return err
}

// Shutdown unmounts the view before the transports it depends on go away.
func (a *App) Shutdown(ctx context.Context) error {
	a.grpcServer.SetServiceHealth(handler.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	a.controller.Unmount()

	var errs []error
	if err := a.grpcServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("grpc shutdown: %w", err))
	}
	a.closeResources()

	if ctx.Err() == context.DeadlineExceeded {
		a.logger.Warn("shutdown completed but deadline exceeded")
	} else {
		a.logger.Info("graceful shutdown completed successfully")
	}
	return errors.Join(errs...)
}

func (a *App) closeResources() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.logger.Error("bus shutdown error", zap.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("cache shutdown error", zap.Error(err))
		}
	}
	if a.dbPool != nil {
		if err := a.dbPool.Close(); err != nil {
			a.logger.Error("database shutdown error", zap.Error(err))
		}
	}
}
