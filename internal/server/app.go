// Package server wires storage, session infrastructure and both transports
// into the running account authority.
package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/multiplycharity/multiply-monorepo/internal/logging"
	"github.com/multiplycharity/multiply-monorepo/internal/server/config"
	"github.com/multiplycharity/multiply-monorepo/internal/server/events"
	"github.com/multiplycharity/multiply-monorepo/internal/server/httpapi"
	"github.com/multiplycharity/multiply-monorepo/internal/server/metrics"
	"github.com/multiplycharity/multiply-monorepo/internal/server/ratelimit"
	"github.com/multiplycharity/multiply-monorepo/internal/server/repositories/accounts"
	"github.com/multiplycharity/multiply-monorepo/internal/server/repositories/repomanager"
	"github.com/multiplycharity/multiply-monorepo/internal/server/revocation"
	"github.com/multiplycharity/multiply-monorepo/internal/server/services"
	"golang.org/x/sync/errgroup"

	gs "github.com/multiplycharity/multiply-monorepo/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	metrics  *metrics.Metrics
	accounts *services.AccountService
	closers  []io.Closer
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	app := &App{config: c, logger: logger, metrics: metrics.New()}

	repo, err := app.openRepository(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	revocations, publisher, err := app.openSessionInfra(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.accounts = services.NewAccountService(repo, c,
		services.WithRevocations(revocations),
		services.WithEvents(publisher),
		services.WithLimiter(ratelimit.New(c.AuthRateLimit, c.AuthBurst, 0)),
		services.WithMetrics(app.metrics),
		services.WithLogger(logger),
	)

	return app, nil
}

func (app *App) openRepository(ctx context.Context) (accounts.Repository, error) {
	switch app.config.StoreBackend {
	case config.StorePostgres:
		db, err := repomanager.OpenPostgres(ctx, app.config.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		app.closers = append(app.closers, db)

		rm := repomanager.NewPostgresRepositoryManager()
		if err := rm.RunMigrations(ctx, db); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return rm.Accounts(db), nil

	case config.StoreS3:
		client, err := accounts.NewS3Client(ctx, accounts.S3Config{
			User:     app.config.S3RootUser,
			Password: app.config.S3RootPassword,
			Region:   app.config.S3Region,
			Endpoint: app.config.S3BaseEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
		return accounts.NewS3Repository(client, app.config.S3Bucket), nil

	case config.StoreMemory:
		app.logger.Warn(ctx, "accounts are kept in memory and lost on restart")
		return accounts.NewMemoryRepository(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", app.config.StoreBackend)
}

// openSessionInfra picks Redis for revocations and events when a URL is
// configured, in-process stores otherwise.
func (app *App) openSessionInfra(ctx context.Context) (revocation.Store, events.Publisher, error) {
	if app.config.RedisURL == "" {
		pub := events.NewWatermillPublisher(events.NewGoChannel())
		app.closers = append(app.closers, pub)
		return revocation.NewMemoryStore(), pub, nil
	}

	client, err := revocation.NewRedisClient(ctx, app.config.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis init error: %w", err)
	}
	app.closers = append(app.closers, client)

	stream, err := events.NewRedisStreamPublisher(client)
	if err != nil {
		return nil, nil, fmt.Errorf("event stream init error: %w", err)
	}
	pub := events.NewWatermillPublisher(stream)
	// publisher first so it flushes before the client goes away
	app.closers = append([]io.Closer{pub}, app.closers...)

	return revocation.NewRedisStore(client), pub, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves gRPC and, when configured, HTTP until a signal arrives or
// either server fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.Close()

	app.logger.Info(ctx, "Starting app...", "store", app.config.StoreBackend)

	app.initSignalHandler(cancelFunc)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.accounts).Run(ctx)
	})

	if app.config.EndpointAddrHTTP != "" {
		router := httpapi.SetupRouter(app.accounts, app.metrics, app.logger, app.config.CookieSecure)
		g.Go(func() error {
			return httpapi.NewServer(app.config.EndpointAddrHTTP, router, app.logger).Run(ctx)
		})
	}

	err := g.Wait()
	if err != nil {
		app.logger.Error(ctx, err.Error())
	}
	return err
}

func (app *App) Close() {
	for _, c := range app.closers {
		if err := c.Close(); err != nil {
			app.logger.Warn(context.Background(), "close failed", "error", err)
		}
	}
	app.closers = nil
}
