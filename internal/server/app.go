// Package server wires the bulletin server together: the server key pair,
// the packet storage backend, upload staging, metrics, the mirroring
// supplier and puller, and the gRPC endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/bulletinkeeper/internal/client/client"
	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
	"github.com/dmitrijs2005/bulletinkeeper/internal/logging"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packetdb"
	"github.com/dmitrijs2005/bulletinkeeper/internal/server/config"
	"github.com/dmitrijs2005/bulletinkeeper/internal/server/mirroring"
	"github.com/dmitrijs2005/bulletinkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/bulletinkeeper/internal/server/repositories/packets"
	"github.com/dmitrijs2005/bulletinkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/bulletinkeeper/internal/server/services"
	"github.com/dmitrijs2005/bulletinkeeper/internal/server/staging"
	"github.com/dmitrijs2005/bulletinkeeper/internal/transfer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/bulletinkeeper/internal/server/grpc"
)

// Version is reported in the server info; set at build time with -ldflags.
var Version = "dev"

const (
	stagingGCInterval = 10 * time.Minute
	shutdownTimeout   = 5 * time.Second
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	security  *cryptox.Security
	db        packetdb.Database
	accounts  accounts.Repository
	staging   *staging.Badger
	registry  *prometheus.Registry
	metrics   *services.Metrics
	allowList *mirroring.AllowList
	grpc      *gs.GRPCServer
	puller    *mirroring.Puller

	// released in reverse order by Close
	closers []func() error
}

// NewApp unlocks the server key pair and opens every backend named by c.
// Anything opened before a failure is released again.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	app := &App{
		config:   c,
		logger:   logging.NewJSONLogger(c.LogFile, slog.LevelInfo),
		security: cryptox.NewSecurity(),
		registry: prometheus.NewRegistry(),
	}
	if err := app.init(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	created, err := cryptox.LoadOrCreateKeyPairFile(app.security, app.config.KeyPairFile, []byte(app.config.KeyPairPassphrase))
	if err != nil {
		return fmt.Errorf("server key pair %s: %w", app.config.KeyPairFile, err)
	}
	code, err := cryptox.ComputePublicCode(app.security.PublicKeyString())
	if err != nil {
		return err
	}
	app.logger.Info(ctx, "server account unlocked", "public_code", code, "created", created)

	if err := app.openStorage(ctx); err != nil {
		return err
	}

	app.staging, err = staging.OpenBadger(app.config.StagingDir, app.config.StagingTTL, app.logger)
	if err != nil {
		return err
	}
	app.closers = append(app.closers, app.staging.Close)

	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.metrics = services.NewMetrics(app.registry)

	bulletins := services.NewBulletinService(app.db, app.accounts, app.staging, app.security, services.Options{
		MagicWord:     app.config.MagicWord,
		MaxChunkSize:  app.config.MaxChunkSize,
		MaxUploadSize: app.config.MaxUploadSize,
		ServerInfoTTL: app.config.ServerInfoTTL,
		Version:       Version,
	}, app.metrics, app.logger)

	var supplier transfer.Caller
	if app.config.MirrorsWhoCallUsDir != "" {
		app.allowList, err = mirroring.LoadAllowList(ctx, app.config.MirrorsWhoCallUsDir, app.logger)
		if err != nil {
			return err
		}
		app.logger.Info(ctx, "mirroring enabled", "peers", app.allowList.Len())
		supplier = mirroring.NewSupplier(app.db, app.security, app.allowList, app.config.MaxChunkSize, app.logger)
	}

	sources, err := app.mirrorSources()
	if err != nil {
		return err
	}
	app.puller = mirroring.NewPuller(app.db, app.security, sources, app.config.MirrorPullInterval,
		app.config.MaxChunkSize, app.metrics, app.logger)

	app.grpc, err = gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, bulletins, supplier)
	return err
}

// openStorage picks the packet backend. Upload rights live in Postgres for
// both the postgres and s3 backends; memory keeps everything in process.
func (app *App) openStorage(ctx context.Context) error {
	switch app.config.StorageBackend {
	case config.StorageMemory:
		m := repomanager.NewInMemoryRepositoryManager()
		app.db, app.accounts = m.Packets(nil), m.Accounts(nil)
		app.logger.Warn(ctx, "using in-memory storage, bulletins are lost on exit")
		return nil

	case config.StoragePostgres, config.StorageS3:
		sqlDB, err := repomanager.OpenPostgres(ctx, app.config.DatabaseDSN)
		if err != nil {
			return err
		}
		app.closers = append(app.closers, sqlDB.Close)

		m := repomanager.NewPostgresRepositoryManager()
		if err := m.RunMigrations(ctx, sqlDB); err != nil {
			return err
		}
		app.accounts = m.Accounts(sqlDB)

		if app.config.StorageBackend == config.StoragePostgres {
			app.db = m.Packets(sqlDB)
			return nil
		}

		s3Client, err := packets.NewS3Client(ctx, packets.S3Settings{
			Region:       app.config.S3Region,
			BaseEndpoint: app.config.S3BaseEndpoint,
			AccessKey:    app.config.S3AccessKey,
			SecretKey:    app.config.S3SecretKey,
			Bucket:       app.config.S3Bucket,
		})
		if err != nil {
			return fmt.Errorf("s3 init error: %w", err)
		}
		app.db = packets.NewS3Repository(s3Client, app.config.S3Bucket)
		return nil

	default:
		return fmt.Errorf("unknown storage backend %q", app.config.StorageBackend)
	}
}

func (app *App) mirrorSources() ([]mirroring.Source, error) {
	sources := make([]mirroring.Source, 0, len(app.config.MirrorSources))
	for _, addr := range app.config.MirrorSources {
		conn, err := client.NewMirroringClient(addr)
		if err != nil {
			return nil, fmt.Errorf("mirror source %s: %w", addr, err)
		}
		app.closers = append(app.closers, conn.Close)
		sources = append(sources, mirroring.Source{Name: addr, Caller: conn})
	}
	return sources, nil
}

// initSignalHandler cancels on SIGINT, SIGTERM or SIGQUIT and reloads the
// mirror allow-list on SIGHUP.
func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigs)
		for {
			select {
			case sig := <-sigs:
				if sig == syscall.SIGHUP {
					app.reloadAllowList(ctx)
					continue
				}
				app.logger.Info(ctx, "shutdown requested", "signal", sig.String())
				cancelFunc()
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (app *App) reloadAllowList(ctx context.Context) {
	if app.allowList == nil {
		return
	}
	fresh, err := mirroring.LoadAllowList(ctx, app.config.MirrorsWhoCallUsDir, app.logger)
	if err != nil {
		app.logger.Error(ctx, "failed to reload mirror keys", "error", err)
		return
	}
	app.allowList.Replace(fresh)
	app.logger.Info(ctx, "mirror keys reloaded", "peers", app.allowList.Len())
}

func (app *App) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              app.config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "metrics server shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "serving prometheus metrics", "address", app.config.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics listener: %w", err)
	}
	return nil
}

func (app *App) collectStagingGarbage(ctx context.Context) {
	ticker := time.NewTicker(stagingGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := app.staging.CollectGarbage(); err != nil {
				app.logger.Warn(ctx, "staging garbage collection failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Run serves until ctx is cancelled, a shutdown signal arrives or a
// component fails, then releases every backend.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "version", Version, "storage", app.config.StorageBackend)

	app.initSignalHandler(ctx, cancelFunc)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.grpc.Run(ctx) })
	g.Go(func() error { return app.puller.Run(ctx) })
	g.Go(func() error {
		app.collectStagingGarbage(ctx)
		return nil
	})
	if app.config.MetricsAddr != "" {
		g.Go(func() error { return app.serveMetrics(ctx) })
	}

	err := g.Wait()
	app.logger.Info(context.WithoutCancel(ctx), "Stopping app...")
	return errors.Join(err, app.Close())
}

// Close releases the backends in reverse order of opening and forgets the
// server key pair.
func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	app.security.ClearKeyPair()
	return errors.Join(errs...)
}
