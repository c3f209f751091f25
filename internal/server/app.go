// Package server assembles the item-sharing server: it opens the database,
// applies migrations, builds the services and runs the HTTP API alongside
// the operational gRPC endpoint until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/itemshare/internal/logging"
	"github.com/dmitrijs2005/itemshare/internal/server/auth"
	"github.com/dmitrijs2005/itemshare/internal/server/config"
	"github.com/dmitrijs2005/itemshare/internal/server/metrics"
	"github.com/dmitrijs2005/itemshare/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/itemshare/internal/server/rest"
	"github.com/dmitrijs2005/itemshare/internal/server/services"

	gs "github.com/dmitrijs2005/itemshare/internal/server/grpc"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	httpServer *http.Server
	grpcServer *gs.GRPCServer
}

// parseLevel maps a config level name to slog; unknown names mean info.
func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return slog.LevelInfo
	}
	return l
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, parseLevel(c.LogLevel))

	usingDefault, err := c.CheckSecretKey()
	if err != nil {
		return nil, err
	}
	if usingDefault {
		logger.Warn(ctx, "using the development secret key; set ITEMSHARE_SECRET_KEY")
	}

	hasher, err := auth.NewHasher(c.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hasher init error: %w", err)
	}

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	tokens := auth.NewTokenService([]byte(c.SecretKey), c.AccessTokenValidityDuration, auth.WithClockSkew(c.TokenClockSkew))
	images := services.NewImageStore(services.ImageStoreConfig{
		Region:       c.S3Region,
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		Bucket:       c.S3Bucket,
		BaseEndpoint: c.S3BaseEndpoint,
	})
	mx := metrics.New()

	us := services.NewUserService(db, rm, tokens, hasher, c.RefreshTokenValidityDuration, logger)
	is := services.NewItemService(db, rm, images, logger)
	ss := services.NewSharingService(db, rm, mx, logger)

	router := rest.NewRouter(rest.NewHandler(us, is, ss, mx, logger), rest.Options{
		RequestTimeout:     c.RequestTimeout,
		LoginRatePerMinute: c.LoginRatePerMinute,
	})

	return &App{
		config: c,
		logger: logger,
		db:     db,
		httpServer: &http.Server{
			Addr:              c.EndpointAddrHTTP,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		grpcServer: gs.NewGRPCServer(c.EndpointAddrGRPC, logger, db, c.HealthCheckInterval),
	}, nil
}

func (app *App) startHTTPServer(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "Starting HTTP server", "address", app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.logger.Info(ctx, "Stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
	defer cancel()
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

// Run serves until ctx is cancelled or either server fails. The first
// failure stops the other server too.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		if err == nil {
			return
		}
		app.logger.Error(ctx, err.Error())
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		cancelFunc()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		fail(app.startHTTPServer(ctx))
	}()
	go func() {
		defer wg.Done()
		fail(app.grpcServer.Run(ctx))
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Warn(context.Background(), "db close", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")

	return firstErr
}
