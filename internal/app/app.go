package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/httplog/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/vadimbarashkov/image-tracker/internal/config"
	"github.com/vadimbarashkov/image-tracker/internal/database/cache"
	"github.com/vadimbarashkov/image-tracker/internal/idgen"
	"github.com/vadimbarashkov/image-tracker/internal/relay"
	"github.com/vadimbarashkov/image-tracker/internal/service"
	"github.com/vadimbarashkov/image-tracker/internal/storage/local"
	"github.com/vadimbarashkov/image-tracker/internal/storage/oss"
	"github.com/vadimbarashkov/image-tracker/pkg/postgres"
	"golang.org/x/sync/errgroup"

	dbpostgres "github.com/vadimbarashkov/image-tracker/internal/database/postgres"
	myhttp "github.com/vadimbarashkov/image-tracker/internal/api/http"
)

const serviceName = "image-tracker"

// Run migrates the schema, wires every component and serves HTTP until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	logger := NewLogger(cfg)

	if err := postgres.RunMigrations(cfg.MigrationsPath, cfg.Postgres.ServiceDSN(), postgres.Up); err != nil {
		return fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	anonDB, err := connect(ctx, &cfg.Postgres, cfg.Postgres.AnonDSN())
	if err != nil {
		return fmt.Errorf("%s: failed to connect as anon role: %w", op, err)
	}
	defer anonDB.Close()

	serviceDB, err := connect(ctx, &cfg.Postgres, cfg.Postgres.ServiceDSN())
	if err != nil {
		return fmt.Errorf("%s: failed to connect as service role: %w", op, err)
	}
	defer serviceDB.Close()

	store, imagesDir, err := newObjectStore(cfg)
	if err != nil {
		return fmt.Errorf("%s: failed to init storage: %w", op, err)
	}

	var linkRepo service.LinkRepository = dbpostgres.NewLinkRepository(serviceDB)

	if cfg.Cache.Enabled {
		rdb, err := newRedis(ctx, cfg.Cache)
		if err != nil {
			return fmt.Errorf("%s: failed to connect to redis: %w", op, err)
		}
		if rdb != nil {
			defer rdb.Close()
		}

		linkRepo = cache.NewLinkCache(linkRepo, cache.Options{
			Redis:     rdb,
			TTL:       cfg.Cache.TTL,
			LocalSize: cfg.Cache.LocalSize,
		})
	}

	linkSvc := service.NewLinkService(linkRepo, idgen.ShortIDLength)
	trackSvc := service.NewTrackService(
		dbpostgres.NewAccessRepository(anonDB, serviceDB),
		relay.New(nil),
		service.WithWindow(cfg.Tracking.Window),
		service.WithInternalHost(cfg.Tracking.InternalHost),
		service.WithLogger(logger.Logger),
	)
	imageSvc := service.NewImageService(store)

	router := myhttp.NewRouter(logger, myhttp.Options{
		PublicBaseURL: cfg.PublicBaseURL,
		AllowedOrigin: cfg.AllowedOrigin,
		ResolveMode:   cfg.Tracking.ResolveMode,
		MaxUploadSize: cfg.Upload.MaxFileSize,
		ImagesDir:     imagesDir,
	}, linkSvc, trackSvc, imageSvc)

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        router,
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		logger.Info("starting http server",
			slog.String("addr", server.Addr),
			slog.String("env", cfg.Env),
			slog.String("storage", cfg.Storage.Driver),
			slog.String("resolve_mode", cfg.Tracking.ResolveMode),
		)

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		logger.Info("shutting down http server")

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}

// Migrate moves the schema in the given direction using the service role.
func Migrate(cfg *config.Config, dir postgres.Direction) error {
	const op = "app.Migrate"

	if err := postgres.RunMigrations(cfg.MigrationsPath, cfg.Postgres.ServiceDSN(), dir); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// NewLogger builds the structured logger shared by request logging and services.
func NewLogger(cfg *config.Config) *httplog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}

	return httplog.NewLogger(serviceName, httplog.Options{
		LogLevel: level,
		JSON:     cfg.Log.JSON,
		Concise:  cfg.Log.Concise,
		Tags: map[string]string{
			"env": cfg.Env,
		},
		Writer: os.Stdout,
	})
}

func connect(ctx context.Context, cfg *config.Postgres, dsn string) (*sqlx.DB, error) {
	return postgres.Connect(
		ctx,
		dsn,
		postgres.WithConnMaxIdleTime(cfg.ConnMaxIdleTime),
		postgres.WithConnMaxLifetime(cfg.ConnMaxLifetime),
		postgres.WithMaxIdleConns(cfg.MaxIdleConns),
		postgres.WithMaxOpenConns(cfg.MaxOpenConns),
	)
}

// newObjectStore returns the configured storage gateway and, for the local driver,
// the directory the router should serve under /images/.
func newObjectStore(cfg *config.Config) (service.ObjectStore, string, error) {
	switch cfg.Storage.Driver {
	case config.StorageOSS:
		store, err := oss.New(oss.Config{
			AccessKeyID:     cfg.Storage.OSS.AccessKeyID,
			AccessKeySecret: cfg.Storage.OSS.AccessKeySecret,
			Bucket:          cfg.Storage.OSS.Bucket,
			Region:          cfg.Storage.OSS.Region,
			Domain:          cfg.Storage.OSS.Domain,
		})
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	case config.StorageLocal:
		baseURL := strings.TrimSuffix(cfg.PublicBaseURL, "/") + "/images"
		store, err := local.New(cfg.Storage.Local.Dir, baseURL)
		if err != nil {
			return nil, "", err
		}
		return store, store.Dir(), nil
	default:
		return nil, "", fmt.Errorf("%w: %q", config.ErrUnknownStorageDriver, cfg.Storage.Driver)
	}
}

// newRedis returns nil when no address is configured so the link cache stays process local.
func newRedis(ctx context.Context, cfg config.Cache) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}

	return rdb, nil
}
