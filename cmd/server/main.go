package main // Entry point package

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/EmanuelC1601/back-end/internal/config"
	"github.com/EmanuelC1601/back-end/internal/database"
	"github.com/EmanuelC1601/back-end/internal/handler"
	"github.com/EmanuelC1601/back-end/internal/middleware"
	"github.com/EmanuelC1601/back-end/internal/queue"
	"github.com/EmanuelC1601/back-end/internal/repository"
	"github.com/EmanuelC1601/back-end/internal/router"
	"github.com/EmanuelC1601/back-end/internal/service"
	"github.com/EmanuelC1601/back-end/internal/storage"
	"github.com/EmanuelC1601/back-end/internal/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := newLogger(cfg)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := tracing.InitTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint, log)
		if err != nil {
			log.Warn("tracing disabled", slog.String("error", err.Error()))
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(sctx)
			}()
		}
	}

	db, err := database.Open(ctx, cfg)
	if err != nil {
		return err
	}
	ex := database.NewExecutor(db, database.NewOpener(cfg), database.Options{
		MaxRetries:      cfg.DBMaxRetries,
		BaseDelay:       cfg.DBRetryBaseDelay,
		MaxConns:        cfg.DBMaxOpenConns,
		MaxWaiters:      cfg.DBMaxWaiters,
		AcquireTimeout:  cfg.DBAcquireTimeout,
		RecreateTimeout: cfg.DBConnectTimeout,
		Logger:          log,
	})
	defer func() { _ = ex.Close() }()
	log.Info("database connected", slog.String("driver", cfg.DBDriver))

	if cfg.DBAutoSchema || cfg.DBDriver == "sqlite" {
		if err := database.EnsureSchema(ctx, ex, cfg.DBDriver); err != nil {
			return err
		}
	}

	store, uploadsDir, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable: cache and rate limit disabled")
	} else {
		defer func() { _ = rdb.Close() }()
	}
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log)
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log)

	var events service.Publisher = service.NoopPublisher{}
	if cfg.EventsEnabled {
		events = service.NewAMQPPublisher(cfg.RabbitMQURL, cfg.EventsQueue, log)
		consumer := &queue.Consumer{URL: cfg.RabbitMQURL, Queue: cfg.EventsQueue, LogPath: cfg.ActivityLog, Logger: log}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("activity consumer stopped", slog.String("error", err.Error()))
			}
		}()
	}

	intake := service.NewIntakeService(repository.NewImagenRepo(ex), store, events, cache, cfg.MaxUploadBytes, log)
	registros := service.NewRegistroService(repository.NewRegistroRepo(ex), events, cache, cfg.BcryptCost, log)

	dev := cfg.IsDevelopment()
	e := router.New(router.Deps{
		Config:    cfg,
		Imagenes:  handler.NewImagenHandler(intake, cfg.BaseURL, dev, log),
		Registros: handler.NewRegistroHandler(registros, dev, log),
		Health: &handler.HealthHandler{
			Info: handler.ServerInfo{
				Environment: cfg.Env,
				Host:        cfg.Host,
				Port:        cfg.Port,
				PublicURL:   cfg.BaseURL,
				UploadsDir:  uploadsDir,
				Render:      os.Getenv("RENDER") != "",
			},
			DB: ex,
		},
		Cache:      cache,
		RateLimit:  limit,
		UploadsDir: uploadsDir,
		Logger:     log,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		banner(log, cfg, uploadsDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

// openStore returns the configured blob store and, for the disk store, the
// directory served under /uploads.
func openStore(ctx context.Context, cfg config.Config) (storage.Store, string, error) {
	if cfg.StorageDriver == "minio" {
		s, err := storage.NewMinioStore(ctx, cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL)
		return s, "", err
	}
	s, err := storage.NewDiskStore(cfg.UploadsDir)
	if err != nil {
		return nil, "", err
	}
	return s, s.Root(), nil
}

func banner(log *slog.Logger, cfg config.Config, uploadsDir string) {
	line := strings.Repeat("=", 60)
	log.Info(line)
	log.Info("SERVIDOR INICIADO CORRECTAMENTE")
	log.Info(line)
	log.Info("Entorno: " + cfg.Env)
	log.Info("Host: " + cfg.Host)
	log.Info("Puerto: " + cfg.Port)
	if uploadsDir != "" {
		log.Info("Uploads: " + uploadsDir)
	} else {
		log.Info("Uploads: minio bucket " + cfg.MinIOBucket)
	}
	if cfg.BaseURL != "" {
		log.Info("URL Pública: " + cfg.BaseURL)
	}
	log.Info(line)
}
