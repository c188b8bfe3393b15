package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/catalogxlate/internal/config"
	"github.com/JonMunkholm/catalogxlate/internal/core"
	"github.com/JonMunkholm/catalogxlate/internal/logging"
	"github.com/JonMunkholm/catalogxlate/internal/notify"
	"github.com/JonMunkholm/catalogxlate/internal/storage"
	"github.com/JonMunkholm/catalogxlate/internal/store"
	"github.com/JonMunkholm/catalogxlate/internal/upstream"
	"github.com/JonMunkholm/catalogxlate/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"batch_size", cfg.Pipeline.BatchSize,
		"requests_per_second", cfg.Pipeline.RequestsPerSecond,
		"storage_driver", cfg.Storage.Driver,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("effective configuration", "config", cfg.String())

	ctx := context.Background()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	if cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx, pool); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		slog.Info("schema applied")
	}

	jobs := store.NewJobs(pool)
	creds := store.NewCredentials(pool)
	if cfg.Upstream.SeedStoreHash != "" {
		if err := creds.SaveToken(ctx, cfg.Upstream.SeedStoreHash, cfg.Upstream.SeedAccessToken); err != nil {
			slog.Error("failed to save store credentials", "error", err)
			os.Exit(1)
		}
		slog.Info("store credentials registered", "store_hash", cfg.Upstream.SeedStoreHash)
	}

	blobs, err := storage.New(ctx, storage.Config{
		Driver:          cfg.Storage.Driver,
		Dir:             cfg.Storage.Dir,
		Bucket:          cfg.Storage.Bucket,
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     cfg.Storage.AccessKey,
		SecretAccessKey: cfg.Storage.SecretKey,
		UsePathStyle:    cfg.Storage.UsePathStyle,
		PublicBaseURL:   cfg.Storage.PublicBaseURL,
		FetchTimeout:    cfg.Upstream.Timeout,
	})
	if err != nil {
		slog.Error("failed to open file storage", "error", err)
		os.Exit(1)
	}

	var notifier core.Notifier = notify.Nop{}
	if cfg.Redis.Addr != "" {
		rn, err := notify.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rn.Close()
		notifier = rn
		slog.Info("job events enabled", "channel", cfg.Redis.Channel)
	}

	policy := upstream.Policy{MaxRetries: cfg.Pipeline.MaxRetries, FailFast: cfg.Pipeline.FailFast}
	gateways := func(storeHash, accessToken string) core.Gateway {
		return upstream.New(upstream.Config{
			BaseURL:     cfg.Upstream.BaseURL,
			StoreHash:   storeHash,
			AccessToken: accessToken,
			Timeout:     cfg.Upstream.Timeout,
			Policy:      policy,
		})
	}

	importPolicy := core.RecordAndContinue
	if cfg.Pipeline.FailOnRecordErrors {
		importPolicy = core.FailJob
	}

	service, err := core.NewService(core.Deps{
		Jobs:        jobs,
		Credentials: creds,
		Blobs:       blobs,
		Gateways:    gateways,
		Notifier:    notifier,
		Limiter:     core.NewRunLimiter(1, cfg.Pipeline.RunWait),
	}, core.PipelineConfig{
		BatchSize:         cfg.Pipeline.BatchSize,
		RequestsPerSecond: cfg.Pipeline.RequestsPerSecond,
		DefaultLocale:     cfg.Pipeline.DefaultLocale,
		JobTimeout:        cfg.Pipeline.JobTimeout,
		ImportPolicy:      importPolicy,
	})
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	// Create cancellable context for background jobs
	bgCtx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	opts := web.Options{
		Security:       cfg.Security,
		Rate:           cfg.Rate,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxUploadSize:  cfg.Server.MaxUploadSize,
		Ping:           pool.Ping,
	}
	if d := strings.ToLower(cfg.Storage.Driver); d == "" || d == "filesystem" {
		opts.Files = http.FileServer(http.Dir(cfg.Storage.Dir))
	}
	server := web.NewServer(bgCtx, service, opts)

	if cfg.Pipeline.PollInterval > 0 {
		go service.StartPoller(bgCtx, cfg.Pipeline.PollInterval)
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop the poller before draining
		cancelBackground()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		status := service.Limiter().Status()
		if status.Active > 0 {
			slog.Info("waiting for job run to complete", "active", status.Active)
			if err := service.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("job run did not complete in time", "error", err)
			} else {
				slog.Info("job run completed")
			}
		}
	}()

	if err := server.Start(cfg.Server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
