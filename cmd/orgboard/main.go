package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/orgboard/orgboard/internal/app"
	"github.com/orgboard/orgboard/internal/config"
	"github.com/orgboard/orgboard/internal/githubapi"
	"github.com/orgboard/orgboard/internal/metrics"
	"github.com/orgboard/orgboard/internal/session"
	"github.com/orgboard/orgboard/internal/store"
	"github.com/orgboard/orgboard/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "orgboard: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "config/local.yaml", "path to YAML config file")
	flag.Parse()

	// Local development keeps secrets in .env; absence is not an error.
	_ = godotenv.Load()

	configFile, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = configFile.Close()
	}()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel(cfg.Server.LogLevel))
	logger, err := loggerConfig.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	telemetryRuntime, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.Telemetry.OTELEnabled,
		ServiceName:      "orgboard",
		TraceMode:        cfg.Telemetry.OTELTraceMode,
		TraceSampleRatio: cfg.Telemetry.OTELTraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetryRuntime.Shutdown(shutdownCtx)
	}()

	dataStore, err := store.Open(cfg.Database.DSN, cfg.Database.AutoMigrate)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	sessions := session.NewRedisStore(redisClient, session.RedisConfig{
		Secret: cfg.Session.Secret,
		TTL:    cfg.Session.TTL,
	})
	defer func() {
		_ = sessions.Close()
	}()

	identity, err := githubapi.NewIdentity(githubapi.OAuthConfig{
		ClientID:     cfg.GitHub.ClientID,
		ClientSecret: cfg.GitHub.ClientSecret,
		RedirectURL:  strings.TrimRight(cfg.Server.BaseURL, "/") + "/auth/callback",
		Scopes:       cfg.GitHub.Scopes,
		APIBaseURL:   cfg.GitHub.APIBaseURL,
		Timeout:      cfg.GitHub.RequestTimeout,
	})
	if err != nil {
		return fmt.Errorf("build identity adapter: %w", err)
	}

	requestClient := githubapi.NewClient(
		&http.Client{Timeout: cfg.GitHub.RequestTimeout},
		githubapi.RetryConfig{
			MaxAttempts:    cfg.GitHub.Retry.MaxAttempts,
			InitialBackoff: cfg.GitHub.Retry.InitialBackoff,
			MaxBackoff:     cfg.GitHub.Retry.MaxBackoff,
		},
		githubapi.ThrottlePolicy{
			MinRemainingThreshold: cfg.GitHub.RateLimit.MinRemainingThreshold,
			MinResetBuffer:        cfg.GitHub.RateLimit.MinResetBuffer,
			SecondaryLimitBackoff: cfg.GitHub.RateLimit.SecondaryLimitBackoff,
		},
	)

	runtime := app.NewRuntime(cfg, app.Dependencies{
		Store:    dataStore,
		Sessions: sessions,
		Identity: identity,
		GatewayFor: func(accessToken string) (app.Gateway, error) {
			return githubapi.NewGateway(cfg.GitHub.APIBaseURL, accessToken, requestClient)
		},
		Metrics: metrics.New(),
		SessionsPing: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}, logger)

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           runtime.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	rootCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.ListenAddr))
		if serveErr := server.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			serverErrCh <- serveErr
		}
		close(serverErrCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-serverErrCh:
		if serveErr != nil {
			return fmt.Errorf("http server failed: %w", serveErr)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
