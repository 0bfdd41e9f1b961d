package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goliatone/go-notify-gateway/internal/gateway"
	"github.com/goliatone/go-notify-gateway/internal/server"
	"github.com/goliatone/go-notify-gateway/pkg/adapters"
	"github.com/goliatone/go-notify-gateway/pkg/adapters/aws_ses"
	"github.com/goliatone/go-notify-gateway/pkg/adapters/aws_sns"
	"github.com/goliatone/go-notify-gateway/pkg/adapters/console"
	"github.com/goliatone/go-notify-gateway/pkg/adapters/twilio"
	"github.com/goliatone/go-notify-gateway/pkg/auth"
	"github.com/goliatone/go-notify-gateway/pkg/config"
	"github.com/goliatone/go-notify-gateway/pkg/dispatch"
	"github.com/goliatone/go-notify-gateway/pkg/domain"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/logger"
	"github.com/goliatone/go-notify-gateway/pkg/ratelimit"
	"github.com/goliatone/go-notify-gateway/pkg/retry"
	"github.com/goliatone/go-notify-gateway/pkg/secrets"
	"github.com/goliatone/go-notify-gateway/pkg/storage"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	seedService := flag.String("seed-service", "", "register a service, print its first API key, and exit")
	flag.Parse()

	log := logger.NewZerolog(os.Stderr)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Error("invalid configuration", logger.Field{Key: "error", Value: err})
		os.Exit(1)
	}

	if *seedService != "" {
		if err := seed(cfg, *seedService); err != nil {
			log.Error("seeding failed", logger.Field{Key: "error", Value: err})
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, log); err != nil {
		log.Error("gateway exited", logger.Field{Key: "error", Value: err})
		os.Exit(1)
	}
}

// seed registers a caller service and prints the one-time key secret.
func seed(cfg config.Config, name string) error {
	providers, cleanup, err := buildStorage(cfg.Storage)
	if err != nil {
		return err
	}
	defer cleanup()

	keyring, err := buildKeyring(cfg.Auth)
	if err != nil {
		return err
	}
	if keyring == nil {
		return fmt.Errorf("auth.keyring_key is required to seed services")
	}

	provisioner, err := storage.NewProvisioner(providers, keyring)
	if err != nil {
		return err
	}
	result, err := provisioner.CreateService(context.Background(), storage.ProvisionInput{Name: name})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(map[string]string{
		"service_id": result.Service.ID.String(),
		"api_key_id": result.Key.ID.String(),
		"secret":     result.Secret,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func loadConfig(path string) (config.Config, error) {
	input := map[string]any{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(raw, &input); err != nil {
			return config.Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	// The admin secret never lives in config files.
	if secret := os.Getenv("NOTIFY_ADMIN_SECRET"); secret != "" {
		authSection, _ := input["auth"].(map[string]any)
		if authSection == nil {
			authSection = map[string]any{}
		}
		authSection["admin_secret"] = secret
		input["auth"] = authSection
	}

	return config.Load(input)
}

func run(cfg config.Config, log logger.Logger) error {
	providers, cleanup, err := buildStorage(cfg.Storage)
	if err != nil {
		return err
	}
	defer cleanup()

	verifier, err := buildVerifier(cfg.Auth, providers)
	if err != nil {
		return err
	}

	limiter, err := buildLimiter(cfg.RateLimit, log)
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg.Providers, log)
	if err != nil {
		return err
	}

	dispatcher := dispatch.New(log,
		dispatch.WithMaxAttempts(cfg.Dispatch.MaxAttempts),
		dispatch.WithAttemptTimeout(cfg.Dispatch.AttemptTimeout),
		dispatch.WithBackoff(&retry.ExponentialBackoff{
			Base:   cfg.Dispatch.BackoffBase,
			Max:    cfg.Dispatch.BackoffMax,
			Jitter: true,
		}),
	)

	gw, err := gateway.NewService(gateway.Dependencies{
		Verifier:         verifier,
		Limiter:          limiter,
		Router:           registry,
		Dispatcher:       dispatcher,
		Services:         providers.Services,
		Notifications:    providers.Notifications,
		Logger:           log,
		DefaultRateLimit: cfg.RateLimit.Limit,
	})
	if err != nil {
		return err
	}

	srv := server.New(server.Config{ReadTimeout: cfg.Server.ReadTimeout}, gw, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(cfg.Server.Address)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", logger.Field{Key: "signal", Value: sig.String()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildStorage(cfg config.StorageConfig) (storage.Providers, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return storage.Providers{}, nil, fmt.Errorf("open sqlite: %w", err)
		}
		db := bun.NewDB(sqldb, sqlitedialect.New())
		return storage.NewBunProviders(db), func() { db.Close() }, nil
	default:
		return storage.NewMemoryProviders(), func() {}, nil
	}
}

func buildKeyring(cfg config.AuthConfig) (*secrets.Keyring, error) {
	if cfg.KeyringKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(cfg.KeyringKey)
	if err != nil {
		return nil, fmt.Errorf("decode keyring key: %w", err)
	}
	return secrets.NewKeyring(key)
}

func buildVerifier(cfg config.AuthConfig, providers storage.Providers) (*auth.Verifier, error) {
	var resolver auth.KeyResolver
	keyring, err := buildKeyring(cfg)
	if err != nil {
		return nil, err
	}
	if keyring != nil {
		resolver = auth.NewStoreKeyResolver(providers.APIKeys, keyring)
	}

	return auth.New([]byte(cfg.AdminSecret), resolver,
		auth.WithAdminIssuer(cfg.AdminIssuer),
		auth.WithMaxAge(cfg.TokenMaxAge),
	), nil
}

func buildLimiter(cfg config.RateLimitConfig, log logger.Logger) (ratelimit.Admitter, error) {
	limitCfg := ratelimit.Config{
		Limit:        cfg.Limit,
		Window:       cfg.Window,
		StoreTimeout: cfg.StoreTimeout,
		OnStoreError: ratelimit.FailClosed,
	}
	if cfg.OnStoreError == "open" {
		limitCfg.OnStoreError = ratelimit.FailOpen
	}

	if cfg.RedisURL == "" {
		log.Warn("no redis url configured, rate limits are per-process only")
		return ratelimit.NewLocal(limitCfg), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return ratelimit.New(client, limitCfg, ratelimit.WithLogger(log)), nil
}

func buildRegistry(cfg config.ProvidersConfig, log logger.Logger) (*adapters.Registry, error) {
	registry := adapters.NewRegistry()

	if cfg.SNS.Region != "" {
		registry.Register(aws_sns.New(log, aws_sns.WithConfig(aws_sns.Config{
			Region:    cfg.SNS.Region,
			AccessKey: cfg.SNS.AccessKey,
			SecretKey: cfg.SNS.SecretKey,
			SenderID:  cfg.SNS.SenderID,
			DryRun:    cfg.SNS.DryRun,
		})))
	}
	if cfg.SES.Region != "" {
		registry.Register(aws_ses.New(log, aws_ses.WithConfig(aws_ses.Config{
			Region: cfg.SES.Region,
			From:   cfg.SES.Source,
		})))
	}
	if cfg.Twilio.AccountSID != "" {
		registry.Register(twilio.New(log, twilio.WithConfig(twilio.Config{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			From:       cfg.Twilio.From,
		})))
	}
	if cfg.Console.Enabled {
		registry.Register(console.New(log))
	}

	if len(registry.Describe()) == 0 {
		return nil, fmt.Errorf("no delivery providers configured")
	}

	registry.SetDefault(domain.ChannelSMS, cfg.SMSDefault)
	registry.SetDefault(domain.ChannelEmail, cfg.EmailDefault)
	return registry, nil
}
