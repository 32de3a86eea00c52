package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kazichain-ussd/pkg/account"
	"kazichain-ussd/pkg/account/sqlstore"
	"kazichain-ussd/pkg/api"
	"kazichain-ussd/pkg/cache"
	"kazichain-ussd/pkg/cache/memory"
	"kazichain-ussd/pkg/cache/redis"
	"kazichain-ussd/pkg/config"
	"kazichain-ussd/pkg/logging"
	promMetrics "kazichain-ussd/pkg/metrics/prometheus"
	"kazichain-ussd/pkg/notify"
	"kazichain-ussd/pkg/payment"
	"kazichain-ussd/pkg/resilience"
	"kazichain-ussd/pkg/session"
	"kazichain-ussd/pkg/ussd"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Log.Logging())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	logger.Info("starting USSD server",
		zap.String("store", cfg.StoreDriver),
		zap.String("sessions", cfg.SessionBackend),
		zap.String("service_code", cfg.ServiceCode),
	)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := promMetrics.NewCollector("kazichain_ussd")
	if err := collector.Register(registry); err != nil {
		logger.Fatal("Failed to register metrics", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	accounts, err := openAccounts(ctx, cfg)
	if err != nil {
		cancel()
		logger.Fatal("Failed to open account store", zap.Error(err))
	}
	defer accounts.Close()

	if cfg.SeedDemo {
		if err := account.SeedDemo(ctx, accounts); err != nil {
			cancel()
			logger.Fatal("Failed to seed demo account", zap.Error(err))
		}
		logger.Info("demo account ready", zap.String("phone", account.DemoAccount.PhoneNumber))
	}
	cancel()

	// Sessions
	layer, err := openSessionLayer(cfg)
	if err != nil {
		logger.Fatal("Failed to open session backend", zap.Error(err))
	}
	sessionConfig := resilience.DefaultConfig().WithTimeout(cfg.SessionOpTimeout)
	sessionLayer := resilience.NewResilientLayer(layer, sessionConfig, collector)
	sessions := session.NewStore(sessionLayer, cfg.SessionTTL)
	defer sessions.Close()
	if cfg.SessionBackend == config.SessionRedis {
		locker, err := redis.NewLocker(redisConfig(cfg))
		if err != nil {
			logger.Fatal("Failed to create session locker", zap.Error(err))
		}
		defer locker.Close()
		sessions.WithLocker(locker)
	}

	// Notifications
	breakers := []api.Breaker{sessionLayer.Guard()}
	var sender notify.Sender
	if cfg.SMS.Enabled() {
		at := notify.NewAfricasTalking(notify.AfricasTalkingConfig{
			Username: cfg.SMS.Username,
			APIKey:   cfg.SMS.APIKey,
			SenderID: cfg.SMS.SenderID,
			Endpoint: cfg.SMS.Endpoint,
			Timeout:  cfg.SMS.Timeout,
		}, collector)
		breakers = append(breakers, at.Guard())
		sender = at
		logger.Info("SMS via Africa's Talking", zap.String("username", cfg.SMS.Username))
	} else {
		sender = notify.NewLogSender()
		logger.Warn("SMS credentials missing, notifications will only be logged")
	}
	dispatcher := notify.NewDispatcher(sender, notify.DispatcherConfig{
		QueueSize:   cfg.SMS.QueueSize,
		Workers:     cfg.SMS.Workers,
		MaxAttempts: cfg.SMS.MaxAttempts,
		RetryDelay:  cfg.SMS.RetryDelay,
	}, collector)

	// Payments and menus
	payments := payment.NewLedgerService(accounts, cfg.PaymentTimeout, collector)
	breakers = append(breakers, payments.Guard())

	serverConfig := api.DefaultServerConfig()
	engine := ussd.New(accounts, sessions, payments, dispatcher, ussd.Config{
		ServiceCode: cfg.ServiceCode,
		WebAppLink:  cfg.WebAppLink,
		SenderID:    cfg.SMS.SenderID,
		Timeout:     serverConfig.RequestTimeout,
		Metrics:     collector,
	})

	serverConfig.Address = ":" + cfg.Port
	server := api.NewServer(engine, serverConfig, api.Options{
		Sessions:       sessions,
		Notifier:       dispatcher,
		Breakers:       breakers,
		Metrics:        collector,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	})
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
	logger.Info("endpoints ready",
		zap.Strings("routes", []string{"POST /ussd", "GET /health", "GET /status", "GET /metrics"}),
	)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("notifications abandoned at shutdown", zap.Error(err), zap.Int("pending", dispatcher.Stats().QueueDepth))
	}
	logger.Info("server stopped")
}

func openAccounts(ctx context.Context, cfg config.Config) (account.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return account.NewMemoryStore(), nil
	case config.DriverSQLite:
		return sqlstore.OpenSQLite(ctx, cfg.SQLitePath)
	case config.DriverPostgres:
		return sqlstore.OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func redisConfig(cfg config.Config) redis.Config {
	rc := redis.DefaultConfig()
	rc.Addr = cfg.RedisAddr
	rc.Password = cfg.RedisPassword
	rc.KeyPrefix = cfg.RedisKeyPrefix
	rc.DefaultTTL = cfg.SessionTTL
	return rc
}

func openSessionLayer(cfg config.Config) (cache.Layer, error) {
	switch cfg.SessionBackend {
	case config.SessionRedis:
		return redis.New(redisConfig(cfg))
	default:
		return memory.New(memory.Config{
			LayerConfig: cache.LayerConfig{
				Name:       "memory",
				DefaultTTL: cfg.SessionTTL,
			},
			MaxSize:         cfg.SessionMaxSize,
			CleanupInterval: time.Minute,
			Retain:          session.Retained,
		}), nil
	}
}
