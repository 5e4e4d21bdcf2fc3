package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"copytrader/internal/api"
	"copytrader/internal/bot"
	"copytrader/internal/cache"
	"copytrader/internal/config"
	"copytrader/internal/deriv"
	"copytrader/internal/events"
	"copytrader/internal/repository"
	"copytrader/internal/service"
	"copytrader/internal/websocket"
	"copytrader/pkg/crypto"
	"copytrader/pkg/ratelimit"
	"copytrader/pkg/retry"
	"copytrader/pkg/utils"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		Development: cfg.Logging.Development,
	})
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped with error", utils.Err(err))
	}
	logger.Info("server exited")
}

func run(cfg *config.Config, logger *utils.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Инициализация базы данных
	db, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	// Инициализация репозиториев
	masterRepo := repository.NewMasterRepository(db)
	copierRepo := repository.NewCopierRepository(db)
	tradeRepo := repository.NewCopiedTradeRepository(db)
	settlementRepo := repository.NewSettlementRepository(db)
	earningRepo := repository.NewEarningRepository(db)

	cipher, err := crypto.NewTokenCipher([]byte(cfg.Security.EncryptionKey))
	if err != nil {
		return fmt.Errorf("init token cipher: %w", err)
	}

	// Клиент площадки
	limiter := ratelimit.NewRateLimiter(cfg.Engine.SessionRate, cfg.Engine.SessionBurst)
	dialer := deriv.NewDialer(cfg.Deriv.Endpoint(), limiter)
	validator := deriv.NewValidator(dialer, cfg.Deriv.ValidationTimeout)
	placer := deriv.NewPlacer(dialer, cfg.Deriv.OrderTimeout)

	// Получатели событий: live-поток и, если настроена, Kafka
	hub := websocket.NewHub(cfg.Server.AllowedOrigins, logger)
	go hub.Run()

	var publisher events.Publisher = events.NoopPublisher{}
	var kafka *events.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafka = events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, logger)
		publisher = kafka
		logger.Info("kafka publisher enabled", utils.String("topic", cfg.Kafka.Topic))
	}
	sink := events.Multi{hub, publisher}

	// Движок репликации
	engine := bot.NewEngine(bot.EngineConfig{
		MaxConcurrentSessions: int64(cfg.Engine.MaxConcurrentSessions),
		DefaultCurrency:       cfg.Deriv.DefaultCurrency,
		DedupTTL:              cfg.Engine.DedupTTL,
	}, copierRepo, tradeRepo, placer, cipher, logger)
	engine.SetEventSink(sink)

	if cfg.Redis.Addr != "" {
		deduper := cache.NewRedisDeduper(cache.NewClient(cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}), cfg.Engine.DedupTTL)
		defer deduper.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := deduper.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		engine.SetDeduper(deduper)
		logger.Info("redis deduplication enabled", utils.String("addr", cfg.Redis.Addr))
	}

	// Реестр подписок на потоки мастеров
	streamCfg := deriv.DefaultStreamConfig()
	streamCfg.Retry.InitialDelay = cfg.Engine.FeedInitialDelay
	streamCfg.Retry.MaxDelay = cfg.Engine.FeedMaxDelay
	streamCfg.Retry.MaxRetries = cfg.Engine.FeedMaxRetries
	streamCfg.PingInterval = cfg.Engine.FeedPingInterval

	registry := bot.NewRegistry(bot.RegistryConfig{
		SyncInterval:        cfg.Engine.SyncInterval,
		FailedRetryDelay:    cfg.Engine.FeedMaxDelay,
		OrphanSweepInterval: cfg.Engine.OrphanSweepInterval,
		OrphanMasterTTL:     cfg.Engine.OrphanMasterTTL,
	}, masterRepo, cipher, engine, func(masterID, token string) bot.Feed {
		return deriv.NewStream(masterID, token, dialer, streamCfg, logger)
	}, logger)
	registry.SetEventSink(sink)

	// Сервисы
	accountService := service.NewAccountService(masterRepo, copierRepo, validator, cipher, logger)
	settlementService := service.NewSettlementService(settlementRepo, sink, logger)
	tradeService := service.NewTradeService(tradeRepo, earningRepo, accountService, registry)

	// Настройка HTTP роутера
	router := api.SetupRoutes(&api.Dependencies{
		AccountService:    accountService,
		TradeService:      tradeService,
		SettlementService: settlementService,
		DB:                db,
		Stream:            hub.ServeWS,
		APIKeyHash:        cfg.Security.APIKeyHash,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		Logger:            logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", utils.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := registry.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if kafka != nil {
		g.Go(func() error {
			kafka.Run(gctx)
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		hub.Stop()
		if kafka != nil {
			err = errors.Join(err, kafka.Close())
		}
		return err
	})

	return g.Wait()
}

// initDatabase создает подключение к базе данных, ожидая её готовности
func initDatabase(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	retryCfg := retry.DatabaseConfig()
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("database not ready",
			utils.Int("attempt", attempt),
			utils.Duration("retry_in", delay),
			utils.Err(err),
		)
	}

	err = retry.Do(ctx, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}, retryCfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("connected to database", utils.String("dsn", cfg.Database.DSNWithoutPassword()))
	return db, nil
}
