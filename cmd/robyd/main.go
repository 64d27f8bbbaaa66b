package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/xela07ax/roby-guard/internal/api"
	"github.com/xela07ax/roby-guard/internal/audit"
	"github.com/xela07ax/roby-guard/internal/engine"
	"github.com/xela07ax/roby-guard/internal/infra"
	"github.com/xela07ax/roby-guard/internal/infra/auth"
	"github.com/xela07ax/roby-guard/internal/ledger"
	"github.com/xela07ax/roby-guard/internal/processor"
	"github.com/xela07ax/roby-guard/internal/repository/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("robyd stopped with error", zap.Error(err))
	}
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	// 2. Хранилище записей и журнал
	var (
		store        ledger.Store
		journalStore audit.Storage
		journalRead  api.JournalReader
		retryable    func(error) bool
	)
	if cfg.Database.URL != "" {
		db, err := postgres.Open(cfg.Database.URL, postgres.PoolConfig{
			MaxOpenConns:    int(cfg.Database.MaxConns),
			MaxIdleConns:    int(cfg.Database.MinConns),
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return err
		}
		defer db.Close()

		if err := pingDB(appCtx, db); err != nil {
			return err
		}
		if cfg.Database.Migrate {
			if err := postgres.Migrate(appCtx, db); err != nil {
				return err
			}
		}

		store = postgres.NewAccountRepo(db)
		jr := postgres.NewJournalRepo(db)
		journalStore, journalRead = jr, jr
		retryable = postgres.IsRetryable
		logger.Info("using postgres store")
	} else {
		store = ledger.NewMemoryStore()
		journalStore = audit.NewLogStorage(logger)
		logger.Warn("database.url is empty, using in-memory store")
	}

	journal := audit.NewJournal(journalStore, audit.Options{
		BufferSize:    cfg.Engine.AuditBufferSize,
		BatchSize:     cfg.Engine.AuditBatchSize,
		FlushInterval: cfg.Engine.AuditFlushInterval,
	}, logger)
	journal.Start()
	defer journal.Stop()
	metrics.RegisterBacklog(journal.Pending)

	// 3. Redis: общий реестр аварийных остановок и защита от повторов
	var (
		rdb    *redis.Client
		replay engine.ReplayGuard = engine.NewMemoryReplayGuard()
	)
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(appCtx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		replay = engine.NewRedisReplayGuard(rdb)
	}

	stops := engine.NewStopRegistry(rdb, store, metrics, logger)
	if err := stops.Init(appCtx); err != nil {
		return fmt.Errorf("estop init: %w", err)
	}
	go stops.StartListener(appCtx)
	go stops.StartResync(appCtx, cfg.Engine.EStopResyncInterval)

	// 4. Ядро и шлюз
	guard := engine.NewCommitGuard(engine.ReliabilityConfig{
		Name:          "ledger-store",
		MaxRequests:   cfg.Engine.CBMaxRequests,
		Interval:      cfg.Engine.CBInterval,
		Timeout:       cfg.Engine.CBTimeout,
		MaxFailures:   cfg.Engine.CBMaxFailures,
		RetryAttempts: cfg.Engine.RetryAttempts,
		RetryDelay:    cfg.Engine.RetryDelay,
		CallTimeout:   cfg.Engine.CallTimeout,
	}, retryable, metrics, logger)

	gw := engine.NewGateway(engine.Deps{
		Store:     store,
		Processor: processor.New(logger, processor.WithStrictCommandLevels(cfg.Engine.StrictCommandLevels)),
		Guard:     guard,
		Stops:     stops,
		Replay:    replay,
		Journal:   journal,
		Metrics:   metrics,
	}, engine.Options{
		DepositPerByte: cfg.Engine.DepositPerByte,
		ReplayWindow:   cfg.Engine.ReplayWindow,
		MaxProofLength: cfg.Engine.MaxProofLength,
	}, logger)

	// 5. HTTP API
	apiDeps := api.Deps{Ledger: gw, Journal: journalRead}
	if rdb != nil {
		apiDeps.Stops = stops
	}
	if err := wireAuth(cfg.Auth, &apiDeps); err != nil {
		return err
	}
	if cfg.Metrics.Addr == "" {
		apiDeps.Gatherer = reg
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewServer(apiDeps, api.Options{RateLimit: cfg.Server.RateLimit, RateBurst: cfg.Server.RateBurst}, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 3)
	go func() {
		logger.Info("HTTP API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics: %w", err)
			}
		}()
	}

	// 6. gRPC шлюз
	var grpcSrv *grpc.Server
	if cfg.GRPC.Port > 0 {
		grpcSrv = grpc.NewServer(grpc.UnaryInterceptor(engine.UnaryTraceInterceptor(logger)))
		engine.RegisterLedgerServer(grpcSrv, engine.NewGRPCGatewayServer(gw))

		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		go func() {
			logger.Info("gRPC server started", zap.Int("port", cfg.GRPC.Port))
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	// 7. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-stop:
		logger.Info("robyd stopping", zap.String("signal", sig.String()))
	case runErr = <-errCh:
	}
	cancel()

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	logger.Info("robyd exited")
	return runErr
}

// wireAuth подключает проверку и выдачу токенов, если ключи заданы.
func wireAuth(cfg infra.AuthConfig, deps *api.Deps) error {
	if len(cfg.PublicKey) == 0 {
		return errors.New("auth: public key is required for the read API")
	}
	pub, err := auth.ParseRSAPublicKey(cfg.PublicKey)
	if err != nil {
		return err
	}
	deps.Validator = auth.NewBaseValidator(pub, cfg.Issuer)

	if len(cfg.PrivateKey) == 0 {
		return nil
	}
	priv, err := auth.ParseRSAPrivateKey(cfg.PrivateKey)
	if err != nil {
		return err
	}
	users := make(map[string]auth.User, len(cfg.Users))
	for name, u := range cfg.Users {
		users[name] = auth.User{PasswordHash: u.PasswordHash, Scopes: u.Scopes}
	}
	deps.Issuer = auth.NewIssuer(priv, cfg.Issuer, cfg.TokenTTL, users)
	return nil
}

func pingDB(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}
