// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"reparaturbonus/internal/config"
	"reparaturbonus/internal/domain/ports/adapter"
	"reparaturbonus/internal/domain/ports/repository"
	tele "reparaturbonus/internal/infra/adapters/telegram"
	"reparaturbonus/internal/infra/api"
	"reparaturbonus/internal/infra/auth"
	"reparaturbonus/internal/infra/blob"
	pg "reparaturbonus/internal/infra/db/postgres"
	"reparaturbonus/internal/infra/db/sqlite"
	"reparaturbonus/internal/infra/logging"
	"reparaturbonus/internal/infra/metrics"
	red "reparaturbonus/internal/infra/redis"
	"reparaturbonus/internal/infra/sched"
	"reparaturbonus/internal/infra/security"
	"reparaturbonus/internal/usecase"
)

var version = "dev"

const (
	poolStatsInterval = 30 * time.Second
	statsInterval     = time.Minute
)

type stores struct {
	codes  repository.BonusCodeRepository
	shops  repository.ShopRepository
	orders repository.OrderRepository
	users  repository.UserRepository
	tx     repository.TransactionManager

	report func(ctx context.Context)
	close  func()
}

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, cfg.Database.Driver)

	// ---- Store ----
	st, err := openStores(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer st.close()

	// ---- Redis (optional) ----
	var limiter api.Limiter
	shops := st.shops
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClient.Close()
		shops = red.NewShopRepoCacheDecorator(st.shops, redisClient, cfg.Redis.TTL, logger)
		limiter = red.NewRateLimiter(redisClient, cfg.RateLimit.PerMinute, time.Minute)
		logger.Info().Msg("redis enabled for shop cache and rate limits")
	}
	var localLimiter *api.LocalLimiter
	if limiter == nil {
		localLimiter = api.NewLocalLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
		limiter = localLimiter
	}

	// ---- Blob store ----
	local, err := blob.NewLocalStore(cfg.Blob.Dir)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	var proofs adapter.BlobStore = local
	if cfg.Blob.EncryptionKey != "" {
		c, err := security.NewCipher(cfg.Blob.EncryptionKey)
		if err != nil {
			return fmt.Errorf("blob cipher: %w", err)
		}
		proofs = blob.NewSealedStore(local, c, cfg.Server.MaxUploadBytes)
		logger.Info().Msg("residence proofs are encrypted at rest")
	} else if !cfg.Runtime.Dev {
		logger.Warn().Msg("blob.encryption_key not set; residence proofs are stored in plaintext")
	}

	// ---- Notifier ----
	var notifier adapter.RedemptionNotifier = tele.NewNoopNotifier(logger)
	if tg := cfg.Notify.Telegram; tg.Token != "" && tg.ChatID != 0 {
		n, err := tele.NewRedemptionNotifier(tg.Token, tg.ChatID)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		notifier = n
		logger.Info().Int64("chat_id", tg.ChatID).Msg("telegram redemption notifications enabled")
	}

	// ---- Use cases ----
	bonusUC := usecase.NewBonusCodeUseCase(
		st.codes, shops, st.orders, st.users, st.tx, proofs, notifier, logger,
		usecase.WithOwnerAssertion(cfg.Bonus.OwnerAssertionAllowed()),
		usecase.WithDevMode(cfg.Runtime.Dev),
	)
	statsUC := usecase.NewStatsUseCase(st.codes, logger)

	// ---- HTTP ----
	verifier := auth.NewVerifier(cfg.Auth.HMACSecret, cfg.Auth.Issuer)
	proxies, err := cfg.Server.TrustedProxyPrefixes()
	if err != nil {
		return err
	}
	srv := api.NewServer(bonusUC, statsUC, verifier, limiter, api.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		TrustedProxies: proxies,
	}, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", httpServer.Addr).Str("store", cfg.Database.Driver).Msg("http listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		st.report(gctx)
		return nil
	})
	g.Go(func() error {
		if err := sched.NewStatsReporter(statsInterval, st.codes, logger).Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if localLimiter != nil {
		g.Go(func() error {
			localLimiter.RunSweeper(gctx, 10*time.Minute)
			return nil
		})
	}
	return g.Wait()
}

func openStores(ctx context.Context, cfg config.DatabaseConfig, logger *zerolog.Logger) (*stores, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return &stores{
			codes:  sqlite.NewBonusCodeRepo(db),
			shops:  sqlite.NewShopRepo(db),
			orders: sqlite.NewOrderRepo(db),
			users:  sqlite.NewUserRepo(db),
			tx:     sqlite.NewTxManager(db),
			report: func(ctx context.Context) { sqlite.ReportPoolStats(ctx, db, poolStatsInterval, logger) },
			close: func() {
				if sqlDB, err := db.DB(); err == nil {
					_ = sqlDB.Close()
				}
			},
		}, nil
	default:
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pg.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		return &stores{
			codes:  pg.NewBonusCodeRepo(pool),
			shops:  pg.NewShopRepo(pool),
			orders: pg.NewOrderRepo(pool),
			users:  pg.NewUserRepo(pool),
			tx:     pg.NewTxManager(pool),
			report: func(ctx context.Context) { pg.ReportPoolStats(ctx, pool, poolStatsInterval, logger) },
			close:  pool.Close,
		}, nil
	}
}
