package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	telebot "gopkg.in/telebot.v3"

	"github.com/botirjon13/oyin-backent/internal/catalog"
	"github.com/botirjon13/oyin-backent/internal/credential"
	"github.com/botirjon13/oyin-backent/internal/database"
	apperrors "github.com/botirjon13/oyin-backent/internal/errors"
	"github.com/botirjon13/oyin-backent/internal/exchange"
	"github.com/botirjon13/oyin-backent/internal/health"
	"github.com/botirjon13/oyin-backent/internal/httpapi"
	"github.com/botirjon13/oyin-backent/internal/i18n"
	"github.com/botirjon13/oyin-backent/internal/idempotency"
	"github.com/botirjon13/oyin-backent/internal/leaderboard"
	"github.com/botirjon13/oyin-backent/internal/ledger"
	"github.com/botirjon13/oyin-backent/internal/lifecycle"
	"github.com/botirjon13/oyin-backent/internal/ratelimit"
	"github.com/botirjon13/oyin-backent/internal/redemption"
	"github.com/botirjon13/oyin-backent/internal/repository"
	"github.com/botirjon13/oyin-backent/pkg/config"
	"github.com/botirjon13/oyin-backent/pkg/graceful"
	"github.com/botirjon13/oyin-backent/pkg/logger"
	appredis "github.com/botirjon13/oyin-backent/pkg/redis"

	_ "github.com/lib/pq"
)

const (
	defaultTxTimeout       = 5 * time.Second
	defaultShutdownTimeout = 15 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		return 1
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: firstNonEmpty(cfg.Sentry.Environment, cfg.AppEnv),
			SampleRate:  cfg.Sentry.SampleRate,
		}); err != nil {
			slog.Error("init sentry", "error", err)
			return 1
		}
		defer sentry.Flush(2 * time.Second)
	}

	log := logger.New(cfg)
	slog.SetDefault(log)

	log.Info("starting oyin backend",
		"env", cfg.AppEnv,
		"port", cfg.Server.Port,
		"log_level", cfg.Logger.Level,
	)

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Error("open database", "error", err)
		return 1
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Error("close database", "error", cerr)
		}
	}()

	if cfg.Database.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxConns)
	}

	if err := db.PingContext(ctx); err != nil {
		log.Error("ping database", "error", err)
		return 1
	}

	migrator := database.NewMigrator(db, log)
	if err := migrator.ApplyDir(ctx, "migrations"); err != nil {
		log.Error("apply migrations", "error", err)
		return 1
	}

	var redisClient *appredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = appredis.New(ctx, appredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Error("connect redis", "error", err)
			return 1
		}
	}

	translations, err := i18n.LoadFromDir(firstNonEmpty(cfg.I18n.Dir, "locales"), cfg.I18n.DefaultLang)
	if err != nil {
		log.Error("load translations", "error", err)
		return 1
	}

	txTimeout := cfg.Database.TxTimeout
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}

	txRunner := repository.NewTxRunner(db, txTimeout, log)
	accounts := repository.NewAccountRepository(log)
	offers := repository.NewOfferRepository(log)
	vouchers := repository.NewVoucherRepository(log)

	ledgerSvc := ledger.NewService(txRunner, db, accounts, log)
	catalogSvc := catalog.NewService(db, offers, log)
	exchangeEngine := exchange.NewEngine(txRunner, accounts, offers, vouchers, credential.NewCodec(), log)
	redemptionSvc := redemption.NewService(txRunner, db, vouchers, log)

	var avatars leaderboard.AvatarResolver
	if cfg.Telegram.Enabled {
		bot, botErr := telebot.NewBot(telebot.Settings{Token: cfg.Telegram.Token})
		if botErr != nil {
			// avatar enrichment is optional; missing it is not fatal
			log.Warn("telegram bot unavailable, avatars disabled", "error", botErr)
		} else {
			avatars = leaderboard.NewTelegramAvatarResolver(bot, log)
		}
	}

	var lbCache *leaderboard.Cache
	var limiter ratelimit.Limiter
	var idem idempotency.Manager
	if redisClient != nil {
		lbCache = leaderboard.NewCache(appredis.NewMetricsClient(redisClient))
		limiter = ratelimit.NewRedisLimiter(redisClient.Client, log)
		idem = idempotency.NewManager(idempotency.NewRedisStore(redisClient.Client, log), log)
	} else {
		mem := ratelimit.NewMemoryLimiter(log)
		limiter = mem
		if ml, ok := mem.(*ratelimit.MemoryLimiter); ok {
			sweep := cfg.RateLimit.Window * 2
			if sweep <= 0 {
				sweep = time.Minute
			}
			go func() {
				ticker := time.NewTicker(sweep)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						ml.Cleanup(sweep)
					}
				}
			}()
		}
	}

	leaderboardSvc := leaderboard.NewService(
		db, accounts, lbCache, avatars,
		cfg.Leaderboard.Limit, cfg.Leaderboard.CacheTTL, log,
	)

	checker := health.NewChecker(log)
	checker.AddCheck("postgres", health.NewDBChecker(db))
	if redisClient != nil {
		checker.AddCheck("redis", health.NewRedisChecker(redisClient.Client))
	}

	server := httpapi.NewServer(httpapi.Deps{
		Config:       cfg,
		Log:          log,
		Errors:       apperrors.NewHandler(log, cfg.Sentry.Enabled),
		Translations: translations,
		Ledger:       ledgerSvc,
		Exchange:     exchangeEngine,
		Redemption:   redemptionSvc,
		Catalog:      catalogSvc,
		Leaderboard:  leaderboardSvc,
		Idempotency:  idem,
		Limiter:      limiter,
		Health:       checker,
		Probes:       lifecycle.NewProbes(checker, log),
	})

	config.Watch(v, cfg.AppEnv, log, server.UpdateConfig)

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdown := lifecycle.NewShutdown(log)
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error {
			return redisClient.Close()
		})
	}

	srv := graceful.NewServer(log, httpServer, shutdownTimeout)
	serveErr := srv.ListenAndServe(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := shutdown.Execute(shutdownCtx); err != nil {
		log.Error("shutdown hooks", "error", err)
	}

	if serveErr != nil {
		log.Error("http server", "error", serveErr)
		return 1
	}

	log.Info("oyin backend stopped")
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
