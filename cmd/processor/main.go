package main

import (
	"context"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"bonfire/internal/adapters/fetcher"
	"bonfire/internal/adapters/repo"
	"bonfire/internal/adapters/telegram"
	"bonfire/internal/domain"
	"bonfire/internal/infra/cache"
	"bonfire/internal/infra/config"
	"bonfire/internal/infra/db"
	httpinfra "bonfire/internal/infra/http"
	applog "bonfire/internal/infra/log"
	"bonfire/internal/infra/metrics"
	"bonfire/internal/usecase/content"
	"bonfire/internal/usecase/ingest"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(cfg.Universes) == 0 {
		logger.Fatal().Msg("processor: не указаны вселенные (UNIVERSES)")
	}

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("processor: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	var urlCache domain.URLCache = repoAdapter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		urlCache = cache.NewRedis(rdb)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("processor: кэш ссылок в Redis")
	}

	var notifier domain.LagNotifier
	if cfg.Telegram.Token != "" && cfg.Telegram.AlertChatID != 0 {
		botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			logger.Fatal().Err(err).Msg("processor: не удалось создать бота")
		}
		notifier = telegram.NewLagNotifier(botAPI, cfg.Telegram.AlertChatID, cfg.Telegram.AlertInterval)
	} else {
		logger.Info().Msg("processor: алерты об отставании отключены")
	}

	docFetcher := fetcher.New(fetcher.Options{
		Timeout:   cfg.Fetch.Timeout,
		UserAgent: cfg.Fetch.UserAgent,
		MaxBytes:  cfg.Fetch.MaxBytes,
	})
	expander := fetcher.NewRedirectExpander(cfg.Fetch.HeadTimeout, cfg.Fetch.UserAgent)
	resolver := content.NewResolver(docFetcher, expander, applog.Component(logger, "content"))

	pipeline := ingest.NewPipeline(repoAdapter, urlCache, resolver, notifier, applog.Component(logger, "ingest"), ingest.Options{
		PollInterval:  cfg.Processor.PollInterval,
		RetryDelay:    cfg.Processor.RetryDelay,
		LagThreshold:  cfg.Processor.LagThreshold,
		RecentHistory: cfg.Processor.RecentHistory,
	})

	server := httpinfra.NewServer(applog.Component(logger, "http"), repoAdapter, resolver)

	g, gctx := errgroup.WithContext(ctx)
	for _, universe := range cfg.Universes {
		universe := universe // per-iteration copy; go.mod targets go 1.21 loop semantics
		g.Go(func() error {
			return pipeline.Run(gctx, universe)
		})
	}
	g.Go(func() error {
		return server.Start(":" + strconv.Itoa(cfg.Port))
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	logger.Info().Strs("universes", cfg.Universes).Msg("processor: старт")
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("processor: остановлен с ошибкой")
	}
	logger.Info().Msg("processor: остановлен")
}
