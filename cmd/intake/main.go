package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"bonfire/internal/adapters/repo"
	"bonfire/internal/domain"
	"bonfire/internal/infra/config"
	"bonfire/internal/infra/db"
	applog "bonfire/internal/infra/log"
	"bonfire/internal/infra/metrics"
	"bonfire/internal/infra/queue"
	"bonfire/internal/usecase/intake"
)

func main() {
	enqueuePath := flag.String("enqueue", "", "JSON твита, который нужно положить во входную очередь и выйти")
	enqueueUniverse := flag.String("universe", "", "вселенная для -enqueue")
	flag.Parse()

	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("intake: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	var intakeQueue domain.IntakeQueue
	switch {
	case cfg.RabbitURL != "":
		rabbit, err := queue.NewRabbitIntakeQueue(cfg.RabbitURL, cfg.Queues.Intake)
		if err != nil {
			logger.Fatal().Err(err).Msg("intake: не удалось инициализировать очередь RabbitMQ")
		}
		defer rabbit.Close()
		intakeQueue = rabbit
	case cfg.RedisAddr != "":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		intakeQueue = queue.NewRedisIntakeQueue(rdb, cfg.Queues.Intake)
	default:
		logger.Fatal().Msg("intake: не указан адрес очереди (RABBITMQ_URL или REDIS_ADDR)")
	}

	if *enqueuePath != "" {
		payload, err := os.ReadFile(*enqueuePath)
		if err != nil {
			logger.Fatal().Err(err).Str("file", *enqueuePath).Msg("intake: не удалось прочитать твит")
		}
		if !json.Valid(payload) {
			logger.Fatal().Str("file", *enqueuePath).Msg("intake: файл не содержит JSON")
		}
		msg := domain.RawTweetMessage{Universe: *enqueueUniverse, Payload: payload}
		if err := intakeQueue.Enqueue(ctx, msg); err != nil {
			logger.Fatal().Err(err).Msg("intake: не удалось поставить твит в очередь")
		}
		logger.Info().Str("universe", msg.Universe).Msg("intake: твит поставлен в очередь")
		return
	}

	fallback := "default"
	if len(cfg.Universes) > 0 {
		fallback = cfg.Universes[0]
	}
	worker := intake.NewWorker(intakeQueue, repoAdapter, repoAdapter, applog.Component(logger, "intake"), fallback)

	logger.Info().Str("queue", cfg.Queues.Intake).Msg("intake: запуск обработки очереди")
	worker.Run(ctx)
	logger.Info().Msg("intake: остановлен")
}
