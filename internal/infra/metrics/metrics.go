package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Исходы обработки одной ссылки.
const (
	URLOutcomeCache     = "cache"
	URLOutcomeExtracted = "extracted"
	URLOutcomeFailed    = "failed"
)

var (
	TweetsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tweets_processed_total",
		Help: "Количество обработанных твитов",
	}, []string{"universe", "status"})

	URLsResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "urls_resolved_total",
		Help: "Ссылки из твитов по исходу обработки",
	}, []string{"universe", "outcome"})

	ProcessorLag = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "processor_lag_seconds",
		Help: "Отставание обработчика от сборщика",
	}, []string{"universe"})

	StoreReconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_reconnects_total",
		Help: "Перезапуски цикла опроса после потери связи с хранилищем",
	}, []string{"universe"})

	ExtractSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "content_extract_seconds",
		Help:    "Время извлечения контента по ссылке",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
	})

	IntakeMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_messages_total",
		Help: "Сообщения входной очереди по статусу",
	}, []string{"status"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		TweetsProcessed,
		URLsResolved,
		ProcessorLag,
		StoreReconnects,
		ExtractSeconds,
		IntakeMessages,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveURL учитывает исход обработки ссылки.
func ObserveURL(universe, outcome string) {
	URLsResolved.WithLabelValues(universe, outcome).Inc()
}

// ObserveTweet учитывает обработанный твит.
func ObserveTweet(universe, status string) {
	TweetsProcessed.WithLabelValues(universe, status).Inc()
}

// ObserveLag фиксирует текущее отставание по вселенной.
func ObserveLag(universe string, lag time.Duration) {
	ProcessorLag.WithLabelValues(universe).Set(lag.Seconds())
}

// IncReconnect увеличивает счётчик перезапусков цикла опроса.
func IncReconnect(universe string) {
	StoreReconnects.WithLabelValues(universe).Inc()
}
