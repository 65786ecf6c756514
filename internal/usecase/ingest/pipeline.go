package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"bonfire/internal/domain"
	"bonfire/internal/infra/metrics"
)

const (
	defaultPollInterval  = 5 * time.Second
	defaultRetryDelay    = 5 * time.Second
	defaultLagThreshold  = 300 * time.Second
	defaultRecentHistory = 5
)

// Options задаёт интервалы цикла опроса.
type Options struct {
	PollInterval  time.Duration
	RetryDelay    time.Duration
	LagThreshold  time.Duration
	RecentHistory int
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultRetryDelay
	}
	if o.LagThreshold <= 0 {
		o.LagThreshold = defaultLagThreshold
	}
	if o.RecentHistory <= 0 {
		o.RecentHistory = defaultRecentHistory
	}
	return o
}

// Pipeline обрабатывает твиты одной вселенной последовательно, по одному.
type Pipeline struct {
	store    domain.TweetStore
	cache    domain.URLCache
	resolver domain.ContentResolver
	notifier domain.LagNotifier
	log      zerolog.Logger
	opts     Options
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewPipeline создаёт обработчик. notifier может быть nil.
func NewPipeline(store domain.TweetStore, cache domain.URLCache, resolver domain.ContentResolver, notifier domain.LagNotifier, log zerolog.Logger, opts Options) *Pipeline {
	return &Pipeline{
		store:    store,
		cache:    cache,
		resolver: resolver,
		notifier: notifier,
		log:      log,
		opts:     opts.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepCtx,
	}
}

// Run подготавливает вселенную и бесконечно опрашивает очередь. При потере связи
// с хранилищем цикл перезапускается после паузы без повторной подготовки схемы.
// Возвращает управление только при отмене ctx.
func (p *Pipeline) Run(ctx context.Context, universe string) error {
	log := p.log.With().Str("universe", universe).Logger()
	log.Info().Msg("ingest: обработка вселенной")

	buildMappings := true
	for {
		if buildMappings {
			log.Info().Msg("ingest: подготовка схемы вселенной")
			if err := p.store.BuildUniverseMappings(ctx, universe); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Error().Err(err).Msg("ingest: не удалось подготовить схему, повторим")
				if err := p.sleep(ctx, p.opts.RetryDelay); err != nil {
					return err
				}
				continue
			}
			buildMappings = false
		}

		err := p.poll(ctx, universe, log)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("ingest: потеряна связь с хранилищем")
		metrics.IncReconnect(universe)
		if err := p.sleep(ctx, p.opts.RetryDelay); err != nil {
			return err
		}
		log.Info().Msg("ingest: повторное подключение")
	}
}

// poll крутит цикл опроса, пока хранилище доступно.
func (p *Pipeline) poll(ctx context.Context, universe string, log zerolog.Logger) error {
	recent := newRecentIDs(p.opts.RecentHistory)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Debug().Msg("ingest: ищем новый твит")
		raw, ok, err := p.store.NextUnprocessedTweet(ctx, universe, recent.IDs())
		if err != nil {
			if domain.IsStoreUnavailable(err) {
				return err
			}
			var malformed *domain.MalformedTweetError
			if errors.As(err, &malformed) {
				recent.Push(malformed.ID)
				if err := p.skipMalformed(ctx, universe, malformed, log); err != nil {
					return err
				}
				continue
			}
			log.Error().Err(err).Msg("ingest: ошибка чтения очереди")
			if err := p.sleep(ctx, p.opts.PollInterval); err != nil {
				return err
			}
			continue
		}
		if !ok {
			log.Debug().Msg("ingest: новых твитов нет, ждём")
			if err := p.sleep(ctx, p.opts.PollInterval); err != nil {
				return err
			}
			continue
		}

		recent.Push(raw.ID)
		p.observeLag(ctx, universe, raw, log)
		if _, err := p.ProcessTweet(ctx, universe, raw); err != nil {
			if domain.IsStoreUnavailable(err) {
				return err
			}
			metrics.ObserveTweet(universe, "error")
			log.Error().Err(err).Str("tweet", raw.ID).Msg("ingest: не удалось обработать твит")
		}
	}
}

func (p *Pipeline) skipMalformed(ctx context.Context, universe string, malformed *domain.MalformedTweetError, log zerolog.Logger) error {
	metrics.ObserveTweet(universe, "malformed")
	log.Error().Err(malformed.Err).Str("tweet", malformed.ID).Msg("ingest: некорректный твит, пропускаем")
	if err := p.store.SkipTweet(ctx, universe, malformed.ID, malformed.Err.Error()); err != nil {
		if domain.IsStoreUnavailable(err) {
			return err
		}
		log.Error().Err(err).Str("tweet", malformed.ID).Msg("ingest: не удалось пометить твит пропущенным")
	}
	return nil
}

func (p *Pipeline) observeLag(ctx context.Context, universe string, raw domain.RawTweet, log zerolog.Logger) {
	lag := p.now().Sub(raw.CreatedAt)
	metrics.ObserveLag(universe, lag)
	seconds := int64(lag / time.Second)
	log.Debug().Str("tweet", raw.ID).Int64("seconds_ago", seconds).Msg("ingest: новый твит, обрабатываем")
	if lag <= p.opts.LagThreshold {
		return
	}
	log.Warn().Int64("seconds_behind", seconds).Msg("ingest: обработчик отстаёт от сборщика")
	if p.notifier == nil {
		return
	}
	if err := p.notifier.NotifyLag(ctx, universe, lag); err != nil {
		log.Error().Err(err).Msg("ingest: не удалось отправить уведомление об отставании")
	}
}

// ProcessTweet разрешает ссылки твита и сохраняет обогащённую запись. ContentURL получает
// канонический адрес последней успешно разрешённой ссылки; ошибки отдельных ссылок
// не прерывают обработку твита.
func (p *Pipeline) ProcessTweet(ctx context.Context, universe string, raw domain.RawTweet) (domain.Tweet, error) {
	log := p.log.With().Str("universe", universe).Str("tweet", raw.ID).Logger()
	tweet := domain.NewTweet(raw)
	for _, rawURL := range raw.URLs {
		canonical, err := p.resolveURL(ctx, universe, rawURL, log)
		if err != nil {
			if domain.IsStoreUnavailable(err) {
				return domain.Tweet{}, err
			}
			continue
		}
		tweet.ContentURL = canonical
		tweet.ContentURLs = append(tweet.ContentURLs, canonical)
	}
	tweet.ProcessedAt = p.now()
	if err := p.store.SaveTweet(ctx, universe, tweet); err != nil {
		return domain.Tweet{}, fmt.Errorf("сохранение твита: %w", err)
	}
	metrics.ObserveTweet(universe, "ok")
	return tweet, nil
}

// resolveURL возвращает канонический адрес из кэша или извлекает контент и сохраняет его.
func (p *Pipeline) resolveURL(ctx context.Context, universe, rawURL string, log zerolog.Logger) (string, error) {
	urlLog := log.With().Str("url", rawURL).Logger()

	cached, ok, err := p.cache.LookupURL(ctx, universe, rawURL)
	switch {
	case err != nil && domain.IsStoreUnavailable(err):
		return "", err
	case err != nil:
		urlLog.Warn().Err(err).Msg("ingest: ошибка чтения кэша ссылок, извлекаем заново")
	case ok:
		metrics.ObserveURL(universe, metrics.URLOutcomeCache)
		urlLog.Debug().Str("canonical", cached).Msg("ingest: ссылка найдена в кэше")
		return cached, nil
	}

	content, err := p.resolver.Resolve(ctx, rawURL, nil)
	if err != nil {
		metrics.ObserveURL(universe, metrics.URLOutcomeFailed)
		urlLog.Error().Err(err).Msg("ingest: не удалось извлечь контент")
		return "", err
	}

	// Кэш пишется только после контента: попадание в кэш означает, что контент уже сохранён.
	if err := p.store.SaveContent(ctx, universe, content); err != nil {
		if domain.IsStoreUnavailable(err) {
			return "", err
		}
		metrics.ObserveURL(universe, metrics.URLOutcomeFailed)
		urlLog.Error().Err(err).Msg("ingest: не удалось сохранить контент")
		return "", err
	}
	if err := p.cache.StoreURL(ctx, universe, rawURL, content.URL); err != nil {
		if domain.IsStoreUnavailable(err) {
			return "", err
		}
		urlLog.Warn().Err(err).Msg("ingest: не удалось записать ссылку в кэш")
	}
	metrics.ObserveURL(universe, metrics.URLOutcomeExtracted)
	urlLog.Debug().Str("canonical", content.URL).Msg("ingest: контент сохранён")
	return content.URL, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
