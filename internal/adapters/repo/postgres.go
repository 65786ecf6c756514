package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bonfire/internal/domain"
	"bonfire/internal/infra/metrics"
)

// Postgres реализует хранилище твитов и кэш ссылок на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.TweetStore   = (*Postgres)(nil)
	_ domain.URLCache     = (*Postgres)(nil)
	_ domain.RawTweetSink = (*Postgres)(nil)
)

// schemaLockKey сериализует DDL между процессами, готовящими разные вселенные.
const schemaLockKey = 0x626f6e66

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS universes (
	name TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS raw_tweets (
	universe TEXT NOT NULL,
	id TEXT NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed_at TIMESTAMPTZ,
	skip_reason TEXT,
	PRIMARY KEY (universe, id)
)`,
	`CREATE INDEX IF NOT EXISTS raw_tweets_unprocessed_idx
	ON raw_tweets (universe, created_at, id) WHERE processed_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS tweets (
	universe TEXT NOT NULL,
	id TEXT NOT NULL,
	text TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	retweet_count INTEGER NOT NULL DEFAULT 0,
	user_id TEXT NOT NULL,
	user_name TEXT NOT NULL DEFAULT '',
	user_screen_name TEXT NOT NULL DEFAULT '',
	user_profile_image_url TEXT NOT NULL DEFAULT '',
	content_url TEXT NOT NULL DEFAULT '',
	content_urls TEXT[] NOT NULL DEFAULT '{}',
	processed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (universe, id)
)`,
	`CREATE INDEX IF NOT EXISTS tweets_created_idx ON tweets (universe, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS contents (
	id UUID PRIMARY KEY,
	universe TEXT NOT NULL,
	url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL DEFAULT '',
	published TIMESTAMPTZ,
	authors TEXT NOT NULL DEFAULT '',
	image TEXT NOT NULL DEFAULT '',
	player TEXT NOT NULL DEFAULT '',
	favicon TEXT NOT NULL DEFAULT '',
	raw_html TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '',
	opengraph_type TEXT NOT NULL DEFAULT '',
	twitter_type TEXT NOT NULL DEFAULT '',
	twitter_creator TEXT NOT NULL DEFAULT '',
	resolved_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS contents_url_idx ON contents (universe, url)`,
	`CREATE TABLE IF NOT EXISTS url_cache (
	universe TEXT NOT NULL,
	raw_url TEXT NOT NULL,
	canonical_url TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (universe, raw_url)
)`,
}

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// Ping проверяет доступность БД.
func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	err := p.pool.Ping(ctx)
	metrics.ObserveNetworkRequest("postgres", "ping", "pool", start, err)
	return classify(err)
}

// BuildUniverseMappings создаёт таблицы и индексы, если их нет, и регистрирует вселенную.
func (p *Postgres) BuildUniverseMappings(ctx context.Context, universe string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "schema", start, err)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(schemaLockKey)); err != nil {
		return classify(fmt.Errorf("блокировка схемы: %w", err))
	}
	for _, stmt := range schemaStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return classify(fmt.Errorf("миграция схемы: %w", err))
		}
	}
	if _, err := tx.Exec(ctx, `INSERT INTO universes (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, universe); err != nil {
		return classify(fmt.Errorf("регистрация вселенной: %w", err))
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "schema", start, err)
	return classify(err)
}

// NextUnprocessedTweet возвращает самый старый необработанный твит вселенной.
func (p *Postgres) NextUnprocessedTweet(ctx context.Context, universe string, notIDs []string) (domain.RawTweet, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		id      string
		payload []byte
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, payload
FROM raw_tweets
WHERE universe = $1 AND processed_at IS NULL AND NOT (id = ANY($2))
ORDER BY created_at, id
LIMIT 1
`, universe, excludedIDs(notIDs)).Scan(&id, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "next_unprocessed", "raw_tweets", start, nil)
		return domain.RawTweet{}, false, nil
	}
	metrics.ObserveNetworkRequest("postgres", "next_unprocessed", "raw_tweets", start, err)
	if err != nil {
		return domain.RawTweet{}, false, classify(err)
	}

	raw, err := domain.DecodeRawTweet(payload)
	if err != nil {
		return domain.RawTweet{}, false, &domain.MalformedTweetError{ID: id, Err: err}
	}
	return raw, true, nil
}

// SaveTweet сохраняет обогащённый твит и помечает сырой обработанным в одной транзакции.
func (p *Postgres) SaveTweet(ctx context.Context, universe string, tweet domain.Tweet) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if tweet.ProcessedAt.IsZero() {
		tweet.ProcessedAt = time.Now().UTC()
	}
	contentURLs := tweet.ContentURLs
	if contentURLs == nil {
		contentURLs = []string{}
	}

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "tweets", start, err)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	start = time.Now()
	_, err = tx.Exec(ctx, `
INSERT INTO tweets (universe, id, text, created_at, retweet_count, user_id, user_name, user_screen_name,
	user_profile_image_url, content_url, content_urls, processed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (universe, id) DO UPDATE
SET text = EXCLUDED.text,
	retweet_count = EXCLUDED.retweet_count,
	user_name = EXCLUDED.user_name,
	user_screen_name = EXCLUDED.user_screen_name,
	user_profile_image_url = EXCLUDED.user_profile_image_url,
	content_url = EXCLUDED.content_url,
	content_urls = EXCLUDED.content_urls,
	processed_at = EXCLUDED.processed_at
`, universe, tweet.ID, tweet.Text, tweet.CreatedAt, tweet.RetweetCount, tweet.UserID, tweet.UserName,
		tweet.UserScreenName, tweet.UserProfileImageURL, tweet.ContentURL, contentURLs, tweet.ProcessedAt)
	metrics.ObserveNetworkRequest("postgres", "tweet_upsert", "tweets", start, err)
	if err != nil {
		return classify(err)
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `UPDATE raw_tweets SET processed_at = $3 WHERE universe = $1 AND id = $2`,
		universe, tweet.ID, tweet.ProcessedAt)
	metrics.ObserveNetworkRequest("postgres", "raw_tweet_processed", "raw_tweets", start, err)
	if err != nil {
		return classify(err)
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "tweets", start, err)
	return classify(err)
}

// SaveContent вставляет новую запись контента. Повторные записи для одного URL допустимы.
func (p *Postgres) SaveContent(ctx context.Context, universe string, c domain.Content) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if c.ResolvedAt.IsZero() {
		c.ResolvedAt = time.Now().UTC()
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO contents (id, universe, url, title, description, text, published, authors, image, player,
	favicon, raw_html, tags, opengraph_type, twitter_type, twitter_creator, resolved_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
`, c.ID, universe, c.URL, c.Title, c.Description, c.Text, c.Published, c.Authors, c.Image, c.Player,
		c.Favicon, c.RawHTML, c.Tags, c.OpenGraphType, c.TwitterType, c.TwitterCreator, c.ResolvedAt)
	metrics.ObserveNetworkRequest("postgres", "content_insert", "contents", start, err)
	return classify(err)
}

// SkipTweet убирает сырой твит из очереди, сохраняя причину.
func (p *Postgres) SkipTweet(ctx context.Context, universe, tweetID, reason string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE raw_tweets SET processed_at = now(), skip_reason = $3
WHERE universe = $1 AND id = $2
`, universe, tweetID, reason)
	metrics.ObserveNetworkRequest("postgres", "raw_tweet_skip", "raw_tweets", start, err)
	return classify(err)
}

// EnqueueRawTweet добавляет сырой твит в очередь вселенной. Дубликаты игнорируются.
func (p *Postgres) EnqueueRawTweet(ctx context.Context, universe string, tweet domain.RawTweet, payload []byte) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO raw_tweets (universe, id, payload, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (universe, id) DO NOTHING
`, universe, tweet.ID, string(payload), tweet.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "raw_tweet_insert", "raw_tweets", start, err)
	return classify(err)
}

// LookupURL ищет канонический URL в таблице url_cache.
func (p *Postgres) LookupURL(ctx context.Context, universe, rawURL string) (string, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var canonical string
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT canonical_url FROM url_cache WHERE universe = $1 AND raw_url = $2`,
		universe, rawURL).Scan(&canonical)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "url_lookup", "url_cache", start, nil)
		return "", false, nil
	}
	metrics.ObserveNetworkRequest("postgres", "url_lookup", "url_cache", start, err)
	if err != nil {
		return "", false, classify(err)
	}
	return canonical, true, nil
}

// StoreURL запоминает канонический URL для сырой ссылки.
func (p *Postgres) StoreURL(ctx context.Context, universe, rawURL, canonicalURL string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO url_cache (universe, raw_url, canonical_url)
VALUES ($1, $2, $3)
ON CONFLICT (universe, raw_url) DO UPDATE SET canonical_url = EXCLUDED.canonical_url
`, universe, rawURL, canonicalURL)
	metrics.ObserveNetworkRequest("postgres", "url_store", "url_cache", start, err)
	return classify(err)
}

// excludedIDs не даёт передать NULL в ANY: сравнение с NULL отфильтровало бы все строки.
func excludedIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// classify оборачивает ошибки связи с БД в domain.ErrStoreUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isConnectivityError(err) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}

func isConnectivityError(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 08xxx — connection exception, 57P0x — сервер остановлен.
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0")
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if pgconn.Timeout(err) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return strings.Contains(err.Error(), "closed pool")
}
