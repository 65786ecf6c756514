package domain

import (
	"context"
	"time"
)

// DocumentFetcher загружает страницу и извлекает из неё сырые метаданные.
// Если rawHTML не nil, сетевой запрос не выполняется.
type DocumentFetcher interface {
	Fetch(ctx context.Context, rawURL string, rawHTML []byte) (Document, error)
}

// URLExpander раскрывает редиректы и возвращает конечный адрес.
type URLExpander interface {
	Expand(ctx context.Context, rawURL string) (string, error)
}

// ContentResolver превращает ссылку в нормализованный Content.
type ContentResolver interface {
	Resolve(ctx context.Context, rawURL string, rawHTML []byte) (Content, error)
}

// URLCache хранит соответствие сырой ссылки каноническому URL внутри вселенной.
type URLCache interface {
	LookupURL(ctx context.Context, universe, rawURL string) (string, bool, error)
	StoreURL(ctx context.Context, universe, rawURL, canonicalURL string) error
}

// TweetStore — хранилище с семантикой очереди твитов.
type TweetStore interface {
	BuildUniverseMappings(ctx context.Context, universe string) error
	// NextUnprocessedTweet возвращает самый старый необработанный твит, исключая notIDs.
	// При отсутствии твитов второе значение равно false.
	NextUnprocessedTweet(ctx context.Context, universe string, notIDs []string) (RawTweet, bool, error)
	SaveTweet(ctx context.Context, universe string, tweet Tweet) error
	SaveContent(ctx context.Context, universe string, content Content) error
	SkipTweet(ctx context.Context, universe, tweetID, reason string) error
}

// RawTweetSink принимает сырые твиты из входной очереди.
type RawTweetSink interface {
	EnqueueRawTweet(ctx context.Context, universe string, tweet RawTweet, payload []byte) error
}

// LagNotifier сообщает об отставании обработчика от сборщика.
type LagNotifier interface {
	NotifyLag(ctx context.Context, universe string, lag time.Duration) error
}
