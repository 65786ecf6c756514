package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"bonfire/internal/adapters/fetcher"
	"bonfire/internal/infra/config"
	applog "bonfire/internal/infra/log"
	"bonfire/internal/usecase/content"
)

func main() {
	rawURL := flag.String("url", "", "адрес страницы")
	htmlPath := flag.String("html", "", "файл с HTML страницы, сеть не используется")
	flag.Parse()

	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	if *rawURL == "" {
		logger.Fatal().Msg("extract: не указан -url")
	}

	var rawHTML []byte
	if *htmlPath != "" {
		data, err := os.ReadFile(*htmlPath)
		if err != nil {
			logger.Fatal().Err(err).Str("file", *htmlPath).Msg("extract: не удалось прочитать HTML")
		}
		rawHTML = data
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	docFetcher := fetcher.New(fetcher.Options{
		Timeout:   cfg.Fetch.Timeout,
		UserAgent: cfg.Fetch.UserAgent,
		MaxBytes:  cfg.Fetch.MaxBytes,
	})
	expander := fetcher.NewRedirectExpander(cfg.Fetch.HeadTimeout, cfg.Fetch.UserAgent)
	resolver := content.NewResolver(docFetcher, expander, applog.Component(logger, "content"))

	result, err := resolver.Resolve(ctx, *rawURL, rawHTML)
	if err != nil {
		logger.Fatal().Err(err).Str("url", *rawURL).Msg("extract: не удалось извлечь контент")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Fatal().Err(err).Msg("extract: не удалось вывести результат")
	}
}
