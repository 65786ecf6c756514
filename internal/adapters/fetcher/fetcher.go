package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bonfire/internal/domain"
	"bonfire/internal/infra/metrics"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultMaxBytes  = 5 << 20
	defaultUserAgent = "Mozilla/5.0 (compatible; bonfire/1.0)"
)

// Options задаёт параметры загрузки страниц.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
}

// HTTPFetcher загружает страницу по HTTP и разбирает её в domain.Document.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
}

var _ domain.DocumentFetcher = (*HTTPFetcher)(nil)

// New создаёт загрузчик страниц.
func New(opts Options) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: opts.Timeout},
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
	}
}

// Fetch загружает страницу, если rawHTML не передан, и разбирает разметку.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, rawHTML []byte) (domain.Document, error) {
	pageURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return domain.Document{}, fmt.Errorf("parse url: %w", err)
	}
	if pageURL.Scheme == "" || pageURL.Host == "" {
		return domain.Document{}, fmt.Errorf("url %q is not absolute", rawURL)
	}
	if rawHTML == nil {
		rawHTML, pageURL, err = f.download(ctx, pageURL)
		if err != nil {
			return domain.Document{}, err
		}
	}
	return Parse(pageURL, rawHTML)
}

// download возвращает тело страницы и адрес, на котором закончились редиректы:
// относительные ссылки разметки разрешаются от него, а не от запрошенного адреса.
func (f *HTTPFetcher) download(ctx context.Context, pageURL *url.URL) ([]byte, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	start := time.Now()
	resp, err := f.client.Do(req)
	metrics.ObserveNetworkRequest("http", "fetch", pageURL.Hostname(), start, err)
	if err != nil {
		return nil, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !isMarkup(ct) {
		return nil, nil, fmt.Errorf("unsupported content type %q", ct)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}
	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}
	return body, finalURL, nil
}

func isMarkup(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "html") || strings.Contains(ct, "xml") || strings.HasPrefix(ct, "text/plain")
}
