package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"bonfire/internal/domain"
	"bonfire/internal/infra/metrics"
)

const defaultHeadTimeout = 4 * time.Second

// RedirectExpander раскрывает короткие ссылки HEAD-запросом со следованием редиректам.
type RedirectExpander struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

var _ domain.URLExpander = (*RedirectExpander)(nil)

// NewRedirectExpander создаёт раскрыватель ссылок с ограничением по времени.
func NewRedirectExpander(timeout time.Duration, userAgent string) *RedirectExpander {
	if timeout <= 0 {
		timeout = defaultHeadTimeout
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &RedirectExpander{client: &http.Client{Timeout: timeout}, timeout: timeout, userAgent: userAgent}
}

// Expand возвращает адрес, на котором закончилась цепочка редиректов.
// Код ответа конечной страницы не проверяется.
func (e *RedirectExpander) Expand(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	start := time.Now()
	resp, err := e.client.Do(req)
	metrics.ObserveNetworkRequest("http", "head", hostOf(rawURL), start, err)
	if err != nil {
		return "", fmt.Errorf("head request: %w", err)
	}
	resp.Body.Close()
	if resp.Request == nil || resp.Request.URL == nil {
		return "", nil
	}
	return resp.Request.URL.String(), nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
