package content

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"bonfire/internal/adapters/fetcher"
)

func TestResolveShortLinkUsesTargetHost(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head>
<title>История</title>
<link rel="canonical" href="/2026/story/">
<link rel="icon" href="/favicon.ico">
<meta property="og:image" content="/img/cover.png">
</head><body><p>Текст</p></body></html>`))
	}))
	defer target.Close()
	short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/p/1", http.StatusFound)
	}))
	defer short.Close()

	r := NewResolver(fetcher.New(fetcher.Options{}), fetcher.NewRedirectExpander(0, ""), zerolog.Nop())
	c, err := r.Resolve(context.Background(), short.URL+"/x", nil)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if c.URL != target.URL+"/2026/story" {
		t.Fatalf("ожидали канонический адрес на целевом хосте %s, получили %q", target.URL, c.URL)
	}
	if c.Favicon != target.URL+"/favicon.ico" {
		t.Fatalf("favicon должен строиться от целевого хоста, получили %q", c.Favicon)
	}
	if c.Image != target.URL+"/img/cover.png" {
		t.Fatalf("картинка должна строиться от целевого хоста, получили %q", c.Image)
	}
}
