package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bonfire/internal/domain"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubResolver struct {
	content domain.Content
	err     error
	got     string
}

func (r *stubResolver) Resolve(_ context.Context, rawURL string, _ []byte) (domain.Content, error) {
	r.got = rawURL
	return r.content, r.err
}

func serve(s *Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	s := NewServer(zerolog.Nop(), stubPinger{}, &stubResolver{})
	if rec := serve(s, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}

	s = NewServer(zerolog.Nop(), stubPinger{err: domain.ErrStoreUnavailable}, &stubResolver{})
	if rec := serve(s, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ожидали 503, получили %d", rec.Code)
	}
}

func TestResolveReturnsContent(t *testing.T) {
	resolver := &stubResolver{content: domain.Content{ID: "1", URL: "https://example.com/a", Title: "Заголовок"}}
	s := NewServer(zerolog.Nop(), stubPinger{}, resolver)

	rec := serve(s, "/api/v1/resolve?url=https%3A%2F%2Ft.co%2Fx")
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	if resolver.got != "https://t.co/x" {
		t.Fatalf("резолвер получил %q", resolver.got)
	}
	var got domain.Content
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("ответ не JSON: %v", err)
	}
	if got.URL != "https://example.com/a" || got.Title != "Заголовок" {
		t.Fatalf("неожиданный контент: %+v", got)
	}
}

func TestResolveValidatesURL(t *testing.T) {
	s := NewServer(zerolog.Nop(), stubPinger{}, &stubResolver{})
	for _, target := range []string{"/api/v1/resolve", "/api/v1/resolve?url=example.com"} {
		if rec := serve(s, target); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: ожидали 400, получили %d", target, rec.Code)
		}
	}
}

func TestResolveExtractionErrorIsBadGateway(t *testing.T) {
	resolver := &stubResolver{err: &domain.ExtractionError{URL: "https://t.co/x", Err: errors.New("404")}}
	s := NewServer(zerolog.Nop(), stubPinger{}, resolver)
	if rec := serve(s, "/api/v1/resolve?url=https://t.co/x"); rec.Code != http.StatusBadGateway {
		t.Fatalf("ожидали 502, получили %d", rec.Code)
	}

	resolver.err = errors.New("boom")
	if rec := serve(s, "/api/v1/resolve?url=https://t.co/x"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("ожидали 500, получили %d", rec.Code)
	}
}

func TestStartAfterShutdownReturns(t *testing.T) {
	s := NewServer(zerolog.Nop(), stubPinger{}, &stubResolver{})
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку остановки: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Start("127.0.0.1:0") }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ожидали nil после остановки, получили %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("сервер продолжает работать после Shutdown")
	}
}

func TestShutdownStopsRunningServer(t *testing.T) {
	s := NewServer(zerolog.Nop(), stubPinger{}, &stubResolver{})
	done := make(chan error, 1)
	go func() { done <- s.Start("127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("не ожидали ошибку остановки: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ожидали nil, получили %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Start не вернулся после Shutdown")
	}
}

func TestStartReportsListenError(t *testing.T) {
	s := NewServer(zerolog.Nop(), stubPinger{}, &stubResolver{})
	if err := s.Start("127.0.0.1:-1"); err == nil {
		t.Fatalf("ожидали ошибку для некорректного адреса")
	}
}
