package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bonfire/internal/domain"
)

const validPayload = `{"id_str":"100","text":"hello https://t.co/x","created_at":"Mon Mar 02 10:00:00 +0000 2026",` +
	`"retweet_count":1,"user":{"id_str":"7","name":"Ann","screen_name":"ann"},` +
	`"entities":{"urls":[{"url":"https://t.co/x","expanded_url":"https://example.com/x"}]}}`

type stubSink struct {
	prepared []string
	saved    []string
	errs     []error
}

func (s *stubSink) BuildUniverseMappings(_ context.Context, universe string) error {
	s.prepared = append(s.prepared, universe)
	return nil
}

func (s *stubSink) EnqueueRawTweet(_ context.Context, universe string, tweet domain.RawTweet, _ []byte) error {
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return err
		}
	}
	s.saved = append(s.saved, universe+"/"+tweet.ID)
	return nil
}

type ackRecorder struct{ calls []bool }

func (a *ackRecorder) ack(success bool) error {
	a.calls = append(a.calls, success)
	return nil
}

func newTestWorker(sink *stubSink) (*Worker, *[]time.Duration) {
	w := NewWorker(nil, sink, sink, zerolog.Nop(), "default")
	var sleeps []time.Duration
	w.sleep = func(_ context.Context, d time.Duration) { sleeps = append(sleeps, d) }
	return w, &sleeps
}

func TestHandleStoresTweet(t *testing.T) {
	sink := &stubSink{}
	w, _ := newTestWorker(sink)
	acks := &ackRecorder{}

	msg := domain.RawTweetMessage{Universe: "news", Payload: json.RawMessage(validPayload)}
	w.Handle(context.Background(), msg, acks.ack)
	w.Handle(context.Background(), msg, acks.ack)

	if len(sink.saved) != 2 || sink.saved[0] != "news/100" {
		t.Fatalf("ожидали сохранённые твиты, получили %v", sink.saved)
	}
	if len(sink.prepared) != 1 {
		t.Fatalf("схема вселенной должна готовиться один раз, готовилась %d", len(sink.prepared))
	}
	if len(acks.calls) != 2 || !acks.calls[0] || !acks.calls[1] {
		t.Fatalf("ожидали успешные подтверждения, получили %v", acks.calls)
	}
}

func TestHandleUsesFallbackUniverse(t *testing.T) {
	sink := &stubSink{}
	w, _ := newTestWorker(sink)
	w.Handle(context.Background(), domain.RawTweetMessage{Payload: json.RawMessage(validPayload)}, nil)
	if len(sink.saved) != 1 || sink.saved[0] != "default/100" {
		t.Fatalf("ожидали вселенную по умолчанию, получили %v", sink.saved)
	}
}

func TestHandleDropsMalformed(t *testing.T) {
	sink := &stubSink{}
	w, _ := newTestWorker(sink)
	acks := &ackRecorder{}

	w.Handle(context.Background(), domain.RawTweetMessage{Universe: "news", Payload: json.RawMessage(`{"text":"no id"}`)}, acks.ack)
	if len(sink.saved) != 0 {
		t.Fatalf("некорректный твит не должен сохраняться")
	}
	if len(acks.calls) != 1 || !acks.calls[0] {
		t.Fatalf("некорректный твит должен подтверждаться, получили %v", acks.calls)
	}
}

func TestHandleRequeuesOnStoreFailure(t *testing.T) {
	sink := &stubSink{errs: []error{fmt.Errorf("%w: dial", domain.ErrStoreUnavailable)}}
	w, sleeps := newTestWorker(sink)
	acks := &ackRecorder{}

	w.Handle(context.Background(), domain.RawTweetMessage{Universe: "news", Payload: json.RawMessage(validPayload)}, acks.ack)
	if len(acks.calls) != 1 || acks.calls[0] {
		t.Fatalf("сообщение должно вернуться в очередь, получили %v", acks.calls)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != 5*time.Second {
		t.Fatalf("ожидали паузу перед повтором, получили %v", *sleeps)
	}
}
