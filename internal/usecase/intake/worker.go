package intake

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bonfire/internal/domain"
	"bonfire/internal/infra/metrics"
)

// UniversePreparer создаёт таблицы вселенной до первой записи.
type UniversePreparer interface {
	BuildUniverseMappings(ctx context.Context, universe string) error
}

// Worker перекладывает сырые твиты из входной очереди в хранилище.
type Worker struct {
	queue    domain.IntakeQueue
	sink     domain.RawTweetSink
	preparer UniversePreparer
	log      zerolog.Logger
	fallback string
	prepared map[string]bool
	sleep    func(ctx context.Context, d time.Duration)
}

// NewWorker создаёт обработчик входной очереди. Сообщения без вселенной попадают в fallback.
func NewWorker(queue domain.IntakeQueue, sink domain.RawTweetSink, preparer UniversePreparer, log zerolog.Logger, fallback string) *Worker {
	return &Worker{
		queue:    queue,
		sink:     sink,
		preparer: preparer,
		log:      log,
		fallback: fallback,
		prepared: make(map[string]bool),
		sleep: func(ctx context.Context, d time.Duration) {
			select {
			case <-ctx.Done():
			case <-time.After(d):
			}
		},
	}
}

// Run читает очередь до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	for {
		msg, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("intake: ошибка чтения очереди")
			w.sleep(ctx, time.Second)
			continue
		}
		w.Handle(ctx, msg, ack)
	}
}

// Handle обрабатывает одно сообщение и подтверждает его. Некорректные твиты
// подтверждаются и отбрасываются, ошибки хранилища возвращают сообщение в очередь.
func (w *Worker) Handle(ctx context.Context, msg domain.RawTweetMessage, ack domain.AckFunc) {
	universe := strings.TrimSpace(msg.Universe)
	if universe == "" {
		universe = w.fallback
	}
	msgLog := w.log.With().Str("universe", universe).Logger()

	raw, err := domain.DecodeRawTweet(msg.Payload)
	if err != nil {
		metrics.IntakeMessages.WithLabelValues("malformed").Inc()
		msgLog.Error().Err(err).Msg("intake: некорректный твит, подтверждаем и пропускаем")
		w.ack(ack, true, msgLog)
		return
	}
	msgLog = msgLog.With().Str("tweet", raw.ID).Logger()

	if err := w.store(ctx, universe, raw, msg.Payload); err != nil {
		metrics.IntakeMessages.WithLabelValues("error").Inc()
		msgLog.Error().Err(err).Msg("intake: не удалось сохранить твит, вернём в очередь")
		w.ack(ack, false, msgLog)
		if errors.Is(err, domain.ErrStoreUnavailable) {
			w.sleep(ctx, 5*time.Second)
		}
		return
	}
	metrics.IntakeMessages.WithLabelValues("ok").Inc()
	msgLog.Debug().Msg("intake: твит поставлен в очередь вселенной")
	w.ack(ack, true, msgLog)
}

func (w *Worker) store(ctx context.Context, universe string, raw domain.RawTweet, payload []byte) error {
	if !w.prepared[universe] {
		if err := w.preparer.BuildUniverseMappings(ctx, universe); err != nil {
			return err
		}
		w.prepared[universe] = true
	}
	return w.sink.EnqueueRawTweet(ctx, universe, raw, payload)
}

func (w *Worker) ack(ack domain.AckFunc, success bool, log zerolog.Logger) {
	if ack == nil {
		return
	}
	if err := ack(success); err != nil {
		log.Error().Err(err).Bool("success", success).Msg("intake: не удалось подтвердить сообщение")
	}
}
