package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"bonfire/internal/domain"
	"bonfire/internal/infra/metrics"
)

// amqpChannel — методы *amqp.Channel, которыми пользуется очередь.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	IsClosed() bool
	Close() error
}

type openFunc func() (io.Closer, amqpChannel, error)

// RabbitIntakeQueue реализует входную очередь через AMQP. После разрыва
// соединения следующий вызов переподключается к брокеру.
type RabbitIntakeQueue struct {
	queue string
	open  openFunc

	mu         sync.Mutex
	conn       io.Closer
	ch         amqpChannel
	deliveries <-chan amqp.Delivery
}

var _ domain.IntakeQueue = (*RabbitIntakeQueue)(nil)

// NewRabbitIntakeQueue подключается к брокеру и объявляет durable-очередь.
func NewRabbitIntakeQueue(amqpURL, queue string) (*RabbitIntakeQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	q := &RabbitIntakeQueue{queue: queue, open: dialer(amqpURL, queue)}
	if _, err := q.channel(); err != nil {
		return nil, err
	}
	return q, nil
}

func dialer(amqpURL, queue string) openFunc {
	return func() (io.Closer, amqpChannel, error) {
		conn, err := amqp.Dial(amqpURL)
		if err != nil {
			return nil, nil, fmt.Errorf("dial amqp: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("open channel: %w", err)
		}
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("declare queue: %w", err)
		}
		if err := ch.Qos(1, 0, false); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("set qos: %w", err)
		}
		return conn, ch, nil
	}
}

// channel возвращает живой канал, переподключаясь при необходимости.
func (q *RabbitIntakeQueue) channel() (amqpChannel, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.channelLocked()
}

func (q *RabbitIntakeQueue) channelLocked() (amqpChannel, error) {
	if q.ch != nil && !q.ch.IsClosed() {
		return q.ch, nil
	}
	q.dropLocked()
	start := time.Now()
	conn, ch, err := q.open()
	metrics.ObserveNetworkRequest("rabbitmq", "connect", q.queue, start, err)
	if err != nil {
		return nil, err
	}
	q.conn, q.ch = conn, ch
	return ch, nil
}

// dropLocked закрывает текущую сессию, чтобы следующий вызов открыл новую.
func (q *RabbitIntakeQueue) dropLocked() {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		_ = q.conn.Close()
	}
	q.conn, q.ch, q.deliveries = nil, nil, nil
}

// Enqueue публикует сырой твит в очередь.
func (q *RabbitIntakeQueue) Enqueue(ctx context.Context, msg domain.RawTweetMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	ch, err := q.channel()
	if err != nil {
		return err
	}
	start := time.Now()
	err = ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Receive ждёт следующее сообщение. Подтверждение выполняется через AckFunc.
func (q *RabbitIntakeQueue) Receive(ctx context.Context) (domain.RawTweetMessage, domain.AckFunc, error) {
	deliveries, err := q.consume()
	if err != nil {
		return domain.RawTweetMessage{}, nil, err
	}
	select {
	case <-ctx.Done():
		return domain.RawTweetMessage{}, nil, ctx.Err()
	case d, ok := <-deliveries:
		if !ok {
			q.mu.Lock()
			q.dropLocked()
			q.mu.Unlock()
			return domain.RawTweetMessage{}, nil, errors.New("rabbitmq: delivery channel closed")
		}
		ack := func(success bool) error {
			if success {
				return d.Ack(false)
			}
			return d.Nack(false, true)
		}
		var msg domain.RawTweetMessage
		if err := json.Unmarshal(d.Body, &msg); err != nil {
			_ = d.Ack(false)
			return domain.RawTweetMessage{}, nil, fmt.Errorf("decode message: %w", err)
		}
		return msg, ack, nil
	}
}

func (q *RabbitIntakeQueue) consume() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil && q.ch != nil && !q.ch.IsClosed() {
		return q.deliveries, nil
	}
	ch, err := q.channelLocked()
	if err != nil {
		return nil, err
	}
	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		q.dropLocked()
		return nil, fmt.Errorf("consume: %w", err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}

// Close закрывает канал и соединение.
func (q *RabbitIntakeQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	var err error
	if q.ch != nil {
		if cerr := q.ch.Close(); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) {
			err = cerr
		}
	}
	if q.conn != nil {
		if cerr := q.conn.Close(); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) && err == nil {
			err = cerr
		}
	}
	q.conn, q.ch, q.deliveries = nil, nil, nil
	return err
}
