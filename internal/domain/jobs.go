package domain

import "context"

// IntakeQueue описывает входную очередь сырых твитов от сборщика.
type IntakeQueue interface {
	Enqueue(ctx context.Context, msg RawTweetMessage) error
	Receive(ctx context.Context) (RawTweetMessage, AckFunc, error)
}

// AckFunc подтверждает успешную обработку или запрашивает повторную доставку сообщения.
type AckFunc func(success bool) error
