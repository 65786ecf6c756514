package domain

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable сигнализирует о потере связи с хранилищем твитов.
var ErrStoreUnavailable = errors.New("хранилище недоступно")

// ErrMalformedTweet возвращается, если сырой твит не удалось разобрать.
var ErrMalformedTweet = errors.New("некорректный твит")

// ExtractionError описывает неудачу загрузки или разбора одной ссылки.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// MalformedTweetError связывает ошибку разбора с идентификатором записи в очереди.
type MalformedTweetError struct {
	ID  string
	Err error
}

func (e *MalformedTweetError) Error() string {
	return fmt.Sprintf("tweet %s: %v", e.ID, e.Err)
}

func (e *MalformedTweetError) Unwrap() error { return e.Err }

// IsStoreUnavailable сообщает, относится ли ошибка к связи с хранилищем.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
