package domain

import (
	"encoding/json"
	"time"
)

// RawTweet описывает необработанный твит из очереди вселенной.
type RawTweet struct {
	ID                  string
	Text                string
	CreatedAt           time.Time
	RetweetCount        int
	UserID              string
	UserName            string
	UserScreenName      string
	UserProfileImageURL string
	URLs                []string
}

// Tweet — обогащённый твит, который сохраняется после обработки.
type Tweet struct {
	ID                  string    `json:"id"`
	Text                string    `json:"text"`
	CreatedAt           time.Time `json:"created"`
	RetweetCount        int       `json:"retweet_count"`
	UserID              string    `json:"user_id"`
	UserName            string    `json:"user_name"`
	UserScreenName      string    `json:"user_screen_name"`
	UserProfileImageURL string    `json:"user_profile_image_url"`
	// ContentURL указывает на канонический URL последней успешно разрешённой ссылки.
	ContentURL  string    `json:"content_url,omitempty"`
	ContentURLs []string  `json:"content_urls,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// NewTweet переносит поля сырого твита в сохраняемую запись.
func NewTweet(raw RawTweet) Tweet {
	return Tweet{
		ID:                  raw.ID,
		Text:                raw.Text,
		CreatedAt:           raw.CreatedAt,
		RetweetCount:        raw.RetweetCount,
		UserID:              raw.UserID,
		UserName:            raw.UserName,
		UserScreenName:      raw.UserScreenName,
		UserProfileImageURL: raw.UserProfileImageURL,
	}
}

// Content — нормализованные метаданные одной веб-страницы.
type Content struct {
	ID             string     `json:"id"`
	URL            string     `json:"url"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Text           string     `json:"text"`
	Published      *time.Time `json:"published,omitempty"`
	Authors        string     `json:"authors"`
	Image          string     `json:"img"`
	Player         string     `json:"player"`
	Favicon        string     `json:"favicon"`
	RawHTML        string     `json:"raw_html"`
	Tags           string     `json:"tags"`
	OpenGraphType  string     `json:"opengraph_type"`
	TwitterType    string     `json:"twitter_type"`
	TwitterCreator string     `json:"twitter_creator"`
	ResolvedAt     time.Time  `json:"resolved_at"`
}

// Document — результат загрузки и разбора страницы до нормализации.
type Document struct {
	URL             string
	CanonicalLink   string
	Title           string
	Summary         string
	MetaDescription string
	Text            string
	PublishedDate   string
	Authors         []string
	TopImage        string
	MetaFavicon     string
	Keywords        []string
	MetaKeywords    []string
	Tags            []string
	HTML            string
	OpenGraph       MetaMap
	Twitter         MetaMap
}

// RawTweetMessage — сообщение входной очереди со сырым твитом.
type RawTweetMessage struct {
	Universe string          `json:"universe"`
	Payload  json.RawMessage `json:"payload"`
}
