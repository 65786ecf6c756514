package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TwitterTimeLayout — формат created_at в Twitter API v1.1.
const TwitterTimeLayout = time.RubyDate

type twitterPayload struct {
	IDStr        string `json:"id_str"`
	Text         string `json:"text"`
	FullText     string `json:"full_text"`
	CreatedAt    string `json:"created_at"`
	RetweetCount int    `json:"retweet_count"`
	User         struct {
		IDStr           string `json:"id_str"`
		Name            string `json:"name"`
		ScreenName      string `json:"screen_name"`
		ProfileImageURL string `json:"profile_image_url"`
	} `json:"user"`
	Entities struct {
		URLs []struct {
			URL         string `json:"url"`
			ExpandedURL string `json:"expanded_url"`
		} `json:"urls"`
	} `json:"entities"`
}

// DecodeRawTweet разбирает JSON твита и проверяет обязательные поля.
func DecodeRawTweet(payload []byte) (RawTweet, error) {
	var p twitterPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return RawTweet{}, fmt.Errorf("%w: %v", ErrMalformedTweet, err)
	}
	if strings.TrimSpace(p.IDStr) == "" {
		return RawTweet{}, fmt.Errorf("%w: нет id_str", ErrMalformedTweet)
	}
	if strings.TrimSpace(p.User.IDStr) == "" {
		return RawTweet{}, fmt.Errorf("%w: нет user.id_str", ErrMalformedTweet)
	}
	created, err := time.Parse(TwitterTimeLayout, strings.TrimSpace(p.CreatedAt))
	if err != nil {
		created, err = time.Parse(time.RFC3339, strings.TrimSpace(p.CreatedAt))
		if err != nil {
			return RawTweet{}, fmt.Errorf("%w: created_at %q", ErrMalformedTweet, p.CreatedAt)
		}
	}
	text := p.Text
	if text == "" {
		text = p.FullText
	}
	urls := make([]string, 0, len(p.Entities.URLs))
	for _, u := range p.Entities.URLs {
		link := strings.TrimSpace(u.ExpandedURL)
		if link == "" {
			link = strings.TrimSpace(u.URL)
		}
		if link != "" {
			urls = append(urls, link)
		}
	}
	return RawTweet{
		ID:                  p.IDStr,
		Text:                text,
		CreatedAt:           created.UTC(),
		RetweetCount:        p.RetweetCount,
		UserID:              p.User.IDStr,
		UserName:            p.User.Name,
		UserScreenName:      p.User.ScreenName,
		UserProfileImageURL: p.User.ProfileImageURL,
		URLs:                urls,
	}, nil
}
