package fetcher

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"bonfire/internal/domain"
)

var publishedMetaKeys = map[string]struct{}{
	"datepublished":         {},
	"pubdate":               {},
	"publishdate":           {},
	"publish-date":          {},
	"date":                  {},
	"dc.date.issued":        {},
	"sailthru.date":         {},
	"parsely-pub-date":      {},
	"original-publish-date": {},
}

// Parse разбирает разметку страницы. Мета-свойства og:, article: и twitter: раскладываются
// в деревья domain.MetaMap; article:tag и article:section дополняют og:tag и og:section.
func Parse(pageURL *url.URL, rawHTML []byte) (domain.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rawHTML))
	if err != nil {
		return domain.Document{}, fmt.Errorf("parse html: %w", err)
	}

	result := domain.Document{
		URL:       pageURL.String(),
		HTML:      string(rawHTML),
		OpenGraph: domain.MetaMap{},
		Twitter:   domain.MetaMap{},
	}

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key := firstAttr(s, "property", "name", "itemprop")
		content, ok := s.Attr("content")
		if key == "" || !ok {
			return
		}
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		parts := domain.SplitMetaKey(key)
		if len(parts) == 0 {
			return
		}
		switch parts[0] {
		case "og":
			result.OpenGraph.Set(parts[1:], content, "tag")
			return
		case "article":
			result.OpenGraph.Set(parts, content)
			if len(parts) == 2 && (parts[1] == "tag" || parts[1] == "section") {
				result.OpenGraph.Set(parts[1:], content, "tag")
			}
			return
		case "twitter":
			result.Twitter.Set(parts[1:], content)
			return
		}
		name := strings.ToLower(strings.TrimSpace(key))
		switch name {
		case "description":
			if result.MetaDescription == "" {
				result.MetaDescription = content
			}
		case "keywords":
			result.MetaKeywords = append(result.MetaKeywords, splitList(content)...)
		case "news_keywords":
			result.Keywords = append(result.Keywords, splitList(content)...)
		case "author":
			result.Authors = append(result.Authors, content)
		default:
			if _, ok := publishedMetaKeys[name]; ok && result.PublishedDate == "" {
				result.PublishedDate = content
			}
		}
	})

	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		result.CanonicalLink = absoluteTo(pageURL, href)
	}
	if href, ok := doc.Find(`link[rel~="icon"]`).First().Attr("href"); ok {
		result.MetaFavicon = strings.TrimSpace(href)
	}
	doc.Find(`a[rel~="tag"]`).Each(func(_ int, s *goquery.Selection) {
		if tag := strings.TrimSpace(s.Text()); tag != "" {
			result.Tags = append(result.Tags, tag)
		}
	})
	if result.PublishedDate == "" {
		if dt, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
			result.PublishedDate = strings.TrimSpace(dt)
		}
	}

	article, err := readability.FromReader(bytes.NewReader(rawHTML), pageURL)
	if err == nil {
		result.Title = strings.TrimSpace(article.Title)
		result.Summary = strings.TrimSpace(article.Excerpt)
		result.Text = strings.TrimSpace(article.TextContent)
		result.TopImage = strings.TrimSpace(article.Image)
		if result.MetaFavicon == "" {
			result.MetaFavicon = strings.TrimSpace(article.Favicon)
		}
		if len(result.Authors) == 0 && strings.TrimSpace(article.Byline) != "" {
			result.Authors = []string{strings.TrimSpace(article.Byline)}
		}
		if result.PublishedDate == "" && article.PublishedTime != nil {
			result.PublishedDate = article.PublishedTime.UTC().Format(time.RFC3339)
		}
	}
	if result.Title == "" {
		result.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return result, nil
}

func firstAttr(s *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := s.Attr(name); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func absoluteTo(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
