package content

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bonfire/internal/domain"
	"bonfire/internal/infra/metrics"
)

// Resolver нормализует метаданные страницы по цепочкам источников.
type Resolver struct {
	fetcher  domain.DocumentFetcher
	expander domain.URLExpander
	log      zerolog.Logger
	now      func() time.Time
	newID    func() string
}

var _ domain.ContentResolver = (*Resolver)(nil)

// NewResolver создаёт резолвер. expander может быть nil, тогда исходный URL не раскрывается.
func NewResolver(fetcher domain.DocumentFetcher, expander domain.URLExpander, log zerolog.Logger) *Resolver {
	return &Resolver{
		fetcher:  fetcher,
		expander: expander,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Resolve загружает страницу (или разбирает переданную разметку) и строит Content.
// Ошибки загрузки и разбора возвращаются как *domain.ExtractionError, повторов нет.
func (r *Resolver) Resolve(ctx context.Context, rawURL string, rawHTML []byte) (domain.Content, error) {
	start := time.Now()
	doc, err := r.fetcher.Fetch(ctx, rawURL, rawHTML)
	metrics.ExtractSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.Content{}, &domain.ExtractionError{URL: rawURL, Err: err}
	}

	canonical := strings.TrimRight(r.canonicalURL(ctx, rawURL, doc), "/")
	base := baseOf(canonical)

	return domain.Content{
		ID:             r.newID(),
		URL:            canonical,
		Title:          title(doc),
		Description:    description(doc),
		Text:           strings.TrimSpace(doc.Text),
		Published:      published(doc),
		Authors:        authors(doc),
		Image:          absolutize(base, image(doc)),
		Player:         player(doc),
		Favicon:        absolutize(base, strings.TrimSpace(doc.MetaFavicon)),
		RawHTML:        doc.HTML,
		Tags:           tags(doc),
		OpenGraphType:  strings.TrimSpace(doc.OpenGraph.String("type")),
		TwitterType:    strings.TrimSpace(doc.Twitter.String("card")),
		TwitterCreator: strings.TrimPrefix(strings.TrimSpace(doc.Twitter.String("creator")), "@"),
		ResolvedAt:     r.now(),
	}, nil
}

// canonicalURL выбирает канонический адрес: canonical-ссылка, og:url, twitter:url,
// затем конечный адрес HEAD-запроса и, наконец, исходный URL.
func (r *Resolver) canonicalURL(ctx context.Context, rawURL string, doc domain.Document) string {
	return firstOf(
		literal(doc.CanonicalLink),
		meta(doc.OpenGraph, "url"),
		meta(doc.Twitter, "url"),
		func() string {
			if r.expander == nil {
				return ""
			}
			final, err := r.expander.Expand(ctx, rawURL)
			if err != nil {
				r.log.Debug().Err(err).Str("url", rawURL).Msg("content: HEAD-запрос не удался, оставляем исходный URL")
				return ""
			}
			return final
		},
		literal(rawURL),
	)
}

func title(doc domain.Document) string {
	return firstOf(
		literal(doc.Title),
		meta(doc.OpenGraph, "title"),
		meta(doc.Twitter, "title"),
	)
}

func description(doc domain.Document) string {
	return firstOf(
		literal(doc.Summary),
		literal(doc.MetaDescription),
		meta(doc.OpenGraph, "description"),
		meta(doc.Twitter, "description"),
	)
}

func published(doc domain.Document) *time.Time {
	raw := firstOf(
		literal(doc.PublishedDate),
		meta(doc.OpenGraph, "article", "published_time"),
	)
	if raw == "" {
		return nil
	}
	ts, err := dateparse.ParseAny(raw)
	if err != nil {
		return nil
	}
	ts = ts.UTC()
	return &ts
}

func authors(doc domain.Document) string {
	return firstOf(
		func() string {
			names := make([]string, 0, len(doc.Authors))
			for _, a := range doc.Authors {
				if a = strings.TrimSpace(a); a != "" {
					names = append(names, a)
				}
			}
			return strings.Join(names, ", ")
		},
		meta(doc.OpenGraph, "article", "author"),
	)
}

func image(doc domain.Document) string {
	return firstOf(
		literal(doc.TopImage),
		meta(doc.OpenGraph, "image"),
		func() string { return twitterImage(doc.Twitter) },
	)
}

// twitterImage учитывает, что картинка бывает в twitter:image:src, а не в twitter:image.
func twitterImage(tw domain.MetaMap) string {
	switch v := tw.Get("image").(type) {
	case string:
		return v
	case domain.MetaMap:
		if src, ok := v["src"].(string); ok && strings.TrimSpace(src) != "" {
			return src
		}
		if own, ok := v[""].(string); ok {
			return own
		}
	}
	return ""
}

func player(doc domain.Document) string {
	return firstOf(
		meta(doc.Twitter, "player", "url"),
		meta(doc.Twitter, "player"),
	)
}

func tags(doc domain.Document) string {
	candidates := make([]string, 0, len(doc.Keywords)+len(doc.MetaKeywords)+len(doc.Tags)+2)
	candidates = append(candidates, doc.Keywords...)
	candidates = append(candidates, doc.MetaKeywords...)
	candidates = append(candidates, doc.Tags...)
	candidates = append(candidates, strings.Split(doc.OpenGraph.String("tag"), ",")...)
	candidates = append(candidates, doc.OpenGraph.String("section"))

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, tag := range candidates {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return strings.Join(out, ", ")
}

// baseOf возвращает scheme://host канонического адреса.
func baseOf(canonical string) *url.URL {
	u, err := url.Parse(canonical)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
}

func absolutize(base *url.URL, ref string) string {
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if base == nil {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}
