package content

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bonfire/internal/domain"
)

type fakeFetcher struct {
	doc     domain.Document
	err     error
	gotHTML []byte
	calls   int
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string, rawHTML []byte) (domain.Document, error) {
	f.calls++
	f.gotHTML = rawHTML
	if f.err != nil {
		return domain.Document{}, f.err
	}
	doc := f.doc
	doc.URL = rawURL
	if doc.OpenGraph == nil {
		doc.OpenGraph = domain.MetaMap{}
	}
	if doc.Twitter == nil {
		doc.Twitter = domain.MetaMap{}
	}
	return doc, nil
}

type fakeExpander struct {
	final string
	err   error
	calls int
}

func (e *fakeExpander) Expand(context.Context, string) (string, error) {
	e.calls++
	return e.final, e.err
}

func newTestResolver(doc domain.Document, expander *fakeExpander) (*Resolver, *fakeFetcher) {
	f := &fakeFetcher{doc: doc}
	var exp domain.URLExpander
	if expander != nil {
		exp = expander
	}
	r := NewResolver(f, exp, zerolog.Nop())
	r.newID = func() string { return "content-1" }
	r.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return r, f
}

func TestCanonicalLinkWins(t *testing.T) {
	doc := domain.Document{
		CanonicalLink: "  https://example.com/a/  ",
		OpenGraph:     domain.MetaMap{"url": "https://og.example.com/b"},
		Twitter:       domain.MetaMap{"url": "https://tw.example.com/c"},
	}
	exp := &fakeExpander{final: "https://head.example.com/d"}
	r, _ := newTestResolver(doc, exp)
	c, err := r.Resolve(context.Background(), "https://bit.ly/x", nil)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if c.URL != "https://example.com/a" {
		t.Fatalf("ожидали canonical без слеша, получили %q", c.URL)
	}
	if exp.calls != 0 {
		t.Fatalf("HEAD-запрос не должен выполняться при найденном canonical")
	}
}

func TestCanonicalFallbackOrder(t *testing.T) {
	cases := []struct {
		name string
		doc  domain.Document
		exp  *fakeExpander
		want string
	}{
		{
			name: "og url",
			doc:  domain.Document{OpenGraph: domain.MetaMap{"url": " https://og.example.com/b/ "}, Twitter: domain.MetaMap{"url": "https://tw.example.com/c"}},
			exp:  &fakeExpander{final: "https://head.example.com"},
			want: "https://og.example.com/b",
		},
		{
			name: "twitter url",
			doc:  domain.Document{Twitter: domain.MetaMap{"url": "https://tw.example.com/c"}},
			exp:  &fakeExpander{final: "https://head.example.com"},
			want: "https://tw.example.com/c",
		},
		{
			name: "head redirect",
			doc:  domain.Document{},
			exp:  &fakeExpander{final: "https://head.example.com/final/"},
			want: "https://head.example.com/final",
		},
		{
			name: "head failure",
			doc:  domain.Document{},
			exp:  &fakeExpander{err: errors.New("timeout")},
			want: "https://bit.ly/x",
		},
		{
			name: "head empty",
			doc:  domain.Document{},
			exp:  &fakeExpander{},
			want: "https://bit.ly/x",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := newTestResolver(tc.doc, tc.exp)
			c, err := r.Resolve(context.Background(), "https://bit.ly/x", nil)
			if err != nil {
				t.Fatalf("не ожидали ошибку: %v", err)
			}
			if c.URL != tc.want {
				t.Fatalf("ожидали %q, получили %q", tc.want, c.URL)
			}
		})
	}
}

func TestFieldFallbacks(t *testing.T) {
	doc := domain.Document{
		CanonicalLink:   "https://example.com/post",
		Title:           "   ",
		MetaDescription: "мета-описание",
		Text:            "  тело  ",
		OpenGraph: domain.MetaMap{
			"title":       "OG заголовок",
			"description": "OG описание",
			"type":        "article",
			"article":     domain.MetaMap{"published_time": "2026-02-10T10:00:00Z", "author": "OG Автор"},
		},
		Twitter: domain.MetaMap{
			"title":   "TW заголовок",
			"card":    "summary",
			"creator": "@gopher",
			"player":  domain.MetaMap{"url": "https://example.com/player"},
		},
	}
	r, _ := newTestResolver(doc, nil)
	c, err := r.Resolve(context.Background(), "https://example.com/post", nil)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if c.Title != "OG заголовок" {
		t.Fatalf("ожидали заголовок из og, получили %q", c.Title)
	}
	if c.Description != "мета-описание" {
		t.Fatalf("ожидали meta description, получили %q", c.Description)
	}
	if c.Text != "тело" {
		t.Fatalf("неожиданный текст %q", c.Text)
	}
	if c.Authors != "OG Автор" {
		t.Fatalf("ожидали автора из og, получили %q", c.Authors)
	}
	if c.Published == nil || !c.Published.Equal(time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("ожидали дату публикации из og, получили %v", c.Published)
	}
	if c.OpenGraphType != "article" || c.TwitterType != "summary" || c.TwitterCreator != "gopher" {
		t.Fatalf("неожиданные типы: %q %q %q", c.OpenGraphType, c.TwitterType, c.TwitterCreator)
	}
	if c.Player != "https://example.com/player" {
		t.Fatalf("ожидали player.url, получили %q", c.Player)
	}
	if c.ID != "content-1" || c.ResolvedAt.IsZero() {
		t.Fatalf("ожидали заполненные служебные поля")
	}
}

func TestDocumentFieldsBeatMeta(t *testing.T) {
	doc := domain.Document{
		CanonicalLink: "https://example.com/post",
		Title:         "Заголовок",
		Summary:       "Выжимка",
		PublishedDate: " 2025-12-31 ",
		Authors:       []string{"Анна", " ", "Борис"},
		OpenGraph: domain.MetaMap{
			"title":       "OG заголовок",
			"description": "OG описание",
			"article":     domain.MetaMap{"published_time": "2026-02-10T10:00:00Z", "author": "OG Автор"},
		},
	}
	r, _ := newTestResolver(doc, nil)
	c, err := r.Resolve(context.Background(), "https://example.com/post", nil)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if c.Title != "Заголовок" || c.Description != "Выжимка" {
		t.Fatalf("ожидали поля документа, получили %q / %q", c.Title, c.Description)
	}
	if c.Authors != "Анна, Борис" {
		t.Fatalf("ожидали авторов через запятую, получили %q", c.Authors)
	}
	if c.Published == nil || c.Published.Year() != 2025 {
		t.Fatalf("ожидали дату документа, получили %v", c.Published)
	}
}

func TestUnparseableDateIsDropped(t *testing.T) {
	doc := domain.Document{CanonicalLink: "https://example.com/post", PublishedDate: "когда-то давно"}
	r, _ := newTestResolver(doc, nil)
	c, err := r.Resolve(context.Background(), "https://example.com/post", nil)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if c.Published != nil {
		t.Fatalf("ожидали пустую дату, получили %v", c.Published)
	}
}

func TestTwitterImageNestedSrc(t *testing.T) {
	doc := domain.Document{
		CanonicalLink: "https://example.com/post",
		Twitter:       domain.MetaMap{"image": domain.MetaMap{"src": "https://cdn.example.com/cover.png"}},
	}
	r, _ := newTestResolver(doc, nil)
	c, err := r.Resolve(context.Background(), "https://example.com/post", nil)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if c.Image != "https://cdn.example.com/cover.png" {
		t.Fatalf("ожидали src из вложенного объекта, получили %q", c.Image)
	}
}

func TestImagePrecedence(t *testing.T) {
	doc := domain.Document{
		CanonicalLink: "https://example.com/post",
		OpenGraph:     domain.MetaMap{"image": "https://cdn.example.com/og.png"},
		Twitter:       domain.MetaMap{"image": "https://cdn.example.com/tw.png"},
	}
	r, _ := newTestResolver(doc, nil)
	c, _ := r.Resolve(context.Background(), "https://example.com/post", nil)
	if c.Image != "https://cdn.example.com/og.png" {
		t.Fatalf("ожидали og:image, получили %q", c.Image)
	}
}

func TestRelativeURLsUseCanonicalHost(t *testing.T) {
	doc := domain.Document{
		OpenGraph:   domain.MetaMap{"image": "/img/cover.png"},
		MetaFavicon: "favicon.ico",
	}
	exp := &fakeExpander{final: "https://news.example.org/2026/story"}
	r, _ := newTestResolver(doc, exp)
	c, err := r.Resolve(context.Background(), "https://bit.ly/abc", nil)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if c.Image != "https://news.example.org/img/cover.png" {
		t.Fatalf("картинка должна строиться от канонического хоста, получили %q", c.Image)
	}
	if c.Favicon != "https://news.example.org/favicon.ico" {
		t.Fatalf("favicon должен строиться от канонического хоста, получили %q", c.Favicon)
	}
	if strings.Contains(c.Image+c.Favicon, "bit.ly") {
		t.Fatalf("домен короткой ссылки не должен попадать в результат")
	}
}

func TestEmptyImageStaysEmpty(t *testing.T) {
	r, _ := newTestResolver(domain.Document{CanonicalLink: "https://example.com/post"}, nil)
	c, _ := r.Resolve(context.Background(), "https://example.com/post", nil)
	if c.Image != "" || c.Favicon != "" {
		t.Fatalf("ожидали пустые картинки, получили %q / %q", c.Image, c.Favicon)
	}
}

func TestTagsAreDeduplicated(t *testing.T) {
	doc := domain.Document{
		CanonicalLink: "https://example.com/post",
		Keywords:      []string{"go", "release"},
		MetaKeywords:  []string{"go", ""},
		Tags:          []string{"runtime", "release"},
		OpenGraph:     domain.MetaMap{"tag": "go, compilers,,runtime", "section": "tech"},
	}
	r, _ := newTestResolver(doc, nil)
	c, _ := r.Resolve(context.Background(), "https://example.com/post", nil)
	if c.Tags != "go, release, runtime, compilers, tech" {
		t.Fatalf("неожиданные теги %q", c.Tags)
	}
	seen := map[string]bool{}
	for _, tag := range strings.Split(c.Tags, ", ") {
		if seen[tag] {
			t.Fatalf("тег %q повторяется", tag)
		}
		seen[tag] = true
	}
}

func TestRawHTMLIsPassedToFetcher(t *testing.T) {
	r, f := newTestResolver(domain.Document{CanonicalLink: "https://example.com/post", HTML: "<html></html>"}, nil)
	html := []byte("<html></html>")
	c, err := r.Resolve(context.Background(), "https://example.com/post", html)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if string(f.gotHTML) != "<html></html>" {
		t.Fatalf("ожидали передачу разметки загрузчику")
	}
	if c.RawHTML != "<html></html>" {
		t.Fatalf("ожидали сохранение разметки в Content")
	}
}

func TestFetchErrorBecomesExtractionError(t *testing.T) {
	f := &fakeFetcher{err: errors.New("connection reset")}
	r := NewResolver(f, nil, zerolog.Nop())
	_, err := r.Resolve(context.Background(), "https://example.com/broken", nil)
	var extractErr *domain.ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("ожидали ExtractionError, получили %v", err)
	}
	if extractErr.URL != "https://example.com/broken" {
		t.Fatalf("ошибка должна содержать URL, получили %q", extractErr.URL)
	}
	if f.calls != 1 {
		t.Fatalf("резолвер не должен повторять загрузку, было %d вызовов", f.calls)
	}
}

func TestFirstOfIsLazy(t *testing.T) {
	var evaluated []string
	mk := func(name, value string) candidate {
		return func() string {
			evaluated = append(evaluated, name)
			return value
		}
	}
	got := firstOf(mk("a", " "), mk("b", " значение "), mk("c", "лишнее"))
	if got != "значение" {
		t.Fatalf("ожидали обрезанное значение, получили %q", got)
	}
	if strings.Join(evaluated, ",") != "a,b" {
		t.Fatalf("кандидаты после первого непустого не должны вычисляться: %v", evaluated)
	}
}
