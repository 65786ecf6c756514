package content

import (
	"strings"

	"bonfire/internal/domain"
)

// candidate лениво производит значение поля.
type candidate func() string

// firstOf вычисляет кандидатов по порядку и возвращает первое непустое значение после TrimSpace.
// Оставшиеся кандидаты не вызываются.
func firstOf(candidates ...candidate) string {
	for _, c := range candidates {
		if v := strings.TrimSpace(c()); v != "" {
			return v
		}
	}
	return ""
}

func literal(v string) candidate {
	return func() string { return v }
}

func meta(m domain.MetaMap, path ...string) candidate {
	return func() string { return m.String(path...) }
}
