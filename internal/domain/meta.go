package domain

import "strings"

// MetaMap хранит дерево мета-свойств страницы: twitter:image:src становится ["image"]["src"].
type MetaMap map[string]any

// Set добавляет значение по пути ключа. Повторные значения не перезаписывают первое,
// кроме ключей из appendKeys, которые склеиваются через запятую.
func (m MetaMap) Set(path []string, value string, appendKeys ...string) {
	if len(path) == 0 {
		return
	}
	node := m
	for _, part := range path[:len(path)-1] {
		switch existing := node[part].(type) {
		case MetaMap:
			node = existing
		case string:
			child := MetaMap{"": existing}
			node[part] = child
			node = child
		default:
			child := MetaMap{}
			node[part] = child
			node = child
		}
	}
	leaf := path[len(path)-1]
	switch existing := node[leaf].(type) {
	case MetaMap:
		if _, ok := existing[""]; !ok {
			existing[""] = value
		}
	case string:
		for _, key := range appendKeys {
			if key == leaf {
				node[leaf] = existing + "," + value
				return
			}
		}
	default:
		node[leaf] = value
	}
}

// Get возвращает значение по пути или nil.
func (m MetaMap) Get(path ...string) any {
	var current any = m
	for _, part := range path {
		node, ok := current.(MetaMap)
		if !ok {
			return nil
		}
		current, ok = node[part]
		if !ok {
			return nil
		}
	}
	return current
}

// String возвращает строковое значение по пути. Для вложенного узла берётся его собственное значение.
func (m MetaMap) String(path ...string) string {
	switch v := m.Get(path...).(type) {
	case string:
		return v
	case MetaMap:
		if s, ok := v[""].(string); ok {
			return s
		}
	}
	return ""
}

// SplitMetaKey разбивает ключ вида "og:image:width" на части.
func SplitMetaKey(key string) []string {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(key)), ":")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
