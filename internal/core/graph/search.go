package graph

import (
	"slices"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agenthands/argus/internal/core/model"
)

// FindByName returns entities whose canonical name or an alias occurs in text as a whole
// phrase, compared case-insensitively. Results are ordered by id.
func (g *Index) FindByName(text string) []model.Entity {
	haystack := strings.ToLower(text)

	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []model.Entity
	for _, e := range g.entities {
		names := append([]string{e.Name}, e.Aliases...)
		if slices.ContainsFunc(names, func(n string) bool {
			return containsPhrase(haystack, strings.ToLower(strings.TrimSpace(n)))
		}) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func containsPhrase(haystack, needle string) bool {
	if utf8.RuneCountInString(needle) < 2 {
		return false
	}
	for offset := 0; ; {
		i := strings.Index(haystack[offset:], needle)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(needle)
		if boundaryBefore(haystack, start) && boundaryAfter(haystack, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(haystack[start:])
		offset = start + size
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
