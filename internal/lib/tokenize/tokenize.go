package tokenize

import (
	"strings"
	"unicode"
)

// Terms разбивает текст на термы в нижнем регистре: непрерывные последовательности букв и цифр.
func Terms(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// UniqueTerms — как Terms, но без повторов, в порядке первого появления.
func UniqueTerms(s string) []string {
	terms := Terms(s)
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
