package enforce

import (
	"sort"
	"strings"
)

// PrefixTable resolves a path to a value by longest-prefix match. Rules are
// data, not conditionals: classification tables are built once from
// configuration and shared read-only between concurrent evaluations.
type PrefixTable[T any] struct {
	rules []prefixRule[T]
}

type prefixRule[T any] struct {
	prefix string
	value  T
}

// NewPrefixTable builds a table from prefix→value pairs. Longer prefixes
// win; equal-length prefixes break ties lexicographically for determinism.
func NewPrefixTable[T any](rules map[string]T) *PrefixTable[T] {
	t := &PrefixTable[T]{rules: make([]prefixRule[T], 0, len(rules))}
	for prefix, value := range rules {
		t.rules = append(t.rules, prefixRule[T]{prefix: prefix, value: value})
	}
	sort.Slice(t.rules, func(i, j int) bool {
		if len(t.rules[i].prefix) != len(t.rules[j].prefix) {
			return len(t.rules[i].prefix) > len(t.rules[j].prefix)
		}
		return t.rules[i].prefix < t.rules[j].prefix
	})
	return t
}

// Resolve returns the value of the longest matching prefix rule.
func (t *PrefixTable[T]) Resolve(path string) (T, bool) {
	for _, r := range t.rules {
		if strings.HasPrefix(path, r.prefix) {
			return r.value, true
		}
	}
	var zero T
	return zero, false
}

// Len returns the number of rules.
func (t *PrefixTable[T]) Len() int {
	return len(t.rules)
}
