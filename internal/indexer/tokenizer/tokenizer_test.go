package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"tool reference", "Tool-14 v4.2", []string{"tool", "14", "v4", "2"}},
		{"empty", "", []string{}},
		{"only separators", " -- ,, ..", []string{}},
		{"keeps duplicates", "plan PLAN plan", []string{"plan", "plan", "plan"}},
		{"keeps short tokens", "a b 1", []string{"a", "b", "1"}},
		{"no stemming", "monitoring monitored", []string{"monitoring", "monitored"}},
		{"underscore splits", "rule_id", []string{"rule", "id"}},
		{"non-ascii splits", "café-crème", []string{"caf", "cr", "me"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Tokenize(tc.in))
		})
	}
}

func TestUnique(t *testing.T) {
	got := Unique([]string{"b", "a", "b", "c", "a"})
	assert.Equal(t, []string{"b", "a", "c"}, got)
	assert.Empty(t, Unique(nil))
}
