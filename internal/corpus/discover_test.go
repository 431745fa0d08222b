package corpus_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/corpus/corpustest"
)

func TestDiscoverPrefersRichArtifacts(t *testing.T) {
	root := t.TempDir()
	rich := corpustest.Write(t, root, corpustest.Fixture{
		MethodologyID: "AM0002", Version: "v2",
		Rules: []corpus.RuleEntry{{ID: "R1", Summary: "rich rule"}},
		Rich:  true,
	})
	// Lean sibling in the same directory must be ignored.
	require.NoError(t, os.WriteFile(filepath.Join(rich, corpus.LeanRulesFile),
		[]byte(`{"rules":[{"id":"R1","text":"lean rule"}]}`), 0o644))

	corpustest.Write(t, root, corpustest.Fixture{
		MethodologyID: "AM0001", Version: "v1",
		Rules:  []corpus.RuleEntry{{ID: "R1", Text: "lean only"}},
		NoMeta: true,
	})

	units, err := corpus.Discover(root)
	require.NoError(t, err)
	require.Len(t, units, 2)

	assert.Equal(t, "AM0001", units[0].MethodologyID)
	assert.Equal(t, "v1", units[0].Version)
	assert.Equal(t, corpus.LeanRulesFile, units[0].RulesFile)

	assert.Equal(t, "AM0002", units[1].MethodologyID)
	assert.Equal(t, corpus.RichRulesFile, units[1].RulesFile)

	c, err := corpus.Load(context.Background(), units)
	require.NoError(t, err)
	require.Len(t, c.Records, 2)
	assert.Equal(t, "rich rule", c.Records[1].Text)
}

func TestDiscoverMissingRoot(t *testing.T) {
	_, err := corpus.Discover(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestDiscoverEmptyRoot(t *testing.T) {
	units, err := corpus.Discover(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, units)
}
