package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/corpus/corpustest"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	if err != nil {
		return out.String() + errOut.String(), err
	}
	return out.String(), nil
}

func writeReferencedUnit(t *testing.T, root string) {
	t.Helper()
	corpustest.Write(t, root, corpustest.Fixture{
		MethodologyID: "AM0002",
		Version:       "v3",
		Rich:          true,
		Sections:      []corpus.SectionEntry{{ID: "s1", Title: "Monitoring"}},
		Rules: []corpus.RuleEntry{{
			ID:        "R1",
			SectionID: "s1",
			Text:      "flare efficiency monitoring",
			Refs: corpus.RuleRefs{
				Sections: []string{"s1", "s9"},
				Tools:    []string{"T1", "T2"},
			},
		}},
		Tools: []corpus.ToolRef{{DocID: "T1", Kind: "tool", Path: "tools/t1.xlsx", SHA256: "abc123"}},
	})
}

func TestQueryRequiresArgument(t *testing.T) {
	out, err := execute(t)
	require.Error(t, err)
	assert.Contains(t, out, "Usage:")
}

func TestQueryEmptyRoot(t *testing.T) {
	_, err := execute(t, "--root", t.TempDir(), "monitoring")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rule artifacts found")
}

func TestQueryTextOutput(t *testing.T) {
	root := t.TempDir()
	corpustest.TwoDocs(t, root)

	out, err := execute(t, "--root", root, "monitoring")
	require.NoError(t, err)
	assert.Contains(t, out, "1. AM0001@v1:A  score=0.693147")
	assert.Contains(t, out, "monitoring plan requires annual inspection")
	assert.NotContains(t, out, "AM0001@v1:B")
}

func TestQueryJoinsArguments(t *testing.T) {
	root := t.TempDir()
	corpustest.TwoDocs(t, root)

	out, err := execute(t, "--root", root, "--k", "1", "baseline", "monitoring")
	require.NoError(t, err)
	assert.Contains(t, out, "1. ")
	assert.NotContains(t, out, "2. ")
}

func TestQueryNoMatches(t *testing.T) {
	root := t.TempDir()
	corpustest.TwoDocs(t, root)

	out, err := execute(t, "--root", root, "zzz")
	require.NoError(t, err)
	assert.Equal(t, "No results for \"zzz\"\n", out)
}

func TestQueryResolvesReferences(t *testing.T) {
	root := t.TempDir()
	writeReferencedUnit(t, root)

	out, err := execute(t, "--root", root, "flare")
	require.NoError(t, err)
	assert.Contains(t, out, "section: s1 Monitoring")
	assert.Contains(t, out, "refs: s1 (Monitoring), s9")
	assert.Contains(t, out, "tool: T1 tool tools/t1.xlsx sha256=abc123")
	assert.Contains(t, out, "tool: T2 (unresolved)")
}

func TestQueryJSONOutput(t *testing.T) {
	root := t.TempDir()
	writeReferencedUnit(t, root)
	corpustest.TwoDocs(t, root)

	out, err := execute(t, "--root", root, "--format", "json", "flare", "monitoring")
	require.NoError(t, err)

	var resp struct {
		Query   string `json:"query"`
		TopK    int    `json:"top_k"`
		Results []struct {
			Rank  int     `json:"rank"`
			DocID string  `json:"doc_id"`
			Score float64 `json:"score"`
			Tools []struct {
				DocID    string `json:"doc_id"`
				Resolved bool   `json:"resolved"`
			} `json:"tools"`
		} `json:"results"`
		Audit corpus.Audit `json:"audit"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "flare monitoring", resp.Query)
	assert.Equal(t, 5, resp.TopK)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.Equal(t, "AM0002@v3:R1", resp.Results[0].DocID)
	require.Len(t, resp.Results[0].Tools, 2)
	assert.True(t, resp.Results[0].Tools[0].Resolved)
	assert.False(t, resp.Results[0].Tools[1].Resolved)
	assert.Equal(t, 3, resp.Audit.BM25.Documents)
}

func TestQueryRejectsUnknownFormat(t *testing.T) {
	root := t.TempDir()
	corpustest.TwoDocs(t, root)

	_, err := execute(t, "--root", root, "--format", "yaml", "monitoring")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}
