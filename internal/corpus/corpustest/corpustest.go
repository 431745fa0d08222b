// Package corpustest writes methodology unit fixtures for tests.
package corpustest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/corpus"
)

// Fixture describes one unit directory to write.
type Fixture struct {
	MethodologyID string
	Version       string
	Rules         []corpus.RuleEntry
	Sections      []corpus.SectionEntry
	Tools         []corpus.ToolRef
	// Rich writes rules.rich.json instead of rules.json.
	Rich bool
	// RecordHashes stores the SHA-256 of the written artifacts in META.json.
	RecordHashes bool
	// NoMeta skips META.json entirely.
	NoMeta bool
}

// Write creates <root>/<methodology>/<version>/ with the fixture's artifacts
// and returns the unit directory.
func Write(t testing.TB, root string, f Fixture) string {
	t.Helper()
	dir := filepath.Join(root, f.MethodologyID, f.Version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating unit dir: %v", err)
	}

	rulesFile := corpus.LeanRulesFile
	if f.Rich {
		rulesFile = corpus.RichRulesFile
	}
	rulesData := mustJSON(t, map[string]any{"rules": f.Rules})
	writeFile(t, filepath.Join(dir, rulesFile), rulesData)

	var sectionsData []byte
	if f.Sections != nil {
		sectionsData = mustJSON(t, map[string]any{"sections": f.Sections})
		writeFile(t, filepath.Join(dir, corpus.SectionsFile), sectionsData)
	}

	if f.NoMeta {
		return dir
	}
	meta := corpus.Meta{
		ID:         f.MethodologyID,
		Version:    f.Version,
		References: corpus.References{Tools: f.Tools},
	}
	if f.RecordHashes {
		rulesHash, _ := corpus.Digest(corpus.AlgoSHA256, rulesData)
		if f.Rich {
			meta.AuditHashes.RichRules = rulesHash
		} else {
			meta.AuditHashes.Rules = rulesHash
		}
		if sectionsData != nil {
			meta.AuditHashes.Sections, _ = corpus.Digest(corpus.AlgoSHA256, sectionsData)
		}
	}
	writeFile(t, filepath.Join(dir, corpus.MetaFile), mustJSON(t, meta))
	return dir
}

// TwoDocs writes the two-document corpus used across package tests: one rule
// about monitoring and one about the baseline scenario.
func TwoDocs(t testing.TB, root string) string {
	t.Helper()
	return Write(t, root, Fixture{
		MethodologyID: "AM0001",
		Version:       "v1",
		Rules: []corpus.RuleEntry{
			{ID: "A", Text: "monitoring plan requires annual inspection", Tags: []string{"monitoring"}},
			{ID: "B", Text: "baseline scenario assumes no change", Tags: []string{"baseline"}},
		},
		RecordHashes: true,
	})
}

// LoadTwoDocs writes TwoDocs into a temp dir and loads it.
func LoadTwoDocs(t testing.TB) *corpus.Corpus {
	t.Helper()
	root := t.TempDir()
	dir := TwoDocs(t, root)
	c, err := corpus.Load(context.Background(), []corpus.Unit{
		{MethodologyID: "AM0001", Version: "v1", Dir: dir},
	})
	if err != nil {
		t.Fatalf("loading fixture corpus: %v", err)
	}
	return c
}

func mustJSON(t testing.TB, v any) []byte {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	return data
}

func writeFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}
