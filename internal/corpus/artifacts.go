package corpus

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"
)

// Artifact file names inside a source unit directory.
const (
	RichRulesFile = "rules.rich.json"
	LeanRulesFile = "rules.json"
	SectionsFile  = "sections.json"
	MetaFile      = "META.json"
)

// RuleEntry is one rule as written by the ingestion pipeline. Lean artifacts
// carry Text; rich artifacts usually carry Summary and Refs instead.
type RuleEntry struct {
	ID        string   `json:"id"`
	SectionID string   `json:"section_id"`
	Title     string   `json:"title,omitempty"`
	Text      string   `json:"text,omitempty"`
	Summary   string   `json:"summary,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Refs      RuleRefs `json:"refs"`
}

// RuleRefs lists sections and external tools a rich rule points at.
type RuleRefs struct {
	Sections []string `json:"sections,omitempty"`
	Tools    []string `json:"tools,omitempty"`
}

// Body returns the rule text used for display and indexing.
func (r RuleEntry) Body() string {
	if r.Text != "" {
		return r.Text
	}
	return r.Summary
}

// SectionEntry is one section of the source document.
type SectionEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Meta is the per-unit metadata artifact.
type Meta struct {
	ID          string      `json:"id"`
	Version     string      `json:"version"`
	AuditHashes AuditHashes `json:"audit_hashes"`
	References  References  `json:"references"`
}

// AuditHashes records the expected digests of the unit's artifacts.
type AuditHashes struct {
	Rules     string `json:"rules_sha256,omitempty"`
	RichRules string `json:"rules_rich_sha256,omitempty"`
	Sections  string `json:"sections_sha256,omitempty"`
}

// ForRules returns the recorded digest for the given rules artifact name.
func (h AuditHashes) ForRules(file string) string {
	if file == RichRulesFile {
		return h.RichRules
	}
	return h.Rules
}

type References struct {
	Tools []ToolRef `json:"tools,omitempty"`
}

// ToolRef is an external document (calculation tool, guideline) a
// methodology depends on.
type ToolRef struct {
	DocID  string `json:"doc_id"`
	Kind   string `json:"kind"`
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// Complete reports whether every provenance field is present.
func (t ToolRef) Complete() bool {
	return t.DocID != "" && t.Kind != "" && t.Path != "" && t.SHA256 != ""
}

// ParseRules decodes a rules artifact. Both a bare array and an object with
// a "rules" field are accepted; comments and trailing commas are stripped.
func ParseRules(data []byte) ([]RuleEntry, error) {
	var rules []RuleEntry
	if err := decodeList(data, "rules", &rules); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}
	return rules, nil
}

// ParseSections decodes a sections artifact, in the same shapes as ParseRules.
func ParseSections(data []byte) ([]SectionEntry, error) {
	var sections []SectionEntry
	if err := decodeList(data, "sections", &sections); err != nil {
		return nil, fmt.Errorf("parsing sections: %w", err)
	}
	return sections, nil
}

// ParseMeta decodes a META artifact.
func ParseMeta(data []byte) (*Meta, error) {
	var meta Meta
	if err := json.Unmarshal(jsonc.ToJSON(data), &meta); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}
	return &meta, nil
}

func decodeList(data []byte, field string, out any) error {
	stripped := bytes.TrimSpace(jsonc.ToJSON(data))
	if len(stripped) == 0 {
		return fmt.Errorf("empty document")
	}
	if stripped[0] == '[' {
		return json.Unmarshal(stripped, out)
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(stripped, &wrapper); err != nil {
		return err
	}
	raw, ok := wrapper[field]
	if !ok {
		return fmt.Errorf("missing %q field", field)
	}
	return json.Unmarshal(raw, out)
}
