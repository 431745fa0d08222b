// Package corpus turns the rules, sections and metadata artifacts of each
// methodology unit into a verified, deterministically ordered list of
// retrievable records plus the audit block served with every answer.
package corpus

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/indexer/tokenizer"
)

// BM25 parameters reported in the audit block. The ranker uses the same
// values.
const (
	BM25K1 = 1.2
	BM25B  = 0.75
)

// Unit describes one methodology version on disk.
type Unit struct {
	MethodologyID string `yaml:"methodology_id" json:"methodology_id"`
	Version       string `yaml:"version" json:"version"`
	Dir           string `yaml:"dir" json:"dir"`
	// RulesFile selects the rules artifact inside Dir. Empty means the rich
	// artifact when it exists, else the lean one.
	RulesFile string `yaml:"rules_file,omitempty" json:"rules_file,omitempty"`
}

// Name is the "{methodology}@{version}" label used in logs and errors.
func (u Unit) Name() string {
	return u.MethodologyID + "@" + u.Version
}

// Record is a single retrievable rule. Records are never modified after Load
// returns.
type Record struct {
	Key           string
	MethodologyID string
	Version       string
	RuleID        string
	SectionID     string
	SectionTitle  string
	Text          string
	Tokens        []string
	Tags          []string
	RefSections   []string
	RefTools      []string
}

// Key builds the composite record key "{methodology}@{version}:{rule}".
func Key(methodologyID, version, ruleID string) string {
	return fmt.Sprintf("%s@%s:%s", methodologyID, version, ruleID)
}

// Audit is attached verbatim to every query response.
type Audit struct {
	BM25    BM25Audit          `json:"bm25"`
	Sources []SourceProvenance `json:"sources"`
}

// BM25Audit names the tokenizer and ranking parameters the index was built with.
type BM25Audit struct {
	Tokenizer string     `json:"tokenizer"`
	Params    BM25Params `json:"params"`
	Documents int        `json:"documents"`
}

// BM25Params holds the k1 and b constants.
type BM25Params struct {
	K1 float64 `json:"k1"`
	B  float64 `json:"b"`
}

// SourceProvenance records the digests of the artifacts a unit was built from.
type SourceProvenance struct {
	MethodologyID string    `json:"methodology_id"`
	Version       string    `json:"version"`
	RulesFile     string    `json:"rules_file"`
	RulesSHA256   string    `json:"rules_sha256"`
	SectionsSHA   string    `json:"sections_sha256,omitempty"`
	Tools         []ToolRef `json:"tools"`
}

// UnitInfo keeps the per-unit lookups needed to present a record: section
// titles and tool references by id.
type UnitInfo struct {
	Unit     Unit
	Sections map[string]string
	Tools    map[string]ToolRef
}

// Corpus is the output of Load.
type Corpus struct {
	Records []Record
	Audit   Audit
	Units   map[string]*UnitInfo
}

// Record returns the record with key, using binary search over the sorted
// record list.
func (c *Corpus) Record(key string) (*Record, bool) {
	i := sort.Search(len(c.Records), func(i int) bool {
		return c.Records[i].Key >= key
	})
	if i < len(c.Records) && c.Records[i].Key == key {
		return &c.Records[i], true
	}
	return nil, false
}

// UnitOf returns presentation lookups for the unit rec came from.
func (c *Corpus) UnitOf(rec *Record) *UnitInfo {
	return c.Units[rec.MethodologyID+"@"+rec.Version]
}

func newAudit(docs int, sources []SourceProvenance) Audit {
	if sources == nil {
		sources = []SourceProvenance{}
	}
	return Audit{
		BM25: BM25Audit{
			Tokenizer: tokenizer.Identifier,
			Params:    BM25Params{K1: BM25K1, B: BM25B},
			Documents: docs,
		},
		Sources: sources,
	}
}
