package corpus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/logger"
)

// ErrDuplicateKey is returned when two records resolve to the same composite
// key.
var ErrDuplicateKey = errors.New("duplicate record key")

type unitResult struct {
	records    []Record
	provenance SourceProvenance
	info       *UnitInfo
}

// Load reads, verifies and flattens every unit. Units are processed
// concurrently but the result depends only on artifact content: records are
// sorted by key and audit sources keep the order of units. Any integrity
// failure aborts the whole load.
func Load(ctx context.Context, units []Unit) (*Corpus, error) {
	log := logger.WithComponent("corpus-loader")
	results := make([]unitResult, len(units))

	g, gctx := errgroup.WithContext(ctx)
	for i, unit := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := loadUnit(unit, log)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c := &Corpus{Units: make(map[string]*UnitInfo, len(results))}
	sources := make([]SourceProvenance, 0, len(results))
	for _, res := range results {
		name := res.info.Unit.Name()
		if _, dup := c.Units[name]; dup {
			return nil, fmt.Errorf("unit %s configured more than once", name)
		}
		c.Units[name] = res.info
		c.Records = append(c.Records, res.records...)
		sources = append(sources, res.provenance)
	}
	sort.Slice(c.Records, func(i, j int) bool {
		return c.Records[i].Key < c.Records[j].Key
	})
	for i := 1; i < len(c.Records); i++ {
		if c.Records[i].Key == c.Records[i-1].Key {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, c.Records[i].Key)
		}
	}
	if c.Records == nil {
		c.Records = []Record{}
	}
	c.Audit = newAudit(len(c.Records), sources)

	log.Info("corpus loaded",
		"units", len(units),
		"records", len(c.Records),
	)
	return c, nil
}

func loadUnit(unit Unit, logger *slog.Logger) (unitResult, error) {
	meta, err := readMeta(unit.Dir)
	if err != nil {
		return unitResult{}, err
	}
	if unit.MethodologyID == "" {
		unit.MethodologyID = meta.ID
	}
	if unit.Version == "" {
		unit.Version = meta.Version
	}
	if unit.MethodologyID == "" || unit.Version == "" {
		return unitResult{}, fmt.Errorf("unit %s: methodology id and version are required", unit.Dir)
	}
	if unit.RulesFile == "" {
		unit.RulesFile = preferredRulesFile(unit.Dir)
	}
	name := unit.Name()

	rulesPath := filepath.Join(unit.Dir, unit.RulesFile)
	rulesData, err := os.ReadFile(rulesPath)
	if err != nil {
		return unitResult{}, fmt.Errorf("unit %s: reading rules: %w", name, err)
	}
	rulesHash, err := Verify(name, unit.RulesFile, rulesData, meta.AuditHashes.ForRules(unit.RulesFile))
	if err != nil {
		return unitResult{}, err
	}

	titles := make(map[string]string)
	var sectionsHash string
	sectionsData, err := os.ReadFile(filepath.Join(unit.Dir, SectionsFile))
	switch {
	case err == nil:
		sectionsHash, err = Verify(name, SectionsFile, sectionsData, meta.AuditHashes.Sections)
		if err != nil {
			return unitResult{}, err
		}
		sections, err := ParseSections(sectionsData)
		if err != nil {
			return unitResult{}, fmt.Errorf("unit %s: %w", name, err)
		}
		for _, s := range sections {
			titles[s.ID] = strings.TrimSpace(s.Title)
		}
	case errors.Is(err, fs.ErrNotExist):
		if meta.AuditHashes.Sections != "" {
			return unitResult{}, fmt.Errorf("unit %s: sections hash recorded but %s is missing", name, SectionsFile)
		}
		logger.Warn("sections artifact missing, titles unavailable", "unit", name)
	default:
		return unitResult{}, fmt.Errorf("unit %s: reading sections: %w", name, err)
	}

	rules, err := ParseRules(rulesData)
	if err != nil {
		return unitResult{}, fmt.Errorf("unit %s: %w", name, err)
	}

	records := make([]Record, 0, len(rules))
	for _, rule := range rules {
		rec, ok := buildRecord(unit, rule, titles)
		if !ok {
			logger.Warn("skipping incomplete rule", "unit", name, "rule_id", rule.ID)
			continue
		}
		records = append(records, rec)
	}

	tools := make([]ToolRef, 0, len(meta.References.Tools))
	toolIndex := make(map[string]ToolRef, len(meta.References.Tools))
	for _, t := range meta.References.Tools {
		if !t.Complete() {
			logger.Debug("dropping incomplete tool reference", "unit", name, "doc_id", t.DocID)
			continue
		}
		tools = append(tools, t)
		toolIndex[t.DocID] = t
	}

	return unitResult{
		records: records,
		provenance: SourceProvenance{
			MethodologyID: unit.MethodologyID,
			Version:       unit.Version,
			RulesFile:     unit.RulesFile,
			RulesSHA256:   rulesHash,
			SectionsSHA:   sectionsHash,
			Tools:         tools,
		},
		info: &UnitInfo{
			Unit:     unit,
			Sections: titles,
			Tools:    toolIndex,
		},
	}, nil
}

func buildRecord(unit Unit, rule RuleEntry, titles map[string]string) (Record, bool) {
	ruleID := strings.TrimSpace(rule.ID)
	body := strings.TrimSpace(rule.Body())
	if ruleID == "" || body == "" {
		return Record{}, false
	}
	title := titles[rule.SectionID]
	if title == "" {
		title = strings.TrimSpace(rule.Title)
	}
	text := body
	if title != "" {
		text = title + " - " + body
	}
	return Record{
		Key:           Key(unit.MethodologyID, unit.Version, ruleID),
		MethodologyID: unit.MethodologyID,
		Version:       unit.Version,
		RuleID:        ruleID,
		SectionID:     rule.SectionID,
		SectionTitle:  title,
		Text:          text,
		Tokens:        tokenizer.Tokenize(text),
		Tags:          normalizeTags(rule.Tags),
		RefSections:   rule.Refs.Sections,
		RefTools:      rule.Refs.Tools,
	}, true
}

// normalizeTags returns tags as a sorted set.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func readMeta(dir string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if errors.Is(err, fs.ErrNotExist) {
		return &Meta{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s in %s: %w", MetaFile, dir, err)
	}
	meta, err := ParseMeta(data)
	if err != nil {
		return nil, fmt.Errorf("%s in %s: %w", MetaFile, dir, err)
	}
	return meta, nil
}

func preferredRulesFile(dir string) string {
	if fileExists(filepath.Join(dir, RichRulesFile)) {
		return RichRulesFile
	}
	return LeanRulesFile
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
