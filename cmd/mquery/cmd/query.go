package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/searcher/executor"
)

// cliResult is the JSON shape of one hit, with references resolved.
type cliResult struct {
	Rank int `json:"rank"`
	executor.Result
	Sections []sectionRef `json:"sections,omitempty"`
	Tools    []toolRef    `json:"tools,omitempty"`
}

type sectionRef struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

type toolRef struct {
	DocID    string `json:"doc_id"`
	Kind     string `json:"kind,omitempty"`
	Path     string `json:"path,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Resolved bool   `json:"resolved"`
}

func runQuery(ctx context.Context, out io.Writer, args []string, opts options) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q (want text or json)", opts.format)
	}
	query := strings.Join(args, " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("query is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	units, err := corpus.Discover(opts.root)
	if err != nil {
		return fmt.Errorf("discovering units under %s: %w", opts.root, err)
	}
	if len(units) == 0 {
		return fmt.Errorf("no rule artifacts found under %s", opts.root)
	}
	c, err := corpus.Load(ctx, units)
	if err != nil {
		return err
	}
	if len(c.Records) == 0 {
		return fmt.Errorf("no rules loaded from %d units under %s", len(units), opts.root)
	}

	exec := executor.New(c)
	resp, err := exec.Search(ctx, query, opts.topK)
	if err != nil {
		return err
	}
	results := resolve(c, resp.Results)

	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Query   string       `json:"query"`
			TopK    int          `json:"top_k"`
			Results []cliResult  `json:"results"`
			Audit   corpus.Audit `json:"audit"`
		}{resp.Query, resp.TopK, results, resp.Audit})
	}
	return printText(out, query, results)
}

// resolve attaches referenced section titles and tool provenance from the
// unit each hit came from.
func resolve(c *corpus.Corpus, hits []executor.Result) []cliResult {
	results := make([]cliResult, 0, len(hits))
	for i, hit := range hits {
		res := cliResult{Rank: i + 1, Result: hit}
		rec, ok := c.Record(hit.DocID)
		if !ok {
			results = append(results, res)
			continue
		}
		info := c.UnitOf(rec)
		for _, id := range rec.RefSections {
			ref := sectionRef{ID: id}
			if info != nil {
				ref.Title = info.Sections[id]
			}
			res.Sections = append(res.Sections, ref)
		}
		for _, id := range rec.RefTools {
			ref := toolRef{DocID: id}
			if info != nil {
				if tool, found := info.Tools[id]; found {
					ref.Kind = tool.Kind
					ref.Path = tool.Path
					ref.SHA256 = tool.SHA256
					ref.Resolved = true
				}
			}
			res.Tools = append(res.Tools, ref)
		}
		results = append(results, res)
	}
	return results
}

func printText(out io.Writer, query string, results []cliResult) error {
	if len(results) == 0 {
		_, err := fmt.Fprintf(out, "No results for %q\n", query)
		return err
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "%d. %s  score=%.6f\n", r.Rank, r.DocID, r.Score)
		section := r.SectionID
		if r.SectionTitle != "" {
			section += " " + r.SectionTitle
		}
		fmt.Fprintf(&b, "   section: %s\n", section)
		if len(r.Sections) > 0 {
			refs := make([]string, 0, len(r.Sections))
			for _, s := range r.Sections {
				if s.Title != "" {
					refs = append(refs, fmt.Sprintf("%s (%s)", s.ID, s.Title))
				} else {
					refs = append(refs, s.ID)
				}
			}
			fmt.Fprintf(&b, "   refs: %s\n", strings.Join(refs, ", "))
		}
		fmt.Fprintf(&b, "   %s\n", r.Text)
		for _, t := range r.Tools {
			if !t.Resolved {
				fmt.Fprintf(&b, "   tool: %s (unresolved)\n", t.DocID)
				continue
			}
			fmt.Fprintf(&b, "   tool: %s %s %s sha256=%s\n", t.DocID, t.Kind, t.Path, t.SHA256)
		}
	}
	_, err := io.WriteString(out, b.String())
	return err
}
