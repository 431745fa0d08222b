// Package executor is the query service: it owns the immutable corpus and
// index built at startup and answers search(text, topK) against them.
package executor

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/tracing"
)

// Result is one ranked record as served to clients.
type Result struct {
	DocID         string   `json:"doc_id"`
	MethodologyID string   `json:"methodology_id"`
	Version       string   `json:"version"`
	RuleID        string   `json:"rule_id"`
	SectionID     string   `json:"section_id"`
	SectionTitle  string   `json:"section_title"`
	Score         float64  `json:"score"`
	Text          string   `json:"text"`
	Tags          []string `json:"tags"`
}

// Response is the full answer to a query, audit block included.
type Response struct {
	Query   string       `json:"query"`
	TopK    int          `json:"top_k"`
	Results []Result     `json:"results"`
	Audit   corpus.Audit `json:"audit"`
}

// ResultCache memoises ranked results by normalised query terms. compute is
// called on a miss; hit reports whether the value came from the cache.
type ResultCache interface {
	GetOrCompute(ctx context.Context, terms []string, topK int, compute func() ([]Result, error)) (results []Result, hit bool, err error)
}

type Option func(*Executor)

func WithCache(c ResultCache) Option {
	return func(e *Executor) { e.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// Executor is safe for concurrent use. Nothing it holds is written after New
// returns.
type Executor struct {
	corpus  *corpus.Corpus
	index   *index.Index
	cache   ResultCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New indexes c once. The corpus must not be modified afterwards.
func New(c *corpus.Corpus, opts ...Option) *Executor {
	e := &Executor{
		corpus: c,
		logger: logger.WithComponent("query-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	start := time.Now()
	e.index = index.Build(c.Records)
	e.logger.Info("index built",
		"documents", e.index.DocCount(),
		"terms", e.index.TermCount(),
		"avg_doc_length", e.index.AvgDocLength(),
		"duration", time.Since(start),
	)
	if e.metrics != nil {
		e.metrics.CorpusDocuments.Set(float64(e.index.DocCount()))
		e.metrics.CorpusTerms.Set(float64(e.index.TermCount()))
	}
	return e
}

// Search ranks text against the index and returns at most topK results
// (see parser.ResolveTopK). Blank text is a valid query with no results.
func (e *Executor) Search(ctx context.Context, text string, topK int) (*Response, error) {
	start := time.Now()
	k := parser.ResolveTopK(topK)
	resp := &Response{
		Query:   text,
		TopK:    k,
		Results: []Result{},
		Audit:   e.corpus.Audit,
	}
	if strings.TrimSpace(text) == "" {
		e.observe("empty", "none", 0, start)
		return resp, nil
	}

	ctx, span := tracing.StartChildSpan(ctx, "search")
	defer span.End()

	terms := tokenizer.Unique(tokenizer.Tokenize(text))
	span.SetAttr("terms", len(terms))

	compute := func() ([]Result, error) {
		_, rankSpan := tracing.StartChildSpan(ctx, "rank")
		defer rankSpan.End()
		return e.rank(terms, k), nil
	}

	cacheStatus := "bypass"
	var (
		results []Result
		err     error
	)
	if e.cache != nil {
		var hit bool
		results, hit, err = e.cache.GetOrCompute(ctx, terms, k, compute)
		if hit {
			cacheStatus = "hit"
		} else {
			cacheStatus = "miss"
		}
	} else {
		results, err = compute()
	}
	if err != nil {
		e.observe("error", cacheStatus, 0, start)
		return nil, err
	}

	resp.Results = results
	span.SetAttr("results", len(results))
	span.SetAttr("cache", cacheStatus)

	resultType := "hit"
	if len(results) == 0 {
		resultType = "zero_result"
	}
	e.observe(resultType, cacheStatus, len(results), start)
	e.logger.DebugContext(ctx, "query executed",
		"terms", terms,
		"top_k", k,
		"results", len(results),
		"cache", cacheStatus,
	)
	return resp, nil
}

func (e *Executor) rank(terms []string, k int) []Result {
	ranked := ranker.RankTerms(e.index, terms)
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	results := make([]Result, 0, len(ranked))
	for _, sd := range ranked {
		rec, ok := e.corpus.Record(sd.DocKey)
		if !ok {
			// The index is built from the same records, so this is a bug.
			e.logger.Error("ranked document missing from corpus", "doc_id", sd.DocKey)
			continue
		}
		results = append(results, toResult(rec, sd.Score))
	}
	return results
}

func toResult(rec *corpus.Record, score float64) Result {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	return Result{
		DocID:         rec.Key,
		MethodologyID: rec.MethodologyID,
		Version:       rec.Version,
		RuleID:        rec.RuleID,
		SectionID:     rec.SectionID,
		SectionTitle:  rec.SectionTitle,
		Score:         RoundScore(score),
		Text:          rec.Text,
		Tags:          tags,
	}
}

// RoundScore rounds to 6 decimal places so serialized scores are stable.
func RoundScore(score float64) float64 {
	return math.Round(score*1e6) / 1e6
}

func (e *Executor) observe(resultType, cacheStatus string, n int, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	e.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	e.metrics.SearchResultsCount.Observe(float64(n))
}

// DocCount is the number of indexed records.
func (e *Executor) DocCount() int {
	return e.index.DocCount()
}

func (e *Executor) Audit() corpus.Audit {
	return e.corpus.Audit
}

// Corpus exposes the loaded corpus for presentation lookups (section titles,
// tool references). Callers must treat it as read-only.
func (e *Executor) Corpus() *corpus.Corpus {
	return e.corpus
}

// Fingerprint identifies the corpus contents for cache keys: it changes
// whenever any source digest or the document count changes.
func Fingerprint(c *corpus.Corpus) string {
	var b strings.Builder
	b.WriteString(c.Audit.BM25.Tokenizer)
	for _, src := range c.Audit.Sources {
		b.WriteString("|")
		b.WriteString(src.MethodologyID)
		b.WriteString("@")
		b.WriteString(src.Version)
		b.WriteString(":")
		b.WriteString(src.RulesSHA256)
		b.WriteString(":")
		b.WriteString(src.SectionsSHA)
	}
	digest, _ := corpus.Digest(corpus.AlgoSHA256, []byte(b.String()))
	if len(digest) > 16 {
		digest = digest[:16]
	}
	return digest
}
