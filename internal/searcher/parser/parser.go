// Package parser normalises query requests from query strings and JSON bodies
// into a typed QueryRequest with documented defaults.
package parser

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/errors"
)

const (
	DefaultTopK = 5
	MaxTopK     = 50
)

// Accepted parameter names, in precedence order.
var (
	textParams = []string{"text", "query"}
	topKParams = []string{"top_k", "topK"}
)

// QueryRequest is a validated query. TopK is the caller's raw request (0 when
// absent or unusable); use EffectiveTopK for the value to serve.
type QueryRequest struct {
	Text string
	TopK int
}

// EffectiveTopK applies ResolveTopK to the request.
func (q QueryRequest) EffectiveTopK() int {
	return ResolveTopK(q.TopK)
}

// ResolveTopK clamps a positive request to MaxTopK and maps anything else to
// DefaultTopK.
func ResolveTopK(requested int) int {
	if requested <= 0 {
		return DefaultTopK
	}
	if requested > MaxTopK {
		return MaxTopK
	}
	return requested
}

// FromValues reads text|query and top_k|topK from URL parameters. A missing
// text parameter is a client error; a present but blank one is a valid
// empty query.
func FromValues(values url.Values) (*QueryRequest, error) {
	req := &QueryRequest{}
	found := false
	for _, name := range textParams {
		if values.Has(name) {
			req.Text = values.Get(name)
			found = true
			break
		}
	}
	if !found {
		return nil, apperrors.BadRequest("query parameter 'text' is required")
	}
	for _, name := range topKParams {
		if values.Has(name) {
			req.TopK = parseTopKString(values.Get(name))
			break
		}
	}
	return req, nil
}

// FromJSON decodes a body of the form {"query": string, "top_k": int|string}.
func FromJSON(data []byte) (*QueryRequest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidJSON, http.StatusBadRequest, "request body is empty")
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidJSON, http.StatusBadRequest, "request body must be a JSON object")
	}

	rawQuery, ok := body["query"]
	if !ok || isNull(rawQuery) {
		return nil, apperrors.BadRequest("field 'query' is required")
	}
	req := &QueryRequest{}
	if err := json.Unmarshal(rawQuery, &req.Text); err != nil {
		return nil, apperrors.BadRequest("field 'query' must be a string")
	}
	for _, name := range topKParams {
		if raw, ok := body[name]; ok {
			req.TopK = parseTopKJSON(raw)
			break
		}
	}
	return req, nil
}

// parseTopKJSON accepts an integral number or a numeric string. Anything else
// yields 0, which resolves to the default.
func parseTopKJSON(raw json.RawMessage) int {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return integral(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseTopKString(s)
	}
	return 0
}

func parseTopKString(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return integral(f)
	}
	return 0
}

func integral(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(f)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
