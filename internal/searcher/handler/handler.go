// Package handler implements the HTTP front end of the query service:
// health, query (GET and POST), preflight, and the JSON error envelope.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/tracing"
)

// AllowedMethods is advertised in the Allow header of query preflights.
const AllowedMethods = "GET, POST, OPTIONS"

const DefaultMaxBodyBytes int64 = 64 << 10

type Searcher interface {
	Search(ctx context.Context, text string, topK int) (*executor.Response, error)
	DocCount() int
}

// LatencySource reports the rolling request-latency window.
type LatencySource interface {
	P95() time.Duration
	Samples() int
}

type Options struct {
	// MaxBodyBytes caps POST bodies; <= 0 uses DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// Tracing logs a span tree per query at debug level.
	Tracing bool
}

type Handler struct {
	searcher Searcher
	latency  LatencySource
	maxBody  int64
	tracing  bool
	logger   *slog.Logger
}

func New(s Searcher, latency LatencySource, opts Options) *Handler {
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Handler{
		searcher: s,
		latency:  latency,
		maxBody:  maxBody,
		tracing:  opts.Tracing,
		logger:   logger.WithComponent("search-handler"),
	}
}

type healthResponse struct {
	Status    string        `json:"status"`
	Documents int           `json:"documents"`
	Latency   latencyReport `json:"latency"`
}

type latencyReport struct {
	P95Ms   float64 `json:"p95_ms"`
	Samples int     `json:"samples"`
}

// Health reports liveness and the document count. Any "badge" query
// parameter switches the response to an SVG status badge.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.NotFound(w, r)
		return
	}
	docs := h.searcher.DocCount()
	if r.URL.Query().Has("badge") {
		h.writeBadge(w, docs)
		return
	}
	resp := healthResponse{Status: "ok", Documents: docs}
	if h.latency != nil {
		resp.Latency = latencyReport{
			P95Ms:   analytics.Milliseconds(h.latency.P95()),
			Samples: h.latency.Samples(),
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Query serves GET (query string), POST (JSON body) and OPTIONS. Other
// methods are treated as unknown routes.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var (
		req *parser.QueryRequest
		err error
	)
	switch r.Method {
	case http.MethodGet:
		req, err = parser.FromValues(r.URL.Query())
	case http.MethodPost:
		body, ok := h.readBody(w, r)
		if !ok {
			return
		}
		req, err = parser.FromJSON(body)
	case http.MethodOptions:
		w.Header().Set("Allow", AllowedMethods)
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		h.NotFound(w, r)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.search(w, r, req)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, req *parser.QueryRequest) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	if h.tracing {
		var span *tracing.Span
		ctx, span = tracing.StartSpan(ctx, "query", logger.RequestID(ctx))
		defer func() {
			span.End()
			span.Log(ctx, log)
		}()
	}

	resp, err := h.searcher.Search(ctx, req.Text, req.TopK)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	log.Debug("search completed",
		"top_k", resp.TopK,
		"returned", len(resp.Results),
	)
	h.writeJSON(w, http.StatusOK, resp)
}

// readBody enforces the body ceiling. A declared Content-Length over the
// limit is refused without reading; an undeclared or understated body is cut
// off by MaxBytesReader. Either way the client gets a 413 and the
// connection is closed.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.ContentLength > h.maxBody {
		h.rejectTooLarge(w, r)
		return nil, false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.rejectTooLarge(w, r)
			return nil, false
		}
		h.writeError(w, r, apperrors.Newf(apperrors.ErrInvalidJSON, http.StatusBadRequest, "reading request body: %v", err))
		return nil, false
	}
	return body, true
}

func (h *Handler) rejectTooLarge(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Connection", "close")
	h.writeError(w, r, apperrors.Newf(apperrors.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge,
		"request body exceeds %d bytes", h.maxBody))
}

// NotFound is the catch-all for unknown routes and unsupported methods.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, apperrors.New(apperrors.ErrNotFound, http.StatusNotFound, "no route for "+r.Method+" "+r.URL.Path))
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError maps err onto the error envelope. Internal errors are logged
// with the request id and replaced by a generic message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	kind := apperrors.Kind(err)
	message := ""
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		kind = apperrors.KindInternal
		message = "internal server error"
	}
	h.writeJSON(w, status, errorResponse{Error: kind, Message: message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
