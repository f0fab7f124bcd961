package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/disk"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/logger"
)

const maxBodyBytes = 1 << 20

type QueryExecutor interface {
	Execute(ctx context.Context, node *query.Node, opts retrieval.Options) (*retrieval.Results, error)
	PartStatistics(ctx context.Context, part string) (disk.PartStatistics, error)
	InvalidateCache(ctx context.Context) (int64, error)
}

// QueryRequest is the body of a query call: the operator tree plus the
// ranking options inline.
type QueryRequest struct {
	Query json.RawMessage `json:"query"`
	retrieval.Options
}

type Handler struct {
	executor QueryExecutor
	logger   *slog.Logger
}

func New(exec QueryExecutor) *Handler {
	return &Handler{
		executor: exec,
		logger:   slog.Default().With("component", "query-handler"),
	}
}

// Register installs the query API on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/query", h.Query)
	mux.HandleFunc("GET /api/v1/parts/{part}/stats", h.PartStatistics)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: reading body: %v", apperrors.ErrInvalidInput, err))
		return
	}
	var req QueryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, fmt.Errorf("%w: decoding request: %v", apperrors.ErrInvalidInput, err))
		return
	}
	if len(req.Query) == 0 {
		h.writeError(w, fmt.Errorf("%w: request has no query", apperrors.ErrInvalidInput))
		return
	}
	node, err := query.Decode(req.Query)
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.executor.Execute(ctx, node, req.Options)
	if err != nil {
		log.Error("query execution failed", "query", node.String(), "error", err)
		h.writeError(w, err)
		return
	}
	log.Info("query completed",
		"query", res.Query,
		"returned", len(res.Documents),
		"candidates", res.Summary.Candidates,
		"latency_ms", res.Took.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) PartStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.executor.PartStatistics(r.Context(), r.PathValue("part"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.executor.InvalidateCache(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err onto its status. Internal failures are not echoed
// to the caller.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
