// Package retriever implements the Retriever adapter contract: tenant
// isolation, a minimum-score filter, and context-string assembly around
// an opaque retrieval algorithm.
package retriever

import (
	"context"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/abrahaamv/queryorchestrator/errs"
	"github.com/abrahaamv/queryorchestrator/logging"
)

// contextDelimiter separates chunks when assembling the context string,
// "fixed delimiter" requirement.
const contextDelimiter = "\n\n---\n\n"

// Chunk is a single retrieved passage paired with its relevance score.
// Chunks are immutable after a Retrieve call returns.
type Chunk struct {
	Text     string
	Score    float64
	Metadata map[string]any
}

// Result is the outcome of one Retrieve call.
type Result struct {
	Chunks        []Chunk
	Total         int
	ContextString string
	ElapsedMs     int64
}

// Backend is the opaque retrieval algorithm contract. The core does not
// specify indexing or scoring, only that the returned ordering is
// monotone non-increasing in relevance.
type Backend interface {
	Search(ctx context.Context, tenantID, queryText string, topK int) ([]Chunk, error)
}

// Adapter enforces tenant isolation, the minimum-score filter, and
// context-string assembly around a Backend.
type Adapter struct {
	backend Backend
	log     logging.Logger
}

// New builds an Adapter over backend. log may be nil.
func New(backend Backend, log logging.Logger) *Adapter {
	if log == nil {
		log = logging.Nop
	}
	return &Adapter{backend: backend, log: log}
}

// Retrieve issues a retrieval request and assembles the context string.
// tenantID is mandatory; minScore filters the backend's own scoring
// after retrieval.
func (a *Adapter) Retrieve(ctx context.Context, tenantID, queryText string, topK int, minScore float64) (*Result, error) {
	if tenantID == "" {
		return nil, errs.New(errs.InvalidRequest, "retriever: tenant-id is required")
	}
	if queryText == "" {
		return nil, errs.New(errs.InvalidRequest, "retriever: query text is required")
	}

	start := time.Now()
	chunks, err := a.backend.Search(ctx, tenantID, queryText, topK)
	if err != nil {
		a.log.Error(ctx, "retriever.search.error", logging.TenantAttr(tenantID))
		return nil, errs.Wrap(errs.TransientBackendFailure, "retriever backend search failed", err)
	}

	filtered := lo.Filter(chunks, func(c Chunk, _ int) bool {
		return c.Score >= minScore
	})

	texts := lo.Map(filtered, func(c Chunk, _ int) string { return c.Text })

	return &Result{
		Chunks:        filtered,
		Total:         len(filtered),
		ContextString: strings.Join(texts, contextDelimiter),
		ElapsedMs:     time.Since(start).Milliseconds(),
	}, nil
}
