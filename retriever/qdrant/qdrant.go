// Package qdrant adapts github.com/qdrant/go-client to
// retriever.Backend. A tenant's chunks are isolated by a payload match
// filter rather than a separate collection per
// tenant, since collection lifecycle is owned outside this system.
package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/abrahaamv/queryorchestrator/retriever"
)

const tenantPayloadKey = "tenant_id"
const textPayloadKey = "text"

// Embedder produces a vector embedding for query text. Embedding
// generation is outside this system's scope; callers inject a concrete
// implementation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Backend adapts a Qdrant collection to retriever.Backend.
type Backend struct {
	client     *qdrant.Client
	collection string
	embedder   Embedder
}

var _ retriever.Backend = (*Backend)(nil)

// New builds a Backend over an existing collection. client and embedder
// are caller-owned; this package does not manage their lifecycle.
func New(client *qdrant.Client, collection string, embedder Embedder) *Backend {
	return &Backend{client: client, collection: collection, embedder: embedder}
}

func ptrOf[T any](v T) *T { return &v }

// Search embeds queryText, issues a filtered similarity query scoped to
// tenantID, and converts the scored points to retriever.Chunk, ordered
// by score descending as Qdrant guarantees.
func (b *Backend) Search(ctx context.Context, tenantID, queryText string, topK int) ([]retriever.Chunk, error) {
	vector, err := b.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to embed query: %w", err)
	}

	points, err := b.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: b.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          ptrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchKeyword(tenantPayloadKey, tenantID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: query against collection %s failed: %w", b.collection, err)
	}

	chunks := make([]retriever.Chunk, 0, len(points))
	for _, p := range points {
		chunks = append(chunks, chunkFromPoint(p))
	}
	return chunks, nil
}

func chunkFromPoint(p *qdrant.ScoredPoint) retriever.Chunk {
	chunk := retriever.Chunk{Score: float64(p.GetScore())}
	payload := p.GetPayload()
	if payload == nil {
		return chunk
	}
	if v, ok := payload[textPayloadKey]; ok {
		chunk.Text = v.GetStringValue()
	}
	metadata := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == textPayloadKey || k == tenantPayloadKey {
			continue
		}
		metadata[k] = valueOf(v)
	}
	if len(metadata) > 0 {
		chunk.Metadata = metadata
	}
	return chunk
}

func valueOf(v *qdrant.Value) any {
	switch kind := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return nil
	}
}
