package qdrant

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
)

func TestChunkFromPoint_ExtractsTextAndMetadataExcludingTenantKey(t *testing.T) {
	point := &qdrant.ScoredPoint{
		Score: 0.87,
		Payload: map[string]*qdrant.Value{
			textPayloadKey:    {Kind: &qdrant.Value_StringValue{StringValue: "hello world"}},
			tenantPayloadKey:  {Kind: &qdrant.Value_StringValue{StringValue: "tenant-1"}},
			"source_document": {Kind: &qdrant.Value_StringValue{StringValue: "doc-42"}},
		},
	}

	chunk := chunkFromPoint(point)
	assert.InDelta(t, 0.87, chunk.Score, 1e-9)
	assert.Equal(t, "hello world", chunk.Text)
	assert.Equal(t, "doc-42", chunk.Metadata["source_document"])
	_, hasTenant := chunk.Metadata[tenantPayloadKey]
	assert.False(t, hasTenant)
}

func TestValueOf_SupportsPrimitiveKinds(t *testing.T) {
	assert.Equal(t, "x", valueOf(&qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: "x"}}))
	assert.Equal(t, int64(5), valueOf(&qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: 5}}))
	assert.Equal(t, 1.5, valueOf(&qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: 1.5}}))
	assert.Equal(t, true, valueOf(&qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: true}}))
}
