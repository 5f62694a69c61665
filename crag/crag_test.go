package crag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abrahaamv/queryorchestrator/config"
	"github.com/abrahaamv/queryorchestrator/executor"
	"github.com/abrahaamv/queryorchestrator/internal/stream"
	"github.com/abrahaamv/queryorchestrator/modelconfig"
	"github.com/abrahaamv/queryorchestrator/provider"
	"github.com/abrahaamv/queryorchestrator/quality"
	"github.com/abrahaamv/queryorchestrator/query"
	"github.com/abrahaamv/queryorchestrator/retriever"
)

type scriptedBackend struct {
	resps []*provider.WireResponse
	calls int
}

func (b *scriptedBackend) Complete(ctx context.Context, modelID string, req *provider.WireRequest) (*provider.WireResponse, error) {
	i := b.calls
	b.calls++
	if i < len(b.resps) {
		return b.resps[i], nil
	}
	return &provider.WireResponse{Content: "default answer", FinishReason: modelconfig.FinishStop}, nil
}

func (b *scriptedBackend) Stream(ctx context.Context, modelID string, req *provider.WireRequest) (provider.StreamSession, error) {
	resp, err := b.Complete(ctx, modelID, req)
	if err != nil {
		return nil, err
	}
	pipe := stream.NewStream[string]()
	go func() {
		defer pipe.Close()
		_ = pipe.Write(ctx, resp.Content)
	}()
	return &scriptedSession{pipe: pipe, resp: resp}, nil
}

type scriptedSession struct {
	pipe *stream.Stream[string]
	resp *provider.WireResponse
}

func (s *scriptedSession) Chunks() stream.Reader[string] { return s.pipe }
func (s *scriptedSession) Result(ctx context.Context) (*provider.WireResponse, error) {
	return s.resp, nil
}

type fakeRetrieverBackend struct {
	chunks []retriever.Chunk
}

func (f *fakeRetrieverBackend) Search(ctx context.Context, tenantID, queryText string, topK int) ([]retriever.Chunk, error) {
	return f.chunks, nil
}

func testCoordinator(t *testing.T, backend *scriptedBackend, chunks []retriever.Chunk) (*Coordinator, *modelconfig.RoutingDecision) {
	t.Helper()
	reg, err := modelconfig.NewRegistry([]*modelconfig.ModelConfig{
		{ModelID: "fast-a", Tier: modelconfig.TierFast, BackendID: modelconfig.BackendA, CostPerMillionIn: 1, CostPerMillionOut: 2},
	})
	require.NoError(t, err)
	gw := provider.NewGateway(reg, map[modelconfig.BackendID]provider.BackendClient{modelconfig.BackendA: backend}, nil, nil)

	cfg := config.Default()
	cfg.PerAttemptTimeout = 200 * time.Millisecond
	cfg.PerRequestTimeout = 2 * time.Second
	require.NoError(t, cfg.Validate())

	exec := executor.New(gw, cfg, nil)
	retAdapter := retriever.New(&fakeRetrieverBackend{chunks: chunks}, nil)
	qc := quality.New(quality.Config{RequireCitations: false})

	fastA, ok := reg.Lookup("fast-a")
	require.True(t, ok)
	decision := &modelconfig.RoutingDecision{ModelConfig: fastA}

	return New(gw, exec, retAdapter, qc, cfg, nil), decision
}

func TestAnswer_SimpleQueryNoRefinementNoMultiHop(t *testing.T) {
	backend := &scriptedBackend{resps: []*provider.WireResponse{
		{Content: "Paris is the capital of France.", FinishReason: modelconfig.FinishStop},
	}}
	chunks := []retriever.Chunk{{Text: "Paris is the capital of France.", Score: 0.9}}
	coord, decision := testCoordinator(t, backend, chunks)

	q := &query.Query{TenantID: "tenant-1", Text: "What is the capital of France?"}
	resp, err := coord.Answer(context.Background(), "tenant-1", q, decision, provider.Options{})

	require.NoError(t, err)
	assert.False(t, resp.Outcome.UsedMultiHop)
	assert.Empty(t, resp.Outcome.Refinements)
	assert.Equal(t, ReasoningSingleHop, resp.Outcome.Evaluation.ReasoningType)
	assert.Contains(t, resp.Result.Content, "Paris")
}

func TestAnswer_AmbiguousQueryTriggersRefinement(t *testing.T) {
	backend := &scriptedBackend{resps: []*provider.WireResponse{
		{Content: "Why did the deployment fail last night?", FinishReason: modelconfig.FinishStop},
		{Content: "The deployment failed because of a misconfigured environment variable.", FinishReason: modelconfig.FinishStop},
	}}
	chunks := []retriever.Chunk{{Text: "The deployment failed because of a misconfigured environment variable.", Score: 0.8}}
	coord, decision := testCoordinator(t, backend, chunks)

	q := &query.Query{TenantID: "tenant-1", Text: "Why did it fail?"}
	resp, err := coord.Answer(context.Background(), "tenant-1", q, decision, provider.Options{})

	require.NoError(t, err)
	require.True(t, resp.Outcome.Evaluation.ShouldRefine)
	require.NotEmpty(t, resp.Outcome.Refinements)
	assert.Equal(t, StrategyClarification, resp.Outcome.Refinements[0].Strategy)
}

func TestAnswer_ComparativeQueryUsesMultiHop(t *testing.T) {
	backend := &scriptedBackend{resps: []*provider.WireResponse{
		{Content: "Go favors simplicity and fast compilation.", FinishReason: modelconfig.FinishStop},
		{Content: "Rust favors zero-cost abstractions and memory safety without a garbage collector.", FinishReason: modelconfig.FinishStop},
	}}
	chunks := []retriever.Chunk{
		{Text: "Go favors simplicity and fast compilation.", Score: 0.9},
		{Text: "Rust favors zero-cost abstractions and memory safety.", Score: 0.85},
	}
	coord, decision := testCoordinator(t, backend, chunks)

	q := &query.Query{TenantID: "tenant-1", Text: "Compare Go versus Rust for systems programming."}
	resp, err := coord.Answer(context.Background(), "tenant-1", q, decision, provider.Options{})

	require.NoError(t, err)
	assert.Equal(t, ReasoningComparative, resp.Outcome.Evaluation.ReasoningType)
	assert.True(t, resp.Outcome.Evaluation.ShouldUseMultiHop)
}

func TestAnswer_SynthesisFailureSurfaces(t *testing.T) {
	backend := &scriptedBackend{}
	coord, decision := testCoordinator(t, backend, nil)
	decision.ModelConfig = nil

	q := &query.Query{TenantID: "tenant-1", Text: "What is the capital of France?"}
	_, err := coord.Answer(context.Background(), "tenant-1", q, decision, provider.Options{})

	require.Error(t, err)
}
