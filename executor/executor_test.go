package executor

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abrahaamv/queryorchestrator/config"
	"github.com/abrahaamv/queryorchestrator/errs"
	"github.com/abrahaamv/queryorchestrator/internal/stream"
	"github.com/abrahaamv/queryorchestrator/modelconfig"
	"github.com/abrahaamv/queryorchestrator/provider"
	"github.com/abrahaamv/queryorchestrator/query"
)

type scriptedBackend struct {
	calls int
	errs  []error
	resps []*provider.WireResponse
}

func (b *scriptedBackend) Complete(ctx context.Context, modelID string, req *provider.WireRequest) (*provider.WireResponse, error) {
	i := b.calls
	b.calls++
	if i < len(b.errs) && b.errs[i] != nil {
		return nil, b.errs[i]
	}
	if i < len(b.resps) {
		return b.resps[i], nil
	}
	return &provider.WireResponse{Content: "ok", FinishReason: modelconfig.FinishStop}, nil
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

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.PerAttemptTimeout = 200 * time.Millisecond
	cfg.PerRequestTimeout = 2 * time.Second
	require.NoError(t, cfg.Validate())
	return cfg
}

func buildGateway(t *testing.T, backendA, backendB provider.BackendClient) (*provider.Gateway, *modelconfig.Registry) {
	t.Helper()
	reg, err := modelconfig.NewRegistry([]*modelconfig.ModelConfig{
		{ModelID: "fast-a", Tier: modelconfig.TierFast, BackendID: modelconfig.BackendA, CostPerMillionIn: 1, CostPerMillionOut: 2},
		{ModelID: "fast-b", Tier: modelconfig.TierFast, BackendID: modelconfig.BackendB, CostPerMillionIn: 1, CostPerMillionOut: 2},
	})
	require.NoError(t, err)
	backends := map[modelconfig.BackendID]provider.BackendClient{}
	if backendA != nil {
		backends[modelconfig.BackendA] = backendA
	}
	if backendB != nil {
		backends[modelconfig.BackendB] = backendB
	}
	return provider.NewGateway(reg, backends, nil, nil), reg
}

func messages() []query.Message {
	return []query.Message{{Role: query.RoleUser, Content: "hello"}}
}

func TestExecute_PrimarySucceeds(t *testing.T) {
	a := &scriptedBackend{resps: []*provider.WireResponse{{Content: "definitely confirmed precisely exact answer", FinishReason: modelconfig.FinishStop}}}
	gw, reg := buildGateway(t, a, nil)
	fastA, _ := reg.Lookup("fast-a")
	ex := New(gw, testConfig(t), nil)

	decision := &modelconfig.RoutingDecision{ModelConfig: fastA}
	result, err := ex.Execute(context.Background(), "tenant-1", messages(), decision, provider.Options{})
	require.NoError(t, err)
	assert.Contains(t, result.Content, "definitely")
}

func TestExecute_TransientFailureFallsBackToSecondBackend(t *testing.T) {
	a := &scriptedBackend{errs: []error{errs.Wrap(errs.TransientBackendFailure, "unavailable", nil)}}
	b := &scriptedBackend{resps: []*provider.WireResponse{{Content: "fallback content definitely confirmed", FinishReason: modelconfig.FinishStop}}}
	gw, reg := buildGateway(t, a, b)
	fastA, _ := reg.Lookup("fast-a")
	fastB, _ := reg.Lookup("fast-b")
	ex := New(gw, testConfig(t), nil)

	decision := &modelconfig.RoutingDecision{ModelConfig: fastA, FallbackChain: []*modelconfig.ModelConfig{fastB}}
	result, err := ex.Execute(context.Background(), "tenant-1", messages(), decision, provider.Options{})
	require.NoError(t, err)
	assert.Contains(t, result.Content, "fallback content definitely confirmed")
}

func TestExecute_InvalidRequestIsTerminal(t *testing.T) {
	a := &scriptedBackend{errs: []error{errs.New(errs.InvalidRequest, "bad request")}}
	b := &scriptedBackend{resps: []*provider.WireResponse{{Content: "should never be reached", FinishReason: modelconfig.FinishStop}}}
	gw, reg := buildGateway(t, a, b)
	fastA, _ := reg.Lookup("fast-a")
	fastB, _ := reg.Lookup("fast-b")
	ex := New(gw, testConfig(t), nil)

	decision := &modelconfig.RoutingDecision{ModelConfig: fastA, FallbackChain: []*modelconfig.ModelConfig{fastB}}
	_, err := ex.Execute(context.Background(), "tenant-1", messages(), decision, provider.Options{})
	require.Error(t, err)
	assert.Equal(t, errs.InvalidRequest, errs.KindOf(err))
	assert.Equal(t, 0, b.calls)
}

func TestExecute_CascadeExhaustedReturnsSynthesisFailed(t *testing.T) {
	transient := errs.Wrap(errs.TransientBackendFailure, "unavailable", nil)
	a := &scriptedBackend{errs: []error{transient}}
	b := &scriptedBackend{errs: []error{transient}}
	gw, reg := buildGateway(t, a, b)
	fastA, _ := reg.Lookup("fast-a")
	fastB, _ := reg.Lookup("fast-b")
	ex := New(gw, testConfig(t), nil)

	decision := &modelconfig.RoutingDecision{ModelConfig: fastA, FallbackChain: []*modelconfig.ModelConfig{fastB}}
	_, err := ex.Execute(context.Background(), "tenant-1", messages(), decision, provider.Options{})
	require.Error(t, err)
	assert.Equal(t, errs.SynthesisFailed, errs.KindOf(err))
}

func TestExecute_FallbackDisabledFailsOnFirstTransientError(t *testing.T) {
	transient := errs.Wrap(errs.TransientBackendFailure, "unavailable", nil)
	a := &scriptedBackend{errs: []error{transient}}
	b := &scriptedBackend{resps: []*provider.WireResponse{{Content: "unreached", FinishReason: modelconfig.FinishStop}}}
	gw, reg := buildGateway(t, a, b)
	fastA, _ := reg.Lookup("fast-a")
	fastB, _ := reg.Lookup("fast-b")
	cfg := testConfig(t)
	cfg.EnableFallback = false
	ex := New(gw, cfg, nil)

	decision := &modelconfig.RoutingDecision{ModelConfig: fastA, FallbackChain: []*modelconfig.ModelConfig{fastB}}
	_, err := ex.Execute(context.Background(), "tenant-1", messages(), decision, provider.Options{})
	require.Error(t, err)
	assert.Equal(t, errs.SynthesisFailed, errs.KindOf(err))
	assert.Equal(t, 0, b.calls)
}

func TestStreamExecute_ConcatenatedChunksEqualFinalContent(t *testing.T) {
	a := &scriptedBackend{resps: []*provider.WireResponse{{Content: "definitely confirmed precisely streamed answer", FinishReason: modelconfig.FinishStop}}}
	gw, reg := buildGateway(t, a, nil)
	fastA, _ := reg.Lookup("fast-a")
	ex := New(gw, testConfig(t), nil)

	decision := &modelconfig.RoutingDecision{ModelConfig: fastA}
	reader, finalize, err := ex.StreamExecute(context.Background(), "tenant-1", messages(), decision, provider.Options{})
	require.NoError(t, err)

	var got string
	for {
		chunk, rerr := reader.Read(context.Background())
		if rerr == io.EOF {
			break
		}
		require.NoError(t, rerr)
		got += chunk
	}
	result, err := finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, result.Content, got)
}
