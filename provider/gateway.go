// Package provider implements ProviderGateway: a single contract over
// three generative backends, with cache economics and per-tenant cache
// statistics.
package provider

import (
	"context"
	"fmt"

	"github.com/abrahaamv/queryorchestrator/cachestats"
	"github.com/abrahaamv/queryorchestrator/errs"
	"github.com/abrahaamv/queryorchestrator/internal/stream"
	"github.com/abrahaamv/queryorchestrator/logging"
	"github.com/abrahaamv/queryorchestrator/modelconfig"
	"github.com/abrahaamv/queryorchestrator/provider/tokencount"
	"github.com/abrahaamv/queryorchestrator/query"
)

// Options configures one completion call. Temperature and MaxTokens
// default to 0.7 and 2048 respectively when zero.
type Options struct {
	Temperature   float64
	MaxTokens     int
	EnableCaching bool
	SystemMessage string
}

func (o Options) withDefaults() Options {
	if o.Temperature == 0 {
		o.Temperature = 0.7
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = 2048
	}
	return o
}

// BackendClient is the per-backend wire adapter contract. Each backend
// package (backenda, backendb, backendc) implements this against its own
// SDK, with each adapter holding its own client handle.
type BackendClient interface {
	// Complete issues a blocking completion call.
	Complete(ctx context.Context, modelID string, req *WireRequest) (*WireResponse, error)
	// Stream issues a streaming completion call. The returned reader
	// yields text deltas and terminates with a final *WireResponse
	// obtained via StreamSession.Result.
	Stream(ctx context.Context, modelID string, req *WireRequest) (StreamSession, error)
}

// StreamSession is a live streaming call: Chunks yields text deltas in
// generation order, Result blocks until the stream has terminated and
// returns the aggregated response.
type StreamSession interface {
	Chunks() stream.Reader[string]
	Result(ctx context.Context) (*WireResponse, error)
}

// WireRequest is the backend-neutral request shape passed to adapters.
type WireRequest struct {
	System      string
	Messages    []query.Message
	Temperature float64
	MaxTokens   int
	// CacheableSegments, when non-empty, marks which of the trailing
	// system sections should be flagged cacheable to the backend, per
	// cache economics.
	CacheableSegments []string
}

// WireResponse is the backend-neutral response shape adapters return.
type WireResponse struct {
	Content          string
	FinishReason     modelconfig.FinishReason
	InputTokens      int
	OutputTokens     int
	CacheWriteTokens int
	CacheReadTokens  int
	Metadata         map[string]any
}

// Gateway adapts Backend-A/B/C behind the common ProviderGateway
// contract.
type Gateway struct {
	registry *modelconfig.Registry
	backends map[modelconfig.BackendID]BackendClient
	cache    *cachestats.Store
	log      logging.Logger
	counter  *tokencount.Estimator
}

// NewGateway builds a Gateway over registry, dispatching to backends by
// BackendID. cache and log may be nil; sensible defaults are installed.
func NewGateway(registry *modelconfig.Registry, backends map[modelconfig.BackendID]BackendClient, cache *cachestats.Store, log logging.Logger) *Gateway {
	if cache == nil {
		cache = cachestats.New()
	}
	if log == nil {
		log = logging.Nop
	}
	return &Gateway{
		registry: registry,
		backends: backends,
		cache:    cache,
		log:      log,
		counter:  tokencount.NewEstimator(),
	}
}

// CacheStats exposes the underlying per-tenant store for orchestrator
// facade methods cache-stats/clear-stats.
func (g *Gateway) CacheStats() *cachestats.Store {
	return g.cache
}

func (g *Gateway) resolve(tenantID, modelID string, messages []query.Message) (*modelconfig.ModelConfig, BackendClient, error) {
	if len(messages) == 0 {
		return nil, nil, errs.New(errs.InvalidRequest, "message list must not be empty")
	}
	for _, m := range messages {
		if m.Content == "" {
			return nil, nil, errs.New(errs.InvalidRequest, "message content must not be empty")
		}
	}
	cfg, ok := g.registry.Lookup(modelID)
	if !ok {
		return nil, nil, errs.New(errs.InvalidRequest, fmt.Sprintf("unknown model id %q", modelID))
	}
	client, ok := g.backends[cfg.BackendID]
	if !ok {
		return nil, nil, errs.New(errs.InvalidRequest, fmt.Sprintf("no backend client registered for %q", cfg.BackendID))
	}
	return cfg, client, nil
}

// buildWireRequest routes the system message to the backend's system
// slot and segments it for cache economics when eligible.
func (g *Gateway) buildWireRequest(tenantID string, messages []query.Message, opt Options) *WireRequest {
	wr := &WireRequest{
		Messages:    messages,
		Temperature: opt.Temperature,
		MaxTokens:   opt.MaxTokens,
	}
	if opt.SystemMessage != "" {
		wr.System = opt.SystemMessage
		if opt.EnableCaching {
			segments := segmentSystemMessage(opt.SystemMessage, g.counter)
			if len(segments) >= 2 {
				wr.CacheableSegments = segments[len(segments)-1:]
			}
		}
	}
	return wr
}

// Complete performs a full, blocking completion.
func (g *Gateway) Complete(ctx context.Context, tenantID, modelID string, messages []query.Message, opt Options) (*modelconfig.CompletionResult, error) {
	opt = opt.withDefaults()
	cfg, client, err := g.resolve(tenantID, modelID, messages)
	if err != nil {
		return nil, err
	}
	wr := g.buildWireRequest(tenantID, messages, opt)

	g.log.Info(ctx, "provider.complete.start", logging.TenantAttr(tenantID))
	resp, err := client.Complete(ctx, modelID, wr)
	if err != nil {
		g.log.Error(ctx, "provider.complete.error", logging.TenantAttr(tenantID))
		return nil, classify(err)
	}

	result := g.toCompletionResult(cfg, resp)
	g.recordCache(tenantID, cfg, resp, len(wr.CacheableSegments) > 0 && opt.EnableCaching)
	g.log.Info(ctx, "provider.complete.done", logging.TenantAttr(tenantID))
	return result, nil
}

// StreamComplete performs a streaming completion. The returned Reader
// yields text chunks in generation order; concatenating them equals the
// eventual CompletionResult.Content. The final CompletionResult is
// delivered out-of-band via the returned func, which must be called
// after the reader is fully drained.
func (g *Gateway) StreamComplete(ctx context.Context, tenantID, modelID string, messages []query.Message, opt Options) (stream.Reader[string], func(context.Context) (*modelconfig.CompletionResult, error), error) {
	opt = opt.withDefaults()
	cfg, client, err := g.resolve(tenantID, modelID, messages)
	if err != nil {
		return nil, nil, err
	}
	wr := g.buildWireRequest(tenantID, messages, opt)

	g.log.Info(ctx, "provider.stream.start", logging.TenantAttr(tenantID))
	session, err := client.Stream(ctx, modelID, wr)
	if err != nil {
		g.log.Error(ctx, "provider.stream.error", logging.TenantAttr(tenantID))
		return nil, nil, classify(err)
	}

	finalize := func(fctx context.Context) (*modelconfig.CompletionResult, error) {
		resp, err := session.Result(fctx)
		if err != nil {
			return nil, classify(err)
		}
		result := g.toCompletionResult(cfg, resp)
		g.recordCache(tenantID, cfg, resp, len(wr.CacheableSegments) > 0 && opt.EnableCaching)
		g.log.Info(fctx, "provider.stream.done", logging.TenantAttr(tenantID))
		return result, nil
	}

	return session.Chunks(), finalize, nil
}

func (g *Gateway) toCompletionResult(cfg *modelconfig.ModelConfig, resp *WireResponse) *modelconfig.CompletionResult {
	cost := cacheCost(cfg, resp)
	return &modelconfig.CompletionResult{
		Content:      resp.Content,
		BackendID:    cfg.BackendID,
		ModelID:      cfg.ModelID,
		FinishReason: resp.FinishReason,
		Usage: modelconfig.Usage{
			InputTokens:      resp.InputTokens,
			OutputTokens:     resp.OutputTokens,
			CacheReadTokens:  resp.CacheReadTokens,
			CacheWriteTokens: resp.CacheWriteTokens,
			Cost:             cost,
		},
		Metadata: resp.Metadata,
	}
}

func (g *Gateway) recordCache(tenantID string, cfg *modelconfig.ModelConfig, resp *WireResponse, cachingActive bool) {
	if !cachingActive {
		return
	}
	hit := resp.CacheReadTokens > 0
	cached := int64(resp.CacheReadTokens + resp.CacheWriteTokens)
	savings := cacheSavings(cfg, resp)
	g.cache.Record(tenantID, hit, cached, savings)
}

// classify maps a raw backend error into the closed error-kind taxonomy
// when it is not already tagged.
func classify(err error) error {
	if errs.KindOf(err) != "" {
		return err
	}
	return errs.Wrap(errs.TransientBackendFailure, "backend call failed", err)
}
