// Package modelconfig holds the process-wide immutable ModelConfig
// registry and the request-scoped value types that flow out of routing
// and completion.
package modelconfig

import (
	"fmt"

	"github.com/samber/lo"
)

// Tier is a capability/cost band.
type Tier string

const (
	TierFast     Tier = "fast"
	TierBalanced Tier = "balanced"
	TierPowerful Tier = "powerful"
)

// BackendID identifies one of the three generative backends.
type BackendID string

const (
	BackendA BackendID = "backend-a"
	BackendB BackendID = "backend-b"
	BackendC BackendID = "backend-c"
)

// Capability tags used by RouterCore to pick a model for a hint.
const (
	CapabilityText   = "text"
	CapabilityCode   = "code"
	CapabilityVision = "vision"
	CapabilityExpert = "expert"
)

// ModelConfig is one entry in the immutable registry: a backend+model
// pairing with its cost, latency, and capability metadata. Cost figures
// are data, not policy.
type ModelConfig struct {
	ModelID            string
	Tier               Tier
	BackendID          BackendID
	MaxTokens          int
	CostPerMillionIn   float64
	CostPerMillionOut  float64
	AvgLatencyMs       int
	Capabilities       []string
	// IsExpert marks the expert variant within the powerful tier,
	// selected when complexity score > 0.8.
	IsExpert bool
	// IsDefault marks the default model within a tier, used as the
	// tie-break/first choice when multiple models share a tier.
	IsDefault bool
}

// HasCapability reports whether cfg declares the given capability tag.
func (cfg *ModelConfig) HasCapability(cap string) bool {
	return lo.Contains(cfg.Capabilities, cap)
}

// Registry is the process-wide immutable set of ModelConfig, keyed by
// model id. It is built once at process start and never mutated
// afterward ("Lifecycles").
type Registry struct {
	byID    map[string]*ModelConfig
	ordered []*ModelConfig
}

// NewRegistry builds a Registry from configs. Registration order is
// preserved in Ordered and used as the deterministic tie-break for
// same-tier candidate selection.
func NewRegistry(configs []*ModelConfig) (*Registry, error) {
	r := &Registry{byID: make(map[string]*ModelConfig, len(configs))}
	for _, cfg := range configs {
		if cfg == nil || cfg.ModelID == "" {
			return nil, fmt.Errorf("modelconfig: entry with empty model id")
		}
		if _, dup := r.byID[cfg.ModelID]; dup {
			return nil, fmt.Errorf("modelconfig: duplicate model id %q", cfg.ModelID)
		}
		r.byID[cfg.ModelID] = cfg
		r.ordered = append(r.ordered, cfg)
	}
	return r, nil
}

// Lookup returns the ModelConfig for modelID, or false if unknown. The
// gateway's invalid-request error for an unknown model comes from here.
func (r *Registry) Lookup(modelID string) (*ModelConfig, bool) {
	cfg, ok := r.byID[modelID]
	return cfg, ok
}

// Ordered returns all configs in registration order. Callers must treat
// the returned slice as read-only.
func (r *Registry) Ordered() []*ModelConfig {
	return r.ordered
}

// ByTier returns configs in a given tier, in registration order.
func (r *Registry) ByTier(tier Tier) []*ModelConfig {
	return lo.Filter(r.ordered, func(cfg *ModelConfig, _ int) bool {
		return cfg.Tier == tier
	})
}

// ByTierAndCapability returns configs in a tier that declare cap.
func (r *Registry) ByTierAndCapability(tier Tier, cap string) []*ModelConfig {
	return lo.Filter(r.ordered, func(cfg *ModelConfig, _ int) bool {
		return cfg.Tier == tier && cfg.HasCapability(cap)
	})
}

// RoutingDecision is the result of RouterCore.Route: the chosen model,
// why it was chosen, its estimated cost, and an ordered fallback chain
// that never contains the primary itself (invariant).
type RoutingDecision struct {
	ModelConfig   *ModelConfig
	Reasoning     string
	EstimatedCost float64
	FallbackChain []*ModelConfig
}

// Usage carries token and cost accounting for one completion.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
	Cost             float64
}

// FinishReason is why a backend stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolCalls     FinishReason = "tool_calls"
)

// CompletionResult is the outcome of one ProviderGateway.Complete call.
type CompletionResult struct {
	Content      string
	BackendID    BackendID
	ModelID      string
	FinishReason FinishReason
	Usage        Usage
	Metadata     map[string]any
}

// Cost computes the cost of usage against cfg using plain (non-cached)
// rates: input/1e6*rateIn + output/1e6*rateOut. Cache-adjusted cost is
// computed separately in provider's cache economics.
func Cost(cfg *ModelConfig, inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1e6*cfg.CostPerMillionIn +
		float64(outputTokens)/1e6*cfg.CostPerMillionOut
}
