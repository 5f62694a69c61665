// Package router implements RouterCore: a deterministic, total mapping
// from a ComplexityScore and hints to a RoutingDecision.
package router

import (
	"github.com/samber/lo"

	"github.com/abrahaamv/queryorchestrator/complexity"
	"github.com/abrahaamv/queryorchestrator/modelconfig"
	"github.com/abrahaamv/queryorchestrator/query"
)

// Core maps complexity and hints to a RoutingDecision against an
// immutable registry.
type Core struct {
	registry *modelconfig.Registry
}

// New builds a Core over registry.
func New(registry *modelconfig.Registry) *Core {
	return &Core{registry: registry}
}

func firstOrNil(cfgs []*modelconfig.ModelConfig) *modelconfig.ModelConfig {
	if len(cfgs) == 0 {
		return nil
	}
	return cfgs[0]
}

func firstDefaultOrFirst(cfgs []*modelconfig.ModelConfig) *modelconfig.ModelConfig {
	if def, ok := lo.Find(cfgs, func(c *modelconfig.ModelConfig) bool { return c.IsDefault }); ok {
		return def
	}
	return firstOrNil(cfgs)
}

func firstExpertOrFirst(cfgs []*modelconfig.ModelConfig) *modelconfig.ModelConfig {
	if exp, ok := lo.Find(cfgs, func(c *modelconfig.ModelConfig) bool { return c.IsExpert }); ok {
		return exp
	}
	return firstOrNil(cfgs)
}

func demote(tier modelconfig.Tier) modelconfig.Tier {
	switch tier {
	case modelconfig.TierPowerful:
		return modelconfig.TierBalanced
	case modelconfig.TierBalanced:
		return modelconfig.TierFast
	default:
		return tier
	}
}

// pick selects a primary ModelConfig per the routing policy table,
// checked in order.
func (c *Core) pick(score complexity.Score, q *query.Query) (*modelconfig.ModelConfig, string) {
	if q.Hints.Bool(query.HintRequiresVision) || complexity.RequiresVisionModel(q.LastUserMessage()) {
		cfg := firstDefaultOrFirst(c.registry.ByTierAndCapability(modelconfig.TierFast, modelconfig.CapabilityVision))
		return cfg, "requires-vision hint: routed to fast-tier vision-capable model"
	}

	requiresCodeGen := q.Hints.Bool(query.HintRequiresCodeGeneration)

	switch {
	case score.Level == complexity.LevelSimple && !requiresCodeGen:
		cfg := firstDefaultOrFirst(c.registry.ByTierAndCapability(modelconfig.TierFast, modelconfig.CapabilityText))
		return cfg, "simple query: routed to fast-tier text model"
	case score.Level == complexity.LevelModerate && requiresCodeGen:
		cfg := firstDefaultOrFirst(c.registry.ByTierAndCapability(modelconfig.TierBalanced, modelconfig.CapabilityCode))
		return cfg, "moderate query requiring code generation: routed to balanced-tier code-capable model"
	case score.Level == complexity.LevelModerate:
		cfg := firstDefaultOrFirst(c.registry.ByTierAndCapability(modelconfig.TierBalanced, modelconfig.CapabilityText))
		return cfg, "moderate query: routed to balanced-tier text model"
	case score.Level == complexity.LevelComplex && score.Score > 0.8:
		cfg := firstExpertOrFirst(c.registry.ByTier(modelconfig.TierPowerful))
		return cfg, "highly complex query (score > 0.8): routed to powerful-tier expert model"
	default:
		cfg := firstDefaultOrFirst(c.registry.ByTier(modelconfig.TierPowerful))
		return cfg, "complex query: routed to powerful-tier default model"
	}
}

func demotedCandidate(r *modelconfig.Registry, tier modelconfig.Tier, primary *modelconfig.ModelConfig) *modelconfig.ModelConfig {
	if primary.HasCapability(modelconfig.CapabilityCode) {
		if cfg := firstDefaultOrFirst(r.ByTierAndCapability(tier, modelconfig.CapabilityCode)); cfg != nil {
			return cfg
		}
	}
	if primary.HasCapability(modelconfig.CapabilityVision) {
		if cfg := firstDefaultOrFirst(r.ByTierAndCapability(tier, modelconfig.CapabilityVision)); cfg != nil {
			return cfg
		}
	}
	return firstDefaultOrFirst(r.ByTierAndCapability(tier, modelconfig.CapabilityText))
}

// fallbackChain builds the ordered fallback chain for primary: a
// same-tier alternative from a different backend, then tier escalation,
// deduplicated and excluding primary.
func (c *Core) fallbackChain(primary *modelconfig.ModelConfig) []*modelconfig.ModelConfig {
	var chain []*modelconfig.ModelConfig

	sameTier := lo.Filter(c.registry.ByTier(primary.Tier), func(cfg *modelconfig.ModelConfig, _ int) bool {
		return cfg.BackendID != primary.BackendID
	})
	if alt := firstOrNil(sameTier); alt != nil {
		chain = append(chain, alt)
	}

	switch primary.Tier {
	case modelconfig.TierFast:
		if cfg := firstDefaultOrFirst(c.registry.ByTier(modelconfig.TierBalanced)); cfg != nil {
			chain = append(chain, cfg)
		}
		if cfg := firstDefaultOrFirst(c.registry.ByTier(modelconfig.TierPowerful)); cfg != nil {
			chain = append(chain, cfg)
		}
	case modelconfig.TierBalanced:
		if cfg := firstDefaultOrFirst(c.registry.ByTier(modelconfig.TierPowerful)); cfg != nil {
			chain = append(chain, cfg)
		}
		if cfg := firstExpertOrFirst(c.registry.ByTier(modelconfig.TierPowerful)); cfg != nil {
			chain = append(chain, cfg)
		}
	case modelconfig.TierPowerful:
		others := lo.Filter(c.registry.ByTier(modelconfig.TierPowerful), func(cfg *modelconfig.ModelConfig, _ int) bool {
			return cfg.ModelID != primary.ModelID
		})
		if cfg := firstOrNil(others); cfg != nil {
			chain = append(chain, cfg)
		}
	}

	chain = lo.Filter(chain, func(cfg *modelconfig.ModelConfig, _ int) bool {
		return cfg.ModelID != primary.ModelID
	})
	chain = lo.UniqBy(chain, func(cfg *modelconfig.ModelConfig) string { return cfg.ModelID })
	return chain
}

// Route computes a RoutingDecision for q given its already-computed
// complexity score. Route is pure: equal inputs yield equal decisions.
func (c *Core) Route(score complexity.Score, q *query.Query, preferCheaper bool) *modelconfig.RoutingDecision {
	primary, reasoning := c.pick(score, q)

	if (preferCheaper || q.Hints.Bool(query.HintPreferCheap)) && primary != nil {
		demotedTier := demote(primary.Tier)
		if demotedTier != primary.Tier {
			if cfg := demotedCandidate(c.registry, demotedTier, primary); cfg != nil {
				primary = cfg
				reasoning += "; demoted one tier by prefer-cheap hint"
			}
		}
	}

	if primary == nil {
		return &modelconfig.RoutingDecision{Reasoning: "no model configuration available for this request"}
	}

	return &modelconfig.RoutingDecision{
		ModelConfig:   primary,
		Reasoning:     reasoning,
		EstimatedCost: modelconfig.Cost(primary, 0, 0),
		FallbackChain: c.fallbackChain(primary),
	}
}
