package provider

import (
	"strings"

	"github.com/abrahaamv/queryorchestrator/modelconfig"
	"github.com/abrahaamv/queryorchestrator/provider/tokencount"
)

const (
	cacheWriteMultiplier     = 1.25
	cacheReadMultiplier      = 0.10
	minCacheableSegments     = 2
	minCacheableSystemTokens = 20 // below this, cache-write overhead isn't worth paying
)

// segmentSystemMessage splits a system message into sections so the
// gateway can decide whether at least two sections exist to make
// caching worthwhile. Sections are delimited by blank lines; a message
// with no blank-line structure but long enough (by estimated token
// count, not raw character length) to clear minCacheableSystemTokens is
// treated as two sections (header + body) so genuinely long
// single-block system prompts remain cacheable.
func segmentSystemMessage(system string, counter *tokencount.Estimator) []string {
	raw := strings.Split(system, "\n\n")
	var segments []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) < minCacheableSegments && counter.Count(system) >= minCacheableSystemTokens {
		mid := len(system) / 2
		return []string{system[:mid], system[mid:]}
	}
	return segments
}

// cacheCost computes the actual cost of resp against cfg using a
// cache-adjusted formula: regular input at the regular rate, cache-write
// tokens at 1.25x, cache-read tokens at 0.10x, output at the regular
// output rate.
func cacheCost(cfg *modelconfig.ModelConfig, resp *WireResponse) float64 {
	regularInput := resp.InputTokens - resp.CacheWriteTokens - resp.CacheReadTokens
	if regularInput < 0 {
		regularInput = 0
	}
	inRate := cfg.CostPerMillionIn / 1e6
	outRate := cfg.CostPerMillionOut / 1e6

	return float64(regularInput)*inRate +
		float64(resp.CacheWriteTokens)*inRate*cacheWriteMultiplier +
		float64(resp.CacheReadTokens)*inRate*cacheReadMultiplier +
		float64(resp.OutputTokens)*outRate
}

// cacheSavings computes the difference between the hypothetical
// uncached cost (all input tokens at the regular rate) and the actual
// cache-adjusted cost.
func cacheSavings(cfg *modelconfig.ModelConfig, resp *WireResponse) float64 {
	hypothetical := modelconfig.Cost(cfg, resp.InputTokens, resp.OutputTokens)
	actual := cacheCost(cfg, resp)
	savings := hypothetical - actual
	if savings < 0 {
		return 0
	}
	return savings
}
