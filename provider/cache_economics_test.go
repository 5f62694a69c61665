package provider

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/abrahaamv/queryorchestrator/modelconfig"
	"github.com/abrahaamv/queryorchestrator/provider/tokencount"
)

func TestSegmentSystemMessage_BlankLineDelimited(t *testing.T) {
	system := "First section.\n\nSecond section.\n\nThird section."
	segments := segmentSystemMessage(system, tokencount.NewEstimator())
	assert.Equal(t, []string{"First section.", "Second section.", "Third section."}, segments)
}

func TestSegmentSystemMessage_SingleBlockLongEnoughSplitsInTwo(t *testing.T) {
	system := strings.Repeat("token words go here ", 20)
	segments := segmentSystemMessage(system, tokencount.NewEstimator())
	assert.Len(t, segments, 2)
}

func TestSegmentSystemMessage_SingleBlockTooShortStaysOne(t *testing.T) {
	system := "short"
	segments := segmentSystemMessage(system, tokencount.NewEstimator())
	assert.Len(t, segments, 1)
}

func TestCacheCost_AppliesMultipliers(t *testing.T) {
	cfg := &modelconfig.ModelConfig{CostPerMillionIn: 10, CostPerMillionOut: 30}
	resp := &WireResponse{
		InputTokens:      1000,
		CacheWriteTokens: 200,
		CacheReadTokens:  300,
		OutputTokens:     100,
	}
	got := cacheCost(cfg, resp)

	inRate := 10.0 / 1e6
	outRate := 30.0 / 1e6
	want := 500.0*inRate + 200.0*inRate*cacheWriteMultiplier + 300.0*inRate*cacheReadMultiplier + 100.0*outRate
	assert.InDelta(t, want, got, 1e-9)
}

func TestCacheSavings_NeverNegative(t *testing.T) {
	cfg := &modelconfig.ModelConfig{CostPerMillionIn: 10, CostPerMillionOut: 30}
	resp := &WireResponse{InputTokens: 100, OutputTokens: 10}
	got := cacheSavings(cfg, resp)
	assert.GreaterOrEqual(t, got, 0.0)
}

func TestCacheSavings_PositiveWhenCacheReadHeavy(t *testing.T) {
	cfg := &modelconfig.ModelConfig{CostPerMillionIn: 10, CostPerMillionOut: 30}
	resp := &WireResponse{InputTokens: 1000, CacheReadTokens: 900, OutputTokens: 10}
	got := cacheSavings(cfg, resp)
	assert.Greater(t, got, 0.0)
}
