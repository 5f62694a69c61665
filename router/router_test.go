package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abrahaamv/queryorchestrator/complexity"
	"github.com/abrahaamv/queryorchestrator/modelconfig"
	"github.com/abrahaamv/queryorchestrator/query"
)

func buildRegistry(t *testing.T) *modelconfig.Registry {
	t.Helper()
	reg, err := modelconfig.NewRegistry([]*modelconfig.ModelConfig{
		{ModelID: "fast-a", Tier: modelconfig.TierFast, BackendID: modelconfig.BackendA, Capabilities: []string{modelconfig.CapabilityText}, IsDefault: true},
		{ModelID: "fast-b", Tier: modelconfig.TierFast, BackendID: modelconfig.BackendB, Capabilities: []string{modelconfig.CapabilityText}},
		{ModelID: "fast-vision-a", Tier: modelconfig.TierFast, BackendID: modelconfig.BackendA, Capabilities: []string{modelconfig.CapabilityVision}, IsDefault: true},
		{ModelID: "balanced-a", Tier: modelconfig.TierBalanced, BackendID: modelconfig.BackendA, Capabilities: []string{modelconfig.CapabilityText}, IsDefault: true},
		{ModelID: "balanced-code-a", Tier: modelconfig.TierBalanced, BackendID: modelconfig.BackendA, Capabilities: []string{modelconfig.CapabilityCode}, IsDefault: true},
		{ModelID: "powerful-a", Tier: modelconfig.TierPowerful, BackendID: modelconfig.BackendA, Capabilities: []string{modelconfig.CapabilityText}, IsDefault: true},
		{ModelID: "powerful-expert-a", Tier: modelconfig.TierPowerful, BackendID: modelconfig.BackendA, Capabilities: []string{modelconfig.CapabilityExpert}, IsExpert: true},
		{ModelID: "powerful-b", Tier: modelconfig.TierPowerful, BackendID: modelconfig.BackendB, Capabilities: []string{modelconfig.CapabilityText}},
	})
	require.NoError(t, err)
	return reg
}

func TestRoute_Vision_OverridesComplexity(t *testing.T) {
	core := New(buildRegistry(t))
	q := &query.Query{TenantID: "t1", Text: "What do you see in this image?"}
	decision := core.Route(complexity.Score{Level: complexity.LevelComplex, Score: 0.9}, q, false)
	require.NotNil(t, decision.ModelConfig)
	assert.Equal(t, "fast-vision-a", decision.ModelConfig.ModelID)
}

func TestRoute_Simple_FastTier(t *testing.T) {
	core := New(buildRegistry(t))
	q := &query.Query{TenantID: "t1", Text: "What is 2+2?"}
	decision := core.Route(complexity.Score{Level: complexity.LevelSimple, Score: 0.2}, q, false)
	assert.Equal(t, "fast-a", decision.ModelConfig.ModelID)
}

func TestRoute_ModerateWithCodeGen_BalancedCode(t *testing.T) {
	core := New(buildRegistry(t))
	q := &query.Query{TenantID: "t1", Text: "write a function", Hints: query.Hints{query.HintRequiresCodeGeneration: true}}
	decision := core.Route(complexity.Score{Level: complexity.LevelModerate, Score: 0.5}, q, false)
	assert.Equal(t, "balanced-code-a", decision.ModelConfig.ModelID)
}

func TestRoute_ComplexHighScore_ExpertModel(t *testing.T) {
	core := New(buildRegistry(t))
	q := &query.Query{TenantID: "t1", Text: "deep analysis"}
	decision := core.Route(complexity.Score{Level: complexity.LevelComplex, Score: 0.9}, q, false)
	assert.Equal(t, "powerful-expert-a", decision.ModelConfig.ModelID)
}

func TestRoute_ComplexLowerScore_DefaultPowerful(t *testing.T) {
	core := New(buildRegistry(t))
	q := &query.Query{TenantID: "t1", Text: "deep analysis"}
	decision := core.Route(complexity.Score{Level: complexity.LevelComplex, Score: 0.7}, q, false)
	assert.Equal(t, "powerful-a", decision.ModelConfig.ModelID)
}

func TestRoute_PreferCheap_DemotesOneTier(t *testing.T) {
	core := New(buildRegistry(t))
	q := &query.Query{TenantID: "t1", Text: "deep analysis"}
	decision := core.Route(complexity.Score{Level: complexity.LevelComplex, Score: 0.9}, q, true)
	assert.Equal(t, "balanced-a", decision.ModelConfig.ModelID)
}

func TestRoute_FallbackChain_NeverContainsPrimary(t *testing.T) {
	core := New(buildRegistry(t))
	q := &query.Query{TenantID: "t1", Text: "What is 2+2?"}
	decision := core.Route(complexity.Score{Level: complexity.LevelSimple, Score: 0.2}, q, false)
	for _, fb := range decision.FallbackChain {
		assert.NotEqual(t, decision.ModelConfig.ModelID, fb.ModelID)
	}
	assert.NotEmpty(t, decision.FallbackChain)
}

func TestRoute_FallbackChain_NoDuplicates(t *testing.T) {
	core := New(buildRegistry(t))
	q := &query.Query{TenantID: "t1", Text: "deep analysis"}
	decision := core.Route(complexity.Score{Level: complexity.LevelComplex, Score: 0.9}, q, false)
	seen := map[string]bool{}
	for _, fb := range decision.FallbackChain {
		assert.False(t, seen[fb.ModelID])
		seen[fb.ModelID] = true
	}
}

func TestRoute_IsPure(t *testing.T) {
	core := New(buildRegistry(t))
	q := &query.Query{TenantID: "t1", Text: "What is 2+2?"}
	d1 := core.Route(complexity.Score{Level: complexity.LevelSimple, Score: 0.2}, q, false)
	d2 := core.Route(complexity.Score{Level: complexity.LevelSimple, Score: 0.2}, q, false)
	assert.Equal(t, d1.ModelConfig.ModelID, d2.ModelConfig.ModelID)
	assert.Equal(t, d1.Reasoning, d2.Reasoning)
}
