// Package config holds the single enumerated configuration record for
// the orchestrator. There is no dynamic config object and no loader
// here; callers build a Config in process and call Validate.
package config

import (
	"fmt"
	"time"
)

// Config enumerates every tunable knob, with documented defaults
// applied by Default/Validate.
type Config struct {
	// EnableFallback disables the cascade after primary failure when false.
	EnableFallback bool
	// LogRouting emits routing-decision log records when true.
	LogRouting bool
	// PreferCheaperModels demotes one tier in RouterCore when true.
	PreferCheaperModels bool
	// EnableCaching requests prompt caching on supporting backends.
	EnableCaching bool

	ConfidenceThreshold       float64
	HallucinationThreshold    float64
	HighConfidenceThreshold   float64
	MediumConfidenceThreshold float64
	LowConfidenceThreshold    float64

	MaxRefinementAttempts       int
	MaxReasoningSteps           int
	MultiHopConfidenceThreshold float64

	RetrievalTopK     int
	MinRelevanceScore float64

	RequireCitations bool
	MinimumCitations int

	PerAttemptTimeout time.Duration
	PerRequestTimeout time.Duration
	MaxRetries        int

	// AutoFlagLowConfidence attaches an external-review flag to
	// hallucination-flagged responses instead of suppressing them.
	AutoFlagLowConfidence bool
}

// Default returns the documented default configuration.
func Default() *Config {
	return &Config{
		EnableFallback:      true,
		LogRouting:          true,
		PreferCheaperModels: false,
		EnableCaching:       true,

		ConfidenceThreshold:       0.7,
		HallucinationThreshold:    0.6,
		HighConfidenceThreshold:   0.8,
		MediumConfidenceThreshold: 0.6,
		LowConfidenceThreshold:    0.4,

		MaxRefinementAttempts:       3,
		MaxReasoningSteps:           5,
		MultiHopConfidenceThreshold: 0.7,

		RetrievalTopK:     10,
		MinRelevanceScore: 0.5,

		RequireCitations: true,
		MinimumCitations: 1,

		PerAttemptTimeout: 30 * time.Second,
		PerRequestTimeout: 60 * time.Second,
		MaxRetries:        3,

		AutoFlagLowConfidence: true,
	}
}

// Validate fills zero-valued numeric/duration fields with their
// documented defaults and rejects contradictory settings, following the
// Config.validate() defaulting pattern used throughout the corpus.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config: nil Config")
	}
	d := Default()

	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if c.HallucinationThreshold == 0 {
		c.HallucinationThreshold = d.HallucinationThreshold
	}
	if c.HighConfidenceThreshold == 0 {
		c.HighConfidenceThreshold = d.HighConfidenceThreshold
	}
	if c.MediumConfidenceThreshold == 0 {
		c.MediumConfidenceThreshold = d.MediumConfidenceThreshold
	}
	if c.LowConfidenceThreshold == 0 {
		c.LowConfidenceThreshold = d.LowConfidenceThreshold
	}
	if c.MaxRefinementAttempts == 0 {
		c.MaxRefinementAttempts = d.MaxRefinementAttempts
	}
	if c.MaxReasoningSteps == 0 {
		c.MaxReasoningSteps = d.MaxReasoningSteps
	}
	if c.MultiHopConfidenceThreshold == 0 {
		c.MultiHopConfidenceThreshold = d.MultiHopConfidenceThreshold
	}
	if c.RetrievalTopK == 0 {
		c.RetrievalTopK = d.RetrievalTopK
	}
	if c.MinRelevanceScore == 0 {
		c.MinRelevanceScore = d.MinRelevanceScore
	}
	if c.MinimumCitations == 0 {
		c.MinimumCitations = d.MinimumCitations
	}
	if c.PerAttemptTimeout == 0 {
		c.PerAttemptTimeout = d.PerAttemptTimeout
	}
	if c.PerRequestTimeout == 0 {
		c.PerRequestTimeout = d.PerRequestTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("config: MaxRetries must be >= 0")
	}
	if c.PerAttemptTimeout > c.PerRequestTimeout {
		return fmt.Errorf("config: PerAttemptTimeout (%s) must not exceed PerRequestTimeout (%s)",
			c.PerAttemptTimeout, c.PerRequestTimeout)
	}
	if c.LowConfidenceThreshold > c.MediumConfidenceThreshold ||
		c.MediumConfidenceThreshold > c.HighConfidenceThreshold {
		return fmt.Errorf("config: confidence thresholds must satisfy low <= medium <= high")
	}
	return nil
}
