// Package quality implements QualityChecker: faithfulness, citation,
// consistency, and hallucination scoring over a generated response.
package quality

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/abrahaamv/queryorchestrator/query"
)

// Recommendation is the QualityChecker's disposition for a response.
type Recommendation string

const (
	RecommendApprove       Recommendation = "approve"
	RecommendFlagForReview Recommendation = "flag_for_review"
	RecommendReject        Recommendation = "reject"
)

// Evidence holds the four raw (pre-weight) evidence scores, each in [0,1].
type Evidence struct {
	KBAlignment      float64
	CitationPresence float64
	Consistency      float64
	FactCheck        float64
}

const (
	weightKB          = 0.4
	weightCitation    = 0.3
	weightConsistency = 0.2
	weightFactCheck   = 0.1
)

// Report is the result of one CheckQuality call.
type Report struct {
	Confidence      float64
	Evidence        Evidence
	IsHallucination bool
	Recommendation  Recommendation
	Reasoning       string
}

// FactChecker is an optional external fact-checking collaborator. The
// default checker always returns a fixed placeholder score, deferring
// real fact-checking to a caller-supplied implementation.
type FactChecker interface {
	Check(ctx context.Context, responseText string, chunks []string) (float64, error)
}

// placeholderFactChecker is the default FactChecker: a fixed score,
// returned unconditionally regardless of input.
type placeholderFactChecker struct{ score float64 }

func (p placeholderFactChecker) Check(context.Context, string, []string) (float64, error) {
	return p.score, nil
}

// DefaultFactChecker returns a fixed placeholder score (0.8).
func DefaultFactChecker() FactChecker {
	return placeholderFactChecker{score: 0.8}
}

// Config configures one Checker.
type Config struct {
	FactChecker            FactChecker
	HallucinationThreshold float64
	ConfidenceThreshold    float64
	RequireCitations       bool
	MinimumCitations       int
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.FactChecker == nil {
		out.FactChecker = DefaultFactChecker()
	}
	if out.HallucinationThreshold == 0 {
		out.HallucinationThreshold = 0.6
	}
	if out.ConfidenceThreshold == 0 {
		out.ConfidenceThreshold = 0.7
	}
	return out
}

// Checker implements QualityChecker.
type Checker struct {
	cfg Config
}

// New builds a Checker. cfg is copied and defaulted.
func New(cfg Config) *Checker {
	return &Checker{cfg: cfg.withDefaults()}
}

var sentenceSplitRe = regexp.MustCompile(`[.!?]+\s+`)
var wordRe = regexp.MustCompile(`[a-z0-9']+`)
var citationPatternRe = regexp.MustCompile(`(?i)\[\d+\]|\(source:|according to|based on|as stated in|referenced in`)
var negationRe = regexp.MustCompile(`(?i)\bnot\b|\bnever\b|\bno\b|n't\b`)

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

func words(s string) []string {
	return wordRe.FindAllString(strings.ToLower(s), -1)
}

// kbAlignment extracts declarative sentences longer than 20 characters
// and scores the fraction "supported" by the retrieved chunks.
func kbAlignment(responseText string, chunks []string) float64 {
	combined := strings.ToLower(strings.Join(chunks, " "))
	combinedWords := lo.Uniq(words(combined))
	combinedSet := make(map[string]bool, len(combinedWords))
	for _, w := range combinedWords {
		combinedSet[w] = true
	}

	sentences := lo.Filter(sentenceSplitRe.Split(responseText, -1), func(s string, _ int) bool {
		return len(strings.TrimSpace(s)) > 20
	})
	if len(sentences) == 0 {
		return 1
	}

	supported := 0
	for _, sentence := range sentences {
		sw := words(sentence)
		if len(sw) == 0 {
			continue
		}
		hits := 0
		for _, w := range sw {
			if combinedSet[w] {
				hits++
			}
		}
		overlap := float64(hits) / float64(len(sw))
		if overlap > 0.5 {
			supported++
		}
	}
	return float64(supported) / float64(len(sentences))
}

func citationPresence(responseText string, requireCitations bool, minimumCitations int) float64 {
	if !requireCitations {
		return 1
	}
	count := len(citationPatternRe.FindAllString(responseText, -1))
	if count >= minimumCitations {
		return 1
	}
	return 0
}

// wordOverlapFraction is the fraction of a's content words also present in b.
func wordOverlapFraction(a, b []string) float64 {
	if len(a) == 0 {
		return 0
	}
	bSet := make(map[string]bool, len(b))
	for _, w := range b {
		bSet[w] = true
	}
	hits := 0
	for _, w := range a {
		if bSet[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(a))
}

// consistency detects contradictions between the response and prior
// assistant turns: a contradiction is flagged when two statements share
// more than 60% of their content words and exactly one contains a
// negation marker.
func consistency(responseText string, history []query.Message) float64 {
	priorAssistantTurns := lo.FilterMap(history, func(m query.Message, _ int) (string, bool) {
		return m.Content, m.Role == query.RoleAssistant
	})
	if len(priorAssistantTurns) == 0 {
		return 1
	}

	responseSentences := lo.Filter(sentenceSplitRe.Split(responseText, -1), func(s string, _ int) bool {
		return strings.TrimSpace(s) != ""
	})

	contradictions := 0
	for _, prior := range priorAssistantTurns {
		for _, priorSentence := range sentenceSplitRe.Split(prior, -1) {
			priorWords := words(priorSentence)
			if len(priorWords) == 0 {
				continue
			}
			priorNegated := negationRe.MatchString(priorSentence)
			for _, respSentence := range responseSentences {
				respWords := words(respSentence)
				if wordOverlapFraction(respWords, priorWords) <= 0.6 {
					continue
				}
				respNegated := negationRe.MatchString(respSentence)
				if priorNegated != respNegated {
					contradictions++
				}
			}
		}
	}

	return clamp01(1 - 0.2*float64(contradictions))
}

// CheckQuality evaluates responseText against query, conversation history,
// and retrieved chunk text.
func (c *Checker) CheckQuality(ctx context.Context, responseText string, q *query.Query, chunks []string) Report {
	ev := Evidence{
		KBAlignment:      kbAlignment(responseText, chunks),
		CitationPresence: citationPresence(responseText, c.cfg.RequireCitations, c.cfg.MinimumCitations),
		Consistency:      consistency(responseText, q.ConversationHistory),
	}

	factScore, err := c.cfg.FactChecker.Check(ctx, responseText, chunks)
	if err != nil {
		factScore = 0.8
	}
	ev.FactCheck = clamp01(factScore)

	confidence := clamp01(
		weightKB*ev.KBAlignment +
			weightCitation*ev.CitationPresence +
			weightConsistency*ev.Consistency +
			weightFactCheck*ev.FactCheck,
	)

	isHallucination := confidence < c.cfg.HallucinationThreshold

	var rec Recommendation
	switch {
	case isHallucination:
		rec = RecommendReject
	case confidence >= c.cfg.ConfidenceThreshold:
		rec = RecommendApprove
	default:
		rec = RecommendFlagForReview
	}

	return Report{
		Confidence:      confidence,
		Evidence:        ev,
		IsHallucination: isHallucination,
		Recommendation:  rec,
		Reasoning:       reasoningFor(ev, confidence, isHallucination),
	}
}

func reasoningFor(ev Evidence, confidence float64, isHallucination bool) string {
	if isHallucination {
		return "weighted confidence below hallucination threshold; response is not well supported by retrieved evidence"
	}
	if confidence >= 0.8 {
		return "response is well aligned with retrieved evidence and citation requirements"
	}
	return "response is partially supported; review knowledge-base alignment and citations"
}
