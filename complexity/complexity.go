// Package complexity implements ComplexityAnalyzer: a pure function from
// query text to a ComplexityScore.
package complexity

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/abrahaamv/queryorchestrator/query"
)

// Level buckets a Score into a coarse complexity band.
type Level string

const (
	LevelSimple   Level = "simple"
	LevelModerate Level = "moderate"
	LevelComplex  Level = "complex"
)

// Factors holds the five raw (pre-weight) factor values, each in [0,1].
type Factors struct {
	EntityCount    float64
	Depth          float64
	Specificity    float64
	TechnicalTerms float64
	Ambiguity      float64
}

// weights sum to 1.
const (
	weightEntityCount    = 0.30
	weightDepth          = 0.25
	weightSpecificity    = 0.20
	weightTechnicalTerms = 0.15
	weightAmbiguity      = 0.10
)

// Score is the result of analyzing one query.
type Score struct {
	Level     Level
	Score     float64
	Factors   Factors
	Reasoning string
}

var technicalVocabulary = map[string]bool{
	"algorithm": true, "api": true, "architecture": true, "async": true,
	"authentication": true, "backend": true, "cache": true, "compiler": true,
	"concurrency": true, "container": true, "database": true, "deployment": true,
	"encryption": true, "framework": true, "frontend": true, "function": true,
	"integration": true, "kubernetes": true, "latency": true, "middleware": true,
	"microservice": true, "optimization": true, "pipeline": true, "protocol": true,
	"recursion": true, "refactor": true, "runtime": true, "schema": true,
	"serialization": true, "throughput": true, "topology": true, "variable": true,
	"saas": true, "enterprise": true, "marketing": true, "strategy": true,
	"roadmap": true, "analytics": true, "segmentation": true, "monetization": true,
}

var compoundTechnicalTerms = []string{
	"machine learning", "neural network", "load balancer", "message queue",
	"version control", "data structure", "rate limit", "circuit breaker",
	"service mesh", "object storage",
}

var depthIndicators = []string{
	"first", "then", "finally", "step by step", "walk through",
	"explain how", "what happens when", "because",
}

var vagueTerms = []string{"thing", "stuff", "something", "anything", "everything"}
var specificMarkers = []string{"exactly", "specifically", "precisely", "particular"}
var hedgingTokens = []string{"maybe", "possibly", "might", "could", "perhaps", "not sure", "unclear"}
var whWords = []string{"what", "when", "where", "who", "which", "why", "how"}

var properNounRe = regexp.MustCompile(`\b[A-Z][a-zA-Z]+\b`)
var digitRe = regexp.MustCompile(`\d`)
var questionMarkRe = regexp.MustCompile(`\?`)

// simpleFactualPatterns short-circuit the score to exactly 0.2 before
// weighted aggregation.
var simpleFactualPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(what|when|where|who|which)\s+(is|are|was|were)\b`),
	regexp.MustCompile(`(?i)^(is|are|was|were|do|does|did|can|could|will|would)\s+\S`),
	regexp.MustCompile(`(?i)^define\s+\S`),
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

func countOccurrences(lower string, terms []string) int {
	n := 0
	for _, t := range terms {
		n += strings.Count(lower, t)
	}
	return n
}

// countEntities counts proper nouns (capitalized tokens, length > 1),
// closed-vocabulary technical terms, and compound technical terms.
func countEntities(text, lower string) int {
	n := 0
	for _, m := range properNounRe.FindAllString(text, -1) {
		if len(m) > 1 {
			n++
		}
	}
	for word := range technicalVocabulary {
		n += strings.Count(lower, word)
	}
	for _, c := range compoundTechnicalTerms {
		n += strings.Count(lower, c)
	}
	return n
}

func countTechnicalTerms(lower string) int {
	n := 0
	for word := range technicalVocabulary {
		if strings.Contains(lower, word) {
			n++
		}
	}
	for _, c := range compoundTechnicalTerms {
		if strings.Contains(lower, c) {
			n++
		}
	}
	return n
}

// Analyze computes a Score from q.Text alone; history and hints do not
// affect it. It is pure: identical inputs always produce identical outputs.
func Analyze(q *query.Query) Score {
	text := q.Text
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	for _, pat := range simpleFactualPatterns {
		if pat.MatchString(trimmed) {
			return Score{
				Level: LevelSimple,
				Score: 0.2,
				Factors: Factors{
					EntityCount:    0,
					Depth:          0,
					Specificity:    0,
					TechnicalTerms: 0,
					Ambiguity:      0,
				},
				Reasoning: "short-circuited: matches a simple factual question pattern",
			}
		}
	}

	factors := computeFactors(trimmed, lower)

	weighted := factors.EntityCount*weightEntityCount +
		factors.Depth*weightDepth +
		factors.Specificity*weightSpecificity +
		factors.TechnicalTerms*weightTechnicalTerms +
		factors.Ambiguity*weightAmbiguity

	weighted = clamp01(weighted)

	return Score{
		Level:     levelFor(weighted),
		Score:     weighted,
		Factors:   factors,
		Reasoning: reasoningFor(factors, weighted),
	}
}

func computeFactors(trimmed, lower string) Factors {
	entityCount := float64(countEntities(trimmed, lower)) / 5
	entityCount = clamp01(entityCount)

	depthRaw := 0.0
	for _, ind := range depthIndicators {
		if strings.Contains(lower, ind) {
			depthRaw++
		}
	}
	punctCount := strings.Count(trimmed, ",") + strings.Count(trimmed, ";") +
		countOccurrences(lower, []string{" and ", " or ", " but "})
	depthRaw += math.Floor(float64(punctCount) / 3)
	extraQuestions := len(questionMarkRe.FindAllString(trimmed, -1)) - 1
	if extraQuestions > 0 {
		depthRaw += float64(extraQuestions)
	}
	depth := clamp01(math.Min(5, depthRaw) / 5)

	specificity := 0.5
	specificity += 0.20 * float64(countOccurrences(lower, vagueTerms))
	specificity -= 0.10 * float64(countOccurrences(lower, specificMarkers))
	if digitRe.MatchString(trimmed) {
		specificity -= 0.15
	}
	specificity = clamp01(specificity)

	techRaw := float64(countTechnicalTerms(lower))
	technicalTerms := clamp01(math.Min(3, techRaw) / 3)

	ambiguity := 0.0
	ambiguity += 0.15 * float64(countOccurrences(lower, hedgingTokens))
	whCount := 0
	for _, w := range whWords {
		if strings.Contains(lower, w) {
			whCount++
		}
	}
	if whCount > 2 {
		ambiguity += 0.20
	}
	ambiguity = clamp01(ambiguity)

	return Factors{
		EntityCount:    entityCount,
		Depth:          depth,
		Specificity:    specificity,
		TechnicalTerms: technicalTerms,
		Ambiguity:      ambiguity,
	}
}

func levelFor(score float64) Level {
	switch {
	case score < 0.3:
		return LevelSimple
	case score < 0.6:
		return LevelModerate
	default:
		return LevelComplex
	}
}

func reasoningFor(f Factors, score float64) string {
	top := lo.MaxBy(
		[]struct {
			name  string
			value float64
		}{
			{"entity density", f.EntityCount},
			{"multi-step depth", f.Depth},
			{"vagueness", f.Specificity},
			{"technical vocabulary", f.TechnicalTerms},
			{"ambiguity", f.Ambiguity},
		},
		func(a, b struct {
			name  string
			value float64
		}) bool {
			return a.value > b.value
		},
	)
	return "weighted score " + strconv.FormatFloat(score, 'f', 2, 64) + " driven primarily by " + top.name
}
