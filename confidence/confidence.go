// Package confidence implements ConfidenceEvaluator: a heuristic,
// post-hoc confidence score computed from response text alone. It never
// calls out to a model.
package confidence

import (
	"math"
	"regexp"
	"strings"

	"github.com/abrahaamv/queryorchestrator/modelconfig"
)

// Indicators holds the four raw (pre-weight) indicator values.
type Indicators struct {
	Uncertainty float64
	Specificity float64
	Consistency float64
	Factuality  float64
}

const (
	weightUncertainty = 0.30
	weightSpecificity = 0.30
	weightConsistency = 0.20
	weightFactuality  = 0.20
)

// Metrics is the result of evaluating one response.
type Metrics struct {
	Score              float64
	Indicators         Indicators
	RequiresEscalation bool
	Reasoning          string
}

var hedgingTokens = []string{
	"maybe", "possibly", "might", "could", "perhaps", "likely", "probably",
	"seems", "appears", "may", "uncertain", "not sure", "unclear",
	"don't know", "cannot confirm",
}

var hedgingPhrases = []string{
	"i think", "i believe", "in my opinion", "it seems", "it appears",
	"as far as i know", "to my understanding", "from what i can tell",
}

var confidenceIndicatorWords = []string{
	"definitely", "certainly", "absolutely", "clearly", "specifically",
	"exactly", "precisely", "confirmed", "verified",
}

var vagueTerms = []string{"thing", "stuff", "something", "anything", "everything"}

var contrastiveMarkers = []string{"however", "but", "although", "on the other hand", "conversely", "in contrast"}
var selfCorrectionMarkers = []string{"actually", "rather", "correction", "more accurately"}
var opinionMarkers = []string{"i think", "i believe", "in my opinion", "personally"}

var digitSequenceRe = regexp.MustCompile(`\d+`)
var codeBlockRe = regexp.MustCompile("```")
var citationMarkerRe = regexp.MustCompile(`(?i)\[\d+\]|\(source:|according to|based on|as stated in|referenced in`)

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

// Evaluate scores responseText and decides whether escalation is
// warranted given currentTier. It is pure and never suspends.
func Evaluate(responseText string, currentTier modelconfig.Tier, confidenceThreshold, highConfidenceThreshold float64) Metrics {
	lower := strings.ToLower(responseText)

	hedgeTokenCount := countOccurrences(lower, hedgingTokens)
	hedgePhraseCount := countOccurrences(lower, hedgingPhrases)
	uncertainty := 1 - math.Min(0.5, 0.1*(float64(hedgeTokenCount)+2*float64(hedgePhraseCount)))

	specificity := 0.5
	digitSeqCount := len(digitSequenceRe.FindAllString(responseText, -1))
	specificity += math.Min(0.20, 0.05*float64(digitSeqCount))
	if codeBlockRe.MatchString(responseText) {
		specificity += 0.15
	}
	citationCount := len(citationMarkerRe.FindAllString(responseText, -1))
	specificity += math.Min(0.15, 0.05*float64(citationCount))
	specificity += 0.03 * float64(countOccurrences(lower, confidenceIndicatorWords))
	specificity -= 0.05 * float64(countOccurrences(lower, vagueTerms))
	specificity = clamp01(specificity)

	consistency := 0.8
	if countOccurrences(lower, contrastiveMarkers) > 3 {
		consistency -= 0.2
	}
	consistency -= 0.1 * float64(countOccurrences(lower, selfCorrectionMarkers))
	consistency = clamp01(consistency)

	factuality := 0.5
	factuality += math.Min(0.3, 0.1*float64(citationCount))
	numericPoints := len(digitSequenceRe.FindAllString(responseText, -1))
	factuality += math.Min(0.2, 0.05*float64(numericPoints))
	factuality -= 0.1 * float64(countOccurrences(lower, opinionMarkers))
	factuality = clamp01(factuality)

	indicators := Indicators{
		Uncertainty: uncertainty,
		Specificity: specificity,
		Consistency: consistency,
		Factuality:  factuality,
	}

	score := clamp01(
		weightUncertainty*uncertainty +
			weightSpecificity*specificity +
			weightConsistency*consistency +
			weightFactuality*factuality,
	)

	requiresEscalation := score < confidenceThreshold && currentTier != modelconfig.TierPowerful

	return Metrics{
		Score:              score,
		Indicators:         indicators,
		RequiresEscalation: requiresEscalation,
		Reasoning:          reasoningFor(indicators, score),
	}
}

// DisclaimerFor returns the low-confidence disclaimer text to append
// (never substitute) when escalation has been exhausted: a stronger
// disclaimer below confidenceThreshold, a softer one between
// confidenceThreshold and highConfidenceThreshold, and none
// at or above highConfidenceThreshold. Callers invoke this only once
// they have confirmed no further escalation is possible.
func DisclaimerFor(score, confidenceThreshold, highConfidenceThreshold float64) string {
	switch {
	case score < confidenceThreshold:
		return "Note: this response may be incomplete or uncertain; please verify independently."
	case score < highConfidenceThreshold:
		return "Note: please double-check details in this response."
	default:
		return ""
	}
}

func reasoningFor(ind Indicators, score float64) string {
	if score >= 0.8 {
		return "high confidence across uncertainty, specificity, consistency, and factuality indicators"
	}
	if score >= 0.6 {
		return "moderate confidence; some hedging or lack of specificity detected"
	}
	return "low confidence; response shows hedging, vagueness, or internal inconsistency"
}
