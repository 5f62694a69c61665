package quality

import (
	"context"
	"strings"

	"github.com/samber/lo"
)

// RAGASReport is the result of one BatchScorer.Score call: five
// independent evidence metrics over a single (query, response, context)
// triple, exposed for observability and offline evaluation rather than
// as a live gating decision.
type RAGASReport struct {
	Faithfulness        float64
	AnswerRelevancy     float64
	ContextRelevancy    float64
	ContextPrecisionAtK float64
	// ContextRecall is nil unless a ground-truth answer was supplied;
	// computing it without one would just be restating ContextRelevancy.
	ContextRecall *float64
}

// BatchScorer computes RAGAS-style metrics over retrieval-augmented
// responses using the same surface word-overlap heuristics CheckQuality
// uses for its evidence scores. It holds no state and is safe to share.
type BatchScorer struct{}

// NewBatchScorer returns a BatchScorer.
func NewBatchScorer() *BatchScorer {
	return &BatchScorer{}
}

// Score evaluates one (queryText, responseText, chunks) triple. k bounds
// how many leading chunks contextPrecision considers; a k <= 0 or
// greater than len(chunks) considers all of them. groundTruth, when
// non-empty, also populates ContextRecall.
func (BatchScorer) Score(ctx context.Context, queryText, responseText string, chunks []string, k int, groundTruth string) RAGASReport {
	report := RAGASReport{
		Faithfulness:        kbAlignment(responseText, chunks),
		AnswerRelevancy:     answerRelevancy(queryText, responseText),
		ContextRelevancy:    contextRelevancy(queryText, chunks),
		ContextPrecisionAtK: contextPrecisionAtK(queryText, chunks, k),
	}
	if strings.TrimSpace(groundTruth) != "" {
		recall := contextRecall(groundTruth, chunks)
		report.ContextRecall = &recall
	}
	return report
}

// answerRelevancy is the fraction of the query's content words echoed
// back by the response: a response that never engages with the query's
// own terms is unlikely to actually answer it.
func answerRelevancy(queryText, responseText string) float64 {
	qWords := words(queryText)
	if len(qWords) == 0 {
		return 1
	}
	return wordOverlapFraction(qWords, words(responseText))
}

// chunkRelevance scores how much a single chunk's words overlap with
// the query's words.
func chunkRelevance(queryText, chunk string) float64 {
	qWords := words(queryText)
	if len(qWords) == 0 {
		return 0
	}
	return wordOverlapFraction(qWords, words(chunk))
}

// contextRelevancy averages chunkRelevance over every retrieved chunk.
func contextRelevancy(queryText string, chunks []string) float64 {
	if len(chunks) == 0 {
		return 0
	}
	scores := lo.Map(chunks, func(c string, _ int) float64 { return chunkRelevance(queryText, c) })
	return lo.Sum(scores) / float64(len(scores))
}

const chunkRelevanceThreshold = 0.2

// contextPrecisionAtK is the fraction of the first k chunks judged
// relevant (chunkRelevance at or above chunkRelevanceThreshold). A ranking
// that front-loads irrelevant chunks scores lower than one that
// front-loads relevant ones, even with the same overall relevancy.
func contextPrecisionAtK(queryText string, chunks []string, k int) float64 {
	if len(chunks) == 0 {
		return 0
	}
	if k <= 0 || k > len(chunks) {
		k = len(chunks)
	}
	top := chunks[:k]
	relevant := lo.CountBy(top, func(c string) bool {
		return chunkRelevance(queryText, c) >= chunkRelevanceThreshold
	})
	return float64(relevant) / float64(k)
}

// contextRecall is the fraction of the ground truth's content words
// that appear somewhere across the retrieved chunks: how much of what a
// correct answer needed was actually retrieved.
func contextRecall(groundTruth string, chunks []string) float64 {
	gtWords := words(groundTruth)
	if len(gtWords) == 0 {
		return 1
	}
	combined := words(strings.Join(chunks, " "))
	return wordOverlapFraction(gtWords, combined)
}
