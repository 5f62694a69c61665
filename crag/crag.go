package crag

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/abrahaamv/queryorchestrator/config"
	"github.com/abrahaamv/queryorchestrator/errs"
	"github.com/abrahaamv/queryorchestrator/executor"
	"github.com/abrahaamv/queryorchestrator/internal/safe"
	"github.com/abrahaamv/queryorchestrator/logging"
	"github.com/abrahaamv/queryorchestrator/modelconfig"
	"github.com/abrahaamv/queryorchestrator/provider"
	"github.com/abrahaamv/queryorchestrator/quality"
	"github.com/abrahaamv/queryorchestrator/query"
	"github.com/abrahaamv/queryorchestrator/retriever"
)

var ambiguousPronouns = []string{"it", "this", "that", "they", "he", "she", "them"}
var breadthMarkers = []string{"everything", "all", "general", "overview"}
var comparativeKeywords = []string{"compare", "versus", " vs ", "difference between", "better than"}
var temporalKeywords = []string{"when", "before", "after", "timeline", "history of", "since"}
var causalKeywords = []string{"why", "because", "cause", "reason", "effect of"}
var aggregativeKeywords = []string{"total", "sum", "average", "count", "all of", "how many"}
var clauseConnectives = []string{" and ", " then ", ";"}

var properNounRe = regexp.MustCompile(`\b[A-Z][a-zA-Z]+\b`)

func containsAny(lower string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func countConnectives(lower string) int {
	n := 0
	for _, c := range clauseConnectives {
		n += strings.Count(lower, c)
	}
	return n
}

// Response is the final product of one CRAGCoordinator.Answer call: the
// synthesized result, the quality report over it, and the full CRAG
// trail for observability.
type Response struct {
	Outcome Outcome
	Result  *modelconfig.CompletionResult
	Quality quality.Report
}

// Coordinator implements CRAGCoordinator: evaluate, refine, optional
// multi-hop, retrieve/synthesize, quality-check.
// It owns every collaborator the phase needs, since the coordinator
// depends on the rest of the pipeline in full.
type Coordinator struct {
	gateway   *provider.Gateway
	executor  *executor.Executor
	retriever *retriever.Adapter
	quality   *quality.Checker
	cfg       *config.Config
	log       logging.Logger
}

// New builds a Coordinator. cfg must already be Validate()d.
func New(gateway *provider.Gateway, exec *executor.Executor, ret *retriever.Adapter, qc *quality.Checker, cfg *config.Config, log logging.Logger) *Coordinator {
	if log == nil {
		log = logging.Nop
	}
	return &Coordinator{gateway: gateway, executor: exec, retriever: ret, quality: qc, cfg: cfg, log: log}
}

// evaluate computes a CRAGEvaluation from surface heuristics over text.
// It is pure.
func (c *Coordinator) evaluate(queryID, text string) Evaluation {
	lower := strings.ToLower(text)
	wordCount := len(strings.Fields(text))
	hasProperNoun := false
	for _, loc := range properNounRe.FindAllStringIndex(strings.TrimSpace(text), -1) {
		// A capital at the very start of the query is sentence case, not a name.
		if loc[0] > 0 {
			hasProperNoun = true
			break
		}
	}

	var issues []Issue
	var recs []RefinementStrategy

	if containsAny(lower, ambiguousPronouns) && !hasProperNoun {
		issues = append(issues, Issue{Type: IssueAmbiguous, Severity: SeverityHigh})
		recs = append(recs, StrategyClarification)
	}
	if containsAny(lower, breadthMarkers) {
		issues = append(issues, Issue{Type: IssueTooBroad, Severity: SeverityMedium})
		recs = append(recs, StrategyDecomposition)
	}
	if wordCount > 20 || countConnectives(lower) > 3 {
		issues = append(issues, Issue{Type: IssueTooNarrow, Severity: SeverityLow})
		recs = append(recs, StrategyExpansion)
	}

	reasoningType := reasoningTypeFor(lower)
	shouldUseMultiHop := reasoningType != ReasoningSingleHop

	confidence := 1.0
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityHigh:
			confidence -= 0.3
		case SeverityMedium:
			confidence -= 0.2
		case SeverityLow:
			confidence -= 0.1
		}
	}
	confidence = clamp01(confidence)

	return Evaluation{
		QueryID:           queryID,
		OriginalQuery:     text,
		Confidence:        confidence,
		ConfidenceLevel:   confidenceLevelFor(confidence, c.cfg.LowConfidenceThreshold, c.cfg.MediumConfidenceThreshold, c.cfg.HighConfidenceThreshold),
		ShouldRefine:      len(issues) > 0,
		ShouldUseMultiHop: shouldUseMultiHop,
		ReasoningType:     reasoningType,
		Issues:            issues,
		Recommendations:   recs,
	}
}

func reasoningTypeFor(lower string) ReasoningType {
	switch {
	case containsAny(lower, comparativeKeywords):
		return ReasoningComparative
	case containsAny(lower, temporalKeywords):
		return ReasoningTemporal
	case containsAny(lower, causalKeywords):
		return ReasoningCausal
	case containsAny(lower, aggregativeKeywords):
		return ReasoningAggregative
	case countConnectives(lower) > 0 || strings.Contains(lower, "?") && strings.Count(lower, "?") > 1:
		return ReasoningMultiHop
	default:
		return ReasoningSingleHop
	}
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// strategyPriority orders the strategies a refinement pass will try.
var strategyPriority = []RefinementStrategy{
	StrategyCorrection,
	StrategyClarification,
	StrategyDecomposition,
	StrategySimplification,
	StrategyExpansion,
	StrategyContextualization,
}

func nextStrategy(recommended []RefinementStrategy, tried map[RefinementStrategy]bool) (RefinementStrategy, bool) {
	recSet := make(map[RefinementStrategy]bool, len(recommended))
	for _, r := range recommended {
		recSet[r] = true
	}
	for _, s := range strategyPriority {
		if recSet[s] && !tried[s] {
			return s, true
		}
	}
	return "", false
}

func refinementPrompt(strategy RefinementStrategy, originalQuery string) string {
	switch strategy {
	case StrategyCorrection:
		return "Correct any spelling, grammar, or factual slips in this query, preserving its intent:\n\n" + originalQuery
	case StrategyClarification:
		return "This query is ambiguous. Rewrite it to be unambiguous, inferring the most likely intent:\n\n" + originalQuery
	case StrategyDecomposition:
		return "Break this broad query into a short numbered list of focused sub-questions:\n\n" + originalQuery
	case StrategySimplification:
		return "Simplify this overly complex query into a single clear question:\n\n" + originalQuery
	case StrategyExpansion:
		return "Expand this narrow query with relevant context so it can be answered more completely:\n\n" + originalQuery
	case StrategyContextualization:
		return "Rewrite this query adding any implicit context a reader would need:\n\n" + originalQuery
	default:
		return originalQuery
	}
}

// refine attempts at most cfg.MaxRefinementAttempts rewrites, stopping
// early once confidence improves or reaches the medium threshold.
// Failures degrade silently to the original text.
func (c *Coordinator) refine(ctx context.Context, tenantID string, eval Evaluation, decision *modelconfig.RoutingDecision) (string, []Refinement) {
	current := eval.OriginalQuery
	currentConfidence := eval.Confidence
	tried := make(map[RefinementStrategy]bool)
	var refinements []Refinement

	for attempt := 0; attempt < c.cfg.MaxRefinementAttempts; attempt++ {
		strategy, ok := nextStrategy(eval.Recommendations, tried)
		if !ok {
			break
		}
		tried[strategy] = true

		result, err := c.gateway.Complete(ctx, tenantID, decision.ModelConfig.ModelID, []query.Message{
			{Role: query.RoleUser, Content: refinementPrompt(strategy, current)},
		}, provider.Options{})
		if err != nil {
			c.log.Warn(ctx, "crag.refine.degraded", logging.TenantAttr(tenantID))
			break
		}

		refined := strings.TrimSpace(result.Content)
		if refined == "" {
			continue
		}

		reEval := c.evaluate(eval.QueryID, refined)
		refinement := Refinement{
			Original:   current,
			Refined:    refined,
			Strategy:   strategy,
			Confidence: reEval.Confidence,
			Reasoning:  fmt.Sprintf("applied %s strategy", strategy),
		}
		if strategy == StrategyDecomposition {
			refinement.SubQueries = parseSubQueries(refined)
			refinement.AddedContext = c.fanOutSubQueries(ctx, tenantID, refinement.SubQueries)
		}
		refinements = append(refinements, refinement)

		improved := reEval.Confidence > currentConfidence
		current = refined
		currentConfidence = reEval.Confidence

		if improved || currentConfidence >= c.cfg.MediumConfidenceThreshold {
			break
		}
	}

	return current, refinements
}

var subQueryLineRe = regexp.MustCompile(`(?m)^\s*\d+[.)]\s*(.+)$`)

func parseSubQueries(text string) []string {
	matches := subQueryLineRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return lo.Filter(strings.Split(text, "\n"), func(s string, _ int) bool {
			return strings.TrimSpace(s) != ""
		})
	}
	return lo.Map(matches, func(m []string, _ int) string { return strings.TrimSpace(m[1]) })
}

// fanOutSubQueries retrieves context for each sub-query concurrently; a
// partial failure still returns whatever sub-queries succeeded.
func (c *Coordinator) fanOutSubQueries(ctx context.Context, tenantID string, subQueries []string) string {
	if c.retriever == nil || len(subQueries) == 0 {
		return ""
	}

	var mu sync.Mutex
	var contexts []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, sq := range subQueries {
		sq := sq
		recoverable := safe.WithRecover("crag.fanout.subquery", func() {
			result, err := c.retriever.Retrieve(gctx, tenantID, sq, c.cfg.RetrievalTopK, c.cfg.MinRelevanceScore)
			if err != nil || result.ContextString == "" {
				return
			}
			mu.Lock()
			contexts = append(contexts, result.ContextString)
			mu.Unlock()
		}, func(perr error) {
			c.log.Warn(ctx, "crag.fanout.panic", logging.TenantAttr(tenantID))
		})
		g.Go(func() error {
			recoverable()
			return nil
		})
	}
	_ = g.Wait()

	return strings.Join(contexts, "\n\n---\n\n")
}

// multiHop runs up to cfg.MaxReasoningSteps strictly-sequential
// retrieval+synthesize cycles.
func (c *Coordinator) multiHop(ctx context.Context, tenantID string, decision *modelconfig.RoutingDecision, opt provider.Options, eval Evaluation, startQuery string) ([]ReasoningStep, string) {
	var steps []ReasoningStep
	var knowledge []string
	currentQuery := startQuery

	for step := 1; step <= c.cfg.MaxReasoningSteps; step++ {
		result, err := c.retriever.Retrieve(ctx, tenantID, currentQuery, c.cfg.RetrievalTopK, c.cfg.MinRelevanceScore)
		if err != nil {
			c.log.Warn(ctx, "crag.multihop.retrieve.degraded", logging.TenantAttr(tenantID))
			break
		}

		avgScore := averageScore(result.Chunks)
		stepConfidence := clamp01(avgScore * 1.2)

		messages := stepMessages(currentQuery, knowledge, result.ContextString)
		completion, err := c.executor.Execute(ctx, tenantID, messages, decision, opt)
		if err != nil {
			c.log.Warn(ctx, "crag.multihop.synthesize.degraded", logging.TenantAttr(tenantID))
			break
		}

		docTexts := lo.Map(result.Chunks, func(chunk retriever.Chunk, _ int) string { return chunk.Text })
		steps = append(steps, ReasoningStep{
			StepNumber:         step,
			Query:              currentQuery,
			RetrievedDocs:      docTexts,
			IntermediateAnswer: completion.Content,
			Confidence:         stepConfidence,
			Reasoning:          fmt.Sprintf("step %d confidence derived from retrieval relevance", step),
		})
		knowledge = append(knowledge, completion.Content)

		if eval.ReasoningType == ReasoningSingleHop || stepConfidence >= c.cfg.HighConfidenceThreshold {
			break
		}
		currentQuery = startQuery
	}

	if len(knowledge) == 0 {
		return steps, ""
	}
	return steps, strings.Join(knowledge, "\n\n")
}

func averageScore(chunks []retriever.Chunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range chunks {
		sum += c.Score
	}
	return sum / float64(len(chunks))
}

func stepMessages(currentQuery string, knowledge []string, context string) []query.Message {
	var sb strings.Builder
	if len(knowledge) > 0 {
		sb.WriteString("Prior findings:\n")
		sb.WriteString(strings.Join(knowledge, "\n"))
		sb.WriteString("\n\n")
	}
	sb.WriteString("Retrieved context:\n")
	sb.WriteString(context)
	return []query.Message{
		{Role: query.RoleSystem, Content: sb.String()},
		{Role: query.RoleUser, Content: currentQuery},
	}
}

// Prepare runs every pre-synthesis CRAG phase — evaluate, refine,
// optional multi-hop, and (when multi-hop did not already gather
// context) a single retrieval — and returns the resulting trail plus the
// message list ready for synthesis. It never returns an error: every
// phase degrades silently, falling back to the original query text and
// an empty context on failure.
func (c *Coordinator) Prepare(ctx context.Context, tenantID string, q *query.Query, decision *modelconfig.RoutingDecision, opt provider.Options) (Outcome, []query.Message) {
	queryID := uuid.NewString()
	eval := c.evaluate(queryID, q.Text)

	finalQuery := q.Text
	var refinements []Refinement
	if eval.ShouldRefine {
		finalQuery, refinements = c.refine(ctx, tenantID, eval, decision)
	}

	var steps []ReasoningStep
	var contextString string
	usedMultiHop := false

	if eval.ShouldUseMultiHop && eval.Confidence >= c.cfg.MultiHopConfidenceThreshold && c.retriever != nil {
		steps, contextString = c.multiHop(ctx, tenantID, decision, opt, eval, finalQuery)
		usedMultiHop = len(steps) > 0
	}

	if !usedMultiHop && c.retriever != nil {
		result, err := c.retriever.Retrieve(ctx, tenantID, finalQuery, c.cfg.RetrievalTopK, c.cfg.MinRelevanceScore)
		if err != nil {
			c.log.Warn(ctx, "crag.retrieve.degraded", logging.TenantAttr(tenantID))
		} else {
			contextString = result.ContextString
		}
	}

	outcome := Outcome{
		Evaluation:     eval,
		Refinements:    refinements,
		ReasoningSteps: steps,
		FinalQuery:     finalQuery,
		ContextString:  contextString,
		UsedMultiHop:   usedMultiHop,
	}
	return outcome, buildMessages(q, finalQuery, contextString)
}

// Answer runs the full CRAG pipeline against q and returns the
// synthesized response along with its quality report and trail. Only a
// synthesis failure or context cancellation surfaces an error; the
// evaluate/refine/retrieve phases degrade silently instead of failing.
func (c *Coordinator) Answer(ctx context.Context, tenantID string, q *query.Query, decision *modelconfig.RoutingDecision, opt provider.Options) (*Response, error) {
	outcome, messages := c.Prepare(ctx, tenantID, q, decision, opt)

	completionResult, err := c.executor.Execute(ctx, tenantID, messages, decision, opt)
	if err != nil {
		return nil, errs.Wrap(errs.SynthesisFailed, "crag synthesis failed", err)
	}

	report := quality.Report{}
	if c.quality != nil {
		report = c.quality.CheckQuality(ctx, completionResult.Content, q, strings.Split(outcome.ContextString, "\n\n---\n\n"))
	}

	return &Response{Outcome: outcome, Result: completionResult, Quality: report}, nil
}

func buildMessages(q *query.Query, finalQuery, contextString string) []query.Message {
	messages := make([]query.Message, 0, len(q.ConversationHistory)+2)
	messages = append(messages, q.ConversationHistory...)
	if contextString != "" {
		messages = append(messages, query.Message{
			Role:    query.RoleSystem,
			Content: "Use the following retrieved context if relevant:\n\n" + contextString,
		})
	}
	messages = append(messages, query.Message{Role: query.RoleUser, Content: finalQuery})
	return messages
}
