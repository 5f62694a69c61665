// Package orchestrator implements the single logical Orchestrator
// contract that wires every component together:
// complete, stream-complete, route, estimate-savings, cache-stats, and
// clear-stats.
package orchestrator

import (
	"context"
	"strings"
	"sync"

	"github.com/abrahaamv/queryorchestrator/cachestats"
	"github.com/abrahaamv/queryorchestrator/complexity"
	"github.com/abrahaamv/queryorchestrator/config"
	"github.com/abrahaamv/queryorchestrator/crag"
	"github.com/abrahaamv/queryorchestrator/errs"
	"github.com/abrahaamv/queryorchestrator/executor"
	"github.com/abrahaamv/queryorchestrator/internal/stream"
	"github.com/abrahaamv/queryorchestrator/logging"
	"github.com/abrahaamv/queryorchestrator/modelconfig"
	"github.com/abrahaamv/queryorchestrator/provider"
	"github.com/abrahaamv/queryorchestrator/quality"
	"github.com/abrahaamv/queryorchestrator/query"
	"github.com/abrahaamv/queryorchestrator/retriever"
	"github.com/abrahaamv/queryorchestrator/router"
)

// Response is the outcome of one Complete call: the synthesized result
// plus the routing decision and (when CRAG ran) its trail and quality
// report, exposed for observability.
type Response struct {
	Result   *modelconfig.CompletionResult
	Decision *modelconfig.RoutingDecision
	CRAG     *crag.Outcome
	Quality  *quality.Report

	// NeedsExternalReview is set when Quality.IsHallucination and
	// Config.AutoFlagLowConfidence are both true. The response is still
	// returned; this only flags it for a human reviewer downstream.
	NeedsExternalReview bool
}

// Savings is the result of EstimateSavings.
type Savings struct {
	BaselineUSD  float64
	OptimizedUSD float64
	AbsoluteUSD  float64
	PercentSaved float64
}

// Orchestrator is the top-level facade over the pipeline described in
// dependency graph: ComplexityAnalyzer -> RouterCore ->
// (Retriever, CRAGCoordinator) -> CascadingExecutor -> QualityChecker.
type Orchestrator struct {
	registry  *modelconfig.Registry
	gateway   *provider.Gateway
	router    *router.Core
	executor  *executor.Executor
	retriever *retriever.Adapter
	crag      *crag.Coordinator
	quality   *quality.Checker
	ragas     *quality.BatchScorer
	cfg       *config.Config
	log       logging.Logger

	// spendMu guards the running totals EstimateSavings extrapolates
	// from. CacheStats deliberately tracks only total-savings-usd, not
	// absolute spend, so the orchestrator keeps its own lightweight
	// running total of actual dollars billed.
	spendMu       sync.Mutex
	totalSpendUSD float64
	totalQueries  int64
}

// Deps bundles the collaborators New wires together. Retriever is
// optional: when nil, the orchestrator skips retrieval and CRAG entirely
// and runs CascadingExecutor directly against the conversation.
type Deps struct {
	Registry  *modelconfig.Registry
	Gateway   *provider.Gateway
	Retriever retriever.Backend
	Config    *config.Config
	Logger    logging.Logger
}

// New builds an Orchestrator from deps. cfg is defaulted and validated.
func New(deps Deps) (*Orchestrator, error) {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := deps.Logger
	if log == nil {
		log = logging.Nop
	}

	routerCore := router.New(deps.Registry)
	exec := executor.New(deps.Gateway, cfg, log)
	qc := quality.New(quality.Config{
		RequireCitations:       cfg.RequireCitations,
		MinimumCitations:       cfg.MinimumCitations,
		HallucinationThreshold: cfg.HallucinationThreshold,
		ConfidenceThreshold:    cfg.ConfidenceThreshold,
	})

	var retAdapter *retriever.Adapter
	var coordinator *crag.Coordinator
	if deps.Retriever != nil {
		retAdapter = retriever.New(deps.Retriever, log)
		coordinator = crag.New(deps.Gateway, exec, retAdapter, qc, cfg, log)
	}

	return &Orchestrator{
		registry:  deps.Registry,
		gateway:   deps.Gateway,
		router:    routerCore,
		executor:  exec,
		retriever: retAdapter,
		crag:      coordinator,
		quality:   qc,
		ragas:     quality.NewBatchScorer(),
		cfg:       cfg,
		log:       log,
	}, nil
}

func (o *Orchestrator) recordSpend(cost float64) {
	o.spendMu.Lock()
	defer o.spendMu.Unlock()
	o.totalSpendUSD += cost
	o.totalQueries++
}

// defaultSystemMessage is the stable, tenant-scoped preamble cache
// segmentation keys off of. It is long and unchanging per tenant so
// repeated requests actually hit the backend's prompt cache.
func defaultSystemMessage(tenantID string) string {
	return "You are the AI assistant for tenant " + tenantID + ". " +
		"Answer using only the retrieved context supplied below when it is " +
		"present, citing it where relevant. If the context does not support " +
		"an answer, say so rather than guessing."
}

// withCacheOptions applies Config.EnableCaching to opt: when caching is
// on and the caller did not already supply a system message to segment,
// one is generated so provider.cacheCost has something to cache against.
// A caller-supplied SystemMessage is kept; while Config.EnableCaching is
// set, a caller cannot switch caching off for one call.
func (o *Orchestrator) withCacheOptions(opt provider.Options, tenantID string) provider.Options {
	if !o.cfg.EnableCaching {
		return opt
	}
	opt.EnableCaching = true
	if opt.SystemMessage == "" {
		opt.SystemMessage = defaultSystemMessage(tenantID)
	}
	return opt
}

// reviewFlagFor reports whether report should be flagged for external
// review: only when Config.AutoFlagLowConfidence is set and the report
// judged the response a hallucination. The response itself is still
// returned either way.
func (o *Orchestrator) reviewFlagFor(report *quality.Report) bool {
	return o.cfg.AutoFlagLowConfidence && report != nil && report.IsHallucination
}

// Route computes a RoutingDecision for q without executing it. It is a
// pure inspection operation: identical queries yield identical
// decisions.
func (o *Orchestrator) Route(q *query.Query) (*modelconfig.RoutingDecision, error) {
	if err := q.Validate(); err != nil {
		return nil, errs.Wrap(errs.InvalidRequest, "invalid query", err)
	}
	score := complexity.Analyze(q)
	decision := o.router.Route(score, q, o.cfg.PreferCheaperModels)
	if o.cfg.LogRouting {
		o.log.Info(context.Background(), "orchestrator.route", logging.TenantAttr(q.TenantID))
	}
	return decision, nil
}

// Complete runs q to completion: route, optionally run CRAG (retrieve,
// refine, multi-hop, synthesize, quality-check), or otherwise synthesize
// directly via CascadingExecutor, data flow.
func (o *Orchestrator) Complete(ctx context.Context, q *query.Query, opt provider.Options) (*Response, error) {
	if err := q.Validate(); err != nil {
		return nil, errs.Wrap(errs.InvalidRequest, "invalid query", err)
	}

	score := complexity.Analyze(q)
	decision := o.router.Route(score, q, o.cfg.PreferCheaperModels)
	if o.cfg.LogRouting {
		o.log.Info(ctx, "orchestrator.route", logging.TenantAttr(q.TenantID))
	}
	opt = o.withCacheOptions(opt, q.TenantID)

	if o.crag != nil {
		answer, err := o.crag.Answer(ctx, q.TenantID, q, decision, opt)
		if err != nil {
			return nil, err
		}
		o.recordSpend(answer.Result.Usage.Cost)
		return &Response{
			Result:              answer.Result,
			Decision:            decision,
			CRAG:                &answer.Outcome,
			Quality:             &answer.Quality,
			NeedsExternalReview: o.reviewFlagFor(&answer.Quality),
		}, nil
	}

	messages := append(append([]query.Message{}, q.ConversationHistory...), query.Message{Role: query.RoleUser, Content: q.Text})
	result, err := o.executor.Execute(ctx, q.TenantID, messages, decision, opt)
	if err != nil {
		return nil, err
	}
	o.recordSpend(result.Usage.Cost)

	var report *quality.Report
	if o.quality != nil {
		r := o.quality.CheckQuality(ctx, result.Content, q, nil)
		report = &r
	}
	return &Response{Result: result, Decision: decision, Quality: report, NeedsExternalReview: o.reviewFlagFor(report)}, nil
}

// StreamComplete mirrors Complete but streams the final synthesis step.
// When CRAG is configured, its pre-synthesis phases run to completion
// first (they are not incremental); only the synthesis call itself
// streams: "Streaming flow yields intermediate
// chunks through the same path without materializing the full body."
func (o *Orchestrator) StreamComplete(ctx context.Context, q *query.Query, opt provider.Options) (stream.Reader[string], func(context.Context) (*Response, error), error) {
	if err := q.Validate(); err != nil {
		return nil, nil, errs.Wrap(errs.InvalidRequest, "invalid query", err)
	}

	score := complexity.Analyze(q)
	decision := o.router.Route(score, q, o.cfg.PreferCheaperModels)
	if o.cfg.LogRouting {
		o.log.Info(ctx, "orchestrator.route", logging.TenantAttr(q.TenantID))
	}
	opt = o.withCacheOptions(opt, q.TenantID)

	var cragOutcome *crag.Outcome
	messages := append(append([]query.Message{}, q.ConversationHistory...), query.Message{Role: query.RoleUser, Content: q.Text})
	if o.crag != nil {
		outcome, preparedMessages := o.crag.Prepare(ctx, q.TenantID, q, decision, opt)
		cragOutcome = &outcome
		messages = preparedMessages
	}

	reader, finalize, err := o.executor.StreamExecute(ctx, q.TenantID, messages, decision, opt)
	if err != nil {
		return nil, nil, err
	}

	wrapped := func(fctx context.Context) (*Response, error) {
		result, err := finalize(fctx)
		if err != nil {
			return nil, err
		}
		o.recordSpend(result.Usage.Cost)

		var report *quality.Report
		if o.quality != nil {
			var chunks []string
			if cragOutcome != nil {
				chunks = strings.Split(cragOutcome.ContextString, "\n\n---\n\n")
			}
			r := o.quality.CheckQuality(fctx, result.Content, q, chunks)
			report = &r
		}
		return &Response{Result: result, Decision: decision, CRAG: cragOutcome, Quality: report, NeedsExternalReview: o.reviewFlagFor(report)}, nil
	}

	return reader, wrapped, nil
}

// EstimateSavings projects prompt-cache savings over monthlyQueries by
// scaling the actual spend and cache savings observed so far to the
// requested volume. Optimized is the projected spend
// with caching as currently observed; baseline is what that same volume
// would have cost with caching disabled (optimized plus the savings
// already realized, scaled identically).
func (o *Orchestrator) EstimateSavings(monthlyQueries int) Savings {
	o.spendMu.Lock()
	totalSpendUSD := o.totalSpendUSD
	totalQueries := o.totalQueries
	o.spendMu.Unlock()

	if totalQueries == 0 {
		return Savings{}
	}

	var totalSavingsUSD float64
	for _, snap := range o.gateway.CacheStats().All() {
		totalSavingsUSD += snap.TotalSavingsUSD
	}

	scale := float64(monthlyQueries) / float64(totalQueries)
	optimized := totalSpendUSD * scale
	absolute := totalSavingsUSD * scale
	baseline := optimized + absolute

	percent := 0.0
	if baseline > 0 {
		percent = absolute / baseline * 100
	}

	return Savings{
		BaselineUSD:  baseline,
		OptimizedUSD: optimized,
		AbsoluteUSD:  absolute,
		PercentSaved: percent,
	}
}

// ScoreRAGAS computes the RAGAS-style batch metrics (faithfulness,
// answer-relevancy, context-relevancy, context-precision@k, and,
// when groundTruth is non-empty, context-recall) over a completed
// response's (query, response, context) triple. It is purely
// observational: callers run it offline or on a sample of traffic to
// track retrieval/generation quality over time, and it never affects
// what Complete/StreamComplete return.
func (o *Orchestrator) ScoreRAGAS(ctx context.Context, resp *Response, q *query.Query, k int, groundTruth string) quality.RAGASReport {
	var contextString string
	if resp.CRAG != nil {
		contextString = resp.CRAG.ContextString
	}
	var chunks []string
	if contextString != "" {
		chunks = strings.Split(contextString, "\n\n---\n\n")
	}
	return o.ragas.Score(ctx, q.Text, resp.Result.Content, chunks, k, groundTruth)
}

// CacheStats returns a snapshot for one tenant.
func (o *Orchestrator) CacheStats(tenantID string) cachestats.Snapshot {
	return o.gateway.CacheStats().Get(tenantID)
}

// AllCacheStats returns a snapshot for every tenant with recorded
// activity, the no-tenant-filter form of cache-stats.
func (o *Orchestrator) AllCacheStats() map[string]cachestats.Snapshot {
	return o.gateway.CacheStats().All()
}

// ClearStats clears one tenant's stats, or every tenant's when tenantID
// is empty.
func (o *Orchestrator) ClearStats(tenantID string) {
	o.gateway.CacheStats().Clear(tenantID)
}
