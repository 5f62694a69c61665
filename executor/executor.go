// Package executor implements CascadingExecutor: a primary-to-fallback
// state machine over ProviderGateway with confidence-driven escalation,
// exponential backoff, and bounded retries.
package executor

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/abrahaamv/queryorchestrator/confidence"
	"github.com/abrahaamv/queryorchestrator/config"
	"github.com/abrahaamv/queryorchestrator/errs"
	"github.com/abrahaamv/queryorchestrator/internal/result"
	"github.com/abrahaamv/queryorchestrator/internal/safe"
	"github.com/abrahaamv/queryorchestrator/internal/stream"
	"github.com/abrahaamv/queryorchestrator/logging"
	"github.com/abrahaamv/queryorchestrator/modelconfig"
	"github.com/abrahaamv/queryorchestrator/provider"
	"github.com/abrahaamv/queryorchestrator/query"
)

const (
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 4 * time.Second
	jitterFraction = 0.25
)

// Executor runs a RoutingDecision against a provider.Gateway with
// fallback, timeouts, and confidence-driven escalation.
type Executor struct {
	gateway *provider.Gateway
	cfg     *config.Config
	log     logging.Logger
}

// New builds an Executor. cfg must already be Validate()d.
func New(gateway *provider.Gateway, cfg *config.Config, log logging.Logger) *Executor {
	if log == nil {
		log = logging.Nop
	}
	return &Executor{gateway: gateway, cfg: cfg, log: log}
}

type attemptOutcome struct {
	content string
	chunks  []string
	result  *modelconfig.CompletionResult
	err     error
}

func tierRank(t modelconfig.Tier) int {
	switch t {
	case modelconfig.TierFast:
		return 0
	case modelconfig.TierBalanced:
		return 1
	default:
		return 2
	}
}

// nextHigherTier finds the first attempt after idx whose tier outranks
// attempts[idx]'s tier, used for the escalation exit.
func nextHigherTier(attempts []*modelconfig.ModelConfig, idx int) (int, bool) {
	current := tierRank(attempts[idx].Tier)
	for i := idx + 1; i < len(attempts); i++ {
		if tierRank(attempts[i].Tier) > current {
			return i, true
		}
	}
	return 0, false
}

func backoffDelay(attemptNumber int) time.Duration {
	base := initialBackoff * time.Duration(int64(1)<<uint(attemptNumber-1))
	if base > maxBackoff || base <= 0 {
		base = maxBackoff
	}
	jitterRange := float64(base) * jitterFraction
	jitter := (rand.Float64()*2 - 1) * jitterRange
	d := time.Duration(float64(base) + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

func classifyCtxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.DeadlineExceeded, "per-request timeout exceeded", err)
	}
	return errs.Wrap(errs.Cancelled, "context cancelled", err)
}

func (e *Executor) attempt(ctx context.Context, tenantID string, cfg *modelconfig.ModelConfig, messages []query.Message, opt provider.Options, streaming bool) attemptOutcome {
	if !streaming {
		result, err := e.gateway.Complete(ctx, tenantID, cfg.ModelID, messages, opt)
		if err != nil {
			return attemptOutcome{err: err}
		}
		return attemptOutcome{content: result.Content, result: result}
	}

	reader, finalize, err := e.gateway.StreamComplete(ctx, tenantID, cfg.ModelID, messages, opt)
	if err != nil {
		return attemptOutcome{err: err}
	}

	var chunks []string
	var content strings.Builder
	for {
		c, rerr := reader.Read(ctx)
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return attemptOutcome{err: classifyCtxErr(rerr)}
		}
		chunks = append(chunks, c)
		content.WriteString(c)
	}

	result, err := finalize(ctx)
	if err != nil {
		return attemptOutcome{err: err}
	}
	return attemptOutcome{content: content.String(), chunks: chunks, result: result}
}

// run drives the cascade state machine: trying-primary -> trying-fallback(i)
// -> succeeded | failed. Chunks are only surfaced to
// the caller once the whole cascade (including any escalation) has
// resolved, so a failed or superseded attempt's output is never observed
// downstream.
func (e *Executor) run(ctx context.Context, tenantID string, messages []query.Message, decision *modelconfig.RoutingDecision, opt provider.Options, streaming bool) (attemptOutcome, error) {
	if decision == nil || decision.ModelConfig == nil {
		return attemptOutcome{}, errs.New(errs.InvalidRequest, "routing decision has no model configuration")
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.PerRequestTimeout)
	defer cancel()

	attempts := append([]*modelconfig.ModelConfig{decision.ModelConfig}, decision.FallbackChain...)
	idx := 0
	retries := 0
	var lastErr error

	for idx < len(attempts) {
		cfg := attempts[idx]
		attemptCtx, attemptCancel := context.WithTimeout(reqCtx, e.cfg.PerAttemptTimeout)
		outcome := e.attempt(attemptCtx, tenantID, cfg, messages, opt, streaming)
		attemptCancel()

		if reqCtx.Err() != nil {
			return attemptOutcome{}, classifyCtxErr(reqCtx.Err())
		}

		if outcome.err == nil {
			metrics := confidence.Evaluate(outcome.content, cfg.Tier, e.cfg.ConfidenceThreshold, e.cfg.HighConfidenceThreshold)
			if metrics.RequiresEscalation && retries < e.cfg.MaxRetries {
				if nextIdx, ok := nextHigherTier(attempts, idx); ok {
					e.log.Info(ctx, "executor.escalate", logging.TenantAttr(tenantID))
					idx = nextIdx
					retries++
					continue
				}
			}
			if disclaimer := confidence.DisclaimerFor(metrics.Score, e.cfg.ConfidenceThreshold, e.cfg.HighConfidenceThreshold); disclaimer != "" {
				suffix := "\n\n" + disclaimer
				outcome.content += suffix
				if outcome.result != nil {
					outcome.result.Content = outcome.content
				}
				if streaming {
					outcome.chunks = append(outcome.chunks, suffix)
				}
			}
			return outcome, nil
		}

		lastErr = outcome.err
		if errs.IsTerminal(outcome.err) {
			return attemptOutcome{}, outcome.err
		}
		if !e.cfg.EnableFallback {
			return attemptOutcome{}, errs.Wrap(errs.SynthesisFailed, "fallback disabled; primary attempt failed", outcome.err)
		}
		if retries >= e.cfg.MaxRetries {
			return attemptOutcome{}, errs.Wrap(errs.SynthesisFailed, "max retries exhausted", outcome.err)
		}

		idx++
		if idx >= len(attempts) {
			break
		}
		retries++
		e.log.Warn(ctx, "executor.fallback", logging.TenantAttr(tenantID))

		if !errs.IsQuotaExhausted(outcome.err) {
			delay := backoffDelay(retries)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-reqCtx.Done():
				timer.Stop()
				return attemptOutcome{}, classifyCtxErr(reqCtx.Err())
			}
		}
	}

	return attemptOutcome{}, errs.Wrap(errs.SynthesisFailed, "all attempts in the cascade returned a retryable error", lastErr)
}

// Execute runs decision to completion, blocking until the cascade
// succeeds or is exhausted.
func (e *Executor) Execute(ctx context.Context, tenantID string, messages []query.Message, decision *modelconfig.RoutingDecision, opt provider.Options) (*modelconfig.CompletionResult, error) {
	outcome, err := e.run(ctx, tenantID, messages, decision, opt, false)
	if err != nil {
		return nil, err
	}
	return outcome.result, nil
}

// StreamExecute runs decision with streaming. The returned reader only
// yields chunks once the cascade has settled on a final successful
// attempt; finalize blocks until that attempt's CompletionResult (or
// the cascade's terminal error) is available.
func (e *Executor) StreamExecute(ctx context.Context, tenantID string, messages []query.Message, decision *modelconfig.RoutingDecision, opt provider.Options) (stream.Reader[string], func(context.Context) (*modelconfig.CompletionResult, error), error) {
	doneCh := make(chan result.Result[attemptOutcome], 1)
	pipe := stream.NewStream[string]()

	safe.Go("executor.stream.cascade", func() {
		outcome, err := e.run(ctx, tenantID, messages, decision, opt, true)
		if err == nil {
			for _, c := range outcome.chunks {
				if werr := pipe.Write(ctx, c); werr != nil {
					break
				}
			}
		}
		_ = pipe.Close()
		doneCh <- result.New(outcome, err)
	}, func(perr error) {
		e.log.Error(ctx, "executor.stream.panic", logging.TenantAttr(tenantID))
		_ = pipe.Close()
		doneCh <- result.Error[attemptOutcome](errs.Wrap(errs.SynthesisFailed, "streaming attempt panicked", perr))
	})

	finalize := func(fctx context.Context) (*modelconfig.CompletionResult, error) {
		select {
		case msg := <-doneCh:
			outcome, err := msg.Get()
			if err != nil {
				return nil, err
			}
			return outcome.result, nil
		case <-fctx.Done():
			return nil, errs.Wrap(errs.Cancelled, "context cancelled before stream completed", fctx.Err())
		}
	}

	return pipe, finalize, nil
}
