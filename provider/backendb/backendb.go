// Package backendb adapts Backend-B (an Anthropic Messages-API-shaped
// backend with native prompt-cache support) to provider.BackendClient.
// The anthropic-sdk-go dependency is sourced from jordigilh-kubernaut's
// go.mod, which lists it for the same multi-provider LLM routing
// purpose; the adapter owns its own client handle, exposes
// Complete/Stream methods, and an aggregator reduces the stream to a
// final result.
package backendb

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/abrahaamv/queryorchestrator/errs"
	"github.com/abrahaamv/queryorchestrator/internal/stream"
	"github.com/abrahaamv/queryorchestrator/modelconfig"
	"github.com/abrahaamv/queryorchestrator/provider"
	"github.com/abrahaamv/queryorchestrator/query"
)

// Client adapts github.com/anthropics/anthropic-sdk-go to
// provider.BackendClient.
type Client struct {
	sdk *anthropic.Client
}

var _ provider.BackendClient = (*Client)(nil)

// New builds a Client authenticated with apiKey.
func New(apiKey string) *Client {
	sdk := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{sdk: &sdk}
}

func toParams(modelID string, req *provider.WireRequest) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(modelID),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
	}

	if req.System != "" {
		block := anthropic.TextBlockParam{Text: req.System}
		if len(req.CacheableSegments) > 0 {
			block.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		params.System = []anthropic.TextBlockParam{block}
	}

	for _, m := range req.Messages {
		switch m.Role {
		case query.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return params
}

func finishReasonOf(stopReason anthropic.StopReason) modelconfig.FinishReason {
	switch stopReason {
	case anthropic.StopReasonMaxTokens:
		return modelconfig.FinishLength
	case anthropic.StopReasonToolUse:
		return modelconfig.FinishToolCalls
	default:
		return modelconfig.FinishStop
	}
}

func textOf(msg *anthropic.Message) (string, error) {
	var out string
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out += b.Text
		default:
			return "", errs.New(errs.InvalidRequest, "backend-b returned a non-text content block")
		}
	}
	return out, nil
}

// Complete issues a blocking messages call.
func (c *Client) Complete(ctx context.Context, modelID string, req *provider.WireRequest) (*provider.WireResponse, error) {
	params := toParams(modelID, req)
	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyErr(err)
	}
	content, err := textOf(msg)
	if err != nil {
		return nil, err
	}
	return &provider.WireResponse{
		Content:          content,
		FinishReason:     finishReasonOf(msg.StopReason),
		InputTokens:      int(msg.Usage.InputTokens),
		OutputTokens:     int(msg.Usage.OutputTokens),
		CacheWriteTokens: int(msg.Usage.CacheCreationInputTokens),
		CacheReadTokens:  int(msg.Usage.CacheReadInputTokens),
		Metadata:         map[string]any{"id": msg.ID},
	}, nil
}

type sdkStreamer interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
	Close() error
}

type session struct {
	sdkStream sdkStreamer
	pipe      *stream.Stream[string]

	done   chan struct{}
	result *provider.WireResponse
	err    error
}

// Stream issues a streaming messages call.
func (c *Client) Stream(ctx context.Context, modelID string, req *provider.WireRequest) (provider.StreamSession, error) {
	params := toParams(modelID, req)
	sdkStream := c.sdk.Messages.NewStreaming(ctx, params)

	sess := &session{sdkStream: sdkStream, pipe: stream.NewStream[string](), done: make(chan struct{})}
	go sess.pump(ctx)
	return sess, nil
}

func (s *session) pump(ctx context.Context) {
	defer close(s.done)
	defer func() { _ = s.sdkStream.Close() }()
	defer func() { _ = s.pipe.Close() }()

	message := anthropic.Message{}
	for s.sdkStream.Next() {
		event := s.sdkStream.Current()
		if err := message.Accumulate(event); err != nil {
			s.err = classifyErr(err)
			return
		}
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text := delta.Delta.Text; text != "" {
				if werr := s.pipe.Write(ctx, text); werr != nil {
					s.err = werr
					return
				}
			}
		}
	}
	if err := s.sdkStream.Err(); err != nil && !errors.Is(err, context.Canceled) {
		s.err = classifyErr(err)
		return
	}

	content, err := textOf(&message)
	if err != nil {
		s.err = err
		return
	}
	s.result = &provider.WireResponse{
		Content:          content,
		FinishReason:     finishReasonOf(message.StopReason),
		InputTokens:      int(message.Usage.InputTokens),
		OutputTokens:     int(message.Usage.OutputTokens),
		CacheWriteTokens: int(message.Usage.CacheCreationInputTokens),
		CacheReadTokens:  int(message.Usage.CacheReadInputTokens),
		Metadata:         map[string]any{"id": message.ID},
	}
}

func (s *session) Chunks() stream.Reader[string] {
	return s.pipe
}

func (s *session) Result(ctx context.Context) (*provider.WireResponse, error) {
	select {
	case <-ctx.Done():
		return nil, errs.Wrap(errs.Cancelled, "context cancelled before stream completed", ctx.Err())
	case <-s.done:
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return errs.Wrap(errs.RateLimited, "backend-b rate limited", err)
		case 402, 403:
			return errs.Wrap(errs.QuotaExhausted, "backend-b quota exhausted", err)
		case 400, 404, 422:
			return errs.Wrap(errs.InvalidRequest, "backend-b rejected request", err)
		default:
			if apiErr.StatusCode >= 500 {
				return errs.Wrap(errs.TransientBackendFailure, "backend-b unavailable", err)
			}
		}
	}
	return errs.Wrap(errs.TransientBackendFailure, "backend-b call failed", err)
}
