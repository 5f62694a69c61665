// Package backenda adapts Backend-A (an OpenAI-compatible chat
// completions API) to provider.BackendClient. The adapter owns its own
// client handle and maps backend-neutral wire types to/from the SDK's.
package backenda

import (
	"context"
	"errors"
	"io"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/abrahaamv/queryorchestrator/errs"
	"github.com/abrahaamv/queryorchestrator/internal/stream"
	"github.com/abrahaamv/queryorchestrator/modelconfig"
	"github.com/abrahaamv/queryorchestrator/provider"
	"github.com/abrahaamv/queryorchestrator/query"
)

// Client adapts github.com/openai/openai-go/v3 to provider.BackendClient.
type Client struct {
	sdk *openai.Client
}

var _ provider.BackendClient = (*Client)(nil)

// New builds a Client authenticated with apiKey.
func New(apiKey string) *Client {
	sdk := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{sdk: &sdk}
}

func toParams(modelID string, req *provider.WireRequest) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case query.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		case query.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	return openai.ChatCompletionNewParams{
		Model:       modelID,
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
	}
}

func finishReasonOf(raw string) modelconfig.FinishReason {
	switch raw {
	case "length":
		return modelconfig.FinishLength
	case "content_filter":
		return modelconfig.FinishContentFilter
	case "tool_calls":
		return modelconfig.FinishToolCalls
	default:
		return modelconfig.FinishStop
	}
}

// Complete issues a blocking chat completion call.
func (c *Client) Complete(ctx context.Context, modelID string, req *provider.WireRequest) (*provider.WireResponse, error) {
	params := toParams(modelID, req)
	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyErr(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errs.New(errs.InvalidRequest, "backend-a returned no choices")
	}
	choice := resp.Choices[0]
	return &provider.WireResponse{
		Content:      choice.Message.Content,
		FinishReason: finishReasonOf(string(choice.FinishReason)),
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		Metadata:     map[string]any{"id": resp.ID},
	}, nil
}

// Stream issues a streaming chat completion call.
func (c *Client) Stream(ctx context.Context, modelID string, req *provider.WireRequest) (provider.StreamSession, error) {
	params := toParams(modelID, req)
	sdkStream := c.sdk.Chat.Completions.NewStreaming(ctx, params)

	pipe := stream.NewStream[string]()
	sess := &session{sdkStream: sdkStream, pipe: pipe, done: make(chan struct{})}
	go sess.pump(ctx)
	return sess, nil
}

type sdkStreamer interface {
	Next() bool
	Current() openai.ChatCompletionChunk
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

func (s *session) pump(ctx context.Context) {
	defer close(s.done)
	defer func() { _ = s.sdkStream.Close() }()
	defer func() { _ = s.pipe.Close() }()

	acc := openai.ChatCompletionAccumulator{}
	var content string
	var finishReason string

	for s.sdkStream.Next() {
		chunk := s.sdkStream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 {
			delta := chunk.Choices[0].Delta.Content
			if delta != "" {
				content += delta
				if werr := s.pipe.Write(ctx, delta); werr != nil {
					s.err = werr
					return
				}
			}
			if chunk.Choices[0].FinishReason != "" {
				finishReason = chunk.Choices[0].FinishReason
			}
		}
	}
	if err := s.sdkStream.Err(); err != nil && !errors.Is(err, io.EOF) {
		s.err = classifyErr(err)
		return
	}

	s.result = &provider.WireResponse{
		Content:      content,
		FinishReason: finishReasonOf(finishReason),
		InputTokens:  int(acc.Usage.PromptTokens),
		OutputTokens: int(acc.Usage.CompletionTokens),
		Metadata:     map[string]any{"id": acc.ID},
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
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return errs.Wrap(errs.RateLimited, "backend-a rate limited", err)
		case 402, 403:
			return errs.Wrap(errs.QuotaExhausted, "backend-a quota exhausted", err)
		case 400, 404, 422:
			return errs.Wrap(errs.InvalidRequest, "backend-a rejected request", err)
		default:
			if apiErr.StatusCode >= 500 {
				return errs.Wrap(errs.TransientBackendFailure, "backend-a unavailable", err)
			}
		}
	}
	return errs.Wrap(errs.TransientBackendFailure, "backend-a call failed", err)
}
