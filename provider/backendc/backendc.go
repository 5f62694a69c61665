// Package backendc adapts Backend-C (a Bedrock Converse-API-shaped
// backend) to provider.BackendClient. The aws-sdk-go-v2 dependency is
// sourced from jordigilh-kubernaut's go.mod, which lists bedrockruntime
// for the same multi-provider LLM routing purpose; the adapter owns its
// own client handle and exposes Complete/Stream methods.
package backendc

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/abrahaamv/queryorchestrator/errs"
	"github.com/abrahaamv/queryorchestrator/internal/stream"
	"github.com/abrahaamv/queryorchestrator/modelconfig"
	"github.com/abrahaamv/queryorchestrator/provider"
	"github.com/abrahaamv/queryorchestrator/query"
)

// Client adapts github.com/aws/aws-sdk-go-v2/service/bedrockruntime's
// Converse API to provider.BackendClient.
type Client struct {
	sdk *bedrockruntime.Client
}

var _ provider.BackendClient = (*Client)(nil)

// New builds a Client using the default AWS config resolution chain
// (env vars, shared config, IAM role) for region.
func New(ctx context.Context, region string) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &Client{sdk: bedrockruntime.NewFromConfig(cfg)}, nil
}

func toConverseInput(modelID string, req *provider.WireRequest) *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(modelID),
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: aws.Float32(float32(req.Temperature)),
			MaxTokens:   aws.Int32(int32(req.MaxTokens)),
		},
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}
	for _, m := range req.Messages {
		role := types.ConversationRoleUser
		if m.Role == query.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		input.Messages = append(input.Messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}
	return input
}

func finishReasonOf(stopReason types.StopReason) modelconfig.FinishReason {
	switch stopReason {
	case types.StopReasonMaxTokens:
		return modelconfig.FinishLength
	case types.StopReasonContentFiltered:
		return modelconfig.FinishContentFilter
	case types.StopReasonToolUse:
		return modelconfig.FinishToolCalls
	default:
		return modelconfig.FinishStop
	}
}

func textOf(content []types.ContentBlock) (string, error) {
	var out string
	for _, block := range content {
		textBlock, ok := block.(*types.ContentBlockMemberText)
		if !ok {
			return "", errs.New(errs.InvalidRequest, "backend-c returned a non-text content block")
		}
		out += textBlock.Value
	}
	return out, nil
}

// Complete issues a blocking Converse call.
func (c *Client) Complete(ctx context.Context, modelID string, req *provider.WireRequest) (*provider.WireResponse, error) {
	input := toConverseInput(modelID, req)
	out, err := c.sdk.Converse(ctx, input)
	if err != nil {
		return nil, classifyErr(err)
	}
	outputMsg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, errs.New(errs.InvalidRequest, "backend-c returned an unexpected output shape")
	}
	content, err := textOf(outputMsg.Value.Content)
	if err != nil {
		return nil, err
	}
	usage := out.Usage
	var inTok, outTok int
	if usage != nil {
		inTok = int(aws.ToInt32(usage.InputTokens))
		outTok = int(aws.ToInt32(usage.OutputTokens))
	}
	return &provider.WireResponse{
		Content:      content,
		FinishReason: finishReasonOf(out.StopReason),
		InputTokens:  inTok,
		OutputTokens: outTok,
	}, nil
}

type session struct {
	events chan types.ConverseStreamOutput
	errCh  chan error
	pipe   *stream.Stream[string]

	done   chan struct{}
	result *provider.WireResponse
	err    error
}

// Stream issues a streaming ConverseStream call.
func (c *Client) Stream(ctx context.Context, modelID string, req *provider.WireRequest) (provider.StreamSession, error) {
	input := toConverseInput(modelID, req)
	streamInput := &bedrockruntime.ConverseStreamInput{
		ModelId:         input.ModelId,
		Messages:        input.Messages,
		System:          input.System,
		InferenceConfig: input.InferenceConfig,
	}
	out, err := c.sdk.ConverseStream(ctx, streamInput)
	if err != nil {
		return nil, classifyErr(err)
	}

	sess := &session{pipe: stream.NewStream[string](), done: make(chan struct{})}
	go sess.pump(ctx, out.GetStream())
	return sess, nil
}

func (s *session) pump(ctx context.Context, evStream *bedrockruntime.ConverseStreamEventStream) {
	defer close(s.done)
	defer evStream.Close()
	defer func() { _ = s.pipe.Close() }()

	var content string
	var finishReason types.StopReason
	var inTok, outTok int32

	for event := range evStream.Events() {
		switch e := event.(type) {
		case *types.ConverseStreamOutputMemberContentBlockDelta:
			if textDelta, ok := e.Value.Delta.(*types.ContentBlockDeltaMemberText); ok {
				content += textDelta.Value
				if werr := s.pipe.Write(ctx, textDelta.Value); werr != nil {
					s.err = werr
					return
				}
			}
		case *types.ConverseStreamOutputMemberMessageStop:
			finishReason = e.Value.StopReason
		case *types.ConverseStreamOutputMemberMetadata:
			if e.Value.Usage != nil {
				inTok = aws.ToInt32(e.Value.Usage.InputTokens)
				outTok = aws.ToInt32(e.Value.Usage.OutputTokens)
			}
		}
	}
	if err := evStream.Err(); err != nil && !errors.Is(err, context.Canceled) {
		s.err = classifyErr(err)
		return
	}

	s.result = &provider.WireResponse{
		Content:      content,
		FinishReason: finishReasonOf(finishReason),
		InputTokens:  int(inTok),
		OutputTokens: int(outTok),
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
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case 429:
			return errs.Wrap(errs.RateLimited, "backend-c rate limited", err)
		case 402, 403:
			return errs.Wrap(errs.QuotaExhausted, "backend-c quota exhausted", err)
		case 400, 404, 422:
			return errs.Wrap(errs.InvalidRequest, "backend-c rejected request", err)
		default:
			if respErr.HTTPStatusCode() >= 500 {
				return errs.Wrap(errs.TransientBackendFailure, "backend-c unavailable", err)
			}
		}
	}
	return errs.Wrap(errs.TransientBackendFailure, "backend-c call failed", err)
}
