// Package providers contains completion-model handlers. The tool speaks the
// OpenAI chat-completions dialect, which covers OpenAI itself plus the
// compatible endpoints (DeepSeek, OpenRouter, local inference servers) users
// point profiles at.
package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/octoolhq/octool/internal/llm"
)

// OpenAIHandler implements llm.Handler on top of the official OpenAI Go SDK
// against a configurable base URL.
type OpenAIHandler struct {
	options llm.HandlerOptions
	client  *openai.Client
}

// NewOpenAIHandler creates a handler for the given credentials and endpoint.
func NewOpenAIHandler(options llm.HandlerOptions) *OpenAIHandler {
	opts := []option.RequestOption{
		option.WithAPIKey(options.APIKey),
	}
	if options.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(options.BaseURL))
	}
	if options.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(options.RequestTimeout))
	}

	client := openai.NewClient(opts...)
	return &OpenAIHandler{
		options: options,
		client:  &client,
	}
}

// Validate checks the credentials and endpoint with a cheap models-list
// call, mirroring what a user would hit on their first real request.
func (h *OpenAIHandler) Validate(ctx context.Context) error {
	if _, err := h.client.Models.List(ctx); err != nil {
		return fmt.Errorf("endpoint validation failed: %w", err)
	}
	return nil
}

// CreateMessage implements llm.Handler. Deltas are forwarded on the returned
// channel as they arrive; the channel is closed at end of stream, after an
// error chunk if the stream ended early.
func (h *OpenAIHandler) CreateMessage(ctx context.Context, req llm.Request) (llm.ApiStream, error) {
	params := h.buildParams(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := h.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}

	out := make(chan llm.ApiStreamChunk, 64)
	go func() {
		defer close(out)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				out <- llm.ApiStreamTextChunk{Text: chunk.Choices[0].Delta.Content}
			}
			if chunk.Usage.TotalTokens > 0 {
				out <- llm.ApiStreamUsageChunk{
					InputTokens:  int(chunk.Usage.PromptTokens),
					OutputTokens: int(chunk.Usage.CompletionTokens),
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- llm.ApiStreamErrorChunk{Err: err}
		}
	}()

	return out, nil
}

// Complete implements llm.Handler as a single blocking call.
func (h *OpenAIHandler) Complete(ctx context.Context, req llm.Request) (string, error) {
	completion, err := h.client.Chat.Completions.New(ctx, h.buildParams(req))
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("completion response contained no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

func (h *OpenAIHandler) buildParams(req llm.Request) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = h.options.ModelID
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: convertMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	return params
}

func convertMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch strings.ToLower(msg.Role) {
		case "system":
			out = append(out, openai.SystemMessage(msg.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
