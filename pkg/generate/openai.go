package generate

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements Generator for OpenAI chat completions. The
// assembled prompt is sent as a single user message; OpenAI always
// returns plain text here, so no shape normalization is needed.
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAI creates a new OpenAI provider.
func NewOpenAI(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Provider returns the provider name.
func (p *OpenAIProvider) Provider() string {
	return "openai"
}

// Generate completes the prompt via the chat completions API.
func (p *OpenAIProvider) Generate(ctx context.Context, request Request) (Result, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(request.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(request.Prompt),
		},
	}
	if request.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.MaxTokens))
	}

	response, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Result{}, err
	}

	if len(response.Choices) == 0 {
		return Result{}, fmt.Errorf("no response choices returned")
	}

	return TextResult(response.Choices[0].Message.Content), nil
}
