package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultWorkersAIBaseURL = "https://api.cloudflare.com/client/v4"

// WorkersAIProvider implements Generator for Cloudflare Workers AI over
// its REST API. The run endpoint returns an envelope whose result value
// drifts between a plain string and an object carrying a "response"
// field, so the raw result is handed to ParseResult untouched.
type WorkersAIProvider struct {
	accountID  string
	apiToken   string
	baseURL    string
	httpClient *http.Client
}

// NewWorkersAI creates a new Workers AI provider.
func NewWorkersAI(accountID, apiToken, baseURL string) (*WorkersAIProvider, error) {
	if accountID == "" {
		return nil, fmt.Errorf("workersai account id is required")
	}
	if apiToken == "" {
		return nil, fmt.Errorf("workersai api token is required")
	}
	if baseURL == "" {
		baseURL = defaultWorkersAIBaseURL
	}

	return &WorkersAIProvider{
		accountID:  accountID,
		apiToken:   apiToken,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}, nil
}

// Provider returns the provider name.
func (p *WorkersAIProvider) Provider() string {
	return "workersai"
}

type workersAIRequest struct {
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

type workersAIEnvelope struct {
	Result  json.RawMessage `json:"result"`
	Success bool            `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Generate runs the model with a single prompt.
func (p *WorkersAIProvider) Generate(ctx context.Context, request Request) (Result, error) {
	payload, err := json.Marshal(workersAIRequest{
		Prompt:    request.Prompt,
		MaxTokens: request.MaxTokens,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal workersai request: %w", err)
	}

	url := fmt.Sprintf("%s/accounts/%s/ai/run/%s", p.baseURL, p.accountID, request.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create workersai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("workersai request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed reading workersai response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("workersai non-success status=%d body=%s", resp.StatusCode, truncate(string(body), 400))
	}

	var envelope workersAIEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Result{}, fmt.Errorf("failed to parse workersai response: %s", truncate(string(body), 400))
	}

	if !envelope.Success {
		if len(envelope.Errors) > 0 {
			return Result{}, fmt.Errorf("workersai error %d: %s", envelope.Errors[0].Code, envelope.Errors[0].Message)
		}
		return Result{}, fmt.Errorf("workersai reported failure without error detail")
	}

	if len(envelope.Result) == 0 {
		return Result{}, fmt.Errorf("workersai response missing result")
	}

	return ParseResult(envelope.Result), nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
