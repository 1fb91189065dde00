package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Generator is the opaque prompt-completion capability.
type Generator interface {
	// Generate completes a prompt. It performs no retries; any failure
	// surfaces directly to the caller.
	Generate(ctx context.Context, request Request) (Result, error)

	// Provider returns the provider name.
	Provider() string
}

// Request contains the parameters for one generation call.
type Request struct {
	Model     string
	Prompt    string
	MaxTokens int
}

// ResultKind tags the shape of a backend response.
type ResultKind int

const (
	// KindText is a plain text completion.
	KindText ResultKind = iota
	// KindStructured is a JSON value that may or may not carry a
	// "response" text field.
	KindStructured
)

// Result is the backend response as a tagged union. Backends that always
// return plain text use TextResult; backends with drifting response shapes
// use ParseResult so the normalization in Reply stays in one place.
type Result struct {
	Kind ResultKind

	// Text holds the completion for KindText.
	Text string

	// Response holds the "response" field of a structured value when
	// present; HasResponse distinguishes present-but-empty from absent.
	Response    string
	HasResponse bool

	// Raw is the whole structured value for KindStructured.
	Raw json.RawMessage
}

// TextResult wraps a plain text completion.
func TextResult(text string) Result {
	return Result{Kind: KindText, Text: text}
}

// ParseResult classifies a raw backend value. A JSON string becomes a
// plain text result; anything else is kept structured with its "response"
// field probed once here.
func ParseResult(raw json.RawMessage) Result {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return TextResult(text)
	}

	result := Result{Kind: KindStructured, Raw: raw}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err == nil {
		result.Raw = json.RawMessage(compact.Bytes())
	}

	var probe struct {
		Response *string `json:"response"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.Response != nil {
		result.Response = *probe.Response
		result.HasResponse = true
	}
	return result
}

// Reply normalizes the result to text: the plain completion, the
// structured "response" field, or the compact JSON of the whole value.
func (r Result) Reply() string {
	if r.Kind == KindText {
		return r.Text
	}
	if r.HasResponse {
		return r.Response
	}
	return string(r.Raw)
}

// Options selects and configures a provider.
type Options struct {
	Provider  string // workersai, openai, anthropic
	APIKey    string
	AccountID string // workersai only
	BaseURL   string // optional override, workersai only
}

// New creates a Generator for the configured provider.
func New(opts Options) (Generator, error) {
	switch opts.Provider {
	case "workersai":
		return NewWorkersAI(opts.AccountID, opts.APIKey, opts.BaseURL)
	case "openai":
		return NewOpenAI(opts.APIKey), nil
	case "anthropic":
		return NewAnthropic(opts.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", opts.Provider)
	}
}
