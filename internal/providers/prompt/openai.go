package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAIOptions configures the OpenAI-backed enhancer.
type OpenAIOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	Fallback     Enhancer
	OnFallback   func(reason string, err error)
}

// OpenAIEnhancer optimizes prompts with a chat-completion call. Every failure
// degrades to the fallback enhancer rather than erroring, so prompt
// optimization never blocks on the external API.
type OpenAIEnhancer struct {
	apiKey       string
	model        string
	baseURL      string
	organization string
	client       *http.Client
	fallback     Enhancer
	onFallback   func(reason string, err error)
}

const (
	openAIDefaultTimeout = 15 * time.Second
	defaultOpenAIModel   = "gpt-4o-mini"
)

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type modelEnhancePayload struct {
	OptimizedPrompt string   `json:"optimized_prompt"`
	Notes           []string `json:"notes"`
}

// NewOpenAIEnhancer validates options and builds the enhancer.
func NewOpenAIEnhancer(opts OpenAIOptions) (*OpenAIEnhancer, error) {
	if strings.TrimSpace(opts.APIKey) == "" && opts.Fallback == nil {
		return nil, errors.New("openai api key or fallback is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultOpenAIModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	return &OpenAIEnhancer{
		apiKey:       strings.TrimSpace(opts.APIKey),
		model:        model,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		client:       client,
		fallback:     opts.Fallback,
		onFallback:   opts.OnFallback,
	}, nil
}

// Enhance asks the model to rewrite the prompt and returns the structured
// result.
func (o *OpenAIEnhancer) Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResponse, error) {
	if o.apiKey == "" {
		return o.useFallback(ctx, req, "missing_api_key", nil)
	}
	payload := openAIChatRequest{
		Model:          o.model,
		Temperature:    0.4,
		ResponseFormat: &openAIFormat{Type: "json_object"},
		Messages: []openAIMessage{
			{Role: "system", Content: "You are a prompt engineer. Rewrite the user's prompt to be clearer and more effective. Respond only with JSON: {\"optimized_prompt\": string, \"notes\": [string]}."},
			{Role: "user", Content: buildEnhancePayload(req)},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return o.useFallback(ctx, req, "encode_request", err)
	}

	endpoint := fmt.Sprintf("%s/chat/completions", o.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return o.useFallback(ctx, req, "build_request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	if o.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", o.organization)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return o.useFallback(ctx, req, "http_request", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return o.useFallback(ctx, req, fmt.Sprintf("http_%d", resp.StatusCode), fmt.Errorf("openai status %d", resp.StatusCode))
	}

	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return o.useFallback(ctx, req, "decode_response", err)
	}
	if len(out.Choices) == 0 {
		return o.useFallback(ctx, req, "empty_choices", errors.New("no choices"))
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return o.useFallback(ctx, req, "empty_response", errors.New("empty response"))
	}

	var parsed modelEnhancePayload
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return o.useFallback(ctx, req, "parse_payload", err)
	}
	if strings.TrimSpace(parsed.OptimizedPrompt) == "" {
		return o.useFallback(ctx, req, "empty_payload", errors.New("missing optimized_prompt"))
	}
	return &EnhanceResponse{
		OptimizedPrompt: parsed.OptimizedPrompt,
		Notes:           parsed.Notes,
		Provider:        openAIProviderName,
	}, nil
}

func buildEnhancePayload(req EnhanceRequest) string {
	payload := map[string]string{
		"prompt":    req.Prompt,
		"objective": req.Objective,
		"locale":    req.Locale,
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

func (o *OpenAIEnhancer) useFallback(ctx context.Context, req EnhanceRequest, reason string, cause error) (*EnhanceResponse, error) {
	if o.onFallback != nil {
		o.onFallback(reason, cause)
	}
	if o.fallback == nil {
		if cause != nil {
			return nil, fmt.Errorf("openai enhance (%s): %w", reason, cause)
		}
		return nil, fmt.Errorf("openai enhance failed: %s", reason)
	}
	return o.fallback.Enhance(ctx, req)
}

var _ Enhancer = (*OpenAIEnhancer)(nil)
