package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"server/internal/infra"
)

// Options controls how the Gemini text client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client provides a lightweight facade over the Gemini text-generation API.
// When no API key is configured it falls back to deterministic synthetic
// output, which keeps the orchestrators fully operational in local and CI
// environments while preserving the extension point for real API calls.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-1.5-flash"
	defaultTimeout = 60 * time.Second
)

// NewClient builds a Client, applying defaults for unset options.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     opts.Logger,
	}
}

// GenerateRequest describes a text-generation call.
type GenerateRequest struct {
	Prompt      string
	TargetWords int
	Locale      string
	RequestID   string
}

// GenerateResult is the normalized provider output. WordCount reflects the
// content actually produced, which the ledger reconciles against the
// reservation estimate.
type GenerateResult struct {
	Content   string
	WordCount int
	Model     string
}

type generateContentRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Generate produces text for the given prompt. Errors are returned as-is;
// retry and credit handling belong to the orchestrator.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("genai: prompt is required")
	}
	if c.apiKey == "" {
		return c.synthetic(req), nil
	}

	payload := generateContentRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: buildInstruction(req)}},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("genai: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("genai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("genai: http request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("genai: status %d", resp.StatusCode)
	}

	var out generateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("genai: decode response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("genai: empty response")
	}

	text := strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return nil, fmt.Errorf("genai: empty candidate text")
	}
	return &GenerateResult{
		Content:   text,
		WordCount: countWords(text),
		Model:     c.model,
	}, nil
}

func buildInstruction(req GenerateRequest) string {
	var b strings.Builder
	if req.TargetWords > 0 {
		fmt.Fprintf(&b, "Write approximately %d words. ", req.TargetWords)
	}
	if req.Locale != "" && !strings.HasPrefix(req.Locale, "en") {
		fmt.Fprintf(&b, "Respond in the %q locale. ", req.Locale)
	}
	b.WriteString(req.Prompt)
	return b.String()
}

// synthetic generates deterministic placeholder prose seeded from the prompt,
// slightly off the requested length so the reconciliation path gets exercised
// in development too.
func (c *Client) synthetic(req GenerateRequest) *GenerateResult {
	if c.logger != nil {
		c.logger.Debug().Str("request_id", req.RequestID).Msg("genai: no api key, serving synthetic output")
	}
	seed := sha256.Sum256([]byte(req.Prompt))
	words := req.TargetWords
	if words <= 0 {
		words = 120
	}
	drift := int(binary.BigEndian.Uint16(seed[:2])) % (words/8 + 1)
	if seed[2]%2 == 0 {
		drift = -drift
	}
	words += drift
	if words < 1 {
		words = 1
	}

	vocabulary := strings.Fields(req.Prompt)
	if len(vocabulary) == 0 {
		vocabulary = []string{"draft"}
	}
	var b strings.Builder
	for i := 0; i < words; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(vocabulary[i%len(vocabulary)])
	}
	text := b.String()
	return &GenerateResult{
		Content:   text,
		WordCount: countWords(text),
		Model:     "synthetic",
	}
}

func countWords(text string) int {
	return len(strings.Fields(text))
}
