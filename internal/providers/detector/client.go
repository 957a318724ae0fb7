package detector

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

// Options controls how the detection client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client wraps the external originality-detection service. Like the genai
// client it serves deterministic synthetic results when unconfigured so the
// detector tools keep working locally.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

const detectorTimeout = 30 * time.Second

// NewClient builds a Client, applying defaults for unset options.
func NewClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: detectorTimeout}
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		httpClient: client,
		logger:     opts.Logger,
	}
}

// Detection is the normalized score for a piece of text. OriginalityScore is
// in [0,1]; higher means more likely human-written.
type Detection struct {
	OriginalityScore float64
	Issues           []string
	WordCount        int
}

// Rewrite is the output of a humanizing rewrite.
type Rewrite struct {
	Content   string
	WordCount int
}

type detectRequest struct {
	Text string `json:"text"`
}

type detectResponse struct {
	Score  float64  `json:"score"`
	Issues []string `json:"issues"`
}

type rewriteRequest struct {
	Text        string `json:"text"`
	TargetWords int    `json:"target_words,omitempty"`
}

type rewriteResponse struct {
	Text string `json:"text"`
}

// Detect scores text for originality.
func (c *Client) Detect(ctx context.Context, text string) (*Detection, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("detector: text is required")
	}
	if c.apiKey == "" || c.baseURL == "" {
		return c.syntheticDetect(text), nil
	}

	var out detectResponse
	if err := c.post(ctx, "/v1/detect", detectRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	return &Detection{
		OriginalityScore: out.Score,
		Issues:           out.Issues,
		WordCount:        countWords(text),
	}, nil
}

// Humanize rewrites text to read more naturally.
func (c *Client) Humanize(ctx context.Context, text string, targetWords int) (*Rewrite, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("detector: text is required")
	}
	if c.apiKey == "" || c.baseURL == "" {
		return c.syntheticRewrite(text), nil
	}

	var out rewriteResponse
	if err := c.post(ctx, "/v1/rewrite", rewriteRequest{Text: text, TargetWords: targetWords}, &out); err != nil {
		return nil, err
	}
	rewritten := strings.TrimSpace(out.Text)
	if rewritten == "" {
		return nil, fmt.Errorf("detector: empty rewrite")
	}
	return &Rewrite{Content: rewritten, WordCount: countWords(rewritten)}, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("detector: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("detector: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("detector: http request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("detector: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("detector: decode response: %w", err)
	}
	return nil
}

func (c *Client) syntheticDetect(text string) *Detection {
	if c.logger != nil {
		c.logger.Debug().Msg("detector: unconfigured, serving synthetic score")
	}
	seed := sha256.Sum256([]byte(text))
	score := float64(binary.BigEndian.Uint16(seed[:2])) / 65535
	detection := &Detection{
		OriginalityScore: score,
		WordCount:        countWords(text),
	}
	if score < 0.5 {
		detection.Issues = append(detection.Issues, "repetitive phrasing")
	}
	return detection
}

func (c *Client) syntheticRewrite(text string) *Rewrite {
	if c.logger != nil {
		c.logger.Debug().Msg("detector: unconfigured, serving synthetic rewrite")
	}
	words := strings.Fields(text)
	for i := range words {
		if i%7 == 3 {
			words[i] = strings.ToLower(words[i])
		}
	}
	rewritten := strings.Join(words, " ")
	return &Rewrite{Content: rewritten, WordCount: len(words)}
}

func countWords(text string) int {
	return len(strings.Fields(text))
}
