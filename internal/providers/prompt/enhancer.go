package prompt

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// EnhanceRequest carries a raw prompt and the user's stated objective.
type EnhanceRequest struct {
	Prompt    string
	Objective string
	Locale    string
}

// EnhanceResponse is the optimized prompt plus the adjustments made.
type EnhanceResponse struct {
	OptimizedPrompt string   `json:"optimized_prompt"`
	Notes           []string `json:"notes,omitempty"`
	Provider        string   `json:"-"`
}

// Enhancer rewrites prompts for better generation results.
type Enhancer interface {
	Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResponse, error)
}

const (
	staticProviderName = "static"
	openAIProviderName = "openai"
)

// StaticEnhancer is the offline fallback: it applies a fixed set of prompt
// hygiene rules without calling any model.
type StaticEnhancer struct{}

// NewStaticEnhancer constructs a StaticEnhancer.
func NewStaticEnhancer() *StaticEnhancer {
	return &StaticEnhancer{}
}

// Enhance normalizes casing, pins the objective up front and appends
// structure guidance.
func (s *StaticEnhancer) Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResponse, error) {
	raw := strings.TrimSpace(req.Prompt)
	if raw == "" {
		return nil, fmt.Errorf("prompt: nothing to enhance")
	}

	var notes []string
	c := cases.Title(language.Und)

	var b strings.Builder
	if objective := strings.TrimSpace(req.Objective); objective != "" {
		fmt.Fprintf(&b, "%s.\n\n", c.String(objective))
		notes = append(notes, "pinned objective as the opening instruction")
	}
	b.WriteString(raw)
	if !strings.Contains(strings.ToLower(raw), "format") {
		b.WriteString("\n\nStructure the answer with short paragraphs and a closing summary.")
		notes = append(notes, "added output format guidance")
	}

	return &EnhanceResponse{
		OptimizedPrompt: b.String(),
		Notes:           notes,
		Provider:        staticProviderName,
	}, nil
}

var _ Enhancer = (*StaticEnhancer)(nil)
