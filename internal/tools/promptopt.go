package tools

import (
	"context"
	"fmt"
	"strings"

	"server/internal/credits"
	"server/internal/domain"
	"server/internal/providers/prompt"
)

// PromptOptimizer runs the prompt-engineering tool, priced by the length of
// the prompt being optimized.
type PromptOptimizer struct {
	orch     *Orchestrator
	enhancer prompt.Enhancer
}

// NewPromptOptimizer constructs a PromptOptimizer.
func NewPromptOptimizer(orch *Orchestrator, enhancer prompt.Enhancer) *PromptOptimizer {
	return &PromptOptimizer{orch: orch, enhancer: enhancer}
}

// OptimizeRequest describes a prompt optimization job.
type OptimizeRequest struct {
	Prompt    string
	Objective string
	Locale    string
	Country   string
	RequestID string
}

// Optimize rewrites the user's prompt through the enhancer.
func (p *PromptOptimizer) Optimize(ctx context.Context, userID string, req OptimizeRequest) (*Outcome, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required: %w", domain.ErrInvalidArgument)
	}
	return p.orch.run(ctx, Request{
		UserID:    userID,
		Tool:      domain.ToolPromptEngineer,
		Content:   req.Prompt,
		Country:   req.Country,
		RequestID: req.RequestID,
	}, func(callCtx context.Context) (*callOutput, error) {
		enhanced, err := p.enhancer.Enhance(callCtx, prompt.EnhanceRequest{
			Prompt:    req.Prompt,
			Objective: req.Objective,
			Locale:    req.Locale,
		})
		if err != nil {
			return nil, err
		}
		return &callOutput{
			content:   enhanced.OptimizedPrompt,
			wordCount: credits.CountWords(enhanced.OptimizedPrompt),
			notes:     enhanced.Notes,
			provider:  enhanced.Provider,
		}, nil
	})
}
