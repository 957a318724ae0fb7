package tools

import (
	"context"
	"fmt"
	"strings"

	"server/internal/domain"
	"server/internal/providers/genai"
	"server/internal/storage"
)

// Researcher synthesizes a research brief from a topic and optional source
// notes. Same capability as the writer, different prompt shaping and ratio.
type Researcher struct {
	orch      *Orchestrator
	generator TextGenerator
	store     *storage.FileStore
}

// NewResearcher constructs a Researcher.
func NewResearcher(orch *Orchestrator, generator TextGenerator, store *storage.FileStore) *Researcher {
	return &Researcher{orch: orch, generator: generator, store: store}
}

// ResearchRequest describes a research synthesis job.
type ResearchRequest struct {
	Topic     string
	Sources   []string
	WordCount int
	Locale    string
	Country   string
	RequestID string
}

// Research runs the credit-gated synthesis flow for the research tool.
func (r *Researcher) Research(ctx context.Context, userID string, req ResearchRequest) (*Outcome, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, fmt.Errorf("topic is required: %w", domain.ErrInvalidArgument)
	}
	prompt := buildResearchPrompt(req)
	return r.orch.run(ctx, Request{
		UserID:    userID,
		Tool:      domain.ToolResearch,
		Content:   prompt,
		WordCount: req.WordCount,
		Country:   req.Country,
		RequestID: req.RequestID,
	}, func(callCtx context.Context) (*callOutput, error) {
		result, err := r.generator.Generate(callCtx, genai.GenerateRequest{
			Prompt:      prompt,
			TargetWords: req.WordCount,
			Locale:      req.Locale,
			RequestID:   req.RequestID,
		})
		if err != nil {
			return nil, err
		}
		key := ""
		if r.store != nil {
			key, err = r.store.Write(callCtx, fmt.Sprintf("research/%s/%s.txt", userID, nonEmpty(req.RequestID, "brief")), []byte(result.Content))
			if err != nil {
				return nil, fmt.Errorf("store brief: %w", err)
			}
		}
		return &callOutput{
			content:    result.Content,
			wordCount:  result.WordCount,
			storageKey: key,
			provider:   result.Model,
		}, nil
	})
}

func buildResearchPrompt(req ResearchRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Synthesize a research brief on: %s.", req.Topic)
	if len(req.Sources) > 0 {
		b.WriteString("\nGround the brief in these source notes:\n")
		for _, src := range req.Sources {
			fmt.Fprintf(&b, "- %s\n", src)
		}
	}
	b.WriteString("\nCite which note supports each claim.")
	return b.String()
}

func nonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
