package tools

import (
	"context"
	"fmt"
	"strings"

	"server/internal/domain"
	"server/internal/providers/detector"
)

// DetectionProvider is the capability the detector tools consume.
type DetectionProvider interface {
	Detect(ctx context.Context, text string) (*detector.Detection, error)
	Humanize(ctx context.Context, text string, targetWords int) (*detector.Rewrite, error)
}

// Detector wraps the originality-detection capability behind the credit
// flow: scoring is priced by the scanned content, rewriting by the rewritten
// content.
type Detector struct {
	orch     *Orchestrator
	provider DetectionProvider
}

// NewDetector constructs a Detector.
func NewDetector(orch *Orchestrator, provider DetectionProvider) *Detector {
	return &Detector{orch: orch, provider: provider}
}

// DetectRequest describes an originality scan.
type DetectRequest struct {
	Text      string
	Country   string
	RequestID string
}

// Detect scores the submitted text. Priced per scanned word under the
// detector_detection ratio; the word count derives from the content itself.
func (d *Detector) Detect(ctx context.Context, userID string, req DetectRequest) (*Outcome, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("text is required: %w", domain.ErrInvalidArgument)
	}
	return d.orch.run(ctx, Request{
		UserID:    userID,
		Tool:      domain.ToolDetectorDetection,
		Content:   req.Text,
		Country:   req.Country,
		RequestID: req.RequestID,
	}, func(callCtx context.Context) (*callOutput, error) {
		detection, err := d.provider.Detect(callCtx, req.Text)
		if err != nil {
			return nil, err
		}
		score := detection.OriginalityScore
		return &callOutput{
			wordCount:        detection.WordCount,
			originalityScore: &score,
			issues:           detection.Issues,
			provider:         "detector",
		}, nil
	})
}

// HumanizeRequest describes a humanizing rewrite.
type HumanizeRequest struct {
	Text      string
	WordCount int
	Country   string
	RequestID string
}

// Humanize rewrites the submitted text under the detector_generation ratio.
func (d *Detector) Humanize(ctx context.Context, userID string, req HumanizeRequest) (*Outcome, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("text is required: %w", domain.ErrInvalidArgument)
	}
	return d.orch.run(ctx, Request{
		UserID:    userID,
		Tool:      domain.ToolDetectorGeneration,
		Content:   req.Text,
		WordCount: req.WordCount,
		Country:   req.Country,
		RequestID: req.RequestID,
	}, func(callCtx context.Context) (*callOutput, error) {
		rewrite, err := d.provider.Humanize(callCtx, req.Text, req.WordCount)
		if err != nil {
			return nil, err
		}
		return &callOutput{
			content:   rewrite.Content,
			wordCount: rewrite.WordCount,
			provider:  "detector",
		}, nil
	})
}
