package tools

import (
	"context"
	"fmt"
	"strings"

	"server/internal/domain"
	"server/internal/providers/genai"
	"server/internal/storage"
)

// TextGenerator is the capability the writer and researcher consume.
type TextGenerator interface {
	Generate(ctx context.Context, req genai.GenerateRequest) (*genai.GenerateResult, error)
}

// Writer produces long-form documents. Generated content is stored on the
// file store and referenced from the result record by storage key.
type Writer struct {
	orch      *Orchestrator
	generator TextGenerator
	store     *storage.FileStore
}

// NewWriter constructs a Writer.
func NewWriter(orch *Orchestrator, generator TextGenerator, store *storage.FileStore) *Writer {
	return &Writer{orch: orch, generator: generator, store: store}
}

// WriteRequest describes a writing job.
type WriteRequest struct {
	Prompt    string
	WordCount int
	Locale    string
	Country   string
	RequestID string
}

// Write runs the credit-gated generation flow for the writing tool.
func (w *Writer) Write(ctx context.Context, userID string, req WriteRequest) (*Outcome, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required: %w", domain.ErrInvalidArgument)
	}
	return w.orch.run(ctx, Request{
		UserID:    userID,
		Tool:      domain.ToolWriting,
		Content:   req.Prompt,
		WordCount: req.WordCount,
		Country:   req.Country,
		RequestID: req.RequestID,
	}, func(callCtx context.Context) (*callOutput, error) {
		result, err := w.generator.Generate(callCtx, genai.GenerateRequest{
			Prompt:      req.Prompt,
			TargetWords: req.WordCount,
			Locale:      req.Locale,
			RequestID:   req.RequestID,
		})
		if err != nil {
			return nil, err
		}
		key := ""
		if w.store != nil {
			key, err = w.store.Write(callCtx, documentKey(userID, req.RequestID), []byte(result.Content))
			if err != nil {
				return nil, fmt.Errorf("store document: %w", err)
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

func documentKey(userID, requestID string) string {
	if requestID == "" {
		requestID = "document"
	}
	return fmt.Sprintf("documents/%s/%s.txt", userID, requestID)
}
