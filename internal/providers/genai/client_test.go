package genai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSyntheticGenerateIsDeterministic(t *testing.T) {
	client := NewClient(Options{})
	ctx := context.Background()

	first, err := client.Generate(ctx, GenerateRequest{Prompt: "write about tides", TargetWords: 300})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	second, err := client.Generate(ctx, GenerateRequest{Prompt: "write about tides", TargetWords: 300})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if first.Content != second.Content || first.WordCount != second.WordCount {
		t.Fatal("synthetic output should be deterministic for the same prompt")
	}
	if first.WordCount < 1 {
		t.Fatalf("WordCount = %d, want at least 1", first.WordCount)
	}
	if first.Model != "synthetic" {
		t.Fatalf("Model = %q, want synthetic", first.Model)
	}

	if _, err := client.Generate(ctx, GenerateRequest{Prompt: "  "}); err == nil {
		t.Fatal("empty prompt should error")
	}
}

func TestGenerateAgainstAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "generated text body"}}}},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(Options{APIKey: "key", BaseURL: srv.URL, Model: "test-model"})
	result, err := client.Generate(context.Background(), GenerateRequest{Prompt: "anything", TargetWords: 10})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if result.Content != "generated text body" {
		t.Fatalf("Content = %q", result.Content)
	}
	if result.WordCount != 3 {
		t.Fatalf("WordCount = %d, want 3", result.WordCount)
	}
	if result.Model != "test-model" {
		t.Fatalf("Model = %q", result.Model)
	}
}

func TestGenerateAPIErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(Options{APIKey: "key", BaseURL: srv.URL})
	if _, err := client.Generate(context.Background(), GenerateRequest{Prompt: "anything"}); err == nil {
		t.Fatal("provider error should surface to the orchestrator")
	}
}
