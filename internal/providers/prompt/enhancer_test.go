package prompt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStaticEnhancer(t *testing.T) {
	enhancer := NewStaticEnhancer()

	resp, err := enhancer.Enhance(context.Background(), EnhanceRequest{
		Prompt:    "write a product description for a ceramic mug",
		Objective: "increase conversions",
	})
	if err != nil {
		t.Fatalf("Enhance error: %v", err)
	}
	if !strings.HasPrefix(resp.OptimizedPrompt, "Increase Conversions.") {
		t.Fatalf("objective not pinned: %q", resp.OptimizedPrompt)
	}
	if !strings.Contains(resp.OptimizedPrompt, "ceramic mug") {
		t.Fatalf("original prompt lost: %q", resp.OptimizedPrompt)
	}
	if len(resp.Notes) == 0 {
		t.Fatal("notes should describe the adjustments")
	}
	if resp.Provider != "static" {
		t.Fatalf("provider = %q, want static", resp.Provider)
	}

	if _, err := enhancer.Enhance(context.Background(), EnhanceRequest{Prompt: "  "}); err == nil {
		t.Fatal("empty prompt should error")
	}
}

func TestOpenAIEnhancerSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization = %q", auth)
		}
		content, _ := json.Marshal(modelEnhancePayload{
			OptimizedPrompt: "optimized version",
			Notes:           []string{"tightened phrasing"},
		})
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": string(content)}},
			},
		})
	}))
	defer srv.Close()

	enhancer, err := NewOpenAIEnhancer(OpenAIOptions{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	})
	if err != nil {
		t.Fatalf("NewOpenAIEnhancer error: %v", err)
	}

	resp, err := enhancer.Enhance(context.Background(), EnhanceRequest{Prompt: "draft a tagline"})
	if err != nil {
		t.Fatalf("Enhance error: %v", err)
	}
	if resp.OptimizedPrompt != "optimized version" {
		t.Fatalf("OptimizedPrompt = %q", resp.OptimizedPrompt)
	}
	if resp.Provider != "openai" {
		t.Fatalf("provider = %q, want openai", resp.Provider)
	}
}

func TestOpenAIEnhancerDegradesToFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var reason string
	enhancer, err := NewOpenAIEnhancer(OpenAIOptions{
		APIKey:   "test-key",
		BaseURL:  srv.URL,
		Fallback: NewStaticEnhancer(),
		OnFallback: func(r string, err error) {
			reason = r
		},
	})
	if err != nil {
		t.Fatalf("NewOpenAIEnhancer error: %v", err)
	}

	resp, err := enhancer.Enhance(context.Background(), EnhanceRequest{Prompt: "draft a tagline"})
	if err != nil {
		t.Fatalf("Enhance error: %v", err)
	}
	if resp.Provider != "static" {
		t.Fatalf("provider = %q, want static fallback", resp.Provider)
	}
	if reason == "" {
		t.Fatal("OnFallback should report a reason")
	}
}

func TestOpenAIEnhancerMissingKeyUsesFallback(t *testing.T) {
	enhancer, err := NewOpenAIEnhancer(OpenAIOptions{Fallback: NewStaticEnhancer()})
	if err != nil {
		t.Fatalf("NewOpenAIEnhancer error: %v", err)
	}
	resp, err := enhancer.Enhance(context.Background(), EnhanceRequest{Prompt: "draft a tagline"})
	if err != nil {
		t.Fatalf("Enhance error: %v", err)
	}
	if resp.Provider != "static" {
		t.Fatalf("provider = %q, want static", resp.Provider)
	}

	if _, err := NewOpenAIEnhancer(OpenAIOptions{}); err == nil {
		t.Fatal("no key and no fallback should be rejected")
	}
}
