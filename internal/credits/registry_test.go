package credits

import (
	"errors"
	"testing"

	"server/internal/domain"
)

func TestRegistryLimits(t *testing.T) {
	registry := NewRegistry()

	limits, err := registry.Limits(domain.PlanFreemium)
	if err != nil {
		t.Fatalf("Limits(freemium) error: %v", err)
	}
	if limits.MonthlyCredits == nil || *limits.MonthlyCredits != 200 {
		t.Fatalf("freemium monthly credits = %v, want 200", limits.MonthlyCredits)
	}

	limits, err = registry.Limits(domain.PlanPro)
	if err != nil {
		t.Fatalf("Limits(pro) error: %v", err)
	}
	if limits.MonthlyCredits == nil || *limits.MonthlyCredits != 2000 {
		t.Fatalf("pro monthly credits = %v, want 2000", limits.MonthlyCredits)
	}

	limits, err = registry.Limits(domain.PlanCustom)
	if err != nil {
		t.Fatalf("Limits(custom) error: %v", err)
	}
	if !limits.Unlimited() {
		t.Fatal("custom plan should be unlimited")
	}

	if _, err := registry.Limits("enterprise"); !errors.Is(err, domain.ErrUnknownPlan) {
		t.Fatalf("Limits(enterprise) error = %v, want ErrUnknownPlan", err)
	}
}

func TestCreditsForWords(t *testing.T) {
	registry := NewRegistry()

	tests := []struct {
		name  string
		words int
		tool  domain.ToolType
		want  int
	}{
		{"writing exact multiple", 600, domain.ToolWriting, 200},
		{"writing rounds up", 601, domain.ToolWriting, 201},
		{"writing single word", 1, domain.ToolWriting, 1},
		{"research", 500, domain.ToolResearch, 250},
		{"detection is cheap", 1000, domain.ToolDetectorDetection, 100},
		{"detection rounds up", 1001, domain.ToolDetectorDetection, 101},
		{"humanize", 300, domain.ToolDetectorGeneration, 100},
		{"prompt engineer", 49, domain.ToolPromptEngineer, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := registry.CreditsForWords(tt.words, tt.tool)
			if err != nil {
				t.Fatalf("CreditsForWords(%d, %s) error: %v", tt.words, tt.tool, err)
			}
			if got != tt.want {
				t.Fatalf("CreditsForWords(%d, %s) = %d, want %d", tt.words, tt.tool, got, tt.want)
			}
		})
	}

	if _, err := registry.CreditsForWords(0, domain.ToolWriting); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("zero words error = %v, want ErrInvalidArgument", err)
	}
	if _, err := registry.CreditsForWords(100, "unknown_tool"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("unknown tool error = %v, want ErrInvalidArgument", err)
	}
}
