package credits

import (
	"fmt"

	"server/internal/domain"
)

// Default monthly allotments per plan tier. Custom plans have no fixed
// allotment; credits are granted by contract.
const (
	freemiumMonthlyCredits = domain.FreemiumCredits
	proMonthlyCredits      = 2000
)

// defaultRatios returns the words-per-credit conversion table. A request for
// N words costs ceil(N / ratio) credits.
func defaultRatios() map[domain.ToolType]int {
	return map[domain.ToolType]int{
		domain.ToolWriting:            3,
		domain.ToolResearch:           2,
		domain.ToolDetectorDetection:  10,
		domain.ToolDetectorGeneration: 3,
		domain.ToolPromptEngineer:     5,
	}
}

// Registry is the static plan configuration: monthly credit allotments and
// word-to-credit ratios per tool. Pure lookup, no side effects.
type Registry struct {
	plans  map[domain.PlanType]domain.PlanLimits
	ratios map[domain.ToolType]int
}

// NewRegistry builds the registry with the built-in plan table.
func NewRegistry() *Registry {
	freemium := freemiumMonthlyCredits
	pro := proMonthlyCredits
	return &Registry{
		plans: map[domain.PlanType]domain.PlanLimits{
			domain.PlanFreemium: {MonthlyCredits: &freemium, WordsPerCredit: defaultRatios()},
			domain.PlanPro:      {MonthlyCredits: &pro, WordsPerCredit: defaultRatios()},
			domain.PlanCustom:   {MonthlyCredits: nil, WordsPerCredit: defaultRatios()},
		},
		ratios: defaultRatios(),
	}
}

// Limits returns the configuration for the given plan. Unknown plan types are
// an error, never a silent default; defaulting is the caller's decision.
func (r *Registry) Limits(plan domain.PlanType) (domain.PlanLimits, error) {
	limits, ok := r.plans[plan]
	if !ok {
		return domain.PlanLimits{}, fmt.Errorf("plan %q: %w", plan, domain.ErrUnknownPlan)
	}
	return limits, nil
}

// CreditsForWords converts a word count into credits for the given tool using
// ceiling division, so partial credits always round against the caller.
func (r *Registry) CreditsForWords(words int, tool domain.ToolType) (int, error) {
	if words <= 0 {
		return 0, fmt.Errorf("word count must be positive, got %d: %w", words, domain.ErrInvalidArgument)
	}
	ratio, ok := r.ratios[tool]
	if !ok {
		return 0, fmt.Errorf("unknown tool type %q: %w", tool, domain.ErrInvalidArgument)
	}
	return (words + ratio - 1) / ratio, nil
}
