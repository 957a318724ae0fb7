package domain

// PlanLimits describes the static entitlements of a plan tier. MonthlyCredits
// is nil for unlimited plans. WordsPerCredit is the canonical conversion
// direction: a request for N words costs ceil(N / WordsPerCredit[tool])
// credits.
type PlanLimits struct {
	MonthlyCredits *int
	WordsPerCredit map[ToolType]int
}

// Unlimited reports whether the plan has no monthly aggregate cap.
func (l PlanLimits) Unlimited() bool {
	return l.MonthlyCredits == nil
}
