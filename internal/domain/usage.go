package domain

import "time"

// MonthKeyFormat is the canonical key for monthly aggregates, e.g. "2026-08".
const MonthKeyFormat = "2006-01"

// MonthKey returns the UTC month bucket for the given time.
func MonthKey(t time.Time) string {
	return t.UTC().Format(MonthKeyFormat)
}

// MonthlyUsage aggregates committed consumption per user per calendar month.
// Counters only ever increase within a month.
type MonthlyUsage struct {
	UserID       string
	Month        string
	TotalWords   int
	TotalCredits int
	RequestCount int
	LastTool     ToolType
	LastCountry  string
	UpdatedAt    time.Time
}

// UsageMetadata annotates a usage increment with request context. Purely
// informational; it never affects balance accounting.
type UsageMetadata struct {
	Tool      ToolType
	Country   string
	RequestID string
}
