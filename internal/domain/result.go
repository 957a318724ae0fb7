package domain

import "time"

// ToolResult is the persisted outcome of a completed tool request. Writer and
// researcher results reference the stored document by StorageKey; detector
// results carry the originality score.
type ToolResult struct {
	ID               string
	UserID           string
	Tool             ToolType
	TransactionID    string
	WordCount        int
	StorageKey       string
	OriginalityScore *float64
	Properties       []byte
	CreatedAt        time.Time
}
