package domain

import "time"

// ToolType identifies which metered capability a request consumes.
type ToolType string

const (
	ToolWriting            ToolType = "writing"
	ToolResearch           ToolType = "research"
	ToolDetectorDetection  ToolType = "detector_detection"
	ToolDetectorGeneration ToolType = "detector_generation"
	ToolPromptEngineer     ToolType = "prompt_engineer"
)

// ToolTypes lists every registered tool type.
func ToolTypes() []ToolType {
	return []ToolType{
		ToolWriting,
		ToolResearch,
		ToolDetectorDetection,
		ToolDetectorGeneration,
		ToolPromptEngineer,
	}
}

// TransactionState tracks the lifecycle of a credit reservation. A
// transaction moves from reserved to exactly one terminal state and is never
// mutated afterwards.
type TransactionState string

const (
	TransactionReserved   TransactionState = "reserved"
	TransactionCommitted  TransactionState = "committed"
	TransactionRolledBack TransactionState = "rolled_back"
)

// CreditTransaction is a ledger entry recording a provisional hold on an
// account's balance. Identity and amounts are immutable once created; State
// is the only mutable field and is written exactly once after creation.
type CreditTransaction struct {
	ID              string
	UserID          string
	Tool            ToolType
	CreditsReserved int
	WordsAllocated  int
	State           TransactionState
	CreatedAt       time.Time
	ResolvedAt      *time.Time
}

// GrantKind classifies non-reservation credit movements.
type GrantKind string

const (
	GrantRefund         GrantKind = "refund"
	GrantTopUp          GrantKind = "topup"
	GrantUpgrade        GrantKind = "upgrade"
	GrantMonthlyRefresh GrantKind = "monthly_refresh"
	GrantAdjustment     GrantKind = "adjustment"
)

// CreditGrant is an append-only audit record for credit additions that occur
// outside the reserve/commit flow: refunds, top-ups, upgrade allotments and
// reconciliation surpluses. Reference carries the external idempotency key
// for webhook-triggered grants.
type CreditGrant struct {
	ID                  string
	UserID              string
	Amount              int
	Kind                GrantKind
	Reference           string
	ReasonTransactionID string
	CreatedAt           time.Time
}
