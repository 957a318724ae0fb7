package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUnknownPlan         = errors.New("unknown plan")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrProviderFailure     = errors.New("provider failure")
	ErrDuplicateOperation  = errors.New("duplicate operation")

	// Ledger consistency errors. These indicate a bug in the orchestration
	// layer and must abort the request rather than be swallowed.
	ErrTransactionCommitted  = errors.New("transaction already committed")
	ErrTransactionRolledBack = errors.New("transaction already rolled back")
)
