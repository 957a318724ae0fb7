package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
)

// MemoryStore is an in-memory implementation of every repository interface,
// used by tests and local development. A single mutex stands in for the
// backing store's transaction primitive: each method body is one atomic unit,
// which gives concurrent reservations the same linearizable balance the
// PostgreSQL implementation provides.
type MemoryStore struct {
	mu           sync.Mutex
	accounts     map[string]*domain.Account
	subIndex     map[string]string
	transactions map[string]*domain.CreditTransaction
	grants       map[string]*domain.CreditGrant
	grantRefs    map[string]bool
	usage        map[string]map[string]*domain.MonthlyUsage
	results      map[string]*domain.ToolResult
	resultOrder  []string
	now          func() time.Time
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[string]*domain.Account),
		subIndex:     make(map[string]string),
		transactions: make(map[string]*domain.CreditTransaction),
		grants:       make(map[string]*domain.CreditGrant),
		grantRefs:    make(map[string]bool),
		usage:        make(map[string]map[string]*domain.MonthlyUsage),
		results:      make(map[string]*domain.ToolResult),
		now:          time.Now,
	}
}

var (
	_ domain.AccountRepository     = (*MemoryStore)(nil)
	_ domain.TransactionRepository = (*MemoryStore)(nil)
	_ domain.UsageRepository       = (*MemoryStore)(nil)
	_ domain.ResultRepository      = (*MemoryStore)(nil)
)

// PutAccount seeds an account, generating an ID when absent. Intended for
// tests and local bootstrap.
func (s *MemoryStore) PutAccount(account *domain.Account) *domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	cp := *account
	s.accounts[cp.ID] = &cp
	if cp.GoogleSub != "" {
		s.subIndex[cp.GoogleSub] = cp.ID
	}
	out := cp
	return &out
}

func (s *MemoryStore) UpsertByGoogleSub(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.subIndex[account.GoogleSub]; ok {
		existing := s.accounts[id]
		existing.Email = account.Email
		existing.Name = account.Name
		existing.Locale = account.Locale
		existing.UpdatedAt = s.now().UTC()
		out := *existing
		return &out, nil
	}
	cp := *account
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.CreatedAt = s.now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	s.accounts[cp.ID] = &cp
	s.subIndex[cp.GoogleSub] = cp.ID
	out := cp
	return &out, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *account
	return &out, nil
}

func (s *MemoryStore) GetByGoogleSub(ctx context.Context, sub string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.subIndex[sub]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *s.accounts[id]
	return &out, nil
}

func (s *MemoryStore) SetPlan(ctx context.Context, id string, plan domain.PlanType, status domain.SubscriptionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	account.Plan = plan
	account.SubscriptionStatus = status
	account.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) RefreshFreemium(ctx context.Context, allotment int, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	refreshed := 0
	for _, account := range s.accounts {
		if s.refreshDueLocked(account, now) {
			account.Credits = allotment
			account.LastCreditRefresh = now.UTC()
			account.UpdatedAt = now.UTC()
			refreshed++
		}
	}
	return refreshed, nil
}

func (s *MemoryStore) RefreshAccountIfDue(ctx context.Context, id string, allotment int, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !s.refreshDueLocked(account, now) {
		return false, nil
	}
	account.Credits = allotment
	account.LastCreditRefresh = now.UTC()
	account.UpdatedAt = now.UTC()
	return true, nil
}

func (s *MemoryStore) refreshDueLocked(account *domain.Account, now time.Time) bool {
	if account.Plan != domain.PlanFreemium {
		return false
	}
	monthStart := time.Date(now.UTC().Year(), now.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	return account.LastCreditRefresh.Before(monthStart)
}

func (s *MemoryStore) DowngradeLapsed(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	downgraded := 0
	for _, account := range s.accounts {
		if account.SubscriptionLapsed() {
			account.Plan = domain.PlanFreemium
			account.UpdatedAt = s.now().UTC()
			downgraded++
		}
	}
	return downgraded, nil
}

func (s *MemoryStore) ReserveCredits(ctx context.Context, txn *domain.CreditTransaction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[txn.UserID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if account.Credits < txn.CreditsReserved {
		return account.Credits, domain.ErrInsufficientCredits
	}
	account.Credits -= txn.CreditsReserved
	account.UpdatedAt = s.now().UTC()
	cp := *txn
	s.transactions[cp.ID] = &cp
	return account.Credits, nil
}

func (s *MemoryStore) GetTransaction(ctx context.Context, id string) (*domain.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.transactions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *txn
	return &out, nil
}

func (s *MemoryStore) CommitReservation(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.transactions[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if txn.State != domain.TransactionReserved {
		return false, nil
	}
	txn.State = domain.TransactionCommitted
	resolved := s.now().UTC()
	txn.ResolvedAt = &resolved
	return true, nil
}

func (s *MemoryStore) RollbackReservation(ctx context.Context, id string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.transactions[id]
	if !ok {
		return 0, false, domain.ErrNotFound
	}
	if txn.State != domain.TransactionReserved {
		return 0, false, nil
	}
	account, ok := s.accounts[txn.UserID]
	if !ok {
		return 0, false, domain.ErrNotFound
	}
	txn.State = domain.TransactionRolledBack
	resolved := s.now().UTC()
	txn.ResolvedAt = &resolved
	account.Credits += txn.CreditsReserved
	account.UpdatedAt = resolved
	return txn.CreditsReserved, true, nil
}

func (s *MemoryStore) AddCredits(ctx context.Context, grant *domain.CreditGrant) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[grant.UserID]
	if !ok {
		return 0, false, domain.ErrNotFound
	}
	if grant.Reference != "" && s.grantRefs[grant.Reference] {
		return account.Credits, false, nil
	}
	cp := *grant
	s.grants[cp.ID] = &cp
	if cp.Reference != "" {
		s.grantRefs[cp.Reference] = true
	}
	account.Credits += cp.Amount
	account.UpdatedAt = s.now().UTC()
	return account.Credits, true, nil
}

func (s *MemoryStore) ListUnresolved(ctx context.Context, cutoff time.Time, limit int) ([]domain.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stale []domain.CreditTransaction
	for _, txn := range s.transactions {
		if txn.State == domain.TransactionReserved && txn.CreatedAt.Before(cutoff) {
			stale = append(stale, *txn)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (s *MemoryStore) IncrementMonthly(ctx context.Context, userID, month string, words, creditsUsed int, meta domain.UsageMetadata) (*domain.MonthlyUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	months, ok := s.usage[userID]
	if !ok {
		months = make(map[string]*domain.MonthlyUsage)
		s.usage[userID] = months
	}
	record, ok := months[month]
	if !ok {
		record = &domain.MonthlyUsage{UserID: userID, Month: month}
		months[month] = record
	}
	record.TotalWords += words
	record.TotalCredits += creditsUsed
	record.RequestCount++
	if meta.Tool != "" {
		record.LastTool = meta.Tool
	}
	if meta.Country != "" {
		record.LastCountry = meta.Country
	}
	record.UpdatedAt = s.now().UTC()
	out := *record
	return &out, nil
}

func (s *MemoryStore) GetMonthly(ctx context.Context, userID, month string) (*domain.MonthlyUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.usage[userID][month]; ok {
		out := *record
		return &out, nil
	}
	return &domain.MonthlyUsage{UserID: userID, Month: month}, nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, userID string, limit int) ([]domain.MonthlyUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []domain.MonthlyUsage
	for _, record := range s.usage[userID] {
		records = append(records, *record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Month > records[j].Month })
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *MemoryStore) Create(ctx context.Context, result *domain.ToolResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *result
	s.results[cp.ID] = &cp
	s.resultOrder = append(s.resultOrder, cp.ID)
	return nil
}

func (s *MemoryStore) GetResult(ctx context.Context, id string) (*domain.ToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *result
	return &out, nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]domain.ToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []domain.ToolResult
	for i := len(s.resultOrder) - 1; i >= 0; i-- {
		result := s.results[s.resultOrder[i]]
		if result.UserID == userID {
			results = append(results, *result)
			if limit > 0 && len(results) == limit {
				break
			}
		}
	}
	return results, nil
}
