package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/adapter/repo"
	"server/internal/credits"
	"server/internal/domain"
	"server/internal/providers/detector"
	"server/internal/providers/genai"
)

type fakeGenerator struct {
	result *genai.GenerateResult
	err    error
	delay  time.Duration
}

func (f *fakeGenerator) Generate(ctx context.Context, req genai.GenerateRequest) (*genai.GenerateResult, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeDetection struct {
	detection *detector.Detection
	rewrite   *detector.Rewrite
	err       error
}

func (f *fakeDetection) Detect(ctx context.Context, text string) (*detector.Detection, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.detection, nil
}

func (f *fakeDetection) Humanize(ctx context.Context, text string, targetWords int) (*detector.Rewrite, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rewrite, nil
}

type fixture struct {
	store  *repo.MemoryStore
	orch   *Orchestrator
	userID string
}

func newFixture(t *testing.T, plan domain.PlanType, balance int) *fixture {
	t.Helper()
	store := repo.NewMemoryStore()
	account := store.PutAccount(&domain.Account{
		GoogleSub:          "sub",
		Plan:               plan,
		Credits:            balance,
		SubscriptionStatus: domain.SubscriptionActive,
	})
	registry := credits.NewRegistry()
	tracker := credits.NewTracker(store, zerolog.Nop())
	ledger := credits.NewLedger(registry, store, zerolog.Nop())
	validator := credits.NewValidator(registry, store, tracker, zerolog.Nop())
	orch := NewOrchestrator(validator, ledger, tracker, store, zerolog.Nop(), time.Second)
	return &fixture{store: store, orch: orch, userID: account.ID}
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func TestWriteChargesAndRecords(t *testing.T) {
	fx := newFixture(t, domain.PlanFreemium, 200)
	generator := &fakeGenerator{result: &genai.GenerateResult{
		Content:   words(300),
		WordCount: 300,
		Model:     "fake-model",
	}}
	writer := NewWriter(fx.orch, generator, nil)
	ctx := context.Background()

	outcome, err := writer.Write(ctx, fx.userID, WriteRequest{Prompt: "write about tides", WordCount: 300})
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if outcome.Rejection != nil {
		t.Fatalf("unexpected rejection: %+v", outcome.Rejection)
	}
	if outcome.CreditsCharged != 100 {
		t.Fatalf("CreditsCharged = %d, want 100", outcome.CreditsCharged)
	}
	if outcome.NewBalance != 100 {
		t.Fatalf("NewBalance = %d, want 100", outcome.NewBalance)
	}

	account, _ := fx.store.GetByID(ctx, fx.userID)
	if account.Credits != 100 {
		t.Fatalf("balance = %d, want 100", account.Credits)
	}

	txn, err := fx.store.GetTransaction(ctx, outcome.TransactionID)
	if err != nil {
		t.Fatalf("GetTransaction error: %v", err)
	}
	if txn.State != domain.TransactionCommitted {
		t.Fatalf("transaction state = %s, want committed", txn.State)
	}

	result, err := fx.store.GetResult(ctx, outcome.ResultID)
	if err != nil {
		t.Fatalf("GetResult error: %v", err)
	}
	if result.Tool != domain.ToolWriting || result.WordCount != 300 {
		t.Fatalf("result = %+v", result)
	}

	usage, err := fx.store.GetMonthly(ctx, fx.userID, domain.MonthKey(time.Now()))
	if err != nil {
		t.Fatalf("GetMonthly error: %v", err)
	}
	if usage.TotalCredits != 100 || usage.TotalWords != 300 || usage.RequestCount != 1 {
		t.Fatalf("usage = %+v", usage)
	}
}

func TestProviderFailureRollsBack(t *testing.T) {
	fx := newFixture(t, domain.PlanFreemium, 200)
	generator := &fakeGenerator{err: errors.New("upstream 500")}
	writer := NewWriter(fx.orch, generator, nil)
	ctx := context.Background()

	_, err := writer.Write(ctx, fx.userID, WriteRequest{Prompt: "write about tides", WordCount: 300})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("error = %v, want ErrProviderFailure", err)
	}

	// The reservation was rolled back in full.
	account, _ := fx.store.GetByID(ctx, fx.userID)
	if account.Credits != 200 {
		t.Fatalf("balance = %d, want 200", account.Credits)
	}

	// No usage was recorded for the failed call.
	usage, _ := fx.store.GetMonthly(ctx, fx.userID, domain.MonthKey(time.Now()))
	if usage.RequestCount != 0 {
		t.Fatalf("usage = %+v, want none", usage)
	}
}

func TestProviderTimeoutRollsBack(t *testing.T) {
	fx := newFixture(t, domain.PlanFreemium, 200)
	fx.orch.callTimeout = 10 * time.Millisecond
	generator := &fakeGenerator{
		delay:  time.Second,
		result: &genai.GenerateResult{Content: "late", WordCount: 1},
	}
	writer := NewWriter(fx.orch, generator, nil)
	ctx := context.Background()

	_, err := writer.Write(ctx, fx.userID, WriteRequest{Prompt: "slow prompt", WordCount: 300})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("error = %v, want ErrProviderFailure", err)
	}

	account, _ := fx.store.GetByID(ctx, fx.userID)
	if account.Credits != 200 {
		t.Fatalf("balance = %d, want 200", account.Credits)
	}
}

func TestRejectionShortCircuitsProvider(t *testing.T) {
	fx := newFixture(t, domain.PlanFreemium, 10)
	generator := &fakeGenerator{err: errors.New("must not be called")}
	writer := NewWriter(fx.orch, generator, nil)

	outcome, err := writer.Write(context.Background(), fx.userID, WriteRequest{Prompt: "too big", WordCount: 3000})
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if outcome.Rejection == nil {
		t.Fatal("expected a rejection")
	}
	if outcome.Rejection.Code != credits.CodeInsufficientCredits {
		t.Fatalf("code = %s, want INSUFFICIENT_CREDITS", outcome.Rejection.Code)
	}

	account, _ := fx.store.GetByID(context.Background(), fx.userID)
	if account.Credits != 10 {
		t.Fatalf("balance = %d, want 10 (untouched)", account.Credits)
	}
}

func TestOverrunReconciliation(t *testing.T) {
	fx := newFixture(t, domain.PlanPro, 2000)
	// Asked for 500 words, produced 700.
	generator := &fakeGenerator{result: &genai.GenerateResult{
		Content:   words(700),
		WordCount: 700,
		Model:     "fake-model",
	}}
	writer := NewWriter(fx.orch, generator, nil)
	ctx := context.Background()

	outcome, err := writer.Write(ctx, fx.userID, WriteRequest{Prompt: "expansive topic", WordCount: 500})
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if outcome.CreditsCharged != 234 {
		t.Fatalf("CreditsCharged = %d, want 234 (ceil(700/3))", outcome.CreditsCharged)
	}
	account, _ := fx.store.GetByID(ctx, fx.userID)
	if account.Credits != 2000-234 {
		t.Fatalf("balance = %d, want %d", account.Credits, 2000-234)
	}

	usage, _ := fx.store.GetMonthly(ctx, fx.userID, domain.MonthKey(time.Now()))
	if usage.TotalCredits != 234 || usage.TotalWords != 700 {
		t.Fatalf("usage = %+v", usage)
	}
}

func TestUnderrunReconciliation(t *testing.T) {
	fx := newFixture(t, domain.PlanPro, 2000)
	generator := &fakeGenerator{result: &genai.GenerateResult{
		Content:   words(500),
		WordCount: 500,
		Model:     "fake-model",
	}}
	writer := NewWriter(fx.orch, generator, nil)
	ctx := context.Background()

	outcome, err := writer.Write(ctx, fx.userID, WriteRequest{Prompt: "tight topic", WordCount: 700})
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if outcome.CreditsCharged != 167 {
		t.Fatalf("CreditsCharged = %d, want 167 (ceil(500/3))", outcome.CreditsCharged)
	}
	account, _ := fx.store.GetByID(ctx, fx.userID)
	if account.Credits != 2000-167 {
		t.Fatalf("balance = %d, want %d", account.Credits, 2000-167)
	}
}

func TestDetectPricedByContent(t *testing.T) {
	fx := newFixture(t, domain.PlanFreemium, 200)
	score := 0.92
	provider := &fakeDetection{detection: &detector.Detection{
		OriginalityScore: score,
		Issues:           []string{"repetitive phrasing"},
		WordCount:        40,
	}}
	det := NewDetector(fx.orch, provider)
	ctx := context.Background()

	outcome, err := det.Detect(ctx, fx.userID, DetectRequest{Text: words(40)})
	if err != nil {
		t.Fatalf("Detect error: %v", err)
	}
	if outcome.Rejection != nil {
		t.Fatalf("unexpected rejection: %+v", outcome.Rejection)
	}
	// 40 words at 10 words per credit.
	if outcome.CreditsCharged != 4 {
		t.Fatalf("CreditsCharged = %d, want 4", outcome.CreditsCharged)
	}
	if outcome.OriginalityScore == nil || *outcome.OriginalityScore != score {
		t.Fatalf("OriginalityScore = %v, want %v", outcome.OriginalityScore, score)
	}
	if len(outcome.Issues) != 1 {
		t.Fatalf("Issues = %v", outcome.Issues)
	}
}

func TestEmptyRequestsRejected(t *testing.T) {
	fx := newFixture(t, domain.PlanFreemium, 200)
	writer := NewWriter(fx.orch, &fakeGenerator{}, nil)
	researcher := NewResearcher(fx.orch, &fakeGenerator{}, nil)
	det := NewDetector(fx.orch, &fakeDetection{})
	ctx := context.Background()

	if _, err := writer.Write(ctx, fx.userID, WriteRequest{}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("empty write error = %v, want ErrInvalidArgument", err)
	}
	if _, err := researcher.Research(ctx, fx.userID, ResearchRequest{}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("empty research error = %v, want ErrInvalidArgument", err)
	}
	if _, err := det.Detect(ctx, fx.userID, DetectRequest{Text: "  "}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("empty detect error = %v, want ErrInvalidArgument", err)
	}
}
