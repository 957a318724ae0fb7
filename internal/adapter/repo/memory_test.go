package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"server/internal/domain"
)

func TestUpsertByGoogleSub(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.UpsertByGoogleSub(ctx, &domain.Account{
		GoogleSub: "sub-1",
		Email:     "a@example.com",
		Plan:      domain.PlanFreemium,
		Credits:   domain.FreemiumCredits,
	})
	if err != nil {
		t.Fatalf("UpsertByGoogleSub error: %v", err)
	}
	if first.ID == "" {
		t.Fatal("ID should be assigned")
	}
	if first.Credits != 200 {
		t.Fatalf("Credits = %d, want 200", first.Credits)
	}

	// A later sign-in with the same sub updates the profile but never the
	// balance or plan.
	store.mu.Lock()
	store.accounts[first.ID].Credits = 37
	store.mu.Unlock()

	second, err := store.UpsertByGoogleSub(ctx, &domain.Account{
		GoogleSub: "sub-1",
		Email:     "renamed@example.com",
		Plan:      domain.PlanFreemium,
		Credits:   domain.FreemiumCredits,
	})
	if err != nil {
		t.Fatalf("second UpsertByGoogleSub error: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("ID changed across upserts: %s != %s", second.ID, first.ID)
	}
	if second.Email != "renamed@example.com" {
		t.Fatalf("Email = %q, want updated", second.Email)
	}
	if second.Credits != 37 {
		t.Fatalf("Credits = %d, want 37 (balance untouched by sign-in)", second.Credits)
	}
}

func TestReserveCreditsBoundary(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	account := store.PutAccount(&domain.Account{GoogleSub: "s", Plan: domain.PlanFreemium, Credits: 10})

	// Reserving exactly the balance succeeds and leaves zero.
	balance, err := store.ReserveCredits(ctx, &domain.CreditTransaction{
		ID: "t1", UserID: account.ID, Tool: domain.ToolWriting,
		CreditsReserved: 10, WordsAllocated: 30,
		State: domain.TransactionReserved, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("ReserveCredits error: %v", err)
	}
	if balance != 0 {
		t.Fatalf("balance = %d, want 0", balance)
	}

	// One more credit is refused and the current balance is reported.
	balance, err = store.ReserveCredits(ctx, &domain.CreditTransaction{
		ID: "t2", UserID: account.ID, Tool: domain.ToolWriting,
		CreditsReserved: 1, WordsAllocated: 1,
		State: domain.TransactionReserved, CreatedAt: time.Now(),
	})
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("error = %v, want ErrInsufficientCredits", err)
	}
	if balance != 0 {
		t.Fatalf("reported balance = %d, want 0", balance)
	}
	if _, err := store.GetTransaction(ctx, "t2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("a refused reservation must not be persisted")
	}
}

func TestAddCreditsReferenceIdempotency(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	account := store.PutAccount(&domain.Account{GoogleSub: "s", Plan: domain.PlanPro, Credits: 0})

	balance, applied, err := store.AddCredits(ctx, &domain.CreditGrant{
		ID: "g1", UserID: account.ID, Amount: 100, Kind: domain.GrantTopUp, Reference: "ref-1",
	})
	if err != nil || !applied || balance != 100 {
		t.Fatalf("AddCredits = %d, %v, %v", balance, applied, err)
	}

	balance, applied, err = store.AddCredits(ctx, &domain.CreditGrant{
		ID: "g2", UserID: account.ID, Amount: 100, Kind: domain.GrantTopUp, Reference: "ref-1",
	})
	if err != nil {
		t.Fatalf("AddCredits error: %v", err)
	}
	if applied || balance != 100 {
		t.Fatalf("duplicate reference applied=%v balance=%d, want no-op at 100", applied, balance)
	}

	// Grants without a reference always apply.
	_, applied, err = store.AddCredits(ctx, &domain.CreditGrant{
		ID: "g3", UserID: account.ID, Amount: 5, Kind: domain.GrantAdjustment,
	})
	if err != nil || !applied {
		t.Fatalf("reference-less grant = %v, %v, want applied", applied, err)
	}
}

func TestListUnresolvedOrderAndLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	account := store.PutAccount(&domain.Account{GoogleSub: "s", Plan: domain.PlanPro, Credits: 100})

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"c", "a", "b"} {
		if _, err := store.ReserveCredits(ctx, &domain.CreditTransaction{
			ID: id, UserID: account.ID, Tool: domain.ToolWriting,
			CreditsReserved: 1, WordsAllocated: 3,
			State: domain.TransactionReserved, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("ReserveCredits error: %v", err)
		}
	}

	stale, err := store.ListUnresolved(ctx, time.Now(), 2)
	if err != nil {
		t.Fatalf("ListUnresolved error: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("len = %d, want 2", len(stale))
	}
	if stale[0].ID != "c" || stale[1].ID != "a" {
		t.Fatalf("order = %s, %s, want oldest first (c, a)", stale[0].ID, stale[1].ID)
	}
}

func TestResultsListByUser(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3"} {
		if err := store.Create(ctx, &domain.ToolResult{ID: id, UserID: "u1", Tool: domain.ToolWriting}); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}
	if err := store.Create(ctx, &domain.ToolResult{ID: "other", UserID: "u2", Tool: domain.ToolResearch}); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	results, err := store.ListByUser(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("ListByUser error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len = %d, want 2", len(results))
	}
	if results[0].ID != "r3" || results[1].ID != "r2" {
		t.Fatalf("order = %s, %s, want newest first", results[0].ID, results[1].ID)
	}
}
