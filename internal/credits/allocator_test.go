package credits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/adapter/repo"
	"server/internal/domain"
)

func newTestAllocator(store *repo.MemoryStore) *Allocator {
	return NewAllocator(NewRegistry(), store, store, zerolog.Nop())
}

func TestRefreshMonthlyResetsDueFreemium(t *testing.T) {
	store := repo.NewMemoryStore()
	allocator := newTestAllocator(store)
	ctx := context.Background()

	lastMonth := time.Now().UTC().AddDate(0, -1, 0)
	due := store.PutAccount(&domain.Account{
		GoogleSub:          "due",
		Plan:               domain.PlanFreemium,
		Credits:            3,
		SubscriptionStatus: domain.SubscriptionActive,
		LastCreditRefresh:  lastMonth,
	})
	fresh := store.PutAccount(&domain.Account{
		GoogleSub:          "fresh",
		Plan:               domain.PlanFreemium,
		Credits:            120,
		SubscriptionStatus: domain.SubscriptionActive,
		LastCreditRefresh:  time.Now().UTC(),
	})
	paid := store.PutAccount(&domain.Account{
		GoogleSub:          "paid",
		Plan:               domain.PlanPro,
		Credits:            40,
		SubscriptionStatus: domain.SubscriptionActive,
		LastCreditRefresh:  lastMonth,
	})

	stats, err := allocator.RefreshMonthly(ctx)
	if err != nil {
		t.Fatalf("RefreshMonthly error: %v", err)
	}
	if stats.Refreshed != 1 {
		t.Fatalf("Refreshed = %d, want 1", stats.Refreshed)
	}

	account, _ := store.GetByID(ctx, due.ID)
	if account.Credits != 200 {
		t.Fatalf("due balance = %d, want 200", account.Credits)
	}
	account, _ = store.GetByID(ctx, fresh.ID)
	if account.Credits != 120 {
		t.Fatalf("fresh balance = %d, want 120 (untouched)", account.Credits)
	}
	account, _ = store.GetByID(ctx, paid.ID)
	if account.Credits != 40 {
		t.Fatalf("paid balance = %d, want 40 (untouched)", account.Credits)
	}

	// A second pass in the same month is a no-op.
	stats, err = allocator.RefreshMonthly(ctx)
	if err != nil {
		t.Fatalf("second RefreshMonthly error: %v", err)
	}
	if stats.Refreshed != 0 {
		t.Fatalf("second pass Refreshed = %d, want 0", stats.Refreshed)
	}
	account, _ = store.GetByID(ctx, due.ID)
	if account.Credits != 200 {
		t.Fatalf("balance after double refresh = %d, want 200", account.Credits)
	}
}

func TestRefreshMonthlyDowngradesLapsed(t *testing.T) {
	store := repo.NewMemoryStore()
	allocator := newTestAllocator(store)
	ctx := context.Background()

	lapsed := store.PutAccount(&domain.Account{
		GoogleSub:          "lapsed",
		Plan:               domain.PlanPro,
		Credits:            10,
		SubscriptionStatus: domain.SubscriptionCancelled,
		LastCreditRefresh:  time.Now().UTC().AddDate(0, -1, 0),
	})

	stats, err := allocator.RefreshMonthly(ctx)
	if err != nil {
		t.Fatalf("RefreshMonthly error: %v", err)
	}
	if stats.Downgraded != 1 {
		t.Fatalf("Downgraded = %d, want 1", stats.Downgraded)
	}

	account, _ := store.GetByID(ctx, lapsed.ID)
	if account.Plan != domain.PlanFreemium {
		t.Fatalf("plan = %s, want freemium", account.Plan)
	}
	// Downgraded accounts pick up the freemium allotment in the same pass.
	if account.Credits != 200 {
		t.Fatalf("balance = %d, want 200", account.Credits)
	}
}

func TestRefreshAccount(t *testing.T) {
	store := repo.NewMemoryStore()
	allocator := newTestAllocator(store)
	ctx := context.Background()

	account := store.PutAccount(&domain.Account{
		GoogleSub:          "solo",
		Plan:               domain.PlanFreemium,
		Credits:            0,
		SubscriptionStatus: domain.SubscriptionActive,
		LastCreditRefresh:  time.Now().UTC().AddDate(0, -2, 0),
	})

	result, err := allocator.RefreshAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("RefreshAccount error: %v", err)
	}
	if result.Skipped {
		t.Fatalf("result = %+v, want applied", result)
	}

	result, err = allocator.RefreshAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("second RefreshAccount error: %v", err)
	}
	if !result.Skipped {
		t.Fatal("second refresh in the same month should be skipped")
	}

	pro := store.PutAccount(&domain.Account{
		GoogleSub:          "pro",
		Plan:               domain.PlanPro,
		Credits:            5,
		SubscriptionStatus: domain.SubscriptionActive,
	})
	result, err = allocator.RefreshAccount(ctx, pro.ID)
	if err != nil {
		t.Fatalf("RefreshAccount(pro) error: %v", err)
	}
	if !result.Skipped {
		t.Fatal("paid accounts are never auto-refreshed")
	}
}

func TestApplyUpgrade(t *testing.T) {
	store := repo.NewMemoryStore()
	allocator := newTestAllocator(store)
	ctx := context.Background()

	account := store.PutAccount(&domain.Account{
		GoogleSub:          "upgrader",
		Plan:               domain.PlanFreemium,
		Credits:            30,
		SubscriptionStatus: domain.SubscriptionActive,
	})

	applied, err := allocator.ApplyUpgrade(ctx, account.ID, domain.PlanPro, "evt-123")
	if err != nil {
		t.Fatalf("ApplyUpgrade error: %v", err)
	}
	if !applied {
		t.Fatal("first upgrade delivery should apply")
	}

	got, _ := store.GetByID(ctx, account.ID)
	if got.Plan != domain.PlanPro {
		t.Fatalf("plan = %s, want pro", got.Plan)
	}
	if got.Credits != 2030 {
		t.Fatalf("balance = %d, want 2030", got.Credits)
	}

	// Retried webhook delivery grants nothing the second time.
	applied, err = allocator.ApplyUpgrade(ctx, account.ID, domain.PlanPro, "evt-123")
	if err != nil {
		t.Fatalf("retried ApplyUpgrade error: %v", err)
	}
	if applied {
		t.Fatal("retried delivery should be a no-op")
	}
	got, _ = store.GetByID(ctx, account.ID)
	if got.Credits != 2030 {
		t.Fatalf("balance after retry = %d, want 2030", got.Credits)
	}
}

func TestApplyUpgradeRejections(t *testing.T) {
	store := repo.NewMemoryStore()
	allocator := newTestAllocator(store)
	ctx := context.Background()
	account := store.PutAccount(&domain.Account{GoogleSub: "u", Plan: domain.PlanFreemium, Credits: 0})

	if _, err := allocator.ApplyUpgrade(ctx, account.ID, "enterprise", "evt-1"); !errors.Is(err, domain.ErrUnknownPlan) {
		t.Fatalf("unknown plan error = %v, want ErrUnknownPlan", err)
	}
	if _, err := allocator.ApplyUpgrade(ctx, account.ID, domain.PlanFreemium, "evt-2"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("freemium upgrade error = %v, want ErrInvalidArgument", err)
	}
}

func TestApplyUpgradeCustomGrantsNothing(t *testing.T) {
	store := repo.NewMemoryStore()
	allocator := newTestAllocator(store)
	ctx := context.Background()
	account := store.PutAccount(&domain.Account{GoogleSub: "c", Plan: domain.PlanFreemium, Credits: 15})

	applied, err := allocator.ApplyUpgrade(ctx, account.ID, domain.PlanCustom, "evt-custom")
	if err != nil {
		t.Fatalf("ApplyUpgrade error: %v", err)
	}
	if !applied {
		t.Fatal("custom upgrade should apply")
	}
	got, _ := store.GetByID(ctx, account.ID)
	if got.Plan != domain.PlanCustom || got.Credits != 15 {
		t.Fatalf("account = plan %s credits %d, want custom plan and untouched balance", got.Plan, got.Credits)
	}
}

func TestTopUpIdempotentOnReference(t *testing.T) {
	store := repo.NewMemoryStore()
	allocator := newTestAllocator(store)
	ctx := context.Background()
	account := store.PutAccount(&domain.Account{GoogleSub: "t", Plan: domain.PlanCustom, Credits: 100})

	applied, err := allocator.TopUp(ctx, account.ID, 500, "pay-9")
	if err != nil || !applied {
		t.Fatalf("TopUp = %v, %v, want applied", applied, err)
	}
	applied, err = allocator.TopUp(ctx, account.ID, 500, "pay-9")
	if err != nil {
		t.Fatalf("retried TopUp error: %v", err)
	}
	if applied {
		t.Fatal("retried top-up should be a no-op")
	}
	got, _ := store.GetByID(ctx, account.ID)
	if got.Credits != 600 {
		t.Fatalf("balance = %d, want 600", got.Credits)
	}

	if _, err := allocator.TopUp(ctx, account.ID, 0, "pay-10"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("zero top-up error = %v, want ErrInvalidArgument", err)
	}
}

func TestSweepStaleReservations(t *testing.T) {
	store := repo.NewMemoryStore()
	allocator := newTestAllocator(store)
	ledger := newTestLedger(store)
	ctx := context.Background()
	userID := seedAccount(t, store, domain.PlanPro, 1000)

	stale, err := ledger.Reserve(ctx, userID, 300, domain.PlanPro, domain.ToolWriting)
	if err != nil || !stale.Success {
		t.Fatalf("Reserve = %+v, %v", stale, err)
	}
	resolved, err := ledger.Reserve(ctx, userID, 300, domain.PlanPro, domain.ToolWriting)
	if err != nil || !resolved.Success {
		t.Fatalf("Reserve = %+v, %v", resolved, err)
	}
	if err := ledger.Commit(ctx, resolved.TransactionID); err != nil {
		t.Fatalf("Commit error: %v", err)
	}

	// A zero grace period makes every unresolved reservation stale.
	found, err := allocator.SweepStaleReservations(ctx, -time.Second, 10)
	if err != nil {
		t.Fatalf("SweepStaleReservations error: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("len(found) = %d, want 1", len(found))
	}
	if found[0].ID != stale.TransactionID {
		t.Fatalf("found %s, want %s", found[0].ID, stale.TransactionID)
	}
}
