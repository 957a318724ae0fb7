package credits

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/adapter/repo"
	"server/internal/domain"
)

func TestRecordUsageAccumulates(t *testing.T) {
	store := repo.NewMemoryStore()
	tracker := NewTracker(store, zerolog.Nop())
	ctx := context.Background()

	first, err := tracker.RecordUsage(ctx, "user-1", 300, 100, domain.UsageMetadata{Tool: domain.ToolWriting, Country: "US"})
	if err != nil {
		t.Fatalf("RecordUsage error: %v", err)
	}
	if first.TotalWords != 300 || first.TotalCredits != 100 || first.RequestCount != 1 {
		t.Fatalf("first record = %+v", first)
	}

	second, err := tracker.RecordUsage(ctx, "user-1", 200, 67, domain.UsageMetadata{Tool: domain.ToolResearch, Country: "ID"})
	if err != nil {
		t.Fatalf("RecordUsage error: %v", err)
	}
	if second.TotalWords != 500 || second.TotalCredits != 167 || second.RequestCount != 2 {
		t.Fatalf("second record = %+v", second)
	}
	if second.LastTool != domain.ToolResearch || second.LastCountry != "ID" {
		t.Fatalf("metadata = tool %s country %s", second.LastTool, second.LastCountry)
	}
}

func TestRecordUsageConcurrentIncrements(t *testing.T) {
	store := repo.NewMemoryStore()
	tracker := NewTracker(store, zerolog.Nop())
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tracker.RecordUsage(ctx, "user-1", 10, 3, domain.UsageMetadata{Tool: domain.ToolWriting}); err != nil {
				t.Errorf("RecordUsage error: %v", err)
			}
		}()
	}
	wg.Wait()

	usage, err := tracker.CurrentUsage(ctx, "user-1")
	if err != nil {
		t.Fatalf("CurrentUsage error: %v", err)
	}
	if usage.TotalWords != workers*10 || usage.TotalCredits != workers*3 || usage.RequestCount != workers {
		t.Fatalf("usage = %+v, want all %d increments reflected", usage, workers)
	}
}

func TestRecordUsageRejectsNegative(t *testing.T) {
	store := repo.NewMemoryStore()
	tracker := NewTracker(store, zerolog.Nop())

	if _, err := tracker.RecordUsage(context.Background(), "user-1", -1, 0, domain.UsageMetadata{}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("negative words error = %v, want ErrInvalidArgument", err)
	}
	if _, err := tracker.RecordUsage(context.Background(), "user-1", 0, -1, domain.UsageMetadata{}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("negative credits error = %v, want ErrInvalidArgument", err)
	}
}

func TestMonthlyUsageZeroRecord(t *testing.T) {
	store := repo.NewMemoryStore()
	tracker := NewTracker(store, zerolog.Nop())

	usage, err := tracker.MonthlyUsage(context.Background(), "user-1", "2026-01")
	if err != nil {
		t.Fatalf("MonthlyUsage error: %v", err)
	}
	if usage.TotalWords != 0 || usage.TotalCredits != 0 || usage.RequestCount != 0 {
		t.Fatalf("usage = %+v, want zero record", usage)
	}
	if usage.Month != "2026-01" {
		t.Fatalf("Month = %q, want 2026-01", usage.Month)
	}
}

func TestMonthlyUsageValidatesMonthKey(t *testing.T) {
	store := repo.NewMemoryStore()
	tracker := NewTracker(store, zerolog.Nop())

	for _, month := range []string{"", "2026", "01-2026", "2026-13", "august"} {
		if _, err := tracker.MonthlyUsage(context.Background(), "user-1", month); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("MonthlyUsage(%q) error = %v, want ErrInvalidArgument", month, err)
		}
	}
}

func TestUsageHistoryBoundsAndOrder(t *testing.T) {
	store := repo.NewMemoryStore()
	tracker := NewTracker(store, zerolog.Nop())
	ctx := context.Background()

	for _, month := range []string{"2026-05", "2026-07", "2026-06"} {
		if _, err := store.IncrementMonthly(ctx, "user-1", month, 100, 30, domain.UsageMetadata{}); err != nil {
			t.Fatalf("IncrementMonthly error: %v", err)
		}
	}

	records, err := tracker.UsageHistory(ctx, "user-1", 2)
	if err != nil {
		t.Fatalf("UsageHistory error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].Month != "2026-07" || records[1].Month != "2026-06" {
		t.Fatalf("order = %s, %s, want most recent first", records[0].Month, records[1].Month)
	}

	if _, err := tracker.UsageHistory(ctx, "user-1", 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("months=0 error = %v, want ErrInvalidArgument", err)
	}
	if _, err := tracker.UsageHistory(ctx, "user-1", 13); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("months=13 error = %v, want ErrInvalidArgument", err)
	}
}

func TestMonthKey(t *testing.T) {
	ts := time.Date(2026, time.August, 31, 23, 30, 0, 0, time.UTC)
	if got := domain.MonthKey(ts); got != "2026-08" {
		t.Fatalf("MonthKey = %q, want 2026-08", got)
	}
	// The bucket is always the UTC month, regardless of the caller's zone.
	east := time.FixedZone("UTC+9", 9*3600)
	ts = time.Date(2026, time.September, 1, 2, 0, 0, 0, east)
	if got := domain.MonthKey(ts); got != "2026-08" {
		t.Fatalf("MonthKey across zone = %q, want 2026-08", got)
	}
}
