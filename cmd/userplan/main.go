package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/adapter/repo"
	"server/internal/credits"
	"server/internal/domain"
	"server/internal/infra"
)

func main() {
	var (
		idFlag      string
		planFlag    string
		creditsFlag int
		refFlag     string
	)

	flag.StringVar(&idFlag, "id", "", "account ID to update")
	flag.StringVar(&planFlag, "plan", "pro", "plan to assign (freemium, pro, custom)")
	flag.IntVar(&creditsFlag, "credits", 0, "credits to grant on top of the plan allotment (0 grants nothing extra)")
	flag.StringVar(&refFlag, "reference", "", "idempotency reference for the grant (defaults to a manual marker)")
	flag.Parse()

	userID := strings.TrimSpace(idFlag)
	plan := domain.PlanType(strings.TrimSpace(strings.ToLower(planFlag)))

	if userID == "" {
		exitWithError(errors.New("-id is required"))
	}
	switch plan {
	case domain.PlanFreemium, domain.PlanPro, domain.PlanCustom:
	default:
		exitWithError(fmt.Errorf("unsupported plan %q", planFlag))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "userplan").Logger()

	accounts := repo.NewAccountRepository(pool)
	transactions := repo.NewTransactionRepository(pool)
	registry := credits.NewRegistry()
	allocator := credits.NewAllocator(registry, accounts, transactions, logger)

	reference := strings.TrimSpace(refFlag)
	if reference == "" {
		reference = fmt.Sprintf("manual-%s-%d", userID, time.Now().UTC().Unix())
	}

	if plan == domain.PlanFreemium {
		if err := accounts.SetPlan(ctx, userID, plan, domain.SubscriptionActive); err != nil {
			exitWithError(fmt.Errorf("failed to set plan: %w", err))
		}
	} else {
		if _, err := allocator.ApplyUpgrade(ctx, userID, plan, reference); err != nil {
			exitWithError(fmt.Errorf("failed to apply plan: %w", err))
		}
	}

	if creditsFlag > 0 {
		if _, err := allocator.TopUp(ctx, userID, creditsFlag, reference+"-topup"); err != nil {
			exitWithError(fmt.Errorf("failed to grant credits: %w", err))
		}
	}

	account, err := accounts.GetByID(ctx, userID)
	if err != nil {
		exitWithError(fmt.Errorf("failed to load updated account: %w", err))
	}

	fmt.Printf("account %s updated: plan=%s credits=%d status=%s\n",
		account.ID, account.Plan, account.Credits, account.SubscriptionStatus)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
