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

	"studio/internal/adapter/repo"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/ledger"
)

func main() {
	var (
		idFlag     string
		emailFlag  string
		amountFlag int64
		noteFlag   string
	)

	flag.StringVar(&idFlag, "id", "", "user ID to adjust (UUID)")
	flag.StringVar(&emailFlag, "email", "", "user email to adjust")
	flag.Int64Var(&amountFlag, "amount", 0, "signed credit amount to apply")
	flag.StringVar(&noteFlag, "note", "", "reason recorded on the ledger entry")
	flag.Parse()

	userID := strings.TrimSpace(idFlag)
	email := strings.TrimSpace(emailFlag)
	if userID == "" && email == "" {
		exitWithError(errors.New("either -id or -email must be provided"))
	}
	if amountFlag == 0 {
		exitWithError(errors.New("-amount must be non-zero"))
	}
	note := strings.TrimSpace(noteFlag)
	if note == "" {
		note = "cli adjustment"
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

	logger := infra.NewLogger("cli").With().Str("cmd", "credits").Logger()
	runner := infra.NewSQLRunner(pool, logger)
	users := repo.NewUserRepository(runner)

	var user *domain.User
	if userID != "" {
		user, err = users.GetByID(ctx, userID)
	} else {
		user, err = users.GetByEmail(ctx, email)
	}
	if err != nil {
		exitWithError(fmt.Errorf("failed to load user: %w", err))
	}

	led := ledger.NewService(repo.NewLedgerRepository(runner), logger)
	entry, err := led.Adjust(ctx, user.ID, amountFlag, note)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			exitWithError(fmt.Errorf("user %s has fewer than %d credits", user.ID, -amountFlag))
		}
		exitWithError(fmt.Errorf("failed to adjust credits: %w", err))
	}

	fmt.Printf("User %s (%s) adjusted by %+d\n", user.ID, user.Email, entry.Amount)
	fmt.Printf("balance=%d\n", entry.BalanceAfter)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
