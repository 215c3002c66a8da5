package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"splitpay/internal/domain/expense"
	"splitpay/internal/domain/group"
	"splitpay/internal/domain/notification"
	"splitpay/internal/domain/payment"
	"splitpay/internal/infrastructure/crypto"
	"splitpay/internal/infrastructure/mercadopago"
	"splitpay/internal/infrastructure/postgres"
	"splitpay/internal/shared/auth"
	"splitpay/internal/shared/config"
	"splitpay/internal/shared/logging"
	"splitpay/internal/shared/messages"
)

const usage = `Splitpay Admin CLI - Management commands for the Splitpay API

Usage:
  admin <command> [options]

Commands:
  migrate          Apply, roll back or inspect schema migrations
  refresh-tokens   Refresh Mercado Pago access tokens
  mark-paid        Force an expense to paid on behalf of its payer

Examples:
  # Apply all pending migrations
  admin migrate up

  # Show migration status
  admin migrate status

  # Refresh tokens for specific users
  admin refresh-tokens --user-id=6f1c...,9a2b...

  # Refresh tokens for every connected user
  admin refresh-tokens --all --workers=4

  # Mark an expense paid
  admin mark-paid --expense-id=3d5e...
`

func main() {
	logging.Setup()

	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "migrate":
		runMigrate(os.Args[2:])
	case "refresh-tokens":
		runRefreshTokens(os.Args[2:])
	case "mark-paid":
		runMarkPaid(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage)
		os.Exit(1)
	}
}

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

func openDB(cfg *config.Config) *postgres.DB {
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		fatal("failed to connect to database", "error", err)
	}
	slog.Info("connected to database")
	return db
}

func runMigrate(args []string) {
	command := "up"
	if len(args) > 0 {
		command = args[0]
	}
	switch command {
	case "up", "down", "status":
	default:
		fmt.Println("Usage: admin migrate [up|down|status]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("failed to load config", "error", err)
	}
	db := openDB(cfg)
	defer db.Close()

	if err := postgres.Migrate(context.Background(), db.DB, command); err != nil {
		db.Close()
		fatal("migration failed", "error", err)
	}
	slog.Info("migration finished", "command", command)
}

func runRefreshTokens(args []string) {
	fs := flag.NewFlagSet("refresh-tokens", flag.ExitOnError)

	userIDStr := fs.String("user-id", "", "User ID(s) to refresh (comma-separated for multiple)")
	allUsers := fs.Bool("all", false, "Refresh every connected user")
	workers := fs.Int("workers", 4, "Number of concurrent workers")
	timeoutStr := fs.String("timeout", "10m", "Timeout for the operation (e.g., 5m, 1h)")

	fs.Usage = func() {
		fmt.Println("Usage: admin refresh-tokens [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Println("  admin refresh-tokens --user-id=<uuid>")
		fmt.Println("  admin refresh-tokens --all --workers=8")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *userIDStr == "" && !*allUsers {
		fmt.Println("Error: must specify --user-id or --all")
		fs.Usage()
		os.Exit(1)
	}

	timeout, err := time.ParseDuration(*timeoutStr)
	if err != nil {
		fatal("invalid timeout format", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("failed to load config", "error", err)
	}
	if !cfg.MercadoPago.Enabled() {
		fatal("MP_CLIENT_ID and MP_CLIENT_SECRET are required")
	}

	db := openDB(cfg)
	defer db.Close()

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		fatal("failed to create encryptor", "error", err)
	}
	profileRepo := postgres.NewProfileRepository(db, encryptor)
	expenseRepo := postgres.NewExpenseRepository(db)

	paymentService := payment.NewService(payment.ServiceConfig{
		Client:   mercadopago.NewClient(cfg.MercadoPago.ClientID, cfg.MercadoPago.ClientSecret, cfg.MercadoPago.CallbackURL),
		Creds:    profileRepo,
		Expenses: expenseRepo,
		Ledger:   expenseRepo,
		Messages: messages.Default(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var userIDs []string
	if *allUsers {
		userIDs, err = paymentService.UsersToRefresh(ctx, 0)
		if err != nil {
			fatal("failed to list connected users", "error", err)
		}
		slog.Info("found connected users", "count", len(userIDs))
	} else {
		userIDs, err = parseUserIDs(*userIDStr)
		if err != nil {
			fatal("invalid --user-id", "error", err)
		}
	}

	if len(userIDs) == 0 {
		slog.Info("no users to process")
		return
	}

	slog.Info("refreshing tokens", "users", len(userIDs), "workers", *workers)
	startTime := time.Now()

	failures := refreshAll(ctx, paymentService, userIDs, *workers)

	fmt.Printf("\nRefreshed: %d\n", len(userIDs)-len(failures))
	if len(failures) > 0 {
		fmt.Printf("Failed:    %d\n", len(failures))
		for id, err := range failures {
			fmt.Printf("  - %s: %v\n", id, err)
		}
	}
	slog.Info("token refresh completed", "elapsed", time.Since(startTime))
}

// refreshAll refreshes every user with at most workers in flight and
// returns the failures keyed by user ID.
func refreshAll(ctx context.Context, svc interface {
	RefreshUser(ctx context.Context, userID string) error
}, userIDs []string, workers int) map[string]error {
	if workers < 1 {
		workers = 1
	}

	var (
		mu       sync.Mutex
		failures = make(map[string]error)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range userIDs {
		g.Go(func() error {
			if err := svc.RefreshUser(gctx, id); err != nil {
				mu.Lock()
				failures[id] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}

func parseUserIDs(s string) ([]string, error) {
	var ids []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := uuid.Parse(p); err != nil {
			return nil, fmt.Errorf("invalid user ID %q: %w", p, err)
		}
		ids = append(ids, p)
	}
	return ids, nil
}

func runMarkPaid(args []string) {
	fs := flag.NewFlagSet("mark-paid", flag.ExitOnError)
	expenseID := fs.String("expense-id", "", "Expense ID to mark as paid")

	fs.Usage = func() {
		fmt.Println("Usage: admin mark-paid --expense-id=<uuid>")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if _, err := uuid.Parse(*expenseID); err != nil {
		fmt.Println("Error: --expense-id must be a valid UUID")
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("failed to load config", "error", err)
	}
	db := openDB(cfg)
	defer db.Close()

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		fatal("failed to create encryptor", "error", err)
	}
	msgs, err := messages.Load(cfg.Messages.File)
	if err != nil {
		fatal("failed to load messages", "error", err)
	}

	profileRepo := postgres.NewProfileRepository(db, encryptor)
	expenseRepo := postgres.NewExpenseRepository(db)
	notificationService := notification.NewService(postgres.NewNotificationRepository(db), notification.LogMessenger{})
	groupService := group.NewService(postgres.NewGroupRepository(db))
	// Receipts are never touched by a status change, so no object store.
	expenseService := expense.NewService(expenseRepo, groupService, profileRepo, nil, notificationService, msgs)
	groupService.SetExpenses(expenseService)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	e, err := expenseRepo.GetByID(ctx, *expenseID)
	if err != nil {
		fatal("failed to load expense", "expense_id", *expenseID, "error", err)
	}

	view, err := expenseService.Act(ctx, auth.Session{UserID: e.PayerID}, e.ID, expense.ActionForcePaid)
	if err != nil {
		fatal("failed to mark expense paid", "expense_id", e.ID, "status", e.Status, "error", err)
	}
	fmt.Printf("Expense %s is now %s\n", view.ID, view.Status)
}
