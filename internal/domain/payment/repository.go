package payment

import (
	"context"
	"time"

	"splitpay/internal/domain/expense"
)

// CredentialStore persists processor tokens on the profile.
type CredentialStore interface {
	// SaveProcessorCredentials writes every credential field in one statement.
	SaveProcessorCredentials(ctx context.Context, userID string, creds Credentials) error
	// GetProcessorCredentials returns ErrNotConnected when nothing is stored.
	GetProcessorCredentials(ctx context.Context, userID string) (*Credentials, error)
	ClearProcessorCredentials(ctx context.Context, userID string) error
	// ListConnectedUserIDs lists users with a refresh token. A non-zero
	// expiringBefore keeps only tokens expiring before it.
	ListConnectedUserIDs(ctx context.Context, expiringBefore time.Time) ([]string, error)
}

// ExpenseReader loads expenses for checkout and settlement.
type ExpenseReader interface {
	GetByID(ctx context.Context, id string) (*expense.Expense, error)
}

// Ledger records verified processor payments.
type Ledger interface {
	// Settle records paymentID and marks the expense paid in one
	// transaction. A known paymentID returns ErrAlreadyProcessed; an
	// expense that is no longer settleable returns expense.ErrInvalidTransition.
	Settle(ctx context.Context, paymentID, expenseID, status string) (*expense.Expense, error)
}

// Notifier delivers push notifications.
type Notifier interface {
	SendToUser(ctx context.Context, userID, title, body, category string, data map[string]string) error
}
