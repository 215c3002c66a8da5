package group

import (
	"context"

	"splitpay/internal/domain/expense"
	"splitpay/internal/infrastructure/storage"
	"splitpay/internal/shared/auth"
)

// Repository defines the interface for group data access
type Repository interface {
	// Create inserts the group and all of its members in one transaction.
	Create(ctx context.Context, params CreateGroupParams) (*Group, error)
	GetByID(ctx context.Context, id string) (*Group, error)
	ListForEmail(ctx context.Context, email string) ([]*Group, error)
	Members(ctx context.Context, groupID string) ([]*Member, error)
	AddMember(ctx context.Context, groupID, email string) error
	RemoveMember(ctx context.Context, groupID, email string) error
	Delete(ctx context.Context, id string) error
}

// Expenses is the slice of expense.Service the group pages need.
type Expenses interface {
	ListForGroup(ctx context.Context, session auth.Session, groupID string) ([]*expense.View, error)
	CreateForGroup(ctx context.Context, session auth.Session, groupID string, in expense.NewGroupExpense, receipt *storage.Upload) ([]*expense.Expense, error)
}
