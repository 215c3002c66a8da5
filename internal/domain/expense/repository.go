package expense

import "context"

// Repository defines the interface for expense data access
type Repository interface {
	// CreateBatch inserts all rows in one transaction.
	CreateBatch(ctx context.Context, params []CreateParams) ([]*Expense, error)
	GetByID(ctx context.Context, id string) (*Expense, error)
	ListByPayer(ctx context.Context, payerID string) ([]*Expense, error)
	ListByDebtor(ctx context.Context, debtorEmail string) ([]*Expense, error)
	ListByGroup(ctx context.Context, groupID string) ([]*Expense, error)
	// UpdateStatus changes status only if it still equals from. It returns
	// ErrInvalidTransition when another writer got there first.
	UpdateStatus(ctx context.Context, id, from, to string) (*Expense, error)
	Delete(ctx context.Context, id string) error
	CountByReceiptKey(ctx context.Context, key string) (int, error)
}

// GroupMembers resolves the member emails of a group.
type GroupMembers interface {
	MemberEmails(ctx context.Context, groupID string) ([]string, error)
}

// ProcessorAccounts reports whether a payer can receive link payments.
type ProcessorAccounts interface {
	ProcessorConnected(ctx context.Context, userID string) (bool, error)
}

// Notifier delivers push notifications. Implemented by notification.Service.
type Notifier interface {
	SendToUser(ctx context.Context, userID, title, body, category string, data map[string]string) error
	SendToEmail(ctx context.Context, email, title, body, category string, data map[string]string) error
	SendToEmails(ctx context.Context, emails []string, title, body, category string, data map[string]string) error
}
