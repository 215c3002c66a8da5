package friend

import "context"

// Repository defines the interface for friendship data access
type Repository interface {
	Create(ctx context.Context, requesterID, receiverID string) (*Friendship, error)
	GetByID(ctx context.Context, id string) (*Friendship, error)
	ExistsBetween(ctx context.Context, userA, userB string) (bool, error)
	Accept(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	ListForUser(ctx context.Context, userID string) ([]*Friend, error)
}

// Recipient is the minimal profile data needed to address a request.
type Recipient struct {
	ID   string
	Name string
}

// ProfileLookup resolves an email address or username to a profile.
type ProfileLookup interface {
	FindRecipient(ctx context.Context, identifier string) (*Recipient, error)
}

// Notifier delivers push notifications. Implemented by notification.Service.
type Notifier interface {
	SendToUser(ctx context.Context, userID, title, body, category string, data map[string]string) error
}
