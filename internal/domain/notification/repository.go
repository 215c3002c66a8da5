package notification

import "context"

// Repository is implemented by postgres.NotificationRepository.
type Repository interface {
	UpsertDeviceToken(ctx context.Context, params CreateDeviceTokenParams) (*DeviceToken, error)
	GetActiveTokensByUserID(ctx context.Context, userID string) ([]*DeviceToken, error)
	DeactivateToken(ctx context.Context, token string) error
	DeleteDeviceToken(ctx context.Context, userID, token string) error

	// Expense debtors are addressed by email, not user ID.
	GetUserIDByEmail(ctx context.Context, email string) (string, error)

	CreateNotification(ctx context.Context, params CreateNotificationParams) (*Notification, error)
	ListByUserID(ctx context.Context, userID string, page Page) (*Inbox, error)
	MarkOpened(ctx context.Context, notificationID, userID string) error
	MarkAllOpened(ctx context.Context, userID string) (int, error)
}
