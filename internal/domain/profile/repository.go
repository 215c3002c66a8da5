package profile

import (
	"context"
	"time"
)

// Repository defines the interface for profile data access
type Repository interface {
	Create(ctx context.Context, params CreateProfileParams) (*Profile, error)
	GetByID(ctx context.Context, id string) (*Profile, error)
	GetByEmail(ctx context.Context, email string) (*Profile, error)
	GetByUsername(ctx context.Context, username string) (*Profile, error)
	GetByOAuth(ctx context.Context, provider, oauthID string) (*Profile, error)
	LinkOAuth(ctx context.Context, id, provider, oauthID string) error
	UpdateUsername(ctx context.Context, id, username string, changedAt time.Time) (*Profile, error)
	UpdateAvatar(ctx context.Context, id, avatarKey string) (*Profile, error)
}
