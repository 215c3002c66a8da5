package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"splitpay/internal/infrastructure/storage"
	"splitpay/internal/shared/auth"
)

type Service struct {
	repo  Repository
	store storage.ObjectStore
	now   func() time.Time
}

func NewService(repo Repository, store storage.ObjectStore) *Service {
	return &Service{repo: repo, store: store, now: time.Now}
}

// Register creates a password profile.
func (s *Service) Register(ctx context.Context, email, name, password string) (*Profile, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return s.repo.Create(ctx, CreateProfileParams{
		Email:        email,
		Name:         name,
		PasswordHash: &hash,
	})
}

// Authenticate checks an email/password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Profile, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	p, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, ErrProfileNotFound) {
		auth.PasswordMatches(nil, password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.PasswordMatches(p.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return p, nil
}

// LoginWithOAuth finds the profile linked to an identity provider account.
// A profile registered with the same email is linked; otherwise a new one
// is created.
func (s *Service) LoginWithOAuth(ctx context.Context, provider string, info *auth.OAuthUserInfo) (*Profile, error) {
	if provider != "google" {
		return nil, ErrUnsupportedProvider
	}

	p, err := s.repo.GetByOAuth(ctx, provider, info.ID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, err
	}

	email, err := NormalizeEmail(info.Email)
	if err != nil {
		return nil, err
	}

	p, err = s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.repo.LinkOAuth(ctx, p.ID, provider, info.ID); err != nil {
			return nil, err
		}
		p.OAuthProvider = &provider
		return p, nil
	case errors.Is(err, ErrProfileNotFound):
		return s.repo.Create(ctx, CreateProfileParams{
			Email:         email,
			Name:          info.Name,
			OAuthProvider: &provider,
			OAuthID:       &info.ID,
		})
	default:
		return nil, err
	}
}

func (s *Service) Get(ctx context.Context, session auth.Session) (*Profile, error) {
	return s.repo.GetByID(ctx, session.UserID)
}

// ChangeUsername sets a new username at most once per UsernameCooldown.
// A change exactly UsernameCooldown after the previous one is allowed.
func (s *Service) ChangeUsername(ctx context.Context, session auth.Session, username string) (*Profile, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}

	p, err := s.repo.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if p.Username != nil && *p.Username == username {
		return p, nil
	}

	now := s.now()
	if next := p.NextUsernameChange(); now.Before(next) {
		return nil, &CooldownError{NextAllowed: next}
	}

	existing, err := s.repo.GetByUsername(ctx, username)
	if err == nil && existing.ID != p.ID {
		return nil, ErrUsernameTaken
	}
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return nil, err
	}

	return s.repo.UpdateUsername(ctx, p.ID, username, now)
}

// UploadAvatar stores an image and points the profile at it. The previous
// avatar is removed once the new key is saved.
func (s *Service) UploadAvatar(ctx context.Context, session auth.Session, upload *storage.Upload) (*Profile, error) {
	if upload.ContentType == "application/pdf" {
		return nil, storage.ErrUnsupportedType
	}

	p, err := s.repo.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	key := storage.NewKey("avatars/"+p.ID, upload.ContentType)
	if err := s.store.Put(ctx, key, upload.ContentType, upload.Body); err != nil {
		return nil, fmt.Errorf("failed to store avatar: %w", err)
	}

	updated, err := s.repo.UpdateAvatar(ctx, p.ID, key)
	if err != nil {
		s.deleteObject(ctx, key)
		return nil, err
	}

	if p.AvatarKey != nil {
		s.deleteObject(ctx, *p.AvatarKey)
	}
	return updated, nil
}

// OpenAvatar returns the avatar of any profile. Avatars are visible to all
// signed-in users.
func (s *Service) OpenAvatar(ctx context.Context, profileID string) (*storage.Object, error) {
	p, err := s.repo.GetByID(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if p.AvatarKey == nil {
		return nil, storage.ErrObjectNotFound
	}
	return s.store.Open(ctx, *p.AvatarKey)
}

func (s *Service) deleteObject(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		slog.WarnContext(ctx, "failed to delete avatar object", "key", key, "error", err)
	}
}
