package notification

import (
	"context"
	"errors"
	"log/slog"
	"maps"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentSends bounds SendToEmails fan-out.
const maxConcurrentSends = 8

// Service contains the business logic for notification operations
type Service struct {
	repo      Repository
	messenger Messenger
}

// NewService creates a new notification service
func NewService(repo Repository, messenger Messenger) *Service {
	if messenger == nil {
		messenger = LogMessenger{}
	}
	return &Service{repo: repo, messenger: messenger}
}

// RegisterDevice registers a device token for the authenticated user.
// If the token already belongs to another user, it is reassigned.
func (s *Service) RegisterDevice(ctx context.Context, params CreateDeviceTokenParams) (*DeviceToken, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return s.repo.UpsertDeviceToken(ctx, params)
}

// UnregisterDevice removes a token owned by userID.
func (s *Service) UnregisterDevice(ctx context.Context, userID, token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	return s.repo.DeleteDeviceToken(ctx, userID, token)
}

// ListNotifications returns one page of the user's inbox. Out-of-range
// paging falls back to the defaults.
func (s *Service) ListNotifications(ctx context.Context, userID string, page Page) (*Inbox, error) {
	if userID == "" {
		return nil, errMissingUser
	}
	return s.repo.ListByUserID(ctx, userID, page.Normalize())
}

// MarkNotificationOpened only touches notifications owned by userID.
func (s *Service) MarkNotificationOpened(ctx context.Context, notificationID, userID string) error {
	if notificationID == "" {
		return ErrNotificationNotFound
	}
	return s.repo.MarkOpened(ctx, notificationID, userID)
}

// MarkAllOpened clears the unread badge and reports how many were unread.
func (s *Service) MarkAllOpened(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, errMissingUser
	}
	return s.repo.MarkAllOpened(ctx, userID)
}

// SendToUser stores a notification record and pushes it to every active
// device of the user. Push failures are logged, not returned.
func (s *Service) SendToUser(ctx context.Context, userID, title, body, category string, data map[string]string) error {
	params := CreateNotificationParams{
		UserID:   userID,
		Title:    title,
		Message:  body,
		Category: category,
		Data:     data,
	}
	if err := params.Validate(); err != nil {
		return err
	}

	if params.Data == nil {
		params.Data = make(map[string]string)
	}
	if _, ok := params.Data["route"]; !ok {
		params.Data["route"] = category
	}

	if _, err := s.repo.CreateNotification(ctx, params); err != nil {
		slog.ErrorContext(ctx, "failed to store notification", "user_id", userID, "error", err)
	}

	tokens, err := s.repo.GetActiveTokensByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}

	tokenStrings := make([]string, len(tokens))
	for i, t := range tokens {
		tokenStrings[i] = t.Token
	}

	report, err := s.messenger.Push(ctx, tokenStrings, Push{
		Title:       title,
		Body:        body,
		Category:    category,
		Data:        params.Data,
		CollapseKey: params.Data["expense_id"],
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to push notification", "user_id", userID, "error", err)
	}
	s.deactivate(ctx, report.Stale)
	return nil
}

// deactivate stops pushing to tokens the provider reported as invalid.
// Uninstalled apps show up here.
func (s *Service) deactivate(ctx context.Context, stale []string) {
	for _, token := range stale {
		if err := s.repo.DeactivateToken(ctx, token); err != nil {
			slog.ErrorContext(ctx, "failed to deactivate device token", "error", err)
		}
	}
}

// SendToEmail notifies the profile registered under email. Addresses
// without a profile are skipped with ErrRecipientNotFound.
func (s *Service) SendToEmail(ctx context.Context, email, title, body, category string, data map[string]string) error {
	userID, err := s.repo.GetUserIDByEmail(ctx, email)
	if err != nil {
		return err
	}
	return s.SendToUser(ctx, userID, title, body, category, data)
}

// SendToEmails notifies several recipients concurrently. Unregistered
// addresses are skipped; the first other error is returned after all sends
// finish.
func (s *Service) SendToEmails(ctx context.Context, emails []string, title, body, category string, data map[string]string) error {
	var g errgroup.Group
	g.SetLimit(maxConcurrentSends)

	for _, email := range emails {
		g.Go(func() error {
			// SendToUser adds the route key, so each send needs its own map.
			err := s.SendToEmail(ctx, email, title, body, category, maps.Clone(data))
			if errors.Is(err, ErrRecipientNotFound) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}
