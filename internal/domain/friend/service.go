package friend

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"splitpay/internal/domain/notification"
	"splitpay/internal/shared/auth"
	"splitpay/internal/shared/messages"
)

type Service struct {
	repo     Repository
	profiles ProfileLookup
	notifier Notifier
	msgs     *messages.Messages
}

func NewService(repo Repository, profiles ProfileLookup, notifier Notifier, msgs *messages.Messages) *Service {
	return &Service{repo: repo, profiles: profiles, notifier: notifier, msgs: msgs}
}

// Request sends a friend request to the user identified by email or
// username.
func (s *Service) Request(ctx context.Context, session auth.Session, identifier string) (*Friendship, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return nil, ErrUserNotFound
	}
	if identifier == strings.ToLower(session.Email) {
		return nil, ErrSelfRequest
	}

	receiver, err := s.profiles.FindRecipient(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if receiver.ID == session.UserID {
		return nil, ErrSelfRequest
	}

	exists, err := s.repo.ExistsBetween(ctx, session.UserID, receiver.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyExists
	}

	f, err := s.repo.Create(ctx, session.UserID, receiver.ID)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, receiver.ID, session.Email)
	return f, nil
}

// Accept accepts a pending request. Only the receiver may accept.
func (s *Service) Accept(ctx context.Context, session auth.Session, id string) error {
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if f.ReceiverID != session.UserID {
		return ErrForbidden
	}
	if f.Status != StatusPending {
		return ErrNotPending
	}
	return s.repo.Accept(ctx, id)
}

// Remove declines, cancels or unfriends. Either party may remove.
func (s *Service) Remove(ctx context.Context, session auth.Session, id string) error {
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !f.Involves(session.UserID) {
		return ErrForbidden
	}
	return s.repo.Delete(ctx, id)
}

// List returns accepted friends and pending requests in both directions.
func (s *Service) List(ctx context.Context, session auth.Session) (*List, error) {
	all, err := s.repo.ListForUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	list := &List{Friends: []*Friend{}, Incoming: []*Friend{}, Outgoing: []*Friend{}}
	for _, f := range all {
		switch {
		case f.Status == StatusAccepted:
			list.Friends = append(list.Friends, f)
		case f.Incoming:
			list.Incoming = append(list.Incoming, f)
		default:
			list.Outgoing = append(list.Outgoing, f)
		}
	}
	return list, nil
}

func (s *Service) notify(ctx context.Context, receiverID, requester string) {
	if s.notifier == nil || s.msgs == nil {
		return
	}
	title, body := s.msgs.FriendRequest.Format(requester)
	err := s.notifier.SendToUser(ctx, receiverID, title, body, notification.CategoryFriends, nil)
	if err != nil && !errors.Is(err, notification.ErrRecipientNotFound) {
		slog.WarnContext(ctx, "failed to send friend request notification", "receiver_id", receiverID, "error", err)
	}
}
