package paymentmethod

import (
	"context"

	"splitpay/internal/shared/auth"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, session auth.Session, label, alias string) (*PaymentMethod, error) {
	params := CreatePaymentMethodParams{UserID: session.UserID, Label: label, Alias: alias}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, params)
}

func (s *Service) List(ctx context.Context, session auth.Session) ([]*PaymentMethod, error) {
	methods, err := s.repo.ListByUserID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if methods == nil {
		methods = []*PaymentMethod{}
	}
	return methods, nil
}

// Delete removes one of the caller's methods. Rows owned by someone else
// report ErrPaymentMethodNotFound.
func (s *Service) Delete(ctx context.Context, session auth.Session, id string) error {
	return s.repo.Delete(ctx, id, session.UserID)
}
