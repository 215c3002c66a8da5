package paymentmethod

import "context"

type Repository interface {
	Create(ctx context.Context, params CreatePaymentMethodParams) (*PaymentMethod, error)
	ListByUserID(ctx context.Context, userID string) ([]*PaymentMethod, error)
	// Delete removes the row only when it belongs to userID.
	Delete(ctx context.Context, id, userID string) error
}
