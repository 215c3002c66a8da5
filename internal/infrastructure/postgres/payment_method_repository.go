package postgres

import (
	"context"
	"fmt"

	"splitpay/internal/domain/paymentmethod"
)

type PaymentMethodRepository struct {
	db *DB
}

func NewPaymentMethodRepository(db *DB) *PaymentMethodRepository {
	return &PaymentMethodRepository{db: db}
}

func (r *PaymentMethodRepository) Create(ctx context.Context, params paymentmethod.CreatePaymentMethodParams) (*paymentmethod.PaymentMethod, error) {
	query := `
		INSERT INTO user_payment_methods (user_id, label, alias)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, label, alias, created_at
	`

	var pm paymentmethod.PaymentMethod
	err := r.db.QueryRowContext(ctx, query, params.UserID, params.Label, params.Alias).Scan(
		&pm.ID, &pm.UserID, &pm.Label, &pm.Alias, &pm.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment method: %w", err)
	}
	return &pm, nil
}

func (r *PaymentMethodRepository) ListByUserID(ctx context.Context, userID string) ([]*paymentmethod.PaymentMethod, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, label, alias, created_at
		FROM user_payment_methods
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	defer rows.Close()

	var methods []*paymentmethod.PaymentMethod
	for rows.Next() {
		var pm paymentmethod.PaymentMethod
		if err := rows.Scan(&pm.ID, &pm.UserID, &pm.Label, &pm.Alias, &pm.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment method: %w", err)
		}
		methods = append(methods, &pm)
	}
	return methods, rows.Err()
}

func (r *PaymentMethodRepository) Delete(ctx context.Context, id, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM user_payment_methods WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete payment method: %w", err)
	}
	return requireAffected(result, paymentmethod.ErrPaymentMethodNotFound)
}
