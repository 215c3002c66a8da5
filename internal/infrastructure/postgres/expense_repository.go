package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"splitpay/internal/domain/expense"
	"splitpay/internal/domain/payment"
)

const expenseSelect = `
	SELECT e.id, e.description, e.original_amount, e.amount, e.payer_id, p.email, p.name,
	       e.debtor_email, e.group_id, e.receipt_key, e.method, e.method_details, e.status,
	       e.created_at, e.updated_at
	FROM expenses e
	JOIN profiles p ON p.id = e.payer_id
`

type ExpenseRepository struct {
	db *DB
}

func NewExpenseRepository(db *DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

func scanExpense(row scanner) (*expense.Expense, error) {
	var e expense.Expense
	err := row.Scan(
		&e.ID, &e.Description, &e.OriginalAmount, &e.Amount, &e.PayerID, &e.PayerEmail, &e.PayerName,
		&e.DebtorEmail, &e.GroupID, &e.ReceiptKey, &e.Method, &e.MethodDetails, &e.Status,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.HasReceipt = e.ReceiptKey != nil
	return &e, nil
}

// CreateBatch inserts all rows in one transaction.
func (r *ExpenseRepository) CreateBatch(ctx context.Context, params []expense.CreateParams) ([]*expense.Expense, error) {
	created := make([]*expense.Expense, 0, len(params))

	err := r.db.WithTx(ctx, func(tx *Tx) error {
		for _, p := range params {
			e, err := scanExpense(tx.QueryRowContext(ctx, `
				WITH inserted AS (
					INSERT INTO expenses (description, original_amount, amount, payer_id, debtor_email,
					                      group_id, receipt_key, method, method_details)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
					RETURNING *
				)
				SELECT e.id, e.description, e.original_amount, e.amount, e.payer_id, p.email, p.name,
				       e.debtor_email, e.group_id, e.receipt_key, e.method, e.method_details, e.status,
				       e.created_at, e.updated_at
				FROM inserted e
				JOIN profiles p ON p.id = e.payer_id
			`,
				p.Description, p.OriginalAmount, p.Amount, p.PayerID, strings.ToLower(p.DebtorEmail),
				p.GroupID, p.ReceiptKey, p.Method, p.MethodDetails,
			))
			if err != nil {
				return fmt.Errorf("failed to create expense: %w", err)
			}
			created = append(created, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *ExpenseRepository) GetByID(ctx context.Context, id string) (*expense.Expense, error) {
	e, err := scanExpense(r.db.QueryRowContext(ctx, expenseSelect+` WHERE e.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, expense.ErrExpenseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return e, nil
}

func (r *ExpenseRepository) list(ctx context.Context, where string, arg any) ([]*expense.Expense, error) {
	rows, err := r.db.QueryContext(ctx, expenseSelect+` WHERE `+where+` ORDER BY e.created_at DESC`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	expenses := []*expense.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (r *ExpenseRepository) ListByPayer(ctx context.Context, payerID string) ([]*expense.Expense, error) {
	return r.list(ctx, "e.payer_id = $1", payerID)
}

func (r *ExpenseRepository) ListByDebtor(ctx context.Context, debtorEmail string) ([]*expense.Expense, error) {
	return r.list(ctx, "e.debtor_email = $1", strings.ToLower(debtorEmail))
}

func (r *ExpenseRepository) ListByGroup(ctx context.Context, groupID string) ([]*expense.Expense, error) {
	return r.list(ctx, "e.group_id = $1", groupID)
}

// UpdateStatus is a compare-and-set on status.
func (r *ExpenseRepository) UpdateStatus(ctx context.Context, id, from, to string) (*expense.Expense, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update expense status: %w", err)
	}
	if err := requireAffected(result, expense.ErrInvalidTransition); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *ExpenseRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return requireAffected(result, expense.ErrExpenseNotFound)
}

func (r *ExpenseRepository) CountByReceiptKey(ctx context.Context, key string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM expenses WHERE receipt_key = $1`, key).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count receipt references: %w", err)
	}
	return n, nil
}

// Settle records a verified processor payment and marks the link expense
// paid in one transaction.
func (r *ExpenseRepository) Settle(ctx context.Context, paymentID, expenseID, status string) (*expense.Expense, error) {
	err := r.db.WithTx(ctx, func(tx *Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO processor_payments (payment_id, expense_id, status)
			VALUES ($1, $2, $3)
			ON CONFLICT (payment_id) DO NOTHING
		`, paymentID, expenseID, status)
		if err != nil {
			return fmt.Errorf("failed to record processor payment: %w", err)
		}
		if err := requireAffected(result, payment.ErrAlreadyProcessed); err != nil {
			return err
		}

		result, err = tx.ExecContext(ctx, `
			UPDATE expenses SET status = 'paid', updated_at = NOW()
			WHERE id = $1 AND method = 'link' AND status IN ('pending', 'waiting_approval')
		`, expenseID)
		if err != nil {
			return fmt.Errorf("failed to settle expense: %w", err)
		}
		return requireAffected(result, expense.ErrInvalidTransition)
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, expenseID)
}
