package payment

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotConnected     = errors.New("mercado pago account not connected")
	ErrNotApproved      = errors.New("payment was not approved")
	ErrMissingExpense   = errors.New("return is missing the expense id")
	ErrMissingPayment   = errors.New("return is missing the payment id")
	ErrPaymentMismatch  = errors.New("payment does not belong to this expense")
	ErrAmountMismatch   = fmt.Errorf("%w: amount differs", ErrPaymentMismatch)
	ErrAlreadyProcessed = errors.New("payment already processed")
	ErrMissingCode      = errors.New("authorization code is required")
)

// Credentials are a user's encrypted-at-rest processor tokens.
type Credentials struct {
	AccessToken     string
	RefreshToken    string
	ProcessorUserID string
	ExpiresAt       time.Time
}

// NeedsRefresh reports whether the access token expires within window.
func (c *Credentials) NeedsRefresh(now time.Time, window time.Duration) bool {
	return c.RefreshToken != "" && !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now.Add(window))
}

// ReturnParams are the query parameters of a checkout return.
type ReturnParams struct {
	Status    string
	ExpenseID string
	PaymentID string
}

// Outcome of a checkout return, carried to the dashboard redirect.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)
