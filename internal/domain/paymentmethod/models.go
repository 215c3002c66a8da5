package paymentmethod

import (
	"errors"
	"strings"
	"time"
)

const (
	maxLabelLength = 64
	maxAliasLength = 128
)

var (
	ErrPaymentMethodNotFound = errors.New("payment method not found")
	ErrInvalidLabel          = errors.New("label is required (max 64 characters)")
	ErrInvalidAlias          = errors.New("alias is required (max 128 characters)")
)

// PaymentMethod is a saved transfer alias shown to debtors.
type PaymentMethod struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Label     string    `json:"label"`
	Alias     string    `json:"alias"`
	CreatedAt time.Time `json:"createdAt"`
}

type CreatePaymentMethodParams struct {
	UserID string
	Label  string
	Alias  string
}

// Validate trims the fields and checks their lengths.
func (p *CreatePaymentMethodParams) Validate() error {
	if p.UserID == "" {
		return errors.New("user ID is required")
	}
	p.Label = strings.TrimSpace(p.Label)
	p.Alias = strings.TrimSpace(p.Alias)
	if p.Label == "" || len([]rune(p.Label)) > maxLabelLength {
		return ErrInvalidLabel
	}
	if p.Alias == "" || len([]rune(p.Alias)) > maxAliasLength {
		return ErrInvalidAlias
	}
	return nil
}
