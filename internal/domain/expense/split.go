package expense

import (
	"strings"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// ValidateTotal accepts positive amounts with at most two decimals.
func ValidateTotal(total decimal.Decimal) error {
	if !total.IsPositive() || !total.Equal(total.Truncate(2)) {
		return ErrInvalidAmount
	}
	return nil
}

// SplitSingle returns the debtor's amount for the single-debtor form:
// half of total when splitEvenly, otherwise all of it. Halves are
// truncated to cents; the odd cent stays with the payer.
func SplitSingle(total decimal.Decimal, splitEvenly bool) (decimal.Decimal, error) {
	if err := ValidateTotal(total); err != nil {
		return decimal.Zero, err
	}
	if !splitEvenly {
		return total, nil
	}

	amount := total.Div(two).Truncate(2)
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}

// FanOut splits total across the selected participants. The payer counts
// towards the divisor when selected but gets no row. It returns the share
// owed by each debtor and the debtor emails in input order.
//
// Shares are truncated to cents, so share*len(debtors) never exceeds total
// and any remainder stays with the payer.
func FanOut(total decimal.Decimal, payerEmail string, selected []string) (decimal.Decimal, []string, error) {
	if err := ValidateTotal(total); err != nil {
		return decimal.Zero, nil, err
	}

	participants := dedupeEmails(selected)
	if len(participants) == 0 {
		return decimal.Zero, nil, ErrNoParticipants
	}

	debtors := make([]string, 0, len(participants))
	for _, email := range participants {
		if !strings.EqualFold(email, payerEmail) {
			debtors = append(debtors, email)
		}
	}
	if len(debtors) == 0 {
		return decimal.Zero, nil, ErrNoParticipants
	}

	share := total.Div(decimal.NewFromInt(int64(len(participants)))).Truncate(2)
	if !share.IsPositive() {
		return decimal.Zero, nil, ErrInvalidAmount
	}
	return share, debtors, nil
}

func dedupeEmails(emails []string) []string {
	seen := make(map[string]bool, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}
