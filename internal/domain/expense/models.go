package expense

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"splitpay/internal/shared/auth"
)

// Expense statuses
const (
	StatusPending         = "pending"
	StatusWaitingApproval = "waiting_approval"
	StatusPaid            = "paid"
)

// Settlement methods
const (
	MethodLink     = "link"
	MethodTransfer = "transfer"
	MethodCash     = "cash"
)

const maxDescriptionLength = 200

// Domain errors
var (
	ErrExpenseNotFound       = errors.New("expense not found")
	ErrForbidden             = errors.New("access forbidden")
	ErrInvalidTransition     = errors.New("action not allowed in the current state")
	ErrUnknownAction         = errors.New("unknown action")
	ErrInvalidAmount         = errors.New("amount must be positive with at most two decimals")
	ErrInvalidMethod         = errors.New("method must be 'link', 'transfer' or 'cash'")
	ErrMissingMethodDetails  = errors.New("transfer expenses need an alias")
	ErrInvalidDescription    = errors.New("description is required (max 200 characters)")
	ErrSelfDebt              = errors.New("payer cannot also be the debtor")
	ErrNoParticipants        = errors.New("at least one participant other than the payer is required")
	ErrNotGroupMember        = errors.New("participant is not a member of the group")
	ErrProcessorNotConnected = errors.New("connect Mercado Pago before requesting link payments")
)

type Expense struct {
	ID             string          `json:"id"`
	Description    string          `json:"description"`
	OriginalAmount decimal.Decimal `json:"originalAmount"`
	Amount         decimal.Decimal `json:"amount"`
	PayerID        string          `json:"payerId"`
	PayerEmail     string          `json:"payerEmail"`
	PayerName      string          `json:"payerName"`
	DebtorEmail    string          `json:"debtorEmail"`
	GroupID        *string         `json:"groupId,omitempty"`
	ReceiptKey     *string         `json:"-"`
	HasReceipt     bool            `json:"hasReceipt"`
	Method         string          `json:"method"`
	MethodDetails  *string         `json:"methodDetails,omitempty"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// IsPayer reports whether the session user fronted the money.
func (e *Expense) IsPayer(s auth.Session) bool {
	return e.PayerID == s.UserID
}

// IsDebtor reports whether the session user owes this row.
func (e *Expense) IsDebtor(s auth.Session) bool {
	return s.Email != "" && strings.EqualFold(e.DebtorEmail, s.Email)
}

// View is an expense as rendered for one viewer.
type View struct {
	*Expense
	Role    string   `json:"role"`
	Actions []string `json:"actions"`
}

// NewView computes the viewer's role and available actions.
func NewView(e *Expense, viewer auth.Session) *View {
	role := "debtor"
	if e.IsPayer(viewer) {
		role = "payer"
	}
	return &View{Expense: e, Role: role, Actions: ActionsFor(e, viewer)}
}

// Ledger is the dashboard listing for one user.
type Ledger struct {
	OwedToMe []*View `json:"owed_to_me"`
	IOwe     []*View `json:"i_owe"`
}

// Balance is the net outstanding amount with one counterparty. Positive
// means the counterparty owes the viewer.
type Balance struct {
	Email string          `json:"email"`
	Name  string          `json:"name,omitempty"`
	Net   decimal.Decimal `json:"net"`
}

// CreateParams is one expense row to insert.
type CreateParams struct {
	Description    string
	OriginalAmount decimal.Decimal
	Amount         decimal.Decimal
	PayerID        string
	DebtorEmail    string
	GroupID        *string
	ReceiptKey     *string
	Method         string
	MethodDetails  *string
}

func (p CreateParams) Validate() error {
	if p.PayerID == "" {
		return errors.New("payer is required")
	}
	if p.DebtorEmail == "" {
		return errors.New("debtor email is required")
	}
	if !p.Amount.IsPositive() || !p.OriginalAmount.IsPositive() {
		return ErrInvalidAmount
	}
	if p.Amount.GreaterThan(p.OriginalAmount) {
		return ErrInvalidAmount
	}
	return validateMethod(p.Method, p.MethodDetails)
}

// NewExpense is the input of the single-debtor form.
type NewExpense struct {
	Description   string
	Total         decimal.Decimal
	DebtorEmail   string
	SplitEvenly   bool
	Method        string
	MethodDetails string
}

// NewGroupExpense is the input of a group fan-out. An empty Participants
// list selects every member.
type NewGroupExpense struct {
	Description   string
	Total         decimal.Decimal
	Participants  []string
	Method        string
	MethodDetails string
}

func validateDescription(d string) (string, error) {
	d = strings.TrimSpace(d)
	if d == "" || len([]rune(d)) > maxDescriptionLength {
		return "", ErrInvalidDescription
	}
	return d, nil
}

func validateMethod(method string, details *string) error {
	switch method {
	case MethodLink, MethodCash:
		return nil
	case MethodTransfer:
		if details == nil || strings.TrimSpace(*details) == "" {
			return ErrMissingMethodDetails
		}
		return nil
	default:
		return ErrInvalidMethod
	}
}

// methodDetails keeps details only for methods that show them.
func methodDetails(method, details string) *string {
	details = strings.TrimSpace(details)
	if method != MethodTransfer || details == "" {
		return nil
	}
	return &details
}
