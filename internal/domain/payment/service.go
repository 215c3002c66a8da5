package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"splitpay/internal/domain/expense"
	"splitpay/internal/domain/notification"
	"splitpay/internal/infrastructure/mercadopago"
	"splitpay/internal/shared/auth"
	"splitpay/internal/shared/messages"
)

// tokens expiring sooner than this are refreshed before use
const useRefreshWindow = 5 * time.Minute

type Service struct {
	client    mercadopago.ClientInterface
	creds     CredentialStore
	expenses  ExpenseReader
	ledger    Ledger
	notifier  Notifier
	msgs      *messages.Messages
	returnURL string
	now       func() time.Time
}

type ServiceConfig struct {
	Client    mercadopago.ClientInterface
	Creds     CredentialStore
	Expenses  ExpenseReader
	Ledger    Ledger
	Notifier  Notifier
	Messages  *messages.Messages
	ReturnURL string
}

func NewService(cfg ServiceConfig) *Service {
	return &Service{
		client:    cfg.Client,
		creds:     cfg.Creds,
		expenses:  cfg.Expenses,
		ledger:    cfg.Ledger,
		notifier:  cfg.Notifier,
		msgs:      cfg.Messages,
		returnURL: cfg.ReturnURL,
		now:       time.Now,
	}
}

// AuthURL returns the processor authorization URL for state.
func (s *Service) AuthURL(state string) string {
	return s.client.AuthURL(state)
}

// Connect exchanges an authorization code and stores the resulting
// credentials on the caller's profile.
func (s *Service) Connect(ctx context.Context, session auth.Session, code string) error {
	if code == "" {
		return ErrMissingCode
	}

	creds, err := s.client.Exchange(ctx, code)
	if err != nil {
		return err
	}

	if err := s.creds.SaveProcessorCredentials(ctx, session.UserID, fromClient(creds)); err != nil {
		return err
	}

	slog.InfoContext(ctx, "processor account connected", "user_id", session.UserID, "processor_user_id", creds.UserID)
	return nil
}

// Disconnect clears the caller's stored processor credentials.
func (s *Service) Disconnect(ctx context.Context, session auth.Session) error {
	return s.creds.ClearProcessorCredentials(ctx, session.UserID)
}

// CreateCheckout creates a hosted checkout paying into the payer's
// account and returns its URL. Only the debtor of a pending link expense
// may check out.
func (s *Service) CreateCheckout(ctx context.Context, session auth.Session, expenseID string) (string, error) {
	e, err := s.expenses.GetByID(ctx, expenseID)
	if err != nil {
		return "", err
	}
	if err := expense.CanCheckout(e, session); err != nil {
		return "", err
	}

	token, err := s.accessToken(ctx, e.PayerID)
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			return "", expense.ErrProcessorNotConnected
		}
		return "", err
	}

	back := s.backURL(e.ID)
	pref, err := s.client.CreatePreference(ctx, token, mercadopago.Preference{
		Items: []mercadopago.Item{{
			Title:     e.Description,
			Quantity:  1,
			UnitPrice: e.Amount.InexactFloat64(),
		}},
		ExternalReference: e.ID,
		BackURLs:          mercadopago.BackURLs{Success: back, Failure: back, Pending: back},
		AutoReturn:        mercadopago.PaymentApproved,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create checkout: %w", err)
	}
	return pref.InitPoint, nil
}

func (s *Service) backURL(expenseID string) string {
	return s.returnURL + "?" + url.Values{"expense_id": {expenseID}}.Encode()
}

// HandleReturn settles a link expense after a checkout return. The query
// parameters are not trusted: the payment is fetched with the payer's
// token and must be approved for this expense. Replayed payment ids are
// accepted without changing anything.
func (s *Service) HandleReturn(ctx context.Context, params ReturnParams) error {
	if params.Status != mercadopago.PaymentApproved {
		return ErrNotApproved
	}
	if params.ExpenseID == "" {
		return ErrMissingExpense
	}
	if params.PaymentID == "" {
		return ErrMissingPayment
	}

	e, err := s.expenses.GetByID(ctx, params.ExpenseID)
	if err != nil {
		return err
	}
	if e.Method != expense.MethodLink {
		return expense.ErrInvalidTransition
	}

	token, err := s.accessToken(ctx, e.PayerID)
	if err != nil {
		return err
	}

	p, err := s.client.GetPayment(ctx, token, params.PaymentID)
	if err != nil {
		return err
	}
	if p.Status != mercadopago.PaymentApproved {
		return ErrNotApproved
	}
	if p.ExternalReference != e.ID {
		return ErrPaymentMismatch
	}
	if paid := decimal.NewFromFloat(p.TransactionAmount).Round(2); !paid.Equal(e.Amount.Round(2)) {
		slog.WarnContext(ctx, "checkout amount differs from expense", "payment_id", params.PaymentID, "expense_id", e.ID, "paid", paid.StringFixed(2), "owed", e.Amount.StringFixed(2))
		return ErrAmountMismatch
	}

	settled, err := s.ledger.Settle(ctx, params.PaymentID, e.ID, p.Status)
	if errors.Is(err, ErrAlreadyProcessed) {
		slog.InfoContext(ctx, "ignoring replayed checkout return", "payment_id", params.PaymentID, "expense_id", e.ID)
		return nil
	}
	if err != nil {
		return err
	}

	s.notifyPaid(ctx, settled)
	return nil
}

func (s *Service) notifyPaid(ctx context.Context, e *expense.Expense) {
	if s.notifier == nil || s.msgs == nil {
		return
	}
	title, body := s.msgs.PaidViaProcessor.Format(e.DebtorEmail, e.Description, "$"+e.Amount.StringFixed(2))
	data := map[string]string{"expense_id": e.ID}
	if err := s.notifier.SendToUser(ctx, e.PayerID, title, body, notification.CategoryPayments, data); err != nil {
		slog.WarnContext(ctx, "failed to send paid notification", "expense_id", e.ID, "error", err)
	}
}

// accessToken returns a usable access token for userID, refreshing it
// first when it is about to expire.
func (s *Service) accessToken(ctx context.Context, userID string) (string, error) {
	creds, err := s.creds.GetProcessorCredentials(ctx, userID)
	if err != nil {
		return "", err
	}
	if !creds.NeedsRefresh(s.now(), useRefreshWindow) {
		return creds.AccessToken, nil
	}

	refreshed, err := s.refresh(ctx, userID, creds)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// RefreshUser refreshes one user's processor token unconditionally.
func (s *Service) RefreshUser(ctx context.Context, userID string) error {
	creds, err := s.creds.GetProcessorCredentials(ctx, userID)
	if err != nil {
		return err
	}
	_, err = s.refresh(ctx, userID, creds)
	return err
}

func (s *Service) refresh(ctx context.Context, userID string, creds *Credentials) (*Credentials, error) {
	if creds.RefreshToken == "" {
		return nil, ErrNotConnected
	}

	fresh, err := s.client.Refresh(ctx, creds.RefreshToken)
	if err != nil {
		return nil, err
	}

	updated := fromClient(fresh)
	if updated.RefreshToken == "" {
		updated.RefreshToken = creds.RefreshToken
	}
	if updated.ProcessorUserID == "" {
		updated.ProcessorUserID = creds.ProcessorUserID
	}
	if err := s.creds.SaveProcessorCredentials(ctx, userID, updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// UsersToRefresh lists users whose tokens expire within window. A zero
// window lists every connected user.
func (s *Service) UsersToRefresh(ctx context.Context, window time.Duration) ([]string, error) {
	var before time.Time
	if window > 0 {
		before = s.now().Add(window)
	}
	return s.creds.ListConnectedUserIDs(ctx, before)
}

// RefreshExpiring refreshes every token expiring within window and
// returns how many succeeded. Individual failures are logged and skipped.
func (s *Service) RefreshExpiring(ctx context.Context, window time.Duration) (int, error) {
	userIDs, err := s.UsersToRefresh(ctx, window)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, id := range userIDs {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		if err := s.RefreshUser(ctx, id); err != nil {
			slog.WarnContext(ctx, "failed to refresh processor token", "user_id", id, "error", err)
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

func fromClient(c *mercadopago.Credentials) Credentials {
	return Credentials{
		AccessToken:     c.AccessToken,
		RefreshToken:    c.RefreshToken,
		ProcessorUserID: c.UserID,
		ExpiresAt:       c.ExpiresAt,
	}
}
