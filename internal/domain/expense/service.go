package expense

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"splitpay/internal/domain/notification"
	"splitpay/internal/domain/profile"
	"splitpay/internal/infrastructure/storage"
	"splitpay/internal/shared/auth"
	"splitpay/internal/shared/messages"
)

type Service struct {
	repo     Repository
	groups   GroupMembers
	accounts ProcessorAccounts
	store    storage.ObjectStore
	notifier Notifier
	msgs     *messages.Messages
}

func NewService(
	repo Repository,
	groups GroupMembers,
	accounts ProcessorAccounts,
	store storage.ObjectStore,
	notifier Notifier,
	msgs *messages.Messages,
) *Service {
	return &Service{
		repo:     repo,
		groups:   groups,
		accounts: accounts,
		store:    store,
		notifier: notifier,
		msgs:     msgs,
	}
}

// Create records a single-debtor expense. receipt may be nil.
func (s *Service) Create(ctx context.Context, session auth.Session, in NewExpense, receipt *storage.Upload) (*Expense, error) {
	description, err := validateDescription(in.Description)
	if err != nil {
		return nil, err
	}
	debtor, err := profile.NormalizeEmail(in.DebtorEmail)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(debtor, session.Email) {
		return nil, ErrSelfDebt
	}

	amount, err := SplitSingle(in.Total, in.SplitEvenly)
	if err != nil {
		return nil, err
	}

	params := CreateParams{
		Description:    description,
		OriginalAmount: in.Total,
		Amount:         amount,
		PayerID:        session.UserID,
		DebtorEmail:    debtor,
		Method:         in.Method,
		MethodDetails:  methodDetails(in.Method, in.MethodDetails),
	}
	if err := s.checkMethod(ctx, session, params); err != nil {
		return nil, err
	}

	created, err := s.insert(ctx, session, []CreateParams{params}, receipt)
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

// CreateForGroup fans a group expense out into one row per selected member
// other than the payer, all inserted in one transaction.
func (s *Service) CreateForGroup(ctx context.Context, session auth.Session, groupID string, in NewGroupExpense, receipt *storage.Upload) ([]*Expense, error) {
	description, err := validateDescription(in.Description)
	if err != nil {
		return nil, err
	}

	members, err := s.groups.MemberEmails(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !containsEmail(members, session.Email) {
		return nil, ErrForbidden
	}

	selected := in.Participants
	if len(selected) == 0 {
		selected = members
	}
	for _, email := range selected {
		if !containsEmail(members, email) {
			return nil, fmt.Errorf("%w: %s", ErrNotGroupMember, email)
		}
	}

	share, debtors, err := FanOut(in.Total, session.Email, selected)
	if err != nil {
		return nil, err
	}

	params := make([]CreateParams, len(debtors))
	for i, debtor := range debtors {
		params[i] = CreateParams{
			Description:    description,
			OriginalAmount: in.Total,
			Amount:         share,
			PayerID:        session.UserID,
			DebtorEmail:    debtor,
			GroupID:        &groupID,
			Method:         in.Method,
			MethodDetails:  methodDetails(in.Method, in.MethodDetails),
		}
	}
	if err := s.checkMethod(ctx, session, params[0]); err != nil {
		return nil, err
	}

	return s.insert(ctx, session, params, receipt)
}

func (s *Service) checkMethod(ctx context.Context, session auth.Session, p CreateParams) error {
	if err := validateMethod(p.Method, p.MethodDetails); err != nil {
		return err
	}
	if p.Method != MethodLink {
		return nil
	}
	connected, err := s.accounts.ProcessorConnected(ctx, session.UserID)
	if err != nil {
		return err
	}
	if !connected {
		return ErrProcessorNotConnected
	}
	return nil
}

// insert uploads the receipt first so a failed upload aborts creation. A
// failed insert removes the uploaded object again.
func (s *Service) insert(ctx context.Context, session auth.Session, params []CreateParams, receipt *storage.Upload) ([]*Expense, error) {
	var receiptKey *string
	if receipt != nil {
		key := storage.NewKey("receipts/"+session.UserID, receipt.ContentType)
		if err := s.store.Put(ctx, key, receipt.ContentType, receipt.Body); err != nil {
			return nil, fmt.Errorf("failed to upload receipt: %w", err)
		}
		receiptKey = &key
	}

	for i := range params {
		params[i].ReceiptKey = receiptKey
		if err := params[i].Validate(); err != nil {
			s.discardReceipt(ctx, receiptKey)
			return nil, err
		}
	}

	created, err := s.repo.CreateBatch(ctx, params)
	if err != nil {
		s.discardReceipt(ctx, receiptKey)
		return nil, err
	}

	s.notifyCreated(ctx, session, created)
	return created, nil
}

func (s *Service) discardReceipt(ctx context.Context, key *string) {
	if key == nil {
		return
	}
	if err := s.store.Delete(ctx, *key); err != nil {
		slog.WarnContext(ctx, "failed to remove orphaned receipt", "key", *key, "error", err)
	}
}

// Get returns an expense visible to the session user.
func (s *Service) Get(ctx context.Context, session auth.Session, id string) (*View, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.IsPayer(session) && !e.IsDebtor(session) {
		return nil, ErrForbidden
	}
	return NewView(e, session), nil
}

// List loads what others owe the user and what the user owes, concurrently.
func (s *Service) List(ctx context.Context, session auth.Session) (*Ledger, error) {
	var owedToMe, iOwe []*Expense

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		owedToMe, err = s.repo.ListByPayer(gctx, session.UserID)
		return err
	})
	g.Go(func() error {
		var err error
		iOwe, err = s.repo.ListByDebtor(gctx, session.Email)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Ledger{
		OwedToMe: views(owedToMe, session),
		IOwe:     views(iOwe, session),
	}, nil
}

// ListForGroup returns the group's expenses as seen by the session user.
// Membership is checked by the caller.
func (s *Service) ListForGroup(ctx context.Context, session auth.Session, groupID string) ([]*View, error) {
	expenses, err := s.repo.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return views(expenses, session), nil
}

func views(expenses []*Expense, session auth.Session) []*View {
	out := make([]*View, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, NewView(e, session))
	}
	return out
}

// Summary nets outstanding amounts per counterparty over unpaid rows.
func (s *Service) Summary(ctx context.Context, session auth.Session) ([]*Balance, error) {
	ledger, err := s.List(ctx, session)
	if err != nil {
		return nil, err
	}
	return Summarize(ledger), nil
}

// Summarize nets a ledger per counterparty email, skipping paid rows and
// settled counterparties.
func Summarize(ledger *Ledger) []*Balance {
	byEmail := make(map[string]*Balance)
	add := func(email, name string, amount decimal.Decimal) {
		email = strings.ToLower(email)
		b, ok := byEmail[email]
		if !ok {
			b = &Balance{Email: email}
			byEmail[email] = b
		}
		if name != "" {
			b.Name = name
		}
		b.Net = b.Net.Add(amount)
	}

	for _, v := range ledger.OwedToMe {
		if v.Status != StatusPaid {
			add(v.DebtorEmail, "", v.Amount)
		}
	}
	for _, v := range ledger.IOwe {
		if v.Status != StatusPaid {
			add(v.PayerEmail, v.PayerName, v.Amount.Neg())
		}
	}

	balances := make([]*Balance, 0, len(byEmail))
	for _, b := range byEmail {
		if !b.Net.IsZero() {
			balances = append(balances, b)
		}
	}
	slices.SortFunc(balances, func(a, b *Balance) int {
		return cmp.Compare(a.Email, b.Email)
	})
	return balances
}

// Act applies a state machine action. The write is a compare-and-set on
// the current status, so a concurrent change yields ErrInvalidTransition.
func (s *Service) Act(ctx context.Context, session auth.Session, id, action string) (*View, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	from, to, err := Transition(e, session, action)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, e.ID, from, to)
	if err != nil {
		return nil, err
	}

	s.notifyTransition(ctx, updated, action)
	return NewView(updated, session), nil
}

// Delete removes an expense. Only the payer may delete. The receipt object
// is removed once no other row references it.
func (s *Service) Delete(ctx context.Context, session auth.Session, id string) error {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !e.IsPayer(session) {
		return ErrForbidden
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if e.ReceiptKey != nil {
		refs, err := s.repo.CountByReceiptKey(ctx, *e.ReceiptKey)
		if err != nil {
			slog.WarnContext(ctx, "failed to count receipt references", "key", *e.ReceiptKey, "error", err)
		} else if refs == 0 {
			s.discardReceipt(ctx, e.ReceiptKey)
		}
	}
	return nil
}

// OpenReceipt streams the receipt to the payer or the debtor.
func (s *Service) OpenReceipt(ctx context.Context, session auth.Session, id string) (*storage.Object, error) {
	v, err := s.Get(ctx, session, id)
	if err != nil {
		return nil, err
	}
	if v.ReceiptKey == nil {
		return nil, storage.ErrObjectNotFound
	}
	return s.store.Open(ctx, *v.ReceiptKey)
}

func formatAmount(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func (s *Service) notifyCreated(ctx context.Context, session auth.Session, created []*Expense) {
	if s.notifier == nil || s.msgs == nil || len(created) == 0 {
		return
	}

	first := created[0]
	emails := make([]string, len(created))
	for i, e := range created {
		emails[i] = e.DebtorEmail
	}

	title, body := s.msgs.ExpenseCreated.Format(session.Email, first.Description, formatAmount(first.Amount))
	data := map[string]string{"expense_id": first.ID}
	if first.GroupID != nil {
		data["group_id"] = *first.GroupID
	}

	if err := s.notifier.SendToEmails(ctx, emails, title, body, notification.CategoryExpenses, data); err != nil {
		slog.WarnContext(ctx, "failed to send expense notifications", "expense_id", first.ID, "error", err)
	}
}

func (s *Service) notifyTransition(ctx context.Context, e *Expense, action string) {
	if s.notifier == nil || s.msgs == nil {
		return
	}

	amount := formatAmount(e.Amount)
	data := map[string]string{"expense_id": e.ID}

	var err error
	switch action {
	case ActionNotifyPaid:
		title, body := s.msgs.PaymentNotified.Format(e.DebtorEmail, e.Description, amount)
		err = s.notifier.SendToUser(ctx, e.PayerID, title, body, notification.CategoryPayments, data)
	case ActionConfirm, ActionForcePaid:
		title, body := s.msgs.PaymentConfirmed.Format(e.Description, amount)
		err = s.notifier.SendToEmail(ctx, e.DebtorEmail, title, body, notification.CategoryPayments, data)
	case ActionReject:
		title, body := s.msgs.PaymentRejected.Format(e.Description, amount)
		err = s.notifier.SendToEmail(ctx, e.DebtorEmail, title, body, notification.CategoryPayments, data)
	}

	if err != nil && !errors.Is(err, notification.ErrRecipientNotFound) {
		slog.WarnContext(ctx, "failed to send payment notification", "expense_id", e.ID, "action", action, "error", err)
	}
}

func containsEmail(emails []string, email string) bool {
	return slices.ContainsFunc(emails, func(e string) bool {
		return strings.EqualFold(e, email)
	})
}
